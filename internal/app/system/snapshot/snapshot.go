// Package snapshot uploads CSV exports of learners and feedback to S3 so
// the data can be analysed outside the service.
package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	feedbackstore "github.com/dalemusser/peerfinder/internal/app/store/feedback"
	learnerstore "github.com/dalemusser/peerfinder/internal/app/store/learners"
	"github.com/dalemusser/peerfinder/internal/app/system/csvutil"
	"github.com/dalemusser/peerfinder/internal/app/system/metrics"
	"go.uber.org/zap"
)

// Uploader is the subset of *s3.Client the exporter uses.
type Uploader interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewS3Client loads AWS credentials from the default chain.
func NewS3Client(ctx context.Context, region string) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("snapshot: load aws config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

// Config names the destination.
type Config struct {
	Bucket string
	Prefix string
}

// Exporter writes the three CSV exports to S3.
type Exporter struct {
	client   Uploader
	bucket   string
	prefix   string
	learners *learnerstore.Store
	feedback feedbackstore.Repository
	log      *zap.Logger
}

// New creates an Exporter. feedback may be nil, in which case only the
// learners file is written.
func New(client Uploader, cfg Config, learners *learnerstore.Store, feedback feedbackstore.Repository, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{
		client:   client,
		bucket:   cfg.Bucket,
		prefix:   strings.Trim(cfg.Prefix, "/"),
		learners: learners,
		feedback: feedback,
		log:      logger,
	}
}

// Key returns the object key for name under the configured prefix.
func (e *Exporter) Key(name string) string {
	if e.prefix == "" {
		return name
	}
	return path.Join(e.prefix, name)
}

// Export uploads the current learners, feedback and peer-feedback CSVs.
func (e *Exporter) Export(ctx context.Context) error {
	if err := e.export(ctx); err != nil {
		metrics.SnapshotExports.WithLabelValues("failed").Inc()
		return err
	}
	metrics.SnapshotExports.WithLabelValues("ok").Inc()
	return nil
}

func (e *Exporter) export(ctx context.Context) error {
	learners, err := e.learners.List(ctx, learnerstore.Filter{})
	if err != nil {
		return fmt.Errorf("snapshot: list learners: %w", err)
	}
	var buf bytes.Buffer
	if err := csvutil.WriteLearners(&buf, learners); err != nil {
		return err
	}
	if err := e.put(ctx, csvutil.LearnersFile, buf.Bytes()); err != nil {
		return err
	}

	if e.feedback == nil {
		return nil
	}
	fb, err := e.feedback.ListFeedback(ctx)
	if err != nil {
		return fmt.Errorf("snapshot: list feedback: %w", err)
	}
	buf.Reset()
	if err := csvutil.WriteFeedback(&buf, fb); err != nil {
		return err
	}
	if err := e.put(ctx, csvutil.FeedbackFile, buf.Bytes()); err != nil {
		return err
	}

	pfb, err := e.feedback.ListPeerFeedback(ctx)
	if err != nil {
		return fmt.Errorf("snapshot: list peer feedback: %w", err)
	}
	buf.Reset()
	if err := csvutil.WritePeerFeedback(&buf, pfb); err != nil {
		return err
	}
	if err := e.put(ctx, csvutil.PeerFeedbackFile, buf.Bytes()); err != nil {
		return err
	}

	e.log.Info("snapshot exported",
		zap.String("bucket", e.bucket), zap.String("prefix", e.prefix), zap.Int("learners", len(learners)))
	return nil
}

func (e *Exporter) put(ctx context.Context, name string, body []byte) error {
	key := e.Key(name)
	_, err := e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return fmt.Errorf("snapshot: put %s: %w", key, err)
	}
	return nil
}
