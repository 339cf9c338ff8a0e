// Package mailer sends learner notifications. Sending is asynchronous and
// best effort: a full queue drops the message, and a failed send is logged,
// never returned to the request that triggered it.
package mailer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/dalemusser/peerfinder/internal/app/system/metrics"
	"github.com/dalemusser/peerfinder/internal/domain/models"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Email is one outbound message.
type Email struct {
	To       string
	Subject  string
	TextBody string
	HTMLBody string
}

// ErrNoSender is returned when no sending account is configured for a
// program and there is no default.
var ErrNoSender = errors.New("mailer: no sender configured for program")

// Sender delivers an email from the account configured for program.
type Sender interface {
	Send(ctx context.Context, program string, e Email) error
}

// NotifierConfig tunes a Notifier.
type NotifierConfig struct {
	// BaseURL is the frontend origin; status links are BaseURL/status/<id>.
	BaseURL string
	// RatePerSecond caps outbound sends. Zero means 2 per second.
	RatePerSecond float64
	// QueueSize bounds pending messages. Zero means 256.
	QueueSize int
	// SendTimeout bounds one send. Zero means 30 seconds.
	SendTimeout time.Duration
}

type job struct {
	program string
	email   Email
}

// Notifier queues emails and sends them from a background worker.
// A nil *Notifier accepts and discards everything.
type Notifier struct {
	sender  Sender
	baseURL string
	limiter *rate.Limiter
	timeout time.Duration
	log     *zap.Logger

	queue  chan job
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// NewNotifier creates a Notifier. Call Start before use.
func NewNotifier(sender Sender, cfg NotifierConfig, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	return &Notifier{
		sender:  sender,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1),
		timeout: cfg.SendTimeout,
		log:     logger,
		queue:   make(chan job, cfg.QueueSize),
		stopCh:  make(chan struct{}),
	}
}

// Start begins the send loop.
func (n *Notifier) Start() {
	if n == nil {
		return
	}
	n.wg.Add(1)
	go n.run()
	n.log.Info("mail notifier started", zap.Float64("rate_per_second", float64(n.limiter.Limit())))
}

// Stop signals the worker to stop and waits for it. Messages still queued
// are discarded.
func (n *Notifier) Stop() {
	if n == nil {
		return
	}
	n.once.Do(func() { close(n.stopCh) })
	n.wg.Wait()
	n.log.Info("mail notifier stopped")
}

// StatusURL is the link a learner follows to their status page.
func (n *Notifier) StatusURL(learnerID string) string {
	return n.baseURL + "/status/" + learnerID
}

// LearnerQueued confirms a new registration.
func (n *Notifier) LearnerQueued(_ context.Context, l models.Learner) {
	if n == nil {
		return
	}
	e := BuildQueuedEmail(QueuedEmailData{Name: l.Name, Program: l.Program, StatusURL: n.StatusURL(l.ID)})
	e.To = l.Email
	n.enqueue(l.Program, e)
}

// GroupFormed emails every member of g.
func (n *Notifier) GroupFormed(_ context.Context, g models.Group, via string) {
	if n == nil {
		return
	}
	for _, m := range g.Members {
		var peers []string
		for _, o := range g.Members {
			if o.ID != m.ID {
				peers = append(peers, o.Name)
			}
		}
		e := BuildMatchEmail(MatchEmailData{
			Name:      m.Name,
			Program:   m.Program,
			Peers:     peers,
			StatusURL: n.StatusURL(m.ID),
			Via:       via,
		})
		e.To = m.Email
		n.enqueue(m.Program, e)
	}
}

func (n *Notifier) enqueue(program string, e Email) {
	if strings.TrimSpace(e.To) == "" {
		metrics.Notifications.WithLabelValues("skipped").Inc()
		return
	}
	select {
	case n.queue <- job{program: program, email: e}:
	default:
		metrics.Notifications.WithLabelValues("dropped").Inc()
		n.log.Warn("mail queue full; dropping message", zap.String("to", e.To), zap.String("subject", e.Subject))
	}
}

func (n *Notifier) run() {
	defer n.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-n.stopCh
		cancel()
	}()

	for {
		select {
		case <-n.stopCh:
			return
		case j := <-n.queue:
			if err := n.limiter.Wait(ctx); err != nil {
				return
			}
			n.send(ctx, j)
		}
	}
}

func (n *Notifier) send(ctx context.Context, j job) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	if err := n.sender.Send(ctx, j.program, j.email); err != nil {
		metrics.Notifications.WithLabelValues("failed").Inc()
		n.log.Error("send notification failed",
			zap.String("to", j.email.To), zap.String("program", j.program), zap.Error(err))
		return
	}
	metrics.Notifications.WithLabelValues("sent").Inc()
	n.log.Debug("notification sent", zap.String("to", j.email.To), zap.String("subject", j.email.Subject))
}

// LogSender logs messages instead of sending them. It is used when no
// Gmail account is configured.
type LogSender struct {
	Log *zap.Logger
}

func (s LogSender) Send(_ context.Context, program string, e Email) error {
	s.Log.Info("email (not sent: no sender configured)",
		zap.String("program", program), zap.String("to", e.To), zap.String("subject", e.Subject))
	return nil
}
