package mailer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime"
	"mime/multipart"
	"net/textproto"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// Account is one program's sending mailbox. Token is either a bare refresh
// token or the authorized-user JSON written by Google's OAuth tooling.
type Account struct {
	Email string `json:"email"`
	Token string `json:"token"`
}

// ParseAccounts decodes the gmail_senders setting, a JSON object keyed by
// program. Token may be given as a string or as a nested JSON object.
func ParseAccounts(raw string) (map[string]Account, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]Account{}, nil
	}
	var parsed map[string]struct {
		Email string          `json:"email"`
		Token json.RawMessage `json:"token"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("mailer: gmail_senders: %w", err)
	}
	out := make(map[string]Account, len(parsed))
	for program, a := range parsed {
		tok := strings.TrimSpace(string(a.Token))
		var s string
		if json.Unmarshal(a.Token, &s) == nil {
			tok = s
		}
		out[program] = Account{Email: strings.TrimSpace(a.Email), Token: tok}
	}
	return out, nil
}

// authorizedUser is the subset of Google's authorized-user JSON we need.
type authorizedUser struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

func parseToken(raw string) authorizedUser {
	var u authorizedUser
	if strings.HasPrefix(strings.TrimSpace(raw), "{") && json.Unmarshal([]byte(raw), &u) == nil {
		return u
	}
	return authorizedUser{RefreshToken: strings.TrimSpace(raw)}
}

// GmailConfig configures a GmailSender.
type GmailConfig struct {
	ClientID       string
	ClientSecret   string
	Accounts       map[string]Account
	DefaultProgram string
}

type gmailAccount struct {
	email string
	svc   *gmail.Service
}

// GmailSender sends through the Gmail API using one mailbox per program.
type GmailSender struct {
	accounts       map[string]gmailAccount
	defaultProgram string
	log            *zap.Logger
}

// NewGmailSender builds an API client per configured account. Accounts
// whose token cannot be used are skipped with a warning.
func NewGmailSender(ctx context.Context, cfg GmailConfig, logger *zap.Logger) (*GmailSender, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &GmailSender{
		accounts:       make(map[string]gmailAccount, len(cfg.Accounts)),
		defaultProgram: cfg.DefaultProgram,
		log:            logger,
	}
	for program, a := range cfg.Accounts {
		u := parseToken(a.Token)
		if u.RefreshToken == "" && u.Token == "" {
			logger.Warn("gmail account has no token; skipping", zap.String("program", program))
			continue
		}
		conf := &oauth2.Config{
			ClientID:     firstNonEmpty(u.ClientID, cfg.ClientID),
			ClientSecret: firstNonEmpty(u.ClientSecret, cfg.ClientSecret),
			Endpoint:     google.Endpoint,
			Scopes:       []string{gmail.GmailSendScope},
		}
		ts := conf.TokenSource(ctx, &oauth2.Token{AccessToken: u.Token, RefreshToken: u.RefreshToken})
		svc, err := gmail.NewService(ctx, option.WithTokenSource(ts))
		if err != nil {
			return nil, fmt.Errorf("mailer: gmail client for %s: %w", program, err)
		}
		s.accounts[program] = gmailAccount{email: a.Email, svc: svc}
	}
	if len(s.accounts) == 0 {
		return nil, ErrNoSender
	}
	return s, nil
}

// Send delivers e from program's mailbox, falling back to the default
// program's mailbox.
func (s *GmailSender) Send(ctx context.Context, program string, e Email) error {
	acct, ok := s.accounts[program]
	if !ok {
		acct, ok = s.accounts[s.defaultProgram]
	}
	if !ok {
		return ErrNoSender
	}
	raw, err := BuildMIME(acct.email, e)
	if err != nil {
		return err
	}
	msg := &gmail.Message{Raw: base64.URLEncoding.EncodeToString(raw)}
	if _, err := acct.svc.Users.Messages.Send("me", msg).Context(ctx).Do(); err != nil {
		return fmt.Errorf("mailer: gmail send: %w", err)
	}
	return nil
}

// BuildMIME renders e as a multipart/alternative RFC 5322 message.
func BuildMIME(from string, e Email) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	parts := []struct{ ctype, content string }{
		{"text/plain; charset=UTF-8", e.TextBody},
		{"text/html; charset=UTF-8", e.HTMLBody},
	}
	for _, p := range parts {
		if p.content == "" {
			continue
		}
		w, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {p.ctype}})
		if err != nil {
			return nil, err
		}
		if _, err := w.Write([]byte(p.content)); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var msg bytes.Buffer
	if from != "" {
		fmt.Fprintf(&msg, "From: %s\r\n", from)
	}
	fmt.Fprintf(&msg, "To: %s\r\n", e.To)
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", e.Subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", mw.Boundary())
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
