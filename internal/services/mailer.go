package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotifier/internal/shared"
	"github.com/wneessen/go-mail"
)

type sendFunc func(ctx context.Context, msgs ...*mail.Msg) error

// SMTPMailer delivers messages through an SMTP relay.
//
// Recipients are set as Bcc only, so each one receives a blind copy.
type SMTPMailer struct {
	cfg  shared.MailConfig
	send sendFunc
}

// NewSMTPMailer creates an [SMTPMailer] from the mail settings.
func NewSMTPMailer(cfg shared.MailConfig) (*SMTPMailer, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, fmt.Errorf("%w: mail.host and mail.from are required", shared.ErrInvalidConfig)
	}

	opts := []mail.Option{
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(30 * time.Second),
	}
	if cfg.Port > 0 {
		opts = append(opts, mail.WithPort(cfg.Port))
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidConfig, err)
	}
	return &SMTPMailer{cfg: cfg, send: client.DialAndSendWithContext}, nil
}

// Send implements [Mailer].
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if len(msg.Recipients) == 0 {
		return fmt.Errorf("%w: no recipients", shared.ErrValidation)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	out, err := m.compose(msg)
	if err != nil {
		return err
	}
	if err := m.send(ctx, out); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrMailFailed, err)
	}
	return nil
}

func (m *SMTPMailer) compose(msg Message) (*mail.Msg, error) {
	out := mail.NewMsg()
	if err := out.From(m.cfg.From); err != nil {
		return nil, fmt.Errorf("%w: mail.from: %v", shared.ErrInvalidConfig, err)
	}
	if err := out.Bcc(msg.Recipients...); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	out.Subject(headerText(msg.Subject))
	out.SetDate()
	out.SetMessageID()
	out.SetBodyString(mail.TypeTextPlain, msg.Body)
	return out, nil
}

// headerText folds line breaks and runs of whitespace into single spaces.
func headerText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// LogMailer writes messages to the log instead of sending them. It is used when mail is disabled.
type LogMailer struct {
	logger *log.Logger
}

// NewLogMailer creates a [LogMailer].
func NewLogMailer(logger *log.Logger) *LogMailer {
	return &LogMailer{logger: shared.WithLogger(logger, "component", "mailer")}
}

// Send implements [Mailer].
func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.logger.Info("mail not sent (disabled)",
		"subject", msg.Subject,
		"recipients", len(msg.Recipients),
		"artists", len(msg.Artists),
	)
	m.logger.Debug(msg.Body)
	return nil
}

// NewMailer returns an [SMTPMailer] when mail is enabled and a [LogMailer] otherwise.
func NewMailer(cfg shared.MailConfig, logger *log.Logger) (Mailer, error) {
	if !cfg.Enabled {
		return NewLogMailer(logger), nil
	}
	return NewSMTPMailer(cfg)
}
