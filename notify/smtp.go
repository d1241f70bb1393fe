package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	accounts "github.com/versehub/go-accounts"
)

const defaultDialTimeout = 8 * time.Second

// SMTPConfig holds the mail relay settings.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	FromName string `yaml:"from_name"`
	// HTML marks bodies as text/html, set when email templates are rendered.
	HTML bool `yaml:"html"`
}

func (c SMTPConfig) addr() string {
	port := c.Port
	if port == 0 {
		port = 587
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

// SMTPNotifier delivers messages through an SMTP relay, upgrading to TLS
// when the server offers STARTTLS.
type SMTPNotifier struct {
	cfg    SMTPConfig
	logger accounts.Logger
	dial   func(ctx context.Context, network, addr string) (net.Conn, error)
}

var _ accounts.Notifier = (*SMTPNotifier)(nil)

func NewSMTPNotifier(cfg SMTPConfig, logger accounts.Logger) *SMTPNotifier {
	if logger == nil {
		logger = accounts.NewSlogLogger(nil)
	}
	d := &net.Dialer{Timeout: defaultDialTimeout}
	return &SMTPNotifier{cfg: cfg, logger: logger, dial: d.DialContext}
}

func (n *SMTPNotifier) Send(ctx context.Context, msg accounts.Message) error {
	if msg.To == "" {
		return goerrors.New("message has no recipient", goerrors.CategoryBadInput).
			WithTextCode("MISSING_RECIPIENT")
	}

	n.logger.Debug("smtp: sending %s to %s via %s", msg.Kind, msg.To, n.cfg.addr())

	if err := n.send(ctx, msg.To, n.compose(msg)); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "smtp delivery failed").
			WithMetadata(map[string]any{"kind": string(msg.Kind), "relay": n.cfg.addr()})
	}
	return nil
}

func (n *SMTPNotifier) compose(msg accounts.Message) []byte {
	from := n.cfg.From
	if n.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", n.cfg.FromName, n.cfg.From)
	}

	contentType := `text/plain; charset="UTF-8"`
	if n.cfg.HTML {
		contentType = `text/html; charset="UTF-8"`
	}

	return []byte(strings.Join([]string{
		"From: " + from,
		"To: " + msg.To,
		"Subject: " + msg.Subject,
		"MIME-Version: 1.0",
		"Content-Type: " + contentType,
		"",
		msg.Body,
	}, "\r\n"))
}

func (n *SMTPNotifier) send(ctx context.Context, to string, body []byte) error {
	conn, err := n.dial(ctx, "tcp", n.cfg.addr())
	if err != nil {
		return err
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(15 * time.Second)
	}
	_ = conn.SetDeadline(deadline)

	c, err := smtp.NewClient(conn, n.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer func() { _ = c.Quit() }()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: n.cfg.Host}); err != nil {
			return err
		}
	}

	if n.cfg.Username != "" {
		auth := smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
		if err := c.Auth(auth); err != nil {
			return err
		}
	}

	if err := c.Mail(n.cfg.From); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}

	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(body); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}
