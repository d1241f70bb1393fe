package accounts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// MessageKind identifies what a notification carries.
type MessageKind string

const (
	MessageVerification    MessageKind = "verification"
	MessageRegistrationKey MessageKind = "registration_key"
	MessagePasswordReset   MessageKind = "password_reset"
)

// Message is an outbound notification. Token and OTP hold the plaintext
// secrets delivered to the user; transports must not log them.
type Message struct {
	Kind      MessageKind `json:"kind"`
	AccountID int64       `json:"account_id"`
	To        string      `json:"to"`
	Name      string      `json:"name"`
	Subject   string      `json:"subject"`
	Body      string      `json:"body"`
	Link      string      `json:"link,omitempty"`
	Token     string      `json:"token,omitempty"`
	OTP       string      `json:"otp,omitempty"`
}

// Notifier delivers a message to its recipient.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, msg Message) error

// Send implements Notifier.
func (f NotifierFunc) Send(ctx context.Context, msg Message) error {
	if f == nil {
		return nil
	}
	return f(ctx, msg)
}

type noopNotifier struct{}

func (noopNotifier) Send(context.Context, Message) error { return nil }

// TemplateRenderer renders a named template, the fiber views contract.
type TemplateRenderer interface {
	Render(w io.Writer, name string, binding any, layout ...string) error
}

const (
	TemplateVerificationEmail    = "emails/verification"
	TemplateRegistrationKeyEmail = "emails/registration_key"
	TemplatePasswordResetEmail   = "emails/password_reset"
)

// MessageComposer builds notification bodies and links. Without a
// Renderer bodies fall back to plain text.
type MessageComposer struct {
	BaseURL  string
	AppName  string
	Renderer TemplateRenderer
}

// VerificationLink returns {base}/verify-email?email=&token=.
func (c MessageComposer) VerificationLink(email, token string) string {
	return c.link("/verify-email", email, token)
}

// PasswordResetLink returns {base}/reset-password?email=&token=.
func (c MessageComposer) PasswordResetLink(email, token string) string {
	return c.link("/reset-password", email, token)
}

func (c MessageComposer) link(path, email, token string) string {
	q := url.Values{}
	q.Set("email", email)
	q.Set("token", token)
	return strings.TrimRight(c.BaseURL, "/") + path + "?" + q.Encode()
}

func (c MessageComposer) appName() string {
	if c.AppName == "" {
		return "VerseHub"
	}
	return c.AppName
}

// Verification composes the email sent right after registration.
func (c MessageComposer) Verification(account *Account, token, otp string) (Message, error) {
	msg := Message{
		Kind:      MessageVerification,
		AccountID: account.ID,
		To:        account.Email,
		Name:      account.FirstName,
		Subject:   fmt.Sprintf("Verify your %s account", c.appName()),
		Link:      c.VerificationLink(account.Email, token),
		Token:     token,
		OTP:       otp,
	}

	fallback := fmt.Sprintf(
		"Hi %s,\n\nConfirm your email address by opening:\n%s\n\nYour one-time code is %s.\n",
		msg.Name, msg.Link, otp,
	)
	return c.render(msg, TemplateVerificationEmail, fallback)
}

// RegistrationKey composes the email carrying the registration key.
func (c MessageComposer) RegistrationKey(account *Account, key string) (Message, error) {
	msg := Message{
		Kind:      MessageRegistrationKey,
		AccountID: account.ID,
		To:        account.Email,
		Name:      account.FirstName,
		Subject:   fmt.Sprintf("Your %s registration key", c.appName()),
		Token:     key,
	}

	fallback := fmt.Sprintf(
		"Hi %s,\n\nYour email is verified. Your registration key is:\n%s\n",
		msg.Name, key,
	)
	return c.render(msg, TemplateRegistrationKeyEmail, fallback)
}

// PasswordReset composes the email carrying the reset link.
func (c MessageComposer) PasswordReset(account *Account, token string, window time.Duration) (Message, error) {
	msg := Message{
		Kind:      MessagePasswordReset,
		AccountID: account.ID,
		To:        account.Email,
		Name:      account.FirstName,
		Subject:   fmt.Sprintf("Reset your %s password", c.appName()),
		Link:      c.PasswordResetLink(account.Email, token),
		Token:     token,
	}

	fallback := fmt.Sprintf(
		"Hi %s,\n\nReset your password by opening:\n%s\n\nThe link expires in %s.\n",
		msg.Name, msg.Link, window,
	)
	return c.renderWith(msg, TemplatePasswordResetEmail, fallback, map[string]any{
		"expires_in": window.String(),
	})
}

func (c MessageComposer) render(msg Message, name, fallback string) (Message, error) {
	return c.renderWith(msg, name, fallback, nil)
}

func (c MessageComposer) renderWith(msg Message, name, fallback string, extra map[string]any) (Message, error) {
	if c.Renderer == nil {
		msg.Body = fallback
		return msg, nil
	}

	binding := map[string]any{
		"app_name": c.appName(),
		"name":     msg.Name,
		"email":    msg.To,
		"link":     msg.Link,
		"token":    msg.Token,
		"otp":      msg.OTP,
	}
	for k, v := range extra {
		binding[k] = v
	}

	var buf bytes.Buffer
	if err := c.Renderer.Render(&buf, name, binding); err != nil {
		return msg, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to render email template").
			WithMetadata(map[string]any{"template": name})
	}
	msg.Body = buf.String()
	return msg, nil
}

// deliver sends msg after the surrounding transaction committed. Failures
// are logged and recorded as notification.failed, never returned.
func (d *Dependencies) deliver(ctx context.Context, msg Message, compose error) {
	err := compose
	if err == nil {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.NotifyTimeout)
		err = d.Notifier.Send(sendCtx, msg)
		cancel()
	}

	if err == nil {
		d.Logger.Debug("notification %s sent to account %d", msg.Kind, msg.AccountID)
		return
	}

	d.Logger.Error("%s: %s for account %d: %v", ErrNotificationFailure.Message, msg.Kind, msg.AccountID, err)
	recordActivity(ctx, d.Activity, d.Logger, d.Clock, ActivityEvent{
		EventType: ActivityEventNotificationFailed,
		Actor:     accountActor(msg.AccountID),
		AccountID: msg.AccountID,
		Metadata: map[string]any{
			"kind":      string(msg.Kind),
			"error":     err.Error(),
			"text_code": TextCodeNotificationFailed,
		},
	})
}
