// Package mail sends account emails over SMTP.
package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/smtp"
	"strconv"
	"time"

	gomail "github.com/emersion/go-message/mail"
	"go.uber.org/zap"

	"github.com/MrEthical07/shopauth"
)

// ErrNotConfigured is returned when no SMTP host is set.
var ErrNotConfigured = errors.New("smtp host is not configured")

var (
	confirmationTmpl = template.Must(template.New("confirmation").Parse(
		`<p>Hello {{.Name}},</p>
<p>Please confirm your account by <a href="{{.Link}}">clicking here</a>.</p>
<p>If you did not create an account you can ignore this message.</p>`))

	resetTmpl = template.Must(template.New("reset").Parse(
		`<p>Hello {{.Name}},</p>
<p>Reset your password by <a href="{{.Link}}">clicking here</a>.</p>
<p>If you did not ask for a reset you can ignore this message.</p>`))
)

// sessionTimeout bounds one SMTP conversation when ctx has no deadline.
const sessionTimeout = 30 * time.Second

type sendFunc func(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Sender implements shopauth.Mailer.
type Sender struct {
	cfg    shopauth.MailConfig
	send   sendFunc
	logger *zap.Logger
	now    func() time.Time
}

// NewSender returns a Sender for cfg.
func NewSender(cfg shopauth.MailConfig, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{
		cfg:    cfg,
		send:   sendMail,
		logger: logger.Named("mail"),
		now:    time.Now,
	}
}

// SendConfirmationEmail sends the email confirmation link.
func (s *Sender) SendConfirmationEmail(ctx context.Context, to, name, link string) error {
	return s.deliver(ctx, to, "Confirm your account", confirmationTmpl, name, link)
}

// SendPasswordResetEmail sends the password reset link.
func (s *Sender) SendPasswordResetEmail(ctx context.Context, to, name, link string) error {
	return s.deliver(ctx, to, "Reset your password", resetTmpl, name, link)
}

func (s *Sender) deliver(ctx context.Context, to, subject string, tmpl *template.Template, name, link string) error {
	if s.cfg.Host == "" {
		return ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := s.compose(to, subject, tmpl, name, link)
	if err != nil {
		return fmt.Errorf("compose %q: %w", subject, err)
	}

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	if err := s.send(ctx, addr, auth, s.cfg.From, []string{to}, msg); err != nil {
		s.logger.Warn("smtp send failed", zap.String("subject", subject), zap.String("addr", addr), zap.Error(err))
		return err
	}
	s.logger.Debug("mail sent", zap.String("subject", subject))
	return nil
}

func (s *Sender) compose(to, subject string, tmpl *template.Template, name, link string) ([]byte, error) {
	var h gomail.Header
	h.SetDate(s.now())
	h.SetAddressList("From", []*gomail.Address{{Name: s.cfg.FromName, Address: s.cfg.From}})
	h.SetAddressList("To", []*gomail.Address{{Name: name, Address: to}})
	h.SetSubject(subject)
	h.SetContentType("text/html", map[string]string{"charset": "utf-8"})
	if err := h.GenerateMessageID(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w, err := gomail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, err
	}
	if err := tmpl.Execute(w, struct{ Name, Link string }{name, link}); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// sendMail is smtp.SendMail with the dial and the whole conversation bound
// to ctx. Cancelling ctx mid-session expires the connection deadline.
func sendMail(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(sessionTimeout)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	if err := conn.SetDeadline(deadline); err != nil {
		_ = conn.Close()
		return err
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	c, err := smtp.NewClient(conn, host)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return err
		}
	}
	if a != nil {
		if ok, _ := c.Extension("AUTH"); !ok {
			return errors.New("smtp: server doesn't support AUTH")
		}
		if err := c.Auth(a); err != nil {
			return err
		}
	}
	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}
