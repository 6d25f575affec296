package mail

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/smtp"
	"strings"
	"testing"
	"time"

	gomail "github.com/emersion/go-message/mail"

	"github.com/MrEthical07/shopauth"
)

type capture struct {
	addr string
	from string
	to   []string
	msg  []byte
	err  error
}

func (c *capture) send(_ context.Context, addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
	c.addr, c.from, c.to, c.msg = addr, from, to, msg
	return c.err
}

func newTestSender(c *capture) *Sender {
	s := NewSender(shopauth.MailConfig{
		Host:     "smtp.example.com",
		Port:     587,
		Username: "mailer",
		Password: "secret",
		From:     "noreply@example.com",
		FromName: "Shop",
	}, nil)
	s.send = c.send
	s.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return s
}

func TestConfirmationEmail(t *testing.T) {
	c := &capture{}
	s := newTestSender(c)
	link := "http://localhost:8080/Account/ConfirmEmail?userId=u1&code=abc"

	if err := s.SendConfirmationEmail(context.Background(), "alice@example.com", "Alice", link); err != nil {
		t.Fatalf("send: %v", err)
	}
	if c.addr != "smtp.example.com:587" || c.from != "noreply@example.com" {
		t.Fatalf("envelope = %s from %s", c.addr, c.from)
	}
	if len(c.to) != 1 || c.to[0] != "alice@example.com" {
		t.Fatalf("recipients = %v", c.to)
	}

	r, err := gomail.CreateReader(bytes.NewReader(c.msg))
	if err != nil {
		t.Fatalf("parse message: %v", err)
	}
	subject, err := r.Header.Subject()
	if err != nil || subject != "Confirm your account" {
		t.Fatalf("subject = %q, %v", subject, err)
	}
	part, err := r.NextPart()
	if err != nil {
		t.Fatalf("next part: %v", err)
	}
	body, _ := io.ReadAll(part.Body)
	// html/template escapes & in attribute values.
	if !strings.Contains(string(body), "userId=u1&amp;code=abc") {
		t.Fatalf("body missing link: %s", body)
	}
}

func TestResetEmailSubject(t *testing.T) {
	c := &capture{}
	s := newTestSender(c)
	if err := s.SendPasswordResetEmail(context.Background(), "bob@example.com", "Bob", "http://x/reset"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if !bytes.Contains(c.msg, []byte("Reset your password")) {
		t.Fatalf("subject missing: %s", c.msg)
	}
}

func TestSendFailures(t *testing.T) {
	down := errors.New("connection refused")
	s := newTestSender(&capture{err: down})
	if err := s.SendConfirmationEmail(context.Background(), "a@example.com", "A", "http://x"); !errors.Is(err, down) {
		t.Fatalf("expected smtp error, got %v", err)
	}

	unset := NewSender(shopauth.MailConfig{}, nil)
	if err := unset.SendConfirmationEmail(context.Background(), "a@example.com", "A", "http://x"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

// fakeSMTP accepts one connection and answers the minimal command set
// net/smtp needs. With silent set it never sends the greeting.
func fakeSMTP(t *testing.T, silent bool) (addr string, data <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	out := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		if silent {
			_, _ = io.Copy(io.Discard, conn)
			return
		}

		r := bufio.NewReader(conn)
		reply := func(line string) { _, _ = conn.Write([]byte(line + "\r\n")) }
		reply("220 fake ESMTP")
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			cmd := strings.ToUpper(strings.TrimSpace(line))
			switch {
			case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
				reply("250 fake")
			case strings.HasPrefix(cmd, "MAIL"), strings.HasPrefix(cmd, "RCPT"):
				reply("250 ok")
			case cmd == "DATA":
				reply("354 go ahead")
				var body strings.Builder
				for {
					l, err := r.ReadString('\n')
					if err != nil {
						return
					}
					if l == ".\r\n" {
						break
					}
					body.WriteString(l)
				}
				out <- body.String()
				reply("250 queued")
			case cmd == "QUIT":
				reply("221 bye")
				return
			default:
				reply("502 unsupported")
			}
		}
	}()
	return ln.Addr().String(), out
}

func TestSendMailDeliversOverSMTP(t *testing.T) {
	addr, data := fakeSMTP(t, false)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msg := []byte("Subject: hi\r\n\r\nhello\r\n")
	if err := sendMail(ctx, addr, nil, "noreply@example.com", []string{"alice@example.com"}, msg); err != nil {
		t.Fatalf("sendMail: %v", err)
	}
	select {
	case body := <-data:
		if !strings.Contains(body, "hello") {
			t.Fatalf("body = %q", body)
		}
	case <-time.After(time.Second):
		t.Fatal("server never received DATA")
	}
}

func TestSendMailHonorsContext(t *testing.T) {
	addr, _ := fakeSMTP(t, true)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := sendMail(ctx, addr, nil, "noreply@example.com", []string{"alice@example.com"}, []byte("x"))
	if err == nil {
		t.Fatal("expected error from a server that never greets")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("sendMail outlived its context: %s", elapsed)
	}

	cancelled, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	if err := sendMail(cancelled, addr, nil, "a@example.com", []string{"b@example.com"}, []byte("x")); err == nil {
		t.Fatal("expected error for a cancelled context")
	}
}
