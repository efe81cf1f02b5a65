package notify

import (
	"context"
	"fmt"
	"net"
	"net/mail"
	"time"

	gomail "github.com/wneessen/go-mail"
)

// DefaultSMTPTimeout bounds one SMTP session when the caller's context has
// no earlier deadline.
const DefaultSMTPTimeout = 30 * time.Second

// Message is one e-mail to one recipient.
type Message struct {
	From    mail.Address
	To      mail.Address
	Subject string
	Text    string
	HTML    string
}

// Mailer delivers messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPMailer sends multipart/alternative messages through an SMTP relay.
type SMTPMailer struct {
	host     string
	port     int
	username string
	password string
	timeout  time.Duration
	now      func() time.Time
	deliver  func(ctx context.Context, msg *gomail.Msg) error
}

// NewSMTPMailer uses PLAIN auth when username is set. STARTTLS is used
// whenever the relay offers it.
func NewSMTPMailer(host string, port int, username, password string) *SMTPMailer {
	m := &SMTPMailer{
		host:     host,
		port:     port,
		username: username,
		password: password,
		timeout:  DefaultSMTPTimeout,
		now:      time.Now,
	}
	m.deliver = m.dialAndSend
	return m
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg.To.Address == "" {
		return fmt.Errorf("notify: message has no recipient")
	}

	gm, err := m.compose(msg)
	if err != nil {
		return err
	}
	if err := m.deliver(ctx, gm); err != nil {
		return fmt.Errorf("notify: sending to %s: %w", msg.To.Address, err)
	}
	return nil
}

func (m *SMTPMailer) compose(msg Message) (*gomail.Msg, error) {
	gm := gomail.NewMsg()
	if err := gm.FromFormat(msg.From.Name, msg.From.Address); err != nil {
		return nil, fmt.Errorf("notify: sender %q: %w", msg.From.Address, err)
	}
	if err := gm.AddToFormat(msg.To.Name, msg.To.Address); err != nil {
		return nil, fmt.Errorf("notify: recipient %q: %w", msg.To.Address, err)
	}
	gm.Subject(msg.Subject)
	gm.SetDateWithValue(m.now())
	gm.SetGenHeader(gomail.Header("Auto-Submitted"), "auto-generated")
	gm.SetBodyString(gomail.TypeTextPlain, msg.Text)
	gm.AddAlternativeString(gomail.TypeTextHTML, msg.HTML)
	return gm, nil
}

func (m *SMTPMailer) dialAndSend(ctx context.Context, msg *gomail.Msg) error {
	opts := []gomail.Option{
		gomail.WithPort(m.port),
		gomail.WithTimeout(m.timeout),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
		gomail.WithDialContextFunc(m.dialer(ctx)),
	}
	if m.username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(m.username),
			gomail.WithPassword(m.password),
		)
	}

	client, err := gomail.NewClient(m.host, opts...)
	if err != nil {
		return fmt.Errorf("creating smtp client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}

// dialer opens connections whose every read and write fails once parent's
// deadline, or the session timeout, has passed. A relay that accepts the
// connection and never answers cannot hold the caller beyond that point.
func (m *SMTPMailer) dialer(parent context.Context) gomail.DialContextFunc {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		d := net.Dialer{Timeout: m.timeout}
		conn, err := d.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		deadline := time.Now().Add(m.timeout)
		if dl, ok := parent.Deadline(); ok && dl.Before(deadline) {
			deadline = dl
		}
		if err := conn.SetDeadline(deadline); err != nil {
			conn.Close()
			return nil, err
		}
		return conn, nil
	}
}
