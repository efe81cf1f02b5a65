package notify

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/mail"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomail "github.com/wneessen/go-mail"
)

type capturedMail struct {
	calls int
	raw   []byte
}

func newCapturingMailer(t *testing.T, sendErr error) (*SMTPMailer, *capturedMail) {
	t.Helper()
	captured := &capturedMail{}
	m := NewSMTPMailer("smtp.example.com", 587, "", "")
	m.now = func() time.Time { return time.Date(2026, 4, 2, 3, 0, 0, 0, time.UTC) }
	m.deliver = func(ctx context.Context, msg *gomail.Msg) error {
		captured.calls++
		var buf bytes.Buffer
		_, err := msg.WriteTo(&buf)
		require.NoError(t, err)
		captured.raw = buf.Bytes()
		return sendErr
	}
	return m, captured
}

func testMessage() Message {
	return Message{
		From:    mail.Address{Name: "Campus", Address: "noreply@campus.example.com"},
		To:      mail.Address{Name: "Ana Gómez", Address: "ana@campus.example.com"},
		Subject: "Reporte de sincronización",
		Text:    "plain body",
		HTML:    "<p>html body</p>",
	}
}

// ===== COMPOSITION TESTS =====

func TestSMTPMailer_ComposesAlternativeMessage(t *testing.T) {
	m, captured := newCapturingMailer(t, nil)

	require.NoError(t, m.Send(context.Background(), testMessage()))
	require.Equal(t, 1, captured.calls)

	msg, err := mail.ReadMessage(bytes.NewReader(captured.raw))
	require.NoError(t, err)

	from, err := mail.ParseAddress(msg.Header.Get("From"))
	require.NoError(t, err)
	assert.Equal(t, "noreply@campus.example.com", from.Address)
	to, err := mail.ParseAddress(msg.Header.Get("To"))
	require.NoError(t, err)
	assert.Equal(t, "ana@campus.example.com", to.Address)
	assert.Equal(t, "Ana Gómez", to.Name)

	subject, err := new(mime.WordDecoder).DecodeHeader(msg.Header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, "Reporte de sincronización", subject)
	assert.Equal(t, "auto-generated", msg.Header.Get("Auto-Submitted"))

	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/alternative", mediaType)

	mr := multipart.NewReader(msg.Body, params["boundary"])
	var kinds, bodies []string
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		kind, _, err := mime.ParseMediaType(p.Header.Get("Content-Type"))
		require.NoError(t, err)
		b, err := io.ReadAll(p)
		require.NoError(t, err)
		kinds = append(kinds, kind)
		bodies = append(bodies, strings.TrimSpace(string(b)))
	}
	assert.Equal(t, []string{"text/plain", "text/html"}, kinds)
	assert.Equal(t, []string{"plain body", "<p>html body</p>"}, bodies)
}

func TestSMTPMailer_Errors(t *testing.T) {
	t.Run("relay failure is wrapped", func(t *testing.T) {
		m, _ := newCapturingMailer(t, errors.New("554 rejected"))
		err := m.Send(context.Background(), testMessage())
		assert.ErrorContains(t, err, "554 rejected")
	})

	t.Run("missing recipient", func(t *testing.T) {
		m, captured := newCapturingMailer(t, nil)
		msg := testMessage()
		msg.To = mail.Address{}
		assert.Error(t, m.Send(context.Background(), msg))
		assert.Zero(t, captured.calls)
	})

	t.Run("cancelled context", func(t *testing.T) {
		m, captured := newCapturingMailer(t, nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, m.Send(ctx, testMessage()), context.Canceled)
		assert.Zero(t, captured.calls)
	})
}

// ===== DELIVERY TESTS =====

// silentRelay accepts connections and never sends a greeting.
func silentRelay(t *testing.T) (host string, port int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var conns []net.Conn
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			conns = append(conns, c)
		}
	}()
	t.Cleanup(func() {
		ln.Close()
		<-done
		for _, c := range conns {
			c.Close()
		}
	})

	addr := ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

func TestSMTPMailer_SilentRelayHonoursDeadline(t *testing.T) {
	host, port := silentRelay(t)
	m := NewSMTPMailer(host, port, "", "")

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	result := make(chan error, 1)
	start := time.Now()
	go func() { result <- m.Send(ctx, testMessage()) }()

	select {
	case err := <-result:
		assert.Error(t, err)
		assert.Less(t, time.Since(start), 3*time.Second)
	case <-time.After(5 * time.Second):
		t.Fatal("Send still blocked after the context deadline")
	}
}

func TestSMTPMailer_SilentRelayHonoursSessionTimeout(t *testing.T) {
	host, port := silentRelay(t)
	m := NewSMTPMailer(host, port, "", "")
	m.timeout = 300 * time.Millisecond

	result := make(chan error, 1)
	go func() { result <- m.Send(context.Background(), testMessage()) }()

	select {
	case err := <-result:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Send still blocked after the session timeout")
	}
}
