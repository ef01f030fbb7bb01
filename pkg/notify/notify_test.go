package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSMTPConfigFromEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("SMTP_HOST", "mail.example.com")
	t.Setenv("SMTP_PORT", "465")
	t.Setenv("SMTP_USE_TLS", "0")
	t.Setenv("SMTP_USER", "bot@example.com")
	t.Setenv("SMTP_PASS", "secret")
	t.Setenv("SMTP_TO", " a@example.com, ,b@example.com ")

	cfg := SMTPConfigFromEnv()
	require.True(t, cfg.Complete())
	require.Equal(t, []string{"a@example.com", "b@example.com"}, cfg.To)
	require.Equal(t, "tls", cfg.Mode())
	require.Equal(t, 25*time.Second, cfg.Timeout)
}

func TestSMTPConfigFromDotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SMTP_TO=ops@example.com\n"), 0o644))
	t.Setenv("SMTP_TO", "")
	os.Unsetenv("SMTP_TO")

	cfg := SMTPConfigFromEnv()
	require.Equal(t, []string{"ops@example.com"}, cfg.To)
	require.Equal(t, "smtp.gmail.com", cfg.Host)
	require.False(t, cfg.Complete(), "user and password are still missing")
}

func TestSMTPMode(t *testing.T) {
	require.Equal(t, "starttls", SMTPConfig{Port: 587, UseTLS: true}.Mode())
	require.Equal(t, "plain", SMTPConfig{Port: 587}.Mode())
	require.Equal(t, "tls", SMTPConfig{Port: 465}.Mode())
	require.Equal(t, "plain", SMTPConfig{Port: 25, UseTLS: true}.Mode())
}

func TestSMTPAuthOnlyOverEncryptedModes(t *testing.T) {
	cfg := SMTPConfig{Host: "mail.example.com", User: "u", Pass: "p", To: []string{"a@example.com"}}

	cfg.Port = 25
	require.Nil(t, NewSMTP(cfg, nil).auth())
	cfg.Port, cfg.UseTLS = 587, true
	require.NotNil(t, NewSMTP(cfg, nil).auth())
	cfg.Port = 465
	require.NotNil(t, NewSMTP(cfg, nil).auth())
}

// fakeRelay accepts one unauthenticated message and hands back its data.
func fakeRelay(t *testing.T) (string, <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	data := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		tp := textproto.NewConn(conn)
		_ = tp.PrintfLine("220 relay ESMTP")
		for {
			line, err := tp.ReadLine()
			if err != nil {
				return
			}
			switch strings.ToUpper(strings.SplitN(line, " ", 2)[0]) {
			case "EHLO":
				_ = tp.PrintfLine("250-relay")
				_ = tp.PrintfLine("250 8BITMIME")
			case "DATA":
				_ = tp.PrintfLine("354 go ahead")
				b, err := tp.ReadDotBytes()
				if err != nil {
					return
				}
				data <- string(b)
				_ = tp.PrintfLine("250 queued")
			case "QUIT":
				_ = tp.PrintfLine("221 bye")
				return
			default:
				_ = tp.PrintfLine("250 ok")
			}
		}
	}()
	return ln.Addr().String(), data
}

func TestSMTPPlainModeSendsWithoutAuth(t *testing.T) {
	addr, data := fakeRelay(t)
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	s := NewSMTP(SMTPConfig{
		Host:    host,
		Port:    port,
		User:    "bot@example.com",
		Pass:    "secret",
		To:      []string{"ops@example.com"},
		Timeout: 5 * time.Second,
	}, nil)
	require.Equal(t, "plain", s.cfg.Mode())

	require.NoError(t, s.Notify(context.Background(), Message{Subject: "Run summary", Body: "nothing new"}))
	select {
	case got := <-data:
		require.Contains(t, got, "Subject: Run summary")
	case <-time.After(5 * time.Second):
		t.Fatal("relay received no message")
	}
}

func TestSMTPBuildSkipsMissingAttachments(t *testing.T) {
	dir := t.TempDir()
	report := filepath.Join(dir, "new_changes_2025-01-01.csv")
	require.NoError(t, os.WriteFile(report, []byte("a,b\n"), 0o644))

	s := NewSMTP(SMTPConfig{User: "bot@example.com", To: []string{"a@example.com"}}, nil)
	e := s.build(Message{Subject: "s", Body: "b", Attachments: []string{report, filepath.Join(dir, "missing.csv")}})
	require.Len(t, e.Attachments, 1)
	require.Equal(t, "bot@example.com", e.From)
}

func TestWebhookPostsSummary(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL, nil).Notify(context.Background(), Message{
		Subject: "subject", Body: "body", Attachments: []string{"/tmp/out/new_changes_2025-01-01.csv"},
	})
	require.NoError(t, err)
	require.Equal(t, webhookPayload{Subject: "subject", Body: "body", Attachments: []string{"new_changes_2025-01-01.csv"}}, got)
}

func TestWebhookReportsFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("<html><title>Forbidden</title></html>"))
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL, nil).Notify(context.Background(), Message{Subject: "s"})
	require.EqualError(t, err, "webhook: status 403 (Forbidden)")
}

type countingNotifier struct {
	calls int32
	err   error
}

func (c *countingNotifier) Notify(ctx context.Context, msg Message) error {
	atomic.AddInt32(&c.calls, 1)
	return c.err
}

func TestMultiAndDeliver(t *testing.T) {
	ok := &countingNotifier{}
	bad := &countingNotifier{err: errors.New("boom")}
	m := Multi{bad, ok}

	require.EqualError(t, m.Notify(context.Background(), Message{}), "boom")
	require.EqualValues(t, 1, ok.calls, "a failing notifier must not stop the others")

	Deliver(context.Background(), m, Message{}, nil)
	Deliver(context.Background(), Multi{}, Message{}, nil)
	require.EqualValues(t, 2, ok.calls)
}

// chdir changes the working directory for the duration of the test,
// mirroring testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}
