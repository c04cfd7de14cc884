package smtp

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyllective/egress0r/internal/core/model"
	"github.com/cyllective/egress0r/internal/core/payload"
)

// fakeMTA 记录收到的信封与正文的最小 SMTP 服务器
type fakeMTA struct {
	ln       net.Listener
	mu       sync.Mutex
	from     string
	rcpt     []string
	data     string
	commands []string
}

func newFakeMTA(t *testing.T) *fakeMTA {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &fakeMTA{ln: ln}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go s.handle(conn)
		}
	}()
	return s
}

func (s *fakeMTA) port() int { return s.ln.Addr().(*net.TCPAddr).Port }

func (s *fakeMTA) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	reply := func(line string) { fmt.Fprintf(conn, "%s\r\n", line) }
	reply("220 fake.test ESMTP")

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		verb := strings.ToUpper(strings.SplitN(line, " ", 2)[0])
		s.mu.Lock()
		s.commands = append(s.commands, verb)
		s.mu.Unlock()

		switch verb {
		case "EHLO":
			reply("250-fake.test")
			reply("250 8BITMIME")
		case "MAIL":
			s.mu.Lock()
			s.from = line
			s.mu.Unlock()
			reply("250 OK")
		case "RCPT":
			s.mu.Lock()
			s.rcpt = append(s.rcpt, line)
			s.mu.Unlock()
			reply("250 OK")
		case "DATA":
			reply("354 End data with <CR><LF>.<CR><LF>")
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
			s.mu.Lock()
			s.data = body.String()
			s.mu.Unlock()
			reply("250 OK queued")
		case "QUIT":
			reply("221 Bye")
			return
		default:
			reply("250 OK")
		}
	}
}

func smtpPayload(t *testing.T, content, mode string) *payload.SMTPPayload {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "smtp.bin"), []byte(content), 0o644))
	p, err := payload.NewSMTPPayload(dir, "smtp.bin", mode, payload.ModeText)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func baseSettings() Settings {
	return Settings{
		Host:     "127.0.0.1",
		FromAddr: "egress0r@example.test",
		ToAddr:   "collector@example.test",
		Subject:  "exfil",
		Message:  "msg",
		Timeout:  2 * time.Second,
	}
}

func TestBuildMessage_Inline(t *testing.T) {
	c, err := New(baseSettings(), smtpPayload(t, "payload", payload.ExfilInline))
	require.NoError(t, err)

	m, err := c.BuildMessage()
	require.NoError(t, err)
	assert.Empty(t, m.GetAttachments())

	parts := m.GetParts()
	require.Len(t, parts, 1)
	content, err := parts[0].GetContent()
	require.NoError(t, err)
	assert.Equal(t, "msg\r\rpayload", string(content))
}

func TestBuildMessage_Attachment(t *testing.T) {
	c, err := New(baseSettings(), smtpPayload(t, "\x00\x01binary", payload.ExfilAttachment))
	require.NoError(t, err)

	m, err := c.BuildMessage()
	require.NoError(t, err)
	attachments := m.GetAttachments()
	require.Len(t, attachments, 1)
	assert.Equal(t, "smtp.bin", attachments[0].Name)

	var buf bytes.Buffer
	_, err = m.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `filename="smtp.bin"`)
	assert.Contains(t, buf.String(), "attachment")
	assert.Contains(t, buf.String(), "Subject: exfil")
}

func TestBuildMessage_InvalidAddress(t *testing.T) {
	s := baseSettings()
	s.FromAddr = "not an address"
	c, err := New(s, smtpPayload(t, "x", payload.ExfilInline))
	require.NoError(t, err)

	_, err = c.BuildMessage()
	assert.Error(t, err)
}

func TestSMTPCheck_Send(t *testing.T) {
	mta := newFakeMTA(t)
	s := baseSettings()
	s.Port = mta.port()
	c, err := New(s, smtpPayload(t, "payload", payload.ExfilInline))
	require.NoError(t, err)

	var msgs []model.Message
	for m := range c.Outcomes(context.Background()) {
		msgs = append(msgs, m)
	}
	require.Len(t, msgs, 1)
	assert.Equal(t, model.MessagePositive, msgs[0].Type)
	assert.Equal(t, "Exfiltrated 7 bytes", msgs[0].Text)

	mta.mu.Lock()
	defer mta.mu.Unlock()
	assert.Contains(t, mta.from, "<egress0r@example.test>")
	require.Len(t, mta.rcpt, 1)
	assert.Contains(t, mta.rcpt[0], "<collector@example.test>")
	assert.Contains(t, mta.data, "payload")
	assert.NotContains(t, mta.commands, "STARTTLS")
	assert.NotContains(t, mta.commands, "AUTH")
}

func TestSMTPCheck_TLSMandatoryWithoutSTARTTLS(t *testing.T) {
	mta := newFakeMTA(t)
	s := baseSettings()
	s.Port = mta.port()
	s.Encryption = EncryptionTLS
	c, err := New(s, smtpPayload(t, "payload", payload.ExfilInline))
	require.NoError(t, err)

	ok, err := c.Exfil(context.Background())
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrSend)
}

func TestSMTPCheck_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	s := baseSettings()
	s.Port = port
	c, err := New(s, smtpPayload(t, "payload", payload.ExfilInline))
	require.NoError(t, err)

	var msgs []model.Message
	for m := range c.Outcomes(context.Background()) {
		msgs = append(msgs, m)
	}
	require.Len(t, msgs, 1)
	assert.Equal(t, model.MessageNegative, msgs[0].Type)
	assert.Equal(t, "Failed to exfiltrate data", msgs[0].Text)
	assert.Equal(t, "127.0.0.1:"+strconv.Itoa(port), c.address())
}

func TestNew_Validation(t *testing.T) {
	s := baseSettings()
	s.Encryption = "starttls"
	_, err := New(s, smtpPayload(t, "x", payload.ExfilInline))
	assert.ErrorIs(t, err, model.ErrInvalidConfig)

	_, err = New(baseSettings(), nil)
	assert.ErrorIs(t, err, model.ErrInvalidConfig)

	for _, enc := range []string{"none", "", "NONE", "tls", "ssl"} {
		s = baseSettings()
		s.Encryption = enc
		_, err = New(s, smtpPayload(t, "x", payload.ExfilInline))
		assert.NoError(t, err, enc)
	}

	// 错误信息中列出的取值都能通过校验
	s = baseSettings()
	s.Encryption = "starttls"
	_, err = New(s, smtpPayload(t, "x", payload.ExfilInline))
	var cfgErr *model.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, []string{"none", "tls", "ssl"}, cfgErr.Allowed)
	for _, enc := range cfgErr.Allowed {
		s = baseSettings()
		s.Encryption = enc
		_, err = New(s, smtpPayload(t, "x", payload.ExfilInline))
		assert.NoError(t, err, enc)
	}

	c, err := New(Settings{Host: "mail.example.test"}, smtpPayload(t, "x", payload.ExfilInline))
	require.NoError(t, err)
	assert.Equal(t, EncryptionNone, c.settings.Encryption)
	assert.Equal(t, DefaultPort, c.settings.Port)
	assert.Equal(t, DefaultTimeout, c.settings.Timeout)
	assert.Equal(t, model.CheckSMTP, c.Name())
}
