package providers

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// htmlTagPattern decides whether a rendered body is sent as text/html.
var htmlTagPattern = regexp.MustCompile(`<[^>]+>`)

// GmailSMTPServer delivers email over an authenticated SMTP submission
// port with STARTTLS. Despite the name it works against any SMTP host;
// Gmail is simply the account most tenants configure.
type GmailSMTPServer struct {
	cfg Config
}

// NewGmailSMTPServer builds the adapter from a provider config.
func NewGmailSMTPServer(cfg Config) (Adapter, error) {
	return &GmailSMTPServer{cfg: cfg}, nil
}

// Name returns the registered class name.
func (p *GmailSMTPServer) Name() string { return "GmailSMTPServer" }

// ValidateConfig checks for the SMTP connection keys.
func (p *GmailSMTPServer) ValidateConfig() error {
	if missing := p.cfg.MissingKeys("host", "port", "sender", "password"); len(missing) > 0 {
		return fmt.Errorf("missing config keys: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Send submits the message for recipients plus any cc and bcc addresses.
func (p *GmailSMTPServer) Send(ctx context.Context, recipients []string, msg *Message) (*SendResult, error) {
	host := p.cfg.String("host")
	addr := net.JoinHostPort(host, strconv.Itoa(p.cfg.Int("port")))

	from := msg.From
	if from == "" {
		from = p.cfg.String("sender")
	}

	raw, err := buildMIMEMessage(from, recipients, msg)
	if err != nil {
		return &SendResult{Status: OutcomeFailed}, err
	}

	dialer := &net.Dialer{Timeout: 30 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return &SendResult{Status: OutcomeFailed}, fmt.Errorf("connect to %s: %w", addr, err)
	}

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return &SendResult{Status: OutcomeFailed}, fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return &SendResult{Status: OutcomeFailed}, fmt.Errorf("starttls: %w", err)
		}
	}

	auth := smtp.PlainAuth("", p.cfg.String("sender"), p.cfg.String("password"), host)
	if err := client.Auth(auth); err != nil {
		return &SendResult{Status: OutcomeFailed}, fmt.Errorf("smtp auth: %w", err)
	}

	if err := client.Mail(p.cfg.String("sender")); err != nil {
		return &SendResult{Status: OutcomeFailed}, fmt.Errorf("mail from: %w", err)
	}
	envelope := make([]string, 0, len(recipients)+len(msg.CC)+len(msg.BCC))
	envelope = append(envelope, recipients...)
	envelope = append(envelope, msg.CC...)
	envelope = append(envelope, msg.BCC...)
	for _, rcpt := range envelope {
		if err := client.Rcpt(rcpt); err != nil {
			return &SendResult{Status: OutcomeFailed}, fmt.Errorf("rcpt to %s: %w", rcpt, err)
		}
	}

	writer, err := client.Data()
	if err != nil {
		return &SendResult{Status: OutcomeFailed}, fmt.Errorf("smtp data: %w", err)
	}
	if _, err := writer.Write(raw); err != nil {
		return &SendResult{Status: OutcomeFailed}, fmt.Errorf("write message: %w", err)
	}
	if err := writer.Close(); err != nil {
		return &SendResult{Status: OutcomeFailed}, fmt.Errorf("finish message: %w", err)
	}
	_ = client.Quit()

	return &SendResult{Status: OutcomeSent}, nil
}

// buildMIMEMessage assembles a multipart/mixed message with the body as the
// first part and each attachment path read from disk and base64-encoded.
func buildMIMEMessage(from string, recipients []string, msg *Message) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := func(key, value string) {
		fmt.Fprintf(&buf, "%s: %s\r\n", key, value)
	}
	header("From", from)
	header("To", strings.Join(recipients, ", "))
	if len(msg.CC) > 0 {
		header("Cc", strings.Join(msg.CC, ", "))
	}
	if msg.ReplyTo != "" {
		header("Reply-To", msg.ReplyTo)
	}
	header("Subject", msg.Subject)
	header("Date", time.Now().Format(time.RFC1123Z))
	header("MIME-Version", "1.0")
	header("Content-Type", fmt.Sprintf("multipart/mixed; boundary=%q", mw.Boundary()))
	buf.WriteString("\r\n")

	bodyHeader := textproto.MIMEHeader{}
	if htmlTagPattern.MatchString(msg.Body) {
		bodyHeader.Set("Content-Type", "text/html; charset=utf-8")
	} else {
		bodyHeader.Set("Content-Type", "text/plain; charset=utf-8")
	}
	part, err := mw.CreatePart(bodyHeader)
	if err != nil {
		return nil, fmt.Errorf("create body part: %w", err)
	}
	if _, err := part.Write([]byte(msg.Body)); err != nil {
		return nil, fmt.Errorf("write body part: %w", err)
	}

	for _, path := range msg.Attachments {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read attachment %s: %w", path, err)
		}
		name := filepath.Base(path)
		attachmentHeader := textproto.MIMEHeader{}
		attachmentHeader.Set("Content-Type", fmt.Sprintf("application/octet-stream; name=%q", name))
		attachmentHeader.Set("Content-Transfer-Encoding", "base64")
		attachmentHeader.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		part, err := mw.CreatePart(attachmentHeader)
		if err != nil {
			return nil, fmt.Errorf("create attachment part: %w", err)
		}
		if _, err := part.Write([]byte(base64.StdEncoding.EncodeToString(data))); err != nil {
			return nil, fmt.Errorf("write attachment part: %w", err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("finish mime message: %w", err)
	}
	return buf.Bytes(), nil
}
