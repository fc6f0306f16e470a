// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package email composes and sends the daily digest.
package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"log/slog"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/paper-digest/internal/acquire"
	"github.com/pdiddy/paper-digest/pkg/types"
)

const (
	DefaultHost = "smtp.gmail.com"
	DefaultPort = 465

	// DefaultSiteURL is the public site used in links when none is configured.
	DefaultSiteURL = "https://lianghsun.github.io/hf-papers-zh-tw"

	abstractRunes = 200
	maxTags       = 5
)

var digestTmpl = template.Must(template.New("digest").Parse(`<!DOCTYPE html>
<html>
<body style="max-width:700px;margin:0 auto;padding:24px;font-family:sans-serif;background:#fafafa;">
  <div style="margin-bottom:24px;padding-bottom:16px;border-bottom:2px solid #e5e7eb;">
    <h1 style="font-size:22px;margin:0 0 4px;">HF Papers 繁中 {{.Date}}</h1>
    <p style="color:#6b7280;margin:0;">今日共 {{len .Papers}} 篇論文 <a href="{{.DayURL}}" style="color:#2563eb;">查看完整頁面 →</a></p>
  </div>
{{range .Papers}}
  <div style="border:1px solid #e5e7eb;border-radius:8px;padding:16px 20px;margin-bottom:16px;">
    <div style="font-size:12px;color:#6b7280;">{{.ID}}</div>
    <div style="font-size:16px;font-weight:600;"><a href="{{.URL}}" style="color:#111827;text-decoration:none;">{{.Title}}</a></div>
    {{if .OriginalTitle}}<div style="font-size:13px;color:#6b7280;">{{.OriginalTitle}}</div>{{end}}
    <div style="font-size:14px;color:#374151;line-height:1.6;margin:8px 0;">{{.Abstract}}</div>
    <div>{{range .Tags}}<span style="background:#dbeafe;color:#1e40af;padding:2px 8px;border-radius:999px;font-size:12px;margin-right:4px;">{{.}}</span>{{end}}</div>
    <div style="font-size:13px;margin-top:8px;"><a href="{{.URL}}" style="color:#2563eb;margin-right:12px;">繁中全文 →</a><a href="{{.ArxivURL}}" style="color:#6b7280;">arXiv</a></div>
  </div>
{{end}}
  <div style="margin-top:24px;font-size:12px;text-align:center;"><a href="{{.SiteURL}}" style="color:#6b7280;">{{.SiteURL}}</a></div>
</body>
</html>
`))

// Message is a composed digest ready to send.
type Message struct {
	From    string
	To      []string
	Subject string
	Text    string
	HTML    string
}

type entry struct {
	ID            string
	Title         string
	OriginalTitle string
	Abstract      string
	Tags          []string
	URL           string
	ArxivURL      string
}

// Subject returns the digest subject line.
func Subject(date string, n int) string {
	return fmt.Sprintf("[HF Papers] %s 今日 %d 篇論文", date, n)
}

// Truncate shortens s to limit runes, appending "…" when cut.
func Truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "…"
}

// Compose builds the digest for papers. siteURL is the public site root.
func Compose(date string, papers []types.Paper, siteURL string) (Message, error) {
	if siteURL == "" {
		siteURL = DefaultSiteURL
	}
	siteURL = strings.TrimRight(siteURL, "/")
	dayURL := fmt.Sprintf("%s/%s/", siteURL, date)

	entries := make([]entry, 0, len(papers))
	for _, p := range papers {
		e := entry{
			ID:       p.ArxivID,
			Title:    p.DisplayTitle(),
			Abstract: Truncate(p.DisplayAbstract(), abstractRunes),
			URL:      fmt.Sprintf("%s/paper/%s/", siteURL, p.ArxivID),
			ArxivURL: acquire.AbsURL("", p.ArxivID),
		}
		if p.TitleZH != "" {
			e.OriginalTitle = p.Title
		}
		e.Tags = append(e.Tags, p.Tags.Domain...)
		e.Tags = append(e.Tags, p.Tags.Method...)
		if len(e.Tags) > maxTags {
			e.Tags = e.Tags[:maxTags]
		}
		entries = append(entries, e)
	}

	var buf bytes.Buffer
	err := digestTmpl.Execute(&buf, struct {
		Date    string
		DayURL  string
		SiteURL string
		Papers  []entry
	}{date, dayURL, siteURL, entries})
	if err != nil {
		return Message{}, fmt.Errorf("rendering digest: %w", err)
	}

	return Message{
		Subject: Subject(date, len(papers)),
		Text:    fmt.Sprintf("今日 %d 篇論文：%s", len(papers), dayURL),
		HTML:    buf.String(),
	}, nil
}

// Bytes renders m as a MIME multipart/alternative message.
func (m Message) Bytes() ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, part := range []struct{ ctype, content string }{
		{"text/plain; charset=utf-8", m.Text},
		{"text/html; charset=utf-8", m.HTML},
	} {
		w, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {part.ctype},
			"Content-Transfer-Encoding": {"quoted-printable"},
		})
		if err != nil {
			return nil, err
		}
		qp := quotedprintable.NewWriter(w)
		if _, err := qp.Write([]byte(part.content)); err != nil {
			return nil, err
		}
		if err := qp.Close(); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var out bytes.Buffer
	fmt.Fprintf(&out, "From: %s\r\n", m.From)
	fmt.Fprintf(&out, "To: %s\r\n", strings.Join(m.To, ", "))
	fmt.Fprintf(&out, "Subject: %s\r\n", mime.BEncoding.Encode("utf-8", m.Subject))
	fmt.Fprintf(&out, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	out.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&out, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", mw.Boundary())
	out.Write(body.Bytes())
	return out.Bytes(), nil
}

// SendFunc delivers raw message bytes. Tests replace it.
type SendFunc func(ctx context.Context, addr string, auth smtp.Auth, from string, to []string, msg []byte) error

// Sender sends digests over SMTP with implicit TLS.
type Sender struct {
	cfg     types.EmailConfig
	siteURL string
	send    SendFunc
	logger  *slog.Logger
}

// NewSender returns a Sender. A nil logger uses the default.
func NewSender(cfg types.EmailConfig, siteURL string, logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	return &Sender{cfg: cfg, siteURL: siteURL, send: sendTLS, logger: logger}
}

// Send composes and delivers the digest. It returns sent=false without an
// error when there are no papers or no credentials.
func (s *Sender) Send(ctx context.Context, date string, papers []types.Paper) (sent bool, err error) {
	if len(papers) == 0 {
		s.logger.Info("no papers, skipping email", "date", date)
		return false, nil
	}
	if s.cfg.User == "" || s.cfg.Password == "" || len(s.cfg.To) == 0 {
		s.logger.Info("email credentials not configured, skipping", "date", date)
		return false, nil
	}

	msg, err := Compose(date, papers, s.siteURL)
	if err != nil {
		return false, err
	}
	msg.From = s.cfg.User
	msg.To = s.cfg.To
	raw, err := msg.Bytes()
	if err != nil {
		return false, fmt.Errorf("encoding message: %w", err)
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	auth := smtp.PlainAuth("", s.cfg.User, s.cfg.Password, s.cfg.Host)
	s.logger.Info("sending digest", "to", strings.Join(s.cfg.To, ","), "papers", len(papers))
	if err := s.send(ctx, addr, auth, s.cfg.User, s.cfg.To, raw); err != nil {
		return false, fmt.Errorf("sending digest: %w", err)
	}
	return true, nil
}

func sendTLS(ctx context.Context, addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	dialer := &tls.Dialer{Config: &tls.Config{ServerName: host}}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", addr, err)
	}
	c, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	if err := c.Auth(auth); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("rcpt %s: %w", rcpt, err)
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
