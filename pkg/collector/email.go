package collector

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"sort"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
)

// EmailCollector sends a notification mail per submission.
type EmailCollector struct {
	host     string
	port     int
	username string
	password string
	from     string
	to       string

	// sendMail is swappable for tests
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailCollector creates a collector that mails each submission
func NewEmailCollector(host string, port int, username, password, from, to string) *EmailCollector {
	if port == 0 {
		port = 587
	}
	return &EmailCollector{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		to:       to,
		sendMail: smtp.SendMail,
	}
}

// Submit mails the answers to the configured recipient
func (c *EmailCollector) Submit(ctx context.Context, formID string, answers map[string]string) (string, error) {
	submissionID := uuid.New().String()

	msg, err := c.buildMessage(formID, submissionID, answers)
	if err != nil {
		return "", fmt.Errorf("failed to build notification mail: %w", err)
	}

	var auth smtp.Auth
	if c.username != "" {
		auth = smtp.PlainAuth("", c.username, c.password, c.host)
	}

	addr := fmt.Sprintf("%s:%d", c.host, c.port)
	if err := c.sendMail(addr, auth, c.from, []string{c.to}, msg); err != nil {
		return "", fmt.Errorf("failed to send notification mail: %w", err)
	}

	return submissionID, nil
}

func (c *EmailCollector) buildMessage(formID, submissionID string, answers map[string]string) ([]byte, error) {
	var buf bytes.Buffer

	var h mail.Header
	h.SetDate(time.Now())
	h.SetAddressList("From", []*mail.Address{{Address: c.from}})
	h.SetAddressList("To", []*mail.Address{{Address: c.to}})
	h.SetSubject(fmt.Sprintf("New voice form submission: %s", formID))

	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, err
	}

	// Stable key order so the mail body is deterministic.
	keys := make([]string, 0, len(answers))
	for k := range answers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintf(w, "Submission %s for form %s\n\n", submissionID, formID)
	for _, k := range keys {
		fmt.Fprintf(w, "%s: %s\n", k, answers[k])
	}

	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
