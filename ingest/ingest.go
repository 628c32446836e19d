// SPDX-License-Identifier: GPL-3.0-or-later
package ingest

import (
	"bytes"
	"mime"
	stdmail "net/mail"
	"strings"
	"time"

	"github.com/halverson/go-imap-mirror/domain"
	"github.com/halverson/go-imap-mirror/log"

	"github.com/emersion/go-message/charset"
	"github.com/jhillyerd/enmime"
	"github.com/sirupsen/logrus"
)

const (
	FallbackSubject   = "[No Subject]"
	FallbackSender    = "Unknown Sender"
	FallbackRecipient = "Unknown Recipient"
	FallbackBody      = "Could not load email content."

	PreviewLength = 300
)

// Ingestor turns one raw transport-level message into a structured record.
// It never fails hard: any parse fault degrades the affected field to its
// defined fallback. Identity fields (account, folder, uid) are the caller's
// to fill in.
type Ingestor struct {
	classifier domain.Classifier

	l *logrus.Logger
}

func NewIngestor(classifier domain.Classifier) *Ingestor {
	return &Ingestor{
		classifier: classifier,
		l:          log.Logger(log.LOG_INGEST),
	}
}

func (in *Ingestor) Ingest(raw []byte) *domain.MailRecord {
	record := &domain.MailRecord{
		Subject:    FallbackSubject,
		Sender:     FallbackSender,
		Recipient:  FallbackRecipient,
		ReceivedAt: time.Now().UTC(),
	}

	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		in.l.WithField("error", err).Warn("Could not parse message, degrading to header scan")
		in.scanRawHeaders(raw, record)
		record.Body = FallbackBody
		record.Preview = FallbackBody
		record.Classification = in.classifier.Classify("", "")
		return record
	}

	if subject := strings.TrimSpace(env.GetHeader("Subject")); subject != "" {
		record.Subject = subject
	}

	if from, err := env.AddressList("From"); err == nil && len(from) > 0 && from[0].Address != "" {
		record.Sender = from[0].Address
	}

	if to, err := env.AddressList("To"); err == nil && len(to) > 0 {
		addresses := make([]string, 0, len(to))
		for _, a := range to {
			if a.Address != "" {
				addresses = append(addresses, a.Address)
			}
		}
		if len(addresses) > 0 {
			record.Recipient = strings.Join(addresses, ", ")
		}
	}

	record.MessageId = strings.Trim(strings.TrimSpace(env.GetHeader("Message-Id")), "<>")

	if date, err := stdmail.ParseDate(env.GetHeader("Date")); err == nil {
		record.ReceivedAt = date
	}

	record.BodyText = env.Text
	record.BodyHTML = env.HTML

	// Plaintext is canonical; HTML only when no text part exists.
	switch {
	case record.BodyText != "":
		record.Body = record.BodyText
	case record.BodyHTML != "":
		record.Body = record.BodyHTML
	default:
		record.Body = FallbackBody
	}
	record.Preview = preview(record.Body)

	record.Classification = in.classifier.Classify(record.BodyHTML, record.BodyText)

	return record
}

// scanRawHeaders is the degraded path for messages enmime rejects outright:
// a plain header parse with charset-aware word decoding, body left to the
// caller's fallback.
func (in *Ingestor) scanRawHeaders(raw []byte, record *domain.MailRecord) {
	msg, err := stdmail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return
	}

	dec := &mime.WordDecoder{
		CharsetReader: charset.Reader,
	}
	if subject, err := dec.DecodeHeader(msg.Header.Get("Subject")); err == nil && strings.TrimSpace(subject) != "" {
		record.Subject = subject
	}

	if from := msg.Header.Get("From"); from != "" {
		if addr, err := stdmail.ParseAddress(from); err == nil {
			record.Sender = addr.Address
		}
	}

	record.MessageId = strings.Trim(strings.TrimSpace(msg.Header.Get("Message-Id")), "<>")

	if date, err := msg.Header.Date(); err == nil {
		record.ReceivedAt = date
	}
}

func preview(body string) string {
	runes := []rune(body)
	if len(runes) > PreviewLength {
		return string(runes[:PreviewLength])
	}
	return body
}
