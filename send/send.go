// SPDX-License-Identifier: GPL-3.0-or-later
package send

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/halverson/go-imap-mirror/domain"
	"github.com/halverson/go-imap-mirror/log"

	"github.com/sirupsen/logrus"
)

const previewLength = 300

// OutgoingMail is one message to be submitted via SMTP.
type OutgoingMail struct {
	To      []string
	Cc      []string
	Bcc     []string
	Subject string
	Body    string
	HTML    bool
}

// Sender submits mail over the account's SMTP endpoint and mirrors a local
// copy into the sent folder. The copy carries uid 0 until a later sync
// confirms it against the server; a failure to store it never fails the send.
type Sender struct {
	persistence domain.Persistence
	credentials domain.CredentialSource

	transmit func(account *domain.Account, secret string, recipients []string, raw []byte) error

	l *logrus.Logger
}

func NewSender(persistence domain.Persistence, credentials domain.CredentialSource) *Sender {
	return &Sender{
		persistence: persistence,
		credentials: credentials,
		transmit:    smtpTransmit,
		l:           log.Logger(log.LOG_MAIN),
	}
}

func (s *Sender) Send(account *domain.Account, mail *OutgoingMail) (*domain.MailRecord, error) {
	if len(mail.To) == 0 {
		return nil, fmt.Errorf("no recipient given")
	}
	if account.SmtpHost == "" || account.SmtpPort == 0 {
		return nil, fmt.Errorf("account %s has no smtp configuration", account.Address)
	}

	secret, err := s.credentials.Secret(account)
	if err != nil {
		return nil, fmt.Errorf("could not resolve credential: %w", err)
	}

	raw := buildMessage(account.Address, mail)
	recipients := append(append(append([]string{}, mail.To...), mail.Cc...), mail.Bcc...)

	err = s.transmit(account, secret, recipients, raw)
	if err != nil {
		return nil, &domain.TransportError{Op: "send mail", Err: err}
	}

	record := sentRecord(account, mail)
	if err := s.persistence.SaveMail(record); err != nil {
		s.l.WithFields(logrus.Fields{"account": account.Address, "error": err}).Error("Could not mirror sent mail")
	}

	s.l.WithFields(logrus.Fields{"account": account.Address, "to": strings.Join(mail.To, ", ")}).Info("Sent mail")
	return record, nil
}

// sentRecord mirrors the outgoing message locally. No server uid exists yet,
// so the record is exempt from uid-based dedup and remote propagation until a
// sent-folder sync picks up the real copy.
func sentRecord(account *domain.Account, mail *OutgoingMail) *domain.MailRecord {
	record := &domain.MailRecord{
		AccountId:  account.Id,
		Folder:     domain.FolderSent,
		Uid:        0,
		Subject:    mail.Subject,
		Sender:     account.Address,
		Recipient:  strings.Join(append(append([]string{}, mail.To...), mail.Cc...), ", "),
		ReceivedAt: time.Now().UTC(),
		Body:       mail.Body,
		Preview:    preview(mail.Body),
	}

	if mail.HTML {
		record.BodyHTML = mail.Body
	} else {
		record.BodyText = mail.Body
	}

	return record
}

func preview(body string) string {
	runes := []rune(body)
	if len(runes) > previewLength {
		return string(runes[:previewLength])
	}
	return body
}

func buildMessage(from string, mail *OutgoingMail) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(mail.To, ", "))
	if len(mail.Cc) > 0 {
		fmt.Fprintf(&buf, "Cc: %s\r\n", strings.Join(mail.Cc, ", "))
	}
	fmt.Fprintf(&buf, "Subject: %s\r\n", mail.Subject)
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")

	if mail.HTML {
		buf.WriteString("Content-Type: text/html; charset=utf-8\r\n")
	} else {
		buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	}
	buf.WriteString("\r\n")
	buf.WriteString(mail.Body)

	return buf.Bytes()
}

// smtpTransmit performs the protocol exchange: implicit TLS on port 465,
// STARTTLS on everything else.
func smtpTransmit(account *domain.Account, secret string, recipients []string, raw []byte) error {
	addr := fmt.Sprintf("%s:%d", account.SmtpHost, account.SmtpPort)
	tlsConfig := &tls.Config{ServerName: account.SmtpHost}

	var client *smtp.Client
	if account.SmtpPort == 465 {
		conn, err := tls.Dial("tcp", addr, tlsConfig)
		if err != nil {
			return fmt.Errorf("could not connect to %s: %w", addr, err)
		}

		client, err = smtp.NewClient(conn, account.SmtpHost)
		if err != nil {
			conn.Close()
			return fmt.Errorf("could not create smtp client: %w", err)
		}
	} else {
		var err error
		client, err = smtp.Dial(addr)
		if err != nil {
			return fmt.Errorf("could not connect to %s: %w", addr, err)
		}

		if err = client.StartTLS(tlsConfig); err != nil {
			client.Close()
			return fmt.Errorf("could not start tls: %w", err)
		}
	}
	defer client.Close()

	auth := smtp.PlainAuth("", account.Address, secret, account.SmtpHost)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("could not authenticate: %w", err)
	}

	if err := client.Mail(account.Address); err != nil {
		return fmt.Errorf("could not set sender: %w", err)
	}
	for _, recipient := range recipients {
		if err := client.Rcpt(recipient); err != nil {
			return fmt.Errorf("could not set recipient %s: %w", recipient, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("could not open data stream: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("could not write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("could not finish message: %w", err)
	}

	return client.Quit()
}
