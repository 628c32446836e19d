// SPDX-License-Identifier: GPL-3.0-or-later
package mutate

import (
	"fmt"
	"strings"

	"github.com/halverson/go-imap-mirror/domain"
	"github.com/halverson/go-imap-mirror/folders"
	"github.com/halverson/go-imap-mirror/log"

	"github.com/sirupsen/logrus"
)

// Propagator applies folder-mutating user actions. The local store is always
// updated; remote propagation is best-effort and its failure degrades the
// result to a warning, never to an error, so the local mirror stays usable
// when the network is not.
type Propagator struct {
	persistence domain.Persistence
	credentials domain.CredentialSource
	connect     domain.ConnectorFactory

	l *logrus.Logger
}

func NewPropagator(persistence domain.Persistence, credentials domain.CredentialSource, connect domain.ConnectorFactory) *Propagator {
	return &Propagator{
		persistence: persistence,
		credentials: credentials,
		connect:     connect,
		l:           log.Logger(log.LOG_MUTATE),
	}
}

// Apply runs one operation against one message. Invalid operations (restore
// outside trash) are rejected before any remote call. The returned error is
// reserved for invalid requests and local store failures; remote problems
// are reported in the result.
func (p *Propagator) Apply(account *domain.Account, mail *domain.MailRecord, op domain.Operation, permanent bool) (*domain.MutationResult, error) {
	if err := validate(mail, op); err != nil {
		return nil, err
	}

	var conn domain.ImapConnector
	var connErr error
	if mail.HasUid() {
		conn, connErr = p.open(account)
		if conn != nil {
			defer conn.Close()
		}
	}

	result, err := p.applyOne(conn, account, mail, op, permanent)
	if err != nil {
		return nil, err
	}
	if connErr != nil {
		result.RemoteOutcome = fmt.Sprintf("connection failed: %v", connErr)
		result.Status = domain.StatusWarning
	}

	return result, nil
}

// ApplyBulk runs the same operation for every message over a single remote
// connection. Per-message failures on either side never abort the batch; the
// result counts both sides separately and is a success only when every
// remote sub-operation succeeded.
func (p *Propagator) ApplyBulk(account *domain.Account, mails []*domain.MailRecord, op domain.Operation, permanent bool) (*domain.BulkResult, error) {
	conn, connErr := p.open(account)
	if conn != nil {
		defer conn.Close()
	}
	if connErr != nil {
		p.l.WithFields(logrus.Fields{"account": account.Address, "error": connErr}).Warn("Bulk mutation proceeds local-only")
	}

	bulk := &domain.BulkResult{}
	for _, mail := range mails {
		if err := validate(mail, op); err != nil {
			p.l.WithFields(logrus.Fields{"mail": mail.Id, "operation": op, "error": err}).Warn("Skipping invalid bulk entry")
			continue
		}

		if mail.HasUid() && connErr == nil {
			bulk.RemoteTotal++
		}

		result, err := p.applyOne(conn, account, mail, op, permanent)
		if err != nil {
			p.l.WithFields(logrus.Fields{"mail": mail.Id, "error": err}).Error("Local mutation failed, continuing batch")
			continue
		}

		bulk.LocalSuccess++
		if result.RemoteApplied {
			bulk.RemoteSuccess++
		}
	}

	bulk.Status = domain.StatusSuccess
	if bulk.RemoteSuccess < bulk.RemoteTotal {
		bulk.Status = domain.StatusWarning
	}
	bulk.Message = bulkMessage(op, bulk, connErr != nil)

	return bulk, nil
}

func validate(mail *domain.MailRecord, op domain.Operation) error {
	switch op {
	case domain.OpDelete, domain.OpArchive:
		return nil
	case domain.OpRestore:
		if mail.Folder != domain.FolderTrash {
			return fmt.Errorf("cannot restore mail from %q, only trash", mail.Folder)
		}
		return nil
	}
	return fmt.Errorf("unsupported operation %q", op)
}

func (p *Propagator) open(account *domain.Account) (domain.ImapConnector, error) {
	secret, err := p.credentials.Secret(account)
	if err != nil {
		return nil, fmt.Errorf("could not resolve credential: %w", err)
	}

	conn, err := p.connect(account, secret)
	if err != nil {
		return nil, fmt.Errorf("could not connect: %w", err)
	}

	return conn, nil
}

// applyOne performs the remote choreography first and the local state change
// unconditionally afterwards. conn == nil means remote propagation is
// unavailable; the local change still applies.
func (p *Propagator) applyOne(conn domain.ImapConnector, account *domain.Account, mail *domain.MailRecord, op domain.Operation, permanent bool) (*domain.MutationResult, error) {
	result := &domain.MutationResult{Status: domain.StatusSuccess}

	switch {
	case !mail.HasUid():
		result.RemoteOutcome = "skipped, message has no server uid"
	case conn == nil:
		result.RemoteOutcome = "server unavailable"
		result.Status = domain.StatusWarning
	default:
		s := &session{
			conn:     conn,
			resolver: folders.NewResolver(),
			gmail:    strings.Contains(strings.ToLower(account.ImapHost), "gmail"),
			l:        p.l,
		}
		outcome, applied, degraded := s.propagate(mail, op, permanent)
		result.RemoteOutcome = outcome
		result.RemoteApplied = applied
		if !applied || degraded {
			result.Status = domain.StatusWarning
		}
	}

	localOutcome, err := p.applyLocal(mail, op, permanent)
	if err != nil {
		return nil, &domain.PersistenceError{Op: string(op), Err: err}
	}
	result.LocalOutcome = localOutcome

	return result, nil
}

// applyLocal mutates the mirror. Delete removes the record outright when
// permanent or when the message already sits in trash, otherwise folder
// transitions follow the operation.
func (p *Propagator) applyLocal(mail *domain.MailRecord, op domain.Operation, permanent bool) (string, error) {
	switch op {
	case domain.OpDelete:
		if permanent || mail.Folder == domain.FolderTrash {
			if err := p.persistence.DeleteMail(mail.Id); err != nil {
				return "", err
			}
			return "deleted permanently", nil
		}
		if err := p.persistence.UpdateFolder(mail.Id, domain.FolderTrash); err != nil {
			return "", err
		}
		mail.Folder = domain.FolderTrash
		return "moved to trash", nil

	case domain.OpArchive:
		if err := p.persistence.UpdateFolder(mail.Id, domain.FolderArchive); err != nil {
			return "", err
		}
		mail.Folder = domain.FolderArchive
		return "archived", nil

	case domain.OpRestore:
		if err := p.persistence.UpdateFolder(mail.Id, domain.FolderInbox); err != nil {
			return "", err
		}
		mail.Folder = domain.FolderInbox
		return "restored to inbox", nil
	}

	return "", fmt.Errorf("unsupported operation %q", op)
}

func bulkMessage(op domain.Operation, bulk *domain.BulkResult, localOnly bool) string {
	var action string
	switch op {
	case domain.OpDelete:
		action = fmt.Sprintf("%d mails moved to trash or deleted", bulk.LocalSuccess)
	case domain.OpArchive:
		action = fmt.Sprintf("%d mails archived", bulk.LocalSuccess)
	case domain.OpRestore:
		action = fmt.Sprintf("%d mails restored from trash", bulk.LocalSuccess)
	default:
		action = fmt.Sprintf("%d mails processed", bulk.LocalSuccess)
	}

	if localOnly || bulk.RemoteTotal == 0 {
		return action + " (local only)"
	}
	return fmt.Sprintf("%s | server: %d/%d operations succeeded", action, bulk.RemoteSuccess, bulk.RemoteTotal)
}
