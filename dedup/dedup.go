// SPDX-License-Identifier: GPL-3.0-or-later
package dedup

import (
	"fmt"

	"github.com/halverson/go-imap-mirror/domain"
	"github.com/halverson/go-imap-mirror/log"

	"github.com/sirupsen/logrus"
)

// Decision is the outcome for one candidate remote message.
type Decision int

const (
	// Accept means no local record represents the message yet.
	Accept Decision = iota
	// SkipSameFolder means the message was already ingested from this folder.
	SkipSameFolder
	// SkipPrecedence means a record in another folder takes precedence; in
	// particular a record the user moved to trash or archive must not be
	// resurrected by an inbox sync, and vice versa.
	SkipPrecedence
	// SkipExisting means a record in another folder already represents the
	// message and stays authoritative.
	SkipExisting
)

func (d Decision) Skip() bool {
	return d != Accept
}

// Index decides whether a candidate remote message is already represented
// locally. Identity is the union of the folder-scoped UID and the global
// Message-Id header, since neither alone survives a server-side move.
type Index struct {
	persistence domain.Persistence

	l *logrus.Logger
}

func NewIndex(persistence domain.Persistence) *Index {
	return &Index{
		persistence: persistence,
		l:           log.Logger(log.LOG_SYNC),
	}
}

// Check applies the precedence policy for one (uid, messageId) candidate
// observed in folder. UID matches are consulted before Message-Id matches.
func (ix *Index) Check(accountId int64, uid uint32, messageId string, observed domain.Folder) (Decision, error) {
	existing, err := ix.persistence.MailByUid(accountId, uid)
	if err != nil {
		return Accept, fmt.Errorf("could not look up mail by uid: %w", err)
	}

	if existing == nil && messageId != "" {
		existing, err = ix.persistence.MailByMessageId(accountId, messageId)
		if err != nil {
			return Accept, fmt.Errorf("could not look up mail by message id: %w", err)
		}
	}

	if existing == nil {
		return Accept, nil
	}

	decision := decide(existing.Folder, observed)
	if decision == SkipPrecedence || decision == SkipExisting {
		ix.l.WithFields(logrus.Fields{
			"uid":      uid,
			"observed": observed,
			"existing": existing.Folder,
		}).Debug("Skipping already-represented mail")
	}
	return decision, nil
}

// decide is the pure cross-folder precedence rule. Any pre-existing record is
// authoritative; the trash/archive-vs-inbox pairings are called out so a
// user-initiated move is never undone by a later sync.
func decide(existing, observed domain.Folder) Decision {
	if existing == observed {
		return SkipSameFolder
	}

	if movedOut(existing) && observed == domain.FolderInbox {
		return SkipPrecedence
	}
	if existing == domain.FolderInbox && movedOut(observed) {
		return SkipPrecedence
	}

	return SkipExisting
}

func movedOut(f domain.Folder) bool {
	return f == domain.FolderTrash || f == domain.FolderArchive
}
