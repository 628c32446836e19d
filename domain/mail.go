// SPDX-License-Identifier: GPL-3.0-or-later
package domain

import "time"

// Folder is one of the canonical mailbox categories, independent of the
// provider-specific names the remote server actually uses.
type Folder string

const (
	FolderInbox   = Folder("inbox")
	FolderSent    = Folder("sent")
	FolderDrafts  = Folder("drafts")
	FolderTrash   = Folder("trash")
	FolderSpam    = Folder("spam")
	FolderArchive = Folder("archive")
)

// KnownFolder reports whether f is one of the canonical categories.
func KnownFolder(f Folder) bool {
	switch f {
	case FolderInbox, FolderSent, FolderDrafts, FolderTrash, FolderSpam, FolderArchive:
		return true
	}
	return false
}

// Account is one remote mailbox identity. The credential itself is never held
// here; CredentialKey names the secret in the credential store.
type Account struct {
	Id            int64
	Address       string
	ImapHost      string
	ImapPort      int
	SmtpHost      string
	SmtpPort      int
	CredentialKey string
}

// Classification is the display-hint output of the external content
// classifier. It is stored verbatim and never reinterpreted.
type Classification struct {
	Type           string
	PreserveLayout bool
	ForceLeftAlign bool
	CleanedHTML    string
}

// MailRecord is the local mirror of one remote message.
//
// Uid is the server-assigned UID, unique only within the folder the message
// was first seen in. Uid == 0 means the record was never confirmed against
// the server (drafts, locally stored sent mail); all remote propagation is
// skipped for such records.
type MailRecord struct {
	Id        int64
	AccountId int64
	Folder    Folder

	Uid       uint32
	MessageId string

	Subject    string
	Sender     string
	Recipient  string
	ReceivedAt time.Time

	BodyText string
	BodyHTML string
	Body     string
	Preview  string

	Classification Classification
}

// HasUid reports whether the record was ever confirmed against the server.
func (m *MailRecord) HasUid() bool {
	return m.Uid != 0
}
