// SPDX-License-Identifier: GPL-3.0-or-later
package domain

//go:generate mockgen -destination=mocks/persistence.go -package=mocks . Persistence

// Persistence is the local store boundary. Implementations must commit each
// SaveMail individually so a later failure in the same batch never rolls back
// earlier inserts.
type Persistence interface {
	Close() error

	SaveMail(mail *MailRecord) error
	UpdateFolder(id int64, folder Folder) error
	DeleteMail(id int64) error

	MailById(accountId int64, id int64) (*MailRecord, error)
	MailByUid(accountId int64, uid uint32) (*MailRecord, error)
	MailByMessageId(accountId int64, messageId string) (*MailRecord, error)

	// MailsInFolder returns records for (account, folder) ordered by
	// received time descending.
	MailsInFolder(accountId int64, folder Folder, limit, offset int) ([]*MailRecord, error)
	// MaxUid is the sync cursor: the highest ingested UID for
	// (account, folder), 0 when the folder holds no confirmed records.
	MaxUid(accountId int64, folder Folder) (uint32, error)
	// Search matches subject, sender and body, newest first.
	Search(accountId int64, query string, limit int) ([]*MailRecord, error)
	CountsByFolder(accountId int64) (map[Folder]int, error)
}
