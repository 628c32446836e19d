// SPDX-License-Identifier: GPL-3.0-or-later
package domain

//go:generate mockgen -destination=mocks/imap.go -package=mocks . ImapConnector

// ImapConnector is one authenticated session against the remote server. A
// connector is opened per call, used for every remote step that call needs
// and closed before returning.
type ImapConnector interface {
	// Select opens a folder read-write and returns its UIDVALIDITY.
	Select(folder string) (uint32, error)
	// SelectReadOnly opens a folder without allowing flag changes. Used as
	// the folder resolution probe and for all sync reads.
	SelectReadOnly(folder string) (uint32, error)

	// ListUids returns all UIDs in the selected folder.
	ListUids() ([]uint32, error)
	// ListUidsSince returns the UIDs strictly greater than uid.
	ListUidsSince(uid uint32) ([]uint32, error)

	// FetchMail returns the full raw message for one UID.
	FetchMail(uid uint32) ([]byte, error)

	// Copy copies the messages into another folder without touching the
	// originals.
	Copy(uids []uint32, folder string) error
	// Delete removes the messages from the selected folder. Depending on
	// server capabilities this is a UIDPLUS expunge or flag&expunge.
	Delete(uids []uint32) error
	// Move relocates the messages into folder, via the MOVE extension when
	// the server supports it and copy&delete otherwise.
	Move(uids []uint32, folder string) error

	Close() error
}

// ConnectorFactory opens a fresh authenticated session for an account. The
// secret comes from the credential store and is not retained by the engine.
type ConnectorFactory func(account *Account, secret string) (ImapConnector, error)
