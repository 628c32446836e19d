// SPDX-License-Identifier: GPL-3.0-or-later
package mutate

import (
	"fmt"

	"github.com/halverson/go-imap-mirror/domain"
	"github.com/halverson/go-imap-mirror/folders"

	"github.com/sirupsen/logrus"
)

// session carries the remote side of one mutation call: a single connection,
// a resolver whose cache lives as long as the connection, and the provider
// hint for the in-place archive fallback.
type session struct {
	conn     domain.ImapConnector
	resolver *folders.Resolver
	gmail    bool

	l *logrus.Logger
}

// propagate runs the remote choreography for one message. applied reports
// whether the server now reflects the operation, degraded that it does so in
// a weaker form than requested.
func (s *session) propagate(mail *domain.MailRecord, op domain.Operation, permanent bool) (outcome string, applied bool, degraded bool) {
	switch op {
	case domain.OpDelete:
		if permanent || mail.Folder == domain.FolderTrash {
			return s.deleteInPlace(mail)
		}
		return s.moveToTrash(mail)
	case domain.OpArchive:
		return s.archive(mail)
	case domain.OpRestore:
		return s.restore(mail)
	}

	return fmt.Sprintf("unsupported operation %q", op), false, false
}

// moveToTrash relocates the message into the server's trash folder. Without a
// trash folder the message is expunged in place, which loses the restore
// window and therefore degrades the outcome.
func (s *session) moveToTrash(mail *domain.MailRecord) (string, bool, bool) {
	trash, trashErr := s.resolve(domain.FolderTrash)

	source, err := s.selectSource(mail.Folder)
	if err != nil {
		return fmt.Sprintf("could not open source folder: %v", err), false, false
	}

	if trashErr != nil {
		if err := s.conn.Delete([]uint32{mail.Uid}); err != nil {
			return fmt.Sprintf("could not delete from %s: %v", source, err), false, false
		}
		return fmt.Sprintf("no trash folder on server, removed from %s", source), true, true
	}

	if err := s.conn.Move([]uint32{mail.Uid}, trash); err != nil {
		return fmt.Sprintf("could not move to %s: %v", trash, err), false, false
	}

	return fmt.Sprintf("moved to %s on server", trash), true, false
}

func (s *session) deleteInPlace(mail *domain.MailRecord) (string, bool, bool) {
	source, err := s.selectSource(mail.Folder)
	if err != nil {
		return fmt.Sprintf("could not open source folder: %v", err), false, false
	}

	if err := s.conn.Delete([]uint32{mail.Uid}); err != nil {
		return fmt.Sprintf("could not delete from %s: %v", source, err), false, false
	}

	return fmt.Sprintf("deleted from %s on server", source), true, false
}

// archive relocates the message into an archive folder. Gmail keeps every
// message in All Mail, so expunging from the source folder there is a real
// archive, not a degraded one. Other providers without an archive folder get
// no remote change at all.
func (s *session) archive(mail *domain.MailRecord) (string, bool, bool) {
	archive, archiveErr := s.resolve(domain.FolderArchive)

	source, err := s.selectSource(mail.Folder)
	if err != nil {
		return fmt.Sprintf("could not open source folder: %v", err), false, false
	}

	if archiveErr != nil {
		if s.gmail {
			if err := s.conn.Delete([]uint32{mail.Uid}); err != nil {
				return fmt.Sprintf("could not archive in place: %v", err), false, false
			}
			return fmt.Sprintf("archived in place, removed from %s", source), true, false
		}

		s.l.WithFields(logrus.Fields{"tried": folders.Candidates(domain.FolderArchive)}).Warn("No archive folder on server")
		return "no archive folder on server, archived locally only", false, true
	}

	if err := s.conn.Move([]uint32{mail.Uid}, archive); err != nil {
		return fmt.Sprintf("could not move to %s: %v", archive, err), false, false
	}

	return fmt.Sprintf("moved to %s on server", archive), true, false
}

func (s *session) restore(mail *domain.MailRecord) (string, bool, bool) {
	trash, err := s.resolve(domain.FolderTrash)
	if err != nil {
		return fmt.Sprintf("no trash folder on server: %v", err), false, false
	}

	if _, err := s.conn.Select(trash); err != nil {
		return fmt.Sprintf("could not open %s: %v", trash, err), false, false
	}

	if err := s.conn.Move([]uint32{mail.Uid}, folders.Inbox); err != nil {
		return fmt.Sprintf("could not move back to %s: %v", folders.Inbox, err), false, false
	}

	return fmt.Sprintf("restored to %s on server", folders.Inbox), true, false
}

// resolve probes candidate names with a read-write select. The probe leaves
// the probed folder selected, so callers select their working folder after
// resolving, never before.
func (s *session) resolve(category domain.Folder) (string, error) {
	return s.resolver.Resolve(category, func(name string) error {
		_, err := s.conn.Select(name)
		return err
	})
}

// selectSource opens the folder the message currently lives in. When the
// category does not resolve the inbox is selected instead, which matches
// where an unresolvable message most likely sits.
func (s *session) selectSource(category domain.Folder) (string, error) {
	name, err := s.resolve(category)
	if err != nil {
		name = folders.Inbox
	}

	if _, err := s.conn.Select(name); err != nil {
		return "", fmt.Errorf("could not select %s: %w", name, err)
	}

	return name, nil
}
