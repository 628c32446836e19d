// SPDX-License-Identifier: GPL-3.0-or-later
package imapconnection

import (
	"fmt"

	"github.com/emersion/go-imap"
)

type uidMoveClient interface {
	UidMove(seqset *imap.SeqSet, dest string) error
}

// moveMover relocates messages atomically via the MOVE extension.
type moveMover struct {
	moveClient uidMoveClient
}

func (m *moveMover) move(uids []uint32, folder string) error {
	seqset := &imap.SeqSet{}
	seqset.AddNum(uids...)
	return m.moveClient.UidMove(seqset, folder)
}

type copyAndDeleteClient interface {
	Copy(uids []uint32, folder string) error
	Delete(uids []uint32) error
}

// compatibilityMover is the copy, flag, expunge choreography for servers
// without MOVE.
type compatibilityMover struct {
	imapConn copyAndDeleteClient
}

func (c *compatibilityMover) move(uids []uint32, folder string) error {
	err := c.imapConn.Copy(uids, folder)
	if err != nil {
		return fmt.Errorf("could not copy mails: %w", err)
	}

	err = c.imapConn.Delete(uids)
	if err != nil {
		return fmt.Errorf("could not delete copied mails: %w", err)
	}

	return nil
}
