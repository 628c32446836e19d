// SPDX-License-Identifier: GPL-3.0-or-later
package imapconnection

import (
	"crypto/tls"
	"fmt"
	"io/ioutil"
	"net"
	"time"

	"github.com/halverson/go-imap-mirror/domain"
	"github.com/halverson/go-imap-mirror/log"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap-move"
	"github.com/emersion/go-imap-uidplus"
	"github.com/emersion/go-imap/client"
	"github.com/sirupsen/logrus"
)

const (
	// DialTimeout bounds connection establishment and login.
	DialTimeout = 30 * time.Second
	// CommandTimeout bounds each individual protocol command.
	CommandTimeout = 60 * time.Second
)

type ImapConnection struct {
	connection  *client.Client
	mailDeleter deleter
	mailMover   mover

	host string
	user string

	selectedFolder string

	l *logrus.Logger
}

// NewImapConnection dials the server over TLS, logs in and probes the
// UIDPLUS and MOVE capabilities to pick delete/move strategies. Failures here
// are transport errors: fatal to the call that wanted the connection.
func NewImapConnection(host string, port int, user string, secret string) (*ImapConnection, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	dialer := &net.Dialer{Timeout: DialTimeout}
	imapClient, err := client.DialWithDialerTLS(dialer, addr, &tls.Config{ServerName: host})
	if err != nil {
		return nil, &domain.TransportError{Op: "connect", Err: err}
	}
	imapClient.Timeout = CommandTimeout

	err = imapClient.Login(user, secret)
	if err != nil {
		return nil, &domain.TransportError{Op: "login", Err: err}
	}

	uidPlusClient := uidplus.NewClient(imapClient)
	uidPlusSupported, err := uidPlusClient.SupportUidPlus()
	if err != nil {
		return nil, &domain.TransportError{Op: "capability", Err: err}
	}

	moveClient := move.NewClient(imapClient)
	moveSupported, err := moveClient.SupportMove()
	if err != nil {
		return nil, &domain.TransportError{Op: "capability", Err: err}
	}

	conn := &ImapConnection{
		connection: imapClient,
		host:       host,
		user:       user,
		l:          log.Logger(log.LOG_IMAP),
	}

	baseLogger := conn.l.WithFields(logrus.Fields{"host": host})
	baseLogger.Debug("Logged in to server")

	if uidPlusSupported {
		baseLogger.Debug("UIDPLUS supported on server, using UID delete")
		conn.mailDeleter = &uidPlusDeleter{
			imapConn:      conn,
			uidplusClient: uidPlusClient,
		}
	} else {
		baseLogger.Info("UIDPLUS not supported on server, falling back to flag&expunge")
		conn.mailDeleter = &compatibilityDeleter{
			imapConn: conn,
		}
	}

	if moveSupported {
		baseLogger.Debug("MOVE supported on server")
		conn.mailMover = &moveMover{
			moveClient: moveClient,
		}
	} else {
		baseLogger.Debug("MOVE not supported on server, falling back to copy&delete")
		conn.mailMover = &compatibilityMover{
			imapConn: conn,
		}
	}

	return conn, nil
}

func (ic *ImapConnection) Select(folder string) (uint32, error) {
	return ic.selectFolder(folder, false)
}

func (ic *ImapConnection) SelectReadOnly(folder string) (uint32, error) {
	return ic.selectFolder(folder, true)
}

func (ic *ImapConnection) selectFolder(folder string, readOnly bool) (uint32, error) {
	m, err := ic.connection.Select(folder, readOnly)
	if err != nil {
		return 0, fmt.Errorf("could not select folder: %w", err)
	}

	ic.selectedFolder = folder
	return m.UidValidity, nil
}

func (ic *ImapConnection) ListUids() ([]uint32, error) {
	// Empty criteria matches every message in the folder
	criteria := imap.NewSearchCriteria()
	ids, err := ic.connection.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("could not list folder: %w", err)
	}

	return ids, nil
}

func (ic *ImapConnection) ListUidsSince(uid uint32) ([]uint32, error) {
	criteria := imap.NewSearchCriteria()
	criteria.Uid = &imap.SeqSet{}
	criteria.Uid.AddRange(uid+1, 0)

	ids, err := ic.connection.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("could not search folder: %w", err)
	}

	// Servers treat N:* as matching at least the last message, so the lower
	// bound has to be enforced here.
	filtered := make([]uint32, 0, len(ids))
	for _, id := range ids {
		if id > uid {
			filtered = append(filtered, id)
		}
	}

	return filtered, nil
}

func (ic *ImapConnection) FetchMail(uid uint32) ([]byte, error) {
	seqset := &imap.SeqSet{}
	seqset.AddNum(uid)

	fullBodySection := &imap.BodySectionName{
		Peek: true,
	}
	fetchItems := []imap.FetchItem{fullBodySection.FetchItem()}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- ic.connection.UidFetch(seqset, fetchItems, messages)
	}()

	var raw []byte
	for msg := range messages {
		r := msg.GetBody(fullBodySection)
		if r == nil {
			continue
		}

		body, err := ioutil.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("could not read mail body: %w", err)
		}
		raw = body
	}

	err := <-done
	if err != nil {
		return nil, fmt.Errorf("could not fetch mail: %w", err)
	}

	if raw == nil {
		return nil, fmt.Errorf("server returned no body for uid %d", uid)
	}

	return raw, nil
}

func (ic *ImapConnection) Copy(uids []uint32, folder string) error {
	seqset := &imap.SeqSet{}
	seqset.AddNum(uids...)

	err := ic.connection.UidCopy(seqset, folder)
	if err != nil {
		return fmt.Errorf("could not copy mails: %w", err)
	}

	return nil
}

func (ic *ImapConnection) Delete(uids []uint32) error {
	return ic.mailDeleter.delete(uids)
}

func (ic *ImapConnection) Move(uids []uint32, folder string) error {
	return ic.mailMover.move(uids, folder)
}

func (ic *ImapConnection) Close() error {
	return ic.connection.Logout()
}

func (ic *ImapConnection) Expunge(ch chan uint32) error {
	return ic.connection.Expunge(ch)
}

func (ic *ImapConnection) flagDeleted(uids []uint32) (*imap.SeqSet, error) {
	seqset := &imap.SeqSet{}
	seqset.AddNum(uids...)
	err := ic.connection.UidStore(seqset, imap.FormatFlagsOp(imap.AddFlags, true), []interface{}{imap.DeletedFlag}, nil)
	if err != nil {
		return nil, fmt.Errorf("could not set delete flag: %w", err)
	}

	return seqset, nil
}
