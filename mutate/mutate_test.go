// SPDX-License-Identifier: GPL-3.0-or-later
package mutate

import (
	"errors"
	"fmt"
	"testing"

	"github.com/halverson/go-imap-mirror/domain"
	"github.com/halverson/go-imap-mirror/log"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	log.InitLogging("error")
}

type stubStore struct {
	domain.Persistence

	folders map[int64]domain.Folder
	deleted []int64
	err     error
}

func (s *stubStore) UpdateFolder(id int64, folder domain.Folder) error {
	if s.err != nil {
		return s.err
	}
	if s.folders == nil {
		s.folders = map[int64]domain.Folder{}
	}
	s.folders[id] = folder
	return nil
}

func (s *stubStore) DeleteMail(id int64) error {
	if s.err != nil {
		return s.err
	}
	s.deleted = append(s.deleted, id)
	return nil
}

type staticSecret struct{}

func (staticSecret) Secret(account *domain.Account) (string, error) {
	return "s3cret", nil
}

type call struct {
	From   string
	Uids   []uint32
	Target string
}

type stubConn struct {
	existing map[string]bool
	selected string

	moves   []call
	copies  []call
	deletes []call

	failMove bool
	closed   bool
}

func (c *stubConn) Select(folder string) (uint32, error) {
	if !c.existing[folder] {
		return 0, fmt.Errorf("no such folder %q", folder)
	}
	c.selected = folder
	return 1, nil
}

func (c *stubConn) SelectReadOnly(folder string) (uint32, error) {
	return c.Select(folder)
}

func (c *stubConn) ListUids() ([]uint32, error) { return nil, nil }
func (c *stubConn) ListUidsSince(uid uint32) ([]uint32, error) { return nil, nil }
func (c *stubConn) FetchMail(uid uint32) ([]byte, error) { return nil, nil }

func (c *stubConn) Copy(uids []uint32, folder string) error {
	c.copies = append(c.copies, call{From: c.selected, Uids: uids, Target: folder})
	return nil
}

func (c *stubConn) Delete(uids []uint32) error {
	c.deletes = append(c.deletes, call{From: c.selected, Uids: uids})
	return nil
}

func (c *stubConn) Move(uids []uint32, folder string) error {
	if c.failMove {
		return errors.New("move refused")
	}
	c.moves = append(c.moves, call{From: c.selected, Uids: uids, Target: folder})
	return nil
}

func (c *stubConn) Close() error {
	c.closed = true
	return nil
}

type harness struct {
	store      *stubStore
	conn       *stubConn
	connects   int
	connectErr error
}

func (h *harness) propagator() *Propagator {
	return NewPropagator(h.store, staticSecret{}, func(account *domain.Account, secret string) (domain.ImapConnector, error) {
		h.connects++
		if h.connectErr != nil {
			return nil, h.connectErr
		}
		return h.conn, nil
	})
}

func newHarness(remoteFolders ...string) *harness {
	existing := map[string]bool{}
	for _, f := range remoteFolders {
		existing[f] = true
	}
	return &harness{
		store: &stubStore{},
		conn:  &stubConn{existing: existing},
	}
}

func account() *domain.Account {
	return &domain.Account{Id: 1, Address: "user@example.org", ImapHost: "imap.example.org"}
}

func inboxMail(uid uint32) *domain.MailRecord {
	return &domain.MailRecord{Id: 10, AccountId: 1, Folder: domain.FolderInbox, Uid: uid}
}

func TestApply_DeleteMovesToTrashOnBothSides(t *testing.T) {
	h := newHarness("INBOX", "Trash")
	mail := inboxMail(42)

	result, err := h.propagator().Apply(account(), mail, domain.OpDelete, false)

	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, result.Status)
	assert.True(t, result.RemoteApplied)
	assert.Equal(t, domain.FolderTrash, h.store.folders[10])
	assert.Equal(t, domain.FolderTrash, mail.Folder)
	require.Len(t, h.conn.moves, 1)
	assert.Equal(t, call{From: "INBOX", Uids: []uint32{42}, Target: "Trash"}, h.conn.moves[0])
	assert.True(t, h.conn.closed)
}

func TestApply_DeleteOfTrashedMailExpungesInPlace(t *testing.T) {
	h := newHarness("INBOX", "Trash")
	mail := &domain.MailRecord{Id: 11, AccountId: 1, Folder: domain.FolderTrash, Uid: 7}

	result, err := h.propagator().Apply(account(), mail, domain.OpDelete, false)

	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, result.Status)
	assert.Equal(t, []int64{11}, h.store.deleted)
	require.Len(t, h.conn.deletes, 1)
	assert.Equal(t, "Trash", h.conn.deletes[0].From)
	assert.Empty(t, h.conn.copies, "expunge in place must not copy")
	assert.Empty(t, h.conn.moves)
}

func TestApply_PermanentDeleteRemovesRecord(t *testing.T) {
	h := newHarness("INBOX", "Trash")
	mail := inboxMail(42)

	result, err := h.propagator().Apply(account(), mail, domain.OpDelete, true)

	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, result.Status)
	assert.Equal(t, []int64{10}, h.store.deleted)
	require.Len(t, h.conn.deletes, 1)
	assert.Equal(t, "INBOX", h.conn.deletes[0].From)
	assert.Empty(t, h.conn.moves)
}

func TestApply_DeleteWithoutTrashFolderDegrades(t *testing.T) {
	h := newHarness("INBOX")
	mail := inboxMail(42)

	result, err := h.propagator().Apply(account(), mail, domain.OpDelete, false)

	require.NoError(t, err)
	assert.Equal(t, domain.StatusWarning, result.Status)
	assert.True(t, result.RemoteApplied)
	assert.Equal(t, domain.FolderTrash, h.store.folders[10], "local move to trash still happens")
	require.Len(t, h.conn.deletes, 1)
	assert.Equal(t, "INBOX", h.conn.deletes[0].From)
	assert.Empty(t, h.conn.moves)
}

func TestApply_ArchiveMovesToArchiveFolder(t *testing.T) {
	h := newHarness("INBOX", "Archive")
	mail := inboxMail(42)

	result, err := h.propagator().Apply(account(), mail, domain.OpArchive, false)

	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, result.Status)
	assert.Equal(t, domain.FolderArchive, h.store.folders[10])
	require.Len(t, h.conn.moves, 1)
	assert.Equal(t, call{From: "INBOX", Uids: []uint32{42}, Target: "Archive"}, h.conn.moves[0])
}

func TestApply_ArchiveOnGmailWithoutArchiveFolderSucceedsInPlace(t *testing.T) {
	h := newHarness("INBOX")
	acc := account()
	acc.ImapHost = "imap.gmail.com"
	mail := inboxMail(42)

	result, err := h.propagator().Apply(acc, mail, domain.OpArchive, false)

	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, result.Status, "gmail in-place archive is not degraded")
	assert.True(t, result.RemoteApplied)
	assert.Equal(t, domain.FolderArchive, h.store.folders[10])
	require.Len(t, h.conn.deletes, 1)
	assert.Equal(t, "INBOX", h.conn.deletes[0].From)
}

func TestApply_ArchiveWithoutArchiveFolderStaysLocal(t *testing.T) {
	h := newHarness("INBOX")
	mail := inboxMail(42)

	result, err := h.propagator().Apply(account(), mail, domain.OpArchive, false)

	require.NoError(t, err)
	assert.Equal(t, domain.StatusWarning, result.Status)
	assert.False(t, result.RemoteApplied)
	assert.Equal(t, domain.FolderArchive, h.store.folders[10])
	assert.Empty(t, h.conn.deletes)
	assert.Empty(t, h.conn.moves)
}

func TestApply_RestoreMovesBackToInbox(t *testing.T) {
	h := newHarness("INBOX", "Trash")
	mail := &domain.MailRecord{Id: 12, AccountId: 1, Folder: domain.FolderTrash, Uid: 9}

	result, err := h.propagator().Apply(account(), mail, domain.OpRestore, false)

	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, result.Status)
	assert.Equal(t, domain.FolderInbox, h.store.folders[12])
	require.Len(t, h.conn.moves, 1)
	assert.Equal(t, call{From: "Trash", Uids: []uint32{9}, Target: "INBOX"}, h.conn.moves[0])
}

func TestApply_RestoreOutsideTrashRejectedBeforeRemote(t *testing.T) {
	h := newHarness("INBOX", "Trash")
	mail := inboxMail(42)

	_, err := h.propagator().Apply(account(), mail, domain.OpRestore, false)

	assert.Error(t, err)
	assert.Zero(t, h.connects, "no connection attempt for invalid request")
	assert.Empty(t, h.store.folders)
}

func TestApply_NoUidSkipsRemoteEntirely(t *testing.T) {
	h := newHarness("INBOX", "Trash")
	mail := &domain.MailRecord{Id: 13, AccountId: 1, Folder: domain.FolderDrafts, Uid: 0}

	result, err := h.propagator().Apply(account(), mail, domain.OpDelete, false)

	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, result.Status)
	assert.False(t, result.RemoteApplied)
	assert.Zero(t, h.connects)
	assert.Equal(t, domain.FolderTrash, h.store.folders[13])
}

func TestApply_ConnectFailureStillAppliesLocally(t *testing.T) {
	h := newHarness("INBOX", "Trash")
	h.connectErr = errors.New("server down")
	mail := inboxMail(42)

	result, err := h.propagator().Apply(account(), mail, domain.OpDelete, false)

	require.NoError(t, err)
	assert.Equal(t, domain.StatusWarning, result.Status)
	assert.False(t, result.RemoteApplied)
	assert.Contains(t, result.RemoteOutcome, "connection failed")
	assert.Equal(t, domain.FolderTrash, h.store.folders[10])
}

func TestApply_RemoteMoveFailureDegradesToWarning(t *testing.T) {
	h := newHarness("INBOX", "Trash")
	h.conn.failMove = true
	mail := inboxMail(42)

	result, err := h.propagator().Apply(account(), mail, domain.OpDelete, false)

	require.NoError(t, err)
	assert.Equal(t, domain.StatusWarning, result.Status)
	assert.False(t, result.RemoteApplied)
	assert.Equal(t, domain.FolderTrash, h.store.folders[10])
}

func TestApplyBulk_SharesOneConnectionAndCountsSides(t *testing.T) {
	h := newHarness("INBOX", "Trash")
	mails := []*domain.MailRecord{
		{Id: 19, AccountId: 1, Folder: domain.FolderInbox, Uid: 1},
		{Id: 20, AccountId: 1, Folder: domain.FolderInbox, Uid: 2},
		{Id: 21, AccountId: 1, Folder: domain.FolderDrafts, Uid: 0},
	}

	result, err := h.propagator().ApplyBulk(account(), mails, domain.OpDelete, false)

	require.NoError(t, err)
	assert.Equal(t, 1, h.connects)
	assert.Equal(t, domain.StatusSuccess, result.Status)
	assert.Equal(t, 3, result.LocalSuccess)
	assert.Equal(t, 2, result.RemoteTotal, "uid-less mail never counts as a remote operation")
	assert.Equal(t, 2, result.RemoteSuccess)
	assert.Contains(t, result.Message, "2/2")
}

func TestApplyBulk_RemoteFailureNeverAbortsBatch(t *testing.T) {
	h := newHarness("INBOX", "Trash")
	h.conn.failMove = true
	mails := []*domain.MailRecord{inboxMail(1), {Id: 22, AccountId: 1, Folder: domain.FolderInbox, Uid: 2}}

	result, err := h.propagator().ApplyBulk(account(), mails, domain.OpDelete, false)

	require.NoError(t, err)
	assert.Equal(t, domain.StatusWarning, result.Status)
	assert.Equal(t, 2, result.LocalSuccess)
	assert.Equal(t, 0, result.RemoteSuccess)
	assert.Len(t, h.store.folders, 2)
}

func TestApplyBulk_ConnectFailureGoesLocalOnly(t *testing.T) {
	h := newHarness("INBOX", "Trash")
	h.connectErr = errors.New("server down")
	mails := []*domain.MailRecord{inboxMail(1)}

	result, err := h.propagator().ApplyBulk(account(), mails, domain.OpArchive, false)

	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, result.Status, "no remote operations were attempted")
	assert.Equal(t, 1, result.LocalSuccess)
	assert.Equal(t, 0, result.RemoteTotal)
	assert.Contains(t, result.Message, "local only")
}

func TestApplyBulk_InvalidEntrySkippedOthersProceed(t *testing.T) {
	h := newHarness("INBOX", "Trash")
	mails := []*domain.MailRecord{
		inboxMail(1),
		{Id: 23, AccountId: 1, Folder: domain.FolderTrash, Uid: 2},
	}

	result, err := h.propagator().ApplyBulk(account(), mails, domain.OpRestore, false)

	require.NoError(t, err)
	assert.Equal(t, 1, result.LocalSuccess)
	assert.Equal(t, domain.FolderInbox, h.store.folders[23])
	assert.Empty(t, h.store.folders[10])
}
