// SPDX-License-Identifier: GPL-3.0-or-later
package mailsync

import (
	"errors"
	"fmt"
	"testing"

	"github.com/halverson/go-imap-mirror/dedup"
	"github.com/halverson/go-imap-mirror/domain"
	"github.com/halverson/go-imap-mirror/log"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	log.InitLogging("error")
}

// memStore keeps saved records in memory and serves the lookups the dedup
// index and the cursor computation need.
type memStore struct {
	domain.Persistence

	mails  []*domain.MailRecord
	nextId int64
}

func (s *memStore) SaveMail(mail *domain.MailRecord) error {
	s.nextId++
	mail.Id = s.nextId
	saved := *mail
	s.mails = append(s.mails, &saved)
	return nil
}

func (s *memStore) MailByUid(accountId int64, uid uint32) (*domain.MailRecord, error) {
	if uid == 0 {
		return nil, nil
	}
	for _, m := range s.mails {
		if m.AccountId == accountId && m.Uid == uid {
			return m, nil
		}
	}
	return nil, nil
}

func (s *memStore) MailByMessageId(accountId int64, messageId string) (*domain.MailRecord, error) {
	if messageId == "" {
		return nil, nil
	}
	for _, m := range s.mails {
		if m.AccountId == accountId && m.MessageId == messageId {
			return m, nil
		}
	}
	return nil, nil
}

func (s *memStore) MaxUid(accountId int64, folder domain.Folder) (uint32, error) {
	var max uint32
	for _, m := range s.mails {
		if m.AccountId == accountId && m.Folder == folder && m.Uid > max {
			max = m.Uid
		}
	}
	return max, nil
}

type staticSecret struct{}

func (staticSecret) Secret(account *domain.Account) (string, error) {
	return "s3cret", nil
}

// stubConn serves a fixed uid set per remote folder name. Raw message bytes
// are synthesized from the uid so the stub ingestor can reverse them.
type stubConn struct {
	uidsByFolder map[string][]uint32
	selected     string

	fetched  []uint32
	listErr  error
	fetchErr map[uint32]error
}

func (c *stubConn) Select(folder string) (uint32, error) {
	return c.SelectReadOnly(folder)
}

func (c *stubConn) SelectReadOnly(folder string) (uint32, error) {
	if _, ok := c.uidsByFolder[folder]; !ok {
		return 0, fmt.Errorf("no such folder %q", folder)
	}
	c.selected = folder
	return 1, nil
}

func (c *stubConn) ListUids() ([]uint32, error) {
	if c.listErr != nil {
		return nil, c.listErr
	}
	return append([]uint32{}, c.uidsByFolder[c.selected]...), nil
}

func (c *stubConn) ListUidsSince(uid uint32) ([]uint32, error) {
	if c.listErr != nil {
		return nil, c.listErr
	}
	var uids []uint32
	for _, u := range c.uidsByFolder[c.selected] {
		if u > uid {
			uids = append(uids, u)
		}
	}
	return uids, nil
}

func (c *stubConn) FetchMail(uid uint32) ([]byte, error) {
	if err := c.fetchErr[uid]; err != nil {
		return nil, err
	}
	c.fetched = append(c.fetched, uid)
	return []byte(fmt.Sprintf("uid:%d", uid)), nil
}

func (c *stubConn) Copy(uids []uint32, folder string) error { return nil }
func (c *stubConn) Delete(uids []uint32) error { return nil }
func (c *stubConn) Move(uids []uint32, folder string) error { return nil }
func (c *stubConn) Close() error { return nil }

// stubIngestor reverses the stub connection's synthetic payload into a record
// whose message id is derived from the uid, so identical uids on re-sync
// yield identical message ids.
type stubIngestor struct {
	messageIds map[string]string
}

func (i *stubIngestor) Ingest(raw []byte) *domain.MailRecord {
	record := &domain.MailRecord{Subject: string(raw)}
	if id, ok := i.messageIds[string(raw)]; ok {
		record.MessageId = id
	} else {
		record.MessageId = "<" + string(raw) + "@example.org>"
	}
	return record
}

type harness struct {
	store *memStore
	conn  *stubConn
}

func newHarness(inboxUids ...uint32) *harness {
	return &harness{
		store: &memStore{},
		conn:  &stubConn{uidsByFolder: map[string][]uint32{"INBOX": inboxUids}},
	}
}

func (h *harness) engine(t *testing.T, configFunc ...ConfigFunc) *Engine {
	t.Helper()
	engine, err := NewEngine(
		h.store,
		staticSecret{},
		&stubIngestor{},
		dedup.NewIndex(h.store),
		func(account *domain.Account, secret string) (domain.ImapConnector, error) {
			return h.conn, nil
		},
		configFunc...,
	)
	require.NoError(t, err)
	return engine
}

func account() *domain.Account {
	return &domain.Account{Id: 1, Address: "user@example.org", ImapHost: "imap.example.org"}
}

func TestSync_PullsMostRecentFirstUpToLimit(t *testing.T) {
	h := newHarness(10, 11, 12)

	result, err := h.engine(t).Sync(account(), domain.FolderInbox, 2)

	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, result.Status())
	assert.Equal(t, 2, result.NewCount)
	assert.Equal(t, []uint32{12, 11}, h.conn.fetched)

	require.Len(t, h.store.mails, 2)
	for _, m := range h.store.mails {
		assert.Equal(t, domain.FolderInbox, m.Folder)
		assert.Equal(t, int64(1), m.AccountId)
	}
}

func TestSync_Idempotent(t *testing.T) {
	h := newHarness(10, 11, 12)
	engine := h.engine(t)

	first, err := engine.Sync(account(), domain.FolderInbox, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, first.NewCount)

	second, err := engine.Sync(account(), domain.FolderInbox, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, second.NewCount)
	assert.Len(t, h.store.mails, 3)
}

func TestSync_UnknownFolderIsAnError(t *testing.T) {
	h := newHarness()

	_, err := h.engine(t).Sync(account(), domain.Folder("outbox"), 0)

	assert.Error(t, err)
}

func TestSync_UnresolvableFolderWarnsAndIngestsNothing(t *testing.T) {
	h := newHarness(10, 11)

	result, err := h.engine(t).Sync(account(), domain.FolderTrash, 0)

	require.NoError(t, err)
	assert.Equal(t, domain.StatusWarning, result.Status())
	assert.Contains(t, result.Warning, "trash")
	assert.Empty(t, h.store.mails, "inbox mail must not be ingested under a wrong folder label")
}

func TestSync_ListFailureIsAWarningNotAnError(t *testing.T) {
	h := newHarness(10)
	h.conn.listErr = errors.New("search refused")

	result, err := h.engine(t).Sync(account(), domain.FolderInbox, 0)

	require.NoError(t, err)
	assert.Equal(t, domain.StatusWarning, result.Status())
}

func TestSync_FetchFailureSkipsThatMailOnly(t *testing.T) {
	h := newHarness(10, 11, 12)
	h.conn.fetchErr = map[uint32]error{11: errors.New("gone")}

	result, err := h.engine(t).Sync(account(), domain.FolderInbox, 0)

	require.NoError(t, err)
	assert.Equal(t, 2, result.NewCount)
}

func TestSync_DuplicateMessageIdStoredOnlyOnce(t *testing.T) {
	h := newHarness(10, 11)
	engine, err := NewEngine(
		h.store,
		staticSecret{},
		&stubIngestor{messageIds: map[string]string{
			"uid:10": "<same@example.org>",
			"uid:11": "<same@example.org>",
		}},
		dedup.NewIndex(h.store),
		func(account *domain.Account, secret string) (domain.ImapConnector, error) {
			return h.conn, nil
		},
	)
	require.NoError(t, err)

	result, err := engine.Sync(account(), domain.FolderInbox, 0)

	require.NoError(t, err)
	assert.Equal(t, 1, result.NewCount)
	require.Len(t, h.store.mails, 1)
}

func TestSync_TrashedMailNotResurrectedByInboxSync(t *testing.T) {
	h := newHarness(10)
	h.store.mails = []*domain.MailRecord{
		{Id: 1, AccountId: 1, Folder: domain.FolderTrash, Uid: 10},
	}

	result, err := h.engine(t).Sync(account(), domain.FolderInbox, 0)

	require.NoError(t, err)
	assert.Equal(t, 0, result.NewCount)
	require.Len(t, h.store.mails, 1)
	assert.Equal(t, domain.FolderTrash, h.store.mails[0].Folder)
}

func TestSyncNew_OnlyBeyondCursor(t *testing.T) {
	h := newHarness(10, 11, 12)
	h.store.mails = []*domain.MailRecord{
		{Id: 1, AccountId: 1, Folder: domain.FolderInbox, Uid: 11, MessageId: "<uid:11@example.org>"},
	}
	h.store.nextId = 1

	result, err := h.engine(t).SyncNew(account(), domain.FolderInbox)

	require.NoError(t, err)
	assert.Equal(t, 1, result.NewCount)
	require.Len(t, result.Mails, 1)
	assert.Equal(t, uint32(12), result.Mails[0].Uid)
	assert.Equal(t, []uint32{12}, h.conn.fetched, "uids at or below the cursor are never fetched")
}

func TestSyncNew_WithoutCursorSeedsBounded(t *testing.T) {
	h := newHarness(1, 2, 3, 4, 5)

	result, err := h.engine(t, SeedLimit(2)).SyncNew(account(), domain.FolderInbox)

	require.NoError(t, err)
	assert.Equal(t, 2, result.NewCount)
	assert.Equal(t, []uint32{5, 4}, h.conn.fetched)
}

func TestSyncNew_NothingNewReturnsEmptySuccess(t *testing.T) {
	h := newHarness(10)
	h.store.mails = []*domain.MailRecord{
		{Id: 1, AccountId: 1, Folder: domain.FolderInbox, Uid: 10, MessageId: "<uid:10@example.org>"},
	}
	h.store.nextId = 1

	result, err := h.engine(t).SyncNew(account(), domain.FolderInbox)

	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, result.Status())
	assert.Equal(t, 0, result.NewCount)
	assert.Empty(t, result.Mails)
}

func TestConfiguration_RejectsNonPositiveLimits(t *testing.T) {
	h := newHarness()

	_, err := NewEngine(
		h.store, staticSecret{}, &stubIngestor{}, dedup.NewIndex(h.store),
		func(account *domain.Account, secret string) (domain.ImapConnector, error) { return h.conn, nil },
		FullSyncLimit(0),
	)
	assert.Error(t, err)

	_, err = NewEngine(
		h.store, staticSecret{}, &stubIngestor{}, dedup.NewIndex(h.store),
		func(account *domain.Account, secret string) (domain.ImapConnector, error) { return h.conn, nil },
		SeedLimit(-1),
	)
	assert.Error(t, err)
}
