// SPDX-License-Identifier: GPL-3.0-or-later
package mailsync

import (
	"errors"
	"fmt"
	"sort"

	"github.com/halverson/go-imap-mirror/dedup"
	"github.com/halverson/go-imap-mirror/domain"
	"github.com/halverson/go-imap-mirror/folders"
	"github.com/halverson/go-imap-mirror/log"

	"github.com/sirupsen/logrus"
)

const (
	DefaultFullSyncLimit = 100
	DefaultSeedLimit     = 20
)

// Ingestor turns raw message bytes into a structured record.
type Ingestor interface {
	Ingest(raw []byte) *domain.MailRecord
}

// Deduplicator decides whether a candidate remote message is already
// represented locally.
type Deduplicator interface {
	Check(accountId int64, uid uint32, messageId string, observed domain.Folder) (dedup.Decision, error)
}

// Engine pulls remote messages into the local store. Full and incremental
// syncs for the same (account, folder) pair are serialized internally so two
// runs can never compute the same cursor and double-fetch.
type Engine struct {
	persistence domain.Persistence
	credentials domain.CredentialSource
	ingestor    Ingestor
	dedupIndex  Deduplicator
	connect     domain.ConnectorFactory

	configuration *configuration
	folderLocks   keyedMutex

	l *logrus.Logger
}

func NewEngine(
	persistence domain.Persistence,
	credentials domain.CredentialSource,
	ingestor Ingestor,
	dedupIndex Deduplicator,
	connect domain.ConnectorFactory,
	configFunc ...ConfigFunc,
) (*Engine, error) {
	config := &configuration{
		FullSyncLimit: DefaultFullSyncLimit,
		SeedLimit:     DefaultSeedLimit,
	}
	for _, f := range configFunc {
		err := f(config)
		if err != nil {
			return nil, fmt.Errorf("error applying configuration: %w", err)
		}
	}

	return &Engine{
		persistence:   persistence,
		credentials:   credentials,
		ingestor:      ingestor,
		dedupIndex:    dedupIndex,
		connect:       connect,
		configuration: config,
		l:             log.Logger(log.LOG_SYNC),
	}, nil
}

// Sync pulls the most recent limit messages of category into the local store
// and returns how many were new. A limit <= 0 selects the configured default.
// Only connection or login failure is fatal; everything else degrades to a
// warning or a skipped message.
func (e *Engine) Sync(account *domain.Account, category domain.Folder, limit int) (*domain.SyncResult, error) {
	if !domain.KnownFolder(category) {
		return nil, fmt.Errorf("unknown folder category %q", category)
	}
	if limit <= 0 {
		limit = e.configuration.FullSyncLimit
	}

	unlock := e.folderLocks.lock(folderKey(account, category))
	defer unlock()

	conn, err := e.open(account)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	uids, result := e.listFolder(conn, account, category)
	if result != nil {
		return result, nil
	}

	if len(uids) > limit {
		uids = uids[:limit]
	}

	newCount := 0
	for _, uid := range uids {
		if record := e.pullOne(conn, account, category, uid); record != nil {
			newCount++
		}
	}

	e.l.WithFields(logrus.Fields{"account": account.Address, "folder": category, "new": newCount}).Info("Synced folder")
	return &domain.SyncResult{NewCount: newCount}, nil
}

// SyncNew pulls only messages beyond the folder cursor, the highest UID
// already stored for (account, category). Unlike Sync it returns the full new
// records so callers can present them without a follow-up fetch. Without a
// cursor it behaves like a full sync bounded to the configured seed limit.
func (e *Engine) SyncNew(account *domain.Account, category domain.Folder) (*domain.SyncResult, error) {
	if !domain.KnownFolder(category) {
		return nil, fmt.Errorf("unknown folder category %q", category)
	}

	unlock := e.folderLocks.lock(folderKey(account, category))
	defer unlock()

	cursor, err := e.persistence.MaxUid(account.Id, category)
	if err != nil {
		return nil, fmt.Errorf("could not compute sync cursor: %w", err)
	}

	conn, err := e.open(account)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var uids []uint32
	var result *domain.SyncResult
	if cursor > 0 {
		uids, result = e.listFolderSince(conn, account, category, cursor)
	} else {
		uids, result = e.listFolder(conn, account, category)
		if result == nil && len(uids) > e.configuration.SeedLimit {
			uids = uids[:e.configuration.SeedLimit]
		}
	}
	if result != nil {
		return result, nil
	}

	syncResult := &domain.SyncResult{}
	for _, uid := range uids {
		if record := e.pullOne(conn, account, category, uid); record != nil {
			syncResult.NewCount++
			syncResult.Mails = append(syncResult.Mails, record)
		}
	}

	e.l.WithFields(logrus.Fields{"account": account.Address, "folder": category, "cursor": cursor, "new": syncResult.NewCount}).Info("Incremental sync done")
	return syncResult, nil
}

func (e *Engine) open(account *domain.Account) (domain.ImapConnector, error) {
	secret, err := e.credentials.Secret(account)
	if err != nil {
		return nil, fmt.Errorf("could not resolve credential: %w", err)
	}

	conn, err := e.connect(account, secret)
	if err != nil {
		return nil, fmt.Errorf("could not connect: %w", err)
	}

	return conn, nil
}

// listFolder resolves the category and lists all UIDs, most recent first. A
// non-nil result means the sync degrades: the intended folder is unavailable
// or not listable, which is a warning outcome rather than a failure.
func (e *Engine) listFolder(conn domain.ImapConnector, account *domain.Account, category domain.Folder) ([]uint32, *domain.SyncResult) {
	if warn := e.resolveFolder(conn, account, category); warn != nil {
		return nil, warn
	}

	uids, err := conn.ListUids()
	if err != nil {
		e.l.WithFields(logrus.Fields{"account": account.Address, "folder": category, "error": err}).Warn("Could not list folder")
		return nil, &domain.SyncResult{Warning: fmt.Sprintf("could not list %s folder: %v", category, err)}
	}

	sortDescending(uids)
	return uids, nil
}

func (e *Engine) listFolderSince(conn domain.ImapConnector, account *domain.Account, category domain.Folder, cursor uint32) ([]uint32, *domain.SyncResult) {
	if warn := e.resolveFolder(conn, account, category); warn != nil {
		return nil, warn
	}

	uids, err := conn.ListUidsSince(cursor)
	if err != nil {
		e.l.WithFields(logrus.Fields{"account": account.Address, "folder": category, "error": err}).Warn("Could not search folder")
		return nil, &domain.SyncResult{Warning: fmt.Sprintf("could not search %s folder: %v", category, err)}
	}

	sortDescending(uids)
	return uids, nil
}

// resolveFolder probes the candidate names for category with a read-only
// select. When nothing resolves the sync is not aborted and nothing is
// ingested either: pulling the inbox under a wrong folder label would violate
// the cross-folder invariants.
func (e *Engine) resolveFolder(conn domain.ImapConnector, account *domain.Account, category domain.Folder) *domain.SyncResult {
	resolver := folders.NewResolver()
	_, err := resolver.Resolve(category, func(name string) error {
		_, selectErr := conn.SelectReadOnly(name)
		return selectErr
	})

	var resolutionErr *domain.FolderResolutionError
	if errors.As(err, &resolutionErr) {
		e.l.WithFields(logrus.Fields{"account": account.Address, "folder": category}).Warn("No remote folder found")
		return &domain.SyncResult{Warning: fmt.Sprintf("no %s folder found on the server", category)}
	}
	if err != nil {
		return &domain.SyncResult{Warning: fmt.Sprintf("could not resolve %s folder: %v", category, err)}
	}

	return nil
}

// pullOne runs the dedup checks, fetch, ingest and store for a single UID.
// Any per-message failure is logged and skipped, the batch continues; nil
// means the UID produced no new record.
func (e *Engine) pullOne(conn domain.ImapConnector, account *domain.Account, category domain.Folder, uid uint32) *domain.MailRecord {
	decision, err := e.dedupIndex.Check(account.Id, uid, "", category)
	if err != nil {
		e.l.WithFields(logrus.Fields{"uid": uid, "error": err}).Error("Dedup lookup failed, skipping mail")
		return nil
	}
	if decision.Skip() {
		return nil
	}

	raw, err := conn.FetchMail(uid)
	if err != nil {
		e.l.WithFields(logrus.Fields{"uid": uid, "error": err}).Error("Could not fetch mail, skipping")
		return nil
	}

	record := e.ingestor.Ingest(raw)
	record.AccountId = account.Id
	record.Folder = category
	record.Uid = uid

	if record.MessageId != "" {
		decision, err = e.dedupIndex.Check(account.Id, 0, record.MessageId, category)
		if err != nil {
			e.l.WithFields(logrus.Fields{"uid": uid, "error": err}).Error("Dedup lookup failed, skipping mail")
			return nil
		}
		if decision.Skip() {
			return nil
		}
	}

	err = e.persistence.SaveMail(record)
	if err != nil {
		persistErr := &domain.PersistenceError{Op: "save mail", Err: err}
		e.l.WithFields(logrus.Fields{"uid": uid, "error": persistErr}).Error("Could not store mail, skipping")
		return nil
	}

	return record
}

func folderKey(account *domain.Account, category domain.Folder) string {
	return fmt.Sprintf("%d/%s", account.Id, category)
}

func sortDescending(uids []uint32) {
	sort.Slice(uids, func(i, j int) bool { return uids[i] > uids[j] })
}
