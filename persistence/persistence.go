// SPDX-License-Identifier: GPL-3.0-or-later
package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/halverson/go-imap-mirror/domain"
	"github.com/halverson/go-imap-mirror/log"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/sirupsen/logrus"
)

type Persistence struct {
	db *sqlx.DB
	l  *logrus.Logger
}

func NewPersistence(datasource string) (*Persistence, error) {
	db, err := sqlx.Connect("sqlite3", datasource)
	if err != nil {
		return nil, fmt.Errorf("could not open db: %w", err)
	}
	db.SetMaxOpenConns(1)

	l := log.Logger(log.LOG_PERSISTENCE)
	l.WithField("file", datasource).Info("Connected")

	_, err = db.Exec(`PRAGMA journal_mode=WAL`)
	if err != nil {
		return nil, fmt.Errorf("could not set journal mode: %w", err)
	}
	_, err = db.Exec(`PRAGMA synchronous=normal`)
	if err != nil {
		return nil, fmt.Errorf("could not set synchronous mode: %w", err)
	}

	appliedMigrations, err := migrate.Exec(db.DB, "sqlite3", migrationSource, migrate.Up)
	if err != nil {
		return nil, fmt.Errorf("could not migrate to newest version: %w", err)
	}

	l.WithField("migrations", appliedMigrations).Debug("Executed migrations")

	return &Persistence{
		db: db,
		l:  l,
	}, nil
}

func (p *Persistence) Close() error {
	err := p.db.Close()
	if err != nil {
		return fmt.Errorf("could not close db: %w", err)
	}
	p.l.Info("Disconnected")
	return nil
}

type dbMail struct {
	Id             int64     `db:"id"`
	AccountId      int64     `db:"accountid"`
	Folder         string    `db:"folder"`
	Uid            uint32    `db:"uid"`
	MessageId      string    `db:"messageid"`
	Subject        string    `db:"subject"`
	Sender         string    `db:"sender"`
	Recipient      string    `db:"recipient"`
	ReceivedAt     time.Time `db:"receivedat"`
	BodyText       string    `db:"bodytext"`
	BodyHTML       string    `db:"bodyhtml"`
	Body           string    `db:"body"`
	Preview        string    `db:"preview"`
	EmailType      string    `db:"emailtype"`
	PreserveLayout bool      `db:"preservelayout"`
	ForceLeftAlign bool      `db:"forceleftalign"`
	CleanedHTML    string    `db:"cleanedhtml"`
}

const mailColumns = `id, accountid, folder, uid, messageid, subject, sender, recipient, receivedat,
	bodytext, bodyhtml, body, preview, emailtype, preservelayout, forceleftalign, cleanedhtml`

func toRecord(m *dbMail) *domain.MailRecord {
	return &domain.MailRecord{
		Id:         m.Id,
		AccountId:  m.AccountId,
		Folder:     domain.Folder(m.Folder),
		Uid:        m.Uid,
		MessageId:  m.MessageId,
		Subject:    m.Subject,
		Sender:     m.Sender,
		Recipient:  m.Recipient,
		ReceivedAt: m.ReceivedAt,
		BodyText:   m.BodyText,
		BodyHTML:   m.BodyHTML,
		Body:       m.Body,
		Preview:    m.Preview,
		Classification: domain.Classification{
			Type:           m.EmailType,
			PreserveLayout: m.PreserveLayout,
			ForceLeftAlign: m.ForceLeftAlign,
			CleanedHTML:    m.CleanedHTML,
		},
	}
}

// SaveMail inserts one record in its own transaction so a failure later in
// the same sync batch cannot roll it back. The generated id is written back
// into mail.
func (p *Persistence) SaveMail(mail *domain.MailRecord) error {
	result, err := p.db.Exec(
		`INSERT INTO mails (accountid, folder, uid, messageid, subject, sender, recipient, receivedat,
			bodytext, bodyhtml, body, preview, emailtype, preservelayout, forceleftalign, cleanedhtml)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		mail.AccountId, string(mail.Folder), mail.Uid, mail.MessageId, mail.Subject, mail.Sender,
		mail.Recipient, mail.ReceivedAt, mail.BodyText, mail.BodyHTML, mail.Body, mail.Preview,
		mail.Classification.Type, mail.Classification.PreserveLayout,
		mail.Classification.ForceLeftAlign, mail.Classification.CleanedHTML,
	)
	if err != nil {
		return fmt.Errorf("could not save mail: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("could not read inserted id: %w", err)
	}
	mail.Id = id

	return nil
}

func (p *Persistence) UpdateFolder(id int64, folder domain.Folder) error {
	result, err := p.db.Exec(
		"UPDATE mails SET folder = ? WHERE id = ?",
		string(folder), id,
	)
	if err != nil {
		return fmt.Errorf("could not update folder: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get num of affected rows: %w", err)
	}

	if affected != 1 {
		return fmt.Errorf("unexpected number of affected rows, expected 1 got %d", affected)
	}

	return nil
}

func (p *Persistence) DeleteMail(id int64) error {
	_, err := p.db.Exec("DELETE FROM mails WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("could not delete mail: %w", err)
	}

	return nil
}

func (p *Persistence) MailById(accountId int64, id int64) (*domain.MailRecord, error) {
	return p.getMail(
		"SELECT "+mailColumns+" FROM mails WHERE accountid = ? AND id = ?",
		accountId, id,
	)
}

// MailByUid only matches confirmed records: uid 0 marks mails that were never
// seen on the server and must not collide with each other.
func (p *Persistence) MailByUid(accountId int64, uid uint32) (*domain.MailRecord, error) {
	if uid == 0 {
		return nil, nil
	}

	return p.getMail(
		"SELECT "+mailColumns+" FROM mails WHERE accountid = ? AND uid = ?",
		accountId, uid,
	)
}

func (p *Persistence) MailByMessageId(accountId int64, messageId string) (*domain.MailRecord, error) {
	if messageId == "" {
		return nil, nil
	}

	return p.getMail(
		"SELECT "+mailColumns+" FROM mails WHERE accountid = ? AND messageid = ?",
		accountId, messageId,
	)
}

func (p *Persistence) getMail(query string, args ...interface{}) (*domain.MailRecord, error) {
	mail := dbMail{}
	err := p.db.Get(&mail, query, args...)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not query db: %w", err)
	}

	return toRecord(&mail), nil
}

func (p *Persistence) MailsInFolder(accountId int64, folder domain.Folder, limit, offset int) ([]*domain.MailRecord, error) {
	return p.selectMails(
		"SELECT "+mailColumns+" FROM mails WHERE accountid = ? AND folder = ? ORDER BY receivedat DESC LIMIT ? OFFSET ?",
		accountId, string(folder), limit, offset,
	)
}

func (p *Persistence) MaxUid(accountId int64, folder domain.Folder) (uint32, error) {
	var maxUid uint32
	err := p.db.Get(
		&maxUid,
		"SELECT COALESCE(MAX(uid), 0) FROM mails WHERE accountid = ? AND folder = ?",
		accountId, string(folder),
	)
	if err != nil {
		return 0, fmt.Errorf("could not query db: %w", err)
	}

	return maxUid, nil
}

func (p *Persistence) Search(accountId int64, query string, limit int) ([]*domain.MailRecord, error) {
	pattern := "%" + query + "%"
	return p.selectMails(
		"SELECT "+mailColumns+" FROM mails WHERE accountid = ? AND (subject LIKE ? OR sender LIKE ? OR body LIKE ?) ORDER BY receivedat DESC LIMIT ?",
		accountId, pattern, pattern, pattern, limit,
	)
}

func (p *Persistence) selectMails(query string, args ...interface{}) ([]*domain.MailRecord, error) {
	dbMails := []dbMail{}
	err := p.db.Select(&dbMails, query, args...)
	if err != nil {
		return nil, fmt.Errorf("could not query db: %w", err)
	}

	mails := make([]*domain.MailRecord, 0, len(dbMails))
	for i := range dbMails {
		mails = append(mails, toRecord(&dbMails[i]))
	}

	return mails, nil
}

func (p *Persistence) CountsByFolder(accountId int64) (map[domain.Folder]int, error) {
	rows := []struct {
		Folder string `db:"folder"`
		Count  int    `db:"count"`
	}{}

	err := p.db.Select(
		&rows,
		"SELECT folder, COUNT(*) AS count FROM mails WHERE accountid = ? GROUP BY folder",
		accountId,
	)
	if err != nil {
		return nil, fmt.Errorf("could not query db: %w", err)
	}

	counts := map[domain.Folder]int{}
	for _, r := range rows {
		counts[domain.Folder(r.Folder)] = r.Count
	}

	return counts, nil
}
