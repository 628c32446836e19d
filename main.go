// SPDX-License-Identifier: GPL-3.0-or-later
package main

import (
	"github.com/halverson/go-imap-mirror/classify"
	"github.com/halverson/go-imap-mirror/config"
	"github.com/halverson/go-imap-mirror/credential"
	"github.com/halverson/go-imap-mirror/dedup"
	"github.com/halverson/go-imap-mirror/domain"
	"github.com/halverson/go-imap-mirror/imapconnection"
	"github.com/halverson/go-imap-mirror/ingest"
	"github.com/halverson/go-imap-mirror/log"
	"github.com/halverson/go-imap-mirror/mailsync"
	"github.com/halverson/go-imap-mirror/persistence"

	"github.com/sirupsen/logrus"
)

func main() {
	log.InitLogging("debug")
	logger := log.Logger(log.LOG_MAIN)

	conf, err := config.ReadConfig("config.toml")
	if err != nil {
		logger.WithField("error", err).Fatal("Could not load config")
	}

	if conf.Loglevel != nil {
		log.SetLogLevel(*conf.Loglevel)
	}

	p, err := persistence.NewPersistence(conf.Database)
	if err != nil {
		logger.WithField("error", err).Fatal("Could not connect to database")
	}
	defer p.Close()

	account := &domain.Account{
		Id:            1,
		Address:       conf.Address,
		ImapHost:      conf.ImapHost,
		ImapPort:      conf.ImapPort,
		SmtpHost:      conf.SmtpHost,
		SmtpPort:      conf.SmtpPort,
		CredentialKey: conf.CredentialKey,
	}

	credentials, err := credentialSource(conf)
	if err != nil {
		logger.WithField("error", err).Fatal("Could not open credential source")
	}

	connect := func(account *domain.Account, secret string) (domain.ImapConnector, error) {
		return imapconnection.NewImapConnection(account.ImapHost, account.ImapPort, account.Address, secret)
	}

	engine, err := mailsync.NewEngine(
		p,
		credentials,
		ingest.NewIngestor(classify.NewAnalyzer()),
		dedup.NewIndex(p),
		connect,
		mailsync.FullSyncLimit(conf.SyncLimit),
	)
	if err != nil {
		logger.WithField("error", err).Fatal("Could not start sync engine")
	}

	logger.WithFields(logrus.Fields{"account": account.Address, "folders": conf.SyncFolders}).Info("Syncing folders")
	for _, folder := range conf.SyncFolders {
		result, err := engine.Sync(account, domain.Folder(folder), 0)
		if err != nil {
			logger.WithFields(logrus.Fields{"folder": folder, "error": err}).Fatal("Sync failed")
		}

		if result.Status() == domain.StatusWarning {
			logger.WithFields(logrus.Fields{"folder": folder, "warning": result.Warning}).Warn("Folder sync degraded")
			continue
		}
		logger.WithFields(logrus.Fields{"folder": folder, "new": result.NewCount}).Info("Folder synced")
	}

	for _, folder := range conf.SyncFolders {
		result, err := engine.SyncNew(account, domain.Folder(folder))
		if err != nil {
			logger.WithFields(logrus.Fields{"folder": folder, "error": err}).Fatal("Incremental sync failed")
		}
		if result.Status() == domain.StatusWarning {
			logger.WithFields(logrus.Fields{"folder": folder, "warning": result.Warning}).Warn("Incremental sync degraded")
			continue
		}
		logger.WithFields(logrus.Fields{"folder": folder, "new": result.NewCount}).Info("Incremental sync done")
	}

	counts, err := p.CountsByFolder(account.Id)
	if err != nil {
		logger.WithField("error", err).Fatal("Could not read folder counts")
	}
	for folder, count := range counts {
		logger.WithFields(logrus.Fields{"folder": folder, "mails": count}).Info("Mirror state")
	}
}

func credentialSource(conf *config.Config) (domain.CredentialSource, error) {
	if conf.Password != "" {
		return credential.NewStaticSource(conf.Password), nil
	}
	return credential.NewKeyringSource()
}
