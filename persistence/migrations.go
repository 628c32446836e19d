// SPDX-License-Identifier: GPL-3.0-or-later
package persistence

import (
	migrate "github.com/rubenv/sql-migrate"
)

var migrationSource = &migrate.MemoryMigrationSource{
	Migrations: []*migrate.Migration{
		{
			Id: "1_mails",
			Up: []string{`
CREATE TABLE mails (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	accountid INTEGER NOT NULL,
	folder TEXT NOT NULL,
	uid INTEGER NOT NULL DEFAULT 0,
	messageid TEXT NOT NULL DEFAULT '',
	subject TEXT NOT NULL DEFAULT '',
	sender TEXT NOT NULL DEFAULT '',
	recipient TEXT NOT NULL DEFAULT '',
	receivedat DATETIME NOT NULL,
	bodytext TEXT NOT NULL DEFAULT '',
	bodyhtml TEXT NOT NULL DEFAULT '',
	body TEXT NOT NULL DEFAULT '',
	preview TEXT NOT NULL DEFAULT '',
	emailtype TEXT NOT NULL DEFAULT '',
	preservelayout BOOLEAN NOT NULL DEFAULT 0,
	forceleftalign BOOLEAN NOT NULL DEFAULT 0,
	cleanedhtml TEXT NOT NULL DEFAULT ''
);`,
				`CREATE INDEX idx_mails_account_folder ON mails(accountid, folder);`,
				`CREATE INDEX idx_mails_account_uid ON mails(accountid, uid);`,
				`CREATE INDEX idx_mails_account_messageid ON mails(accountid, messageid);`,
			},
			Down: []string{`DROP TABLE mails;`},
		},
	},
}
