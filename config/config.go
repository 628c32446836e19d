// SPDX-License-Identifier: GPL-3.0-or-later
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Database string

	Address  string
	ImapHost string
	ImapPort int
	SmtpHost string
	SmtpPort int

	// CredentialKey names the secret in the system keyring. Password is a
	// plaintext fallback for setups without a keyring; it wins when set.
	CredentialKey string
	Password      string

	SyncFolders []string
	SyncLimit   int

	Loglevel *string
}

func ReadConfig(filename string) (*Config, error) {
	config := &Config{
		Database:    "mirror.db",
		ImapPort:    993,
		SmtpPort:    587,
		SyncFolders: []string{"inbox"},
		SyncLimit:   100,
	}

	_, err := toml.DecodeFile(filename, config)
	if err != nil {
		return nil, fmt.Errorf("could not read config file: %w", err)
	}

	err = config.validate()
	if err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) validate() error {
	if err := validateNonEmptyStringField(c.Database, "Database name must not be empty, set to a filename for the sqlite database"); err != nil {
		return err
	}

	if err := validateNonEmptyStringField(c.Address, "Address must not be empty, set to the mailbox address"); err != nil {
		return err
	}

	if err := validateNonEmptyStringField(c.ImapHost, "ImapHost must not be empty, set to the hostname of the imap server"); err != nil {
		return err
	}

	credentialSet := len(strings.TrimSpace(c.CredentialKey)) > 0
	passwordSet := len(strings.TrimSpace(c.Password)) > 0
	if !credentialSet && !passwordSet {
		return fmt.Errorf("set either CredentialKey or Password to authenticate against the imap server")
	}

	if c.SyncLimit <= 0 {
		return fmt.Errorf("SyncLimit must be positive")
	}

	return nil
}

func validateNonEmptyStringField(field string, err string) error {
	if len(strings.TrimSpace(field)) == 0 {
		return errors.New(err)
	}

	return nil
}
