// SPDX-License-Identifier: GPL-3.0-or-later
package credential

import (
	"fmt"

	"github.com/halverson/go-imap-mirror/domain"

	"github.com/99designs/keyring"
)

const serviceName = "go-imap-mirror"

// KeyringSource reads mail account secrets from the system keyring. Secrets
// stay in the keyring: they are handed to the connection factory per call and
// never written to the mirror database or the logs.
type KeyringSource struct {
	ring keyring.Keyring
}

func NewKeyringSource() (*KeyringSource, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/go-imap-mirror/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("go-imap-mirror-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("could not open keyring: %w", err)
	}

	return &KeyringSource{ring: ring}, nil
}

func (s *KeyringSource) Secret(account *domain.Account) (string, error) {
	if account.CredentialKey == "" {
		return "", fmt.Errorf("account %s has no credential key", account.Address)
	}

	item, err := s.ring.Get(account.CredentialKey)
	if err != nil {
		return "", fmt.Errorf("could not read credential %q: %w", account.CredentialKey, err)
	}

	return string(item.Data), nil
}

// Store saves a secret under key so accounts can reference it. Used by setup
// tooling, never during sync.
func (s *KeyringSource) Store(key, secret string) error {
	err := s.ring.Set(keyring.Item{
		Key:  key,
		Data: []byte(secret),
	})
	if err != nil {
		return fmt.Errorf("could not store credential %q: %w", key, err)
	}

	return nil
}
