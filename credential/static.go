// SPDX-License-Identifier: GPL-3.0-or-later
package credential

import (
	"fmt"

	"github.com/halverson/go-imap-mirror/domain"
)

// StaticSource serves one secret from memory, for configurations that carry
// the password directly instead of a keyring reference.
type StaticSource struct {
	secret string
}

func NewStaticSource(secret string) *StaticSource {
	return &StaticSource{secret: secret}
}

func (s *StaticSource) Secret(account *domain.Account) (string, error) {
	if s.secret == "" {
		return "", fmt.Errorf("no password configured for %s", account.Address)
	}

	return s.secret, nil
}
