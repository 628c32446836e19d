// SPDX-License-Identifier: GPL-3.0-or-later
package domain

// CredentialSource supplies the decrypted secret for an account. The secret
// must never be persisted or logged by this module.
type CredentialSource interface {
	Secret(account *Account) (string, error)
}
