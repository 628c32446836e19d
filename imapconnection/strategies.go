// SPDX-License-Identifier: GPL-3.0-or-later
package imapconnection

// Strategy seams for deletion and relocation. The concrete strategy is picked
// once per connection from the capabilities the server advertises.

type deleter interface {
	delete(uids []uint32) error
}

type mover interface {
	move(uids []uint32, folder string) error
}
