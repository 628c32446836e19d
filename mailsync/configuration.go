// SPDX-License-Identifier: GPL-3.0-or-later
package mailsync

import "fmt"

type ConfigFunc func(c *configuration) error

// FullSyncLimit caps how many of the most recent messages a full sync pulls
// when the caller passes no explicit limit.
func FullSyncLimit(limit int) ConfigFunc {
	return func(c *configuration) error {
		if limit <= 0 {
			return fmt.Errorf("FullSyncLimit must be positive")
		}

		c.FullSyncLimit = limit
		return nil
	}
}

// SeedLimit caps how many messages an incremental sync pulls when no cursor
// exists yet for the folder.
func SeedLimit(limit int) ConfigFunc {
	return func(c *configuration) error {
		if limit <= 0 {
			return fmt.Errorf("SeedLimit must be positive")
		}

		c.SeedLimit = limit
		return nil
	}
}

type configuration struct {
	FullSyncLimit int
	SeedLimit     int
}
