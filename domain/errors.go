// SPDX-License-Identifier: GPL-3.0-or-later
package domain

import "fmt"

// TransportError is a connect, login or protocol command failure. It is fatal
// to the current call; no further remote steps are attempted.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// FolderResolutionError means no candidate name for a canonical folder was
// accepted by the server. Callers degrade to a fallback folder or to
// local-only behaviour, they never abort on it.
type FolderResolutionError struct {
	Category Folder
	Tried    []string
}

func (e *FolderResolutionError) Error() string {
	return fmt.Sprintf("no remote folder found for %q, tried %v", e.Category, e.Tried)
}

// ParseError marks a single message whose raw bytes could not be parsed. The
// ingestor degrades fields instead of surfacing it; it exists for logging.
type ParseError struct {
	Uid uint32
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("could not parse message uid %d: %v", e.Uid, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// PersistenceError is a single failed local write. The record is skipped and
// the batch continues.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("local store failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
