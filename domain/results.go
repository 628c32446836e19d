// SPDX-License-Identifier: GPL-3.0-or-later
package domain

// Status distinguishes full success, partial success where the local side
// applied but the remote side did not, and hard failure.
type Status string

const (
	StatusSuccess = Status("success")
	StatusWarning = Status("warning")
)

// SyncResult is the outcome of a full or incremental sync. Mails is only
// populated by incremental sync, where the caller needs the payload for
// immediate presentation.
type SyncResult struct {
	NewCount int
	Mails    []*MailRecord
	Warning  string
}

// Status is StatusWarning when the intended folder was unavailable or any
// message had to be skipped on error, StatusSuccess otherwise.
func (r *SyncResult) Status() Status {
	if r.Warning != "" {
		return StatusWarning
	}
	return StatusSuccess
}

// Operation is one folder-mutating user action.
type Operation string

const (
	OpDelete  = Operation("delete")
	OpArchive = Operation("archive")
	OpRestore = Operation("restore")
)

// MutationResult reports both sides of one propagation. The local side always
// applies; RemoteApplied is false when remote propagation was skipped or
// failed. Failures degrade Status to warning rather than an error, while a
// message that never had a server uid reports success with an explicit
// local-only outcome.
type MutationResult struct {
	Status        Status
	LocalOutcome  string
	RemoteOutcome string
	RemoteApplied bool
}

// BulkResult aggregates one batch of mutations. Status is success only when
// every remote sub-operation succeeded.
type BulkResult struct {
	Status        Status
	LocalSuccess  int
	RemoteSuccess int
	RemoteTotal   int
	Message       string
}
