// SPDX-License-Identifier: GPL-3.0-or-later
package folders

import (
	"github.com/halverson/go-imap-mirror/domain"
	"github.com/halverson/go-imap-mirror/log"

	"github.com/sirupsen/logrus"
)

// Inbox is the one folder name every server accepts; callers fall back to it
// when resolution fails and inbox-equivalent behaviour is acceptable.
const Inbox = "INBOX"

// candidates maps each canonical category to remote folder names in probe
// order. sent, trash and archive carry the historically common
// provider-specific spellings; the rest are single-candidate.
var candidates = map[domain.Folder][]string{
	domain.FolderInbox:  {Inbox},
	domain.FolderDrafts: {"Drafts"},
	domain.FolderSpam:   {"Spam"},
	domain.FolderSent: {
		"[Gmail]/Sent Mail",
		"Sent",
		"Sent Items",
		"INBOX.Sent",
		"[Gmail]/Sent",
		"Sent Messages",
	},
	domain.FolderTrash: {
		"[Gmail]/Trash",
		"Trash",
		"Deleted Items",
		"INBOX.Trash",
	},
	domain.FolderArchive: {
		"[Gmail]/All Mail",
		"Archive",
		"INBOX.Archive",
		"Archived",
	},
}

// Probe attempts to select one remote folder name. The resolver treats any
// non-nil error as "this candidate does not exist on the server".
type Probe func(folder string) error

// Resolver maps canonical categories to the remote names one server uses.
// Successful resolutions are cached, so repeated operations in the same
// connection session do not re-probe. The cache is session-scoped: a fresh
// connection gets a fresh resolver.
type Resolver struct {
	resolved map[domain.Folder]string

	l *logrus.Logger
}

func NewResolver() *Resolver {
	return &Resolver{
		resolved: map[domain.Folder]string{},
		l:        log.Logger(log.LOG_IMAP),
	}
}

// Resolve returns the first candidate name for category that probe accepts.
// It fails with *domain.FolderResolutionError only when every candidate is
// refused; callers must treat that as a soft failure.
func (r *Resolver) Resolve(category domain.Folder, probe Probe) (string, error) {
	if name, ok := r.resolved[category]; ok {
		return name, nil
	}

	names := candidates[category]
	if len(names) == 0 {
		return "", &domain.FolderResolutionError{Category: category}
	}

	for _, name := range names {
		err := probe(name)
		if err != nil {
			r.l.WithFields(logrus.Fields{"category": category, "candidate": name, "error": err}).Debug("Folder candidate refused")
			continue
		}

		r.l.WithFields(logrus.Fields{"category": category, "folder": name}).Debug("Resolved folder")
		r.resolved[category] = name
		return name, nil
	}

	return "", &domain.FolderResolutionError{Category: category, Tried: names}
}

// Candidates exposes the probe order for a category. Mutation choreography
// uses it to report which names were attempted.
func Candidates(category domain.Folder) []string {
	names := candidates[category]
	out := make([]string, len(names))
	copy(out, names)
	return out
}
