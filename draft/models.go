package draft

import (
	"fmt"
	"time"

	"github.com/zhorzholianitornike/vinegar/db/monarch"
)

// Status is the review state of a draft.  The set is closed; anything else
// coming out of storage is a consistency fault, not a new state.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusApproved  Status = "approved"
	StatusPublished Status = "published"
	StatusRejected  Status = "rejected"
)

// ParseStatus validates a stored status string.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusDraft, StatusApproved, StatusPublished, StatusRejected:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusPublished || s == StatusRejected
}

// Emoji returns the chat marker for s.  Statuses are validated on the way
// out of the store, so an unknown value here is a programming error.
func (s Status) Emoji() string {
	switch s {
	case StatusDraft:
		return "📝"
	case StatusApproved:
		return "✅"
	case StatusPublished:
		return "🎉"
	case StatusRejected:
		return "❌"
	}
	panic("unknown status " + string(s))
}

// Provenance tags who made a text edit.
type Provenance string

const (
	EditedByUser      Provenance = "user"
	EditedByGenerator Provenance = "generator"
	EditedBySurface   Provenance = "surface"
)

// A Draft is a generated post awaiting review and publication.
type Draft struct {
	ID      int64  `db:"id"`
	Subject string `db:"subject"`
	Text    string `db:"text"`
	// ImageRef is a path under the media dir; empty until an image is attached
	ImageRef  string    `db:"image_ref"`
	Status    Status    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
	// PublishedAt is nil unless Status is StatusPublished
	PublishedAt *time.Time `db:"published_at"`
	// MessageRef is the chat message showing this draft, 0 if never sent.
	// Only the interaction surface writes it.
	MessageRef int64 `db:"message_ref"`
	// ScheduleNote is a human-readable echo of a pending schedule.  It is
	// not used to recover schedules after a restart.
	ScheduleNote string `db:"schedule_note"`
}

// An EditHistoryEntry records one text mutation.  Entries are append-only.
type EditHistoryEntry struct {
	ID       int64      `db:"id"`
	DraftID  int64      `db:"draft_id"`
	OldText  string     `db:"old_text"`
	NewText  string     `db:"new_text"`
	EditedBy Provenance `db:"edited_by"`
	EditedAt time.Time  `db:"edited_at"`
}

var draftMigrations = monarch.Set{
	Name: "draft",
	Migrations: []monarch.Migration{
		{
			Up: `CREATE TABLE IF NOT EXISTS draft (
				id INTEGER PRIMARY KEY,
				subject TEXT NOT NULL,
				text TEXT NOT NULL DEFAULT '',
				image_ref TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL DEFAULT 'draft',
				created_at datetime DEFAULT (datetime('now')),
				updated_at datetime DEFAULT (datetime('now')),
				published_at datetime,
				message_ref INTEGER NOT NULL DEFAULT 0,
				schedule_note TEXT NOT NULL DEFAULT ''
			);`,
			Down: `DROP TABLE draft;`,
		}, {
			Up:   `CREATE INDEX draft_status ON draft (status, created_at);`,
			Down: `DROP INDEX draft_status;`,
		},
	},
}

var historyMigrations = monarch.Set{
	Name: "edit_history",
	Migrations: []monarch.Migration{
		{
			Up: `CREATE TABLE IF NOT EXISTS edit_history (
				id INTEGER PRIMARY KEY,
				draft_id INTEGER NOT NULL,
				old_text TEXT NOT NULL DEFAULT '',
				new_text TEXT NOT NULL DEFAULT '',
				edited_by TEXT NOT NULL DEFAULT 'user',
				edited_at datetime DEFAULT (datetime('now')),
				FOREIGN KEY (draft_id) REFERENCES draft(id)
			);`,
			Down: `DROP TABLE edit_history;`,
		}, {
			Up:   `CREATE INDEX edit_history_draft ON edit_history (draft_id, edited_at);`,
			Down: `DROP INDEX edit_history_draft;`,
		},
	},
}
