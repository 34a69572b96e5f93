package draft

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/zhorzholianitornike/vinegar/db"
	"github.com/zhorzholianitornike/vinegar/db/monarch"
)

// A Store is the datalayer for drafts and their edit history.  It is a dumb
// persistence layer: it does not validate transition legality, only that
// compound writes land atomically.
type Store struct {
	db db.DB
	// test usage
	now func() time.Time
}

// NewStore returns a Store over conn.
func NewStore(conn db.DB) *Store {
	return &Store{db: conn, now: time.Now}
}

// Migrate the draft backend.
func (s *Store) Migrate() error {
	manager, err := monarch.NewManager(s.db)
	if err != nil {
		return err
	}
	for _, m := range []monarch.Set{draftMigrations, historyMigrations} {
		if err := manager.Upgrade(m); err != nil {
			return fmt.Errorf("error running %s migration: %w", m.Name, err)
		}
	}
	return nil
}

// Create inserts a new draft with status "draft" and returns its id.
func (s *Store) Create(subject, text, imageRef string) (int64, error) {
	now := s.now()
	res, err := s.db.Exec(`INSERT INTO draft
		(subject, text, image_ref, status, created_at, updated_at) VALUES
		(?, ?, ?, ?, ?, ?);`,
		subject, text, imageRef, StatusDraft, now, now)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Get a draft by its id.
func (s *Store) Get(id int64) (*Draft, error) {
	return getDraft(s.db, id)
}

// getDraft is Get against any getter, so it can run inside a transaction.
func getDraft(g db.Getter, id int64) (*Draft, error) {
	var d Draft
	err := g.Get(&d, `SELECT * FROM draft WHERE id=?;`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if _, err := ParseStatus(string(d.Status)); err != nil {
		return nil, fmt.Errorf("draft %d: %w", id, err)
	}
	return &d, nil
}

// List returns drafts newest-created first.  A zero status returns all.
func (s *Store) List(status Status) ([]*Draft, error) {
	var (
		drafts []*Draft
		err    error
	)
	if status == "" {
		err = s.db.Select(&drafts, `SELECT * FROM draft ORDER BY created_at DESC, id DESC;`)
	} else {
		err = s.db.Select(&drafts, `SELECT * FROM draft WHERE status=?
			ORDER BY created_at DESC, id DESC;`, status)
	}
	if err != nil {
		return nil, err
	}
	for _, d := range drafts {
		if _, err := ParseStatus(string(d.Status)); err != nil {
			return nil, fmt.Errorf("draft %d: %w", d.ID, err)
		}
	}
	return drafts, nil
}

// Latest returns the most recently created draft.
func (s *Store) Latest() (*Draft, error) {
	var d Draft
	err := s.db.Get(&d, `SELECT * FROM draft ORDER BY created_at DESC, id DESC LIMIT 1;`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// UpdateText sets the draft's text and appends an edit history entry.  Both
// writes commit together or neither does.
func (s *Store) UpdateText(id int64, newText string, by Provenance) error {
	now := s.now()
	return db.With(s.db, func(tx *sqlx.Tx) error {
		d, err := getDraft(tx, id)
		if err != nil {
			return err
		}
		_, err = tx.Exec(`UPDATE draft SET text=?, updated_at=? WHERE id=?;`,
			newText, now, id)
		if err != nil {
			return err
		}
		_, err = tx.Exec(`INSERT INTO edit_history
			(draft_id, old_text, new_text, edited_by, edited_at) VALUES
			(?, ?, ?, ?, ?);`,
			id, d.Text, newText, by, now)
		return err
	})
}

// UpdateImage sets the draft's image reference.
func (s *Store) UpdateImage(id int64, ref string) error {
	return s.updateOne(`UPDATE draft SET image_ref=?, updated_at=? WHERE id=?;`,
		ref, s.now(), id)
}

// UpdateStatus sets the draft's status without checking transition
// legality; that is the engine's job.
func (s *Store) UpdateStatus(id int64, status Status) error {
	return s.updateOne(`UPDATE draft SET status=?, updated_at=? WHERE id=?;`,
		status, s.now(), id)
}

// SetMessageRef records the chat message rendering this draft.
func (s *Store) SetMessageRef(id, ref int64) error {
	return s.updateOne(`UPDATE draft SET message_ref=? WHERE id=?;`, ref, id)
}

// SetScheduleNote writes the human-readable schedule echo.
func (s *Store) SetScheduleNote(id int64, note string) error {
	return s.updateOne(`UPDATE draft SET schedule_note=? WHERE id=?;`, note, id)
}

// ClearScheduleNote removes the schedule echo.
func (s *Store) ClearScheduleNote(id int64) error {
	return s.SetScheduleNote(id, "")
}

// publish moves the draft to published iff it is currently approved,
// stamping published_at in the same statement.  Reports whether the write
// happened; the check and the act are one atomic statement so concurrent
// publishers cannot both win.
func (s *Store) publish(id int64, at time.Time) (bool, error) {
	res, err := s.db.Exec(`UPDATE draft SET status=?, published_at=?, updated_at=?
		WHERE id=? AND status=?;`,
		StatusPublished, at, at, id, StatusApproved)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Delete removes a draft and all of its edit history in one transaction.
func (s *Store) Delete(id int64) error {
	return db.With(s.db, func(tx *sqlx.Tx) error {
		// history rows go first; the draft row is the commit point
		if _, err := tx.Exec(`DELETE FROM edit_history WHERE draft_id=?;`, id); err != nil {
			return err
		}
		res, err := tx.Exec(`DELETE FROM draft WHERE id=?;`, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// History returns the draft's edit history, newest first.  Unknown or
// deleted ids yield an empty slice, not an error.
func (s *Store) History(id int64) ([]EditHistoryEntry, error) {
	var entries []EditHistoryEntry
	err := s.db.Select(&entries, `SELECT * FROM edit_history WHERE draft_id=?
		ORDER BY edited_at DESC, id DESC;`, id)
	return entries, err
}

// updateOne runs an update that should hit exactly one draft row.
func (s *Store) updateOne(q string, args ...interface{}) error {
	res, err := s.db.Exec(q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
