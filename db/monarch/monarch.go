package monarch

// Monarch is a simple migration application library.
// It manages itself with itself.

import (
	"database/sql"
	"time"
)

type DB interface {
	Exec(query string, arguments ...interface{}) (sql.Result, error)
	Get(dest interface{}, query string, arguments ...interface{}) error
}

// A Set is a named set of migrations.
type Set struct {
	Name       string
	Migrations []Migration
}

// A Migration is two statements; one that, when executed, upgrades to that
// version, and another that can undo it.
type Migration struct {
	Up   string
	Down string
}

// A Manager applies migrations.
type Manager struct {
	db DB
}

// NewManager creates a new manager.  If it has not been bootstrapped on this
// db, then it is bootstrapped now.  If it fails to bootstrap, it won't work.
func NewManager(db DB) (*Manager, error) {
	manager := &Manager{db: db}
	return manager, manager.bootstrap()
}

func (m *Manager) bootstrap() error {
	set := Set{
		Name: "monarch",
		Migrations: []Migration{
			{
				Up: `CREATE TABLE IF NOT EXISTS migrations (
					version int NOT NULL,
					name text NOT NULL,
					applied_at int NOT NULL,
					PRIMARY KEY (version, name)
				);`,
				Down: `DROP TABLE migrations;`,
			},
		},
	}

	if _, err := m.db.Exec(set.Migrations[0].Up); err != nil {
		return err
	}
	return m.Upgrade(set)
}

// Upgrade set to the latest migration level.
func (m *Manager) Upgrade(set Set) error {
	version, err := m.GetVersion(set.Name)
	if err != nil {
		return err
	}

	for v, mig := range set.Migrations {
		// skip already applied migrations
		if v <= version {
			continue
		}
		if _, err := m.db.Exec(mig.Up); err != nil {
			return err
		}
		// this would be bad;  we've applied a migration safely
		// but could not update the version.
		if err := m.SetVersion(set.Name, v); err != nil {
			return err
		}
	}
	return nil
}

// GetVersion returns the latest applied migration version for setName.
func (m *Manager) GetVersion(setName string) (version int, err error) {
	err = m.db.Get(&version, `SELECT COALESCE(max(version), -1)
	FROM migrations WHERE name=?;`, setName)
	return version, err
}

func (m *Manager) SetVersion(setName string, version int) error {
	now := time.Now().Unix()
	_, err := m.db.Exec(`INSERT INTO migrations (version, name, applied_at) VALUES (?, ?, ?);`,
		version, setName, now)
	return err
}
