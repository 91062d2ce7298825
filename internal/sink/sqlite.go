package sink

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hazyhaar/pasteup/internal/dbopen"
	"github.com/hazyhaar/pasteup/report"
)

// The caller blank-imports the driver:
//
//	import _ "modernc.org/sqlite"
const sqliteDriver = "sqlite"

const journalSchema = `
CREATE TABLE IF NOT EXISTS uploads (
	id            TEXT PRIMARY KEY,
	session_id    TEXT NOT NULL,
	page_url      TEXT NOT NULL DEFAULT '',
	source        TEXT NOT NULL,
	name          TEXT NOT NULL,
	type          TEXT NOT NULL,
	size          INTEGER NOT NULL,
	digest        TEXT NOT NULL DEFAULT '',
	success       INTEGER NOT NULL,
	reason        TEXT NOT NULL DEFAULT '',
	error         TEXT NOT NULL DEFAULT '',
	strategy      TEXT NOT NULL DEFAULT '',
	from_cache    INTEGER NOT NULL DEFAULT 0,
	attempts      INTEGER NOT NULL DEFAULT 0,
	provocations  INTEGER NOT NULL DEFAULT 0,
	duration_ms   INTEGER NOT NULL DEFAULT 0,
	created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_uploads_session ON uploads(session_id, created_at);
`

// Journal records every report in an SQLite table.
type Journal struct {
	db    *sql.DB
	owned bool
}

// OpenJournal opens (or creates) the journal database at path.
// dbopen.Memory is accepted.
func OpenJournal(path string) (*Journal, error) {
	db, err := dbopen.Open(path, dbopen.WithDriver(sqliteDriver), dbopen.WithSchema(journalSchema))
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	return &Journal{db: db, owned: true}, nil
}

// NewJournal uses an already opened database. Close leaves db open.
func NewJournal(db *sql.DB) (*Journal, error) {
	if _, err := db.Exec(journalSchema); err != nil {
		return nil, fmt.Errorf("journal: schema: %w", err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Send(ctx context.Context, u report.Upload) error {
	_, err := dbopen.Exec(ctx, j.db, `
		INSERT INTO uploads (
			id, session_id, page_url, source, name, type, size, digest,
			success, reason, error, strategy, from_cache, attempts,
			provocations, duration_ms, created_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		u.ID, u.SessionID, u.PageURL, string(u.Source), u.Name, u.Type, u.Size, u.Digest,
		u.Success, string(u.Reason), u.Error, u.Strategy, u.FromCache, u.Attempts,
		u.Provocations, u.DurationMS, u.Timestamp)
	if err != nil {
		return fmt.Errorf("journal: insert %s: %w", u.ID, err)
	}
	return nil
}

// Recent returns up to limit reports, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]report.Upload, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, session_id, page_url, source, name, type, size, digest,
		       success, reason, error, strategy, from_cache, attempts,
		       provocations, duration_ms, created_at
		FROM uploads ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	defer rows.Close()

	var out []report.Upload
	for rows.Next() {
		var (
			u              report.Upload
			source, reason string
		)
		if err := rows.Scan(&u.ID, &u.SessionID, &u.PageURL, &source, &u.Name, &u.Type,
			&u.Size, &u.Digest, &u.Success, &reason, &u.Error, &u.Strategy, &u.FromCache,
			&u.Attempts, &u.Provocations, &u.DurationMS, &u.Timestamp); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		u.Source = report.Source(source)
		u.Reason = report.Reason(reason)
		out = append(out, u)
	}
	return out, rows.Err()
}

func (j *Journal) Close() error {
	if j.owned {
		return j.db.Close()
	}
	return nil
}
