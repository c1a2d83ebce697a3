// Package store persists sitemap definitions and their scraped records in
// SQLite, following the teacher's raw database/sql + go-sqlite3 convention
// (no ORM): sitemap definitions live as a JSON blob column, and each
// sitemap gets its own records table, mirroring the Python original's
// one-CouchDB-database-per-sitemap shape realized as one SQLite table.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nickheyer/sitemapscraper/internal/selector"
	"github.com/nickheyer/sitemapscraper/internal/sitemap"
)

// Store is the SQLite-backed persistence boundary.
type Store struct {
	db *sql.DB
}

// Open creates (if needed) the backing database file and its schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening store at %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging store at %s: %w", path, err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sitemaps (
			id         TEXT PRIMARY KEY,
			definition TEXT NOT NULL,
			cron       TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`)
	return err
}

// recordsTableName sanitizes a sitemap id into a safe SQLite identifier,
// grounded on store.py's sanitize(id) used to name its per-sitemap
// CouchDB database.
func recordsTableName(sitemapID string) string {
	safe := regexp.MustCompile(`[^a-zA-Z0-9_]`).ReplaceAllString(sitemapID, "_")
	return "records_" + strings.ToLower(safe)
}

// SaveSitemap upserts a sitemap's JSON definition.
func (s *Store) SaveSitemap(sm *sitemap.Sitemap, cron string) error {
	data, err := sm.MarshalJSON()
	if err != nil {
		return fmt.Errorf("serializing sitemap %s: %w", sm.ID, err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = s.db.Exec(`
		INSERT INTO sitemaps (id, definition, cron, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET definition=excluded.definition, cron=excluded.cron, updated_at=excluded.updated_at
	`, sm.ID, string(data), cron, now, now)
	if err != nil {
		return fmt.Errorf("saving sitemap %s: %w", sm.ID, err)
	}

	table := recordsTableName(sm.ID)
	_, err = s.db.Exec(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			row_id     INTEGER PRIMARY KEY AUTOINCREMENT,
			data       TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
	`, table))
	if err != nil {
		return fmt.Errorf("creating records table for %s: %w", sm.ID, err)
	}
	return nil
}

// ListSitemaps returns every stored sitemap id, in insertion order.
func (s *Store) ListSitemaps() ([]string, error) {
	rows, err := s.db.Query(`SELECT id FROM sitemaps ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetSitemap loads and parses one stored sitemap definition.
func (s *Store) GetSitemap(id string) (*sitemap.Sitemap, error) {
	var definition string
	err := s.db.QueryRow(`SELECT definition FROM sitemaps WHERE id = ?`, id).Scan(&definition)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no such sitemap %q", id)
	}
	if err != nil {
		return nil, err
	}

	sm := &sitemap.Sitemap{}
	if err := sm.UnmarshalJSON([]byte(definition)); err != nil {
		return nil, fmt.Errorf("parsing stored sitemap %s: %w", id, err)
	}
	return sm, nil
}

// GetSitemapCron returns the stored cron schedule for a sitemap, if any.
func (s *Store) GetSitemapCron(id string) (string, error) {
	var cron sql.NullString
	err := s.db.QueryRow(`SELECT cron FROM sitemaps WHERE id = ?`, id).Scan(&cron)
	if err != nil {
		return "", err
	}
	return cron.String, nil
}

// SaveRecord persists one record for a sitemap. Control fields
// (_follow, _follow_id) are stripped before the row is written, per
// spec §9 and store.py's StoreScrapeResult.save.
func (s *Store) SaveRecord(sitemapID string, record selector.Record) error {
	clean := make(selector.Record, len(record))
	for k, v := range record {
		if k == selector.ControlFollow || k == selector.ControlFollowID {
			continue
		}
		clean[k] = v
	}

	data, err := json.Marshal(clean)
	if err != nil {
		return fmt.Errorf("serializing record for %s: %w", sitemapID, err)
	}

	table := recordsTableName(sitemapID)
	_, err = s.db.Exec(fmt.Sprintf(
		`INSERT INTO %s (data, created_at) VALUES (?, ?)`, table),
		string(data), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving record for %s: %w", sitemapID, err)
	}
	return nil
}

// ClearRecords deletes every stored record for a sitemap, used by
// `rescrape` to start from a clean slate.
func (s *Store) ClearRecords(sitemapID string) error {
	table := recordsTableName(sitemapID)
	_, err := s.db.Exec(fmt.Sprintf(`DELETE FROM %s`, table))
	return err
}

// GetRecords streams every stored record for a sitemap, in insertion
// order.
func (s *Store) GetRecords(sitemapID string) ([]selector.Record, error) {
	table := recordsTableName(sitemapID)
	rows, err := s.db.Query(fmt.Sprintf(`SELECT data FROM %s ORDER BY row_id ASC`, table))
	if err != nil {
		return nil, fmt.Errorf("reading records for %s: %w", sitemapID, err)
	}
	defer rows.Close()

	var out []selector.Record
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var rec selector.Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("parsing stored record for %s: %w", sitemapID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DefaultPath builds a store path under the given data directory,
// matching the teacher's sanitizePath convention in internal/config.
func DefaultPath(dataDir string) string {
	return filepath.Join(dataDir, "sitemaps.db")
}
