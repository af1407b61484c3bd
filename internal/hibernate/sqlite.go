package hibernate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/AgenticGames/miningspice/pkg/domain"
)

// SQLiteCatalog persists the hibernation index to a single SQLite table.
// The default catalog for single-node deployments: no external service,
// survives restarts.
type SQLiteCatalog struct {
	db   *sql.DB
	path string
}

const sqliteSchema = `CREATE TABLE IF NOT EXISTS hibernated_zones (
	kind TEXT NOT NULL,
	zone INTEGER NOT NULL,
	key TEXT NOT NULL,
	codec TEXT NOT NULL,
	driver TEXT NOT NULL,
	raw_size INTEGER NOT NULL,
	stored_size INTEGER NOT NULL,
	etag TEXT NOT NULL DEFAULT '',
	schema_version INTEGER NOT NULL DEFAULT 0,
	hibernated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (kind, zone)
)`

// NewSQLiteCatalog opens (or creates) a catalog database at path.
func NewSQLiteCatalog(path string) (*SQLiteCatalog, error) {
	if path == "" {
		path = "hibernate.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("create catalog table: %w", err)
	}
	return &SQLiteCatalog{db: db, path: path}, nil
}

func (c *SQLiteCatalog) Record(ctx context.Context, e CatalogEntry) error {
	_, err := c.db.ExecContext(ctx, `INSERT INTO hibernated_zones
		(kind, zone, key, codec, driver, raw_size, stored_size, etag, schema_version, hibernated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(kind, zone) DO UPDATE SET
			key=excluded.key, codec=excluded.codec, driver=excluded.driver,
			raw_size=excluded.raw_size, stored_size=excluded.stored_size,
			etag=excluded.etag, schema_version=excluded.schema_version,
			hibernated_at=excluded.hibernated_at`,
		e.Kind, int64(e.Zone), e.Key, e.Codec, e.Driver, e.RawSize, e.StoredSize, e.ETag, e.SchemaVersion, e.HibernatedAt.UTC())
	if err != nil {
		return fmt.Errorf("record %s/%d: %w", e.Kind, e.Zone, err)
	}
	return nil
}

func (c *SQLiteCatalog) Lookup(ctx context.Context, kind string, zone domain.ZoneID) (CatalogEntry, bool, error) {
	row := c.db.QueryRowContext(ctx, `SELECT key, codec, driver, raw_size, stored_size, etag, schema_version, hibernated_at
		FROM hibernated_zones WHERE kind = ? AND zone = ?`, kind, int64(zone))
	e := CatalogEntry{Kind: kind, Zone: zone}
	err := row.Scan(&e.Key, &e.Codec, &e.Driver, &e.RawSize, &e.StoredSize, &e.ETag, &e.SchemaVersion, &e.HibernatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return CatalogEntry{}, false, nil
	}
	if err != nil {
		return CatalogEntry{}, false, fmt.Errorf("lookup %s/%d: %w", kind, zone, err)
	}
	return e, true, nil
}

func (c *SQLiteCatalog) Remove(ctx context.Context, kind string, zone domain.ZoneID) (bool, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM hibernated_zones WHERE kind = ? AND zone = ?`, kind, int64(zone))
	if err != nil {
		return false, fmt.Errorf("remove %s/%d: %w", kind, zone, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *SQLiteCatalog) ListKind(ctx context.Context, kind string) ([]CatalogEntry, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT zone, key, codec, driver, raw_size, stored_size, etag, schema_version, hibernated_at
		FROM hibernated_zones WHERE kind = ? ORDER BY zone`, kind)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	defer func() { _ = rows.Close() }()
	var out []CatalogEntry
	for rows.Next() {
		e := CatalogEntry{Kind: kind}
		var zone int64
		if err := rows.Scan(&zone, &e.Key, &e.Codec, &e.Driver, &e.RawSize, &e.StoredSize, &e.ETag, &e.SchemaVersion, &e.HibernatedAt); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		e.Zone = domain.ZoneID(zone)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Path returns the configured database path.
func (c *SQLiteCatalog) Path() string { return c.path }

func (c *SQLiteCatalog) Close() error { return c.db.Close() }
