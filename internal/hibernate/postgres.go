package hibernate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"github.com/AgenticGames/miningspice/pkg/domain"
)

// PostgresCatalog persists the hibernation index to Postgres, for
// deployments where several nodes share one snapshot bucket.
type PostgresCatalog struct {
	db *sql.DB
}

const postgresSchema = `CREATE TABLE IF NOT EXISTS hibernated_zones (
	kind TEXT NOT NULL,
	zone BIGINT NOT NULL,
	key TEXT NOT NULL,
	codec TEXT NOT NULL,
	driver TEXT NOT NULL,
	raw_size BIGINT NOT NULL,
	stored_size BIGINT NOT NULL,
	etag TEXT NOT NULL DEFAULT '',
	schema_version INTEGER NOT NULL DEFAULT 0,
	hibernated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (kind, zone)
)`

// NewPostgresCatalog connects to the given DSN and ensures the catalog
// table exists.
func NewPostgresCatalog(ctx context.Context, dsn string) (*PostgresCatalog, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres catalog: dsn required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("create catalog table: %w", err)
	}
	return &PostgresCatalog{db: db}, nil
}

func (c *PostgresCatalog) Record(ctx context.Context, e CatalogEntry) error {
	_, err := c.db.ExecContext(ctx, `INSERT INTO hibernated_zones
		(kind, zone, key, codec, driver, raw_size, stored_size, etag, schema_version, hibernated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (kind, zone) DO UPDATE SET
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

func (c *PostgresCatalog) Lookup(ctx context.Context, kind string, zone domain.ZoneID) (CatalogEntry, bool, error) {
	row := c.db.QueryRowContext(ctx, `SELECT key, codec, driver, raw_size, stored_size, etag, schema_version, hibernated_at
		FROM hibernated_zones WHERE kind = $1 AND zone = $2`, kind, int64(zone))
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

func (c *PostgresCatalog) Remove(ctx context.Context, kind string, zone domain.ZoneID) (bool, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM hibernated_zones WHERE kind = $1 AND zone = $2`, kind, int64(zone))
	if err != nil {
		return false, fmt.Errorf("remove %s/%d: %w", kind, zone, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *PostgresCatalog) ListKind(ctx context.Context, kind string) ([]CatalogEntry, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT zone, key, codec, driver, raw_size, stored_size, etag, schema_version, hibernated_at
		FROM hibernated_zones WHERE kind = $1 ORDER BY zone`, kind)
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

// DB exposes the underlying sql.DB for integration testing hooks.
func (c *PostgresCatalog) DB() *sql.DB { return c.db }

func (c *PostgresCatalog) Close() error { return c.db.Close() }
