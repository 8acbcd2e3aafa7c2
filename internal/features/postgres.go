package features

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	apperrors "github.com/Adithya-Monish-Kumar-K/geocoder/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS features (
	source     TEXT        NOT NULL,
	id         BIGINT      NOT NULL,
	grid_id    INTEGER     NOT NULL,
	doc        JSONB       NOT NULL,
	status     TEXT        NOT NULL DEFAULT 'PENDING',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	indexed_at TIMESTAMPTZ,
	PRIMARY KEY (source, id)
);
CREATE INDEX IF NOT EXISTS features_source_grid_id ON features (source, grid_id);`

// PostgresStore keeps features as JSONB rows keyed by (source, id), with
// the grid id indexed for hydration.
type PostgresStore struct {
	db     *postgres.Client
	logger *slog.Logger
}

var (
	_ Store        = (*PostgresStore)(nil)
	_ StatusMarker = (*PostgresStore)(nil)
)

// NewPostgresStore returns a store over db. Call Migrate once before use.
func NewPostgresStore(db *postgres.Client) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: slog.Default().With("component", "feature-store"),
	}
}

// Migrate creates the features table and its index if missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrating features table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Put(ctx context.Context, f Feature) error {
	doc, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encoding feature %s.%d: %w", f.Source, f.ID, err)
	}
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO features (source, id, grid_id, doc, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (source, id) DO UPDATE
		SET grid_id = EXCLUDED.grid_id, doc = EXCLUDED.doc, status = 'PENDING', updated_at = NOW()`,
			f.Source, f.ID, int64(f.GridID()), doc)
		if err != nil {
			return fmt.Errorf("upserting feature %s.%d: %w", f.Source, f.ID, err)
		}
		return nil
	})
}

func (s *PostgresStore) Get(ctx context.Context, source string, id int64) (Feature, error) {
	var doc []byte
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT doc FROM features WHERE source = $1 AND id = $2`, source, id).Scan(&doc)
	if err == sql.ErrNoRows {
		return Feature{}, fmt.Errorf("%w: feature %s.%d", apperrors.ErrNotFound, source, id)
	}
	if err != nil {
		return Feature{}, fmt.Errorf("querying feature %s.%d: %w", source, id, err)
	}
	return decodeFeature(doc)
}

func (s *PostgresStore) ByGridID(ctx context.Context, source string, ids []uint32) (map[uint32][]Feature, error) {
	out := make(map[uint32][]Feature)
	if len(ids) == 0 {
		return out, nil
	}
	gridIDs := make([]int64, len(ids))
	for i, id := range ids {
		gridIDs[i] = int64(id)
	}
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT grid_id, doc FROM features
		WHERE source = $1 AND grid_id = ANY($2)
		ORDER BY grid_id, id`, source, pq.Array(gridIDs))
	if err != nil {
		return nil, fmt.Errorf("querying features by grid id: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var gid int64
		var doc []byte
		if err := rows.Scan(&gid, &doc); err != nil {
			return nil, fmt.Errorf("scanning feature row: %w", err)
		}
		f, err := decodeFeature(doc)
		if err != nil {
			return nil, err
		}
		out[uint32(gid)] = append(out[uint32(gid)], f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating feature rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Delete(ctx context.Context, source string, id int64) error {
	res, err := s.db.DB.ExecContext(ctx,
		`DELETE FROM features WHERE source = $1 AND id = $2`, source, id)
	if err != nil {
		return fmt.Errorf("deleting feature %s.%d: %w", source, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: feature %s.%d", apperrors.ErrNotFound, source, id)
	}
	return nil
}

// MarkIndexed records the indexing outcome of a feature.
func (s *PostgresStore) MarkIndexed(ctx context.Context, source string, id int64, status string) error {
	_, err := s.db.DB.ExecContext(ctx,
		`UPDATE features SET status = $1, indexed_at = NOW() WHERE source = $2 AND id = $3`,
		status, source, id)
	if err != nil {
		return fmt.Errorf("updating feature %s.%d status: %w", source, id, err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.DB.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func decodeFeature(doc []byte) (Feature, error) {
	var f Feature
	if err := json.Unmarshal(doc, &f); err != nil {
		return Feature{}, fmt.Errorf("decoding feature document: %w", err)
	}
	return f, nil
}
