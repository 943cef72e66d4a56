package sink

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/openstreetmap/osm2pgsql-go/internal/logger"
)

// EnsureTable creates the target place table (and, if withMeta, its
// metadata echo columns) if it does not already exist. Grounded on the
// teacher's streaming_loader.go PrepareTable.
func EnsureTable(ctx context.Context, pool *pgxpool.Pool, schema, table string, srid int, withMeta, dropExisting bool) error {
	log := logger.Get()
	full := fmt.Sprintf("%s.%s", schema, table)

	if dropExisting {
		log.Info("sink: dropping existing table", zap.String("table", full))
		if _, err := pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", full)); err != nil {
			return fmt.Errorf("drop table %s: %w", full, err)
		}
	}

	metaCols := ""
	if withMeta {
		metaCols = `,
			osm_version     INTEGER,
			osm_timestamp   TIMESTAMPTZ,
			osm_changeset   BIGINT,
			osm_uid         INTEGER,
			osm_user        TEXT`
	}

	sql := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			osm_id      BIGINT NOT NULL,
			osm_type    CHAR(1) NOT NULL,
			class       TEXT NOT NULL,
			type        TEXT,
			name        TEXT,
			admin_level SMALLINT,
			address     hstore,
			extratags   hstore,
			geometry    geometry(Geometry, %d) NOT NULL%s
		)`, full, srid, metaCols)

	log.Info("sink: creating table", zap.String("table", full))
	if _, err := pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("create table %s: %w", full, err)
	}
	return nil
}

// CreateIndexes builds the GIST geometry index and a btree osm_id index
// once loading finishes -- a one-time post-import convenience kept from
// the teacher's CreateIndexes, not a "secondary index" feature the
// Non-goals exclude (see SPEC_FULL.md §4).
func CreateIndexes(ctx context.Context, pool *pgxpool.Pool, schema, table string) error {
	log := logger.Get()
	full := fmt.Sprintf("%s.%s", schema, table)

	gist := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_geom_idx ON %s USING GIST (geometry)", table, full)
	if _, err := pool.Exec(ctx, gist); err != nil {
		return fmt.Errorf("create GIST index: %w", err)
	}
	btree := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_osm_id_idx ON %s (osm_id)", table, full)
	if _, err := pool.Exec(ctx, btree); err != nil {
		return fmt.Errorf("create btree index: %w", err)
	}
	log.Info("sink: indexes created", zap.String("table", full))
	return nil
}
