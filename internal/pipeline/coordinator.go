package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/openstreetmap/osm2pgsql-go/internal/config"
	"github.com/openstreetmap/osm2pgsql-go/internal/flatnode"
	"github.com/openstreetmap/osm2pgsql-go/internal/geom"
	"github.com/openstreetmap/osm2pgsql-go/internal/logger"
	"github.com/openstreetmap/osm2pgsql-go/internal/metrics"
	"github.com/openstreetmap/osm2pgsql-go/internal/middle"
	"github.com/openstreetmap/osm2pgsql-go/internal/model"
	"github.com/openstreetmap/osm2pgsql-go/internal/proj"
	"github.com/openstreetmap/osm2pgsql-go/internal/script"
	"github.com/openstreetmap/osm2pgsql-go/internal/sink"
	"github.com/openstreetmap/osm2pgsql-go/internal/style"
)

// CoordinatorConfig holds pipeline-specific options layered over config.Config.
type CoordinatorConfig struct {
	ChannelBuffer int
	DropExisting  bool
	CreateIndexes bool
}

// Coordinator wires the flatnode cache, style engine, geometry
// assembler, and sink together and drives one import or append run.
// Grounded on the teacher's pipeline/coordinator.go channel-fan-out
// shape; the DuckDB/Parquet/Flex stages it orchestrated are replaced
// with the flatnode/style/geom/sink core.
type Coordinator struct {
	cfg     *config.Config
	pipeCfg CoordinatorConfig
	pool    *pgxpool.Pool
}

func NewCoordinator(cfg *config.Config, pipeCfg CoordinatorConfig) (*Coordinator, error) {
	if pipeCfg.ChannelBuffer <= 0 {
		pipeCfg.ChannelBuffer = 10000
	}
	pool, err := newPool(cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	return &Coordinator{cfg: cfg, pipeCfg: pipeCfg, pool: pool}, nil
}

func (c *Coordinator) Close() error {
	c.pool.Close()
	return nil
}

// Run performs a full import: build the flat-node cache from the input
// file's nodes, classify and assemble geometries for nodes/ways/
// relations, and stream the result into the destination table via COPY.
func (c *Coordinator) Run(ctx context.Context) (*ImportStats, error) {
	log := logger.Get()
	stats := &ImportStats{}

	if c.cfg.MetricsInterval > 0 {
		mctx, cancel := context.WithCancel(ctx)
		defer cancel()
		go metrics.NewCollector(c.cfg.MetricsInterval, log).Start(mctx)
	}

	st, err := style.Load(c.cfg.StyleFile)
	if err != nil {
		return nil, fmt.Errorf("load style file: %w", err)
	}

	cache, err := flatnode.Open(c.cfg.FlatNodesFile, flatnode.ModeCreate, c.cfg.FlatNodesFixed)
	if err != nil {
		return nil, fmt.Errorf("open flat-node cache: %w", err)
	}
	defer cache.Close()

	pending, err := middle.OpenPendingStore(c.cfg.PendingDir)
	if err != nil {
		return nil, fmt.Errorf("open pending way store: %w", err)
	}
	defer pending.Close()

	transformer, err := proj.NewTransformer(proj.SRID4326, c.cfg.Projection)
	if err != nil {
		return nil, fmt.Errorf("create projection transformer: %w", err)
	}
	assembler := geom.New(transformer, c.cfg.SplitDistance)

	if err := ensureExtensions(ctx, c.pool, c.cfg.DBSchema); err != nil {
		return nil, err
	}
	if err := sink.EnsureTable(ctx, c.pool, c.cfg.DBSchema, c.cfg.TableName, c.cfg.Projection, c.cfg.ExtraAttributes, c.pipeCfg.DropExisting); err != nil {
		return nil, err
	}

	var middleStore *middle.MiddleStore
	if c.cfg.SlimMode {
		middleStore = middle.NewMiddleStore(c.cfg, c.pool)
		log.Info("slim mode enabled, preparing middle tables")
		if err := middleStore.EnsureTables(ctx, c.pipeCfg.DropExisting); err != nil {
			return nil, fmt.Errorf("prepare middle tables: %w", err)
		}
	}

	extractor := NewExtractor(c.cfg, st, cache, pending, assembler)

	if c.cfg.ScriptFile != "" {
		hook, err := script.Load(c.cfg.ScriptFile)
		if err != nil {
			return nil, fmt.Errorf("load script hook: %w", err)
		}
		defer hook.Close()
		extractor.WithHook(hook)
		log.Info("script hook enabled", zap.String("file", c.cfg.ScriptFile))
	}

	g, gctx := errgroup.WithContext(ctx)
	rows := make(chan model.Row, c.pipeCfg.ChannelBuffer)

	if middleStore != nil {
		rawNodes := make(chan middle.RawNode, c.pipeCfg.ChannelBuffer)
		rawWays := make(chan middle.RawWay, c.pipeCfg.ChannelBuffer)
		rawRels := make(chan middle.RawRelation, c.pipeCfg.ChannelBuffer)
		extractor.WithMiddleSinks(rawNodes, rawWays, rawRels)

		g.Go(func() error { _, err := middleStore.LoadNodes(gctx, rawNodes); return err })
		g.Go(func() error { _, err := middleStore.LoadWays(gctx, rawWays); return err })
		g.Go(func() error { _, err := middleStore.LoadRelations(gctx, rawRels); return err })

		// The three passes run sequentially inside Run; each raw channel
		// simply idles once its pass finishes until all three close together.
		g.Go(func() error {
			defer close(rows)
			defer close(rawNodes)
			defer close(rawWays)
			defer close(rawRels)
			_, err := extractor.Run(gctx, rows)
			return err
		})
	} else {
		g.Go(func() error {
			defer close(rows)
			_, err := extractor.Run(gctx, rows)
			return err
		})
	}

	var rowCount int64
	g.Go(func() error {
		w, err := sink.Open(gctx, c.pool, c.cfg.DBSchema, c.cfg.TableName, c.cfg.ExtraAttributes)
		if err != nil {
			return fmt.Errorf("open sink writer: %w", err)
		}
		for row := range rows {
			if err := w.WriteRow(row); err != nil {
				return err
			}
		}
		n, err := w.Close()
		rowCount = n
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats.Extract = extractor.stats
	stats.Load = LoadStats{Table: c.cfg.TableName, RowsLoaded: rowCount}

	log.Info("import complete",
		zap.Int64("nodes", stats.Extract.Nodes),
		zap.Int64("ways", stats.Extract.Ways),
		zap.Int64("relations", stats.Extract.Relations),
		zap.Int64("rows", rowCount),
	)

	if c.pipeCfg.CreateIndexes {
		start := time.Now()
		if err := sink.CreateIndexes(ctx, c.pool, c.cfg.DBSchema, c.cfg.TableName); err != nil {
			return nil, fmt.Errorf("create indexes: %w", err)
		}
		log.Info("indexes created", zap.Duration("duration", time.Since(start).Round(time.Second)))
	}

	if c.cfg.SlimMode && middleStore != nil {
		if c.pipeCfg.CreateIndexes {
			if err := middleStore.CreateIndexes(ctx); err != nil {
				return nil, fmt.Errorf("middle table index creation: %w", err)
			}
		}
		if c.cfg.DropMiddle {
			log.Info("dropping middle tables (--drop)")
			if err := middleStore.DropTables(ctx); err != nil {
				return nil, fmt.Errorf("drop middle tables: %w", err)
			}
		}
	}

	return stats, nil
}
