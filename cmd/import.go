package cmd

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/openstreetmap/osm2pgsql-go/internal/config"
	"github.com/openstreetmap/osm2pgsql-go/internal/logger"
	"github.com/openstreetmap/osm2pgsql-go/internal/pipeline"
	"github.com/openstreetmap/osm2pgsql-go/internal/proj"
)

var (
	createIndexes   bool
	dropExisting    bool
	channelBuffer   int
	bboxStr         string
	projectionStr   string
	styleFile       string
	extraAttributes bool
	tableName       string
	flatNodesFile   string
	flatNodesFixed  bool
	pendingDir      string
	splitDistance   float64
	slimMode        bool
	appendMode      bool
	dropMiddle      bool
	scriptFile      string
)

var importCmd = &cobra.Command{
	Use:   "import <input.osm.pbf>",
	Short: "Run the full import pipeline (nodes -> ways -> relations -> table)",
	Long: `Run the complete OSM import pipeline:

  1. Pass 1: stream nodes into the flat-node cache, emit point rows for tagged nodes
  2. Pass 2: stream ways, resolve coordinates from the flat-node cache, emit line/polygon rows
  3. Pass 3: stream relations, assemble multipolygon/multiline geometries from member ways

Classification runs through the JSON style/tag-classification rules (--style) and rows
stream into the destination table via the PostgreSQL COPY protocol as each pass produces them.`,
	Args: cobra.ExactArgs(1),
	Run:  runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().BoolVar(&createIndexes, "create-indexes", true, "Create spatial indexes after loading")
	importCmd.Flags().BoolVar(&dropExisting, "drop-existing", false, "Drop existing tables before loading")
	importCmd.Flags().IntVar(&channelBuffer, "channel-buffer", 10000, "Buffer size for the row channel between passes and the sink")
	importCmd.Flags().StringVarP(&bboxStr, "bbox", "b", "", "Bounding box filter: minlon,minlat,maxlon,maxlat")
	importCmd.Flags().StringVarP(&projectionStr, "projection", "E", "3857", "Target projection SRID (4326 or 3857)")
	importCmd.Flags().StringVarP(&styleFile, "style", "S", "", "JSON style/classification rule file (required)")
	importCmd.Flags().StringVar(&tableName, "table", "place", "Destination table name")
	importCmd.Flags().BoolVar(&extraAttributes, "extra-attributes", false, "Include version/timestamp/changeset/uid/user columns")
	importCmd.Flags().StringVar(&flatNodesFile, "flat-nodes", "", "Path to flat-node cache file (required)")
	importCmd.Flags().BoolVar(&flatNodesFixed, "flat-nodes-fixed", true, "Use fixed-point (int32) coordinate encoding instead of floating-point")
	importCmd.Flags().StringVar(&pendingDir, "pending-dir", "./osm2pgsql-go-pending", "Directory for the badger-backed pending way-segment store")
	importCmd.Flags().Float64Var(&splitDistance, "split-distance", 100000, "Split linestrings longer than this many target-projection units (0 disables)")
	importCmd.Flags().BoolVar(&slimMode, "slim", false, "Enable slim mode (store raw OSM data in middle tables for incremental updates)")
	importCmd.Flags().BoolVar(&appendMode, "append", false, "Apply the given .osc file as an update (requires existing slim tables)")
	importCmd.Flags().BoolVar(&dropMiddle, "drop", false, "Drop middle tables after import")
	importCmd.Flags().StringVar(&scriptFile, "script", "", "Optional Lua scripting hook file")
}

func runImport(cmd *cobra.Command, args []string) {
	cfg.InputFile = args[0]
	log := logger.Get()

	if bboxStr != "" {
		bbox, err := config.ParseBBox(bboxStr)
		if err != nil {
			exitWithError("invalid bbox", err)
		}
		cfg.BBox = bbox
	}

	srid, err := proj.ParseSRID(projectionStr)
	if err != nil {
		exitWithError("invalid projection", err)
	}
	cfg.Projection = srid

	cfg.StyleFile = styleFile
	cfg.TableName = tableName
	cfg.ExtraAttributes = extraAttributes
	cfg.FlatNodesFile = flatNodesFile
	cfg.FlatNodesFixed = flatNodesFixed
	cfg.PendingDir = pendingDir
	cfg.SplitDistance = splitDistance
	cfg.SlimMode = slimMode
	cfg.AppendMode = appendMode
	cfg.DropMiddle = dropMiddle
	cfg.ScriptFile = scriptFile

	if cfg.StyleFile == "" {
		exitWithError("invalid configuration", fmt.Errorf("--style is required"))
	}
	if cfg.FlatNodesFile == "" {
		exitWithError("invalid configuration", fmt.Errorf("--flat-nodes is required"))
	}
	if err := cfg.Validate(); err != nil {
		exitWithError("invalid configuration", err)
	}

	totalStart := time.Now()

	logFields := []zap.Field{
		zap.String("input", cfg.InputFile),
		zap.String("output", fmt.Sprintf("%s:%d/%s", cfg.DBHost, cfg.DBPort, cfg.DBName)),
		zap.Int("workers", cfg.Workers),
		zap.Int("projection", cfg.Projection),
		zap.String("style", cfg.StyleFile),
	}
	if cfg.BBox != nil && cfg.BBox.IsSet {
		logFields = append(logFields, zap.String("bbox",
			fmt.Sprintf("%.4f,%.4f,%.4f,%.4f", cfg.BBox.MinLon, cfg.BBox.MinLat, cfg.BBox.MaxLon, cfg.BBox.MaxLat)))
	}
	if cfg.SlimMode {
		logFields = append(logFields, zap.Bool("slim", true))
	}
	if cfg.AppendMode {
		logFields = append(logFields, zap.Bool("append", true))
	}
	log.Info("starting osm2pgsql-go import", logFields...)

	pipeCfg := pipeline.CoordinatorConfig{
		ChannelBuffer: channelBuffer,
		DropExisting:  dropExisting,
		CreateIndexes: createIndexes,
	}

	coordinator, err := pipeline.NewCoordinator(cfg, pipeCfg)
	if err != nil {
		exitWithError("failed to create pipeline", err)
	}
	defer coordinator.Close()

	ctx := context.Background()

	if cfg.AppendMode {
		appendStats, err := coordinator.RunAppend(ctx, cfg.InputFile)
		if err != nil {
			exitWithError("append failed", err)
		}
		log.Info("append complete",
			zap.Duration("total_time", time.Since(totalStart).Round(time.Second)),
			zap.Int64("nodes_applied", appendStats.NodesApplied),
			zap.Int64("ways_applied", appendStats.WaysApplied),
			zap.Int64("relations_applied", appendStats.RelationsApplied),
			zap.Int64("rows_written", appendStats.RowsWritten),
		)
		return
	}

	stats, err := coordinator.Run(ctx)
	if err != nil {
		exitWithError("import failed", err)
	}

	totalElapsed := time.Since(totalStart)
	log.Info("import complete",
		zap.Duration("total_time", totalElapsed.Round(time.Second)),
		zap.Int64("nodes", stats.Extract.Nodes),
		zap.Int64("ways", stats.Extract.Ways),
		zap.Int64("relations", stats.Extract.Relations),
		zap.Int64("rows", stats.Load.RowsLoaded),
		zap.Float64("throughput_mb_s", float64(stats.Extract.BytesRead)/(1024*1024)/totalElapsed.Seconds()),
	)
}
