package pipeline

// ExtractStats holds extraction statistics across the node/way/relation passes.
type ExtractStats struct {
	Nodes     int64
	Ways      int64
	Relations int64
	BytesRead int64
}

// LoadStats holds loading statistics for the destination table.
type LoadStats struct {
	Table      string
	RowsLoaded int64
}

// ImportStats holds combined import statistics.
type ImportStats struct {
	Extract ExtractStats
	Load    LoadStats
}

// AppendStats holds statistics from applying an OSC diff.
type AppendStats struct {
	NodesApplied     int64
	WaysApplied      int64
	RelationsApplied int64
	RowsWritten      int64
}
