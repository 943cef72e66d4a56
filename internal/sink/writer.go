package sink

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/openstreetmap/osm2pgsql-go/internal/logger"
	"github.com/openstreetmap/osm2pgsql-go/internal/model"
)

// Columns is the fixed column layout a Writer emits, matching the
// gazetteer-style place table shape spec §4.4 describes.
var Columns = []string{
	"osm_id", "osm_type", "class", "type", "name", "admin_level",
	"address", "extratags", "geometry",
}

// Writer streams classified rows to one PostgreSQL table via the COPY
// protocol's text format, built by hand rather than through pgx's
// binary CopyFrom path (see package doc).
type Writer struct {
	pool   *pgxpool.Pool
	schema string
	table  string

	pw      *io.PipeWriter
	result  chan copyResult
	withMeta bool
}

type copyResult struct {
	rows int64
	err  error
}

// Open starts a COPY session against schema.table and returns a Writer
// ready for WriteRow calls. withMeta includes the metadata echo columns
// (osm_version, osm_timestamp, osm_changeset, osm_uid, osm_user).
func Open(ctx context.Context, pool *pgxpool.Pool, schema, table string, withMeta bool) (*Writer, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, &model.SinkError{Table: table, Err: err}
	}

	pr, pw := io.Pipe()
	w := &Writer{pool: pool, schema: schema, table: table, pw: pw, result: make(chan copyResult, 1), withMeta: withMeta}

	cols := append([]string{}, Columns...)
	if withMeta {
		cols = append(cols, "osm_version", "osm_timestamp", "osm_changeset", "osm_uid", "osm_user")
	}
	sql := fmt.Sprintf("COPY %s.%s (%s) FROM STDIN WITH (FORMAT text)", schema, table, strings.Join(cols, ", "))

	go func() {
		defer conn.Release()
		tag, err := conn.Conn().PgConn().CopyFrom(ctx, pr, sql)
		if err != nil {
			pr.CloseWithError(err)
			w.result <- copyResult{err: &model.SinkError{Table: table, Err: err}}
			return
		}
		w.result <- copyResult{rows: tag.RowsAffected()}
	}()

	return w, nil
}

// WriteRow encodes one row in COPY text format and writes it to the
// in-flight COPY stream.
func (w *Writer) WriteRow(row model.Row) error {
	line := w.buildLine(row)
	if _, err := w.pw.Write([]byte(line + "\n")); err != nil {
		return &model.SinkError{Table: w.table, Err: err}
	}
	return nil
}

func (w *Writer) buildLine(row model.Row) string {
	// admin_level defaults/collapses to 15 upstream (style.Classify,
	// clampAdminLevel) and is never absent, so it is never written NULL.
	cols := make([]string, 0, len(Columns)+5)
	cols = append(cols,
		nullable(itoa(int64(row.ID))),
		nullable(row.Type.String()),
		nullable(escapeText(row.Class)),
		nullable(escapeText(row.Value)),
		nullable(escapeText(row.Name)),
		itoa(int64(row.AdminLevel)),
		nullable(escapeText(encodeHash(row.Address))),
		nullable(escapeText(encodeHash(row.Extra))),
		nullable(encodeHexWKB(row.WKB)),
	)
	if w.withMeta && row.HasMeta {
		cols = append(cols,
			itoa(int64(row.Meta.Version)),
			nullOrTime(row.Meta.Timestamp),
			itoa(row.Meta.Changeset),
			itoa(int64(row.Meta.UID)),
			nullable(escapeText(row.Meta.User)),
		)
	} else if w.withMeta {
		cols = append(cols, `\N`, `\N`, `\N`, `\N`, `\N`)
	}
	return strings.Join(cols, "\t")
}

func nullable(s string) string {
	if s == "" {
		return `\N`
	}
	return s
}

func nullOrTime(t time.Time) string {
	if t.IsZero() {
		return `\N`
	}
	return t.UTC().Format("2006-01-02 15:04:05.999999Z07:00")
}

func itoa(n int64) string {
	return fmt.Sprintf("%d", n)
}

// Close finishes the COPY stream and waits for the server's row count,
// logging at Info on success.
func (w *Writer) Close() (int64, error) {
	if err := w.pw.Close(); err != nil {
		return 0, &model.SinkError{Table: w.table, Err: err}
	}
	res := <-w.result
	if res.err != nil {
		return 0, res.err
	}
	logger.Get().Info("sink: copy complete", zap.String("table", w.table), zap.Int64("rows", res.rows))
	return res.rows, nil
}
