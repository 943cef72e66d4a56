package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"time"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"go.uber.org/zap"

	"github.com/openstreetmap/osm2pgsql-go/internal/config"
	"github.com/openstreetmap/osm2pgsql-go/internal/flatnode"
	"github.com/openstreetmap/osm2pgsql-go/internal/geom"
	"github.com/openstreetmap/osm2pgsql-go/internal/logger"
	"github.com/openstreetmap/osm2pgsql-go/internal/middle"
	"github.com/openstreetmap/osm2pgsql-go/internal/model"
	"github.com/openstreetmap/osm2pgsql-go/internal/script"
	"github.com/openstreetmap/osm2pgsql-go/internal/style"
)

// Extractor runs the three-pass import scan over a PBF file: nodes ->
// flat-node cache (+ point rows), ways -> line/polygon rows (+ pending
// segments for relation assembly), relations -> multipolygon/multiline
// rows. Grounded on the teacher's pbf/extractor.go two-pass structure,
// extended to a third relation pass the teacher never implemented.
type Extractor struct {
	cfg       *config.Config
	style     *style.Style
	cache     *flatnode.Cache
	pending   *middle.PendingStore
	assembler *geom.Assembler

	// Raw-object sinks feeding the slim-mode middle tables; nil unless
	// slim mode is enabled, in which case the coordinator has a
	// MiddleStore.Load{Nodes,Ways,Relations} goroutine draining each.
	rawNodes chan<- middle.RawNode
	rawWays  chan<- middle.RawWay
	rawRels  chan<- middle.RawRelation

	hook *script.Hook

	stats ExtractStats
}

// NewExtractor wires the components one import run shares across all
// three passes.
func NewExtractor(cfg *config.Config, st *style.Style, cache *flatnode.Cache, pending *middle.PendingStore, assembler *geom.Assembler) *Extractor {
	return &Extractor{cfg: cfg, style: st, cache: cache, pending: pending, assembler: assembler}
}

// WithHook enables the optional Lua tag-transform hook; nil disables it.
func (e *Extractor) WithHook(h *script.Hook) *Extractor {
	e.hook = h
	return e
}

// applyHook runs the Lua hook against an object's tags, if one is
// configured. A nil tags return (object dropped) is signalled via ok=false.
func (e *Extractor) applyHook(id int64, objType string, tags map[string]string) (result map[string]string, ok bool, err error) {
	if e.hook == nil {
		return tags, true, nil
	}
	result, err = e.hook.Apply(id, objType, tags)
	if err != nil {
		return nil, false, err
	}
	if result == nil {
		return nil, false, nil
	}
	return result, true, nil
}

// WithMiddleSinks enables slim-mode raw-object forwarding to the given
// channels, each drained by a MiddleStore.Load{Nodes,Ways,Relations}
// goroutine the coordinator starts alongside the extractor.
func (e *Extractor) WithMiddleSinks(nodes chan<- middle.RawNode, ways chan<- middle.RawWay, rels chan<- middle.RawRelation) *Extractor {
	e.rawNodes, e.rawWays, e.rawRels = nodes, ways, rels
	return e
}

// Run executes all three passes, sending assembled rows to out. Closing
// out is the caller's responsibility once Run returns.
func (e *Extractor) Run(ctx context.Context, out chan<- model.Row) (ExtractStats, error) {
	log := logger.Get()

	f, err := os.Open(e.cfg.InputFile)
	if err != nil {
		return e.stats, fmt.Errorf("open input file: %w", err)
	}
	defer f.Close()

	if fi, err := f.Stat(); err == nil {
		e.stats.BytesRead = fi.Size()
	}

	start := time.Now()
	log.Info("pass 1: nodes")
	if err := e.passNodes(ctx, f, out); err != nil {
		return e.stats, fmt.Errorf("node pass: %w", err)
	}
	log.Info("pass 1 complete", zap.Int64("nodes", e.stats.Nodes), zap.Duration("duration", time.Since(start).Round(time.Second)))

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return e.stats, fmt.Errorf("seek for way pass: %w", err)
	}
	start = time.Now()
	log.Info("pass 2: ways")
	if err := e.passWays(ctx, f, out); err != nil {
		return e.stats, fmt.Errorf("way pass: %w", err)
	}
	log.Info("pass 2 complete", zap.Int64("ways", e.stats.Ways), zap.Duration("duration", time.Since(start).Round(time.Second)))

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return e.stats, fmt.Errorf("seek for relation pass: %w", err)
	}
	start = time.Now()
	log.Info("pass 3: relations")
	if err := e.passRelations(ctx, f, out); err != nil {
		return e.stats, fmt.Errorf("relation pass: %w", err)
	}
	log.Info("pass 3 complete", zap.Int64("relations", e.stats.Relations), zap.Duration("duration", time.Since(start).Round(time.Second)))

	return e.stats, nil
}

func (e *Extractor) passNodes(ctx context.Context, f *os.File, out chan<- model.Row) error {
	scanner := osmpbf.New(ctx, f, runtime.NumCPU())
	defer scanner.Close()

	for scanner.Scan() {
		switch n := scanner.Object().(type) {
		case *osm.Node:
			coord := model.Coordinate{Lon: n.Lon, Lat: n.Lat}
			if err := e.cache.Set(int64(n.ID), coord); err != nil {
				return err
			}
			e.stats.Nodes++

			pairs := tagsToPairs(n.Tags)
			tags := pairsToMap(pairs)
			if e.rawNodes != nil {
				raw := middle.RawNode{
					ID: int64(n.ID), Lat: middle.ScaleCoord(n.Lat), Lon: middle.ScaleCoord(n.Lon),
					Tags: tags, Version: int32(n.Version), Changeset: int64(n.ChangesetID),
					Timestamp: n.Timestamp, User: n.User, UID: int32(n.UserID),
				}
				select {
				case e.rawNodes <- raw:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			if len(tags) == 0 {
				continue
			}
			tags, keep, err := e.applyHook(int64(n.ID), "node", tags)
			if err != nil {
				return fmt.Errorf("script hook on node %d: %w", n.ID, err)
			}
			if !keep {
				continue
			}
			if e.hook != nil {
				pairs = mapToPairs(tags)
			}
			obj := e.style.Classify(model.OsmId(n.ID), model.TypeNode, pairs, nodeMeta(n))
			if len(obj.Mains) == 0 {
				continue
			}
			wkb := e.assembler.Point(coord)
			for _, m := range obj.Mains {
				if err := send(ctx, out, model.NewRow(obj, m, wkb)); err != nil {
					return err
				}
			}
		case *osm.Way:
			return drainErr(scanner)
		}
	}
	return drainErr(scanner)
}

func (e *Extractor) passWays(ctx context.Context, f *os.File, out chan<- model.Row) error {
	scanner := osmpbf.New(ctx, f, runtime.NumCPU())
	defer scanner.Close()
	log := logger.Get()

	for scanner.Scan() {
		switch w := scanner.Object().(type) {
		case *osm.Way:
			e.stats.Ways++
			ids := make([]int64, len(w.Nodes))
			for i, n := range w.Nodes {
				ids[i] = int64(n.ID)
			}
			coordByID := e.cache.GetList(ids)
			coords := make([]model.Coordinate, 0, len(ids))
			complete := true
			for _, id := range ids {
				c, ok := coordByID[id]
				if !ok {
					complete = false
					break
				}
				coords = append(coords, c)
			}
			if !complete {
				log.Warn("way references unresolved node, skipping", zap.Int64("way", int64(w.ID)))
				continue
			}

			seg := geom.Segment{WayID: int64(w.ID), Nodes: ids, Coords: coords}
			if e.pending != nil {
				if err := e.pending.PutWaySegment(seg); err != nil {
					return fmt.Errorf("store pending way segment %d: %w", w.ID, err)
				}
			}

			pairs := tagsToPairs(w.Tags)
			tags := pairsToMap(pairs)
			if e.rawWays != nil {
				raw := middle.RawWay{
					ID: int64(w.ID), Nodes: ids, Tags: tags, Version: int32(w.Version),
					Changeset: int64(w.ChangesetID), Timestamp: w.Timestamp, User: w.User, UID: int32(w.UserID),
				}
				select {
				case e.rawWays <- raw:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			if len(tags) == 0 {
				continue
			}
			tags, keep, err := e.applyHook(int64(w.ID), "way", tags)
			if err != nil {
				return fmt.Errorf("script hook on way %d: %w", w.ID, err)
			}
			if !keep {
				continue
			}
			if e.hook != nil {
				pairs = mapToPairs(tags)
			}
			obj := e.style.Classify(model.OsmId(w.ID), model.TypeWay, pairs, wayMeta(w))
			if len(obj.Mains) == 0 {
				continue
			}
			if err := e.emitWayGeometry(ctx, out, obj, seg, tags); err != nil {
				return err
			}
		case *osm.Relation:
			return drainErr(scanner)
		}
	}
	return drainErr(scanner)
}

// emitWayGeometry builds a polygon row for a closed area way, or one or
// more (possibly split) linestring rows otherwise. Interpolation ways
// are always lines regardless of closure, matching the style engine's
// interpolation flag.
func (e *Extractor) emitWayGeometry(ctx context.Context, out chan<- model.Row, obj *model.ClassifiedObject, seg geom.Segment, tags map[string]string) error {
	if seg.Closed() && !obj.Interpolation && isArea(tags) {
		wkb, err := e.assembler.Polygon(seg.Coords)
		if err != nil {
			invalid := &model.GeometryInvalid{ID: obj.ID, Type: model.TypeWay, Reason: err.Error()}
			logger.Get().Warn("skipping invalid polygon way", zap.Int64("way", seg.WayID), zap.Error(invalid))
			return nil
		}
		for _, m := range obj.Mains {
			if err := send(ctx, out, model.NewRow(obj, m, wkb)); err != nil {
				return err
			}
		}
		return nil
	}
	for _, piece := range e.assembler.Line(seg.Coords) {
		for _, m := range obj.Mains {
			if err := send(ctx, out, model.NewRow(obj, m, piece)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Extractor) passRelations(ctx context.Context, f *os.File, out chan<- model.Row) error {
	scanner := osmpbf.New(ctx, f, runtime.NumCPU())
	defer scanner.Close()
	log := logger.Get()

	for scanner.Scan() {
		r, ok := scanner.Object().(*osm.Relation)
		if !ok {
			continue
		}
		e.stats.Relations++

		pairs := tagsToPairs(r.Tags)
		tags := pairsToMap(pairs)
		if e.rawRels != nil {
			raw := middle.RawRelation{
				ID: int64(r.ID), Members: relationMembers(r), Tags: tags, Version: int32(r.Version),
				Changeset: int64(r.ChangesetID), Timestamp: r.Timestamp, User: r.User, UID: int32(r.UserID),
			}
			select {
			case e.rawRels <- raw:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if len(tags) == 0 {
			continue
		}
		tags, keep, err := e.applyHook(int64(r.ID), "relation", tags)
		if err != nil {
			return fmt.Errorf("script hook on relation %d: %w", r.ID, err)
		}
		if !keep {
			continue
		}
		if e.hook != nil {
			pairs = mapToPairs(tags)
		}
		obj := e.style.Classify(model.OsmId(r.ID), model.TypeRelation, pairs, relMeta(r))
		if len(obj.Mains) == 0 {
			continue
		}

		var outer, inner, all []geom.Segment
		for _, m := range r.Members {
			if m.Type != osm.WayType {
				continue
			}
			seg, found, err := e.pending.GetWaySegment(int64(m.Ref))
			if err != nil {
				return fmt.Errorf("lookup pending way %d for relation %d: %w", m.Ref, r.ID, err)
			}
			if !found {
				log.Warn("relation member way not found, skipping member", zap.Int64("relation", int64(r.ID)), zap.Int64("way", m.Ref))
				continue
			}
			all = append(all, seg)
			switch m.Role {
			case "inner":
				inner = append(inner, seg)
			default:
				outer = append(outer, seg)
			}
		}
		if len(all) == 0 {
			continue
		}

		if tags["type"] == "multipolygon" || tags["type"] == "boundary" || obj.Boundary {
			wkb, err := e.assembler.Multipolygon(outer, inner)
			if err != nil {
				invalid := &model.GeometryInvalid{ID: obj.ID, Type: model.TypeRelation, Reason: err.Error()}
				log.Warn("skipping invalid multipolygon relation", zap.Int64("relation", int64(r.ID)), zap.Error(invalid))
				continue
			}
			for _, m := range obj.Mains {
				if err := send(ctx, out, model.NewRow(obj, m, wkb)); err != nil {
					return err
				}
			}
			continue
		}

		wkb := e.assembler.MultiLineString(all)
		for _, m := range obj.Mains {
			if err := send(ctx, out, model.NewRow(obj, m, wkb)); err != nil {
				return err
			}
		}
	}
	return drainErr(scanner)
}

func drainErr(scanner *osmpbf.Scanner) error {
	if err := scanner.Err(); err != nil && err != io.EOF {
		return err
	}
	return nil
}

func send(ctx context.Context, out chan<- model.Row, row model.Row) error {
	select {
	case out <- row:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// tagsToPairs converts paulmach/osm's ordered Tags slice into
// model.Tag pairs, preserving file order -- the style engine's
// first-seen-wins fields depend on classifying in this order rather
// than an unordered map.
func tagsToPairs(tags osm.Tags) []model.Tag {
	if len(tags) == 0 {
		return nil
	}
	pairs := make([]model.Tag, len(tags))
	for i, t := range tags {
		pairs[i] = model.Tag{Key: t.Key, Value: t.Value}
	}
	return pairs
}

func pairsToMap(pairs []model.Tag) map[string]string {
	if len(pairs) == 0 {
		return nil
	}
	m := make(map[string]string, len(pairs))
	for _, p := range pairs {
		m[p.Key] = p.Value
	}
	return m
}

// mapToPairs rebuilds an ordered tag slice from a map, sorting by key so
// repeated runs stay deterministic. Used wherever the original order is
// unrecoverable: after the Lua hook has run (its result is a map), and in
// append.go, whose middle-table tags come back as a map.
func mapToPairs(m map[string]string) []model.Tag {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]model.Tag, len(keys))
	for i, k := range keys {
		pairs[i] = model.Tag{Key: k, Value: m[k]}
	}
	return pairs
}

func relationMembers(r *osm.Relation) []middle.RelationMember {
	out := make([]middle.RelationMember, len(r.Members))
	for i, m := range r.Members {
		kind := "n"
		switch m.Type {
		case osm.WayType:
			kind = "w"
		case osm.RelationType:
			kind = "r"
		}
		out[i] = middle.RelationMember{Type: kind, Ref: m.Ref, Role: m.Role}
	}
	return out
}

func nodeMeta(n *osm.Node) model.Metadata {
	return model.Metadata{Version: int32(n.Version), Timestamp: n.Timestamp, Changeset: int64(n.ChangesetID), UID: int32(n.UserID), User: n.User}
}

func wayMeta(w *osm.Way) model.Metadata {
	return model.Metadata{Version: int32(w.Version), Timestamp: w.Timestamp, Changeset: int64(w.ChangesetID), UID: int32(w.UserID), User: w.User}
}

func relMeta(r *osm.Relation) model.Metadata {
	return model.Metadata{Version: int32(r.Version), Timestamp: r.Timestamp, Changeset: int64(r.ChangesetID), UID: int32(r.UserID), User: r.User}
}

// isArea applies the same "closed way is a polygon" heuristic the
// teacher's pbf/extractor.go isArea used: an explicit area=yes/no tag
// wins, otherwise it depends on the raw tags rather than any one winning
// main tag, since a way can now win more than one main tag (buildings,
// landuse, etc. are areas; highways, barriers, waterways are not even
// when closed).
func isArea(tags map[string]string) bool {
	if v, ok := tags["area"]; ok {
		return v == "yes"
	}
	if _, ok := tags["highway"]; ok {
		return false
	}
	if _, ok := tags["barrier"]; ok {
		return false
	}
	if _, ok := tags["railway"]; ok {
		return false
	}
	if v, ok := tags["waterway"]; ok {
		return v == "riverbank" || v == "dock" || v == "basin"
	}
	return true
}
