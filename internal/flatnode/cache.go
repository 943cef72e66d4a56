// Package flatnode implements the persistent flat-node cache: a
// disk-backed store mapping OSM node ids to coordinates, used instead of
// a database-backed middle table when importing planet-scale extracts.
//
// Grounded on original_source/node-persistent-cache.{hpp,cpp}. Two
// access patterns are supported, matching the original's write-block and
// read-block policies:
//
//   - Create mode: sequential ingest of a (mostly) ordered node stream.
//     Records are buffered into large blocks (1<<writeBlockShift) and
//     flushed with pwrite as each block fills.
//   - Append mode: random-access reads/writes against an existing file,
//     used for diff application. The data region is memory-mapped so
//     the OS page cache supplies the block-replacement behaviour the
//     original implements by hand with its cache_index_entry table.
package flatnode

import (
	"fmt"
	"math"
	"os"

	"github.com/edsrzf/mmap-go"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/openstreetmap/osm2pgsql-go/internal/model"
	"github.com/openstreetmap/osm2pgsql-go/internal/logger"
)

// Mode selects the access pattern a Cache is opened for.
type Mode int

const (
	ModeCreate Mode = iota
	ModeAppend
)

const (
	writeBlockShift = 20 // 1<<20 records per write-block (create mode)
	readBlockShift  = 10 // 1<<10 records per read-block (append mode)

	// writeoutLagBlocks is how many blocks behind the current write
	// position the create-mode writeout advisory hints trail, matching
	// nodes_set_create_writeout_block in the original.
	writeoutLagBlocks = 16
)

// Cache is the flat-node cache described above.
type Cache struct {
	file   *os.File
	path   string
	mode   Mode
	fixed  bool // fixed-point (int32x2) vs floating (float64x2) record encoding
	recLen int64
	header persistentCacheHeader
	log    *zap.Logger

	// create-mode state
	writeBuf         []byte
	writeBlockID     int64
	writeBlockRecs   int64
	writtenThroughID int64

	// append-mode state
	mapping mmap.MMap
}

// Open opens or creates a flat-node file at path for the given mode.
// fixedPoint selects the on-disk coordinate encoding; it must match the
// encoding the file was originally created with when mode is ModeAppend.
func Open(path string, mode Mode, fixedPoint bool) (*Cache, error) {
	idSize := idSizeFloating
	recLen := int64(16)
	if fixedPoint {
		idSize = idSizeFixed
		recLen = 8
	}

	c := &Cache{
		path:   path,
		mode:   mode,
		fixed:  fixedPoint,
		recLen: recLen,
		log:    logger.Get(),
	}

	switch mode {
	case ModeCreate:
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return nil, &model.CacheFatal{Op: "open(create)", Err: err}
		}
		c.file = f
		c.header = persistentCacheHeader{FormatVersion: formatVersion, IDSize: idSize, MaxInitialisedID: -1}
		if err := writeHeader(f, c.header); err != nil {
			f.Close()
			return nil, &model.CacheFatal{Op: "write header", Err: err}
		}
		c.writeBlockID = -1
		c.writeBuf = make([]byte, (int64(1)<<writeBlockShift)*recLen)
	case ModeAppend:
		f, err := os.OpenFile(path, os.O_RDWR, 0644)
		if err != nil {
			return nil, &model.CacheFatal{Op: "open(append)", Err: err}
		}
		c.file = f
		hdr, err := readHeader(f)
		if err != nil {
			f.Close()
			return nil, &model.CacheFatal{Op: "read header", Err: err}
		}
		if err := hdr.validate(idSize); err != nil {
			f.Close()
			return nil, &model.CacheFatal{Op: "validate header", Err: err}
		}
		c.header = hdr
		if err := c.mapAppendRegion(); err != nil {
			f.Close()
			return nil, err
		}
	default:
		return nil, &model.CacheFatal{Op: "open", Err: fmt.Errorf("unknown mode %d", mode)}
	}

	return c, nil
}

func (c *Cache) mapAppendRegion() error {
	fi, err := c.file.Stat()
	if err != nil {
		return &model.CacheFatal{Op: "stat", Err: err}
	}
	size := fi.Size() - headerSize
	if size <= 0 {
		return nil // empty data region; Get returns absent until expanded by Set
	}
	m, err := mmap.MapRegion(c.file, int(size), mmap.RDWR, 0, headerSize)
	if err != nil {
		return &model.CacheFatal{Op: "mmap", Err: err}
	}
	c.mapping = m
	return nil
}

// Close flushes any pending create-mode block, writes the final header,
// and releases the append-mode mapping.
func (c *Cache) Close() error {
	if c.mode == ModeCreate {
		if err := c.flushWriteBlock(); err != nil {
			return err
		}
	}
	c.header.FormatVersion = formatVersion
	if err := writeHeader(c.file, c.header); err != nil {
		return &model.CacheFatal{Op: "write final header", Err: err}
	}
	if err := c.file.Sync(); err != nil {
		c.log.Warn("flatnode: final fsync failed", zap.Error(err))
	}
	if c.mapping != nil {
		if err := c.mapping.Unmap(); err != nil {
			c.log.Warn("flatnode: munmap failed", zap.Error(err))
		}
	}
	return c.file.Close()
}

// Set stores the coordinate for id. In create mode ids must arrive in
// non-decreasing order (the write-block buffer is never re-opened once
// flushed); in append mode any previously-written id may be overwritten.
func (c *Cache) Set(id int64, coord model.Coordinate) error {
	if id < 0 {
		return &model.CacheFatal{Op: "set", Err: fmt.Errorf("negative node id %d", id)}
	}
	switch c.mode {
	case ModeCreate:
		return c.setCreate(id, coord)
	case ModeAppend:
		return c.setAppend(id, coord)
	}
	return nil
}

func (c *Cache) encode(coord model.Coordinate) []byte {
	if c.fixed {
		b := encodeFixed(coord)
		return b[:]
	}
	b := encodeFloating(coord)
	return b[:]
}

func (c *Cache) decode(buf []byte) model.Coordinate {
	if c.fixed {
		return decodeFixed(buf)
	}
	return decodeFloating(buf)
}

func (c *Cache) setCreate(id int64, coord model.Coordinate) error {
	blockID := id >> writeBlockShift
	if blockID != c.writeBlockID {
		if c.writeBlockID >= 0 {
			if blockID < c.writeBlockID {
				return &model.CacheFatal{Op: "setCreate", Err: fmt.Errorf("node id %d out of order for create-mode flat-node file", id)}
			}
			if err := c.flushWriteBlock(); err != nil {
				return err
			}
			c.writeoutAdvise(blockID)
		}
		// Whole blocks the id stream skipped over (including those before
		// the first block) are written out all-absent, so their ids never
		// read back as a zeroed (0,0) coordinate.
		if blockID > c.writeBlockID+1 {
			c.fillAbsent(c.writeBuf)
			for b := c.writeBlockID + 1; b < blockID; b++ {
				c.writeBlockID = b
				if err := c.flushWriteBlock(); err != nil {
					return err
				}
			}
		}
		for i := range c.writeBuf {
			c.writeBuf[i] = 0
		}
		c.fillAbsent(c.writeBuf)
		c.writeBlockID = blockID
	}
	off := (id & ((1 << writeBlockShift) - 1)) * c.recLen
	copy(c.writeBuf[off:off+c.recLen], c.encode(coord))
	if id > c.header.MaxInitialisedID {
		c.header.MaxInitialisedID = id
	}
	return nil
}

// fillAbsent pre-fills a freshly allocated write block with the absence
// sentinel so unset records (gaps in the id sequence) read back as
// "not found" rather than zeroed coordinates.
func (c *Cache) fillAbsent(buf []byte) {
	absent := c.encode(model.Coordinate{Lon: math.NaN(), Lat: math.NaN()})
	for off := int64(0); off+c.recLen <= int64(len(buf)); off += c.recLen {
		copy(buf[off:off+c.recLen], absent)
	}
}

func (c *Cache) flushWriteBlock() error {
	if c.writeBlockID < 0 {
		return nil
	}
	fileOff := headerSize + c.writeBlockID*(int64(1)<<writeBlockShift)*c.recLen
	if _, err := c.file.WriteAt(c.writeBuf, fileOff); err != nil {
		return &model.CacheFatal{Op: "writeAt", Err: err}
	}
	c.writtenThroughID = c.writeBlockID
	return nil
}

// writeoutAdvise issues sync_file_range + fadvise(DONTNEED) for the
// block trailing writeoutLagBlocks behind the newly-opened blockID,
// matching nodes_set_create_writeout_block. Best-effort: failures are
// logged, never fatal, per §7.
func (c *Cache) writeoutAdvise(blockID int64) {
	target := blockID - writeoutLagBlocks
	if target < 0 {
		return
	}
	blockBytes := (int64(1) << writeBlockShift) * c.recLen
	off := headerSize + target*blockBytes
	if err := unix.SyncFileRange(int(c.file.Fd()), off, blockBytes, unix.SYNC_FILE_RANGE_WRITE); err != nil {
		c.log.Warn("flatnode: sync_file_range failed", zap.Error(err), zap.Int64("block", target))
	}
	if err := unix.Fadvise(int(c.file.Fd()), off, blockBytes, unix.FADV_DONTNEED); err != nil {
		c.log.Warn("flatnode: fadvise(DONTNEED) failed", zap.Error(err), zap.Int64("block", target))
	}
}

func (c *Cache) setAppend(id int64, coord model.Coordinate) error {
	needed := headerSize + (id+1)*c.recLen
	if c.mapping == nil || int64(len(c.mapping))+headerSize < needed {
		if err := c.expand(needed); err != nil {
			return err
		}
	}
	off := id * c.recLen
	copy(c.mapping[off:off+c.recLen], c.encode(coord))
	if id > c.header.MaxInitialisedID {
		c.header.MaxInitialisedID = id
	}
	return nil
}

// expand grows the backing file (and remaps it) so offset `needed`
// becomes addressable, sentinel-filling the newly added region so a
// never-written id in the gap between the old high-water mark and the
// new size decodes as absent rather than a zeroed (0,0) coordinate --
// matching §4.1's "extends the file by writing sentinel-filled blocks"
// and what setCreate's fillAbsent already does for create mode.
func (c *Cache) expand(needed int64) error {
	oldSize := int64(0)
	if c.mapping != nil {
		oldSize = int64(len(c.mapping))
		if err := c.mapping.Unmap(); err != nil {
			c.log.Warn("flatnode: munmap before expand failed", zap.Error(err))
		}
		c.mapping = nil
	} else if fi, err := c.file.Stat(); err == nil {
		if sz := fi.Size() - headerSize; sz > 0 {
			oldSize = sz
		}
	}

	growTo := needed * 2 // amortise repeated expansions
	if err := c.file.Truncate(growTo); err != nil {
		return &model.CacheFatal{Op: "truncate", Err: err}
	}
	if err := c.mapAppendRegion(); err != nil {
		return err
	}
	if c.mapping != nil && oldSize < int64(len(c.mapping)) {
		c.fillAbsent(c.mapping[oldSize:])
	}
	return nil
}

// Get looks up a single node id, returning ok=false if it was never set
// or lies beyond MaxInitialisedID.
func (c *Cache) Get(id int64) (model.Coordinate, bool) {
	if id < 0 || id > c.header.MaxInitialisedID {
		return model.Coordinate{}, false
	}
	switch c.mode {
	case ModeCreate:
		// Only the currently-buffered block is readable before flush;
		// everything before it has already been written to disk.
		blockID := id >> writeBlockShift
		if blockID == c.writeBlockID {
			off := (id & ((1 << writeBlockShift) - 1)) * c.recLen
			return c.decodeChecked(c.writeBuf[off : off+c.recLen])
		}
		buf := make([]byte, c.recLen)
		fileOff := headerSize + id*c.recLen
		if _, err := c.file.ReadAt(buf, fileOff); err != nil {
			return model.Coordinate{}, false
		}
		return c.decodeChecked(buf)
	case ModeAppend:
		off := id * c.recLen
		if c.mapping == nil || off+c.recLen > int64(len(c.mapping)) {
			return model.Coordinate{}, false
		}
		return c.decodeChecked(c.mapping[off : off+c.recLen])
	}
	return model.Coordinate{}, false
}

func (c *Cache) decodeChecked(buf []byte) (model.Coordinate, bool) {
	coord := c.decode(buf)
	if !coord.Valid() {
		return coord, false
	}
	return coord, true
}

// GetList resolves a batch of ids, issuing a readahead advisory hint
// over the spanned byte range before reading (nodes_prefetch_async in
// the original). The result is a map keyed by node id, so it carries no
// order; absent ids are omitted from it.
func (c *Cache) GetList(ids []int64) map[int64]model.Coordinate {
	c.issueReadahead(ids)
	out := make(map[int64]model.Coordinate, len(ids))
	for _, id := range ids {
		if coord, ok := c.Get(id); ok {
			out[id] = coord
		}
	}
	return out
}

func (c *Cache) issueReadahead(ids []int64) {
	if len(ids) == 0 || c.mode != ModeAppend {
		return
	}
	lo, hi := ids[0], ids[0]
	for _, id := range ids[1:] {
		if id < lo {
			lo = id
		}
		if id > hi {
			hi = id
		}
	}
	if lo < 0 {
		lo = 0
	}
	off := headerSize + lo*c.recLen
	length := (hi-lo+1)*c.recLen
	if err := unix.Fadvise(int(c.file.Fd()), off, length, unix.FADV_WILLNEED); err != nil {
		c.log.Warn("flatnode: fadvise(WILLNEED) failed", zap.Error(err))
	}
}

// MaxInitialisedID returns the highest node id ever written.
func (c *Cache) MaxInitialisedID() int64 { return c.header.MaxInitialisedID }
