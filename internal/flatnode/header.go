package flatnode

import (
	"encoding/binary"
	"fmt"
	"io"
)

// formatVersion is bumped whenever the on-disk record layout changes.
// Grounded on node-persistent-cache.cpp's PERSISTENT_CACHE_FORMAT_VERSION.
const formatVersion int32 = 1

// headerSize is the fixed on-disk size of persistentCacheHeader, padded
// so the first data block always starts at a page-aligned offset.
const headerSize = 4096

// idSizeFixed / idSizeFloating are the two supported per-record byte
// widths: two int32 (scaled fixed-point) or two float64 (raw degrees).
const (
	idSizeFixed    int32 = 8
	idSizeFloating int32 = 16
)

// persistentCacheHeader is the first record in the flat-node file.
// Grounded on node-persistent-cache.hpp's persistentCacheHeader.
type persistentCacheHeader struct {
	FormatVersion     int32
	IDSize            int32
	MaxInitialisedID  int64
}

func readHeader(r io.ReaderAt) (persistentCacheHeader, error) {
	buf := make([]byte, 16)
	if _, err := r.ReadAt(buf, 0); err != nil {
		return persistentCacheHeader{}, fmt.Errorf("read header: %w", err)
	}
	h := persistentCacheHeader{
		FormatVersion:    int32(binary.LittleEndian.Uint32(buf[0:4])),
		IDSize:           int32(binary.LittleEndian.Uint32(buf[4:8])),
		MaxInitialisedID: int64(binary.LittleEndian.Uint64(buf[8:16])),
	}
	return h, nil
}

func writeHeader(w io.WriterAt, h persistentCacheHeader) error {
	buf := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.FormatVersion))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(h.IDSize))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(h.MaxInitialisedID))
	_, err := w.WriteAt(buf, 0)
	return err
}

func (h persistentCacheHeader) validate(wantIDSize int32) error {
	if h.FormatVersion != formatVersion {
		return fmt.Errorf("unsupported flat-node format version %d (want %d)", h.FormatVersion, formatVersion)
	}
	if h.IDSize != wantIDSize {
		return fmt.Errorf("flat-node file id size %d does not match requested mode (%d)", h.IDSize, wantIDSize)
	}
	return nil
}
