package flatnode

import (
	"encoding/binary"
	"math"

	"github.com/openstreetmap/osm2pgsql-go/internal/model"
)

// coordScale converts degrees to the fixed-point int32 encoding and back
// (× 10^7, matching the precision osm2pgsql's fixed-point mode uses).
const coordScale = 1e7

// fixedAbsent is the absence sentinel for fixed-point records: both
// fields set to math.MinInt32. Chosen because a real scaled coordinate
// never reaches that magnitude.
var fixedAbsent = int32(math.MinInt32)

// encodeFixed packs a coordinate into 8 bytes as two little-endian int32.
// A NaN input (explicitly, not merely an unset value) is mapped to the
// absence sentinel rather than stored verbatim -- see SPEC_FULL.md §5 Q2.
func encodeFixed(c model.Coordinate) [8]byte {
	var buf [8]byte
	if !c.Valid() {
		binary.LittleEndian.PutUint32(buf[0:4], uint32(fixedAbsent))
		binary.LittleEndian.PutUint32(buf[4:8], uint32(fixedAbsent))
		return buf
	}
	lon := int32(math.Round(c.Lon * coordScale))
	lat := int32(math.Round(c.Lat * coordScale))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(lon))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(lat))
	return buf
}

func decodeFixed(buf []byte) model.Coordinate {
	lon := int32(binary.LittleEndian.Uint32(buf[0:4]))
	lat := int32(binary.LittleEndian.Uint32(buf[4:8]))
	if lon == fixedAbsent && lat == fixedAbsent {
		return model.Coordinate{Lon: math.NaN(), Lat: math.NaN()}
	}
	return model.Coordinate{Lon: float64(lon) / coordScale, Lat: float64(lat) / coordScale}
}

// encodeFloating packs a coordinate into 16 bytes as two little-endian
// float64. NaN passes through verbatim -- that IS the absence sentinel
// in floating mode, per SPEC_FULL.md §5 Q2.
func encodeFloating(c model.Coordinate) [16]byte {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], math.Float64bits(c.Lon))
	binary.LittleEndian.PutUint64(buf[8:16], math.Float64bits(c.Lat))
	return buf
}

func decodeFloating(buf []byte) model.Coordinate {
	lon := math.Float64frombits(binary.LittleEndian.Uint64(buf[0:8]))
	lat := math.Float64frombits(binary.LittleEndian.Uint64(buf[8:16]))
	return model.Coordinate{Lon: lon, Lat: lat}
}
