// Package model holds the data types shared across the importer: OSM
// identifiers, coordinates, and the classified-object record that flows
// from the style engine into the geometry assembler and sink.
package model

import "time"

// OsmId identifies an OSM node, way, or relation. Negative values are
// reserved as a sentinel for "no such object" in lookups that return an
// id alongside a found/not-found bool; callers should prefer the bool.
type OsmId int64

// ObjectType distinguishes the three OSM primitive kinds.
type ObjectType uint8

const (
	TypeNode ObjectType = iota
	TypeWay
	TypeRelation
)

func (t ObjectType) String() string {
	switch t {
	case TypeNode:
		return "N"
	case TypeWay:
		return "W"
	case TypeRelation:
		return "R"
	default:
		return "?"
	}
}

// Coordinate is a WGS84 longitude/latitude pair in degrees.
type Coordinate struct {
	Lon, Lat float64
}

// Valid reports whether c is not the NaN absence sentinel used by the
// floating-point flat-node encoding.
func (c Coordinate) Valid() bool {
	return c.Lon == c.Lon && c.Lat == c.Lat // NaN != NaN
}

// Tag is a single (key, value) pair preserved in its original declaration
// order -- the style engine's first-seen-wins resolution (Name, Ref,
// Postcode, Country, Address) depends on tags being walked in this order
// rather than an unordered map.
type Tag struct {
	Key   string
	Value string
}

// Member is one member of an OSM relation.
type Member struct {
	Type OsmType
	Ref  int64
	Role string
}

// OsmType is the member-type discriminator used on relation members,
// kept distinct from ObjectType because OSM XML/PBF spells it "n"/"w"/"r".
type OsmType uint8

const (
	MemberNode OsmType = iota
	MemberWay
	MemberRelation
)

// Metadata carries the optional echo columns named in the style's
// metadata rules (osm_version, osm_timestamp, osm_changeset, osm_uid,
// osm_user).
type Metadata struct {
	Version   int32
	Timestamp time.Time
	Changeset int64
	UID       int32
	User      string
}

// Flags is the bitset a style rule attaches to a matched tag. Order
// mirrors the token list accepted by a style rule's flag column.
type Flags uint32

const (
	FlagMain Flags = 1 << iota
	FlagMainNamed
	FlagMainNamedKey
	FlagMainFallback
	FlagMainOperator
	FlagName
	FlagRef
	FlagAddress
	FlagAddressPoint
	FlagPostcode
	FlagCountry
	FlagExtra
	FlagInterpolation
	FlagBoundary
	FlagSkip
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// MainTag is one winning main-tag match out of a classified object's
// reconciliation pass. copy_out in the original emits one output row per
// such entry that survives reconciliation -- an object carrying both
// amenity=restaurant and shop=bakery, both flagged Main, yields two rows.
type MainTag struct {
	Class string
	Value string
}

// ClassifiedObject is the result of running an OSM object's tags through
// the style engine: the collected name, ref, address and extra fields plus
// the main tags that won reconciliation, ready to be emitted as one row
// per entry in Mains.
type ClassifiedObject struct {
	ID       OsmId
	Type     ObjectType
	Admin    int // admin_level, clamped to [1,15]; defaults to 15 when absent
	Meta     Metadata
	Tags     map[string]string // classified output tags, in emission order via TagOrder
	TagOrder []string
	Address  map[string]string
	Extra    map[string]string
	Names    map[string]string // domain name variants (name, name:en, int_name, ...) for MainNamedKey
	Name     string
	Ref      string
	Postcode string
	Country  string
	Operator string
	Mains    []MainTag // winning main tags after fallback reconciliation; one row per entry
	Boundary bool
	Interpolation bool
}

// Row is the fully assembled record handed to the sink: a classified
// object plus its built geometry, ready for COPY-protocol encoding.
type Row struct {
	ID         OsmId
	Type       ObjectType
	Class      string // one ClassifiedObject.Mains entry's key
	Value      string // that entry's value
	Name       string
	AdminLevel int
	Address    map[string]string
	Extra      map[string]string
	WKB        []byte
	Meta       Metadata
	HasMeta    bool
}

// NewRow builds a sink Row from a classified object, the main tag it is
// being emitted for, and its assembled geometry. The pipeline calls this
// once per obj.Mains entry, reusing the same geometry for each.
func NewRow(obj *ClassifiedObject, main MainTag, wkb []byte) Row {
	return Row{
		ID:         obj.ID,
		Type:       obj.Type,
		Class:      main.Class,
		Value:      main.Value,
		Name:       obj.Name,
		AdminLevel: obj.Admin,
		Address:    obj.Address,
		Extra:      obj.Extra,
		WKB:        wkb,
		Meta:       obj.Meta,
		HasMeta:    obj.Meta != Metadata{},
	}
}
