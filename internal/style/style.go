package style

import (
	"sort"
	"strings"

	"github.com/openstreetmap/osm2pgsql-go/internal/model"
)

// domainNameKeys are the tag keys gathered into ClassifiedObject.Names
// when a rule carries the MainNamedKey flag -- the usual name:* variants
// a gazetteer-style place table exposes as one jsonb column, grounded on
// add_metadata_style_entry / domain_names in the original.
var domainNameKeys = map[string]bool{
	"name": true, "int_name": true, "old_name": true, "loc_name": true,
	"reg_name": true, "official_name": true, "alt_name": true, "short_name": true,
}

// Style is a compiled set of classification rules plus the metadata
// echo columns a style file opted into.
type Style struct {
	full     map[string]Entry // "key\x00value" -> entry
	keyOnly  map[string]Entry
	valueOnly map[string]Entry
	prefix   []Entry
	suffix   []Entry

	// defaultFlags is the style-wide fallback consulted when no matcher
	// hits, declared by a {"keys":[],"values":{"":"..."}}/{"keys":[""],
	// "values":{"":"..."}} entry (spec §4.2's default_flags).
	defaultFlags    model.Flags
	hasDefaultFlags bool

	metaVersion, metaTimestamp, metaChangeset, metaUID, metaUser bool
}

func (s *Style) addEntry(e Entry) {
	switch e.Matcher {
	case FullMatch:
		if s.full == nil {
			s.full = map[string]Entry{}
		}
		k := e.Key + "\x00" + e.Value
		if _, exists := s.full[k]; !exists {
			s.full[k] = e
		}
	case KeyOnly:
		if s.keyOnly == nil {
			s.keyOnly = map[string]Entry{}
		}
		if _, exists := s.keyOnly[e.Key]; !exists {
			s.keyOnly[e.Key] = e
		}
	case ValueOnly:
		if s.valueOnly == nil {
			s.valueOnly = map[string]Entry{}
		}
		if _, exists := s.valueOnly[e.Value]; !exists {
			s.valueOnly[e.Value] = e
		}
	case KeyPrefix:
		s.prefix = append(s.prefix, e)
	case KeySuffix:
		s.suffix = append(s.suffix, e)
	}
}

// findFlag resolves the matcher that applies to a (key, value) tag,
// trying matcher kinds in priority order: full > key-only > prefix >
// suffix > value-only. Within prefix/suffix, declaration order wins and
// the candidate key must be strictly shorter than the tag key -- the §9
// Q1 decision, pinned to spec rather than "improved" to longest-match.
func (s *Style) findFlag(key, value string) (Entry, bool) {
	if e, ok := s.full[key+"\x00"+value]; ok {
		return e, true
	}
	if e, ok := s.keyOnly[key]; ok {
		return e, true
	}
	for _, e := range s.prefix {
		if len(e.Key) < len(key) && strings.HasPrefix(key, e.Key) {
			return e, true
		}
	}
	for _, e := range s.suffix {
		if len(e.Key) < len(key) && strings.HasSuffix(key, e.Key) {
			return e, true
		}
	}
	if e, ok := s.valueOnly[value]; ok {
		return e, true
	}
	if s.hasDefaultFlags {
		return Entry{Flags: s.defaultFlags, Priority: 1 << 30}, true
	}
	return Entry{}, false
}

// HasPlace reports whether tags carry a "place" key, mirroring has_place
// in the original -- used by callers deciding whether to run the
// interpolation/address-point synthetic main-tag passes.
func HasPlace(tags map[string]string) bool {
	_, ok := tags["place"]
	return ok
}

// mainCandidate is a main-tag match stashed during the tag scan, ranked
// by declaration priority for the two-pass (non-fallback, then
// fallback) emission copy_out performs in the original.
type mainCandidate struct {
	key, value string
	fallback   bool
	named      bool // from a with_name rule: dropped if the object has no name
	priority   int
}

// Classify runs process_tags + copy_out over one object's tags, in a
// single left-to-right pass for collection and a short reconciliation
// pass at the end. tags must be in the object's original declaration
// order: first-seen-wins fields (Name, Ref, Postcode, Country, Address)
// depend on it, so callers must never classify over an unordered map.
func (s *Style) Classify(id model.OsmId, typ model.ObjectType, tags []model.Tag, meta model.Metadata) *model.ClassifiedObject {
	obj := &model.ClassifiedObject{
		ID:      id,
		Type:    typ,
		Admin:   15, // default when no admin_level tag is present
		Address: map[string]string{},
		Extra:   map[string]string{},
		Names:   map[string]string{},
		Meta:    s.filterMeta(meta),
	}

	var mainCandidates []mainCandidate
	var operatorSeen bool
	var place string
	var placeEntry Entry
	var havePlace bool

	for _, t := range tags {
		key, value := t.Key, t.Value
		if key == "admin_level" {
			obj.Admin = clampAdminLevel(value)
			continue
		}
		if key == "place" {
			place = value
			havePlace = true
			// place itself may also carry its own style entry (e.g. to
			// mark it Main by default); resolve it like any other tag
			// so it can still be demoted below.
			if e, ok := s.findFlag(key, value); ok {
				placeEntry = e
			} else {
				placeEntry = Entry{Key: "place", Value: value, Flags: model.FlagMain}
			}
			continue
		}

		e, ok := s.findFlag(key, value)
		if !ok || e.Flags.Has(model.FlagSkip) {
			continue
		}

		if e.Flags.Has(model.FlagBoundary) {
			obj.Boundary = true
		}
		if e.Flags.Has(model.FlagName) && obj.Name == "" {
			obj.Name = value
		}
		if e.Flags.Has(model.FlagMainNamedKey) && domainNameKeys[key] {
			obj.Names[key] = value
		}
		if e.Flags.Has(model.FlagRef) && obj.Ref == "" {
			obj.Ref = value
		}
		if e.Flags.Has(model.FlagMainOperator) && !operatorSeen {
			obj.Operator = value
			operatorSeen = true
		}
		if e.Flags.Has(model.FlagPostcode) && obj.Postcode == "" {
			obj.Postcode = value
		}
		if e.Flags.Has(model.FlagCountry) && obj.Country == "" && len(value) == 2 {
			obj.Country = strings.ToUpper(value)
		}
		if e.Flags.Has(model.FlagAddress) || e.Flags.Has(model.FlagAddressPoint) {
			normKey := normalizeAddressKey(key)
			if normKey == "tiger:county" {
				normKey = "county"
				value = rewriteTigerCounty(value)
			}
			if _, seen := obj.Address[normKey]; !seen {
				obj.Address[normKey] = value
			}
		}
		if e.Flags.Has(model.FlagExtra) {
			obj.Extra[key] = value
		}
		if e.Flags.Has(model.FlagInterpolation) {
			obj.Interpolation = true
		}
		if e.Flags.Has(model.FlagMain) || e.Flags.Has(model.FlagMainFallback) || e.Flags.Has(model.FlagMainNamed) {
			mainCandidates = append(mainCandidates, mainCandidate{
				key: key, value: value,
				fallback: e.Flags.Has(model.FlagMainFallback) || e.Flags.Has(model.FlagMainNamed),
				named:    e.Flags.Has(model.FlagMainNamed),
				priority: e.Priority,
			})
		}
	}

	// with_name rules only count as a main candidate once a name has
	// actually been seen; the name may follow in tag order, so the
	// decision is made after the scan.
	if obj.Name == "" && obj.Ref == "" && len(obj.Names) == 0 {
		kept := mainCandidates[:0]
		for _, c := range mainCandidates {
			if !c.named {
				kept = append(kept, c)
			}
		}
		mainCandidates = kept
	}

	// place demotion: an administrative boundary relation/way keeps its
	// boundary=administrative main tag and the place value is demoted to
	// an ordinary extra tag rather than competing for the main slot --
	// gazetteer-style.cpp process_tags' "ignore place on administrative
	// boundaries" rule.
	if havePlace {
		if obj.Boundary {
			obj.Extra["place"] = place
		} else if placeEntry.Flags.Has(model.FlagMain) {
			mainCandidates = append(mainCandidates, mainCandidate{key: "place", value: place, priority: placeEntry.Priority})
		} else {
			obj.Extra["place"] = place
		}
	}

	if obj.Interpolation {
		mainCandidates = append(mainCandidates, mainCandidate{key: "place", value: "houses", fallback: true, priority: 1 << 30})
	}

	reconcileMain(obj, mainCandidates)

	return obj
}

// reconcileMain emits every non-fallback candidate as its own row, in
// declaration-priority order; only when there are none does it fall back
// to the single lowest-priority fallback candidate. Matches copy_out's
// two-pass emission (all of pass one, or the best of pass two) -- an
// object tagged both amenity=restaurant and shop=bakery, both flagged
// Main, yields two entries in obj.Mains, not one.
func reconcileMain(obj *model.ClassifiedObject, candidates []mainCandidate) {
	var nonFallback []mainCandidate
	var bestFallback *mainCandidate
	for i := range candidates {
		c := &candidates[i]
		if c.fallback {
			if bestFallback == nil || c.priority < bestFallback.priority {
				bestFallback = c
			}
			continue
		}
		nonFallback = append(nonFallback, *c)
	}
	if len(nonFallback) > 0 {
		sort.Slice(nonFallback, func(i, j int) bool { return nonFallback[i].priority < nonFallback[j].priority })
		for _, c := range nonFallback {
			obj.Mains = append(obj.Mains, model.MainTag{Class: c.key, Value: c.value})
		}
		return
	}
	if bestFallback != nil {
		obj.Mains = append(obj.Mains, model.MainTag{Class: bestFallback.key, Value: bestFallback.value})
	}
}

func (s *Style) filterMeta(meta model.Metadata) model.Metadata {
	out := model.Metadata{}
	if s.metaVersion {
		out.Version = meta.Version
	}
	if s.metaTimestamp {
		out.Timestamp = meta.Timestamp
	}
	if s.metaChangeset {
		out.Changeset = meta.Changeset
	}
	if s.metaUID {
		out.UID = meta.UID
	}
	if s.metaUser {
		out.User = meta.User
	}
	return out
}

// clampAdminLevel parses admin_level and collapses it into [1,15]; a
// non-numeric value, or one <= 0, collapses to 15 (the same "absent"
// default Classify assigns when no admin_level tag is present at all),
// matching §4.2's "values <= 0 or > 15 collapse to 15". admin_level is
// never emitted as NULL or 0.
func clampAdminLevel(value string) int {
	n := 0
	neg := false
	for i, r := range value {
		if i == 0 && r == '-' {
			neg = true
			continue
		}
		if r < '0' || r > '9' {
			return 15
		}
		n = n*10 + int(r-'0')
	}
	if neg {
		n = -n
	}
	if n <= 0 {
		return 15
	}
	if n > 15 {
		return 15
	}
	return n
}

// rewriteTigerCounty turns a tiger:county value of the form "Cook, WI"
// into "Cook County, WI", matching copy_out_maintag's tiger:county
// rewrite -- the raw TIGER import data names the county without the
// word "County", which the output address expects.
func rewriteTigerCounty(value string) string {
	name, state, ok := strings.Cut(value, ",")
	if !ok {
		return value
	}
	name = strings.TrimSpace(name)
	if strings.HasSuffix(strings.ToLower(name), "county") {
		return value
	}
	return name + " County," + state
}

// normalizeAddressKey strips the addr: or is_in: prefix so e.g.
// addr:housenumber emits as the "housenumber" key in the Address map.
func normalizeAddressKey(key string) string {
	if v, ok := strings.CutPrefix(key, "addr:"); ok {
		return v
	}
	if v, ok := strings.CutPrefix(key, "is_in:"); ok {
		return v
	}
	return key
}
