package style

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/openstreetmap/osm2pgsql-go/internal/model"
)

// declaration is one JSON style entry (§6): Keys is cross-multiplied
// against Values (a value string, or "" for the key-list's own default,
// mapped to its own comma-separated flag expression), producing one
// Entry per (key, value) pair: declarations and keys in file order, the
// values of one key in sorted order. A declaration with no Keys
// (or a single "" key) paired with a "" value declares the style-wide
// default_flags fallback rather than an ordinary matching rule.
type declaration struct {
	Keys   []string          `json:"keys"`
	Values map[string]string `json:"values"`
}

// Load reads a JSON style file (a top-level array of declarations) and
// compiles it into a Style.
func Load(path string) (*Style, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read style file: %w", err)
	}
	var decls []declaration
	if err := json.Unmarshal(data, &decls); err != nil {
		return nil, fmt.Errorf("parse style file %s: %w", path, err)
	}

	s := &Style{}
	priority := 0
	for declIdx, d := range decls {
		keys := d.Keys
		if len(keys) == 0 {
			keys = []string{""}
		}
		values := make([]string, 0, len(d.Values))
		for v := range d.Values {
			values = append(values, v)
		}
		sort.Strings(values)

		for _, key := range keys {
			for _, value := range values {
				expr := d.Values[value]
				flags, err := parseFlagExpr(expr)
				if err != nil {
					return nil, fmt.Errorf("rule %d: %w", declIdx, err)
				}

				if key == "" && value == "" {
					s.defaultFlags = flags
					s.hasDefaultFlags = true
					continue
				}

				if ok, err := s.applyMetadataSwitch(key, value, flags); err != nil {
					return nil, fmt.Errorf("rule %d: %w", declIdx, err)
				} else if ok {
					continue
				}

				kind, matchKey, matchValue, err := classifyMatcher(key, value)
				if err != nil {
					return nil, fmt.Errorf("rule %d: %w", declIdx, err)
				}
				if key == "boundary" && (value == "" || value == "administrative") {
					flags |= model.FlagBoundary
				}
				s.addEntry(Entry{
					Key:      matchKey,
					Value:    matchValue,
					Matcher:  kind,
					Flags:    flags,
					Priority: priority,
				})
				priority++
			}
		}
	}
	return s, nil
}

// applyMetadataSwitch recognises one of the five metadata echo-column
// switches (osm_version, osm_timestamp, osm_changeset, osm_uid,
// osm_user): declared as a key with an empty value and the flag set
// {Extra} only. Reports ok=false for any other key so the caller falls
// through to ordinary matcher classification.
func (s *Style) applyMetadataSwitch(key, value string, flags model.Flags) (ok bool, err error) {
	var target *bool
	switch key {
	case "osm_version":
		target = &s.metaVersion
	case "osm_timestamp":
		target = &s.metaTimestamp
	case "osm_changeset":
		target = &s.metaChangeset
	case "osm_uid":
		target = &s.metaUID
	case "osm_user":
		target = &s.metaUser
	default:
		return false, nil
	}
	if value != "" || flags != model.FlagExtra {
		return false, fmt.Errorf("metadata rule %q must have an empty value and flags=[extra]", key)
	}
	*target = true
	return true, nil
}
