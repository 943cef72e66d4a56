// Package style implements the tag-classification engine: a declarative
// set of rules that turns an OSM object's raw tags into the flagged,
// reconciled set of output columns the sink writes.
//
// Grounded on original_source/gazetteer-style.cpp. The rule file format
// is JSON (spec §6), not the teacher's YAML include/exclude filter --
// internal/style/config.go in the teacher only supports allow/deny lists
// and has no notion of flags, matcher priority, or metadata fields, so it
// is replaced wholesale rather than adapted.
package style

import (
	"fmt"
	"strings"

	"github.com/openstreetmap/osm2pgsql-go/internal/model"
)

// MatcherKind is how a rule's (key, value) pair is compared against an
// object's tag. Priority when several kinds could match the same tag is
// FullMatch > KeyOnly > KeyPrefix > KeySuffix > ValueOnly, matching
// find_flag in the original.
type MatcherKind int

const (
	FullMatch MatcherKind = iota
	KeyOnly
	ValueOnly
	KeyPrefix
	KeySuffix
)

// Entry is one fully expanded (key, value) -> flags rule, after a
// declaration's keys × values cross product has been applied.
type Entry struct {
	Key      string
	Value    string
	Matcher  MatcherKind
	Flags    model.Flags
	Priority int // declaration order; lower sorts first among same-kind matches
}

// classifyMatcher inspects a declared key/value pair and decides which
// MatcherKind it expresses, per §4.2:
//   - key == "" && value == ""  -> default_flags (caller handles; never reaches here)
//   - key == "" && value != ""  -> ValueOnly(value) (match regardless of key)
//   - key == "*"                -> ambiguous, rejected
//   - key has a trailing "*"    -> KeyPrefix (strict: candidate shorter than tag key)
//   - key has a leading "*"     -> KeySuffix (strict: candidate shorter than tag key)
//   - value == ""               -> KeyOnly(key) (match regardless of value)
//   - otherwise                 -> FullMatch(key, value)
func classifyMatcher(key, value string) (kind MatcherKind, matchKey, matchValue string, err error) {
	if key == "" {
		return ValueOnly, "", value, nil
	}
	if key == "*" {
		return 0, "", "", fmt.Errorf(`ambiguous key "*": use "x*" or "*x" for a prefix/suffix match`)
	}
	if strings.HasSuffix(key, "*") && len(key) > 1 {
		if value != "" {
			return 0, "", "", fmt.Errorf("key prefix match %q must have an empty value", key)
		}
		return KeyPrefix, strings.TrimSuffix(key, "*"), "", nil
	}
	if strings.HasPrefix(key, "*") && len(key) > 1 {
		if value != "" {
			return 0, "", "", fmt.Errorf("key suffix match %q must have an empty value", key)
		}
		return KeySuffix, strings.TrimPrefix(key, "*"), "", nil
	}
	if value == "" {
		return KeyOnly, key, "", nil
	}
	return FullMatch, key, value, nil
}

// parseFlagExpr splits a values-map entry's comma-separated flag
// expression (e.g. "main,fallback") into tokens and parses it.
func parseFlagExpr(expr string) (model.Flags, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return 0, nil
	}
	parts := strings.Split(expr, ",")
	tokens := make([]string, len(parts))
	for i, p := range parts {
		tokens[i] = strings.TrimSpace(p)
	}
	return parseFlags(tokens)
}

// parseFlags maps a rule's flag token list onto model.Flags. Token names
// mirror parse_flags in the original's gazetteer style: skip, main,
// with_name_key, with_name, fallback, operator, name, ref, address,
// house, postcode, country, extra, interpolation. "house" is the item
// that item=="house" maps to SF_ADDRESS_POINT in the original -- it is
// not an alias for "address".
func parseFlags(tokens []string) (model.Flags, error) {
	var f model.Flags
	for _, tok := range tokens {
		switch tok {
		case "skip":
			f |= model.FlagSkip
		case "main":
			f |= model.FlagMain
		case "with_name":
			f |= model.FlagMainNamed
		case "with_name_key":
			f |= model.FlagMainNamedKey
		case "fallback":
			f |= model.FlagMainFallback
		case "operator":
			f |= model.FlagMainOperator
		case "name":
			f |= model.FlagName
		case "ref":
			f |= model.FlagRef
		case "address":
			f |= model.FlagAddress
		case "house":
			f |= model.FlagAddressPoint
		case "postcode":
			f |= model.FlagPostcode
		case "country":
			f |= model.FlagCountry
		case "extra":
			f |= model.FlagExtra
		case "interpolation":
			f |= model.FlagInterpolation
		case "boundary":
			f |= model.FlagBoundary
		default:
			return 0, fmt.Errorf("unknown style flag %q", tok)
		}
	}
	// skip is idempotent and wins over everything else declared alongside it.
	if f.Has(model.FlagSkip) {
		f = model.FlagSkip
	}
	return f, nil
}
