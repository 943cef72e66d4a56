// Package sink writes assembled rows to PostgreSQL using the COPY
// protocol. Grounded on the teacher's internal/pipeline/streaming_loader.go
// for GIST/btree index creation; the line format itself is hand-built text-format COPY data
// (with the escaping, hash-column, and hex-WKB rules spec §4.4
// describes) fed through pgconn's raw CopyFrom rather than the
// teacher's pgx.CopyFromSource/binary-protocol path, since that path
// has no hook for the spec's specific escaping/hash-encoding rules.
package sink

import (
	"encoding/hex"
	"sort"
	"strings"
)

// escapeText escapes a single COPY text-format field: backslash,
// newline, tab, and carriage return are backslash-escaped. NULL is the
// two-character literal "\N", which buildLine's nullable also writes in
// place of an empty field, so an empty string is stored as NULL.
func escapeText(s string) string {
	if !strings.ContainsAny(s, "\\\n\t\r") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// encodeHash renders a string-to-string map as a PostgreSQL hstore text
// literal: "key"=>"value", comma separated, keys sorted for determinism,
// with quotes and backslashes inside keys/values doubly escaped -- once
// for the hstore literal's own quoting, then again for the surrounding
// COPY text-format escaping (escapeText is applied afterwards by the
// caller).
func encodeHash(m map[string]string) string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('"')
		b.WriteString(hstoreQuote(k))
		b.WriteString(`"=>"`)
		b.WriteString(hstoreQuote(m[k]))
		b.WriteByte('"')
	}
	return b.String()
}

func hstoreQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}

// encodeHexWKB renders binary WKB as the hex string COPY's bytea/geometry
// text format expects.
func encodeHexWKB(b []byte) string {
	return hex.EncodeToString(b)
}
