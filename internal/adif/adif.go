// Package adif encodes and decodes the ADIF tag-length-value interchange format.
//
// A record is a sequence of fields written as <name:N>value, where N is the byte
// length of value, terminated by <eor>. Values are length-prefixed rather than
// delimited, so they may contain any byte, including '<' and '>'.
//
// The package is pure: it knows nothing about which fields a contact has, which
// values are sentinels, or how dates are displayed. Those translations belong to
// the caller.
package adif

import (
	"fmt"
	"strings"
)

// Version is the ADIF specification version written into export headers.
const Version = "3.1.4"

// Field is one tag/value pair of a record.
type Field struct {
	Name  string
	Value string
}

// Record is an ordered list of fields. Order is preserved through decoding so that
// re-encoding a decoded record is lossless, including tags this package does not know.
type Record []Field

// Get returns the value of the first field whose name matches (case-insensitive).
func (r Record) Get(name string) (string, bool) {
	for _, f := range r {
		if strings.EqualFold(f.Name, name) {
			return f.Value, true
		}
	}
	return "", false
}

// Map returns the record as a map keyed by lower-cased tag name.
// When a tag repeats, the last value wins.
func (r Record) Map() map[string]string {
	m := make(map[string]string, len(r))
	for _, f := range r {
		m[strings.ToLower(f.Name)] = f.Value
	}
	return m
}

// Encode renders one record followed by the <eor> marker and a newline.
// Fields with an empty value are omitted.
func Encode(rec Record) string {
	var b strings.Builder
	for _, f := range rec {
		writeField(&b, f.Name, f.Value)
	}
	b.WriteString("<eor>\n")
	return b.String()
}

// Header renders a file header: one free-text line naming the producer, then the
// standard header fields and the <eoh> marker. Decoders skip everything up to <eoh>.
func Header(program, version string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s ADIF export v%s\n", program, version)
	writeField(&b, "adif_ver", Version)
	writeField(&b, "programid", program)
	writeField(&b, "programversion", version)
	b.WriteString("<eoh>\n\n")
	return b.String()
}

func writeField(b *strings.Builder, name, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "<%s:%d>%s ", name, len(value), value)
}
