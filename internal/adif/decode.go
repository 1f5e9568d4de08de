package adif

import (
	"iter"
	"strconv"
	"strings"

	"github.com/w9en/qsolog/internal/errors"
)

// Records returns a lazy iterator over the records in text.
//
// Each range over the returned sequence scans text from the beginning, so the
// sequence can be consumed more than once. On malformed input the iterator yields
// a single CODEC_ERROR and stops.
func Records(text string) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		d := &decoder{src: unquote(text)}
		for {
			rec, ok, err := d.next()
			if err != nil {
				yield(nil, err)
				return
			}
			if !ok {
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// DecodeAll decodes every record in text. If any part of the input is malformed no
// records are returned.
func DecodeAll(text string) ([]Record, error) {
	var out []Record
	for rec, err := range Records(text) {
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// unquote strips one pair of matching quotes wrapping the whole payload.
func unquote(s string) string {
	t := strings.TrimSpace(s)
	if len(t) >= 2 {
		first, last := t[0], t[len(t)-1]
		if first == last && (first == '"' || first == '\'') {
			return t[1 : len(t)-1]
		}
	}
	return s
}

type decoder struct {
	src string
	pos int
}

// next scans forward to the end of the next record.
// It returns ok=false once no further record exists.
func (d *decoder) next() (Record, bool, error) {
	rec := Record{}
	pending := false

	for {
		lt := strings.IndexByte(d.src[d.pos:], '<')
		if lt < 0 {
			if pending {
				return nil, false, errors.NewCodec(len(d.src), "record missing <eor>")
			}
			d.pos = len(d.src)
			return nil, false, nil
		}
		start := d.pos + lt

		// Outside a record a stray '<' or a malformed header is free text.
		gt := strings.IndexByte(d.src[start+1:], '>')
		if gt < 0 {
			if !pending {
				d.pos = len(d.src)
				return nil, false, nil
			}
			return nil, false, errors.NewCodec(start, "unterminated tag")
		}
		end := start + 1 + gt
		hdr := d.src[start+1 : end]

		// A '<' inside the header means the first one was literal text.
		if inner := strings.LastIndexByte(hdr, '<'); inner >= 0 {
			d.pos = start + 1 + inner
			continue
		}
		d.pos = end + 1

		name, length, hasLength, ok := parseTag(hdr)
		if !ok {
			if !pending {
				continue
			}
			return nil, false, errors.NewCodec(start, "malformed tag <"+hdr+">")
		}

		if !hasLength {
			switch strings.ToLower(name) {
			case "eor":
				return rec, true, nil
			case "eoh":
				rec = Record{}
				pending = false
			}
			continue
		}

		if length > len(d.src)-d.pos {
			return nil, false, errors.NewCodec(start, "length of <"+hdr+"> runs past end of input")
		}
		rec = append(rec, Field{Name: name, Value: d.src[d.pos : d.pos+length]})
		d.pos += length
		pending = true
	}
}

// parseTag splits "name", "name:len" or "name:len:type".
func parseTag(hdr string) (name string, length int, hasLength bool, ok bool) {
	parts := strings.Split(hdr, ":")
	name = strings.TrimSpace(parts[0])

	switch len(parts) {
	case 1:
		return name, 0, false, true
	case 2, 3:
		if name == "" {
			return "", 0, false, false
		}
		n, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil || n < 0 {
			return "", 0, false, false
		}
		return name, n, true, true
	default:
		return "", 0, false, false
	}
}
