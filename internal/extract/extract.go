package extract

import (
	"fmt"
	"regexp"
)

// Record is one structured block pulled out of a response body.
// A field that was not found is absent from the map.
type Record map[string]string

// Get returns the field value and whether it was present.
func (r Record) Get(name string) (string, bool) {
	v, ok := r[name]
	return v, ok
}

// Extractor scans a document in two passes: it first cuts the document into
// blocks (e.g. one per <form>), then looks for each named field inside a block.
type Extractor struct {
	block    *regexp.Regexp
	fields   []string
	required []string
	patterns map[string]*regexp.Regexp
}

// Flights extracts flight offers from the reserve page of the booking site.
var Flights = New("form",
	[]string{"flight", "price", "airline", "fromPort", "toPort"},
	"flight", "airline", "price",
)

// New builds an extractor for <block>...</block> regions. A region yields a
// Record only when every required field is present.
func New(block string, fields []string, required ...string) *Extractor {
	tag := regexp.QuoteMeta(block)
	e := &Extractor{
		block:    regexp.MustCompile(fmt.Sprintf(`(?is)<%s\b[^>]*>(.*?)</%s\s*>`, tag, tag)),
		fields:   fields,
		required: required,
		patterns: make(map[string]*regexp.Regexp, len(fields)),
	}
	for _, f := range fields {
		e.patterns[f] = fieldPattern(f)
	}
	for _, f := range required {
		if _, ok := e.patterns[f]; !ok {
			e.patterns[f] = fieldPattern(f)
		}
	}
	return e
}

// fieldPattern matches name="f" followed by value="v" inside the same tag, or
// the reverse order. Quotes may be single or double.
func fieldPattern(field string) *regexp.Regexp {
	name := regexp.QuoteMeta(field)
	return regexp.MustCompile(fmt.Sprintf(
		`(?i)name=["']%s["'][^>]*?value=["']([^"']+)["']|value=["']([^"']+)["'][^>]*?name=["']%s["']`,
		name, name,
	))
}

// Extract returns one Record per qualifying block, in document order.
func (e *Extractor) Extract(doc string) []Record {
	if doc == "" {
		return nil
	}

	var out []Record
	for _, m := range e.block.FindAllStringSubmatch(doc, -1) {
		if rec, ok := e.record(m[1]); ok {
			out = append(out, rec)
		}
	}
	return out
}

func (e *Extractor) record(block string) (Record, bool) {
	rec := make(Record, len(e.fields))
	for _, f := range e.fields {
		if v, ok := e.field(block, f); ok {
			rec[f] = v
		}
	}
	for _, f := range e.required {
		if _, ok := rec[f]; ok {
			continue
		}
		// required but not listed among the fields
		v, ok := e.field(block, f)
		if !ok {
			return nil, false
		}
		rec[f] = v
	}
	return rec, true
}

func (e *Extractor) field(block, name string) (string, bool) {
	m := e.patterns[name].FindStringSubmatch(block)
	if m == nil {
		return "", false
	}
	if m[1] != "" {
		return m[1], true
	}
	return m[2], true
}
