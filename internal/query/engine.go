// Package query implements the lookups served by stockd. Every operation is a
// full scan of the store in load order, so first-match and result ordering
// follow the order records were loaded in.
package query

import (
	"fmt"
	"strings"

	"stockd/internal/logging"
	"stockd/internal/store"
	"stockd/internal/types"
)

// Outcome is the result of a lookup: either the matching records or the
// reason nothing matched. Exactly one of the two is set.
type Outcome struct {
	records []types.Record
	reason  string
}

// Found wraps matching records.
func Found(records ...types.Record) Outcome {
	return Outcome{records: records}
}

// NotFound describes why nothing matched.
func NotFound(format string, args ...interface{}) Outcome {
	return Outcome{reason: fmt.Sprintf(format, args...)}
}

// Found reports whether the lookup matched anything.
func (o Outcome) Found() bool {
	return o.reason == ""
}

// Records returns the matches; empty when not found.
func (o Outcome) Records() []types.Record {
	return o.records
}

// First returns the first match.
func (o Outcome) First() (types.Record, bool) {
	if !o.Found() || len(o.records) == 0 {
		return types.Record{}, false
	}
	return o.records[0], true
}

// Reason returns the not-found message; empty when found.
func (o Outcome) Reason() string {
	return o.reason
}

// NoData is the reason reported for every lookup against an empty store.
const NoData = "no stock data loaded"

// Engine runs lookups against a store. It keeps no state between calls.
type Engine struct {
	store  *store.Store
	schema types.Schema
}

// NewEngine builds an engine over s using schema to locate fields.
func NewEngine(s *store.Store, schema types.Schema) *Engine {
	if s == nil {
		s = store.New(nil)
	}
	return &Engine{store: s, schema: schema}
}

// Store returns the store the engine reads.
func (e *Engine) Store() *store.Store {
	return e.store
}

// Schema returns the field names the engine matches on.
func (e *Engine) Schema() types.Schema {
	return e.schema
}

// ByCode returns the first record whose identifier equals code, both sides
// trimmed of surrounding whitespace.
func (e *Engine) ByCode(code string) Outcome {
	if e.store.Empty() {
		return NotFound(NoData)
	}
	want := strings.TrimSpace(code)
	for _, r := range e.store.All() {
		if e.schema.IdentifierOf(r) == want {
			return Found(r)
		}
	}
	return NotFound("stock code %s not found", code)
}

// SearchByName returns records whose name contains name, ignoring case.
func (e *Engine) SearchByName(name string) Outcome {
	if e.store.Empty() {
		return NotFound(NoData)
	}
	matches := e.filter(containsFold(name, e.schema.NameOf))
	if len(matches) == 0 {
		return NotFound("no stocks with a name containing '%s'", name)
	}
	return Found(matches...)
}

// ByIndustry returns records whose sector contains industry, ignoring case.
func (e *Engine) ByIndustry(industry string) Outcome {
	if e.store.Empty() {
		return NotFound(NoData)
	}
	matches := e.filter(containsFold(industry, e.schema.SectorOf))
	if len(matches) == 0 {
		return NotFound("no stocks in industry '%s'", industry)
	}
	return Found(matches...)
}

// BySize returns records whose size class equals size. The label is used in
// the not-found message so callers can echo the value as it was supplied; a
// size that is not an integer (ok false) matches nothing.
func (e *Engine) BySize(size int64, ok bool, label string) Outcome {
	if e.store.Empty() {
		return NotFound(NoData)
	}
	var matches []types.Record
	if ok {
		matches = e.filter(func(r types.Record) bool {
			got, isInt := e.schema.SizeClassOf(r)
			return isInt && got == size
		})
	}
	if len(matches) == 0 {
		return NotFound("no stocks with size code %s", label)
	}
	return Found(matches...)
}

// All returns every record.
func (e *Engine) All() Outcome {
	if e.store.Empty() {
		return NotFound(NoData)
	}
	return Found(e.store.All()...)
}

func (e *Engine) filter(match func(types.Record) bool) []types.Record {
	var out []types.Record
	for _, r := range e.store.All() {
		if match(r) {
			out = append(out, r)
		}
	}
	logging.QueryDebug("filter matched %d of %d records", len(out), e.store.Len())
	return out
}

func containsFold(needle string, field func(types.Record) string) func(types.Record) bool {
	needle = strings.ToLower(needle)
	return func(r types.Record) bool {
		return strings.Contains(strings.ToLower(field(r)), needle)
	}
}
