package types

import (
	"fmt"
	"strings"
)

// Schema names the record fields the query engine inspects. All other fields
// are carried through untouched.
type Schema struct {
	Identifier string `yaml:"identifier" json:"identifier"`
	Name       string `yaml:"name" json:"name"`
	Sector     string `yaml:"sector" json:"sector"`
	SizeClass  string `yaml:"size_class" json:"size_class"`
}

// DefaultSchema uses plain English field names.
func DefaultSchema() Schema {
	return Schema{
		Identifier: "identifier",
		Name:       "name",
		Sector:     "sector",
		SizeClass:  "size_class",
	}
}

// JPXSchema matches the columns of the exchange's listed-issues sheet
// (data_j.xls) as emitted by the analysis step.
func JPXSchema() Schema {
	return Schema{
		Identifier: "コード",
		Name:       "銘柄名",
		Sector:     "33業種区分",
		SizeClass:  "規模コード",
	}
}

// SchemaPresets lists the named schemas accepted by configuration.
var SchemaPresets = map[string]func() Schema{
	"default": DefaultSchema,
	"jpx":     JPXSchema,
}

// LookupSchema resolves a preset name. The empty name is the default schema.
func LookupSchema(preset string) (Schema, error) {
	if preset == "" {
		return DefaultSchema(), nil
	}
	fn, ok := SchemaPresets[strings.ToLower(preset)]
	if !ok {
		return Schema{}, fmt.Errorf("unknown field preset: %s", preset)
	}
	return fn(), nil
}

// Validate checks that every significant field has a name.
func (s Schema) Validate() error {
	for label, key := range map[string]string{
		"identifier": s.Identifier,
		"name":       s.Name,
		"sector":     s.Sector,
		"size_class": s.SizeClass,
	} {
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("field name for %s is empty", label)
		}
	}
	return nil
}

// IdentifierOf returns the record's identifier with surrounding whitespace removed.
func (s Schema) IdentifierOf(r Record) string {
	return strings.TrimSpace(r.Text(s.Identifier))
}

// NameOf returns the record's display name.
func (s Schema) NameOf(r Record) string {
	return r.Text(s.Name)
}

// SectorOf returns the record's sector classification.
func (s Schema) SectorOf(r Record) string {
	return r.Text(s.Sector)
}

// SizeClassOf returns the record's size classification, if it holds an integer.
func (s Schema) SizeClassOf(r Record) (int64, bool) {
	return r.Int64(s.SizeClass)
}
