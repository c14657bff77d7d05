// Package gff provides GFF annotation file parsing functionality.
package gff

import "strings"

// DefaultAnnotation is reported for features without a product attribute.
const DefaultAnnotation = "unannotated"

// Strand is the orientation of a feature relative to its contig.
type Strand int8

// Strand values.
const (
	Unstranded Strand = 0
	Forward    Strand = 1
	Reverse    Strand = -1
)

// String returns the GFF strand symbol.
func (s Strand) String() string {
	switch s {
	case Forward:
		return "+"
	case Reverse:
		return "-"
	default:
		return "."
	}
}

// Attribute is a single key/value pair from the ninth GFF column.
type Attribute struct {
	Key   string
	Value string
}

// Feature represents an annotated genomic interval from a GFF file.
// Coordinates are 1-based and inclusive at both ends.
type Feature struct {
	Contig     string
	Source     string
	Type       string
	Start      int
	End        int
	Score      string
	Strand     Strand
	Phase      string
	Attributes []Attribute
}

// Attribute returns the value of the first attribute with the given key.
func (f *Feature) Attribute(key string) (string, bool) {
	for _, a := range f.Attributes {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// ID returns the feature's ID attribute, or an empty string.
func (f *Feature) ID() string {
	id, _ := f.Attribute("ID")
	return id
}

// Annotation returns the feature's product description.
func (f *Feature) Annotation() string {
	if product, ok := f.Attribute("product"); ok && strings.TrimSpace(product) != "" {
		return product
	}
	return DefaultAnnotation
}

// Len returns the number of bases covered by the feature.
func (f *Feature) Len() int {
	return f.End - f.Start + 1
}
