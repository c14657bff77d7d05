package gff

// FeatureParser is the interface for parsers that read features.
type FeatureParser interface {
	// Next reads the next feature.
	// Returns nil, nil when there are no more features.
	Next() (*Feature, error)

	// Close closes the parser and releases resources.
	Close() error

	// LineNumber returns the current line number being processed.
	LineNumber() int
}
