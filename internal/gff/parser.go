package gff

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// Parser reads features from a GFF file.
type Parser struct {
	reader     *bufio.Reader
	file       *os.File
	gzipReader *gzip.Reader
	lineNumber int
	done       bool // set once the FASTA section or EOF is reached
}

// NewParser creates a new GFF parser for the given file.
// Supports both plain and gzipped (.gff.gz) files; "-" reads stdin.
func NewParser(path string) (*Parser, error) {
	if path == "-" {
		return NewParserFromReader(os.Stdin), nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gff file: %w", err)
	}

	p := &Parser{file: file}

	// Check for gzip magic bytes. Short files are plain text.
	buf := make([]byte, 2)
	n, err := io.ReadFull(file, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		file.Close()
		return nil, fmt.Errorf("read gff header: %w", err)
	}

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		file.Close()
		return nil, fmt.Errorf("seek gff file: %w", err)
	}

	if n == 2 && buf[0] == 0x1f && buf[1] == 0x8b {
		p.gzipReader, err = gzip.NewReader(file)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		p.reader = bufio.NewReader(p.gzipReader)
	} else {
		p.reader = bufio.NewReader(file)
	}

	return p, nil
}

// NewParserFromReader creates a parser from an io.Reader (e.g., stdin).
func NewParserFromReader(r io.Reader) *Parser {
	return &Parser{reader: bufio.NewReader(r)}
}

// Next reads the next feature from the GFF file.
// Returns nil, nil when there are no more features. Anything after a
// ##FASTA directive or a FASTA header line is ignored.
func (p *Parser) Next() (*Feature, error) {
	for !p.done {
		line, err := p.reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("read feature line: %w", err)
		}
		if err == io.EOF {
			p.done = true
			if line == "" {
				break
			}
		}
		p.lineNumber++

		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "##FASTA"), strings.HasPrefix(line, ">"):
			p.done = true
			return nil, nil
		case strings.HasPrefix(line, "#"):
			continue
		}

		return p.parseLine(line)
	}
	return nil, nil
}

// parseLine parses a single GFF data line into a Feature.
func (p *Parser) parseLine(line string) (*Feature, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < 9 {
		return nil, &ParseError{
			Line:    p.lineNumber,
			Message: fmt.Sprintf("expected 9 columns, found %d", len(fields)),
		}
	}

	start, err := strconv.Atoi(fields[3])
	if err != nil {
		return nil, &ParseError{
			Line:    p.lineNumber,
			Message: fmt.Sprintf("invalid start: %s", fields[3]),
		}
	}

	end, err := strconv.Atoi(fields[4])
	if err != nil {
		return nil, &ParseError{
			Line:    p.lineNumber,
			Message: fmt.Sprintf("invalid end: %s", fields[4]),
		}
	}

	if start < 1 || end < start {
		return nil, &ParseError{
			Line:    p.lineNumber,
			Message: fmt.Sprintf("invalid interval: %d-%d", start, end),
		}
	}

	strand, ok := parseStrand(fields[6])
	if !ok {
		return nil, &ParseError{
			Line:    p.lineNumber,
			Message: fmt.Sprintf("unrecognized strand: %q", fields[6]),
		}
	}

	return &Feature{
		Contig:     fields[0],
		Source:     fields[1],
		Type:       fields[2],
		Start:      start,
		End:        end,
		Score:      fields[5],
		Strand:     strand,
		Phase:      fields[7],
		Attributes: parseAttributes(fields[8]),
	}, nil
}

// parseStrand converts a GFF strand symbol.
func parseStrand(s string) (Strand, bool) {
	switch s {
	case "+":
		return Forward, true
	case "-":
		return Reverse, true
	case ".":
		return Unstranded, true
	}
	return Unstranded, false
}

// parseAttributes parses the GFF attribute column.
// GFF3 format: key=value;key=value. GTF-style `key "value"` pairs are
// accepted as well.
func parseAttributes(attrStr string) []Attribute {
	var attrs []Attribute

	for _, part := range strings.Split(attrStr, ";") {
		part = strings.TrimSpace(part)
		if part == "" || part == "." {
			continue
		}

		var key, value string
		if idx := strings.Index(part, "="); idx != -1 {
			key = part[:idx]
			value = unescape(part[idx+1:])
		} else if idx := strings.Index(part, " "); idx != -1 {
			key = part[:idx]
			value = strings.Trim(strings.TrimSpace(part[idx+1:]), "\"")
		} else {
			continue
		}

		attrs = append(attrs, Attribute{Key: strings.TrimSpace(key), Value: value})
	}

	return attrs
}

// unescape decodes GFF3 percent-encoding, returning s unchanged if it is
// not validly encoded.
func unescape(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	v, err := url.PathUnescape(s)
	if err != nil {
		return s
	}
	return v
}

// LineNumber returns the current line number being processed.
func (p *Parser) LineNumber() int {
	return p.lineNumber
}

// Close closes the parser and underlying file.
func (p *Parser) Close() error {
	if p.gzipReader != nil {
		p.gzipReader.Close()
	}
	if p.file != nil {
		return p.file.Close()
	}
	return nil
}

// ParseError represents an error during GFF parsing with line context.
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("gff parse error at line %d: %s", e.Line, e.Message)
}
