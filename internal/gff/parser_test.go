package gff

import (
	"bytes"
	"compress/gzip"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, p FeatureParser) []*Feature {
	t.Helper()
	var feats []*Feature
	for {
		f, err := p.Next()
		require.NoError(t, err)
		if f == nil {
			return feats
		}
		feats = append(feats, f)
	}
}

func TestParser_Prodigal(t *testing.T) {
	p, err := NewParser(filepath.Join("testdata", "eg.gff"))
	require.NoError(t, err)
	defer p.Close()

	feats := readAll(t, p)
	require.Len(t, feats, 1)

	f := feats[0]
	assert.Equal(t, "contig_100", f.Contig)
	assert.Equal(t, "CDS", f.Type)
	assert.Equal(t, 2, f.Start)
	assert.Equal(t, 127, f.End)
	assert.Equal(t, 126, f.Len())
	assert.Equal(t, Forward, f.Strand)
	assert.Equal(t, "40_1", f.ID())
	assert.Equal(t, DefaultAnnotation, f.Annotation())
}

func TestParser_Prokka(t *testing.T) {
	p, err := NewParser(filepath.Join("testdata", "realer.gff"))
	require.NoError(t, err)
	defer p.Close()

	feats := readAll(t, p)
	require.Len(t, feats, 1)
	assert.Equal(t, "PROKKA_00001", feats[0].ID())
	assert.Equal(t, "putative methyltransferase YcgJ", feats[0].Annotation())
}

func TestParser_FASTASectionIgnored(t *testing.T) {
	plain, err := NewParser(filepath.Join("testdata", "eg.gff"))
	require.NoError(t, err)
	defer plain.Close()

	withFasta, err := NewParser(filepath.Join("testdata", "eg_with_fasta.gff"))
	require.NoError(t, err)
	defer withFasta.Close()

	assert.Equal(t, readAll(t, plain), readAll(t, withFasta))
}

func TestParser_FASTAHeaderWithoutDirective(t *testing.T) {
	content := "c1\tsrc\tCDS\t1\t10\t.\t-\t0\tID=a\n>c1\nACGT\nnot a gff line\n"
	feats := readAll(t, NewParserFromReader(strings.NewReader(content)))
	require.Len(t, feats, 1)
	assert.Equal(t, Reverse, feats[0].Strand)
}

func TestParser_Empty(t *testing.T) {
	feats := readAll(t, NewParserFromReader(strings.NewReader("")))
	assert.Empty(t, feats)

	feats = readAll(t, NewParserFromReader(strings.NewReader("##gff-version 3\n\n")))
	assert.Empty(t, feats)
}

func TestParser_NoTrailingNewline(t *testing.T) {
	content := "c1\tsrc\tgene\t5\t9\t.\t+\t.\tID=g1"
	feats := readAll(t, NewParserFromReader(strings.NewReader(content)))
	require.Len(t, feats, 1)
	assert.Equal(t, "g1", feats[0].ID())
}

func TestParser_PreservesOrder(t *testing.T) {
	content := strings.Join([]string{
		"c2\tsrc\tCDS\t50\t60\t.\t+\t0\tID=second_contig",
		"c1\tsrc\tCDS\t100\t200\t.\t-\t0\tID=late",
		"c1\tsrc\tCDS\t1\t10\t.\t+\t0\tID=early",
	}, "\n") + "\n"

	feats := readAll(t, NewParserFromReader(strings.NewReader(content)))
	require.Len(t, feats, 3)
	assert.Equal(t, "second_contig", feats[0].ID())
	assert.Equal(t, "late", feats[1].ID())
	assert.Equal(t, "early", feats[2].ID())
}

func TestParser_Errors(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		message string
	}{
		{"too few columns", "c1\tsrc\tCDS\t1\t10", "expected 9 columns"},
		{"bad start", "c1\tsrc\tCDS\tx\t10\t.\t+\t0\tID=a", "invalid start"},
		{"bad end", "c1\tsrc\tCDS\t1\ty\t.\t+\t0\tID=a", "invalid end"},
		{"inverted", "c1\tsrc\tCDS\t10\t1\t.\t+\t0\tID=a", "invalid interval"},
		{"zero start", "c1\tsrc\tCDS\t0\t1\t.\t+\t0\tID=a", "invalid interval"},
		{"bad strand", "c1\tsrc\tCDS\t1\t10\t.\t*\t0\tID=a", "unrecognized strand"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewParserFromReader(strings.NewReader("##gff-version 3\n" + tt.line + "\n"))
			_, err := p.Next()
			require.Error(t, err)

			var pe *ParseError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, 2, pe.Line)
			assert.Contains(t, pe.Message, tt.message)
		})
	}
}

func TestParser_Gzip(t *testing.T) {
	raw, err := os.ReadFile(filepath.Join("testdata", "realer.gff"))
	require.NoError(t, err)

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err = gz.Write(raw)
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	path := filepath.Join(t.TempDir(), "realer.gff.gz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	p, err := NewParser(path)
	require.NoError(t, err)
	defer p.Close()

	feats := readAll(t, p)
	require.Len(t, feats, 1)
	assert.Equal(t, "PROKKA_00001", feats[0].ID())
}

func TestNewParser_MissingFile(t *testing.T) {
	_, err := NewParser(filepath.Join(t.TempDir(), "missing.gff"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestParseAttributes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []Attribute
	}{
		{
			name:  "gff3",
			input: "ID=cds1;product=DNA polymerase III;",
			expected: []Attribute{
				{Key: "ID", Value: "cds1"},
				{Key: "product", Value: "DNA polymerase III"},
			},
		},
		{
			name:  "percent encoded",
			input: "ID=cds1;product=alpha%3Bbeta%2C gamma",
			expected: []Attribute{
				{Key: "ID", Value: "cds1"},
				{Key: "product", Value: "alpha;beta, gamma"},
			},
		},
		{
			name:  "gtf style",
			input: `gene_id "g1"; transcript_id "t1";`,
			expected: []Attribute{
				{Key: "gene_id", Value: "g1"},
				{Key: "transcript_id", Value: "t1"},
			},
		},
		{
			name:     "empty",
			input:    ".",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseAttributes(tt.input))
		})
	}
}

func TestStrandString(t *testing.T) {
	assert.Equal(t, "+", Forward.String())
	assert.Equal(t, "-", Reverse.String())
	assert.Equal(t, ".", Unstranded.String())
}
