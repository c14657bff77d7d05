package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/biogo/hts/sam"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/inodb/dirseq/internal/alignment"
	"github.com/inodb/dirseq/internal/coverage"
	"github.com/inodb/dirseq/internal/gff"
	"github.com/inodb/dirseq/internal/output"
)

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var cfgFile string
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "dirseq --bam <file> --gff <file>",
		Short: "Strand-aware coverage and read counts for GFF features",
		Long: `Compute forward and reverse read coverage (or read counts) for every
feature in a GFF file, using reads from a sorted and indexed BAM file.
Results are written as a tab-separated table, one row per feature in GFF order.

Defaults for every option can be stored in ~/.dirseq.yaml (see "dirseq config")
or set through DIRSEQ_* environment variables.`,
		Example: `  dirseq --bam sample.bam --gff genes.gff > coverage.tsv
  dirseq --bam sample.bam --gff genes.gff -q --ignore-direction
  dirseq --bam sample.bam --gff genes.gff --measure-type count --forward-read-only`,
		Version:       fmt.Sprintf("%s (%s) built %s", version, commit, date),
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return fmt.Errorf("bind flags: %w", err)
			}
			return loadConfig(v, cfgFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDirseq(v, stdout, stderr)
		},
	}

	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: ~/.dirseq.yaml)")
	addRunFlags(cmd.Flags())

	cmd.AddCommand(newConfigCmd(&cfgFile))

	return cmd
}

func addRunFlags(fs *pflag.FlagSet) {
	fs.String("bam", "", "Sorted and indexed BAM file (required)")
	fs.String("gff", "", "GFF3 annotation file, optionally gzipped (required)")
	fs.BoolP("quiet", "q", false, "Only print the table, suppressing progress messages")
	fs.Bool("ignore-direction", false, "Report a single value combining forward and reverse reads")
	fs.String("measure-type", "coverage", "What to report per feature: coverage or count")
	fs.Bool("forward-read-only", false, "Count only the first read of each pair (requires --measure-type count)")
	fs.Bool("include-feature-id", true, "Append the feature's ID attribute as the last column")
	fs.StringSlice("accepted-feature-types", nil, "Only report features of these types (default: all types)")
	fs.String("sam-filter-flags", fmt.Sprintf("%#x", uint16(coverage.DefaultFilterFlags)), "Skip reads with any of these SAM flags set")
	fs.Int("threads", 1, "Number of features aggregated concurrently")
	fs.StringP("output", "o", "", "Output file (default: stdout)")
}

// runOptions holds the validated settings for one run.
type runOptions struct {
	bamPath    string
	gffPath    string
	outputPath string
	quiet      bool
	threads    int
	aggregate  coverage.Options
	layout     output.Layout
}

func readRunOptions(v *viper.Viper) (*runOptions, error) {
	o := &runOptions{
		bamPath:    v.GetString("bam"),
		gffPath:    v.GetString("gff"),
		outputPath: v.GetString("output"),
		quiet:      v.GetBool("quiet"),
		threads:    v.GetInt("threads"),
	}

	if o.bamPath == "" {
		return nil, usageErrorf("--bam is required")
	}
	if o.gffPath == "" {
		return nil, usageErrorf("--gff is required")
	}
	if o.threads < 1 {
		return nil, usageErrorf("--threads must be at least 1, got %d", o.threads)
	}

	measure, err := coverage.ParseMeasure(v.GetString("measure-type"))
	if err != nil {
		return nil, &usageError{err: err}
	}

	flags, err := parseSAMFlags(v.GetString("sam-filter-flags"))
	if err != nil {
		return nil, &usageError{err: err}
	}

	o.aggregate = coverage.Options{
		Measure:         measure,
		IgnoreDirection: v.GetBool("ignore-direction"),
		ForwardReadOnly: v.GetBool("forward-read-only"),
		FilterFlags:     flags,
		AcceptedTypes:   splitList(v.GetStringSlice("accepted-feature-types")),
	}
	if err := o.aggregate.Validate(); err != nil {
		return nil, &usageError{err: err}
	}

	o.layout = output.Layout{
		Measure:         measure,
		IgnoreDirection: o.aggregate.IgnoreDirection,
		IncludeID:       v.GetBool("include-feature-id"),
	}

	return o, nil
}

// splitList flattens comma-separated entries. Values from the environment
// or a YAML scalar reach viper as one string and are only split on spaces.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// parseSAMFlags parses a flag mask given in decimal, hex (0x) or octal (0).
func parseSAMFlags(s string) (sam.Flags, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid --sam-filter-flags %q: %w", s, err)
	}
	return sam.Flags(n), nil
}

func newLogger(w io.Writer, quiet bool) *zap.Logger {
	level := zapcore.InfoLevel
	if quiet {
		level = zapcore.ErrorLevel
	}
	encoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	return zap.New(zapcore.NewCore(encoder, zapcore.AddSync(w), level))
}

func runDirseq(v *viper.Viper, stdout, stderr io.Writer) error {
	opts, err := readRunOptions(v)
	if err != nil {
		return err
	}

	logger := newLogger(stderr, opts.quiet)
	defer logger.Sync()

	reader, err := alignment.Open(opts.bamPath)
	if err != nil {
		return err
	}
	defer reader.Close()
	logger.Info("opened BAM", zap.String("path", opts.bamPath), zap.Int("contigs", len(reader.Contigs())))

	parser, err := gff.NewParser(opts.gffPath)
	if err != nil {
		return err
	}
	defer parser.Close()
	logger.Info("reading features", zap.String("path", opts.gffPath))

	agg, err := coverage.NewAggregator(coverage.FromBAM(reader), opts.aggregate)
	if err != nil {
		return &usageError{err: err}
	}
	agg.SetLogger(logger)
	agg.SetWorkers(opts.threads)

	out := stdout
	if opts.outputPath != "" {
		f, err := os.Create(opts.outputPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	writer := output.NewTabWriter(out, opts.layout)
	if err := writer.WriteHeader(); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	return agg.AggregateAll(parser, writer)
}
