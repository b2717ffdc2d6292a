package cli

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eunmann/lakemeta/internal/logctx"
	"github.com/eunmann/lakemeta/pkg/colstats"
	"github.com/eunmann/lakemeta/pkg/footer"
	"github.com/eunmann/lakemeta/pkg/keyindex"
	"github.com/eunmann/lakemeta/pkg/recordkey"
)

type rangeLine struct {
	Path      string  `json:"path"`
	Column    string  `json:"column"`
	Min       *string `json:"min"`
	Max       *string `json:"max"`
	NullCount int64   `json:"null_count"`
}

func newRangeLine(path string, r colstats.ColumnRange) rangeLine {
	line := rangeLine{Path: path, Column: r.ColumnName, NullCount: r.NullCount}
	if r.HasMin() {
		line.Min = &r.MinString
	}
	if r.HasMax() {
		line.Max = &r.MaxString
	}
	return line
}

func (a *app) rangesCommand() *cobra.Command {
	var columns []string
	cmd := &cobra.Command{
		Use:   "ranges --columns a,b FILE...",
		Short: "Print the min/max/null-count range of columns per file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(columns) == 0 {
				return errors.New("--columns is required")
			}
			ctx := cmd.Context()
			s, err := a.scanner(ctx, args)
			if err != nil {
				return err
			}

			files, err := s.ColumnRanges(ctx, args, columns)
			if err != nil && !skipped(err) {
				return err
			}
			for _, f := range files {
				for _, r := range f.Ranges {
					if err := a.emit(newRangeLine(f.Path, r)); err != nil {
						return err
					}
				}
			}
			return finish(ctx, err)
		},
	}
	cmd.Flags().StringSliceVar(&columns, "columns", nil, "dot-separated column paths to aggregate")
	return cmd
}

type keysLine struct {
	Path string   `json:"path"`
	Keys []string `json:"keys"`
}

func (a *app) keysCommand() *cobra.Command {
	var (
		candidates []string
		indexPath  string
	)
	cmd := &cobra.Command{
		Use:   "keys [--candidates k1,k2 | --candidates-index IDX] FILE...",
		Short: "Print the distinct record keys per file, optionally filtered by candidates",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(candidates) > 0 && indexPath != "" {
				return errors.New("--candidates and --candidates-index are mutually exclusive")
			}
			ctx := cmd.Context()

			var filter recordkey.KeyFilter
			switch {
			case indexPath != "":
				idx, err := keyindex.Open(indexPath)
				if err != nil {
					return err
				}
				defer idx.Close()
				filter = idx
			case len(candidates) > 0:
				filter = recordkey.NewCandidateSet(candidates...)
			}

			s, err := a.scanner(ctx, args)
			if err != nil {
				return err
			}
			files, err := s.FilterKeys(ctx, args, filter)
			if err != nil && !skipped(err) {
				return err
			}
			for _, f := range files {
				keys := f.Keys.ToSlice()
				slices.Sort(keys)
				if err := a.emit(keysLine{Path: f.Path, Keys: keys}); err != nil {
					return err
				}
			}
			return finish(ctx, err)
		},
	}
	cmd.Flags().StringSliceVar(&candidates, "candidates", nil, "only report these record keys")
	cmd.Flags().StringVar(&indexPath, "candidates-index", "", "only report record keys contained in this key index")
	return cmd
}

type keyPairLine struct {
	Path string `json:"path"`
	recordkey.Key
}

func (a *app) keyPairsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key-pairs FILE...",
		Short: "Print the record key and partition path of every record",
		Long: `Prints one line per record, in file order. Identities come from the _hoodie_record_key and
_hoodie_partition_path fields unless a key generator is configured (--keygen-type or the keygen
section of the config file).`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			strategy, err := recordkey.NewStrategy(a.cfg.Keygen)
			if err != nil {
				return err
			}
			s, err := a.scanner(ctx, args)
			if err != nil {
				return err
			}

			files, err := s.RecordKeys(ctx, args, strategy)
			if err != nil && !skipped(err) {
				return err
			}
			for _, f := range files {
				for _, k := range f.Keys {
					if err := a.emit(keyPairLine{Path: f.Path, Key: k}); err != nil {
						return err
					}
				}
			}
			return finish(ctx, err)
		},
	}
	f := cmd.Flags()
	f.String("keygen-type", "", "key generator: metadata, simple, complex or nonpartitioned")
	f.StringSlice("record-key-fields", nil, "record key fields for the key generator")
	f.StringSlice("partition-path-fields", nil, "partition path fields for the key generator")
	f.Bool("hive-style", false, "render partition paths as field=value")
	f.Bool("url-encode", false, "URL-escape partition path values")
	return cmd
}

type footerLine struct {
	Path   string            `json:"path"`
	Values map[string]string `json:"values"`
}

func (a *app) footerCommand() *cobra.Command {
	var (
		names    []string
		required bool
	)
	cmd := &cobra.Command{
		Use:   "footer [--required] [--names a,b] FILE",
		Short: "Print key/value entries of a file footer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.withLocal(cmd, args[0], func(local string) error {
				md, err := footer.ReadMetadata(ctx, local)
				if err != nil {
					return err
				}
				vals := md.KeyValue
				if len(names) > 0 {
					if vals, err = md.FooterValues(required, names...); err != nil {
						return err
					}
				}
				return a.emit(footerLine{Path: args[0], Values: vals})
			})
		},
	}
	cmd.Flags().StringSliceVar(&names, "names", nil, "footer keys to print (default all)")
	cmd.Flags().BoolVar(&required, "required", false, "fail if a named key is missing")
	return cmd
}

func (a *app) rowCountCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rowcount FILE...",
		Short: "Print the row count of each file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.scanner(ctx, args)
			if err != nil {
				return err
			}
			counts, err := s.RowCounts(ctx, args)
			if err != nil && !skipped(err) {
				return err
			}
			for _, c := range counts {
				if err := a.emit(c); err != nil {
					return err
				}
			}
			return finish(ctx, err)
		},
	}
}

type columnLine struct {
	Path   string `json:"path"`
	Column string `json:"column"`
	Type   string `json:"type"`
}

func (a *app) schemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema FILE",
		Short: "Print the leaf columns of a file and their types",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.withLocal(cmd, args[0], func(local string) error {
				md, err := footer.ReadMetadata(ctx, local)
				if err != nil {
					return err
				}
				for _, path := range md.Schema.Columns() {
					line := columnLine{Path: args[0], Column: strings.Join(path, ".")}
					if leaf, ok := md.Schema.Lookup(path...); ok {
						line.Type = leaf.Node.Type().String()
					}
					if err := a.emit(line); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func (a *app) indexKeysCommand() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "index-keys --out IDX FILE...",
		Short: "Build a key index from the record keys of files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				return errors.New("--out is required")
			}
			ctx := cmd.Context()
			s, err := a.scanner(ctx, args)
			if err != nil {
				return err
			}

			files, err := s.FilterKeys(ctx, args, nil)
			if err != nil && !skipped(err) {
				return err
			}
			b := keyindex.NewBuilder()
			for _, f := range files {
				for key := range f.Keys.Iter() {
					b.Add(key)
				}
			}
			if err := b.Build(out); err != nil {
				return fmt.Errorf("build key index: %w", err)
			}

			logger := logctx.FromContext(ctx)
			logger.Info().
				Str("out", out).
				Int("files", len(files)).
				Int("keys", b.Len()).
				Msg("key index written")
			return finish(ctx, err)
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "index file to write")
	return cmd
}

// withLocal runs fn with a local copy of path.
func (a *app) withLocal(cmd *cobra.Command, path string, fn func(local string) error) error {
	r, err := a.resolver(cmd.Context(), []string{path})
	if err != nil {
		return err
	}
	local, cleanup, err := r.Local(cmd.Context(), path)
	if err != nil {
		return err
	}
	defer cleanup()
	return fn(local)
}
