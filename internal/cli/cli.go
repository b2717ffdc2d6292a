// Package cli implements the lakemeta command-line interface.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/eunmann/lakemeta/internal/logctx"
	"github.com/eunmann/lakemeta/pkg/filescan"
	"github.com/eunmann/lakemeta/pkg/logging"
	"github.com/eunmann/lakemeta/pkg/s3fetch"
)

const usage = "usage: lakemeta <command> [flags] FILE...\ncommands: ranges, keys, key-pairs, footer, rowcount, schema, index-keys"

// ErrFilesSkipped is returned after a --keep-going scan printed the results
// of the files it could read but skipped others.
var ErrFilesSkipped = errors.New("files skipped")

// Run executes the CLI with the given arguments, writing results to stdout.
func Run(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, args, os.Stdout)
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New(usage)
	}
	root := newRootCommand(out)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// app is the state shared by the commands of one invocation.
type app struct {
	out        io.Writer
	configPath string
	debug      bool
	human      bool
	cfg        *Config
}

func newRootCommand(out io.Writer) *cobra.Command {
	a := &app{out: out}

	root := &cobra.Command{
		Use:           "lakemeta",
		Short:         "Inspect column statistics and record keys of Parquet data files",
		Long:          `Reads Parquet footers and record key columns of data lake files, locally or from S3, and prints the results as JSON lines.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logging.Init(a.debug, a.human)
			logctx.SetDefaultLogger(*logging.L())

			cfg, err := loadConfig(cmd, a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			cmd.SetContext(logctx.WithLogger(cmd.Context(), logging.WithPhase(cmd.Name())))
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "YAML, TOML or JSON config file")
	pf.BoolVar(&a.debug, "debug", false, "enable debug logging")
	pf.BoolVar(&a.human, "human", false, "human readable log output instead of JSON")
	pf.Int("concurrency", filescan.DefaultConcurrency, "files processed at once")
	pf.Bool("keep-going", false, "skip files that fail instead of aborting")
	pf.String("s3-region", "", "AWS region for s3:// files")
	pf.String("s3-endpoint", "", "custom S3 endpoint, e.g. for MinIO")
	pf.Bool("s3-path-style", false, "use path-style S3 addressing")

	root.AddCommand(
		a.rangesCommand(),
		a.keysCommand(),
		a.keyPairsCommand(),
		a.footerCommand(),
		a.rowCountCommand(),
		a.schemaCommand(),
		a.indexKeysCommand(),
	)
	return root
}

// scanner builds a Scanner for paths, setting up S3 access only when one
// of them needs it.
func (a *app) scanner(ctx context.Context, paths []string) (*filescan.Scanner, error) {
	resolver, err := a.resolver(ctx, paths)
	if err != nil {
		return nil, err
	}
	return &filescan.Scanner{
		Concurrency: a.cfg.Concurrency,
		KeepGoing:   a.cfg.KeepGoing,
		Resolver:    resolver,
	}, nil
}

func (a *app) resolver(ctx context.Context, paths []string) (*s3fetch.Resolver, error) {
	needS3 := false
	for _, p := range paths {
		if s3fetch.IsS3URI(p) {
			needS3 = true
			break
		}
	}
	if !needS3 {
		return nil, nil
	}

	client, err := s3fetch.NewClient(ctx, s3fetch.ClientOptions{
		Region:       a.cfg.S3.Region,
		Endpoint:     a.cfg.S3.Endpoint,
		UsePathStyle: a.cfg.S3.PathStyle,
	})
	if err != nil {
		return nil, err
	}
	return s3fetch.NewResolver(client.NewDownloader(s3fetch.DefaultDownloaderConfig())), nil
}

// emit writes v as one JSON line.
func (a *app) emit(v any) error {
	return json.NewEncoder(a.out).Encode(v)
}

// skipped reports whether err only lists files a keep-going scan skipped.
// The results of the other files are still valid then.
func skipped(err error) bool {
	var merr *multierror.Error
	return errors.As(err, &merr)
}

// finish logs the files a keep-going scan skipped and turns them into
// ErrFilesSkipped so the process still exits non-zero.
func finish(ctx context.Context, err error) error {
	var merr *multierror.Error
	if !errors.As(err, &merr) {
		return err
	}
	logger := logctx.FromContext(ctx)
	logger.Warn().Err(err).Int("skipped", merr.Len()).Msg("some files were skipped")
	return fmt.Errorf("%w: %d file(s)", ErrFilesSkipped, merr.Len())
}
