// Copyright (c) 2025 Stefano Scafiti
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/ostafen/sigscan/internal/config"
	"github.com/ostafen/sigscan/internal/logger"
	"github.com/ostafen/sigscan/internal/pattern"
	"github.com/ostafen/sigscan/internal/report"
	"github.com/ostafen/sigscan/internal/scan"
	"github.com/ostafen/sigscan/pkg/pbar"
	fmtutil "github.com/ostafen/sigscan/pkg/util/format"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func DefineScanFlags(cmd *cobra.Command) {
	cmd.Flags().Int("workers", scan.DefaultWorkers, "number of files classified concurrently")
	cmd.Flags().Int("queue-size", 0, "max number of files waiting for a worker (default 2*workers)")
	cmd.Flags().Duration("timeout", scan.DefaultTimeout, "max time to wait for all files to complete (0 waits forever)")
	cmd.Flags().String("mmap-threshold", "4MB", "memory-map files of at least this size (0 disables mapping)")
	cmd.Flags().StringP("output", "o", config.OutputText, "output format (text, yaml)")
	cmd.Flags().Bool("progress", false, "show a progress line on stderr")
}

func RunScan(cmd *cobra.Command, args []string) error {
	if list, _ := cmd.Flags().GetBool("list-patterns"); list {
		return RunPatterns(cmd, args)
	}

	out := cmd.OutOrStdout()

	if len(args) < 2 {
		fmt.Fprintln(out, "Wrong number of command line arguments")
		fmt.Fprintf(out, "Usage: %s <folderToScan> <patternFile>\n", AppName)
		return nil
	}
	folderName, patternFileName := args[0], args[1]

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log := logger.New(cmd.ErrOrStderr(), logger.ParseLevel(cfg.LogLevel))

	table, err := pattern.Load(patternFileName, logger.Component(log, "pattern"))
	if err != nil {
		log.Debug().Err(err).Msg("unable to load pattern file")
	}

	if len(table) == 0 {
		fmt.Fprintf(out, "Pattern file %s not found\n", patternFileName)
		return nil
	}

	paths, err := scan.ListDir(folderName)
	if errors.Is(err, scan.ErrNotDirectory) {
		fmt.Fprintf(out, "%s is not a directory\n", folderName)
		return nil
	}
	if err != nil {
		fmt.Fprintf(out, "Unable to list %s: %v\n", folderName, err)
		return nil
	}

	printer, err := report.NewPrinter(out, report.Format(cfg.Output))
	if err != nil {
		return err
	}
	defer printer.Close()

	var progress *pbar.ProgressBarState
	if cfg.Progress && logger.IsTerminal(cmd.ErrOrStderr()) {
		progress = pbar.NewProgressBarState(cmd.ErrOrStderr(), len(paths))
	}

	scanLog := logger.Component(log, "scan")
	opts := cfg.ScanOptions()
	opts.Logger = &scanLog

	sc := scan.New(table, opts)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	log.Info().
		Str("source", absPath(folderName)).
		Str("patterns", absPath(patternFileName)).
		Int("files", len(paths)).
		Int("signatures", len(table)).
		Int("workers", opts.Workers).
		Msg("starting scan")

	stats, err := sc.ScanFiles(ctx, paths, func(r scan.Result) {
		if err := printer.Print(r); err != nil {
			log.Error().Err(err).Str("file", r.Name).Msg("unable to write result")
		}

		if progress != nil {
			progress.ProcessedFiles++
			switch r.Outcome() {
			case scan.Classified:
				progress.Classified++
			case scan.Unknown:
				progress.Unknown++
			case scan.NotFound:
				progress.Missing++
			}
			progress.Render(false)
		}
	})

	if progress != nil {
		progress.Finish()
	}

	switch {
	case errors.Is(err, scan.ErrTimedOut):
		fmt.Fprintln(out, "Process timed out before termination")
	case errors.Is(err, scan.ErrInterrupted):
		fmt.Fprintln(out, "Interrupted while awaiting termination")
	}

	log.Info().
		Int("files", stats.Total).
		Int("completed", stats.Completed).
		Int("pending", stats.Pending()).
		Int("classified", stats.Classified).
		Int("unknown", stats.Unknown).
		Int("not_found", stats.NotFound).
		Str("data", fmtutil.FormatBytes(stats.Bytes)).
		Str("duration", scan.FormatDurationHMS(stats.Elapsed)).
		Msg("scan completed")

	return nil
}

// loadConfig resolves the configuration, letting explicitly set flags
// override the config file and the environment.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")

	overrides := make(map[string]interface{})
	cmd.Flags().Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "config", "list-patterns", "version":
			return
		}
		overrides[strings.ReplaceAll(f.Name, "-", "_")] = f.Value.String()
	})

	return config.Load(configPath, overrides)
}

func absPath(path string) string {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return absPath
}
