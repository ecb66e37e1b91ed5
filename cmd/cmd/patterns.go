package cmd

import (
	"encoding/hex"
	"fmt"
	"text/tabwriter"

	"github.com/ostafen/sigscan/internal/logger"
	"github.com/ostafen/sigscan/internal/pattern"
	"github.com/spf13/cobra"
)

// DefinePatternsFlags adds --list-patterns, which makes the root command load
// a pattern file the same way a scan does and print one row per valid record:
// its priority, the signature bytes in hex and the description.
func DefinePatternsFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("list-patterns", false, "list the signatures of <patternFile> instead of scanning")
}

func RunPatterns(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		fmt.Fprintln(cmd.OutOrStdout(), "Wrong number of command line arguments")
		fmt.Fprintf(cmd.OutOrStdout(), "Usage: %s --list-patterns <patternFile>\n", AppName)
		return nil
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := logger.New(cmd.ErrOrStderr(), logger.ParseLevel(cfg.LogLevel))

	table, err := pattern.Load(args[0], logger.Component(log, "pattern"))
	if err != nil {
		log.Debug().Err(err).Msg("unable to load pattern file")
	}

	if len(table) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "Pattern file %s not found\n", args[0])
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PRIORITY\tSIGNATURE\tDESCRIPTION")

	for _, r := range table {
		fmt.Fprintf(w, "%d\t%s\t%s\n",
			r.Priority(),
			hex.EncodeToString(r.Pattern()),
			r.Description(),
		)
	}
	return w.Flush()
}
