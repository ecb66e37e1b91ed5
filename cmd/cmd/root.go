package cmd

import (
	"github.com/ostafen/sigscan/internal/env"
	"github.com/spf13/cobra"
)

const AppName = env.AppName

func Execute() error {
	return NewRootCommand().Execute()
}

// NewRootCommand builds the command tree. The root command itself runs a
// scan; see DefineScanFlags.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     AppName + " <folderToScan> <patternFile>",
		Version: env.Version,
		Short:   AppName + " - classify files by their binary signatures",
		Long: `Classify every entry of a directory by searching its content for the
signatures listed in a pattern file. Each line of the pattern file has the form

  priority;"pattern";"description"

and the matching signature with the highest priority names the file type.`,
		// argument count is checked by RunScan, which reports it on stdout
		Args:              cobra.ArbitraryArgs,
		SilenceUsage:      true,
		RunE:              RunScan,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	}

	// No subcommands: any positional argument, "version" included, is a
	// folder name. Extra actions are flags on the root command.
	rootCmd.PersistentFlags().String("config", "", "path of a TOML configuration file")
	rootCmd.PersistentFlags().String("log-level", "WARN", "log level (DEBUG, INFO, WARN, ERROR)")
	DefineScanFlags(rootCmd)
	DefinePatternsFlags(rootCmd)
	DefineVersionFlags(rootCmd)

	return rootCmd
}
