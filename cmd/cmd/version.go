package cmd

import (
	"fmt"

	"github.com/ostafen/sigscan/internal/env"
	"github.com/spf13/cobra"
)

// DefineVersionFlags sets the output of the --version flag cobra adds to
// commands with a non empty Version.
func DefineVersionFlags(cmd *cobra.Command) {
	cmd.SetVersionTemplate(fmt.Sprintf(
		"%s - file type classifier\nVersion:    {{.Version}}\nCommit:     %s\nBuild Time: %s\n",
		AppName, env.CommitHash, env.BuildTime,
	))
}
