package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentvault/runtime/internal/config"
)

// Exit codes per spec.md §6.
const (
	ExitSuccess       = 0
	ExitUserError     = 2
	ExitLockConflict  = 3
	ExitInternalError = 4
)

var vaultFlag string

var rootCmd = &cobra.Command{
	Use:           "agentrun",
	Short:         "Run and coordinate vault-resident agents",
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&vaultFlag, "vault", "", "vault path (defaults to $VAULT_PATH)")
	rootCmd.AddCommand(chatCmd, runCmd, sendCmd, listAgentsCmd)
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitCodeFor(err)
	}
	return ExitSuccess
}

func loadConfig() (*config.Config, error) {
	return config.Load(vaultFlag)
}
