package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentvault/runtime/internal/loop"
	"github.com/agentvault/runtime/internal/rterr"
)

var runSessionID string

var runCmd = &cobra.Command{
	Use:   "run <agent> <message...>",
	Short: "Run a single turn against an agent and print its response",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runOneShot,
}

func init() {
	runCmd.Flags().StringVar(&runSessionID, "session", "", "resume this session instead of starting a new one")
}

func runOneShot(cmd *cobra.Command, args []string) error {
	agentID := args[0]
	message := strings.Join(args[1:], " ")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	runner, err := buildRunner(ctx, cfg)
	if err != nil {
		return err
	}

	in := loop.Input{
		Message:    message,
		VaultPath:  cfg.VaultPath,
		AgentID:    agentID,
		SessionID:  runSessionID,
		NewSession: runSessionID == "",
	}
	out := runner.Run(ctx, in)
	fmt.Println(out.Response)
	if !out.Success {
		msg := strings.Join(out.Errors, "; ")
		if out.ErrorCode != "" {
			return rterr.New(rterr.Code(out.ErrorCode), msg)
		}
		return fmt.Errorf("turn failed: %s", msg)
	}
	return nil
}
