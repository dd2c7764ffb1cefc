package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentvault/runtime/internal/loop"
)

var chatCmd = &cobra.Command{
	Use:   "chat <agent> [message]",
	Short: "Start an interactive session with an agent",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	agentID := args[0]
	firstMessage := strings.Join(args[1:], " ")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	runner, err := buildRunner(ctx, cfg)
	if err != nil {
		return err
	}
	unsubscribe := printEvents(runner.Bus, func(format string, a ...any) { fmt.Fprintf(os.Stderr, format, a...) })
	defer unsubscribe()

	sessionID := ""
	scanner := bufio.NewScanner(os.Stdin)

	turn := func(message string) error {
		out := runner.Run(ctx, loop.Input{
			Message:    message,
			VaultPath:  cfg.VaultPath,
			AgentID:    agentID,
			SessionID:  sessionID,
			NewSession: sessionID == "",
		})
		sessionID = out.SessionID
		if !out.Success {
			fmt.Fprintf(os.Stderr, "error: %s\n", strings.Join(out.Errors, "; "))
			return nil
		}
		fmt.Println(out.Response)
		return nil
	}

	if firstMessage != "" {
		if err := turn(firstMessage); err != nil {
			return err
		}
	}

	fmt.Fprintln(os.Stderr, "type a message and press enter; Ctrl-D to exit")
	for {
		fmt.Fprint(os.Stderr, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := turn(line); err != nil {
			return err
		}
	}
	return nil
}
