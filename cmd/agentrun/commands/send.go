package commands

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/agentvault/runtime/internal/mailbox"
	"github.com/agentvault/runtime/internal/protocol"
	"github.com/agentvault/runtime/internal/rterr"
)

var (
	sendSubject string
	sendPayload string
)

var sendCmd = &cobra.Command{
	Use:   "send <from> <to>",
	Short: "Deliver a notify message from one agent's mailbox to another's",
	Args:  cobra.ExactArgs(2),
	RunE:  runSend,
}

func init() {
	sendCmd.Flags().StringVar(&sendSubject, "subject", "", "message subject (required)")
	sendCmd.Flags().StringVar(&sendPayload, "payload", "", "JSON payload")
}

func runSend(cmd *cobra.Command, args []string) error {
	from, to := args[0], args[1]
	if sendSubject == "" {
		return rterr.New(rterr.InvalidInput, "--subject is required")
	}

	var payload any
	if sendPayload != "" {
		if err := json.Unmarshal([]byte(sendPayload), &payload); err != nil {
			return rterr.Wrap(rterr.InvalidInput, fmt.Errorf("--payload must be valid JSON: %w", err))
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	senderDir := filepath.Join(cfg.VaultPath, "agents", from)
	recipientDir := filepath.Join(cfg.VaultPath, "agents", to)

	msg := protocol.NewNotify(mailbox.NewMessageID(), from, to, sendSubject, payload)
	msg.Subject = sendSubject

	res := mailbox.SendAgentMessage(msg, senderDir, recipientDir)
	if !res.Success {
		return rterr.New(rterr.InvalidInput, res.Error)
	}
	fmt.Println(msg.ID)
	return nil
}
