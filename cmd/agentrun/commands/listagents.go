package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/agentvault/runtime/internal/agentdef"
)

var listAgentsCmd = &cobra.Command{
	Use:   "list-agents",
	Short: "List every agent defined in the vault",
	Args:  cobra.NoArgs,
	RunE:  runListAgents,
}

func runListAgents(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	agentsDir := filepath.Join(cfg.VaultPath, "agents")
	entries, err := os.ReadDir(agentsDir)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("no agents found")
			return nil
		}
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTYPE\tSTATUS")
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		agentPath := filepath.Join(agentsDir, entry.Name())
		def, err := agentdef.Load(agentPath)
		if err != nil {
			continue // not a valid agent directory, skip
		}
		id := def.Frontmatter.ID
		if id == "" {
			id = entry.Name()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", id, def.Frontmatter.Name, def.Frontmatter.Type, def.Frontmatter.Status)
	}
	return w.Flush()
}
