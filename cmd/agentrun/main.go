// Command agentrun is the CLI adapter for the vault-resident agent
// runtime: chat, run, send, and list-agents.
package main

import (
	"os"

	"github.com/agentvault/runtime/cmd/agentrun/commands"
)

func main() {
	os.Exit(commands.Execute())
}
