// Workspace agent answers questions about a Gmail mailbox and Google Calendar
// and acts on them through a Gemini model.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "workspace-agent",
	Short: "Conversational agent for Gmail and Google Calendar",
	Long: `workspace-agent turns natural language requests into Gmail and Google Calendar
calls. It serves a web chat (serve), an MCP server over stdio (mcp) or a
terminal chat (chat).`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = version

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Path to YAML config file")
	flags.String("env-file", "", "Path to env file with GEMINI_API_KEY and OAUTH_GOOGLE_CLIENT_ID/SECRET")
	flags.Bool("debug", false, "Enable debug logging")
	flags.String("log-file", "", "Path to log file, overrides log.file from the config")
	flags.String("http-addr", "", "HTTP listen addr, overrides server.address from the config")
}
