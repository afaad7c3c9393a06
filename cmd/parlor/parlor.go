// Package parlorcmder
package parlorcmder

import (
	"github.com/spf13/cobra"

	chatcmder "github.com/parlorhq/parlor/cmd/parlor/chat"
	configcmder "github.com/parlorhq/parlor/cmd/parlor/config"
	initcmder "github.com/parlorhq/parlor/cmd/parlor/init"
	servecmder "github.com/parlorhq/parlor/cmd/parlor/serve"
	sessionscmder "github.com/parlorhq/parlor/cmd/parlor/sessions"
	userscmder "github.com/parlorhq/parlor/cmd/parlor/users"
	versioncmder "github.com/parlorhq/parlor/cmd/version"
)

const parlorLongDesc string = `Parlor is a session-scoped conversational backend with memory.

Run the backend using:
  parlor serve         Run the API server

Talk to a running backend using:
  parlor chat          Interactive chat session
  parlor sessions      Inspect and manage sessions`

const parlorShortDesc string = "Parlor - Conversational Memory Backend"

func NewParlorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parlor",
		Short: parlorShortDesc,
		Long:  parlorLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .parlor/ directory location")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(sessionscmder.NewSessionsCmd())
	cmd.AddCommand(userscmder.NewUsersCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
