// Package sessionscmder provides the sessions command for inspecting and
// managing sessions on a running parlor backend.
package sessionscmder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/parlorhq/parlor/pkg/cliui"
	"github.com/parlorhq/parlor/pkg/config"
)

const sessionsLongDesc string = `Inspect and manage sessions on a running parlor backend.

Use subcommands to list, show, reset, or delete sessions:
  parlor sessions list              List all session ids
  parlor sessions show <id>         Show the full session record
  parlor sessions reset <id>        Reset a session to an empty record
  parlor sessions rm <id>           Delete a session

The API key is read from the PARLOR_CLIENT_API_KEY environment variable.

Examples:
  parlor sessions list
  parlor sessions show 1b9672b2c3a44bfb8e38d2ef849bd399
  parlor sessions rm 1b9672b2c3a44bfb8e38d2ef849bd399`

const sessionsShortDesc string = "Inspect and manage backend sessions"

func NewSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: sessionsShortDesc,
		Long:  sessionsLongDesc,
	}

	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newShowCmd())
	cmd.AddCommand(newResetCmd())
	cmd.AddCommand(newRmCmd())

	return cmd
}

// client is a small helper for the backend's session management endpoints.
type client struct {
	v *viper.Viper
}

func newClient(cmd *cobra.Command) (*client, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")

	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, fmt.Errorf("initializing config: %w", err)
	}

	config.BindRegisteredFlags(v, cmd, config.Flags, []string{config.FlagAPITarget})
	return &client{v: v}, nil
}

// do issues one request and decodes the JSON response into out (if non-nil).
func (c *client) do(method, path string, out any) error {
	url := c.v.GetString("client.api_target") + path
	req, err := http.NewRequestWithContext(context.Background(), method, url, bytes.NewReader(nil))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("X-API-Key", c.v.GetString("client.api_key"))
	if token := c.v.GetString("client.token"); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request to backend: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("backend returned status %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("backend returned status %d: %s", resp.StatusCode, string(body))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all session ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}

			var out struct {
				Sessions []string `json:"sessions"`
			}
			if err := c.do(http.MethodGet, "/sessions", &out); err != nil {
				return err
			}

			if len(out.Sessions) == 0 {
				fmt.Printf("\n  %s No sessions.\n\n", cliui.DimStyle.Render("●"))
				return nil
			}

			fmt.Printf("\n  %s\n\n", cliui.HeaderStyle.Render("Sessions"))
			for _, id := range out.Sessions {
				fmt.Printf("  %s\n", cliui.NameStyle.Render(id))
			}
			fmt.Println()
			return nil
		},
	}

	var target string
	config.AddStringFlag(cmd, config.Flags, config.FlagAPITarget, &target)
	return cmd
}

func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show the full session record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}

			var doc json.RawMessage
			if err := c.do(http.MethodGet, "/sessions/"+args[0], &doc); err != nil {
				return err
			}

			var pretty bytes.Buffer
			if err := json.Indent(&pretty, doc, "", "  "); err != nil {
				fmt.Println(string(doc))
				return nil
			}
			fmt.Println(pretty.String())
			return nil
		},
	}

	var target string
	config.AddStringFlag(cmd, config.Flags, config.FlagAPITarget, &target)
	return cmd
}

func newResetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset <id>",
		Short: "Reset a session to an empty record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}

			if err := c.do(http.MethodPost, "/sessions/"+args[0]+"/reset", nil); err != nil {
				return err
			}

			fmt.Printf("\n  %s Reset session %s\n\n", cliui.SuccessMark, cliui.NameStyle.Render(args[0]))
			return nil
		},
	}

	var target string
	config.AddStringFlag(cmd, config.Flags, config.FlagAPITarget, &target)
	return cmd
}

func newRmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}

			if err := c.do(http.MethodDelete, "/sessions/"+args[0], nil); err != nil {
				return err
			}

			fmt.Printf("\n  %s Deleted session %s\n\n", cliui.SuccessMark, cliui.NameStyle.Render(args[0]))
			return nil
		},
	}

	var target string
	config.AddStringFlag(cmd, config.Flags, config.FlagAPITarget, &target)
	return cmd
}
