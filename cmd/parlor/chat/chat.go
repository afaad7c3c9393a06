// Package chatcmder provides the chat command for interactive conversations
// against a running parlor backend.
package chatcmder

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/parlorhq/parlor/pkg/cliui"
	"github.com/parlorhq/parlor/pkg/config"
	"github.com/parlorhq/parlor/pkg/dotdir"
	"github.com/parlorhq/parlor/pkg/logger"
)

var (
	userPrompt      = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true).Render("you> ")
	assistantLabel  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Render("assistant>")
	errorStylePoint = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

type chatCommander struct {
	apiTarget string
	sessionID string
	fresh     bool
	debug     bool

	v      *viper.Viper
	logger *zap.Logger
}

// chatRequest is the backend's POST /chat body.
type chatRequest struct {
	Prompt    string `json:"prompt"`
	SessionID string `json:"session_id,omitempty"`
}

// chatResponse is the backend's POST /chat reply.
type chatResponse struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

type errorResponse struct {
	Error string `json:"error"`
}

const chatLongDesc string = `Start an interactive chat session against a running parlor backend.

The backend keeps the conversation server-side: a rolling window of recent
turns, a cumulative summary, and structured memory. The chat command only
remembers which session it is attached to, so repeated invocations resume
the same conversation.

The API key is read from the PARLOR_CLIENT_API_KEY environment variable.
If the backend has login enabled, pass a bearer token via PARLOR_CLIENT_TOKEN.

Use --new to detach and start a fresh session, or --session to attach to a
specific session id.

Examples:
  parlor chat
  parlor chat --new
  parlor chat --session 1b9672b2c3a44bfb8e38d2ef849bd399
  parlor chat --api-target http://remote:8080`

const chatShortDesc string = "Interactive chat against a parlor backend"

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("initializing config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, config.Flags, []string{config.FlagAPITarget})
			cmder.v = v
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			configDir, _ := cmd.Flags().GetString("config-dir")
			return cmder.run(configDir)
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagAPITarget, &cmder.apiTarget)
	cmd.Flags().StringVarP(&cmder.sessionID, "session", "s", "", "Attach to a specific session id")
	cmd.Flags().BoolVar(&cmder.fresh, "new", false, "Start a fresh session")

	return cmd
}

func (c *chatCommander) run(configDir string) error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	ddm := dotdir.NewManager()

	if c.fresh {
		if err := ddm.ClearChatState(configDir); err != nil {
			return fmt.Errorf("clearing chat state: %w", err)
		}
	}

	// Resolve which session to attach to: explicit flag, then saved state,
	// then a fresh session created by the first turn.
	sessionID := c.sessionID
	if sessionID == "" && !c.fresh {
		state, err := ddm.LoadChatState(configDir)
		if err != nil {
			return fmt.Errorf("loading chat state: %w", err)
		}
		if state != nil {
			sessionID = state.SessionID
		}
	}

	fmt.Println()
	if sessionID != "" {
		fmt.Printf("  %s Resuming session %s\n",
			cliui.SuccessMark,
			cliui.NameStyle.Render(sessionID),
		)
	} else {
		fmt.Printf("  %s New conversation\n", cliui.DimStyle.Render("●"))
	}
	fmt.Printf("  %s %s\n\n",
		cliui.KeyStyle.Render("Backend:"),
		cliui.ValueStyle.Render(c.v.GetString("client.api_target")),
	)
	fmt.Printf("  %s\n\n", cliui.DimStyle.Render("Type your message and press Enter. /exit or Ctrl+D to quit."))

	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print(userPrompt)
		if !scanner.Scan() {
			// EOF or error
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "/exit" {
			break
		}

		resp, err := c.sendTurn(input, sessionID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "  %s %v\n", cliui.FailMark, errorStylePoint.Render(err.Error()))
			continue
		}

		// Persist the session id after the first successful turn so the
		// next invocation resumes the same conversation.
		if resp.SessionID != sessionID {
			sessionID = resp.SessionID
			if err := ddm.SaveChatState(&dotdir.ChatState{SessionID: sessionID}, configDir); err != nil {
				c.logger.Warn("failed to save chat state", zap.Error(err))
			}
		}

		rendered, err := cliui.RenderMarkdown(resp.Text)
		if err != nil {
			rendered = resp.Text
		}
		fmt.Printf("%s\n%s\n", assistantLabel, rendered)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	fmt.Println()
	return nil
}

// sendTurn posts one turn to the backend and returns its reply.
func (c *chatCommander) sendTurn(prompt, sessionID string) (*chatResponse, error) {
	body, err := json.Marshal(chatRequest{
		Prompt:    prompt,
		SessionID: sessionID,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := c.v.GetString("client.api_target") + "/chat"
	c.logger.Debug("sending chat request",
		zap.String("url", url),
		zap.String("session_id", sessionID),
	)

	httpReq, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", c.v.GetString("client.api_key"))
	if token := c.v.GetString("client.token"); token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{
		// Generation can be slow
		Timeout: 5 * time.Minute,
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request to backend: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr errorResponse
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("backend returned status %d: %s", resp.StatusCode, apiErr.Error)
		}
		return nil, fmt.Errorf("backend returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var out chatResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}

	return &out, nil
}
