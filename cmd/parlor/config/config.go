// Package configcmder provides the config command for managing persistent
// parlor configuration stored in the .parlor/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent parlor configuration.

Configuration is stored as config.toml in the .parlor/ directory and provides
default values for command flags. CLI flags always take precedence over
config file values. Secrets (API key, JWT secret, provider keys) are never
stored in the file; they come from PARLOR_-prefixed environment variables.

Keys use dotted notation matching the TOML section structure:
  storage.driver, storage.path, storage.sqlite_path,
  api.listen, api.max_prompt_chars, auth.token_ttl_minutes,
  llm.provider, llm.upstream, llm.model,
  memory.window_messages, memory.summarize_threshold, memory.summary_max_words,
  memory.structured_enabled, memory.structured_max_items,
  events.provider, events.brokers, events.topic,
  client.api_target

Use subcommands to get, set, or list configuration values:
  parlor config set <key> <value>   Set a configuration value
  parlor config get <key>           Get a configuration value
  parlor config list                List all configuration values

Examples:
  parlor config set llm.provider openai
  parlor config set memory.window_messages 8
  parlor config get llm.model
  parlor config list`

const configShortDesc string = "Manage persistent parlor configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}
