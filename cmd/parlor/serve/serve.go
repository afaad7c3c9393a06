// Package servecmder provides the serve command for running the parlor backend.
package servecmder

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/parlorhq/parlor/api"
	"github.com/parlorhq/parlor/pkg/auth"
	"github.com/parlorhq/parlor/pkg/config"
	"github.com/parlorhq/parlor/pkg/dotdir"
	"github.com/parlorhq/parlor/pkg/eventstream"
	"github.com/parlorhq/parlor/pkg/eventstream/kafka"
	"github.com/parlorhq/parlor/pkg/eventstream/nop"
	"github.com/parlorhq/parlor/pkg/flow"
	"github.com/parlorhq/parlor/pkg/llm"
	"github.com/parlorhq/parlor/pkg/llm/provider/ollama"
	"github.com/parlorhq/parlor/pkg/llm/provider/openai"
	"github.com/parlorhq/parlor/pkg/logger"
	"github.com/parlorhq/parlor/pkg/store"
	"github.com/parlorhq/parlor/pkg/store/file"
	"github.com/parlorhq/parlor/pkg/store/inmemory"
	"github.com/parlorhq/parlor/pkg/store/sqlite"
)

type ServeCommander struct {
	listen        string
	providerType  string
	upstream      string
	model         string
	storageDriver string
	storagePath   string
	sqlitePath    string
	debug         bool

	v      *viper.Viper
	logger *zap.Logger
}

const serveLongDesc string = `Run the parlor backend.

Serves the chat, session, and auth endpoints on a single listener. Requires
an API key via the PARLOR_API_KEY environment variable; login endpoints are
enabled when PARLOR_AUTH_JWT_SECRET is also set.

Examples:
  PARLOR_API_KEY=secret parlor serve
  PARLOR_API_KEY=secret parlor serve --listen :9090 --provider openai`

const serveShortDesc string = "Run the parlor backend"

// serveFlags lists the registry keys this command binds into viper.
var serveFlags = []string{
	config.FlagAPIListen,
	config.FlagProvider,
	config.FlagUpstream,
	config.FlagModel,
	config.FlagStorageDriver,
	config.FlagStoragePath,
	config.FlagSQLite,
}

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("initializing config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, config.Flags, serveFlags)
			cmder.v = v
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %v", err)
			}

			configDir, _ := cmd.Flags().GetString("config-dir")
			return cmder.run(configDir)
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagAPIListen, &cmder.listen)
	config.AddStringFlag(cmd, config.Flags, config.FlagProvider, &cmder.providerType)
	config.AddStringFlag(cmd, config.Flags, config.FlagUpstream, &cmder.upstream)
	config.AddStringFlag(cmd, config.Flags, config.FlagModel, &cmder.model)
	config.AddStringFlag(cmd, config.Flags, config.FlagStorageDriver, &cmder.storageDriver)
	config.AddStringFlag(cmd, config.Flags, config.FlagStoragePath, &cmder.storagePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &cmder.sqlitePath)

	return cmd
}

func (c *ServeCommander) run(configDir string) error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return fmt.Errorf("resolving parlor directory: %w", err)
	}

	// Session store
	driver, err := c.createDriver(target)
	if err != nil {
		return err
	}
	defer driver.Close()

	// Generator
	gen, err := c.createGenerator()
	if err != nil {
		return err
	}
	defer gen.Close()

	// Event stream
	events, err := c.createPublisher()
	if err != nil {
		return err
	}
	defer events.Close()

	// User store
	usersPath := filepath.Join(target, "auth", "users.json")
	users, err := auth.NewRepo(usersPath)
	if err != nil {
		return fmt.Errorf("opening user store: %w", err)
	}

	flowCfg := flow.Config{
		Model:              c.v.GetString("llm.model"),
		WindowMessages:     c.v.GetInt("memory.window_messages"),
		SummarizeThreshold: c.v.GetInt("memory.summarize_threshold"),
		SummaryMaxWords:    c.v.GetInt("memory.summary_max_words"),
		StructuredEnabled:  c.v.GetBool("memory.structured_enabled"),
		StructuredMaxItems: c.v.GetInt("memory.structured_max_items"),
	}

	engineLog := logger.New(
		logger.WithDebug(c.debug),
		logger.WithJSON(true),
	).With(slog.String("component", "flow"))

	engine := flow.NewEngine(driver, gen, events, engineLog, flowCfg)

	apiConfig := api.Config{
		ListenAddr:     c.v.GetString("api.listen"),
		APIKey:         c.v.GetString("api.key"),
		JWTSecret:      c.v.GetString("auth.jwt_secret"),
		MaxPromptChars: c.v.GetInt("api.max_prompt_chars"),
	}

	server, err := api.NewServer(apiConfig, engine, users, c.logger)
	if err != nil {
		return fmt.Errorf("creating api server: %w", err)
	}

	c.logger.Info("starting parlor",
		zap.String("listen", apiConfig.ListenAddr),
		zap.String("provider", c.v.GetString("llm.provider")),
		zap.String("model", flowCfg.Model),
		zap.String("storage", c.v.GetString("storage.driver")),
		zap.Bool("login_enabled", apiConfig.JWTSecret != ""),
	)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("api server error: %w", err)
		}
	}()

	// Wait for interrupt signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		return server.Shutdown()
	}
}

func (c *ServeCommander) createDriver(target string) (store.Driver, error) {
	switch c.v.GetString("storage.driver") {
	case "file", "":
		dir := c.v.GetString("storage.path")
		if dir == "" {
			dir = filepath.Join(target, "sessions")
		}
		driver, err := file.NewDriver(dir)
		if err != nil {
			return nil, fmt.Errorf("creating file store: %w", err)
		}
		c.logger.Info("using file storage", zap.String("dir", dir))
		return driver, nil

	case "sqlite":
		path := c.v.GetString("storage.sqlite_path")
		if path == "" {
			path = filepath.Join(target, "parlor.db")
		}
		driver, err := sqlite.NewDriver(path)
		if err != nil {
			return nil, fmt.Errorf("creating sqlite store: %w", err)
		}
		c.logger.Info("using sqlite storage", zap.String("path", path))
		return driver, nil

	case "inmemory":
		c.logger.Info("using in-memory storage")
		return inmemory.NewDriver(), nil

	default:
		return nil, fmt.Errorf("unknown storage driver: %q", c.v.GetString("storage.driver"))
	}
}

func (c *ServeCommander) createGenerator() (llm.Generator, error) {
	switch c.v.GetString("llm.provider") {
	case "ollama", "":
		return ollama.NewGenerator(ollama.Config{
			BaseURL: c.v.GetString("llm.upstream"),
			Model:   c.v.GetString("llm.model"),
		})

	case "openai":
		return openai.NewGenerator(openai.Config{
			BaseURL: c.v.GetString("llm.upstream"),
			Model:   c.v.GetString("llm.model"),
			APIKey:  c.v.GetString("llm.api_key"),
		})

	default:
		return nil, fmt.Errorf("unknown llm provider: %q", c.v.GetString("llm.provider"))
	}
}

func (c *ServeCommander) createPublisher() (eventstream.Publisher, error) {
	switch c.v.GetString("events.provider") {
	case "nop", "":
		return nop.NewPublisher(), nil

	case "kafka":
		pub, err := kafka.NewPublisher(kafka.Config{
			Brokers: c.v.GetStringSlice("events.brokers"),
			Topic:   c.v.GetString("events.topic"),
		})
		if err != nil {
			return nil, fmt.Errorf("creating kafka publisher: %w", err)
		}
		c.logger.Info("publishing events to kafka",
			zap.Strings("brokers", c.v.GetStringSlice("events.brokers")),
			zap.String("topic", c.v.GetString("events.topic")),
		)
		return pub, nil

	default:
		return nil, fmt.Errorf("unknown events provider: %q", c.v.GetString("events.provider"))
	}
}
