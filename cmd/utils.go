package cmd

import (
	"flag"
	"fmt"
	"log"
	"log/slog"

	"chatvault/internal/chatdb"
	"chatvault/internal/config"
	"chatvault/internal/database"
	"chatvault/internal/storage"
)

// LoadConfig parses the -env flag and loads the config, exiting on error.
func LoadConfig() config.Config {
	var configPath string

	flag.StringVar(&configPath, "env", "", "path to load env from")
	flag.Parse()

	if configPath == "" {
		log.Printf("no env file specified, using os.Environ only")
	} else {
		log.Printf("loading env from file %s", configPath)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("error loading config: %v", err)
	}
	return cfg
}

// OpenChatDB wires the engine and flat store for the configured origin. The
// engine is opened lazily by the first operation. The returned function
// closes the engine.
func OpenChatDB(cfg config.Config, logger *slog.Logger, opts ...chatdb.Option) (*chatdb.ChatDB, func() error, error) {
	flat, err := storage.NewLocalKVStore(cfg.FlatDir())
	if err != nil {
		return nil, nil, fmt.Errorf("error creating flat store: %w", err)
	}

	engine := database.NewEngine(cfg.DatabasePath(), logger)

	opts = append([]chatdb.Option{chatdb.WithLogger(logger)}, opts...)
	return chatdb.New(engine, flat, opts...), engine.Close, nil
}
