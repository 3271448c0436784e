package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
	"github.com/yat0i811/CompShare/internal/config"
	"github.com/yat0i811/CompShare/internal/server"
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the CompShare server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "PostgreSQL connection string",
				Sources: cli.EnvVars("CS_DATABASE_URL"),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.Load(cmd.String("config"))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			if v := cmd.String("database-url"); v != "" {
				cfg.Database.URL = v
			}
			if cmd.IsSet("log-level") {
				cfg.Logging.Level = cmd.String("log-level")
			}

			if cfg.Database.URL == "" {
				return fmt.Errorf("database URL is required (set CS_DATABASE_URL env or database.url in config)")
			}

			return server.Run(ctx, cfg)
		},
	}
}
