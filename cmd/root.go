package cmd

import (
	"github.com/urfave/cli/v3"
)

var version = "dev"

func App() *cli.Command {
	return &cli.Command{
		Name:    "compshare",
		Version: version,
		Usage:   "Self-hosted video compression. Upload, compress, share the result.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to TOML config file",
				Sources: cli.EnvVars("COMPSHARE_CONFIG_PATH"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Sources: cli.EnvVars("COMPSHARE_LOG_LEVEL"),
			},
		},
		Commands: []*cli.Command{
			serveCmd(),
			migrateCmd(),
		},
	}
}
