package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/inneros/inneros/internal"
	"github.com/inneros/inneros/internal/apperr"
	"github.com/inneros/inneros/internal/promote"
	pkgconfig "github.com/inneros/inneros/pkg/config"
)

// Exit codes: 0 success, 1 completed with errors, 2 invalid arguments.
const (
	exitErrors      = 1
	exitInvalidArgs = 2
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	configPath := cmd.String("config")
	if _, err := os.Stat(configPath); err == nil {
		if err := pkgconfig.Load(configPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	return cfg, nil
}

func runDaemon(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidArgs)
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func runPromote(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidArgs)
	}

	threshold := cmd.Float("threshold")
	res, err := internal.RunPromote(ctx, cfg, cmd.Bool("dry-run"), threshold, os.Stdout)
	if err != nil {
		if errors.Is(err, apperr.ErrInvalidArgument) {
			return cli.Exit(err.Error(), exitInvalidArgs)
		}
		return cli.Exit(err.Error(), exitErrors)
	}
	if res.Errored > 0 {
		return cli.Exit(fmt.Sprintf("completed with %d errors", res.Errored), exitErrors)
	}
	return nil
}

func runStatus(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidArgs)
	}
	if err := internal.RunStatus(ctx, cfg, os.Stdout); err != nil {
		return cli.Exit(err.Error(), exitErrors)
	}
	return nil
}

func runMCP(_ context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidArgs)
	}
	if err := internal.RunMCP(cfg); err != nil {
		return cli.Exit(err.Error(), exitErrors)
	}
	return nil
}

func main() {
	configFlag := &cli.StringFlag{
		Name:        "config",
		Aliases:     []string{"c"},
		Usage:       "Path to config file",
		DefaultText: "config/config.yaml",
		Value:       "config/config.yaml",
		Sources:     cli.EnvVars("APP_CONFIG_FILE"),
	}

	cmd := &cli.Command{
		Name:  "inneros",
		Usage: "Personal knowledge automation: watches the vault, enriches captures, and promotes quality notes",
		Flags: []cli.Flag{configFlag},
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Run the automation daemon with the HTTP API",
				Action: runDaemon,
				Flags:  []cli.Flag{configFlag},
			},
			{
				Name:   "promote",
				Usage:  "Run a one-shot promotion pass over the inbox",
				Action: runPromote,
				Flags: []cli.Flag{
					configFlag,
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Preview the selection without moving any files",
					},
					&cli.FloatFlag{
						Name:  "threshold",
						Usage: "Minimum quality score in [0,1]",
						Value: promote.DefaultQualityThreshold,
					},
				},
			},
			{
				Name:   "status",
				Usage:  "Print the vault's lifecycle status distribution",
				Action: runStatus,
				Flags:  []cli.Flag{configFlag},
			},
			{
				Name:   "mcp",
				Usage:  "Serve vault tools over MCP stdio",
				Action: runMCP,
				Flags:  []cli.Flag{configFlag},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			slog.Error("command failed", slog.String("error", err.Error()))
			os.Exit(exitErr.ExitCode())
		}
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(exitErrors)
	}
}
