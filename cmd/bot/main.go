package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"bumpbot/internal/app"
	"bumpbot/internal/config"
	"bumpbot/internal/storage"
	logx "bumpbot/pkg/logx"
)

const (
	flagConfig  = "config"
	flagEnvFile = "env-file"
)

func main() {
	cliApp := &cli.App{
		Name:  "bumpbot",
		Usage: "remind a Discord channel when the next server bump is due",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Value:   "./config.yaml",
				Usage:   "path to the config file (yaml or json)",
			},
			&cli.StringFlag{
				Name:  flagEnvFile,
				Value: ".env",
				Usage: "dotenv file loaded before the config; a missing file is ignored",
			},
		},
		Before: func(c *cli.Context) error {
			if err := config.LoadEnvFile(c.String(flagEnvFile)); err != nil {
				return cli.Exit(fmt.Sprintf("load env file: %v", err), 1)
			}
			return nil
		},
		Action: runBot,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "connect to Discord and serve reminders (default)",
				Action: runBot,
			},
			{
				Name:   "status",
				Usage:  "print the persisted next reminder time without connecting",
				Action: showStatus,
			},
			{
				Name:   "clear",
				Usage:  "delete the persisted reminder without connecting",
				Action: clearState,
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func runBot(c *cli.Context) error {
	ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(c.String(flagConfig))
	if err != nil {
		if errors.Is(err, config.ErrMissingToken) {
			return cli.Exit("discord token is not set (config discord.token or "+config.EnvToken+")", 1)
		}
		return cli.Exit(err.Error(), 1)
	}
	if err := a.Start(ctx); err != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		_ = a.Stop(stopCtx, app.StopFatalError)
		return cli.Exit(fmt.Sprintf("start: %v", err), 1)
	}

	reason := app.StopSignal
	select {
	case <-ctx.Done():
	case <-a.Done():
		reason = app.StopFatalError
	}
	fatal := a.Err()
	if fatal != nil {
		reason = app.StopFatalError
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)

	if fatal != nil {
		return cli.Exit(fatal.Error(), 1)
	}
	return nil
}

func openStore(c *cli.Context) (storage.Store, error) {
	cfg, err := config.NewConfigManager(c.String(flagConfig)).Parse()
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("load config: %v", err), 1)
	}
	sc, err := cfg.StorageSettings()
	if err != nil {
		return nil, cli.Exit(err.Error(), 1)
	}
	if sc.Driver == "memory" {
		return nil, cli.Exit("memory storage keeps nothing between runs", 1)
	}
	st, err := storage.Open(sc, logx.Nop())
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("open storage: %v", err), 1)
	}
	return st, nil
}

func showStatus(c *cli.Context) error {
	st, err := openStore(c)
	if err != nil {
		return err
	}
	defer st.Close()

	at, ok, err := st.NextFire(c.Context)
	if err != nil {
		return cli.Exit(fmt.Sprintf("read state: %v", err), 1)
	}
	if !ok {
		fmt.Fprintln(c.App.Writer, "no reminder pending")
		return nil
	}
	rem := time.Until(at).Truncate(time.Second)
	if rem < 0 {
		fmt.Fprintf(c.App.Writer, "reminder overdue since %s (%s ago)\n", at.Local().Format(time.RFC3339), -rem)
		return nil
	}
	fmt.Fprintf(c.App.Writer, "next reminder at %s (in %s)\n", at.Local().Format(time.RFC3339), rem)
	return nil
}

func clearState(c *cli.Context) error {
	st, err := openStore(c)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.ClearNextFire(c.Context); err != nil {
		return cli.Exit(fmt.Sprintf("clear state: %v", err), 1)
	}
	fmt.Fprintln(c.App.Writer, "reminder state cleared")
	return nil
}
