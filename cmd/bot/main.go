package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/wardenlabs/warden/internal/setup"
)

const (
	// BotLogDir specifies where bot log files are stored.
	BotLogDir = "logs/bot_logs"
)

func main() {
	app := &cli.Command{
		Name:  "bot",
		Usage: "Start the warden moderation bot",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-dir",
				Value: BotLogDir,
				Usage: "Directory for log sessions",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return run(ctx, c.String("log-dir"))
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logDir string) error {
	// Initialize application with required dependencies
	app, err := setup.InitializeApp(ctx, logDir)
	if err != nil {
		return err
	}
	defer app.CleanupApp()

	// Start the bot and connect to Discord
	if err := app.Bot.Start(ctx); err != nil {
		app.Logger.Error("Failed to start bot", zap.Error(err))
		return err
	}

	app.Logger.Info("Bot has been started. Waiting for interrupt signal to gracefully shutdown...")

	// Wait for interrupt signal to gracefully shutdown the bot.
	// This ensures all pending events are processed before closing.
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc

	app.Bot.Close()

	return nil
}
