package main

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrLerich/diplom8/bot"
	"github.com/MrLerich/diplom8/bot/tg"
	"github.com/MrLerich/diplom8/db"
	"github.com/MrLerich/diplom8/goals"
	"github.com/spf13/cobra"
)

func newBotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bot",
		Short: "Run the Telegram bot (long polling)",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := loggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			token := flagOrViperString(cmd, "telegram-bot-token", "telegram.bot_token")
			if token == "" {
				return fmt.Errorf("telegram bot token is required (set --telegram-bot-token or TODOLIST_TELEGRAM_BOT_TOKEN)")
			}
			pollTimeout := flagOrViperDuration(cmd, "telegram-poll-timeout", "telegram.poll_timeout")

			dbCfg := db.DefaultConfig()
			dbCfg.DSN = flagOrViperString(cmd, "db-dsn", "db.dsn")
			dbCfg.AutoMigrate = flagOrViperBool(cmd, "db-auto-migrate", "db.auto_migrate")
			gdb, err := db.Open(dbCfg)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}

			client := tg.NewClient(nil, "", token)
			me, err := client.GetMe(cmd.Context())
			if err != nil {
				return fmt.Errorf("telegram getMe: %w", err)
			}
			logger.Info("bot_identity", "id", me.ID, "username", me.Username)

			svc := goals.NewService(gdb)
			linker := bot.NewLinker(bot.NewGormIdentityStore(gdb))
			dispatcher := bot.NewDispatcher(svc, bot.NewStateStore(), logger)

			loop, err := bot.NewLoop(bot.LoopOptions{
				Poller:      client,
				Sender:      client,
				Resolver:    linker,
				Dispatcher:  dispatcher,
				Logger:      logger,
				PollTimeout: pollTimeout,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return loop.Run(ctx)
		},
	}

	cmd.Flags().String("telegram-bot-token", "", "Telegram bot token")
	cmd.Flags().Duration("telegram-poll-timeout", 30*time.Second, "Long-poll timeout for getUpdates")
	cmd.Flags().String("db-dsn", "", "SQLite DSN (defaults to ~/.todolist/todolist.sqlite)")
	cmd.Flags().Bool("db-auto-migrate", true, "Run schema migrations on startup")
	return cmd
}
