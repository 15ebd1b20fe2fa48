package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MrLerich/diplom8/bot"
	"github.com/MrLerich/diplom8/bot/tg"
	"github.com/MrLerich/diplom8/db"
	"github.com/MrLerich/diplom8/goals"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the REST API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := loggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			bind := strings.TrimSpace(flagOrViperString(cmd, "server-bind", "server.bind"))
			if bind == "" {
				bind = "127.0.0.1"
			}
			port := flagOrViperInt(cmd, "server-port", "server.port")
			if port <= 0 {
				port = 8080
			}

			dbCfg := db.DefaultConfig()
			dbCfg.DSN = flagOrViperString(cmd, "db-dsn", "db.dsn")
			dbCfg.AutoMigrate = flagOrViperBool(cmd, "db-auto-migrate", "db.auto_migrate")
			gdb, err := db.Open(dbCfg)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}

			srv := &apiServer{
				gdb:    gdb,
				svc:    goals.NewService(gdb),
				linker: bot.NewLinker(bot.NewGormIdentityStore(gdb)),
				logger: logger,
			}
			// With a bot token configured, a successful verification also
			// notifies the linked chat.
			if token := flagOrViperString(cmd, "telegram-bot-token", "telegram.bot_token"); strings.TrimSpace(token) != "" {
				client := tg.NewClient(nil, "", token)
				srv.sendText = client.SendMessage
			}

			addr := bind + ":" + strconv.Itoa(port)
			httpSrv := &http.Server{
				Addr:              addr,
				Handler:           srv.routes(),
				ReadHeaderTimeout: 5 * time.Second,
			}
			logger.Info("server_start", "addr", addr)
			return httpSrv.ListenAndServe()
		},
	}

	cmd.Flags().String("server-bind", "127.0.0.1", "Bind address (default: 127.0.0.1).")
	cmd.Flags().Int("server-port", 8080, "HTTP port to listen on.")
	cmd.Flags().String("db-dsn", "", "SQLite DSN (defaults to ~/.todolist/todolist.sqlite)")
	cmd.Flags().Bool("db-auto-migrate", true, "Run schema migrations on startup")
	cmd.Flags().String("telegram-bot-token", "", "Telegram bot token (optional; enables verification notifications)")
	return cmd
}
