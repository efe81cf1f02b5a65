package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ingeweb/contactws/internal/auth"
	"github.com/ingeweb/contactws/internal/handler"
	"github.com/ingeweb/contactws/internal/server"
	"github.com/ingeweb/contactws/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve logins and the admin API, and run the scheduled tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.close()

		tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL)
		if err != nil {
			return fmt.Errorf("auth.jwt_secret: %w", err)
		}

		login := service.NewLoginService(
			a.client,
			a.db.Users(),
			a.db.Profiles(),
			a.db.LinkedLogins(),
			tokens,
			a.policy,
			logger,
		)

		srv := server.New(server.Config{
			Port:            cfg.Server.Port,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
		}, server.Deps{
			Auth:      handler.NewAuthHandler(login, tokens.TTL(), cfg.Server.SecureCookies, logger),
			Admin:     handler.NewAdminHandler(a.state, a.runner, logger),
			Tokens:    tokens,
			Policy:    a.policy,
			Scheduler: a.runner,
		}, logger)

		logger.Info("contactws starting",
			slog.String("database", cfg.Database.Path),
			slog.String("state", cfg.State.Backend),
			slog.Duration("sync_interval", cfg.Sync.Interval),
			slog.Duration("notify_interval", cfg.Notify.Interval),
		)
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().Int("port", 8080, "HTTP listen port")
}
