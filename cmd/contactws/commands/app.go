package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"os"
	"path/filepath"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/ingeweb/contactws/internal/config"
	"github.com/ingeweb/contactws/internal/model"
	"github.com/ingeweb/contactws/internal/notify"
	"github.com/ingeweb/contactws/internal/pluginstate"
	"github.com/ingeweb/contactws/internal/reconcile"
	"github.com/ingeweb/contactws/internal/repository"
	"github.com/ingeweb/contactws/internal/repository/redisstore"
	"github.com/ingeweb/contactws/internal/repository/sqlite"
	"github.com/ingeweb/contactws/internal/sarh"
	"github.com/ingeweb/contactws/internal/task"
)

// app holds the collaborators shared by every command.
type app struct {
	cfg    *config.Config
	policy config.Policy
	logger *slog.Logger

	db     *sqlite.DB
	rdb    *redis.Client // nil unless state.backend is redis
	state  *pluginstate.Store
	client *sarh.Client

	engine *reconcile.Engine
	notify *notify.Task
	runner *task.Runner
}

// newApp opens storage, seeds the plugin state from the configuration and
// builds the reconciliation and notification tasks.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, policy: cfg.Policy(), logger: logger}

	if dir := filepath.Dir(cfg.Database.Path); !strings.Contains(cfg.Database.Path, ":memory:") {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
		}
	}

	db, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	a.db = db

	store, err := a.configStore(ctx)
	if err != nil {
		a.close()
		return nil, err
	}
	a.state = pluginstate.New(store)

	if err := a.install(ctx); err != nil {
		a.close()
		return nil, err
	}

	sarhCfg := sarh.DefaultConfig()
	sarhCfg.ConnectTimeout = cfg.SARH.ConnectTimeout
	sarhCfg.RequestTimeout = cfg.SARH.RequestTimeout
	a.client = sarh.New(a.state, sarhCfg, logger)

	a.engine = reconcile.NewEngine(a.client, db.Users(), db, a.state, a.policy, logger)

	reporter, err := notify.NewReporter(cfg.Notify.SiteName, cfg.Notify.SiteURL, a.policy.ActiveStatuses)
	if err != nil {
		a.close()
		return nil, err
	}
	taskCfg := notify.TaskConfig{
		Enabled:  a.policy.Enabled,
		From:     noReply(cfg.Notify.NoReply, cfg.Notify.SiteName),
		Reporter: reporter,
		Mailer:   notify.NewSMTPMailer(cfg.Notify.SMTPHost, cfg.Notify.SMTPPort, cfg.Notify.SMTPUsername, cfg.Notify.SMTPPassword),
	}
	if cfg.Notify.SlackWebhook != "" {
		taskCfg.Webhook = notify.NewSlackNotifier(cfg.Notify.SlackWebhook, cfg.Notify.SlackChannel, cfg.Notify.SiteName)
	}
	a.notify = notify.NewTask(taskCfg, a.state, db.Users(), logger)

	a.runner = task.NewRunner(logger)
	a.runner.Register(reconcile.NewTask(a.engine, logger), cfg.Sync.Interval)
	a.runner.Register(a.notify, cfg.Notify.Interval)

	return a, nil
}

func (a *app) configStore(ctx context.Context) (repository.ConfigStore, error) {
	if a.cfg.State.Backend != "redis" {
		return a.db.Config(pluginstate.Plugin), nil
	}

	a.rdb = redis.NewClient(&redis.Options{
		Addr:     a.cfg.State.RedisAddr,
		Password: a.cfg.State.RedisPassword,
		DB:       a.cfg.State.RedisDB,
	})
	store := redisstore.NewConfigStore(a.rdb, a.cfg.State.RedisPrefix, pluginstate.Plugin)
	if err := store.Ping(ctx); err != nil {
		return nil, err
	}
	a.logger.Info("plugin state stored in redis", slog.String("addr", a.cfg.State.RedisAddr))
	return store, nil
}

// install replaces cached passwords of managed accounts and writes the
// settings given in the configuration into the plugin state.
func (a *app) install(ctx context.Context) error {
	n, err := a.db.Users().ResetPasswords(ctx, a.policy.AuthMethod)
	if err != nil {
		return err
	}
	if n > 0 {
		a.logger.Info("cached passwords cleared", slog.Int64("accounts", n))
	}

	err = a.state.SaveConnectionSettings(ctx, model.ConnectionSettings{
		BaseURL:     a.cfg.SARH.BaseURL,
		APIUsername: a.cfg.SARH.APIUsername,
		APIPassword: a.cfg.SARH.APIPassword,
	})
	if err != nil {
		return err
	}

	if len(a.cfg.Notify.AdminIDs) > 0 {
		err = a.state.SaveNotificationSettings(ctx, model.NotificationSettings{
			Enabled:  a.cfg.Notify.Enabled,
			AdminIDs: a.cfg.Notify.AdminIDs,
		})
		if err != nil {
			return err
		}
	}

	conn, err := a.state.ConnectionSettings(ctx)
	if err != nil {
		return err
	}
	if !conn.Complete() {
		a.logger.Warn("sarh connection settings are incomplete, logins and synchronization will fail")
	}
	return nil
}

func (a *app) close() {
	var errs []error
	if a.rdb != nil {
		errs = append(errs, a.rdb.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Error("closing storage failed", slog.String("error", err.Error()))
	}
}

func noReply(address, siteName string) mail.Address {
	if addr, err := mail.ParseAddress(address); err == nil {
		if addr.Name == "" {
			addr.Name = siteName
		}
		return *addr
	}
	return mail.Address{Name: siteName, Address: address}
}
