package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/rs/xid"

	"github.com/ingeweb/contactws/internal/model"
)

// TaskName identifies the administrator report in the task runner.
const TaskName = "notify_admins"

// State is the plugin state the report is built from.
type State interface {
	NotificationSettings(ctx context.Context) (model.NotificationSettings, error)
	LoadStats(ctx context.Context) (*model.SyncStats, error)
}

// Accounts resolves recipient ids.
type Accounts interface {
	GetByIDs(ctx context.Context, ids []int64) ([]model.Account, error)
}

// Webhook is an optional secondary channel for the summary.
type Webhook interface {
	Send(ctx context.Context, stats *model.SyncStats) error
}

// TaskConfig carries the fixed settings of a Task.
type TaskConfig struct {
	// Enabled mirrors the plugin enabled flag of the policy.
	Enabled  bool
	From     mail.Address
	Reporter *Reporter
	Mailer   Mailer
	Webhook  Webhook // may be nil
}

type Task struct {
	cfg      TaskConfig
	state    State
	accounts Accounts
	logger   *slog.Logger
}

func NewTask(cfg TaskConfig, state State, accounts Accounts, logger *slog.Logger) *Task {
	return &Task{cfg: cfg, state: state, accounts: accounts, logger: logger}
}

func (t *Task) Name() string { return TaskName }

// Execute mails the last published statistics to every configured
// administrator. Delivery failures do not stop the remaining deliveries;
// they are joined into the returned error.
func (t *Task) Execute(ctx context.Context) error {
	log := t.logger.With(slog.String("run", xid.New().String()))

	if !t.cfg.Enabled {
		log.Info("contactws authentication is disabled, skipping notification")
		return nil
	}

	settings, err := t.state.NotificationSettings(ctx)
	if err != nil {
		return fmt.Errorf("notify: loading notification settings: %w", err)
	}
	if !settings.Enabled {
		log.Info("admin notifications are disabled, skipping")
		return nil
	}
	if len(settings.AdminIDs) == 0 {
		log.Info("no administrators selected for notifications, skipping")
		return nil
	}

	stats, err := t.state.LoadStats(ctx)
	if err != nil {
		return fmt.Errorf("notify: loading statistics: %w", err)
	}
	report, err := t.cfg.Reporter.Render(stats)
	if err != nil {
		return err
	}

	admins, err := t.accounts.GetByIDs(ctx, settings.AdminIDs)
	if err != nil {
		return fmt.Errorf("notify: resolving administrators: %w", err)
	}
	found := make(map[int64]bool, len(admins))
	for _, a := range admins {
		found[a.ID] = true
	}
	for _, id := range settings.AdminIDs {
		if !found[id] {
			log.Warn("administrator not found", slog.Int64("id", id))
		}
	}

	var errs []error
	sent := 0
	for _, a := range admins {
		if a.Email == "" {
			log.Warn("administrator has no email address", slog.String("username", a.Username))
			continue
		}
		msg := Message{
			From:    t.cfg.From,
			To:      mail.Address{Name: strings.TrimSpace(a.FirstName + " " + a.LastName), Address: a.Email},
			Subject: report.Subject,
			Text:    report.Text,
			HTML:    report.HTML,
		}
		if err := t.cfg.Mailer.Send(ctx, msg); err != nil {
			errs = append(errs, err)
			log.Error("sending report failed",
				slog.String("username", a.Username),
				slog.String("error", err.Error()),
			)
			continue
		}
		sent++
		log.Info("report sent", slog.String("username", a.Username))
	}

	if t.cfg.Webhook != nil {
		if err := t.cfg.Webhook.Send(ctx, stats); err != nil {
			errs = append(errs, err)
		}
	}

	log.Info("admin notification completed", slog.Int("sent", sent), slog.Int("failed", len(errs)))
	return errors.Join(errs...)
}
