// Package reconcile keeps local account state in line with the SARH roster.
//
// A run fetches the full roster, classifies every record against the active
// status codes, decides the suspended state of every account managed by the
// service and applies the differences in transactional batches. The steps
// never interleave: classification, matching, mutation, then publication of
// statistics.
//
// The classification pass has a wall-clock budget. When it runs out, the
// rest of the roster is reported as unprocessed and the matching pass is
// skipped entirely, so accounts are never suspended from a partial view. A
// skipped matching pass is recorded in the published statistics.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rs/xid"

	"github.com/ingeweb/contactws/internal/config"
	"github.com/ingeweb/contactws/internal/model"
	"github.com/ingeweb/contactws/internal/repository"
	"github.com/ingeweb/contactws/internal/sarh"
)

// Directory is the part of the SARH client a run needs.
type Directory interface {
	Token(ctx context.Context) (string, error)
	Roster(ctx context.Context, token string) (*sarh.Roster, error)
}

// StatsStore persists the outcome of a run.
type StatsStore interface {
	SaveStats(ctx context.Context, stats *model.SyncStats) error
	SaveRawResponse(ctx context.Context, body []byte) error
}

// Result describes one run.
type Result struct {
	RunID string          `json:"run_id"`
	Stats model.SyncStats `json:"stats"`
	// MatchingSkipped is set when the budget ran out before matching.
	MatchingSkipped bool `json:"matching_skipped"`
	Duplicates      int  `json:"duplicates"`
	Suspended       int  `json:"suspended"`
	Unsuspended     int  `json:"unsuspended"`
	FailedBatches   int  `json:"failed_batches"`
}

type Engine struct {
	dir    Directory
	users  repository.UserRepository
	tx     repository.Transactor
	stats  StatsStore
	policy config.Policy
	logger *slog.Logger
	now    func() time.Time
}

func NewEngine(
	dir Directory,
	users repository.UserRepository,
	tx repository.Transactor,
	stats StatsStore,
	policy config.Policy,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		dir:    dir,
		users:  users,
		tx:     tx,
		stats:  stats,
		policy: policy,
		logger: logger,
		now:    time.Now,
	}
}

// Run performs one reconciliation. It returns an error, before any
// mutation, when the token, the roster or the local identifier set cannot
// be obtained. Batch failures are logged and counted in the Result.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	start := e.now()
	res := &Result{RunID: xid.New().String()}
	log := e.logger.With(slog.String("run", res.RunID))

	log.Info("sarh synchronization started")

	token, err := e.dir.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile: obtaining token: %w", err)
	}

	roster, err := e.dir.Roster(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("reconcile: fetching roster: %w", err)
	}
	log.Info("roster received", slog.Int("users", len(roster.Users)))

	if err := e.stats.SaveRawResponse(ctx, roster.Raw); err != nil {
		log.Warn("saving raw roster failed", slog.String("error", err.Error()))
	}

	existing, err := e.users.IdentifierSet(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile: loading local identifiers: %w", err)
	}

	expired := deadline(e.now, start, e.policy.TimeBudget)
	c := Classify(roster.Users, e.policy, existing, expired)

	res.Stats = model.SyncStats{
		TotalAPIUsers:    len(roster.Users),
		TotalProcessed:   c.Processed,
		TotalUnprocessed: len(roster.Users) - c.Processed,
		TotalMissing:     len(c.Missing),
		StatusStatistics: c.Stats,
		MissingUsers:     c.Missing,
	}
	log.Info("roster classified",
		slog.Int("processed", c.Processed),
		slog.Int("total", len(roster.Users)),
		slog.Int("active", len(c.Active)),
		slog.Int("missing", len(c.Missing)),
	)
	if res.Stats.TotalUnprocessed > 0 {
		log.Warn("users not processed due to time constraints",
			slog.Int("unprocessed", res.Stats.TotalUnprocessed))
	}

	switch {
	case c.Truncated:
		res.MatchingSkipped = true
		log.Warn("skipped local account matching due to time constraints")
	case expired():
		res.MatchingSkipped = true
		log.Warn("roster read completely but time budget exhausted, skipped local account matching",
			slog.Duration("budget", e.policy.TimeBudget))
	default:
		if err := e.match(ctx, log, c.Active, res); err != nil {
			return nil, err
		}
	}
	res.Stats.MatchingSkipped = res.MatchingSkipped

	active, suspended, err := e.users.CountByAuth(ctx, e.policy.AuthMethod)
	if err != nil {
		log.Error("counting accounts failed", slog.String("error", err.Error()))
	}
	res.Stats.ActiveUsers = active
	res.Stats.SuspendedUsers = suspended

	end := e.now()
	res.Stats.LastSyncTime = end
	res.Stats.ExecutionTime = end.Sub(start)

	if err := e.stats.SaveStats(ctx, &res.Stats); err != nil {
		log.Error("saving statistics failed", slog.String("error", err.Error()))
	}

	log.Info("sarh synchronization completed",
		slog.Duration("duration", res.Stats.ExecutionTime),
		slog.Int("suspended", res.Suspended),
		slog.Int("unsuspended", res.Unsuspended),
		slog.Int("failedBatches", res.FailedBatches),
	)
	return res, nil
}

func (e *Engine) match(ctx context.Context, log *slog.Logger, active map[string]int, res *Result) error {
	accounts, err := e.users.ListByAuth(ctx, e.policy.AuthMethod)
	if err != nil {
		return fmt.Errorf("reconcile: listing %s accounts: %w", e.policy.AuthMethod, err)
	}
	log.Info("local accounts loaded", slog.Int("accounts", len(accounts)))

	plan := Decide(accounts, active)
	res.Duplicates = plan.Duplicates
	log.Info("reconciliation planned",
		slog.Int("toSuspend", len(plan.Suspend)),
		slog.Int("toUnsuspend", len(plan.Unsuspend)),
		slog.Int("duplicateIdentifiers", plan.Duplicates),
	)

	var failed int
	res.Suspended, failed = e.apply(ctx, log, plan.Suspend, true)
	res.FailedBatches += failed
	res.Unsuspended, failed = e.apply(ctx, log, plan.Unsuspend, false)
	res.FailedBatches += failed
	return nil
}

// apply flips the suspended flag of accounts in batches, one transaction per
// batch. It returns how many accounts changed and how many batches failed.
func (e *Engine) apply(ctx context.Context, log *slog.Logger, accounts []model.Account, suspend bool) (changed, failed int) {
	size := e.policy.BatchSize
	if size <= 0 {
		size = len(accounts)
	}

	for start := 0; start < len(accounts); start += size {
		batch := accounts[start:min(start+size, len(accounts))]

		err := e.tx.WithinTx(ctx, func(ctx context.Context, users repository.UserRepository) error {
			for _, a := range batch {
				if err := users.SetSuspended(ctx, a.ID, suspend); err != nil {
					return fmt.Errorf("account %d (%s): %w", a.ID, a.Username, err)
				}
			}
			return nil
		})
		if err != nil {
			failed++
			log.Error("batch failed and was rolled back",
				slog.Bool("suspend", suspend),
				slog.Int("offset", start),
				slog.Int("size", len(batch)),
				slog.String("error", err.Error()),
			)
			continue
		}

		changed += len(batch)
		for _, a := range batch {
			log.Debug("account updated",
				slog.Int64("id", a.ID),
				slog.String("username", a.Username),
				slog.Bool("suspended", suspend),
			)
		}
	}
	return changed, failed
}
