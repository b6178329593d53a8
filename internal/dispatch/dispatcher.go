// Package dispatch fans a published signal out to every active subscriber of
// its trader, executing it once per user with per-user failure isolation.
package dispatch

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"signalArmyBot/internal/account"
	"signalArmyBot/internal/domain"
	"signalArmyBot/internal/ports"
)

const defaultPerUserTimeout = 30 * time.Second

// Dispatcher runs the concurrent fan-out. Each user gets a fresh exchange
// client from the factory, so no credential or signing state is shared across
// users.
type Dispatcher struct {
	directory      ports.UserDirectory
	factory        ports.ExchangeFactory
	sink           ports.ResultSink
	logger         ports.Logger
	maxConcurrent  int
	perUserTimeout time.Duration
	currency       string
	now            func() time.Time
}

// Config holds configuration for the Dispatcher.
type Config struct {
	Directory ports.UserDirectory
	Factory   ports.ExchangeFactory
	Sink      ports.ResultSink // optional; nil drops results after the summary
	Logger    ports.Logger

	MaxConcurrent  int           // 0 means GOMAXPROCS
	PerUserTimeout time.Duration // 0 means 30s
	Currency       string        // settlement currency passed to accounts
	Now            func() time.Time
}

// New creates a Dispatcher.
func New(cfg Config) (*Dispatcher, error) {
	if cfg.Directory == nil {
		return nil, fmt.Errorf("%w: user directory is required", ports.ErrConfiguration)
	}
	if cfg.Factory == nil {
		return nil, fmt.Errorf("%w: exchange factory is required", ports.ErrConfiguration)
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required", ports.ErrConfiguration)
	}

	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = runtime.GOMAXPROCS(0)
	}
	timeout := cfg.PerUserTimeout
	if timeout <= 0 {
		timeout = defaultPerUserTimeout
	}
	clock := cfg.Now
	if clock == nil {
		clock = time.Now
	}

	return &Dispatcher{
		directory:      cfg.Directory,
		factory:        cfg.Factory,
		sink:           cfg.Sink,
		logger:         cfg.Logger,
		maxConcurrent:  maxConcurrent,
		perUserTimeout: timeout,
		currency:       cfg.Currency,
		now:            clock,
	}, nil
}

// Summary aggregates one dispatch run.
type Summary struct {
	SignalID  int64
	Users     int
	Succeeded int
	Partial   int
	Failed    int
	Results   []*domain.ExecutionResult // one per user, in directory order
}

// Dispatch executes the signal for every active subscriber of its trader. One
// user's failure (or panic) never aborts the others; the run always produces a
// result per user. The returned error covers dispatch-level faults only —
// invalid signal, unknown trader, directory failure — never per-user outcomes.
func (d *Dispatcher) Dispatch(ctx context.Context, signal *domain.Signal) (*Summary, error) {
	if err := signal.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrInvalidInput, err)
	}

	if _, err := d.directory.FindTrader(ctx, signal.TraderID); err != nil {
		return nil, fmt.Errorf("resolve trader %d: %w", signal.TraderID, err)
	}

	users, err := d.directory.ActiveSubscribers(ctx, signal.TraderID)
	if err != nil {
		return nil, fmt.Errorf("resolve subscribers of trader %d: %w", signal.TraderID, err)
	}

	d.logger.Info(ctx, "dispatching signal", map[string]interface{}{
		"signalID": signal.ID,
		"traderID": signal.TraderID,
		"pair":     signal.Pair,
		"users":    len(users),
	})

	results := make([]*domain.ExecutionResult, len(users))

	g := &errgroup.Group{}
	g.SetLimit(d.maxConcurrent)
	for i, user := range users {
		i, user := i, user
		g.Go(func() error {
			results[i] = d.executeForUser(ctx, signal, user)
			return nil
		})
	}
	_ = g.Wait() // tasks never return errors; failures live in the results

	summary := &Summary{SignalID: signal.ID, Users: len(users), Results: results}
	for _, result := range results {
		switch result.Status {
		case domain.ExecutionSucceeded:
			summary.Succeeded++
		case domain.ExecutionPartial:
			summary.Partial++
		default:
			summary.Failed++
		}
		if result.Unprotected() {
			d.logger.Warn(ctx, "user holds unprotected exposure", map[string]interface{}{
				"signalID": signal.ID,
				"userID":   result.UserID,
			})
		}
		if d.sink != nil {
			if err := d.sink.Record(ctx, result); err != nil {
				d.logger.Error(ctx, err, "failed to record execution result", map[string]interface{}{
					"signalID": signal.ID,
					"userID":   result.UserID,
				})
			}
		}
	}

	d.logger.Info(ctx, "dispatch finished", map[string]interface{}{
		"signalID":  signal.ID,
		"succeeded": summary.Succeeded,
		"partial":   summary.Partial,
		"failed":    summary.Failed,
	})
	return summary, nil
}

// executeForUser runs one user's task. Every failure mode, panics included,
// collapses into an ExecutionResult so the fan-out stays isolated.
func (d *Dispatcher) executeForUser(ctx context.Context, signal *domain.Signal, user *domain.User) (result *domain.ExecutionResult) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error(ctx, fmt.Errorf("panic: %v", r), "execution task panicked", map[string]interface{}{
				"signalID": signal.ID,
				"userID":   user.ID,
			})
			result = &domain.ExecutionResult{
				SignalID:   signal.ID,
				UserID:     user.ID,
				Status:     domain.ExecutionFailed,
				Err:        fmt.Errorf("execution panicked: %v", r),
				FinishedAt: d.now(),
			}
		}
	}()

	taskCtx, cancel := context.WithTimeout(ctx, d.perUserTimeout)
	defer cancel()

	client, err := d.factory(user.Credential)
	if err != nil {
		return &domain.ExecutionResult{
			SignalID:   signal.ID,
			UserID:     user.ID,
			Status:     domain.ExecutionFailed,
			Err:        fmt.Errorf("build exchange client: %w", err),
			FinishedAt: d.now(),
		}
	}

	acct, err := account.New(account.Config{
		User:     user,
		Client:   client,
		Logger:   d.logger,
		Currency: d.currency,
		Now:      d.now,
	})
	if err != nil {
		return &domain.ExecutionResult{
			SignalID:   signal.ID,
			UserID:     user.ID,
			Status:     domain.ExecutionFailed,
			Err:        err,
			FinishedAt: d.now(),
		}
	}

	// The result carries the execution error; nothing propagates out of the task.
	result, _ = acct.ExecuteSignal(taskCtx, signal)
	return result
}
