// internal/service/dispatcher.go
package service

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vendaops/vendaops-backend/internal/apperrors"
	"github.com/vendaops/vendaops-backend/internal/dispatch"
	"github.com/vendaops/vendaops-backend/internal/lock"
	"github.com/vendaops/vendaops-backend/internal/model"
	"github.com/vendaops/vendaops-backend/internal/recurrence"
	"github.com/vendaops/vendaops-backend/internal/repository"
)

const tickLockKey = "vendaops:dispatch:tick"

// Dispatcher runs the scheduler loop: select due one-off and recurring
// occurrences, send each through the gateway, and record the outcome with
// a conditional store update. Safe to run from several instances at once;
// a lost conditional update just means another instance got there first.
type Dispatcher struct {
	Scheduled  repository.ScheduledMessageRepositoryInterface
	Recurring  repository.RecurringScheduleRepositoryInterface
	Executor   *dispatch.Executor
	Redis      *redis.Client // optional, reduces overlapping ticks
	LockTTL    time.Duration
	BatchLimit int
	Log        zerolog.Logger
	Now        func() time.Time // injectable clock
}

// RunReport summarizes one synchronous dispatch pass.
type RunReport struct {
	ScheduledAttempted int `json:"scheduled_attempted"`
	ScheduledSent      int `json:"scheduled_sent"`
	ScheduledFailed    int `json:"scheduled_failed"`
	RecurringAttempted int `json:"recurring_attempted"`
	RecurringFired     int `json:"recurring_fired"`
	RecurringRetired   int `json:"recurring_retired"`
	ConcurrencyLost    int `json:"concurrency_lost"`
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now().UTC()
}

func (d *Dispatcher) batchLimit() int {
	if d.BatchLimit > 0 {
		return d.BatchLimit
	}
	return 100
}

// ProcessPending runs one scheduler pass. Per-item failures never abort
// the batch; only a store read failure does.
func (d *Dispatcher) ProcessPending(ctx context.Context) (*RunReport, error) {
	now := d.now()
	report := &RunReport{}

	messages, err := d.Scheduled.GetDue(now, d.batchLimit())
	if err != nil {
		return report, err
	}
	for _, m := range messages {
		d.processScheduled(ctx, m, report)
	}

	rules, err := d.Recurring.GetDue(now, d.batchLimit())
	if err != nil {
		return report, err
	}
	for _, r := range rules {
		d.processRecurring(ctx, r, report)
	}

	return report, nil
}

// Tick is the periodic entry point. When Redis is configured it takes a
// short-lived lock so overlapping ticks from other instances usually skip;
// the manual trigger bypasses this and calls ProcessPending directly.
func (d *Dispatcher) Tick(ctx context.Context) {
	if d.Redis != nil {
		ttl := d.LockTTL
		if ttl <= 0 {
			ttl = 30 * time.Second
		}
		held, err := lock.Acquire(ctx, d.Redis, tickLockKey, ttl)
		if err != nil {
			d.Log.Error().Err(err).Msg("tick lock unavailable, running unlocked")
		} else if held == nil {
			d.Log.Debug().Msg("tick lock held elsewhere, skipping pass")
			return
		} else {
			defer func() {
				if rerr := held.Release(context.WithoutCancel(ctx)); rerr != nil {
					d.Log.Warn().Err(rerr).Msg("failed to release tick lock")
				}
			}()
		}
	}

	report, err := d.ProcessPending(ctx)
	if err != nil {
		d.Log.Error().Err(err).Msg("dispatch pass failed")
		return
	}
	if report.ScheduledAttempted > 0 || report.RecurringAttempted > 0 {
		d.Log.Info().
			Int("scheduled_sent", report.ScheduledSent).
			Int("scheduled_failed", report.ScheduledFailed).
			Int("recurring_fired", report.RecurringFired).
			Int("recurring_retired", report.RecurringRetired).
			Int("concurrency_lost", report.ConcurrencyLost).
			Msg("dispatch pass complete")
	}
}

// ProcessScheduledByID dispatches a single one-off message immediately.
// Used by the queue worker and the send-now action. Returns nil when the
// message is no longer eligible.
func (d *Dispatcher) ProcessScheduledByID(ctx context.Context, id string) error {
	m, err := d.Scheduled.GetByID(id)
	if err != nil {
		return err
	}
	if m == nil {
		return apperrors.NewNotFound("scheduled message", id)
	}
	if m.Status != model.StatusPending {
		d.Log.Debug().Str("message_id", id).Str("status", string(m.Status)).Msg("message no longer pending, skipping")
		return nil
	}
	if m.RequiresApproval {
		d.Log.Debug().Str("message_id", id).Msg("message awaiting approval, skipping")
		return nil
	}

	report := &RunReport{}
	d.processScheduled(ctx, m, report)
	return nil
}

func (d *Dispatcher) processScheduled(ctx context.Context, m *model.ScheduledMessage, report *RunReport) {
	report.ScheduledAttempted++

	sendErr := d.Executor.Execute(ctx, m.ChannelID, m.RecipientPhone, m.Body)
	if sendErr != nil {
		if uerr := d.Scheduled.MarkFailed(m.ID, sendErr.Error()); uerr != nil {
			d.discard(uerr, m.ID, report)
			return
		}
		report.ScheduledFailed++
		d.Log.Warn().Str("message_id", m.ID).Err(sendErr).Msg("scheduled message dispatch failed")
		return
	}

	if uerr := d.Scheduled.MarkSent(m.ID, d.now()); uerr != nil {
		d.discard(uerr, m.ID, report)
		return
	}
	report.ScheduledSent++
	d.Log.Info().Str("message_id", m.ID).Str("channel", m.ChannelID).Msg("scheduled message sent")
}

func (d *Dispatcher) processRecurring(ctx context.Context, r *model.RecurringSchedule, report *RunReport) {
	report.RecurringAttempted++

	sendErr := d.Executor.Execute(ctx, r.ChannelID, r.RecipientPhone, r.Body)
	if sendErr != nil {
		// The cursor stays put so the same occurrence is retried on the
		// next pass. No error field exists on the rule.
		d.Log.Warn().Str("schedule_id", r.ID).Err(sendErr).Msg("recurring dispatch failed, will retry next pass")
		return
	}

	fired := r.NextExecutionDate
	next, err := recurrence.Roll(fired, recurrence.RuleOf(r))
	if err != nil {
		// A malformed rule should have been rejected at creation time.
		d.Log.Error().Str("schedule_id", r.ID).Err(err).Msg("cannot roll over recurring schedule")
		return
	}

	if r.EndDate != nil && afterDay(next, *r.EndDate) {
		if uerr := d.Recurring.Retire(r.ID, fired); uerr != nil {
			d.discard(uerr, r.ID, report)
			return
		}
		report.RecurringFired++
		report.RecurringRetired++
		d.Log.Info().Str("schedule_id", r.ID).Msg("recurring schedule fired and retired")
		return
	}

	if uerr := d.Recurring.Advance(r.ID, fired, next); uerr != nil {
		d.discard(uerr, r.ID, report)
		return
	}
	report.RecurringFired++
	d.Log.Info().Str("schedule_id", r.ID).Time("next", next).Msg("recurring schedule fired")
}

func (d *Dispatcher) discard(err error, id string, report *RunReport) {
	if errors.Is(err, apperrors.ErrConcurrencyLost) {
		report.ConcurrencyLost++
		d.Log.Debug().Str("id", id).Msg("occurrence claimed by another worker, discarding result")
		return
	}
	d.Log.Error().Str("id", id).Err(err).Msg("failed to record dispatch outcome")
}

// afterDay reports whether t falls on a later calendar day than bound.
func afterDay(t, bound time.Time) bool {
	ty, tm, td := t.Date()
	by, bm, bd := bound.Date()
	if ty != by {
		return ty > by
	}
	if tm != bm {
		return tm > bm
	}
	return td > bd
}
