package state

import (
	"context"
	"time"

	"autolike_bot/internal/onebot"
	"autolike_bot/internal/storage"
	"autolike_bot/pkg/metrics"
)

// AutoLikeJob is the scheduler name of the proactive-like job.
const AutoLikeJob = "autoLike"

// likeDelay spaces send_like calls; the remote side rate-limits them.
const likeDelay = time.Second

// LikeReport summarises one proactive-like pass.
type LikeReport struct {
	Targets int
	Sent    int
	Failed  int
}

// StartAutoLikeTimer (re)registers the proactive-like job from the current
// configuration. Any existing job is cancelled first; when the feature is off
// or there are no targets nothing new is registered.
func (s *Store) StartAutoLikeTimer() error {
	s.mu.Lock()
	if err := s.checkLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	enabled := s.cfg.AutoLikeSomeoneEnabled
	targets := len(s.cfg.AutoLikeUsers)
	interval := time.Duration(s.cfg.AutoLikeInterval) * time.Minute
	s.mu.Unlock()

	if !enabled || targets == 0 {
		s.sched.Cancel(AutoLikeJob)
		s.log.Debugw("state: proactive likes off", "enabled", enabled, "targets", targets)
		return nil
	}
	return s.sched.Every(AutoLikeJob, interval, func() {
		s.runAutoLike(s.ctx)
	})
}

// StopAutoLikeTimer cancels future runs of the proactive-like job. A pass
// already in progress finishes its target list.
func (s *Store) StopAutoLikeTimer() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return err
	}
	s.sched.Cancel(AutoLikeJob)
	return nil
}

// RestartAutoLikeTimer is StopAutoLikeTimer followed by StartAutoLikeTimer.
func (s *Store) RestartAutoLikeTimer() error {
	s.schedMu.Lock()
	defer s.schedMu.Unlock()
	if err := s.StopAutoLikeTimer(); err != nil {
		return err
	}
	return s.StartAutoLikeTimer()
}

// AutoLikeActive reports whether the proactive-like job is registered.
func (s *Store) AutoLikeActive() bool {
	if s.sched == nil {
		return false
	}
	return s.sched.Active(AutoLikeJob)
}

// ExecuteAutoLikeNow runs one proactive-like pass right away, outside the
// schedule and regardless of the on/off switch.
func (s *Store) ExecuteAutoLikeNow(ctx context.Context) (LikeReport, error) {
	s.mu.Lock()
	err := s.checkLocked()
	s.mu.Unlock()
	if err != nil {
		return LikeReport{}, err
	}
	return s.runAutoLike(ctx), nil
}

// runAutoLike sends one send_like per configured target, in order, one
// second apart. A failing target is logged and skipped. Only a cancelled
// context ends the pass early.
func (s *Store) runAutoLike(ctx context.Context) LikeReport {
	s.mu.Lock()
	if s.checkLocked() != nil {
		s.mu.Unlock()
		return LikeReport{}
	}
	users := s.cfg.clone().AutoLikeUsers
	times := s.cfg.AutoLikeTimes
	s.mu.Unlock()

	report := LikeReport{Targets: len(users)}
	start := s.clock.Now()
	s.log.Debugw("autolike: pass started", "targets", len(users), "times", times)

	for i, uid := range users {
		if i > 0 {
			if err := s.sleep(ctx, likeDelay); err != nil {
				s.log.Infow("autolike: pass interrupted", "sent", report.Sent, "remaining", len(users)-i)
				break
			}
		}

		err := s.api.SendLike(ctx, uid, times)
		status := "ok"
		switch {
		case err == nil:
		case onebot.IsNoData(err):
			// send_like commonly answers with an empty body on success
			status = "empty"
		default:
			status = "failed"
		}
		metrics.IncrementLikeSent(status)
		s.record(ctx, storage.Entry{Kind: storage.KindSendLike, UserID: uid, OK: status != "failed", Detail: errText(err)})

		if status == "failed" {
			report.Failed++
			metrics.IncrementRemoteError(onebot.ActionSendLike)
			s.log.Warnw("autolike: send_like failed", "user_id", uid, "err", err)
			continue
		}
		report.Sent++
		s.addProcessed()
		s.log.Debugw("autolike: liked", "user_id", uid, "times", times)
	}

	if report.Sent > 0 {
		s.mu.Lock()
		if s.rt != nil {
			s.saveConfigLocked()
		}
		s.mu.Unlock()
	}
	s.log.Infow("autolike: pass complete",
		"duration", s.clock.Since(start).String(),
		"sent", report.Sent,
		"failed", report.Failed,
		"total", report.Targets)
	return report
}

func (s *Store) addProcessed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rt == nil {
		return
	}
	s.cfg.Stats.rollover(s.today())
	s.cfg.Stats.Processed++
	s.cfg.Stats.TodayProcessed++
}

func (s *Store) record(ctx context.Context, e storage.Entry) {
	if s.journal == nil {
		return
	}
	e.CreatedAt = s.clock.Now()
	if err := s.journal.Record(context.WithoutCancel(ctx), e); err != nil {
		metrics.IncrementDatabaseError("record")
		s.log.Warnw("autolike: journal write failed", "err", err)
	}
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
