package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"autolike_bot/internal/onebot"
	"autolike_bot/internal/scheduler"
	"autolike_bot/internal/storage"
	"autolike_bot/pkg/metrics"
)

// ErrUninitialized is returned by every operation on a Store that was never
// opened or has been closed.
var ErrUninitialized = errors.New("state: store is not initialized")

const dayLayout = "2006-01-02"

// Runtime is what the host hands the plugin at startup.
type Runtime struct {
	Log        *zap.SugaredLogger
	ConfigPath string // plugin configuration + stats
	DataDir    string // vip_likes.json and other data files
	Bridge     onebot.Caller
}

// Store owns the plugin configuration, stats, VIP counters and the
// proactive-like schedule, and is the only writer of their files.
// All methods are safe for concurrent use.
type Store struct {
	mu sync.Mutex
	rt *Runtime // nil before Open and after Close

	log     *zap.SugaredLogger
	api     *onebot.API
	clock   clockwork.Clock
	sched   *scheduler.Scheduler
	journal storage.Journal
	onDebug func(bool)

	// serialises stop+start pairs of the proactive-like job
	schedMu sync.Mutex
	// waits between send_like calls; replaced in tests
	sleep func(ctx context.Context, d time.Duration) error

	// cancelled by Close, stops an in-flight proactive pass between targets
	ctx    context.Context
	cancel context.CancelFunc

	cfg       Config
	vip       vipLikes
	selfID    string
	startedAt time.Time
	closing   bool
}

// Option customises Open.
type Option func(*Store)

// WithClock replaces the wall clock; it also drives the scheduler.
func WithClock(c clockwork.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithJournal records sent likes in j.
func WithJournal(j storage.Journal) Option {
	return func(s *Store) { s.journal = j }
}

// WithDebugSwitch calls fn with the "debug" flag after load and after every
// configuration change.
func WithDebugSwitch(fn func(debug bool)) Option {
	return func(s *Store) { s.onDebug = fn }
}

// Open initialises the store: it loads the configuration (writing defaults
// if the file is missing), loads the VIP counters, applies the day rollover,
// resolves the bot's own account id and starts the proactive-like job when
// enabled. Failing to resolve the account id is logged, not returned.
func Open(ctx context.Context, rt Runtime, opts ...Option) (*Store, error) {
	if rt.ConfigPath == "" || rt.DataDir == "" {
		return nil, errors.New("state: config path and data dir are required")
	}
	if rt.Bridge == nil {
		return nil, errors.New("state: remote bridge is required")
	}
	if rt.Log == nil {
		rt.Log = zap.NewNop().Sugar()
	}

	s := &Store{
		log:   rt.Log,
		api:   onebot.NewAPI(rt.Bridge),
		clock: clockwork.NewRealClock(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.sleep == nil {
		s.sleep = s.wait
	}

	sched, err := scheduler.New(rt.Log, scheduler.WithClock(s.clock))
	if err != nil {
		return nil, err
	}
	s.sched = sched
	s.ctx, s.cancel = context.WithCancel(context.Background())

	today := s.today()
	s.cfg = s.loadConfig(rt.ConfigPath)
	s.cfg.Stats.rollover(today)
	s.vip = s.loadVip(rt.DataDir)
	if s.vip.rollover(today) {
		s.persist(filepath.Join(rt.DataDir, VipLikesFile), s.vip)
	}

	if info, err := s.api.GetLoginInfo(ctx); err != nil {
		metrics.IncrementRemoteError(onebot.ActionGetLoginInfo)
		s.log.Warnw("state: could not resolve own account id", "err", err)
	} else {
		s.selfID = info.UserID.String()
	}

	s.startedAt = s.clock.Now()
	s.rt = &rt
	if s.onDebug != nil {
		s.onDebug(s.cfg.Debug)
	}

	if err := s.StartAutoLikeTimer(); err != nil {
		s.log.Errorw("state: start proactive-like job failed", "err", err)
	}
	s.log.Infow("state: initialised", "self_id", s.selfID, "config", rt.ConfigPath, "data_dir", rt.DataDir)
	return s, nil
}

// Close cancels every scheduled job, flushes configuration, stats and VIP
// counters, and releases the runtime. Later calls fail with ErrUninitialized.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.rt == nil || s.closing {
		s.mu.Unlock()
		return ErrUninitialized
	}
	s.closing = true
	s.mu.Unlock()

	// The scheduler waits for a running pass; cancelling first makes that
	// pass stop at the next target instead of finishing the list.
	s.cancel()
	if err := s.sched.Shutdown(); err != nil {
		s.log.Warnw("state: scheduler shutdown", "err", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveConfigLocked()
	s.saveVipLocked()
	s.rt = nil
	s.log.Infow("state: closed")
	return nil
}

// Config returns a copy of the current configuration.
func (s *Store) Config() (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return Config{}, err
	}
	return s.cfg.clone(), nil
}

// UpdateConfig merges patch over the current configuration, persists it and
// restarts the proactive-like job so interval and target changes apply
// immediately.
func (s *Store) UpdateConfig(patch ConfigPatch) (Config, error) {
	s.mu.Lock()
	if err := s.checkLocked(); err != nil {
		s.mu.Unlock()
		return Config{}, err
	}
	s.cfg = patch.Apply(s.cfg)
	s.saveConfigLocked()
	cfg := s.cfg.clone()
	s.mu.Unlock()

	if s.onDebug != nil {
		s.onDebug(cfg.Debug)
	}
	if err := s.RestartAutoLikeTimer(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ReplaceConfig sanitizes cfg and stores it as the whole configuration,
// stats included. The schedule is left as it is.
func (s *Store) ReplaceConfig(cfg Config) (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return Config{}, err
	}
	s.cfg = cfg.clone().Sanitized()
	s.saveConfigLocked()
	return s.cfg.clone(), nil
}

// SelfID returns the bot's account id as reported at startup, or "" if it
// could not be resolved.
func (s *Store) SelfID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return "", err
	}
	return s.selfID, nil
}

// VipLikeCount returns how many times userID was reciprocated today.
func (s *Store) VipLikeCount(userID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return 0, err
	}
	if s.vip.rollover(s.today()) {
		s.saveVipLocked()
	}
	return s.vip.counts[userID], nil
}

// IncrementVipLikeCount bumps userID's counter for today and writes the
// counters file before returning. It returns the new count.
func (s *Store) IncrementVipLikeCount(userID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return 0, err
	}
	s.vip.rollover(s.today())
	s.vip.counts[userID]++
	s.saveVipLocked()
	return s.vip.counts[userID], nil
}

// Stats returns the proactive-like counters after applying the day rollover.
func (s *Store) Stats() (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return Stats{}, err
	}
	s.cfg.Stats.rollover(s.today())
	return s.cfg.Stats, nil
}

// LoadDataFile reads name from the data directory into a T. A missing or
// unparsable file yields def; only an unopened store is an error.
func LoadDataFile[T any](s *Store, name string, def T) (T, error) {
	s.mu.Lock()
	if err := s.checkLocked(); err != nil {
		s.mu.Unlock()
		return def, err
	}
	dir := s.rt.DataDir
	s.mu.Unlock()

	path, err := dataPath(dir, name)
	if err != nil {
		s.log.Warnw("state: load data file", "name", name, "err", err)
		return def, nil
	}
	var v T
	if err := readJSON(path, &v); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			metrics.IncrementPersistError(name)
			s.log.Warnw("state: load data file, using default", "name", name, "err", err)
		}
		return def, nil
	}
	return v, nil
}

// SaveDataFile writes data as JSON to name in the data directory. Write
// failures are logged; only an unopened store is an error.
func (s *Store) SaveDataFile(name string, data any) error {
	s.mu.Lock()
	if err := s.checkLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	dir := s.rt.DataDir
	s.mu.Unlock()

	path, err := dataPath(dir, name)
	if err != nil {
		s.log.Warnw("state: save data file", "name", name, "err", err)
		return nil
	}
	s.persist(path, data)
	return nil
}

// Uptime returns the time since Open, e.g. "2d 3h 0m 12s" or "45s".
func (s *Store) Uptime() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return "", err
	}
	return FormatUptime(s.clock.Since(s.startedAt)), nil
}

// FormatUptime renders d starting from its coarsest non-zero unit.
func FormatUptime(d time.Duration) string {
	total := int64(d / time.Second)
	days := total / 86400
	hours := total % 86400 / 3600
	mins := total % 3600 / 60
	secs := total % 60
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, mins, secs)
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, mins, secs)
	case mins > 0:
		return fmt.Sprintf("%dm %ds", mins, secs)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}

// --- internal helpers ---

func (s *Store) checkLocked() error {
	if s.rt == nil || s.closing {
		return ErrUninitialized
	}
	return nil
}

func (s *Store) today() string {
	return s.clock.Now().Format(dayLayout)
}

func (s *Store) loadConfig(path string) Config {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg := Default()
		s.log.Infow("state: no configuration yet, writing defaults", "path", path)
		s.persist(path, cfg)
		return cfg
	}
	if err != nil {
		metrics.IncrementPersistError(filepath.Base(path))
		s.log.Warnw("state: read configuration, using defaults", "path", path, "err", err)
		return Default()
	}
	return Sanitize(b)
}

func (s *Store) loadVip(dir string) vipLikes {
	v := newVipLikes()
	err := readJSON(filepath.Join(dir, VipLikesFile), &v)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			metrics.IncrementPersistError(VipLikesFile)
			s.log.Warnw("state: read vip counters, starting empty", "err", err)
		}
		return newVipLikes()
	}
	return v
}

func (s *Store) saveConfigLocked() {
	s.persist(s.rt.ConfigPath, s.cfg)
}

func (s *Store) saveVipLocked() {
	s.persist(filepath.Join(s.rt.DataDir, VipLikesFile), s.vip)
}

// persist writes v to path; failures are logged and counted, never returned,
// and in-memory state is kept either way.
func (s *Store) persist(path string, v any) {
	if err := writeJSON(path, v); err != nil {
		metrics.IncrementPersistError(filepath.Base(path))
		s.log.Errorw("state: write failed", "path", path, "err", err)
	}
}

func (s *Store) wait(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.clock.After(d):
		return nil
	}
}
