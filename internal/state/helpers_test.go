package state

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"autolike_bot/internal/onebot"
)

type call struct {
	Action string
	Params map[string]any
}

// fakeBridge records every action and answers from a per-action table.
type fakeBridge struct {
	mu      sync.Mutex
	calls   []call
	answers map[string]func(params map[string]any) (json.RawMessage, error)
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{answers: map[string]func(map[string]any) (json.RawMessage, error){
		onebot.ActionGetLoginInfo: func(map[string]any) (json.RawMessage, error) {
			return json.RawMessage(`{"user_id":10001,"nickname":"bot"}`), nil
		},
	}}
}

func (f *fakeBridge) on(action string, fn func(params map[string]any) (json.RawMessage, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers[action] = fn
}

func (f *fakeBridge) Call(_ context.Context, action string, params any) (json.RawMessage, error) {
	var p map[string]any
	if params != nil {
		b, _ := json.Marshal(params)
		_ = json.Unmarshal(b, &p)
	}
	f.mu.Lock()
	f.calls = append(f.calls, call{Action: action, Params: p})
	fn := f.answers[action]
	f.mu.Unlock()
	if fn == nil {
		return nil, onebot.ErrNoData
	}
	return fn(p)
}

func (f *fakeBridge) callsTo(action string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.Action == action {
			out = append(out, c)
		}
	}
	return out
}

type testEnv struct {
	store  *Store
	bridge *fakeBridge
	clock  *clockwork.FakeClock
	dir    string
	delays []time.Duration
}

func (e *testEnv) configPath() string { return filepath.Join(e.dir, "config.json") }

func (e *testEnv) readFile(t *testing.T, name string) map[string]any {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(e.dir, name))
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(b, &out))
	return out
}

var testNow = time.Date(2026, 10, 17, 10, 0, 0, 0, time.Local)

// openTestStore opens a Store in a temp dir. initialConfig, when not empty,
// is written as the configuration file before opening.
func openTestStore(t *testing.T, bridge *fakeBridge, initialConfig string) *testEnv {
	t.Helper()
	env := &testEnv{bridge: bridge, dir: t.TempDir()}
	if initialConfig != "" {
		require.NoError(t, os.WriteFile(env.configPath(), []byte(initialConfig), 0o600))
	}
	openAt(t, env, testNow)
	return env
}

// openAt opens env's directory with a fake clock set to now.
func openAt(t *testing.T, env *testEnv, now time.Time) {
	t.Helper()
	env.clock = clockwork.NewFakeClockAt(now)
	s, err := Open(context.Background(), Runtime{
		ConfigPath: env.configPath(),
		DataDir:    env.dir,
		Bridge:     env.bridge,
	}, WithClock(env.clock), func(s *Store) {
		s.sleep = func(_ context.Context, d time.Duration) error {
			env.delays = append(env.delays, d)
			return nil
		}
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	env.store = s
}
