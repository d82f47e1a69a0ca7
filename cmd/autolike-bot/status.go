package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"autolike_bot/internal/state"
)

// runInfoFile is written by `run` on shutdown and read by `status`.
const runInfoFile = "last_run.json"

type runInfo struct {
	Version   string    `json:"version"`
	StoppedAt time.Time `json:"stoppedAt"`
	Uptime    string    `json:"uptime"`
}

func saveRunInfo(store *state.Store, version string) error {
	up, err := store.Uptime()
	if err != nil {
		return err
	}
	return store.SaveDataFile(runInfoFile, runInfo{
		Version:   version,
		StoppedAt: time.Now(),
		Uptime:    up,
	})
}

func printStatus(w io.Writer, store *state.Store) error {
	cfg, err := store.Config()
	if err != nil {
		return err
	}
	stats, err := store.Stats()
	if err != nil {
		return err
	}
	self, err := store.SelfID()
	if err != nil {
		return err
	}
	last, err := state.LoadDataFile(store, runInfoFile, runInfo{})
	if err != nil {
		return err
	}

	if self == "" {
		self = "unknown"
	}
	fmt.Fprintf(w, "self id:          %s\n", self)
	fmt.Fprintf(w, "poke back:        %s (blacklist %d, vip limit %d/day)\n",
		onOff(cfg.AutoLikeEnabled), len(cfg.Blacklist), cfg.VipLikeLimit)
	fmt.Fprintf(w, "proactive likes:  %s (%d targets, %d likes every %d min)\n",
		onOff(cfg.AutoLikeSomeoneEnabled), len(cfg.AutoLikeUsers), cfg.AutoLikeTimes, cfg.AutoLikeInterval)
	fmt.Fprintf(w, "processed:        %d total, %d today\n", stats.Processed, stats.TodayProcessed)
	if last.StoppedAt.IsZero() {
		fmt.Fprintln(w, "last run:         none")
		return nil
	}
	fmt.Fprintf(w, "last run:         %s, up %s, stopped %s\n",
		last.Version, last.Uptime, last.StoppedAt.Local().Format(time.DateTime))
	return nil
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// importConfig replaces the plugin configuration with raw, sanitized. The
// counters in stats belong to the running install and are kept.
func importConfig(store *state.Store, raw []byte) (state.Config, error) {
	cur, err := store.Config()
	if err != nil {
		return state.Config{}, err
	}
	cfg := state.Sanitize(raw)
	cfg.Stats = cur.Stats
	return store.ReplaceConfig(cfg)
}

// StatusCmd prints the plugin configuration, counters and the last run.
type StatusCmd struct{}

func (StatusCmd) Run(g *globals) error {
	a, err := setup(g)
	if err != nil {
		return err
	}
	defer a.close()

	store, err := a.openState(context.Background())
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	defer store.Close(context.Background())

	return printStatus(os.Stdout, store)
}

// ImportConfigCmd loads a plugin configuration from a JSON file.
type ImportConfigCmd struct {
	File string `arg:"" type:"existingfile" help:"JSON configuration to import"`
}

func (c ImportConfigCmd) Run(g *globals) error {
	raw, err := os.ReadFile(c.File)
	if err != nil {
		return err
	}
	a, err := setup(g)
	if err != nil {
		return err
	}
	defer a.close()

	store, err := a.openState(context.Background())
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	defer store.Close(context.Background())

	cfg, err := importConfig(store, raw)
	if err != nil {
		return err
	}
	fmt.Printf("imported %s: %d blacklisted, %d like targets\n", c.File, len(cfg.Blacklist), len(cfg.AutoLikeUsers))
	return nil
}
