package state

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Config is the plugin configuration, persisted as JSON together with Stats.
type Config struct {
	Enabled bool `json:"enabled"`
	Debug   bool `json:"debug"`

	// AutoLikeEnabled switches gesture reciprocation on.
	AutoLikeEnabled bool   `json:"autoLikeEnabled"`
	Blacklist       IDList `json:"blacklist"`
	// VipLikeLimit caps reciprocations per VIP user per day.
	VipLikeLimit int `json:"vipLikeLimit"`

	// AutoLikeSomeoneEnabled switches the proactive-like job on.
	AutoLikeSomeoneEnabled bool   `json:"autoLikeSomeoneEnabled"`
	AutoLikeInterval       int    `json:"autoLikeInterval"` // minutes
	AutoLikeTimes          int    `json:"autoLikeTimes"`    // likes per send_like call
	AutoLikeUsers          IDList `json:"autoLikeUsers"`

	Stats Stats `json:"stats"`
}

// Stats counts proactive likes that went through.
type Stats struct {
	Processed      int    `json:"processed"`
	TodayProcessed int    `json:"todayProcessed"`
	LastUpdateDay  string `json:"lastUpdateDay"`
}

// rollover zeroes the daily counter when today differs from the marker.
func (s *Stats) rollover(today string) bool {
	if s.LastUpdateDay == today {
		return false
	}
	s.TodayProcessed = 0
	s.LastUpdateDay = today
	return true
}

const (
	maxLikeTimes = 20
	// maxLikeInterval is one year in minutes; larger values would also
	// overflow time.Duration further down.
	maxLikeInterval = 366 * 24 * 60
)

// Default returns the configuration used for absent or invalid fields.
func Default() Config {
	return Config{
		Enabled:                true,
		Debug:                  false,
		AutoLikeEnabled:        true,
		Blacklist:              IDList{},
		VipLikeLimit:           10,
		AutoLikeSomeoneEnabled: false,
		AutoLikeInterval:       60,
		AutoLikeTimes:          10,
		AutoLikeUsers:          IDList{},
	}
}

func validInterval(n int) bool { return n >= 1 && n <= maxLikeInterval }
func validTimes(n int) bool    { return n >= 1 && n <= maxLikeTimes }
func validLimit(n int) bool    { return n >= 0 }
func validCount(n int) bool    { return n >= 0 }

// Sanitize decodes persisted configuration field by field. A field that is
// absent, of the wrong JSON type or out of range takes its default; unknown
// fields are dropped. Input that is not a JSON object yields Default().
// Sanitize never fails and Sanitize(marshal(Sanitize(x))) == Sanitize(x).
func Sanitize(raw []byte) Config {
	cfg := Default()

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return cfg
	}

	decodeBool(fields, "enabled", &cfg.Enabled)
	decodeBool(fields, "debug", &cfg.Debug)
	decodeBool(fields, "autoLikeEnabled", &cfg.AutoLikeEnabled)
	decodeIDs(fields, "blacklist", &cfg.Blacklist)
	decodeInt(fields, "vipLikeLimit", &cfg.VipLikeLimit, validLimit)
	decodeBool(fields, "autoLikeSomeoneEnabled", &cfg.AutoLikeSomeoneEnabled)
	decodeInt(fields, "autoLikeInterval", &cfg.AutoLikeInterval, validInterval)
	decodeInt(fields, "autoLikeTimes", &cfg.AutoLikeTimes, validTimes)
	decodeIDs(fields, "autoLikeUsers", &cfg.AutoLikeUsers)

	if rawStats, ok := fields["stats"]; ok {
		var sf map[string]json.RawMessage
		if json.Unmarshal(rawStats, &sf) == nil {
			decodeInt(sf, "processed", &cfg.Stats.Processed, validCount)
			decodeInt(sf, "todayProcessed", &cfg.Stats.TodayProcessed, validCount)
			if v, ok := sf["lastUpdateDay"]; ok {
				var s string
				if json.Unmarshal(v, &s) == nil {
					cfg.Stats.LastUpdateDay = s
				}
			}
		}
	}
	return cfg.Sanitized()
}

// Sanitized applies the value rules to an already typed configuration:
// out-of-range numbers fall back to defaults, lists lose invalid ids and the
// blacklist loses duplicates.
func (c Config) Sanitized() Config {
	def := Default()
	out := c
	if !validLimit(out.VipLikeLimit) {
		out.VipLikeLimit = def.VipLikeLimit
	}
	if !validInterval(out.AutoLikeInterval) {
		out.AutoLikeInterval = def.AutoLikeInterval
	}
	if !validTimes(out.AutoLikeTimes) {
		out.AutoLikeTimes = def.AutoLikeTimes
	}
	if !validCount(out.Stats.Processed) {
		out.Stats.Processed = 0
	}
	if !validCount(out.Stats.TodayProcessed) {
		out.Stats.TodayProcessed = 0
	}
	out.Blacklist = out.Blacklist.valid().unique()
	out.AutoLikeUsers = out.AutoLikeUsers.valid()
	return out
}

// IsBlacklisted reports whether userID is on the blacklist.
func (c Config) IsBlacklisted(userID int64) bool {
	return slices.Contains(c.Blacklist, userID)
}

func (c Config) clone() Config {
	out := c
	out.Blacklist = slices.Clone(c.Blacklist)
	out.AutoLikeUsers = slices.Clone(c.AutoLikeUsers)
	return out
}

// ConfigPatch is a partial configuration update. Nil fields are left alone.
// List fields accept either a JSON array or a comma-separated string, e.g.
//
//	{"autoLikeUsers": "10001, 10002", "blacklist": [42]}
type ConfigPatch struct {
	Enabled                *bool   `json:"enabled,omitempty"`
	Debug                  *bool   `json:"debug,omitempty"`
	AutoLikeEnabled        *bool   `json:"autoLikeEnabled,omitempty"`
	Blacklist              *IDList `json:"blacklist,omitempty"`
	VipLikeLimit           *int    `json:"vipLikeLimit,omitempty"`
	AutoLikeSomeoneEnabled *bool   `json:"autoLikeSomeoneEnabled,omitempty"`
	AutoLikeInterval       *int    `json:"autoLikeInterval,omitempty"`
	AutoLikeTimes          *int    `json:"autoLikeTimes,omitempty"`
	AutoLikeUsers          *IDList `json:"autoLikeUsers,omitempty"`
}

// Apply merges the set fields over base. Out-of-range numbers keep the base
// value.
func (p ConfigPatch) Apply(base Config) Config {
	out := base.clone()
	setBool(&out.Enabled, p.Enabled)
	setBool(&out.Debug, p.Debug)
	setBool(&out.AutoLikeEnabled, p.AutoLikeEnabled)
	setBool(&out.AutoLikeSomeoneEnabled, p.AutoLikeSomeoneEnabled)
	setInt(&out.VipLikeLimit, p.VipLikeLimit, validLimit)
	setInt(&out.AutoLikeInterval, p.AutoLikeInterval, validInterval)
	setInt(&out.AutoLikeTimes, p.AutoLikeTimes, validTimes)
	if p.Blacklist != nil {
		out.Blacklist = slices.Clone(*p.Blacklist)
	}
	if p.AutoLikeUsers != nil {
		out.AutoLikeUsers = slices.Clone(*p.AutoLikeUsers)
	}
	return out.Sanitized()
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int, ok func(int) bool) {
	if v != nil && ok(*v) {
		*dst = *v
	}
}

// IDList is an ordered list of user identifiers. In JSON it is an array of
// numbers (numeric strings are tolerated) or a single comma-separated string.
// Tokens that are not positive integers are dropped; it is always stored and
// written back as an array.
type IDList []int64

// ParseIDList splits a comma-separated list, skipping unparsable tokens.
func ParseIDList(s string) IDList {
	out := IDList{}
	for _, tok := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '，' }) {
		n, err := strconv.ParseInt(strings.TrimSpace(tok), 10, 64)
		if err != nil || n <= 0 {
			continue
		}
		out = append(out, n)
	}
	return out
}

// UnmarshalJSON accepts an array or a comma-separated string.
func (l *IDList) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*l = ParseIDList(s)
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(b, &items); err != nil || items == nil {
		return fmt.Errorf("id list: want array or comma-separated string, got %.32s", string(b))
	}
	out := IDList{}
	for _, it := range items {
		if n, ok := parseID(it); ok {
			out = append(out, n)
		}
	}
	*l = out
	return nil
}

func (l IDList) valid() IDList {
	out := make(IDList, 0, len(l))
	for _, id := range l {
		if id > 0 {
			out = append(out, id)
		}
	}
	return out
}

func (l IDList) unique() IDList {
	seen := make(map[int64]struct{}, len(l))
	out := make(IDList, 0, len(l))
	for _, id := range l {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func parseID(raw json.RawMessage) (int64, bool) {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		return n, err == nil && n > 0
	}
	n, ok := parseWhole(raw)
	return n, ok && n > 0
}

// parseWhole accepts JSON numbers with no fractional part.
func parseWhole(raw json.RawMessage) (int64, bool) {
	var f float64
	if string(raw) == "null" {
		return 0, false
	}
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, false
	}
	if math.Trunc(f) != f || math.Abs(f) > 1<<53 {
		return 0, false
	}
	return int64(f), true
}

func decodeBool(fields map[string]json.RawMessage, key string, dst *bool) {
	v, ok := fields[key]
	if !ok {
		return
	}
	var b bool
	if string(v) != "null" && json.Unmarshal(v, &b) == nil {
		*dst = b
	}
}

func decodeInt(fields map[string]json.RawMessage, key string, dst *int, valid func(int) bool) {
	v, ok := fields[key]
	if !ok {
		return
	}
	n, ok := parseWhole(v)
	if ok && n >= math.MinInt32 && n <= math.MaxInt32 && valid(int(n)) {
		*dst = int(n)
	}
}

func decodeIDs(fields map[string]json.RawMessage, key string, dst *IDList) {
	v, ok := fields[key]
	if !ok {
		return
	}
	var l IDList
	if l.UnmarshalJSON(v) == nil {
		*dst = l
	}
}
