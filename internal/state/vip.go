package state

import (
	"encoding/json"
	"strconv"
)

// VipLikesFile holds the per-user daily reciprocation counters.
const VipLikesFile = "vip_likes.json"

const vipResetDayKey = "lastVipLikeResetDay"

// vipLikes is stored as a flat object, user id → count, with the day marker
// under a reserved key:
//
//	{"10001": 3, "10002": 1, "lastVipLikeResetDay": "2026-10-17"}
type vipLikes struct {
	counts   map[int64]int
	resetDay string
}

func newVipLikes() vipLikes {
	return vipLikes{counts: make(map[int64]int)}
}

// rollover clears all counters when today differs from the marker.
func (v *vipLikes) rollover(today string) bool {
	if v.resetDay == today {
		return false
	}
	v.counts = make(map[int64]int)
	v.resetDay = today
	return true
}

func (v vipLikes) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, len(v.counts)+1)
	for id, n := range v.counts {
		obj[strconv.FormatInt(id, 10)] = n
	}
	obj[vipResetDayKey] = v.resetDay
	return json.Marshal(obj)
}

// UnmarshalJSON keeps numeric keys with non-negative whole counts and the
// day marker; everything else is dropped.
func (v *vipLikes) UnmarshalJSON(b []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	out := newVipLikes()
	for k, raw := range obj {
		if k == vipResetDayKey {
			_ = json.Unmarshal(raw, &out.resetDay)
			continue
		}
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		if n, ok := parseWhole(raw); ok && n >= 0 {
			out.counts[id] = int(n)
		}
	}
	*v = out
	return nil
}

