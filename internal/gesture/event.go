package gesture

import (
	"github.com/tidwall/gjson"
)

// Kind tags the two gesture shapes.
type Kind int

const (
	KindThumbUp Kind = iota + 1 // profile like
	KindPoke
)

func (k Kind) String() string {
	switch k {
	case KindThumbUp:
		return "thumb_up"
	case KindPoke:
		return "poke"
	default:
		return "unknown"
	}
}

// Gesture is a classified inbound notification.
type Gesture struct {
	Kind     Kind
	UserID   int64 // who acted
	TargetID int64 // who was acted upon
	Count    int   // thumb-up only; 0 when the event does not say
	GroupID  int64 // poke only; 0 for a private poke
}

// Classify parses a raw OneBot notice. It reports false for anything that is
// not a thumb-up or poke aimed at someone.
//
// Thumb-up notices come as notify/profile_like; implementations name the
// actor operator_id and the count times, and often omit target_id because
// the target is always the receiving account, so self_id stands in.
func Classify(raw []byte) (Gesture, bool) {
	if !gjson.ValidBytes(raw) {
		return Gesture{}, false
	}
	ev := gjson.ParseBytes(raw)
	if ev.Get("post_type").String() != "notice" || ev.Get("notice_type").String() != "notify" {
		return Gesture{}, false
	}

	var g Gesture
	switch ev.Get("sub_type").String() {
	case "profile_like", "thumb_up":
		g = Gesture{
			Kind:     KindThumbUp,
			UserID:   firstInt(ev, "user_id", "operator_id"),
			TargetID: firstInt(ev, "target_id", "self_id"),
			Count:    int(firstInt(ev, "count", "times")),
		}
	case "poke":
		g = Gesture{
			Kind:     KindPoke,
			UserID:   ev.Get("user_id").Int(),
			TargetID: ev.Get("target_id").Int(),
			GroupID:  ev.Get("group_id").Int(),
		}
	default:
		return Gesture{}, false
	}

	if g.UserID <= 0 || g.TargetID <= 0 {
		return Gesture{}, false
	}
	return g, true
}

func firstInt(ev gjson.Result, paths ...string) int64 {
	for _, p := range paths {
		if v := ev.Get(p); v.Exists() {
			return v.Int()
		}
	}
	return 0
}
