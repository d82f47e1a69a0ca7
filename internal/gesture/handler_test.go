package gesture

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autolike_bot/internal/onebot"
	"autolike_bot/internal/state"
	"autolike_bot/internal/storage"
)

const self int64 = 10001

type call struct {
	Action string
	Params map[string]any
}

type fakeBridge struct {
	mu      sync.Mutex
	calls   []call
	answers map[string]func(params map[string]any) (json.RawMessage, error)
}

// newFakeBridge answers as if every user is a non-VIP friend and every poke
// succeeds with an empty body.
func newFakeBridge() *fakeBridge {
	return &fakeBridge{answers: map[string]func(map[string]any) (json.RawMessage, error){
		onebot.ActionGetFriendList: func(map[string]any) (json.RawMessage, error) {
			return json.RawMessage(`[{"user_id":100},{"user_id":200},{"user_id":300}]`), nil
		},
		onebot.ActionGetStrangerInfo: func(p map[string]any) (json.RawMessage, error) {
			return json.RawMessage(`{"user_id":100,"vip":false}`), nil
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

func (f *fakeBridge) all() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func (f *fakeBridge) callsTo(action string) []call {
	var out []call
	for _, c := range f.all() {
		if c.Action == action {
			out = append(out, c)
		}
	}
	return out
}

type fakeState struct {
	mu     sync.Mutex
	cfg    state.Config
	selfID string
	counts map[int64]int
	incs   []int64
}

func newFakeState() *fakeState {
	return &fakeState{cfg: state.Default(), selfID: "10001", counts: map[int64]int{}}
}

func (s *fakeState) Config() (state.Config, error) { return s.cfg, nil }
func (s *fakeState) SelfID() (string, error)       { return s.selfID, nil }

func (s *fakeState) VipLikeCount(uid int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[uid], nil
}

func (s *fakeState) IncrementVipLikeCount(uid int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[uid]++
	s.incs = append(s.incs, uid)
	return s.counts[uid], nil
}

type memJournal struct {
	mu      sync.Mutex
	entries []storage.Entry
}

func (j *memJournal) Record(_ context.Context, e storage.Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
	return nil
}

func (j *memJournal) Recent(context.Context, int) ([]storage.Entry, error) { return nil, nil }
func (j *memJournal) Close() error                                          { return nil }

func vipAnswer(map[string]any) (json.RawMessage, error) {
	return json.RawMessage(`{"user_id":100,"vip":true,"vip_level":3}`), nil
}

func TestHandle_ThumbUpFromFriend(t *testing.T) {
	bridge := newFakeBridge()
	st := newFakeState()
	journal := &memJournal{}
	h := NewHandler(st, bridge, nil, WithJournal(journal))

	out := h.Handle(context.Background(), Gesture{Kind: KindThumbUp, UserID: 100, TargetID: self, Count: 1})
	assert.Equal(t, OutcomeReciprocated, out)

	pokes := bridge.callsTo(onebot.ActionFriendPoke)
	require.Len(t, pokes, 1)
	assert.Equal(t, map[string]any{"user_id": float64(100)}, pokes[0].Params)
	assert.Empty(t, bridge.callsTo(onebot.ActionGroupPoke))
	assert.Equal(t, []int64{100}, st.incs)

	require.Len(t, journal.entries, 1)
	assert.Equal(t, storage.Entry{Kind: storage.KindFriendPoke, UserID: 100, OK: true}, journal.entries[0])
}

func TestHandle_GroupPoke(t *testing.T) {
	bridge := newFakeBridge()
	st := newFakeState()
	h := NewHandler(st, bridge, nil)

	out := h.Handle(context.Background(), Gesture{Kind: KindPoke, UserID: 200, TargetID: self, GroupID: 555})
	assert.Equal(t, OutcomeReciprocated, out)

	pokes := bridge.callsTo(onebot.ActionGroupPoke)
	require.Len(t, pokes, 1)
	assert.Equal(t, map[string]any{"group_id": float64(555), "user_id": float64(200)}, pokes[0].Params)
	assert.Empty(t, bridge.callsTo(onebot.ActionFriendPoke))
	assert.Equal(t, []int64{200}, st.incs)
}

func TestHandle_PrivatePoke(t *testing.T) {
	bridge := newFakeBridge()
	h := NewHandler(newFakeState(), bridge, nil)

	out := h.Handle(context.Background(), Gesture{Kind: KindPoke, UserID: 200, TargetID: self})
	assert.Equal(t, OutcomeReciprocated, out)
	assert.Len(t, bridge.callsTo(onebot.ActionFriendPoke), 1)
	assert.Empty(t, bridge.callsTo(onebot.ActionGroupPoke))
}

func TestHandle_NotAimedAtUs(t *testing.T) {
	bridge := newFakeBridge()
	st := newFakeState()
	h := NewHandler(st, bridge, nil)

	out := h.Handle(context.Background(), Gesture{Kind: KindThumbUp, UserID: 100, TargetID: 20002})
	assert.Equal(t, OutcomeNotSelf, out)
	assert.Empty(t, bridge.all(), "no remote calls")
	assert.Empty(t, st.incs)
}

func TestHandle_SelfUnknown(t *testing.T) {
	bridge := newFakeBridge()
	st := newFakeState()
	st.selfID = ""
	h := NewHandler(st, bridge, nil)

	assert.Equal(t, OutcomeNotSelf, h.Handle(context.Background(), Gesture{Kind: KindPoke, UserID: 100, TargetID: self}))
	assert.Empty(t, bridge.all())
}

func TestHandle_Disabled(t *testing.T) {
	bridge := newFakeBridge()
	st := newFakeState()
	st.cfg.AutoLikeEnabled = false
	h := NewHandler(st, bridge, nil)

	assert.Equal(t, OutcomeDisabled, h.Handle(context.Background(), Gesture{Kind: KindThumbUp, UserID: 100, TargetID: self}))
	assert.Empty(t, bridge.all())
}

func TestHandle_Blacklisted(t *testing.T) {
	bridge := newFakeBridge()
	st := newFakeState()
	st.cfg.Blacklist = state.IDList{100}
	h := NewHandler(st, bridge, nil)

	assert.Equal(t, OutcomeBlacklisted, h.Handle(context.Background(), Gesture{Kind: KindThumbUp, UserID: 100, TargetID: self}))
	assert.Empty(t, bridge.callsTo(onebot.ActionGetFriendList), "friend list is never fetched")
	assert.Empty(t, bridge.all())
	assert.Empty(t, st.incs)
}

func TestHandle_NotFriend(t *testing.T) {
	bridge := newFakeBridge()
	st := newFakeState()
	h := NewHandler(st, bridge, nil)

	assert.Equal(t, OutcomeNotFriend, h.Handle(context.Background(), Gesture{Kind: KindThumbUp, UserID: 999, TargetID: self}))
	assert.Empty(t, bridge.callsTo(onebot.ActionGetStrangerInfo))
	assert.Empty(t, bridge.callsTo(onebot.ActionFriendPoke))
	assert.Empty(t, st.incs)
}

func TestHandle_FriendListFailureAborts(t *testing.T) {
	bridge := newFakeBridge()
	bridge.on(onebot.ActionGetFriendList, func(map[string]any) (json.RawMessage, error) {
		return nil, errors.New("timeout")
	})
	st := newFakeState()
	h := NewHandler(st, bridge, nil)

	assert.Equal(t, OutcomeFriendCheckFailed, h.Handle(context.Background(), Gesture{Kind: KindThumbUp, UserID: 100, TargetID: self}))
	assert.Empty(t, bridge.callsTo(onebot.ActionFriendPoke))
	assert.Empty(t, st.incs)
}

func TestHandle_StrangerInfoFailureProceeds(t *testing.T) {
	bridge := newFakeBridge()
	bridge.on(onebot.ActionGetStrangerInfo, func(map[string]any) (json.RawMessage, error) {
		return nil, errors.New("timeout")
	})
	st := newFakeState()
	h := NewHandler(st, bridge, nil)

	assert.Equal(t, OutcomeReciprocated, h.Handle(context.Background(), Gesture{Kind: KindThumbUp, UserID: 100, TargetID: self}))
	assert.Len(t, bridge.callsTo(onebot.ActionFriendPoke), 1)
	assert.Equal(t, []int64{100}, st.incs)
}

func TestHandle_VipLimit(t *testing.T) {
	tests := []struct {
		name  string
		count int
		want  Outcome
	}{
		{name: "at limit", count: 10, want: OutcomeVipLimited},
		{name: "over limit", count: 11, want: OutcomeVipLimited},
		{name: "one below", count: 9, want: OutcomeReciprocated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bridge := newFakeBridge()
			bridge.on(onebot.ActionGetStrangerInfo, vipAnswer)
			st := newFakeState()
			st.cfg.VipLikeLimit = 10
			st.counts[100] = tt.count
			h := NewHandler(st, bridge, nil)

			out := h.Handle(context.Background(), Gesture{Kind: KindThumbUp, UserID: 100, TargetID: self})
			assert.Equal(t, tt.want, out)
			if tt.want == OutcomeVipLimited {
				assert.Empty(t, bridge.callsTo(onebot.ActionFriendPoke))
				assert.Equal(t, tt.count, st.counts[100])
			} else {
				assert.Len(t, bridge.callsTo(onebot.ActionFriendPoke), 1)
				assert.Equal(t, tt.count+1, st.counts[100])
			}
		})
	}
}

func TestHandle_ZeroVipLimitBlocksVips(t *testing.T) {
	bridge := newFakeBridge()
	bridge.on(onebot.ActionGetStrangerInfo, vipAnswer)
	st := newFakeState()
	st.cfg.VipLikeLimit = 0
	h := NewHandler(st, bridge, nil)

	assert.Equal(t, OutcomeVipLimited, h.Handle(context.Background(), Gesture{Kind: KindPoke, UserID: 100, TargetID: self}))
}

func TestHandle_NonVipIgnoresLimit(t *testing.T) {
	bridge := newFakeBridge()
	st := newFakeState()
	st.cfg.VipLikeLimit = 0
	st.counts[100] = 50
	h := NewHandler(st, bridge, nil)

	assert.Equal(t, OutcomeReciprocated, h.Handle(context.Background(), Gesture{Kind: KindThumbUp, UserID: 100, TargetID: self}))
	assert.Equal(t, 51, st.counts[100], "the counter still moves for non-vips")
}

func TestHandle_PokeFailureDoesNotCount(t *testing.T) {
	bridge := newFakeBridge()
	bridge.on(onebot.ActionGroupPoke, func(map[string]any) (json.RawMessage, error) {
		return nil, &onebot.ActionError{Action: onebot.ActionGroupPoke, Status: "failed", Retcode: 1200, Message: "not in group"}
	})
	st := newFakeState()
	journal := &memJournal{}
	h := NewHandler(st, bridge, nil, WithJournal(journal))

	out := h.Handle(context.Background(), Gesture{Kind: KindPoke, UserID: 200, TargetID: self, GroupID: 555})
	assert.Equal(t, OutcomeReciprocateFailed, out)
	assert.Empty(t, st.incs)
	require.Len(t, journal.entries, 1)
	assert.False(t, journal.entries[0].OK)
	assert.Equal(t, int64(555), journal.entries[0].GroupID)
	assert.NotEmpty(t, journal.entries[0].Detail)
}

func TestHandleEvent(t *testing.T) {
	bridge := newFakeBridge()
	st := newFakeState()
	h := NewHandler(st, bridge, nil)

	out := h.HandleEvent(context.Background(),
		[]byte(`{"post_type":"notice","notice_type":"notify","sub_type":"profile_like","operator_id":100,"times":1,"self_id":10001}`))
	assert.Equal(t, OutcomeReciprocated, out)

	out = h.HandleEvent(context.Background(), []byte(`{"post_type":"notice","notice_type":"friend_add","user_id":100}`))
	assert.Equal(t, OutcomeIgnored, out)
	assert.Len(t, bridge.callsTo(onebot.ActionFriendPoke), 1)
}

func TestHandle_UnknownKindIsIgnored(t *testing.T) {
	bridge := newFakeBridge()
	st := newFakeState()
	h := NewHandler(st, bridge, nil)

	out := h.Handle(context.Background(), Gesture{Kind: Kind(7), UserID: 100, TargetID: self})
	assert.Equal(t, OutcomeIgnored, out)
	assert.Empty(t, bridge.all())
	assert.Empty(t, st.incs)
}
