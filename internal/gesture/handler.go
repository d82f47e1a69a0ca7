package gesture

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"autolike_bot/internal/onebot"
	"autolike_bot/internal/state"
	"autolike_bot/internal/storage"
	"autolike_bot/pkg/metrics"
)

// State is the part of the state store the pipeline reads and updates.
type State interface {
	Config() (state.Config, error)
	SelfID() (string, error)
	VipLikeCount(userID int64) (int, error)
	IncrementVipLikeCount(userID int64) (int, error)
}

// Outcome is where a gesture left the pipeline.
type Outcome string

const (
	OutcomeIgnored           Outcome = "ignored" // not a gesture
	OutcomeNotSelf           Outcome = "not_self"
	OutcomeDisabled          Outcome = "disabled"
	OutcomeBlacklisted       Outcome = "blacklisted"
	OutcomeNotFriend         Outcome = "not_friend"
	OutcomeFriendCheckFailed Outcome = "friend_check_failed"
	OutcomeVipLimited        Outcome = "vip_limited"
	OutcomeReciprocateFailed Outcome = "reciprocate_failed"
	OutcomeReciprocated      Outcome = "reciprocated"
	OutcomeStateError        Outcome = "state_error"
)

// Handler decides whether to poke back at a gesture. It keeps no state of
// its own; concurrent calls are fine.
type Handler struct {
	state   State
	api     *onebot.API
	journal storage.Journal
	log     *zap.SugaredLogger
}

// Option configures a Handler.
type Option func(*Handler)

// WithJournal records every reciprocation attempt in j.
func WithJournal(j storage.Journal) Option {
	return func(h *Handler) { h.journal = j }
}

// NewHandler builds a Handler that talks to the remote side through bridge.
func NewHandler(st State, bridge onebot.Caller, logger *zap.SugaredLogger, opts ...Option) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	h := &Handler{
		state: st,
		api:   onebot.NewAPI(bridge),
		log:   logger,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// HandleEvent classifies a raw notice and runs the pipeline for gestures.
// Anything else is ignored without a log line.
func (h *Handler) HandleEvent(ctx context.Context, raw []byte) Outcome {
	g, ok := Classify(raw)
	if !ok {
		return OutcomeIgnored
	}
	return h.Handle(ctx, g)
}

// Handle runs the eligibility checks in order and stops at the first that
// fails:
//
//	target is us → feature on → not blacklisted → friend → under VIP limit
//
// then pokes back and bumps the user's daily counter. Nothing is retried.
func (h *Handler) Handle(ctx context.Context, g Gesture) Outcome {
	out := h.handle(ctx, g)
	metrics.IncrementGesture(g.Kind.String(), string(out))
	return out
}

func (h *Handler) handle(ctx context.Context, g Gesture) Outcome {
	if g.Kind != KindThumbUp && g.Kind != KindPoke {
		return OutcomeIgnored
	}
	log := h.log.With("kind", g.Kind.String(), "user_id", g.UserID)

	selfID, err := h.state.SelfID()
	if err != nil {
		log.Errorw("gesture: state unavailable", "err", err)
		return OutcomeStateError
	}
	self, err := strconv.ParseInt(selfID, 10, 64)
	if err != nil || g.TargetID != self {
		return OutcomeNotSelf
	}

	cfg, err := h.state.Config()
	if err != nil {
		log.Errorw("gesture: state unavailable", "err", err)
		return OutcomeStateError
	}
	if !cfg.AutoLikeEnabled {
		return OutcomeDisabled
	}

	if cfg.IsBlacklisted(g.UserID) {
		log.Infow("gesture: user is blacklisted, not reciprocating")
		return OutcomeBlacklisted
	}

	friend, err := h.api.IsFriend(ctx, g.UserID)
	if err != nil {
		metrics.IncrementRemoteError(onebot.ActionGetFriendList)
		log.Warnw("gesture: friend list lookup failed", "err", err)
		return OutcomeFriendCheckFailed
	}
	if !friend {
		log.Infow("gesture: not a friend, not reciprocating")
		return OutcomeNotFriend
	}

	info, err := h.api.GetStrangerInfo(ctx, g.UserID)
	switch {
	case err != nil:
		metrics.IncrementRemoteError(onebot.ActionGetStrangerInfo)
		log.Warnw("gesture: vip lookup failed, treating as non-vip", "err", err)
	case info.IsVip():
		n, err := h.state.VipLikeCount(g.UserID)
		if err != nil {
			log.Errorw("gesture: state unavailable", "err", err)
			return OutcomeStateError
		}
		if n >= cfg.VipLikeLimit {
			log.Infow("gesture: vip daily limit reached", "count", n, "limit", cfg.VipLikeLimit)
			return OutcomeVipLimited
		}
	}

	if err := h.reciprocate(ctx, g); err != nil {
		log.Warnw("gesture: poke back failed", "group_id", g.GroupID, "err", err)
		return OutcomeReciprocateFailed
	}

	n, err := h.state.IncrementVipLikeCount(g.UserID)
	if err != nil {
		log.Errorw("gesture: counter update failed", "err", err)
		return OutcomeStateError
	}
	log.Infow("gesture: poked back", "group_id", g.GroupID, "count", g.Count, "today", n)
	return OutcomeReciprocated
}

// reciprocate pokes the actor: privately for a thumb-up (there is no
// "like back" action), in the same group for a group poke, privately
// otherwise.
func (h *Handler) reciprocate(ctx context.Context, g Gesture) error {
	var (
		err    error
		action string
	)
	switch g.Kind {
	case KindThumbUp:
		action = onebot.ActionFriendPoke
		err = h.api.FriendPoke(ctx, g.UserID)
	case KindPoke:
		if g.GroupID != 0 {
			action = onebot.ActionGroupPoke
			err = h.api.GroupPoke(ctx, g.GroupID, g.UserID)
		} else {
			action = onebot.ActionFriendPoke
			err = h.api.FriendPoke(ctx, g.UserID)
		}
	default:
		return fmt.Errorf("no reciprocation for gesture kind %d", int(g.Kind))
	}
	if err != nil {
		metrics.IncrementRemoteError(action)
	}
	h.record(ctx, storage.Entry{
		Kind:    action,
		UserID:  g.UserID,
		GroupID: g.GroupID,
		OK:      err == nil,
		Detail:  errText(err),
	})
	return err
}

func (h *Handler) record(ctx context.Context, e storage.Entry) {
	if h.journal == nil {
		return
	}
	if err := h.journal.Record(context.WithoutCancel(ctx), e); err != nil {
		metrics.IncrementDatabaseError("record")
		h.log.Warnw("gesture: journal write failed", "err", err)
	}
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
