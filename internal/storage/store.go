package storage

import (
	"context"
	"time"
)

// Kinds of journal entries.
const (
	KindFriendPoke = "friend_poke"
	KindGroupPoke  = "group_poke"
	KindSendLike   = "send_like"
)

// Entry is one remote side effect performed by the plugin.
type Entry struct {
	ID        int64
	Kind      string
	UserID    int64
	GroupID   int64 // 0 unless Kind is KindGroupPoke
	OK        bool
	Detail    string // error text or other context
	CreatedAt time.Time
}

// Journal abstracts persistence of the reciprocation/like history.
// Implementations must be safe for concurrent use by multiple goroutines.
//
// Record appends an entry; a zero CreatedAt is filled with the current time.
// Recent returns up to limit entries, newest first.
// Close frees resources; after Close, the Journal should not be used.
type Journal interface {
	Record(ctx context.Context, e Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}
