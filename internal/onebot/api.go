package onebot

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// Action names used by the plugin.
const (
	ActionGetLoginInfo    = "get_login_info"
	ActionGetFriendList   = "get_friend_list"
	ActionGetStrangerInfo = "get_stranger_info"
	ActionFriendPoke      = "friend_poke"
	ActionGroupPoke       = "group_poke"
	ActionSendLike        = "send_like"
)

// API is a typed façade over any Caller.
type API struct {
	c Caller
}

// NewAPI wraps c.
func NewAPI(c Caller) *API {
	return &API{c: c}
}

// GetLoginInfo returns the bot's own account.
func (a *API) GetLoginInfo(ctx context.Context) (LoginInfo, error) {
	var info LoginInfo
	err := a.call(ctx, ActionGetLoginInfo, nil, &info)
	return info, err
}

// GetFriendList returns the bot's friends.
func (a *API) GetFriendList(ctx context.Context) ([]Friend, error) {
	var friends []Friend
	err := a.call(ctx, ActionGetFriendList, nil, &friends)
	return friends, err
}

// IsFriend reports whether userID is in the friend list.
func (a *API) IsFriend(ctx context.Context, userID int64) (bool, error) {
	friends, err := a.GetFriendList(ctx)
	if err != nil {
		return false, err
	}
	for _, f := range friends {
		if int64(f.UserID) == userID {
			return true, nil
		}
	}
	return false, nil
}

// GetStrangerInfo looks up a user's public profile.
func (a *API) GetStrangerInfo(ctx context.Context, userID int64) (StrangerInfo, error) {
	var info StrangerInfo
	err := a.call(ctx, ActionGetStrangerInfo, strangerParams{UserID: ID(userID)}, &info)
	return info, err
}

// FriendPoke pokes userID in a private chat.
func (a *API) FriendPoke(ctx context.Context, userID int64) error {
	return a.send(ctx, ActionFriendPoke, userParams{UserID: ID(userID)})
}

// GroupPoke pokes userID inside groupID.
func (a *API) GroupPoke(ctx context.Context, groupID, userID int64) error {
	return a.send(ctx, ActionGroupPoke, groupPokeParams{GroupID: ID(groupID), UserID: ID(userID)})
}

// SendLike sends times profile likes to userID. The raw error is returned
// untouched, ErrNoData included; see the state package for how that is read.
func (a *API) SendLike(ctx context.Context, userID int64, times int) error {
	_, err := a.c.Call(ctx, ActionSendLike, sendLikeParams{UserID: strconv.FormatInt(userID, 10), Times: times})
	return err
}

func (a *API) call(ctx context.Context, action string, params, out any) error {
	raw, err := a.c.Call(ctx, action, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", action, err)
	}
	return nil
}

// send is for actions whose data we do not read; an empty body is success.
func (a *API) send(ctx context.Context, action string, params any) error {
	_, err := a.c.Call(ctx, action, params)
	if err != nil && !IsNoData(err) {
		return err
	}
	return nil
}
