package onebot

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNoData is returned when an action reports success but carries no data.
// Several implementations answer send_like this way, so callers that only
// care about success treat it as such.
var ErrNoData = errors.New("No data returned")

// ActionError is a non-ok OneBot response envelope.
type ActionError struct {
	Action  string
	Status  string
	Retcode int
	Message string
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("onebot %s failed: status=%s retcode=%d: %s", e.Action, e.Status, e.Retcode, e.Message)
}

// HTTPError is a transport-level failure (status >= 400).
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("onebot http %d: %s", e.StatusCode, e.Body)
}

// envelope is the common response wrapper:
//
//	{"status":"ok","retcode":0,"data":{...},"message":"","wording":""}
type envelope struct {
	Status  string          `json:"status"`
	Retcode int             `json:"retcode"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Wording string          `json:"wording"`
}

func (e envelope) message() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Wording
}

// ID is a user or group identifier. Implementations disagree on whether
// identifiers are JSON numbers or strings, so both are accepted.
type ID int64

// UnmarshalJSON accepts 123 and "123".
func (id *ID) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*id = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("onebot: invalid id %s", string(b))
	}
	*id = ID(n)
	return nil
}

// String returns the decimal form.
func (id ID) String() string { return strconv.FormatInt(int64(id), 10) }

// LoginInfo is the data of get_login_info.
type LoginInfo struct {
	UserID   ID     `json:"user_id"`
	Nickname string `json:"nickname"`
}

// Friend is one entry of get_friend_list. Only the fields we use are mapped.
type Friend struct {
	UserID   ID     `json:"user_id"`
	Nickname string `json:"nickname"`
	Remark   string `json:"remark"`
}

// StrangerInfo is the data of get_stranger_info.
type StrangerInfo struct {
	UserID   ID     `json:"user_id"`
	Nickname string `json:"nickname"`
	VIP      Flag   `json:"vip"`
	IsVIP    Flag   `json:"is_vip"`
	VIPLevel int    `json:"vip_level"`
}

// IsVip reports whether any of the VIP markers is set.
func (s StrangerInfo) IsVip() bool { return bool(s.VIP) || bool(s.IsVIP) }

// Flag is a boolean that also accepts 0/1 and "true"/"false".
type Flag bool

// UnmarshalJSON accepts true, 1, "1" and "true" as set.
func (f *Flag) UnmarshalJSON(b []byte) error {
	switch strings.ToLower(strings.Trim(strings.TrimSpace(string(b)), `"`)) {
	case "true", "1":
		*f = true
	default:
		*f = false
	}
	return nil
}

type userParams struct {
	UserID ID `json:"user_id"`
}

type groupPokeParams struct {
	GroupID ID `json:"group_id"`
	UserID  ID `json:"user_id"`
}

type strangerParams struct {
	UserID  ID   `json:"user_id"`
	NoCache bool `json:"no_cache"`
}

// sendLikeParams carries user_id as text; some implementations reject numbers here.
type sendLikeParams struct {
	UserID string `json:"user_id"`
	Times  int    `json:"times"`
}

// IsNoData reports whether err means "succeeded without a body". The
// substring match covers bridges that flatten errors to text.
func IsNoData(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrNoData) || strings.Contains(err.Error(), ErrNoData.Error())
}
