package onebot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler func(w http.ResponseWriter, action string, params map[string]any)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var params map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&params))
		handler(w, r.URL.Path[1:], params)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_CallUnwrapsData(t *testing.T) {
	gotAuth := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth <- r.Header.Get("Authorization")
		assert.Equal(t, "/get_login_info", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"ok","retcode":0,"data":{"user_id":10001,"nickname":"bot"}}`))
	}))
	defer srv.Close()

	c := New(WithBaseURL(srv.URL), WithAccessToken("secret"))
	raw, err := c.Call(context.Background(), ActionGetLoginInfo, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"user_id":10001,"nickname":"bot"}`, string(raw))
	assert.Equal(t, "Bearer secret", <-gotAuth)
}

func TestClient_CallErrors(t *testing.T) {
	t.Run("failed envelope", func(t *testing.T) {
		srv := newTestServer(t, func(w http.ResponseWriter, _ string, _ map[string]any) {
			_, _ = w.Write([]byte(`{"status":"failed","retcode":1200,"data":null,"wording":"not allowed"}`))
		})
		_, err := New(WithBaseURL(srv.URL)).Call(context.Background(), ActionFriendPoke, nil)
		var ae *ActionError
		require.ErrorAs(t, err, &ae)
		assert.Equal(t, 1200, ae.Retcode)
		assert.Equal(t, "not allowed", ae.Message)
		assert.False(t, IsNoData(err))
	})

	t.Run("null data", func(t *testing.T) {
		srv := newTestServer(t, func(w http.ResponseWriter, _ string, _ map[string]any) {
			_, _ = w.Write([]byte(`{"status":"ok","retcode":0,"data":null}`))
		})
		_, err := New(WithBaseURL(srv.URL)).Call(context.Background(), ActionSendLike, nil)
		require.ErrorIs(t, err, ErrNoData)
		assert.True(t, IsNoData(err))
	})

	t.Run("http status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "bad token", http.StatusUnauthorized)
		}))
		defer srv.Close()
		_, err := New(WithBaseURL(srv.URL)).Call(context.Background(), ActionGetFriendList, nil)
		var he *HTTPError
		require.ErrorAs(t, err, &he)
		assert.Equal(t, http.StatusUnauthorized, he.StatusCode)
	})
}

func TestAPI_ParamsOnTheWire(t *testing.T) {
	var mu sync.Mutex
	calls := map[string]map[string]any{}
	srv := newTestServer(t, func(w http.ResponseWriter, action string, params map[string]any) {
		mu.Lock()
		calls[action] = params
		mu.Unlock()
		switch action {
		case ActionGetFriendList:
			_, _ = w.Write([]byte(`{"status":"ok","retcode":0,"data":[{"user_id":"100"},{"user_id":200}]}`))
		case ActionGetStrangerInfo:
			_, _ = w.Write([]byte(`{"status":"ok","retcode":0,"data":{"user_id":100,"is_vip":1}}`))
		default:
			_, _ = w.Write([]byte(`{"status":"ok","retcode":0,"data":null}`))
		}
	})
	api := NewAPI(New(WithBaseURL(srv.URL)))
	ctx := context.Background()

	ok, err := api.IsFriend(ctx, 200)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = api.IsFriend(ctx, 300)
	require.NoError(t, err)
	assert.False(t, ok)

	info, err := api.GetStrangerInfo(ctx, 100)
	require.NoError(t, err)
	assert.True(t, info.IsVip())

	require.NoError(t, api.FriendPoke(ctx, 100), "empty body counts as success")
	require.NoError(t, api.GroupPoke(ctx, 555, 200))
	err = api.SendLike(ctx, 1, 5)
	assert.True(t, IsNoData(err))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string]any{"user_id": float64(100)}, calls[ActionFriendPoke])
	assert.Equal(t, map[string]any{"group_id": float64(555), "user_id": float64(200)}, calls[ActionGroupPoke])
	assert.Equal(t, map[string]any{"user_id": "1", "times": float64(5)}, calls[ActionSendLike])
}

func TestIsNoData_TextOnly(t *testing.T) {
	assert.True(t, IsNoData(errors.New("send_like: No data returned")))
	assert.False(t, IsNoData(errors.New("timeout")))
	assert.False(t, IsNoData(nil))
}
