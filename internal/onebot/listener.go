package onebot

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	minBackoff = time.Second
	maxBackoff = 30 * time.Second
)

// EventFunc receives one raw notice frame.
type EventFunc func(ctx context.Context, raw []byte)

// Listener reads events from a OneBot forward WebSocket and hands every
// notice frame to a callback. Other post types (messages, meta heartbeats,
// action echoes) are dropped here.
type Listener struct {
	url     string
	token   string
	onEvent EventFunc
	log     *zap.SugaredLogger
	dialer  websocket.Dialer

	inflight sync.WaitGroup
}

// NewListener constructs a Listener for wsURL.
func NewListener(wsURL, token string, onEvent EventFunc, logger *zap.SugaredLogger) *Listener {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Listener{
		url:     wsURL,
		token:   token,
		onEvent: onEvent,
		log:     logger,
		dialer:  websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// Run keeps a connection open until ctx is cancelled, reconnecting with
// exponential backoff. It always returns ctx.Err(), and only after every
// callback it started has returned.
//
// Callbacks get a context that ctx's cancellation does not reach, so an event
// being handled at shutdown runs to completion.
func (l *Listener) Run(ctx context.Context) error {
	defer l.inflight.Wait()
	backoff := minBackoff
	for {
		connected, err := l.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			backoff = minBackoff
		}

		l.log.Warnw("onebot websocket disconnected", "err", err, "retry_in", backoff.String())
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if backoff < maxBackoff {
			backoff = min(backoff*2, maxBackoff)
		}
	}
}

func (l *Listener) runOnce(ctx context.Context) (bool, error) {
	header := http.Header{}
	if l.token != "" {
		header.Set("Authorization", "Bearer "+l.token)
	}
	conn, _, err := l.dialer.DialContext(ctx, l.url, header)
	if err != nil {
		return false, err
	}
	defer conn.Close()
	l.log.Infow("onebot websocket connected", "url", l.url)

	// Closing the connection is the only way to unblock ReadMessage.
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"),
				time.Now().Add(2*time.Second))
			_ = conn.Close()
		case <-stop:
		}
	}()
	defer close(stop)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return true, ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return true, errors.New("closed by peer")
			}
			return true, err
		}
		if !gjson.ValidBytes(msg) {
			l.log.Debugw("onebot websocket: dropping non-JSON frame", "size", len(msg))
			continue
		}
		if gjson.GetBytes(msg, "post_type").String() != "notice" {
			continue
		}
		l.inflight.Add(1)
		go func() {
			defer l.inflight.Done()
			l.onEvent(context.WithoutCancel(ctx), msg)
		}()
	}
}
