package rpc

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zkfocil/zkfocil/eventlog"
)

const (
	wsWriteTimeout = 5 * time.Second
	wsBuffer       = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// LogMessage is one frame on /ws/logs.
type LogMessage struct {
	Line    string    `json:"line"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// watchClose cancels the returned context when the peer goes away. Client
// frames are read and discarded.
func watchClose(parent context.Context, conn *websocket.Conn) context.Context {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return ctx
}

// HandleLogStream streams every new log entry as a LogMessage frame.
func (a *API) HandleLogStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.Debug("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	entries := make(chan eventlog.Entry, wsBuffer)
	sub := a.backend.Events().Subscribe(entries)
	defer sub.Unsubscribe()

	ctx := watchClose(r.Context(), conn)
	a.log.Debug("log stream opened", "remote", r.RemoteAddr)
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-sub.Err():
			if err != nil {
				a.log.Debug("log subscription ended", "err", err)
			}
			return
		case e := <-entries:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(LogMessage{Line: e.String(), Message: e.Message, Time: e.Time}); err != nil {
				a.log.Debug("log stream write failed", "err", err)
				return
			}
		}
	}
}

// HandleBlockStream streams every gossiped block as JSON.
func (a *API) HandleBlockStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.Debug("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ctx := watchClose(r.Context(), conn)
	blocks, err := a.blocks.Subscribe(ctx)
	if err != nil {
		a.log.Warn("block subscription failed", "err", err)
		return
	}
	a.log.Debug("block stream opened", "remote", r.RemoteAddr)
	for {
		select {
		case <-ctx.Done():
			return
		case block, ok := <-blocks:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(block); err != nil {
				a.log.Debug("block stream write failed", "err", err)
				return
			}
		}
	}
}
