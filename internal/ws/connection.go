package ws

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const closeGracePeriod = time.Second

type wsConnection interface {
	Close() error
	WriteJSON(v any) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	ReadMessage() (messageType int, p []byte, err error)
}

type frameHandler func(raw []byte) error

// Link is one live websocket connection. Inbound frames go to the handler
// from a single reader goroutine; writes are serialized.
type Link struct {
	name   string
	ws     wsConnection
	handle frameHandler
	log    *slog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool
	done      chan struct{}
}

func newLink(name string, ws wsConnection, handle frameHandler, logger *slog.Logger) *Link {
	return &Link{
		name:   name,
		ws:     ws,
		handle: handle,
		log:    logger.With("link", name),
		done:   make(chan struct{}),
	}
}

// Run reads until the connection fails, Close is called or ctx is done.
// A close initiated locally or a normal close from the peer returns nil.
func (l *Link) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	var wg sync.WaitGroup
	wg.Go(func() {
		errCh <- l.pumpFrames()
		cancel()
	})

	var err error
	select {
	case err = <-errCh:
	case <-ctx.Done():
	}
	if l.closed.Load() {
		err = nil
	}
	_ = l.Close()
	wg.Wait()

	if err == nil || errors.Is(err, context.Canceled) ||
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil
	}
	return err
}

func (l *Link) pumpFrames() error {
	for {
		_, raw, err := l.ws.ReadMessage()
		if err != nil {
			return err
		}
		if err := l.handle(raw); err != nil {
			l.log.Debug("frame not applied", "error", err)
		}
	}
}

func (l *Link) Send(v any) error {
	if l.closed.Load() {
		return ErrNotConnected
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	return l.ws.WriteJSON(v)
}

// Close sends a close frame and drops the connection. Calling it more than
// once is a no-op.
func (l *Link) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.closed.Store(true)

		l.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if werr := l.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod)); werr != nil {
			l.log.Debug("close frame not sent", "error", werr)
		}
		l.writeMu.Unlock()

		err = l.ws.Close()
		close(l.done)
	})
	return err
}

// Done is closed once the link is closed.
func (l *Link) Done() <-chan struct{} {
	return l.done
}
