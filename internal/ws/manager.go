package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"chatsync/internal/models"
	"chatsync/internal/session"

	"github.com/gorilla/websocket"
)

const DefaultConnectTimeout = 10 * time.Second

var (
	ErrConnectTimeout = errors.New("connection timeout")
	ErrConnect        = errors.New("connection failed")
	ErrNotConnected   = errors.New("not connected")
)

// FrameHandler receives raw inbound frames from the two connections.
type FrameHandler interface {
	HandleChatFrame(raw []byte) error
	HandlePresenceFrame(raw []byte) error
}

type Config struct {
	ChatURL        string
	PresenceURL    string
	ConnectTimeout time.Duration
}

func (c *Config) Validate() error {
	if c.ChatURL == "" {
		return errors.New("chat websocket URL is required")
	}
	if c.PresenceURL == "" {
		return errors.New("presence websocket URL is required")
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	return nil
}

// Manager owns the chat and presence connections of one user. There is at
// most one of each; they fail and close independently.
type Manager struct {
	Config

	session *session.Store
	handler FrameHandler
	dialer  *websocket.Dialer
	log     *slog.Logger

	mu             sync.Mutex
	chat           *Link
	presence       *Link
	chatCancel     context.CancelFunc
	presenceCancel context.CancelFunc
	// gen changes on every Disconnect. A dial that started under an older
	// gen must not attach its connection.
	gen uint64
	wg  sync.WaitGroup
}

func NewManager(config Config, sess *session.Store, handler FrameHandler, logger *slog.Logger) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		Config:  config,
		session: sess,
		handler: handler,
		dialer:  &websocket.Dialer{Proxy: http.ProxyFromEnvironment},
		log:     logger,
	}, nil
}

func errDisconnected() error {
	return fmt.Errorf("%w: disconnected while connecting", ErrNotConnected)
}

// ConnectChat opens the chat connection and requests the init snapshot.
// It is a no-op while a chat connection exists or is being dialed.
func (m *Manager) ConnectChat(ctx context.Context, user, token string) error {
	m.mu.Lock()
	if m.chat != nil || m.chatCancel != nil {
		m.mu.Unlock()
		return nil
	}
	dialCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	m.chatCancel = cancel
	gen := m.gen
	m.session.SetConnecting(true)
	m.mu.Unlock()

	conn, err := m.dial(dialCtx, m.ChatURL, user, token)

	m.mu.Lock()
	m.chatCancel = nil
	if m.gen != gen {
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return errDisconnected()
	}
	if err != nil {
		m.session.SetConnectionError(err.Error())
		m.mu.Unlock()
		m.log.Error("chat connection failed", "user", user, "error", err)
		return err
	}

	link := newLink("chat", conn, m.handler.HandleChatFrame, m.log)
	m.chat = link
	m.session.SetConnected(true)
	m.wg.Go(func() {
		if err := link.Run(context.WithoutCancel(ctx)); err != nil {
			m.log.Warn("chat connection closed", "error", err)
		}
		m.dropChat(link)
	})
	m.mu.Unlock()

	if err := link.Send(models.InitDataRequest()); err != nil {
		_ = link.Close()
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.gen != gen {
			return errDisconnected()
		}
		err = fmt.Errorf("%w: init request: %v", ErrConnect, err)
		m.session.SetConnectionError(err.Error())
		return err
	}

	m.log.Info("chat connected", "user", user)
	return nil
}

func (m *Manager) dropChat(link *Link) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.chat == link {
		m.chat = nil
		m.session.SetConnected(false)
	}
}

// ConnectPresence opens the presence connection. Its failure never
// changes the chat connection state.
func (m *Manager) ConnectPresence(ctx context.Context, user, token string) error {
	m.mu.Lock()
	if m.presence != nil || m.presenceCancel != nil {
		m.mu.Unlock()
		return nil
	}
	dialCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	m.presenceCancel = cancel
	gen := m.gen
	m.mu.Unlock()

	conn, err := m.dial(dialCtx, m.PresenceURL, user, token)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.presenceCancel = nil
	if m.gen != gen {
		if conn != nil {
			_ = conn.Close()
		}
		return errDisconnected()
	}
	if err != nil {
		m.session.SetPresenceConnected(false)
		return err
	}

	link := newLink("presence", conn, m.handler.HandlePresenceFrame, m.log)
	m.presence = link
	m.session.SetPresenceConnected(true)
	m.wg.Go(func() {
		if err := link.Run(context.WithoutCancel(ctx)); err != nil {
			m.log.Warn("presence connection closed", "error", err)
		}
		m.dropPresence(link)
	})

	m.log.Info("presence connected", "user", user)
	return nil
}

func (m *Manager) dropPresence(link *Link) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.presence == link {
		m.presence = nil
		m.session.SetPresenceConnected(false)
	}
}

func (m *Manager) dial(ctx context.Context, base, user, token string) (*websocket.Conn, error) {
	target, err := connectURL(base, user, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, m.ConnectTimeout)
	defer cancel()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := m.dialer.DialContext(dialCtx, target, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if errors.Is(dialCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrConnectTimeout, m.ConnectTimeout)
		}
		if resp != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrConnect, resp.Status, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}
	return conn, nil
}

func connectURL(base, user, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("username", user)
	q.Set("authToken", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Send writes frame on the chat connection.
func (m *Manager) Send(frame models.ClientFrame) error {
	m.mu.Lock()
	link := m.chat
	m.mu.Unlock()

	if link == nil {
		return ErrNotConnected
	}
	if err := link.Send(frame); err != nil {
		return fmt.Errorf("failed to send %s: %w", frame.Type, err)
	}
	return nil
}

// Disconnect says goodbye on the chat connection and closes both
// connections. Dials in flight are aborted and never attach. It is safe to
// call repeatedly.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.gen++
	chat, presence := m.chat, m.presence
	m.chat, m.presence = nil, nil
	if m.chatCancel != nil {
		m.chatCancel()
		m.chatCancel = nil
		m.session.SetConnecting(false)
	}
	if m.presenceCancel != nil {
		m.presenceCancel()
		m.presenceCancel = nil
	}
	m.mu.Unlock()

	if chat != nil {
		if err := chat.Send(models.DisconnectNotice()); err != nil {
			m.log.Debug("disconnect notice not sent", "error", err)
		}
		_ = chat.Close()
		m.session.SetConnected(false)
	}
	if presence != nil {
		_ = presence.Close()
		m.session.SetPresenceConnected(false)
	}
	m.wg.Wait()
}

func (m *Manager) ChatConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chat != nil
}

func (m *Manager) PresenceConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.presence != nil
}
