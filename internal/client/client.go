package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"chatsync/internal/auth"
	"chatsync/internal/chat"
	"chatsync/internal/content"
	"chatsync/internal/models"
	"chatsync/internal/reconcile"
	"chatsync/internal/session"
	"chatsync/internal/ws"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrEmptyMessage     = errors.New("message is empty")
	ErrSelfChat         = errors.New("cannot start a chat with yourself")
)

type Authenticator interface {
	Login(ctx context.Context, creds auth.Credentials) (auth.LoginResponse, error)
	Register(ctx context.Context, creds auth.Credentials) (auth.RegisterResponse, error)
	Logout(ctx context.Context, token string) error
}

type Connector interface {
	ConnectChat(ctx context.Context, user, token string) error
	ConnectPresence(ctx context.Context, user, token string) error
	Send(frame models.ClientFrame) error
	Disconnect()
}

type TokenStore interface {
	SaveSession(username, token string) error
	LoadSession() (username, token string, err error)
	DeleteSession() error
}

type Deps struct {
	Session    *session.Store
	Chats      *chat.Store
	Reconciler *reconcile.Reconciler
	Conn       Connector
	Auth       Authenticator
	Tokens     TokenStore
	Logger     *slog.Logger
}

// Client is what a view talks to: it signs in, opens both connections and
// turns user intents into outbound frames. Inbound state lives in the
// stores and is read through the accessors.
type Client struct {
	session    *session.Store
	chats      *chat.Store
	reconciler *reconcile.Reconciler
	conn       Connector
	auth       Authenticator
	tokens     TokenStore
	log        *slog.Logger

	newID func() string
	now   func() time.Time
}

func New(deps Deps) *Client {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		session:    deps.Session,
		chats:      deps.Chats,
		reconciler: deps.Reconciler,
		conn:       deps.Conn,
		auth:       deps.Auth,
		tokens:     deps.Tokens,
		log:        logger,
		newID:      uuid.NewString,
		now:        time.Now,
	}
}

func (c *Client) Login(ctx context.Context, username, password string) error {
	resp, err := c.auth.Login(ctx, auth.Credentials{Username: username, Password: password})
	if err != nil {
		return err
	}
	c.signIn(resp.Username, resp.Token)

	if err := c.tokens.SaveSession(resp.Username, resp.Token); err != nil {
		c.log.Warn("session not persisted", "user", resp.Username, "error", err)
	}
	c.log.Info("logged in", "user", resp.Username)
	return nil
}

// Register creates the account and logs straight into it.
func (c *Client) Register(ctx context.Context, username, password string) error {
	if _, err := c.auth.Register(ctx, auth.Credentials{Username: username, Password: password}); err != nil {
		return err
	}
	return c.Login(ctx, username, password)
}

// Resume restores the persisted session. It reports false when there is
// none.
func (c *Client) Resume() (bool, error) {
	username, token, err := c.tokens.LoadSession()
	if errors.Is(err, models.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load session: %w", err)
	}
	c.signIn(username, token)
	c.log.Info("session resumed", "user", username)
	return true, nil
}

func (c *Client) signIn(username, token string) {
	c.session.Login(username, token)
	c.reconciler.SignIn(username)
}

// Connect dials the chat and presence connections concurrently. Only the
// chat connection failing is an error; a presence failure is logged.
func (c *Client) Connect(ctx context.Context) error {
	snap := c.session.Snapshot()
	if !snap.IsAuthenticated {
		return ErrNotAuthenticated
	}
	user, token := snap.Username(), snap.Token

	var g errgroup.Group
	g.Go(func() error {
		return c.conn.ConnectChat(ctx, user, token)
	})
	g.Go(func() error {
		if err := c.conn.ConnectPresence(ctx, user, token); err != nil {
			c.log.Warn("presence unavailable", "user", user, "error", err)
		}
		return nil
	})
	return g.Wait()
}

// SendMessage inserts the message as pending, writes it to the chat
// connection and marks it sent. A failed write removes it again. The text
// is stripped of markup the same way inbound text is, so the server echo
// matches the local copy.
func (c *Client) SendMessage(to, text string) (models.Message, error) {
	me, err := c.me()
	if err != nil {
		return models.Message{}, err
	}
	if err := content.ValidateUsername(to); err != nil {
		return models.Message{}, err
	}
	text = strings.TrimSpace(content.PlainText(text))
	if text == "" {
		return models.Message{}, ErrEmptyMessage
	}

	chatID := c.chatIDFor(me, to)
	msg := models.Message{
		ID:            c.newID(),
		ChatID:        chatID,
		SenderID:      me,
		Content:       text,
		SentAt:        c.now(),
		DeliveryState: models.DeliveryPending,
	}
	c.reconciler.AddPending(msg)

	if err := c.conn.Send(models.OneToOneChat(me, to, text, chatID, msg.ID)); err != nil {
		c.reconciler.DropPending(chatID, msg.ID)
		if !errors.Is(err, ws.ErrNotConnected) {
			err = fmt.Errorf("%w: %v", ws.ErrNotConnected, err)
		}
		return models.Message{}, err
	}

	c.reconciler.MarkSent(chatID, msg.ID)
	msg.DeliveryState = models.DeliverySent
	return msg, nil
}

// RequestHistory asks for the conversation with friend. The loading flag
// stays set until the page arrives.
func (c *Client) RequestHistory(friend string) error {
	me, err := c.me()
	if err != nil {
		return err
	}
	if err := content.ValidateUsername(friend); err != nil {
		return err
	}

	c.reconciler.SetLoadingHistory(true)
	if err := c.conn.Send(models.HistoryRequest(me, friend, c.chatIDFor(me, friend))); err != nil {
		c.reconciler.SetLoadingHistory(false)
		return err
	}
	return nil
}

func (c *Client) StartChat(friend string) error {
	me, err := c.me()
	if err != nil {
		return err
	}
	if err := content.ValidateUsername(friend); err != nil {
		return err
	}
	if friend == me {
		return ErrSelfChat
	}
	return c.conn.Send(models.NewChatRequest(me, friend))
}

func (c *Client) SelectChat(chatID string) error {
	return c.reconciler.Select(chatID)
}

// OpenChat selects the chat with friend and requests its history.
func (c *Client) OpenChat(friend string) (string, error) {
	me, err := c.me()
	if err != nil {
		return "", err
	}
	if err := content.ValidateUsername(friend); err != nil {
		return "", err
	}
	chatID := c.chatIDFor(me, friend)
	if err := c.reconciler.Select(chatID); err != nil {
		return "", fmt.Errorf("no chat with %s: %w", friend, err)
	}
	return chatID, c.RequestHistory(friend)
}

// Logout closes both connections, clears every store and forgets the
// persisted token. The server-side logout is best effort.
func (c *Client) Logout(ctx context.Context) error {
	user, token := c.session.Username(), c.session.Token()

	c.conn.Disconnect()
	c.reconciler.Reset()
	c.session.Reset()

	if err := c.auth.Logout(ctx, token); err != nil {
		c.log.Warn("server logout failed", "user", user, "error", err)
	}
	if err := c.tokens.DeleteSession(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	c.log.Info("logged out", "user", user)
	return nil
}

func (c *Client) me() (string, error) {
	me := c.session.Username()
	if me == "" {
		return "", ErrNotAuthenticated
	}
	return me, nil
}

func (c *Client) chatIDFor(me, friend string) string {
	if id, ok := c.chats.FriendChatID(friend); ok {
		return id
	}
	return models.DeriveChatID(me, friend)
}

func (c *Client) Session() models.Session {
	return c.session.Snapshot()
}

func (c *Client) Chats() []models.Chat {
	return c.chats.Chats()
}

func (c *Client) Messages(chatID string) []models.Message {
	return c.chats.Messages(chatID)
}

func (c *Client) Selected() (models.Chat, bool) {
	return c.chats.Selected()
}

func (c *Client) Statuses() map[string]models.UserStatus {
	return c.chats.Statuses()
}

func (c *Client) Updates() <-chan reconcile.Update {
	return c.reconciler.Updates()
}
