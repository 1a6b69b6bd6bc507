package reconcile

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"chatsync/internal/chat"
	"chatsync/internal/content"
	"chatsync/internal/models"
	"chatsync/internal/session"

	"github.com/google/uuid"
)

const (
	DefaultAckDelay     = time.Second
	DefaultUpdateBuffer = 64
)

var (
	ErrNoSender = errors.New("no sender attached")
)

// Sender writes a frame on the chat connection.
type Sender interface {
	Send(frame models.ClientFrame) error
}

type UpdateKind string

const (
	UpdateInit     UpdateKind = "init"
	UpdateMessage  UpdateKind = "message"
	UpdateHistory  UpdateKind = "history"
	UpdateChat     UpdateKind = "chat"
	UpdateStatus   UpdateKind = "status"
	UpdateNotice   UpdateKind = "notice"
	UpdateAckSent  UpdateKind = "offline_ack"
	UpdateAckError UpdateKind = "offline_ack_error"
)

// Update tells views what changed. Text is a notice message, a status
// username or a message preview depending on Kind. MessageID is set for
// UpdateMessage.
type Update struct {
	Kind      UpdateKind
	ChatID    string
	MessageID string
	Text      string
}

type Config struct {
	AckDelay     time.Duration
	UpdateBuffer int
}

// Reconciler applies inbound frames from both connections to the session
// and chat stores, one frame at a time.
type Reconciler struct {
	Config

	session *session.Store
	chats   *chat.Store
	updates chan Update
	log     *slog.Logger
	now     func() time.Time
	newID   func() string

	mu       sync.Mutex
	sender   Sender
	ackTimer *time.Timer
	ackGen   uint64
}

func New(config Config, sess *session.Store, chats *chat.Store, logger *slog.Logger) *Reconciler {
	if config.AckDelay <= 0 {
		config.AckDelay = DefaultAckDelay
	}
	if config.UpdateBuffer <= 0 {
		config.UpdateBuffer = DefaultUpdateBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		Config:  config,
		session: sess,
		chats:   chats,
		updates: make(chan Update, config.UpdateBuffer),
		log:     logger,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// SetSender attaches the chat connection used for the offline ack.
func (r *Reconciler) SetSender(s Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sender = s
}

// Updates is never closed.
func (r *Reconciler) Updates() <-chan Update {
	return r.updates
}

// HandleChatFrame applies one frame received on the chat connection.
func (r *Reconciler) HandleChatFrame(raw []byte) error {
	frame, err := r.decode(raw, "chat")
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch f := frame.(type) {
	case *models.InitData:
		r.applyInit(f)
	case *models.IncomingMessage:
		r.applyMessage(f)
	case *models.HistoryPage:
		r.applyHistory(f)
	case *models.ChatApproval:
		r.applyApproval(f)
	case *models.StatusChange:
		r.applyStatusChange(f)
	case *models.Notice:
		r.publish(Update{Kind: UpdateNotice, Text: f.Msg})
	}
	return nil
}

// HandlePresenceFrame applies one frame received on the presence
// connection. Only status changes are accepted there.
func (r *Reconciler) HandlePresenceFrame(raw []byte) error {
	frame, err := r.decode(raw, "presence")
	if err != nil {
		return err
	}

	sc, ok := frame.(*models.StatusChange)
	if !ok {
		r.log.Debug("ignoring non-status frame on presence connection", "type", frame.FrameType())
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.applyStatusChange(sc)
	return nil
}

func (r *Reconciler) decode(raw []byte, source string) (models.ServerFrame, error) {
	frame, err := models.DecodeServerFrame(raw)
	if err != nil {
		r.log.Warn("dropping malformed frame", "source", source, "error", err)
		return nil, err
	}
	if u, ok := frame.(*models.UnknownFrame); ok {
		r.log.Warn("dropping frame of unknown type", "source", source, "type", u.Type)
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownFrameType, u.Type)
	}
	return frame, nil
}

func (r *Reconciler) applyInit(f *models.InitData) {
	chats := r.chats.ReplaceChats(f.ChatIDs)
	r.chats.SetGroups(f.Groups)
	r.chats.SetOfflineSummaries(f.OfflineMessages)
	r.session.SetInitialized(true)

	r.log.Info("chat list initialized", "chats", len(chats), "groups", len(f.Groups), "offline", len(f.OfflineMessages))

	if len(f.OfflineMessages) > 0 {
		r.scheduleAck()
	}
	r.publish(Update{Kind: UpdateInit})
}

func (r *Reconciler) applyMessage(f *models.IncomingMessage) {
	me := r.chats.CurrentUser()
	chatID := f.ChatID
	if chatID == "" {
		chatID = models.DeriveChatID(f.From, me)
	}

	id := f.MessageID
	switch {
	case id == "" && f.ClientMsgID != "":
		id = f.ClientMsgID
	case id == "":
		id = r.newID()
	case f.ClientMsgID != "" && f.ClientMsgID != id:
		// The server renamed our optimistic insert.
		r.chats.RemoveMessage(chatID, f.ClientMsgID)
	}

	msg := models.Message{
		ID:            id,
		ChatID:        chatID,
		SenderID:      f.From,
		Content:       content.PlainText(f.Content),
		SentAt:        models.ParseTimestamp(f.Timestamp, r.now()),
		DeliveryState: models.DeliverySent,
	}
	r.chats.AddMessage(msg)
	r.publish(Update{Kind: UpdateMessage, ChatID: chatID, MessageID: id, Text: msg.Content})
}

func (r *Reconciler) applyHistory(f *models.HistoryPage) {
	defer r.chats.SetLoadingHistory(false)

	if len(f.Messages) == 0 {
		r.publish(Update{Kind: UpdateHistory})
		return
	}

	me := r.chats.CurrentUser()
	first := f.Messages[0]
	chatID := models.DeriveChatID(first.From, first.To)
	friend := first.To
	if friend == me {
		friend = first.From
	}

	now := r.now()
	msgs := make([]models.Message, 0, len(f.Messages))
	for _, hm := range f.Messages {
		id := hm.MessageID
		if id == "" {
			id = r.newID()
		}
		msgs = append(msgs, models.Message{
			ID:            id,
			ChatID:        chatID,
			SenderID:      hm.From,
			Content:       content.PlainText(hm.Text),
			SentAt:        models.ParseTimestamp(hm.Timestamp, now),
			DeliveryState: models.DeliverySent,
		})
	}
	r.chats.SetMessages(chatID, msgs)

	st := models.UserStatus{Username: friend, IsOnline: f.IsOnline, UpdatedAt: now}
	if f.LastSeenTime != "" {
		seen := models.ParseTimestamp(f.LastSeenTime, now)
		st.LastSeenAt = &seen
		st.UpdatedAt = seen
	}
	r.chats.ApplyStatus(st)

	r.publish(Update{Kind: UpdateHistory, ChatID: chatID})
}

func (r *Reconciler) applyApproval(f *models.ChatApproval) {
	me := r.chats.CurrentUser()

	friend := f.From
	if friend == "" || friend == me {
		friend = f.To
	}
	if friend == "" || friend == me {
		r.publish(Update{Kind: UpdateNotice, Text: f.Msg})
		return
	}

	chatID := f.ChatID
	if chatID == "" {
		chatID = models.DeriveChatID(me, friend)
	}
	if r.chats.EnsureChat(chatID, friend) {
		r.log.Info("chat created", "chat_id", chatID, "friend", friend)
	}
	r.publish(Update{Kind: UpdateChat, ChatID: chatID, Text: f.Msg})
}

func (r *Reconciler) applyStatusChange(f *models.StatusChange) {
	now := r.now()
	st := models.UserStatus{
		Username:  f.Username,
		IsOnline:  f.Status == models.PresenceOnline,
		UpdatedAt: now,
	}
	if !st.IsOnline {
		st.LastSeenAt = &now
	}
	if r.chats.ApplyStatus(st) {
		r.publish(Update{Kind: UpdateStatus, Text: f.Username})
	}
}

// scheduleAck replaces any pending ack timer. Caller holds r.mu.
func (r *Reconciler) scheduleAck() {
	if r.ackTimer != nil {
		r.ackTimer.Stop()
	}
	r.ackGen++
	gen := r.ackGen
	r.ackTimer = time.AfterFunc(r.AckDelay, func() { r.sendAck(gen) })
}

func (r *Reconciler) sendAck(gen uint64) {
	r.mu.Lock()
	if gen != r.ackGen {
		r.mu.Unlock()
		return
	}
	r.ackTimer = nil
	sender := r.sender
	r.mu.Unlock()

	if sender == nil {
		r.log.Warn("offline ack not sent", "error", ErrNoSender)
		r.publish(Update{Kind: UpdateAckError, Text: ErrNoSender.Error()})
		return
	}
	if err := sender.Send(models.OfflineMessagesAck()); err != nil {
		r.log.Warn("offline ack not sent", "error", err)
		r.publish(Update{Kind: UpdateAckError, Text: err.Error()})
		return
	}
	r.publish(Update{Kind: UpdateAckSent})
}

func (r *Reconciler) publish(u Update) {
	select {
	case r.updates <- u:
	default:
		r.log.Debug("update dropped, consumer is behind", "kind", u.Kind)
	}
}

// SignIn scopes the chat store to username.
func (r *Reconciler) SignIn(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chats.SetCurrentUser(username)
}

// AddPending inserts a message the user is sending before it is written
// to the wire.
func (r *Reconciler) AddPending(msg models.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg.DeliveryState = models.DeliveryPending
	r.chats.AddMessage(msg)
}

// MarkSent promotes a pending message once the write succeeded. An echo
// that already replaced it leaves nothing to promote.
func (r *Reconciler) MarkSent(chatID, messageID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range r.chats.Messages(chatID) {
		if m.ID == messageID && m.DeliveryState == models.DeliveryPending {
			return r.chats.SetDeliveryState(chatID, messageID, models.DeliverySent)
		}
	}
	return false
}

// DropPending removes a message whose write failed.
func (r *Reconciler) DropPending(chatID, messageID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.chats.RemoveMessage(chatID, messageID)
}

func (r *Reconciler) Select(chatID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.chats.Select(chatID)
}

func (r *Reconciler) SetLoadingHistory(loading bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chats.SetLoadingHistory(loading)
}

// Reset cancels a pending offline ack and empties the chat store.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ackTimer != nil {
		r.ackTimer.Stop()
		r.ackTimer = nil
	}
	r.ackGen++
	r.chats.Reset()
}
