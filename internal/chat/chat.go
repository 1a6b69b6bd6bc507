package chat

import (
	"slices"
	"sync"

	"chatsync/internal/models"

	"github.com/c-pro/geche"
)

type Config struct {
	// MaxMessages caps the messages kept per chat, oldest dropped first.
	// Zero keeps everything.
	MaxMessages int
}

// Store keeps the chats, messages and user statuses of one session.
// Only the reconciler writes to it, so frames and local sends are applied
// in one order. Readers get copies.
type Store struct {
	currentUser string
	chats       map[string]*models.Chat
	order       []string
	messages    map[string][]models.Message
	friends     map[string]string
	statuses    geche.Geche[string, models.UserStatus]
	selected    string
	revision    uint64

	groups         []int64
	offline        []models.OfflineSummary
	loadingHistory bool
	maxMessages    int

	mux sync.RWMutex
}

func New(config Config) *Store {
	return &Store{
		chats:       make(map[string]*models.Chat),
		messages:    make(map[string][]models.Message),
		friends:     make(map[string]string),
		statuses:    geche.NewMapCache[string, models.UserStatus](),
		maxMessages: config.MaxMessages,
	}
}

func (s *Store) SetCurrentUser(username string) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.currentUser = username
}

func (s *Store) CurrentUser() string {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.currentUser
}

// ReplaceChats swaps the whole chat collection for one chat per id.
// Ids that do not split into two usernames are skipped.
// The friends map is rebuilt and the selection is dropped when its chat
// is gone.
func (s *Store) ReplaceChats(chatIDs []string) []models.Chat {
	s.mux.Lock()
	defer s.mux.Unlock()

	chats := make(map[string]*models.Chat, len(chatIDs))
	order := make([]string, 0, len(chatIDs))
	friends := make(map[string]string, len(chatIDs))

	for _, id := range chatIDs {
		if _, dup := chats[id]; dup {
			continue
		}
		friend, ok := models.Counterpart(id, s.currentUser)
		if !ok {
			continue
		}
		c := s.newChat(id, friend)
		chats[id] = c
		order = append(order, id)
		friends[friend] = id
	}

	s.chats = chats
	s.order = order
	s.friends = friends
	if _, ok := s.chats[s.selected]; !ok {
		s.selected = ""
	}

	return s.chatsLocked()
}

// EnsureChat creates the chat with friend if it does not exist yet and
// registers the friend mapping either way.
func (s *Store) EnsureChat(chatID, friend string) bool {
	s.mux.Lock()
	defer s.mux.Unlock()

	s.friends[friend] = chatID
	if _, ok := s.chats[chatID]; ok {
		return false
	}
	s.chats[chatID] = s.newChat(chatID, friend)
	s.order = append(s.order, chatID)
	return true
}

func (s *Store) newChat(chatID, friend string) *models.Chat {
	me := models.NewUser(s.currentUser)
	other := models.NewUser(friend)
	if st, err := s.statuses.Get(friend); err == nil {
		applyStatus(&other, st)
	}
	return &models.Chat{
		ID:           chatID,
		Participants: []models.User{me, other},
	}
}

// AddMessage inserts msg or overwrites the message with the same id.
// A new message from someone else in a chat that is not selected bumps
// the chat's unread count. It reports whether the message was new.
func (s *Store) AddMessage(msg models.Message) bool {
	s.mux.Lock()
	defer s.mux.Unlock()

	list := s.messages[msg.ChatID]
	idx := slices.IndexFunc(list, func(m models.Message) bool { return m.ID == msg.ID })
	isNew := idx < 0
	if isNew {
		list = append(list, msg)
		list = s.trim(list)
	} else {
		list[idx] = msg
	}
	s.messages[msg.ChatID] = list
	s.revision++

	if c, ok := s.chats[msg.ChatID]; ok {
		c.LastMessageText = msg.Content
		c.LastMessageAt = msg.SentAt
		if isNew && s.selected != msg.ChatID && msg.SenderID != s.currentUser {
			c.UnreadCount++
		}
	}

	return isNew
}

// SetMessages replaces the message list of chatID.
func (s *Store) SetMessages(chatID string, msgs []models.Message) {
	s.mux.Lock()
	defer s.mux.Unlock()

	list := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		if i := slices.IndexFunc(list, func(x models.Message) bool { return x.ID == m.ID }); i >= 0 {
			list[i] = m
			continue
		}
		list = append(list, m)
	}
	s.messages[chatID] = s.trim(list)
	s.revision++
}

func (s *Store) SetDeliveryState(chatID, messageID string, state models.DeliveryState) bool {
	s.mux.Lock()
	defer s.mux.Unlock()

	list := s.messages[chatID]
	idx := slices.IndexFunc(list, func(m models.Message) bool { return m.ID == messageID })
	if idx < 0 {
		return false
	}
	list[idx].DeliveryState = state
	s.revision++
	return true
}

func (s *Store) RemoveMessage(chatID, messageID string) bool {
	s.mux.Lock()
	defer s.mux.Unlock()

	list := s.messages[chatID]
	idx := slices.IndexFunc(list, func(m models.Message) bool { return m.ID == messageID })
	if idx < 0 {
		return false
	}
	s.messages[chatID] = slices.Delete(list, idx, idx+1)
	s.revision++
	return true
}

func (s *Store) trim(list []models.Message) []models.Message {
	if s.maxMessages <= 0 || len(list) <= s.maxMessages {
		return list
	}
	return slices.Clone(list[len(list)-s.maxMessages:])
}

// Select makes chatID the current chat and clears its unread count.
func (s *Store) Select(chatID string) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	c, ok := s.chats[chatID]
	if !ok {
		return models.ErrNotFound
	}
	s.selected = chatID
	c.UnreadCount = 0
	return nil
}

func (s *Store) Selected() (models.Chat, bool) {
	s.mux.RLock()
	defer s.mux.RUnlock()

	c, ok := s.chats[s.selected]
	if !ok {
		return models.Chat{}, false
	}
	return c.Clone(), true
}

// ApplyStatus stores st unless a status with the same or a later UpdatedAt
// is already known, and mirrors it into every chat participant with that
// username. It reports whether st was applied.
func (s *Store) ApplyStatus(st models.UserStatus) bool {
	s.mux.Lock()
	defer s.mux.Unlock()

	if cur, err := s.statuses.Get(st.Username); err == nil && !st.NewerThan(cur) {
		return false
	}
	s.statuses.Set(st.Username, st)

	for _, c := range s.chats {
		for i := range c.Participants {
			if c.Participants[i].ID == st.Username {
				applyStatus(&c.Participants[i], st)
			}
		}
	}
	return true
}

func applyStatus(u *models.User, st models.UserStatus) {
	online := st.IsOnline
	u.IsOnline = &online
	u.LastSeenAt = nil
	if st.LastSeenAt != nil {
		seen := *st.LastSeenAt
		u.LastSeenAt = &seen
	}
}

func (s *Store) Status(username string) (models.UserStatus, bool) {
	s.mux.RLock()
	defer s.mux.RUnlock()

	st, err := s.statuses.Get(username)
	if err != nil {
		return models.UserStatus{}, false
	}
	return st, true
}

func (s *Store) Statuses() map[string]models.UserStatus {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.statuses.Snapshot()
}

func (s *Store) Chats() []models.Chat {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.chatsLocked()
}

func (s *Store) chatsLocked() []models.Chat {
	result := make([]models.Chat, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, s.chats[id].Clone())
	}
	return result
}

func (s *Store) Chat(chatID string) (models.Chat, bool) {
	s.mux.RLock()
	defer s.mux.RUnlock()

	c, ok := s.chats[chatID]
	if !ok {
		return models.Chat{}, false
	}
	return c.Clone(), true
}

func (s *Store) Messages(chatID string) []models.Message {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return slices.Clone(s.messages[chatID])
}

// FriendChatID returns the chat id registered for a friend's username.
func (s *Store) FriendChatID(username string) (string, bool) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	id, ok := s.friends[username]
	return id, ok
}

func (s *Store) SetGroups(groups []int64) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.groups = slices.Clone(groups)
}

func (s *Store) Groups() []int64 {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return slices.Clone(s.groups)
}

func (s *Store) SetOfflineSummaries(summaries []models.OfflineSummary) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.offline = slices.Clone(summaries)
}

func (s *Store) OfflineSummaries() []models.OfflineSummary {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return slices.Clone(s.offline)
}

func (s *Store) SetLoadingHistory(loading bool) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.loadingHistory = loading
}

func (s *Store) LoadingHistory() bool {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.loadingHistory
}

// Revision changes on every message mutation. It only tells views to
// refresh and carries no ordering meaning.
func (s *Store) Revision() uint64 {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.revision
}

// Reset empties the store for the next session.
func (s *Store) Reset() {
	s.mux.Lock()
	defer s.mux.Unlock()

	s.currentUser = ""
	s.chats = make(map[string]*models.Chat)
	s.order = nil
	s.messages = make(map[string][]models.Message)
	s.friends = make(map[string]string)
	s.statuses = geche.NewMapCache[string, models.UserStatus]()
	s.selected = ""
	s.groups = nil
	s.offline = nil
	s.loadingHistory = false
	s.revision++
}
