package chat

import (
	"fmt"
	"testing"
	"time"

	"chatsync/internal/models"
)

func newAliceStore(t *testing.T, chatIDs ...string) *Store {
	t.Helper()
	s := New(Config{})
	s.SetCurrentUser("alice")
	s.ReplaceChats(chatIDs)
	return s
}

func TestNew(t *testing.T) {
	s := New(Config{MaxMessages: 10})
	if s == nil {
		t.Fatal("New returned nil")
	}
	if s.maxMessages != 10 {
		t.Errorf("expected maxMessages 10, got %d", s.maxMessages)
	}
	if len(s.Chats()) != 0 {
		t.Error("new store should have no chats")
	}
}

func TestStore_ReplaceChats(t *testing.T) {
	s := newAliceStore(t, "alice-bob", "alice-carol")

	chats := s.Chats()
	if len(chats) != 2 {
		t.Fatalf("expected 2 chats, got %d", len(chats))
	}
	if chats[0].ID != "alice-bob" || chats[0].Participants[0].ID != "alice" || chats[0].Participants[1].ID != "bob" {
		t.Errorf("unexpected first chat: %+v", chats[0])
	}
	if id, ok := s.FriendChatID("carol"); !ok || id != "alice-carol" {
		t.Errorf("expected carol mapped to alice-carol, got %q %v", id, ok)
	}

	// A disjoint snapshot replaces the collection instead of merging into it.
	if err := s.Select("alice-bob"); err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	s.ReplaceChats([]string{"alice-dave", "erin-alice", "alice-dave", "garbage"})

	chats = s.Chats()
	if len(chats) != 2 {
		t.Fatalf("expected exactly the new set, got %+v", chats)
	}
	for _, c := range chats {
		if c.ID != "alice-dave" && c.ID != "erin-alice" {
			t.Errorf("unexpected chat %s after replace", c.ID)
		}
	}
	if _, ok := s.FriendChatID("bob"); ok {
		t.Error("bob should not be a friend after replace")
	}
	if _, ok := s.Selected(); ok {
		t.Error("selection should be dropped when its chat disappears")
	}
}

func TestStore_AddMessage_Dedup(t *testing.T) {
	s := newAliceStore(t, "alice-bob")

	first := models.Message{ID: "m1", ChatID: "alice-bob", SenderID: "bob", Content: "hi", DeliveryState: models.DeliverySent}
	second := first
	second.Content = "hi (edited)"

	if !s.AddMessage(first) {
		t.Error("first insert should be new")
	}
	if s.AddMessage(second) {
		t.Error("second insert with the same id should overwrite")
	}

	msgs := s.Messages("alice-bob")
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Content != "hi (edited)" {
		t.Errorf("later application should win, got %q", msgs[0].Content)
	}

	c, _ := s.Chat("alice-bob")
	if c.UnreadCount != 1 {
		t.Errorf("a duplicate must not count as unread twice, got %d", c.UnreadCount)
	}
	if c.LastMessageText != "hi (edited)" {
		t.Errorf("unexpected last message %q", c.LastMessageText)
	}
}

func TestStore_UnreadAccounting(t *testing.T) {
	s := newAliceStore(t, "alice-bob", "alice-carol")

	const n = 7
	for i := 0; i < n; i++ {
		s.AddMessage(models.Message{
			ID:       fmt.Sprintf("m%d", i),
			ChatID:   "alice-bob",
			SenderID: "bob",
			Content:  fmt.Sprintf("msg %d", i),
			SentAt:   time.Unix(int64(i), 0),
		})
	}
	// Own messages never count.
	s.AddMessage(models.Message{ID: "own", ChatID: "alice-bob", SenderID: "alice", Content: "mine"})

	c, _ := s.Chat("alice-bob")
	if c.UnreadCount != n {
		t.Errorf("expected unread %d, got %d", n, c.UnreadCount)
	}

	if err := s.Select("alice-bob"); err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	c, _ = s.Chat("alice-bob")
	if c.UnreadCount != 0 {
		t.Errorf("selecting should reset unread, got %d", c.UnreadCount)
	}

	// Messages to the selected chat do not count either.
	s.AddMessage(models.Message{ID: "late", ChatID: "alice-bob", SenderID: "bob", Content: "still there?"})
	c, _ = s.Chat("alice-bob")
	if c.UnreadCount != 0 {
		t.Errorf("selected chat should stay read, got %d", c.UnreadCount)
	}

	if err := s.Select("alice-nobody"); err != models.ErrNotFound {
		t.Errorf("expected ErrNotFound for unknown chat, got %v", err)
	}
}

func TestStore_MessageForUnknownChat(t *testing.T) {
	s := newAliceStore(t, "alice-bob")

	s.AddMessage(models.Message{ID: "x", ChatID: "alice-zoe", SenderID: "zoe", Content: "hey"})

	if len(s.Messages("alice-zoe")) != 1 {
		t.Error("message should be stored even without a chat entry")
	}
	if _, ok := s.Chat("alice-zoe"); ok {
		t.Error("a message must not create a chat")
	}
}

func TestStore_SetMessages_Replaces(t *testing.T) {
	s := newAliceStore(t, "alice-bob")
	s.AddMessage(models.Message{ID: "old", ChatID: "alice-bob", SenderID: "bob", Content: "old"})

	before := s.Revision()
	s.SetMessages("alice-bob", []models.Message{
		{ID: "h1", ChatID: "alice-bob", Content: "one"},
		{ID: "h2", ChatID: "alice-bob", Content: "two"},
		{ID: "h1", ChatID: "alice-bob", Content: "one again"},
	})

	msgs := s.Messages("alice-bob")
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].ID != "h1" || msgs[0].Content != "one again" || msgs[1].ID != "h2" {
		t.Errorf("unexpected page contents: %+v", msgs)
	}
	if s.Revision() == before {
		t.Error("revision should change on message mutation")
	}
}

func TestStore_MaxMessages(t *testing.T) {
	s := New(Config{MaxMessages: 3})
	s.SetCurrentUser("alice")
	s.ReplaceChats([]string{"alice-bob"})

	for i := 0; i < 4; i++ {
		s.AddMessage(models.Message{ID: fmt.Sprintf("m%d", i), ChatID: "alice-bob", SenderID: "bob", Content: fmt.Sprintf("msg %d", i)})
	}

	// msg 0 should be dropped
	msgs := s.Messages("alice-bob")
	expected := []string{"msg 1", "msg 2", "msg 3"}
	if len(msgs) != len(expected) {
		t.Fatalf("expected %d messages, got %d", len(expected), len(msgs))
	}
	for i, exp := range expected {
		if msgs[i].Content != exp {
			t.Errorf("index %d: expected '%s', got '%s'", i, exp, msgs[i].Content)
		}
	}
}

func TestStore_DeliveryStateAndRemove(t *testing.T) {
	s := newAliceStore(t, "alice-bob")
	s.AddMessage(models.Message{ID: "p", ChatID: "alice-bob", SenderID: "alice", DeliveryState: models.DeliveryPending})

	if !s.SetDeliveryState("alice-bob", "p", models.DeliverySent) {
		t.Fatal("SetDeliveryState should find the message")
	}
	if got := s.Messages("alice-bob")[0].DeliveryState; got != models.DeliverySent {
		t.Errorf("expected sent, got %s", got)
	}
	if s.SetDeliveryState("alice-bob", "missing", models.DeliveryRead) {
		t.Error("SetDeliveryState should report a missing message")
	}

	if !s.RemoveMessage("alice-bob", "p") {
		t.Fatal("RemoveMessage should find the message")
	}
	if len(s.Messages("alice-bob")) != 0 {
		t.Error("message should be gone")
	}
}

func TestStore_ApplyStatus_LastWriterWins(t *testing.T) {
	t1 := time.Unix(1000, 0)
	t2 := time.Unix(2000, 0)
	online := models.UserStatus{Username: "bob", IsOnline: true, UpdatedAt: t1}
	offline := models.UserStatus{Username: "bob", IsOnline: false, LastSeenAt: &t2, UpdatedAt: t2}

	orders := map[string][]models.UserStatus{
		"T1 then T2": {online, offline},
		"T2 then T1": {offline, online},
	}

	for name, updates := range orders {
		t.Run(name, func(t *testing.T) {
			s := newAliceStore(t, "alice-bob")
			for _, u := range updates {
				s.ApplyStatus(u)
			}

			st, ok := s.Status("bob")
			if !ok {
				t.Fatal("status not stored")
			}
			if st.IsOnline || !st.UpdatedAt.Equal(t2) {
				t.Errorf("expected the T2 status, got %+v", st)
			}

			c, _ := s.Chat("alice-bob")
			bob, _ := c.Counterpart("alice")
			if bob.IsOnline == nil || *bob.IsOnline {
				t.Errorf("participant should mirror the stored status, got %+v", bob)
			}
			if bob.LastSeenAt == nil || !bob.LastSeenAt.Equal(t2) {
				t.Errorf("expected last seen %v, got %v", t2, bob.LastSeenAt)
			}
		})
	}
}

func TestStore_StatusCarriedIntoNewChats(t *testing.T) {
	s := newAliceStore(t)
	s.ApplyStatus(models.UserStatus{Username: "bob", IsOnline: true, UpdatedAt: time.Unix(10, 0)})

	if !s.EnsureChat("alice-bob", "bob") {
		t.Fatal("EnsureChat should create the chat")
	}
	if s.EnsureChat("alice-bob", "bob") {
		t.Error("EnsureChat should be idempotent")
	}

	c, _ := s.Chat("alice-bob")
	bob, _ := c.Counterpart("alice")
	if bob.IsOnline == nil || !*bob.IsOnline {
		t.Errorf("new chat should pick up the known status, got %+v", bob)
	}
}

func TestStore_Reset(t *testing.T) {
	s := newAliceStore(t, "alice-bob")
	s.AddMessage(models.Message{ID: "m", ChatID: "alice-bob", SenderID: "bob"})
	s.ApplyStatus(models.UserStatus{Username: "bob", UpdatedAt: time.Unix(1, 0)})
	s.SetLoadingHistory(true)
	s.SetGroups([]int64{1})

	s.Reset()

	if len(s.Chats()) != 0 || len(s.Messages("alice-bob")) != 0 {
		t.Error("reset should drop chats and messages")
	}
	if _, ok := s.Status("bob"); ok {
		t.Error("reset should drop statuses")
	}
	if s.LoadingHistory() || len(s.Groups()) != 0 || s.CurrentUser() != "" {
		t.Error("reset should clear session-scoped flags")
	}
}

func TestStore_ApplyStatus_OnlineClearsLastSeen(t *testing.T) {
	s := newAliceStore(t, "alice-bob")
	seen := time.Unix(1000, 0)

	s.ApplyStatus(models.UserStatus{Username: "bob", IsOnline: false, LastSeenAt: &seen, UpdatedAt: seen})
	s.ApplyStatus(models.UserStatus{Username: "bob", IsOnline: true, UpdatedAt: time.Unix(2000, 0)})

	st, _ := s.Status("bob")
	c, _ := s.Chat("alice-bob")
	bob, _ := c.Counterpart("alice")
	if bob.IsOnline == nil || !*bob.IsOnline {
		t.Fatalf("expected bob online, got %+v", bob)
	}
	if bob.LastSeenAt != nil || st.LastSeenAt != nil {
		t.Errorf("participant and status should agree on no last seen, got %v and %v", bob.LastSeenAt, st.LastSeenAt)
	}
}
