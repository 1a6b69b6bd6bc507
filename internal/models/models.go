package models

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
)

// User represents a chat participant. Identity is the username:
// ID and DisplayName carry the same string.
type User struct {
	ID          string     `json:"id"`
	DisplayName string     `json:"displayName"`
	IsOnline    *bool      `json:"isOnline,omitempty"`
	LastSeenAt  *time.Time `json:"lastSeenAt,omitempty"`
}

func NewUser(username string) User {
	return User{ID: username, DisplayName: username}
}

// Chat represents a one-to-one conversation.
type Chat struct {
	ID              string    `json:"id"`
	Participants    []User    `json:"participants"`
	LastMessageText string    `json:"lastMessageText"`
	LastMessageAt   time.Time `json:"lastMessageAt"`
	UnreadCount     int       `json:"unreadCount"`
}

// Counterpart returns the participant that is not userID.
func (c Chat) Counterpart(userID string) (User, bool) {
	for _, u := range c.Participants {
		if u.ID != userID {
			return u, true
		}
	}
	return User{}, false
}

// Clone returns a copy that shares no slices with c.
func (c Chat) Clone() Chat {
	c.Participants = append([]User(nil), c.Participants...)
	return c
}

type DeliveryState string

const (
	DeliveryPending   DeliveryState = "pending"
	DeliverySent      DeliveryState = "sent"
	DeliveryDelivered DeliveryState = "delivered"
	DeliveryRead      DeliveryState = "read"
)

// Message represents a chat message. ID is unique within a chat.
type Message struct {
	ID            string        `json:"id"`
	ChatID        string        `json:"chatId"`
	SenderID      string        `json:"senderId"`
	Content       string        `json:"content"`
	SentAt        time.Time     `json:"sentAt"`
	DeliveryState DeliveryState `json:"deliveryState"`
}

// UserStatus is the last known presence of a user.
type UserStatus struct {
	Username   string     `json:"username"`
	IsOnline   bool       `json:"isOnline"`
	LastSeenAt *time.Time `json:"lastSeenAt,omitempty"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// NewerThan reports whether s should replace other.
func (s UserStatus) NewerThan(other UserStatus) bool {
	return s.UpdatedAt.After(other.UpdatedAt)
}

// Session represents the authenticated user's connection lifecycle.
type Session struct {
	CurrentUser         *User  `json:"currentUser,omitempty"`
	Token               string `json:"-"`
	IsAuthenticated     bool   `json:"isAuthenticated"`
	IsConnected         bool   `json:"isConnected"`
	IsConnecting        bool   `json:"isConnecting"`
	IsInitialized       bool   `json:"isInitialized"`
	PresenceConnected   bool   `json:"presenceConnected"`
	LastConnectionError string `json:"lastConnectionError,omitempty"`
}

// Username returns the current user's id or an empty string.
func (s Session) Username() string {
	if s.CurrentUser == nil {
		return ""
	}
	return s.CurrentUser.ID
}

type OfflineMessageType string

const (
	OfflineOneToOne OfflineMessageType = "ONE_TO_ONE"
	OfflineGroup    OfflineMessageType = "GROUP"
)

// OfflineSummary describes messages queued by the server while the user was away.
type OfflineSummary struct {
	PartitionKey string             `json:"partitionKey"`
	Count        int                `json:"count"`
	MessageType  OfflineMessageType `json:"messageType"`
	From         string             `json:"from,omitempty"`
	GroupName    string             `json:"groupName,omitempty"`
}
