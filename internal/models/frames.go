package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrMalformedFrame   = errors.New("malformed frame")
	ErrUnknownFrameType = errors.New("unknown frame type")
)

type ClientFrameType string

const (
	ClientFrameInitData     ClientFrameType = "INIT_DATA"
	ClientFrameOneToOneChat ClientFrameType = "ONE_TO_ONE_CHAT"
	ClientFrameGetHistory   ClientFrameType = "GET_ONE_TO_ONE_HISTORY"
	ClientFrameNewChat      ClientFrameType = "NEW_ONE_TO_ONE_CHAT"
	ClientFrameOfflineAck   ClientFrameType = "OFFLINE_MESSAGES_ACK"
	ClientFrameDisconnect   ClientFrameType = "DISCONNECT"
)

// ClientFrame represents a frame sent from the client to the chat server.
// ClientMsgID lets the server echo a sent message back under the id the
// client inserted it with.
type ClientFrame struct {
	Type        ClientFrameType `json:"type"`
	From        string          `json:"from,omitempty"`
	To          string          `json:"to,omitempty"`
	Content     string          `json:"content,omitempty"`
	ChatID      string          `json:"chatId,omitempty"`
	ClientMsgID string          `json:"clientMsgId,omitempty"`
}

func InitDataRequest() ClientFrame {
	return ClientFrame{Type: ClientFrameInitData}
}

func OneToOneChat(from, to, content, chatID, clientMsgID string) ClientFrame {
	return ClientFrame{
		Type:        ClientFrameOneToOneChat,
		From:        from,
		To:          to,
		Content:     content,
		ChatID:      chatID,
		ClientMsgID: clientMsgID,
	}
}

func HistoryRequest(from, to, chatID string) ClientFrame {
	return ClientFrame{Type: ClientFrameGetHistory, From: from, To: to, ChatID: chatID}
}

func NewChatRequest(from, to string) ClientFrame {
	return ClientFrame{Type: ClientFrameNewChat, From: from, To: to}
}

func OfflineMessagesAck() ClientFrame {
	return ClientFrame{Type: ClientFrameOfflineAck}
}

func DisconnectNotice() ClientFrame {
	return ClientFrame{Type: ClientFrameDisconnect}
}

type ServerFrameType string

const (
	ServerFrameInitData     ServerFrameType = "INIT_DATA"
	ServerFrameMessage      ServerFrameType = "MESSAGE"
	ServerFrameHistory      ServerFrameType = "ONE_TO_ONE_CHAT_HISTORY"
	ServerFrameChatApproval ServerFrameType = "NEW_ONE_TO_ONE_CHAT_AP"
	ServerFrameInfo         ServerFrameType = "INFO"
	ServerFrameSuccess      ServerFrameType = "SUCCESS"
	ServerFrameError        ServerFrameType = "ERROR"
	ServerFrameStatusChange ServerFrameType = "STATUS_CHANGE"
)

// ServerFrame is one decoded inbound frame. The concrete type is one of
// *InitData, *IncomingMessage, *HistoryPage, *ChatApproval, *Notice,
// *StatusChange or *UnknownFrame.
type ServerFrame interface {
	FrameType() ServerFrameType
}

type InitData struct {
	Type            ServerFrameType  `json:"type"`
	ChatIDs         []string         `json:"chatIds"`
	Groups          []int64          `json:"groups,omitempty"`
	OfflineMessages []OfflineSummary `json:"offlineMessages,omitempty"`
}

type IncomingMessage struct {
	Type        ServerFrameType `json:"type"`
	From        string          `json:"from"`
	Content     string          `json:"content"`
	ChatID      string          `json:"chatId"`
	Timestamp   string          `json:"timestamp,omitempty"`
	MessageID   string          `json:"messageId,omitempty"`
	ClientMsgID string          `json:"clientMsgId,omitempty"`
}

type HistoryMessage struct {
	MessageID string `json:"messageId"`
	From      string `json:"from"`
	To        string `json:"to"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

type HistoryPage struct {
	Type         ServerFrameType  `json:"type"`
	Messages     []HistoryMessage `json:"messages"`
	IsOnline     bool             `json:"isOnline"`
	LastSeenTime string           `json:"lastSeenTime,omitempty"`
}

type ChatApproval struct {
	Type   ServerFrameType `json:"type"`
	From   string          `json:"from,omitempty"`
	To     string          `json:"to,omitempty"`
	ChatID string          `json:"chatId,omitempty"`
	Msg    string          `json:"msg,omitempty"`
}

// Notice is an INFO, SUCCESS or ERROR frame.
type Notice struct {
	Type ServerFrameType `json:"type"`
	Msg  string          `json:"msg"`
}

type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "ONLINE"
	PresenceOffline PresenceStatus = "OFFLINE"
)

type StatusChange struct {
	Type     ServerFrameType `json:"type"`
	Username string          `json:"username"`
	Status   PresenceStatus  `json:"status"`
}

// UnknownFrame carries a well-formed frame with an unrecognized type.
type UnknownFrame struct {
	Type ServerFrameType
}

func (f *InitData) FrameType() ServerFrameType        { return ServerFrameInitData }
func (f *IncomingMessage) FrameType() ServerFrameType { return ServerFrameMessage }
func (f *HistoryPage) FrameType() ServerFrameType     { return ServerFrameHistory }
func (f *ChatApproval) FrameType() ServerFrameType    { return ServerFrameChatApproval }
func (f *Notice) FrameType() ServerFrameType          { return f.Type }
func (f *StatusChange) FrameType() ServerFrameType    { return ServerFrameStatusChange }
func (f *UnknownFrame) FrameType() ServerFrameType    { return f.Type }

// DecodeServerFrame parses raw into a typed frame. It never panics: invalid
// JSON yields ErrMalformedFrame and an unrecognized discriminator yields an
// *UnknownFrame with a nil error.
func DecodeServerFrame(raw []byte) (ServerFrame, error) {
	var envelope struct {
		Type ServerFrameType `json:"type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	var frame ServerFrame
	switch envelope.Type {
	case ServerFrameInitData:
		frame = &InitData{}
	case ServerFrameMessage:
		frame = &IncomingMessage{}
	case ServerFrameHistory:
		frame = &HistoryPage{}
	case ServerFrameChatApproval:
		frame = &ChatApproval{}
	case ServerFrameInfo, ServerFrameSuccess, ServerFrameError:
		frame = &Notice{}
	case ServerFrameStatusChange:
		frame = &StatusChange{}
	default:
		return &UnknownFrame{Type: envelope.Type}, nil
	}

	if err := json.Unmarshal(raw, frame); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedFrame, envelope.Type, err)
	}
	return frame, nil
}

// ParseTimestamp parses an RFC 3339 wire timestamp, falling back to fallback
// when s is empty or invalid.
func ParseTimestamp(s string, fallback time.Time) time.Time {
	if s == "" {
		return fallback
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fallback
	}
	return t
}
