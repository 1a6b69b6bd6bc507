package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"chatsync/internal/models"
	"chatsync/internal/reconcile"
)

type Kind string

const (
	KindChats   Kind = "chats"
	KindOpen    Kind = "open"
	KindHistory Kind = "history"
	KindNew     Kind = "new"
	KindSend    Kind = "send"
	KindStatus  Kind = "status"
	KindLogout  Kind = "logout"
	KindQuit    Kind = "quit"
	KindHelp    Kind = "help"
	// KindSay sends a bare line to the selected chat.
	KindSay Kind = "say"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrUsage          = errors.New("usage")
	ErrNoChatSelected = errors.New("no chat selected, use /open <friend>")
)

type Command struct {
	Kind   Kind
	Friend string
	Text   string
}

const helpText = `/chats                 list chats
/open <friend>         select a chat and load its history
/history <friend>      reload history
/new <friend>          start a chat
/send <friend> <text>  send a message
/status                show connection state
/logout                log out and forget the session
/quit                  exit
anything else is sent to the selected chat`

// Parse turns one input line into a command. Blank lines yield a zero
// Command and no error.
func Parse(line string) (Command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Command{}, nil
	}
	if !strings.HasPrefix(line, "/") {
		return Command{Kind: KindSay, Text: line}, nil
	}

	name, rest, _ := strings.Cut(line[1:], " ")
	rest = strings.TrimSpace(rest)

	switch Kind(name) {
	case KindChats, KindStatus, KindLogout, KindQuit, KindHelp:
		return Command{Kind: Kind(name)}, nil
	case KindOpen, KindHistory, KindNew:
		if rest == "" || strings.Contains(rest, " ") {
			return Command{}, fmt.Errorf("%w: /%s <friend>", ErrUsage, name)
		}
		return Command{Kind: Kind(name), Friend: rest}, nil
	case KindSend:
		friend, text, _ := strings.Cut(rest, " ")
		text = strings.TrimSpace(text)
		if friend == "" || text == "" {
			return Command{}, fmt.Errorf("%w: /send <friend> <text>", ErrUsage)
		}
		return Command{Kind: KindSend, Friend: friend, Text: text}, nil
	}
	return Command{}, fmt.Errorf("%w: /%s", ErrUnknownCommand, name)
}

// Client is the part of the chat client the commands drive.
type Client interface {
	Session() models.Session
	Chats() []models.Chat
	Messages(chatID string) []models.Message
	Selected() (models.Chat, bool)
	Statuses() map[string]models.UserStatus
	OpenChat(friend string) (string, error)
	RequestHistory(friend string) error
	StartChat(friend string) error
	SendMessage(to, text string) (models.Message, error)
	Logout(ctx context.Context) error
}

// Execute runs cmd against c and prints the outcome to w. It reports
// whether the user asked to quit.
func Execute(ctx context.Context, c Client, cmd Command, w io.Writer) (bool, error) {
	me := c.Session().Username()

	switch cmd.Kind {
	case "":
		return false, nil
	case KindQuit:
		return true, nil
	case KindHelp:
		fmt.Fprintln(w, helpText)
	case KindChats:
		printChats(w, c, me)
	case KindStatus:
		printStatus(w, c.Session())
	case KindOpen:
		chatID, err := c.OpenChat(cmd.Friend)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(w, "-- %s --\n", chatID)
		for _, m := range c.Messages(chatID) {
			fmt.Fprintln(w, FormatMessage(m))
		}
	case KindHistory:
		return false, c.RequestHistory(cmd.Friend)
	case KindNew:
		return false, c.StartChat(cmd.Friend)
	case KindSend:
		_, err := c.SendMessage(cmd.Friend, cmd.Text)
		return false, err
	case KindSay:
		selected, ok := c.Selected()
		if !ok {
			return false, ErrNoChatSelected
		}
		friend, _ := selected.Counterpart(me)
		_, err := c.SendMessage(friend.ID, cmd.Text)
		return false, err
	case KindLogout:
		if err := c.Logout(ctx); err != nil {
			return false, err
		}
		fmt.Fprintln(w, "Logged out.")
		return true, nil
	}
	return false, nil
}

func printChats(w io.Writer, c Client, me string) {
	chats := c.Chats()
	if len(chats) == 0 {
		fmt.Fprintln(w, "No chats yet. Start one with /new <friend>.")
		return
	}
	selected, _ := c.Selected()
	slices.SortStableFunc(chats, func(a, b models.Chat) int {
		return b.LastMessageAt.Compare(a.LastMessageAt)
	})

	for _, chat := range chats {
		friend, _ := chat.Counterpart(me)
		marker := " "
		if chat.ID == selected.ID {
			marker = "*"
		}
		line := fmt.Sprintf("%s %-20s %s", marker, friend.ID, presence(friend))
		if chat.UnreadCount > 0 {
			line += fmt.Sprintf(" (%d unread)", chat.UnreadCount)
		}
		if chat.LastMessageText != "" {
			line += "  " + preview(chat.LastMessageText)
		}
		fmt.Fprintln(w, line)
	}
}

func printStatus(w io.Writer, s models.Session) {
	fmt.Fprintf(w, "User:        %s\n", s.Username())
	fmt.Fprintf(w, "Chat:        %s\n", connState(s.IsConnected, s.IsConnecting))
	fmt.Fprintf(w, "Presence:    %s\n", connState(s.PresenceConnected, false))
	fmt.Fprintf(w, "Initialized: %t\n", s.IsInitialized)
	if s.LastConnectionError != "" {
		fmt.Fprintf(w, "Last error:  %s\n", s.LastConnectionError)
	}
}

func connState(connected, connecting bool) string {
	switch {
	case connected:
		return "connected"
	case connecting:
		return "connecting"
	}
	return "disconnected"
}

func presence(u models.User) string {
	switch {
	case u.IsOnline == nil:
		return "unknown"
	case *u.IsOnline:
		return "online"
	case u.LastSeenAt != nil:
		return "last seen " + u.LastSeenAt.Local().Format(time.DateTime)
	}
	return "offline"
}

func preview(text string) string {
	const maxPreview = 40
	text = strings.ReplaceAll(text, "\n", " ")
	if r := []rune(text); len(r) > maxPreview {
		return string(r[:maxPreview-1]) + "…"
	}
	return text
}

func FormatMessage(m models.Message) string {
	line := fmt.Sprintf("[%s] %s: %s", m.SentAt.Local().Format(time.TimeOnly), m.SenderID, m.Content)
	if m.DeliveryState == models.DeliveryPending {
		line += " (sending)"
	}
	return line
}

// FormatUpdate renders an update for the terminal. It returns an empty
// string for updates that need no output.
func FormatUpdate(c Client, u reconcile.Update) string {
	switch u.Kind {
	case reconcile.UpdateInit:
		return fmt.Sprintf("Connected. %d chat(s), /chats to list them.", len(c.Chats()))
	case reconcile.UpdateMessage:
		msgs := c.Messages(u.ChatID)
		i := slices.IndexFunc(msgs, func(m models.Message) bool { return m.ID == u.MessageID })
		if i < 0 {
			return ""
		}
		m := msgs[i]
		if m.SenderID == c.Session().Username() {
			return ""
		}
		return fmt.Sprintf("<%s> %s", u.ChatID, FormatMessage(m))
	case reconcile.UpdateHistory:
		if u.ChatID == "" {
			return "No history yet."
		}
		var b strings.Builder
		fmt.Fprintf(&b, "-- history %s --", u.ChatID)
		for _, m := range c.Messages(u.ChatID) {
			b.WriteString("\n")
			b.WriteString(FormatMessage(m))
		}
		return b.String()
	case reconcile.UpdateChat:
		if u.Text != "" {
			return fmt.Sprintf("Chat %s ready: %s", u.ChatID, u.Text)
		}
		return fmt.Sprintf("Chat %s ready.", u.ChatID)
	case reconcile.UpdateStatus:
		st, ok := c.Statuses()[u.Text]
		if !ok {
			return ""
		}
		if st.IsOnline {
			return u.Text + " is online"
		}
		return u.Text + " went offline"
	case reconcile.UpdateNotice:
		return "! " + u.Text
	case reconcile.UpdateAckError:
		return "! offline messages not acknowledged: " + u.Text
	}
	return ""
}
