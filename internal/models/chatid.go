package models

import (
	"sort"
	"strings"
)

const chatIDSeparator = "-"

// DeriveChatID returns the id the server assigns to the one-to-one chat
// between a and b: both usernames sorted byte-wise and joined with a dash.
func DeriveChatID(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return ids[0] + chatIDSeparator + ids[1]
}

// Counterpart returns the other participant of chatID as seen by userID.
// Usernames may themselves contain dashes, so userID is stripped from
// either end of the id before falling back to a plain two-way split.
func Counterpart(chatID, userID string) (string, bool) {
	if userID != "" {
		if rest, ok := strings.CutPrefix(chatID, userID+chatIDSeparator); ok && rest != "" {
			if DeriveChatID(userID, rest) == chatID {
				return rest, true
			}
		}
		if rest, ok := strings.CutSuffix(chatID, chatIDSeparator+userID); ok && rest != "" {
			if DeriveChatID(userID, rest) == chatID {
				return rest, true
			}
		}
	}

	parts := strings.Split(chatID, chatIDSeparator)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", false
	}
	if parts[0] == userID {
		return parts[1], true
	}
	return parts[0], true
}

// IsParticipant reports whether userID is one of the two users of chatID.
func IsParticipant(chatID, userID string) bool {
	other, ok := Counterpart(chatID, userID)
	if !ok {
		return false
	}
	return DeriveChatID(userID, other) == chatID
}
