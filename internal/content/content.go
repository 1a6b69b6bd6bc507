package content

import (
	"errors"
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

const maxUsernameLength = 64

var (
	policy        = bluemonday.StrictPolicy()
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

	ErrInvalidUsername = errors.New("invalid username")
)

// PlainText strips every HTML tag from a message received over the wire and
// decodes entities so the text can be printed to a terminal as is.
func PlainText(input string) string {
	return html.UnescapeString(policy.Sanitize(input))
}

// ValidateUsername checks that username can be used on the wire and inside a
// chat id: alphanumeric, dot, dash or underscore, not starting or ending with
// the dash that separates the two halves of a chat id.
func ValidateUsername(username string) error {
	switch {
	case username == "":
		return errors.Join(ErrInvalidUsername, errors.New("username cannot be empty"))
	case len(username) > maxUsernameLength:
		return errors.Join(ErrInvalidUsername, errors.New("username is too long"))
	case !usernameRegex.MatchString(username):
		return errors.Join(ErrInvalidUsername, errors.New("username contains invalid characters (allowed: alphanumeric, dot, dash, underscore)"))
	case strings.HasPrefix(username, "-") || strings.HasSuffix(username, "-"):
		return errors.Join(ErrInvalidUsername, errors.New("username cannot start or end with a dash"))
	}
	return nil
}
