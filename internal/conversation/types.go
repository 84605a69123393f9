package conversation

import (
	"context"
	"errors"
	"regexp"
	"time"
)

// Role represents the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

var (
	// ErrConversationNotFound is returned when a source has no transcript for
	// the requested conversation.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrInvalidConversationID is returned for IDs outside the safe set.
	ErrInvalidConversationID = errors.New("invalid conversation id")
)

// Turn is one message of a conversation.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// TurnSource supplies the recent turns of a conversation.
type TurnSource interface {
	// RecentTurns returns at most limit of the latest turns authored by role,
	// in chronological order. A non-positive limit means no limit.
	RecentTurns(ctx context.Context, conversationID string, role Role, limit int) ([]Turn, error)
}

var conversationIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,127}$`)

// ValidateConversationID reports whether id is safe to use as a file name.
func ValidateConversationID(id string) error {
	if !conversationIDPattern.MatchString(id) {
		return ErrInvalidConversationID
	}
	// The leading character excludes "." and ".." but not embedded "..".
	for i := 0; i+1 < len(id); i++ {
		if id[i] == '.' && id[i+1] == '.' {
			return ErrInvalidConversationID
		}
	}
	return nil
}

// lastN keeps the final n turns with the given role.
func lastN(turns []Turn, role Role, n int) []Turn {
	out := make([]Turn, 0, len(turns))
	for _, t := range turns {
		if t.Role == role {
			out = append(out, t)
		}
	}
	if n > 0 && len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}
