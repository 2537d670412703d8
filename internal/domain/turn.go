// Package domain contains core domain types for the HeliXR orchestrator.
package domain

import (
	"time"
)

// Role identifies the author of a conversation turn. The upstream model
// requires strict user/model alternation starting with RoleUser.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Turn is one exchange unit in a session's conversation history. The
// payload is either Text or Audio (with MimeType set), never both.
type Turn struct {
	Role      Role
	Text      string
	Audio     []byte
	MimeType  string
	Timestamp time.Time
}

// IsAudio returns true when the turn carries a binary audio payload.
func (t Turn) IsAudio() bool {
	return len(t.Audio) > 0
}

// Alternates reports whether history alternates roles starting with
// RoleUser. An empty history alternates trivially.
func Alternates(history []Turn) bool {
	want := RoleUser
	for _, t := range history {
		if t.Role != want {
			return false
		}
		if want == RoleUser {
			want = RoleModel
		} else {
			want = RoleUser
		}
	}
	return true
}

// CanAcceptUserTurn reports whether appending a user turn to history
// preserves the alternation invariant. A violation means the history must
// be reset before any upstream call.
func CanAcceptUserTurn(history []Turn) bool {
	return Alternates(history) && len(history)%2 == 0
}
