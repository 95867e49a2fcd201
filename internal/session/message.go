package session

import "time"

// Role tags who produced a history entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleDeveloper Role = "developer"
	RoleSystem    Role = "system"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleDeveloper, RoleSystem:
		return true
	}
	return false
}

// Message is one append-only history entry. Seq breaks ties between
// entries created within the same clock tick.
type Message struct {
	Seq       int64     `json:"seq"`
	UserID    string    `json:"user_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
