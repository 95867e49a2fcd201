package preference

import "time"

// Preference is the single active language choice for a user.
type Preference struct {
	UserID    string    `json:"user_id"`
	Language  Language  `json:"language"`
	UpdatedAt time.Time `json:"updated_at"`
}
