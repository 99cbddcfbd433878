// Package domain holds the entities shared by storage, services and the bot layer.
package domain

import "time"

// User represents a Telegram user known to the bot.
type User struct {
	ID           int64
	Username     string
	FullName     string
	LanguageCode string
	Balance      int64
	LastRewardAt *time.Time
	LastTaskAt   *time.Time
	CreatedAt    time.Time
}

// DisplayName returns the best available human-readable name.
func (u User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return ""
}
