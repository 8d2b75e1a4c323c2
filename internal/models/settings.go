package models

import "time"

// Settings holds user preferences persisted by the agent
type Settings struct {
	AutoFill              bool   `json:"autoFill"`
	ShowNotifications     bool   `json:"showNotifications"`
	AutoLockMinutes       int    `json:"autoLockMinutes" validate:"min=0,max=1440"`
	ClearClipboardSeconds int    `json:"clearClipboardSeconds" validate:"min=0,max=600"`
	DarkMode              string `json:"darkMode" validate:"omitempty,oneof=system light dark"`
	Language              string `json:"language" validate:"omitempty,max=8"`
}

// DefaultSettings returns the preferences used before the user changes anything
func DefaultSettings() Settings {
	return Settings{
		AutoFill:              true,
		ShowNotifications:     true,
		AutoLockMinutes:       30,
		ClearClipboardSeconds: 30,
		DarkMode:              "system",
		Language:              "it",
	}
}

// CacheEntry is a durable, time-bounded cache blob
type CacheEntry struct {
	Key     string    `json:"key"`
	Data    []byte    `json:"data"`
	Expires time.Time `json:"expires"`
}

// Expired reports whether the entry is past its expiry
func (e *CacheEntry) Expired(now time.Time) bool {
	return now.After(e.Expires)
}
