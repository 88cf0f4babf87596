package models

import "time"

// ReminderEvent is produced once per prayer per day when its window opens
type ReminderEvent struct {
	ID          string    // Unique identifier for the reminder (UUID)
	Prayer      string    // Canonical prayer name
	ScheduledAt time.Time // Exact prayer time
	Title       string    // Notification title
	Body        string    // Notification body
}

// ActivePrayerMarker marks the prayer most recently reminded about
type ActivePrayerMarker struct {
	Prayer    string    `json:"prayer_name"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PlaybackState is the state of the adhan player
type PlaybackState string

const (
	PlaybackIdle    PlaybackState = "Idle"    // Nothing is playing
	PlaybackPlaying PlaybackState = "Playing" // A stream is active
)
