package models

import "time"

// PrayerTime is one entry of a day's schedule
type PrayerTime struct {
	Name     string    `json:"name"`     // canonical prayer name
	Time     string    `json:"time"`     // time of day as HH:MM
	DateTime time.Time `json:"datetime"` // full local datetime for the schedule day
}

// SystemInfo is the best-effort detected location of this machine
type SystemInfo struct {
	Location string `json:"location"`
	Timezone string `json:"timezone"`
}

// DateKey formats t as the calendar date used to key a day's schedule
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}
