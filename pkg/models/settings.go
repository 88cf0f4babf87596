package models

// Canonical prayer names in daily order
const (
	Fajr    = "Fajr"
	Dhuhr   = "Dhuhr"
	Asr     = "Asr"
	Maghrib = "Maghrib"
	Isha    = "Isha"
)

// PrayerNames lists the five daily prayers in schedule order
var PrayerNames = []string{Fajr, Dhuhr, Asr, Maghrib, Isha}

// DefaultLocation is used until the user picks or detects a location
const DefaultLocation = "New Taipei City"

// AppSettings holds the user-editable settings record
type AppSettings struct {
	Location       string   `json:"location"`        // free-form place name passed to the provider
	PlaySound      bool     `json:"play_sound"`      // play the adhan alongside the notification
	EnabledPrayers []string `json:"enabled_prayers"` // set of prayer names that get reminders
	RunAtStartup   bool     `json:"run_at_startup"`  // register an OS login item
}

// DefaultSettings returns the settings used on first run
func DefaultSettings() AppSettings {
	enabled := make([]string, len(PrayerNames))
	copy(enabled, PrayerNames)
	return AppSettings{
		Location:       DefaultLocation,
		PlaySound:      true,
		EnabledPrayers: enabled,
		RunAtStartup:   false,
	}
}

// IsPrayerName reports whether name is one of the five canonical prayers
func IsPrayerName(name string) bool {
	for _, p := range PrayerNames {
		if p == name {
			return true
		}
	}
	return false
}

// Normalize returns a copy with enabled prayers restricted to canonical names,
// de-duplicated and stored in schedule order
func (s AppSettings) Normalize() AppSettings {
	seen := make(map[string]bool, len(s.EnabledPrayers))
	for _, name := range s.EnabledPrayers {
		seen[name] = true
	}

	enabled := make([]string, 0, len(PrayerNames))
	for _, name := range PrayerNames {
		if seen[name] {
			enabled = append(enabled, name)
		}
	}

	s.EnabledPrayers = enabled
	return s
}

// Clone returns a deep copy so callers never share the enabled slice
func (s AppSettings) Clone() AppSettings {
	if s.EnabledPrayers != nil {
		enabled := make([]string, len(s.EnabledPrayers))
		copy(enabled, s.EnabledPrayers)
		s.EnabledPrayers = enabled
	}
	return s
}

// IsEnabled reports whether reminders are on for the given prayer
func (s AppSettings) IsEnabled(name string) bool {
	for _, p := range s.EnabledPrayers {
		if p == name {
			return true
		}
	}
	return false
}

// SetEnabled returns a copy with the prayer added to or removed from the enabled set
func (s AppSettings) SetEnabled(name string, enabled bool) AppSettings {
	s = s.Clone()
	if enabled {
		s.EnabledPrayers = append(s.EnabledPrayers, name)
	} else {
		kept := s.EnabledPrayers[:0]
		for _, p := range s.EnabledPrayers {
			if p != name {
				kept = append(kept, p)
			}
		}
		s.EnabledPrayers = kept
	}
	return s.Normalize()
}

// Equal compares two settings values after normalization
func (s AppSettings) Equal(other AppSettings) bool {
	a, b := s.Normalize(), other.Normalize()
	if a.Location != b.Location || a.PlaySound != b.PlaySound || a.RunAtStartup != b.RunAtStartup {
		return false
	}
	if len(a.EnabledPrayers) != len(b.EnabledPrayers) {
		return false
	}
	for i := range a.EnabledPrayers {
		if a.EnabledPrayers[i] != b.EnabledPrayers[i] {
			return false
		}
	}
	return true
}
