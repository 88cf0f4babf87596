package prayertimes

import (
	"strings"
	"time"
)

// Zones guessed from the UTC offset when nothing better is known
var offsetZones = map[int]string{
	8 * 3600: "Asia/Taipei",
	7 * 3600: "Asia/Jakarta",
	9 * 3600: "Asia/Tokyo",
}

// timezoneFor picks the IANA zone name sent along with a request. The location
// itself wins if it is a zone name, then the zone of now, then a guess from
// now's UTC offset.
func timezoneFor(location string, now time.Time) string {
	if name := strings.TrimSpace(location); isZoneName(name) {
		if _, err := time.LoadLocation(name); err == nil {
			return name
		}
	}

	if name := now.Location().String(); isZoneName(name) {
		if _, err := time.LoadLocation(name); err == nil {
			return name
		}
	}

	_, offset := now.Zone()
	if name, ok := offsetZones[offset]; ok {
		return name
	}
	return "UTC"
}

func isZoneName(name string) bool {
	return name != "" && name != "Local" && strings.Contains(name, "/")
}
