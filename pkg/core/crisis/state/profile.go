package state

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DefaultUserName is used until the client sends a profile.
const DefaultUserName = "User"

// Contact is an emergency contact.
type Contact struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// UserProfile is the session owner's name and contacts.
type UserProfile struct {
	Name     string    `json:"name"`
	Contacts []Contact `json:"contacts"`
}

// DisplayName returns the trimmed name or DefaultUserName.
func (p UserProfile) DisplayName() string {
	if n := strings.TrimSpace(p.Name); n != "" {
		return n
	}
	return DefaultUserName
}

// Clone returns a copy that shares no slices with p.
func (p UserProfile) Clone() UserProfile {
	out := UserProfile{Name: p.Name}
	if len(p.Contacts) > 0 {
		out.Contacts = append([]Contact(nil), p.Contacts...)
	}
	return out
}

// Location is the last reported coordinate pair.
type Location struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ParseLocation accepts "lat,lng". Anything else is rejected; callers drop
// the update.
func ParseLocation(raw string) (Location, error) {
	parts := strings.Split(strings.TrimSpace(raw), ",")
	if len(parts) != 2 {
		return Location{}, fmt.Errorf("location must be two comma-separated floats")
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Location{}, fmt.Errorf("latitude: %w", err)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Location{}, fmt.Errorf("longitude: %w", err)
	}
	if math.IsNaN(lat) || math.IsNaN(lng) {
		return Location{}, fmt.Errorf("location is not a number")
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return Location{}, fmt.Errorf("location out of range")
	}
	return Location{Lat: lat, Lng: lng}, nil
}

// String renders "lat,lng".
func (l Location) String() string {
	return strconv.FormatFloat(l.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(l.Lng, 'f', -1, 64)
}

// MapLink is a Google Maps URL for the coordinates.
func (l Location) MapLink() string {
	return "https://maps.google.com/maps?q=" + l.String()
}
