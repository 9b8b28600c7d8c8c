package directory

import "time"

// User is a member of an organization who can be prompted for feedback.
// Scheduling preferences are authored in the dashboard; this core reads them.
type User struct {
	ID            string
	OrgID         string
	TeamID        string
	DisplayName   string
	Platform      string
	ChannelID     string
	Timezone      string // IANA name, e.g. "Europe/Berlin"
	PreferredTime string // "HH:mm" in the user's local time
	QuietDays     []time.Weekday
	WeeklyTarget  int
	Active        bool
	Onboarded     bool
}

// DefaultQuietDays is applied when a user has no quiet days configured.
var DefaultQuietDays = []time.Weekday{time.Saturday, time.Sunday}

// QuietOn reports whether the user should not be prompted on the given weekday.
func (u *User) QuietOn(day time.Weekday) bool {
	days := u.QuietDays
	if len(days) == 0 {
		days = DefaultQuietDays
	}
	for _, d := range days {
		if d == day {
			return true
		}
	}
	return false
}

// Location resolves the user's timezone, falling back to UTC.
func (u *User) Location() *time.Location {
	if u.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(u.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Relationship is a directed edge between two users. Strength is authored
// externally (manual or auto-discovered) and never written by this core.
type Relationship struct {
	FromUserID string
	ToUserID   string
	Strength   float64 // [0,1]
	Active     bool
}

// Other returns the user on the far side of the edge from userID.
func (r Relationship) Other(userID string) string {
	if r.FromUserID == userID {
		return r.ToUserID
	}
	return r.FromUserID
}
