package scheduling

import (
	"math/rand"
	"time"

	"github.com/pulsekit/pulsekit/internal/directory"
)

// defaultPreferredTime is used when a user has no preferred send time or an
// unparseable one.
const defaultPreferredTime = "09:00"

// jitterMinutes bounds the uniform random delay added to every send time so
// an org's prompts don't all land at the same instant.
const jitterMinutes = 15

// ComputeSendAt anchors the user's preferred "HH:mm" to their local day,
// rolls to tomorrow when that time has already passed, and adds 0-14 minutes
// of jitter. The result is strictly after now, in UTC.
func ComputeSendAt(now time.Time, user *directory.User, rng *rand.Rand) time.Time {
	preferred := user.PreferredTime
	hhmm, err := time.Parse("15:04", preferred)
	if err != nil {
		hhmm, _ = time.Parse("15:04", defaultPreferredTime)
	}

	loc := user.Location()
	local := now.In(loc)
	candidate := time.Date(local.Year(), local.Month(), local.Day(),
		hhmm.Hour(), hhmm.Minute(), 0, 0, loc)
	if !candidate.After(now) {
		candidate = candidate.AddDate(0, 0, 1)
	}

	jitter := time.Duration(rng.Intn(jitterMinutes)) * time.Minute
	return candidate.Add(jitter).UTC()
}
