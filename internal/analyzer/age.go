// Package analyzer derives findings from already-collected inventory data.
// Everything in it is deterministic and side-effect free; callers pass the
// reference time explicitly.
package analyzer

import "time"

// AgeBucket classifies how long ago a resource's reference timestamp was.
type AgeBucket string

const (
	AgeOver90Days AgeBucket = "90_days"
	AgeOver60Days AgeBucket = "60_days"
	AgeOver30Days AgeBucket = "30_days"
	AgeRecent     AgeBucket = "recent"
)

// BucketAge assigns the largest applicable bucket, measured in whole days
// between ref and now. A resource exactly 90 days old lands in the 90-day
// bucket, never in the 60-day one.
func BucketAge(ref, now time.Time) AgeBucket {
	days := int(now.Sub(ref).Hours() / 24)
	switch {
	case days >= 90:
		return AgeOver90Days
	case days >= 60:
		return AgeOver60Days
	case days >= 30:
		return AgeOver30Days
	default:
		return AgeRecent
	}
}
