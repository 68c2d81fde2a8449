// Package lifecycle derives a circle's phase and countdown progress from
// its timestamps. Everything here is pure: clients re-evaluate once per
// second while a circle is on screen, so no allocation-heavy or blocking
// work is allowed.
package lifecycle

import (
	"time"

	"circles-backend/internal/models"
)

// Phase is the derived lifecycle state of a circle.
type Phase string

const (
	PhaseOpen   Phase = "open"
	PhaseClosed Phase = "closed"
)

// DeletionGrace is the fixed window between a circle closing and its
// photos becoming eligible for purge.
const DeletionGrace = 48 * time.Hour

// expiringSoonWindow is how close to closeAt a circle must be before it
// counts as expiring soon.
const expiringSoonWindow = 24 * time.Hour

// Snapshot is the evaluated lifecycle state of a circle at one instant.
type Snapshot struct {
	Phase Phase
	// ExpiringSoon is true iff the circle is open and closes in under 24h.
	ExpiringSoon bool
	// RemainingProgress is the fraction of the current phase's window
	// still remaining, clamped to [0,1]. While open this is the fraction
	// of the open window left; while closed, the fraction of the
	// deletion grace window left.
	RemainingProgress float64
}

// Evaluate derives the lifecycle snapshot for a circle at time now.
// The stored status flag is advisory: status=closed forces the closed
// phase early, but time is authoritative once closeAt has passed.
func Evaluate(c *models.Circle, now time.Time) Snapshot {
	closed := c.Status == models.CircleStatusClosed || !now.Before(c.CloseAt)
	if closed {
		return Snapshot{
			Phase:             PhaseClosed,
			RemainingProgress: remaining(now, c.CloseAt, c.DeleteAt),
		}
	}
	return Snapshot{
		Phase:             PhaseOpen,
		ExpiringSoon:      c.CloseAt.Sub(now) < expiringSoonWindow,
		RemainingProgress: remaining(now, c.CreatedAt, c.CloseAt),
	}
}

// PurgeEligible reports whether the scheduled cleanup may purge the
// circle: its delete deadline has passed and it has not been cleaned up.
func PurgeEligible(c *models.Circle, now time.Time) bool {
	return !now.Before(c.DeleteAt) && !c.CleanedUp
}

// remaining computes the fraction of the [start, end) window left at
// now, clamped to [0,1]. Degenerate windows (end <= start) clamp to 0
// rather than dividing by zero.
func remaining(now, start, end time.Time) float64 {
	total := end.Sub(start)
	if total <= 0 {
		return 0
	}
	frac := float64(end.Sub(now)) / float64(total)
	if frac < 0 {
		return 0
	}
	if frac > 1 {
		return 1
	}
	return frac
}
