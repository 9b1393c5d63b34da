// Package extension implements the anti-snipe deadline push-out. It must be
// applied inside the same per-auction critical section as the bid commit.
package extension

import (
	"time"

	"live-bidding/internal/models"
)

// Apply extends the deadline when a bid lands inside the closing window.
// The deadline becomes now + window and one extension is consumed. The
// deadline never moves backward.
func Apply(a *models.Auction, now time.Time) bool {
	if !Qualifies(*a, now) {
		return false
	}
	next := now.Add(a.ExtensionWindow())
	if !next.After(a.BiddingEndsAt) {
		return false
	}
	a.BiddingEndsAt = next
	a.ExtensionsUsed++
	return true
}

// Qualifies reports whether a bid at now would trigger an extension
func Qualifies(a models.Auction, now time.Time) bool {
	if !a.AutoExtend || a.ExtensionWindowSeconds <= 0 {
		return false
	}
	if a.ExtensionsUsed >= a.MaxExtensions {
		return false
	}
	return a.BiddingEndsAt.Sub(now) < a.ExtensionWindow()
}
