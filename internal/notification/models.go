// Package notification sends contextual push notifications picked by the
// selection engine, with per-user frequency guards and anti-repeat history.
package notification

import "time"

// RecentTemplateLimit is how many sent template IDs are kept per user for
// anti-repeat filtering.
const RecentTemplateLimit = 20

// Frequency guard parameters. A user receives at most MaxPerDay contextual
// notifications per UTC day, never two within MinGap of each other.
const (
	MaxPerDay = 2
	MinGap    = 6 * time.Hour
)

// Skip reasons reported when a sweep decides not to send.
const (
	SkipNoDevices  = "no_devices"
	SkipNoEligible = "no_eligible_template"
	SkipRateLimit  = "rate_limited"
)
