// Package audience resolves campaign targeting specs into streams of user
// ID pages.
package audience

import (
	"errors"
	"fmt"

	"github.com/prepquest/prepquest/internal/device"
)

// Type discriminates the targeting strategies.
type Type string

const (
	// TypeAll targets every user.
	TypeAll Type = "all"

	// TypeExams targets users preparing for one of the listed exams.
	TypeExams Type = "exams"

	// TypeUIDs targets an explicit user ID list.
	TypeUIDs Type = "uids"

	// TypeInactive targets users whose last activity is older than a
	// threshold.
	TypeInactive Type = "inactive"
)

// ErrInvalidSpec is returned when a targeting spec fails validation.
var ErrInvalidSpec = errors.New("invalid audience spec")

// MaxExplicitUIDs bounds TypeUIDs lists.
const MaxExplicitUIDs = 10000

// Spec describes a campaign's target audience. Platform and build bounds
// do not narrow the resolved user set; they are applied later when user
// IDs are turned into device tokens.
type Spec struct {
	Type Type `json:"type"`

	// Exams filters by exam category for TypeExams.
	Exams []string `json:"exams,omitempty"`

	// UIDs is the explicit target list for TypeUIDs.
	UIDs []string `json:"uids,omitempty"`

	// Hours is the inactivity threshold for TypeInactive.
	Hours int `json:"hours,omitempty"`

	// Platforms restricts delivery to these device platforms.
	Platforms []device.Platform `json:"platforms,omitempty"`

	// BuildMin and BuildMax bound the receiving app build number.
	BuildMin *int `json:"build_min,omitempty"`
	BuildMax *int `json:"build_max,omitempty"`

	// OnlyNonPremium excludes subscribed users.
	OnlyNonPremium bool `json:"only_non_premium,omitempty"`
}

// Validate checks structural constraints on the spec.
func (s *Spec) Validate() error {
	switch s.Type {
	case TypeAll:
	case TypeExams:
		if len(s.Exams) == 0 {
			return fmt.Errorf("%w: exams targeting requires at least one exam", ErrInvalidSpec)
		}
	case TypeUIDs:
		if len(s.UIDs) == 0 {
			return fmt.Errorf("%w: uid targeting requires at least one user ID", ErrInvalidSpec)
		}
		if len(s.UIDs) > MaxExplicitUIDs {
			return fmt.Errorf("%w: uid list exceeds %d entries", ErrInvalidSpec, MaxExplicitUIDs)
		}
	case TypeInactive:
		if s.Hours <= 0 {
			return fmt.Errorf("%w: inactive targeting requires a positive hour threshold", ErrInvalidSpec)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidSpec, s.Type)
	}

	if s.BuildMin != nil && s.BuildMax != nil && *s.BuildMin > *s.BuildMax {
		return fmt.Errorf("%w: build_min exceeds build_max", ErrInvalidSpec)
	}
	return nil
}

// TokenFilter translates the spec's delivery constraints for the device
// registry.
func (s *Spec) TokenFilter() device.TokenFilter {
	return device.TokenFilter{
		Platforms: s.Platforms,
		BuildMin:  s.BuildMin,
		BuildMax:  s.BuildMax,
	}
}
