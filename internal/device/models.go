// Package device provides push-token registration and lookup.
//
// A device row is identified by an ID derived from the token itself, so
// re-registering the same token is an upsert rather than an append.
// Unregistration soft-deletes (disabled flag); rows are hard-deleted only
// when the owning user is deleted.
package device

import (
	"errors"
	"strings"
	"time"
)

// Registry errors.
var (
	ErrDeviceNotFound = errors.New("device not found")

	// ErrDeviceLimitReached is returned when a user already has the
	// maximum number of active devices. Registration is rejected, not
	// evicted: hitting the cap signals anomalous device churn that an
	// operator should look at.
	ErrDeviceLimitReached = errors.New("active device limit reached")
)

// MaxActiveDevices is the cap on non-disabled tokens per user.
const MaxActiveDevices = 20

// ActiveTokensPageSize caps how many tokens a single lookup returns.
const ActiveTokensPageSize = 50

// maxPlatformFilters bounds the store-level platform allow-list.
const maxPlatformFilters = 10

// Platform represents a push notification platform.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
)

// Device represents a registered push notification device.
type Device struct {
	// ID is derived from the token via DeriveID; identical tokens always
	// map to the same row.
	ID string

	UserID   string
	Platform Platform

	// Token is the opaque push transport token.
	Token string

	// AppBuild is the numeric app build number, when the client reported
	// one. Stored loosely because old clients sent it as a string or not
	// at all.
	AppBuild *int

	// Language is the device language (BCP 47).
	Language string

	// Disabled marks an unregistered device. Disabled rows are retained
	// for audit until the owning user is deleted.
	Disabled bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// maxDerivedIDLength bounds the token-derived document ID.
const maxDerivedIDLength = 64

// DeriveID maps a token to its deterministic device ID: the token with
// every non-alphanumeric character stripped, truncated. Two tokens that
// collide after sanitization share a row, which is why Unregister matches
// on the token string rather than the ID.
func DeriveID(token string) string {
	var b strings.Builder
	b.Grow(maxDerivedIDLength)
	for _, c := range token {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			b.WriteRune(c)
			if b.Len() >= maxDerivedIDLength {
				break
			}
		}
	}
	return b.String()
}

// TokenFilter restricts active-token lookups.
type TokenFilter struct {
	// Platforms is an allow-list; empty means all platforms. At most 10
	// values are applied store-side, the rest is evaluated in memory.
	Platforms []Platform

	// BuildMin and BuildMax bound the app build number, inclusive.
	// Evaluated in memory because the build may be absent.
	BuildMin *int
	BuildMax *int
}

// matchesBuild reports whether a device passes the build bounds. Devices
// without a known build fail closed when a bound is set.
func (f TokenFilter) matchesBuild(d *Device) bool {
	if f.BuildMin == nil && f.BuildMax == nil {
		return true
	}
	if d.AppBuild == nil {
		return false
	}
	if f.BuildMin != nil && *d.AppBuild < *f.BuildMin {
		return false
	}
	if f.BuildMax != nil && *d.AppBuild > *f.BuildMax {
		return false
	}
	return true
}

// matchesPlatform reports whether a device passes the platform allow-list.
func (f TokenFilter) matchesPlatform(d *Device) bool {
	if len(f.Platforms) == 0 {
		return true
	}
	for _, p := range f.Platforms {
		if d.Platform == p {
			return true
		}
	}
	return false
}
