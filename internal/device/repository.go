package device

import "context"

// Repository defines the interface for device persistence.
type Repository interface {
	// Get retrieves a device by user ID and device ID.
	Get(ctx context.Context, userID, deviceID string) (*Device, error)

	// ListActive retrieves non-disabled devices for a user, capped at
	// limit, newest first.
	ListActive(ctx context.Context, userID string, limit int) ([]*Device, error)

	// ListActiveFiltered retrieves non-disabled devices with a
	// store-level platform allow-list applied. Build bounds stay with the
	// caller.
	ListActiveFiltered(ctx context.Context, userID string, platforms []Platform, limit int) ([]*Device, error)

	// CountActive returns the number of non-disabled devices for a user.
	CountActive(ctx context.Context, userID string) (int, error)

	// Upsert creates or replaces a device row keyed by its derived ID.
	Upsert(ctx context.Context, device *Device) error

	// DisableByToken sets disabled on every device row carrying token,
	// regardless of derived ID. Returns the number of rows disabled.
	DisableByToken(ctx context.Context, userID, token string) (int64, error)

	// DeleteByUser hard-deletes all devices for a user.
	DeleteByUser(ctx context.Context, userID string) error
}
