package device

import (
	"context"
	"sort"
	"sync"
	"time"
)

type deviceKey struct {
	userID string
	id     string
}

// InMemoryRepository is an in-memory implementation of Repository for
// testing and local development.
type InMemoryRepository struct {
	mu      sync.RWMutex
	devices map[deviceKey]*Device
}

// NewInMemoryRepository creates a new in-memory device repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{devices: make(map[deviceKey]*Device)}
}

// Get retrieves a device by user ID and device ID.
func (r *InMemoryRepository) Get(_ context.Context, userID, deviceID string) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[deviceKey{userID: userID, id: deviceID}]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	copied := *d
	return &copied, nil
}

func (r *InMemoryRepository) listActive(userID string) []*Device {
	var devices []*Device
	for key, d := range r.devices {
		if key.userID == userID && !d.Disabled {
			copied := *d
			devices = append(devices, &copied)
		}
	}
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].UpdatedAt.After(devices[j].UpdatedAt)
	})
	return devices
}

// ListActive retrieves non-disabled devices for a user.
func (r *InMemoryRepository) ListActive(_ context.Context, userID string, limit int) ([]*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := r.listActive(userID)
	if len(devices) > limit {
		devices = devices[:limit]
	}
	return devices, nil
}

// ListActiveFiltered retrieves non-disabled devices matching the platform
// allow-list.
func (r *InMemoryRepository) ListActiveFiltered(_ context.Context, userID string, platforms []Platform, limit int) ([]*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	filter := TokenFilter{Platforms: platforms}
	var devices []*Device
	for _, d := range r.listActive(userID) {
		if filter.matchesPlatform(d) {
			devices = append(devices, d)
		}
	}
	if len(devices) > limit {
		devices = devices[:limit]
	}
	return devices, nil
}

// CountActive returns the number of non-disabled devices for a user.
func (r *InMemoryRepository) CountActive(_ context.Context, userID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listActive(userID)), nil
}

// Upsert creates or replaces a device row keyed by its derived ID.
func (r *InMemoryRepository) Upsert(_ context.Context, device *Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *device
	copied.Disabled = false
	r.devices[deviceKey{userID: device.UserID, id: device.ID}] = &copied
	return nil
}

// DisableByToken sets disabled on every row carrying token.
func (r *InMemoryRepository) DisableByToken(_ context.Context, userID, token string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var disabled int64
	for key, d := range r.devices {
		if key.userID == userID && d.Token == token && !d.Disabled {
			d.Disabled = true
			d.UpdatedAt = time.Now()
			disabled++
		}
	}
	return disabled, nil
}

// DeleteByUser hard-deletes all devices for a user.
func (r *InMemoryRepository) DeleteByUser(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key := range r.devices {
		if key.userID == userID {
			delete(r.devices, key)
		}
	}
	return nil
}

// AllForUser returns every row for a user, disabled included. Test use only.
func (r *InMemoryRepository) AllForUser(userID string) []*Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var devices []*Device
	for key, d := range r.devices {
		if key.userID == userID {
			copied := *d
			devices = append(devices, &copied)
		}
	}
	return devices
}

// FailFiltered makes ListActiveFiltered return an error. Test use only.
type FailFiltered struct {
	Repository
	Err error
}

// ListActiveFiltered always fails with the configured error.
func (f *FailFiltered) ListActiveFiltered(context.Context, string, []Platform, int) ([]*Device, error) {
	return nil, f.Err
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
