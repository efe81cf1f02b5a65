package config

import (
	"slices"
	"time"
)

// Policy is built once at startup and passed by value. Nothing mutates it
// after construction.
type Policy struct {
	// AuthMethod is the tag stored on accounts managed by this service.
	AuthMethod             string
	Enabled                bool
	PreventAccountCreation bool
	ActiveStatuses         []int
	TimeBudget             time.Duration
	BatchSize              int
	SiteAdmins             []int64
}

// DefaultPolicy matches the defaults registered by SetDefaults.
func DefaultPolicy() Policy {
	return Policy{
		AuthMethod:     "contactws",
		Enabled:        true,
		ActiveStatuses: []int{1, 3, 5},
		TimeBudget:     240 * time.Second,
		BatchSize:      100,
	}
}

// IsActive reports whether a remote status code counts as active.
func (p Policy) IsActive(status int) bool {
	return slices.Contains(p.ActiveStatuses, status)
}

func (p Policy) IsSiteAdmin(userID int64) bool {
	return slices.Contains(p.SiteAdmins, userID)
}
