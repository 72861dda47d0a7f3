package models

import "github.com/google/uuid"

// Role is an operational role a connected staff member acts under.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleManager    Role = "manager"
	RoleSupervisor Role = "supervisor"
	RoleWaiter     Role = "waiter"
	RoleBartender  Role = "bartender"
	RoleKitchen    Role = "kitchen"
	RoleCounter    Role = "counter"
	RoleCashier    Role = "cashier"
)

// Capability is a single permission a role may hold. Permissions are checked
// against this enumerated set so the permission matrix stays exhaustive.
type Capability uint16

const (
	CapPlaceOrder Capability = 1 << iota
	CapCancelAnyOrder
	CapAdvanceOrder
	CapAdvanceLine
	CapResolveMerge
	CapSettlePayment
	CapViewAllStations
	CapResetSystem
)

var roleCapabilities = map[Role]Capability{
	RoleAdmin:      CapPlaceOrder | CapCancelAnyOrder | CapAdvanceOrder | CapAdvanceLine | CapResolveMerge | CapSettlePayment | CapViewAllStations | CapResetSystem,
	RoleManager:    CapPlaceOrder | CapCancelAnyOrder | CapAdvanceOrder | CapAdvanceLine | CapResolveMerge | CapSettlePayment | CapViewAllStations | CapResetSystem,
	RoleSupervisor: CapPlaceOrder | CapCancelAnyOrder | CapAdvanceOrder | CapAdvanceLine | CapResolveMerge | CapSettlePayment | CapViewAllStations,
	RoleWaiter:     CapPlaceOrder | CapAdvanceOrder | CapAdvanceLine,
	RoleBartender:  CapAdvanceOrder | CapAdvanceLine | CapResolveMerge,
	RoleKitchen:    CapAdvanceOrder | CapAdvanceLine | CapResolveMerge,
	RoleCounter:    CapPlaceOrder | CapAdvanceOrder | CapAdvanceLine | CapResolveMerge,
	RoleCashier:    CapAdvanceOrder | CapSettlePayment,
}

// Can reports whether the role holds the given capability.
func (r Role) Can(c Capability) bool {
	return roleCapabilities[r]&c != 0
}

// Valid reports whether the role is a known one.
func (r Role) Valid() bool {
	_, ok := roleCapabilities[r]
	return ok
}

// Supervisory reports whether the role oversees every station.
func (r Role) Supervisory() bool {
	return r.Can(CapViewAllStations)
}

// HomeStation maps a preparation role to its station. The second return is
// false for roles not bound to a station.
func (r Role) HomeStation() (Station, bool) {
	switch r {
	case RoleBartender:
		return StationBar, true
	case RoleKitchen:
		return StationKitchen, true
	case RoleCounter:
		return StationCounter, true
	default:
		return "", false
	}
}

// Staff identifies an authenticated staff member acting on the ledger.
type Staff struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Role     Role      `json:"role"`
	TenantID string    `json:"tenant_id"`
}
