// Package events implements the distribution layer: routing committed
// mutations to connected station clients with per-role filtering, rate
// limiting, offline queueing and high-priority resends.
package events

import (
	"github.com/antonio12761/roxy-bar-sub000/internal/models"
)

// roleSubscriptions lists the event names each role receives by default.
// Supervisory roles are handled separately and receive everything.
var roleSubscriptions = map[models.Role]map[string]bool{
	models.RoleWaiter: {
		models.EventOrderNew:     true,
		models.EventOrderStatus:  true,
		models.EventOrderMerged:  true,
		models.EventLineUpdate:   true,
		models.EventOrderCancel:  true,
		models.EventMergeRequest: true,
		models.EventSystemReset:  true,
	},
	models.RoleBartender: {
		models.EventOrderNew:     true,
		models.EventOrderStatus:  true,
		models.EventOrderMerged:  true,
		models.EventLineUpdate:   true,
		models.EventOrderCancel:  true,
		models.EventMergeRequest: true,
		models.EventSystemReset:  true,
	},
	models.RoleKitchen: {
		models.EventOrderNew:     true,
		models.EventOrderStatus:  true,
		models.EventOrderMerged:  true,
		models.EventLineUpdate:   true,
		models.EventOrderCancel:  true,
		models.EventMergeRequest: true,
		models.EventSystemReset:  true,
	},
	models.RoleCounter: {
		models.EventOrderNew:     true,
		models.EventOrderStatus:  true,
		models.EventOrderMerged:  true,
		models.EventLineUpdate:   true,
		models.EventOrderCancel:  true,
		models.EventMergeRequest: true,
		models.EventSystemReset:  true,
	},
	models.RoleCashier: {
		models.EventOrderStatus:  true,
		models.EventOrderCancel:  true,
		models.EventSystemReset:  true,
	},
}

// Subscribed reports whether the role receives events of this name at all.
func Subscribed(role models.Role, name string) bool {
	if role.Supervisory() {
		return true
	}
	return roleSubscriptions[role][name]
}

// Relevant decides whether one event should reach one role. Pure function
// of its inputs: subscription first, then station scope for payloads that
// carry one. Roles without a home station and supervisory roles see every
// station; prep roles only see events touching their own.
func Relevant(role models.Role, e *models.Envelope) bool {
	if !Subscribed(role, e.Name) {
		return false
	}
	if role.Supervisory() {
		return true
	}

	scoped, ok := e.Payload.(models.StationScoped)
	if !ok {
		return true
	}
	home, bound := role.HomeStation()
	if !bound {
		return true
	}
	for _, s := range scoped.Stations() {
		if s == home {
			return true
		}
	}
	return false
}
