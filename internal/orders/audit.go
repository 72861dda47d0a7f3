package orders

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/antonio12761/roxy-bar-sub000/internal/logger"
	"github.com/antonio12761/roxy-bar-sub000/internal/models"
)

// auditCooldown suppresses repeats of the identical edge so retried writes
// do not flood the log.
const auditCooldown = 30 * time.Second

type auditKey struct {
	OrderID uuid.UUID
	From    models.OrderStatus
	To      models.OrderStatus
}

// TransitionAudit records accepted transitions, debounced per (order, edge).
type TransitionAudit struct {
	mu       sync.Mutex
	cooldown time.Duration
	seen     map[auditKey]time.Time
	log      *logger.Logger
	now      func() time.Time
}

// NewTransitionAudit creates an audit log writing through the given logger.
func NewTransitionAudit(log *logger.Logger) *TransitionAudit {
	return &TransitionAudit{
		cooldown: auditCooldown,
		seen:     make(map[auditKey]time.Time),
		log:      log,
		now:      time.Now,
	}
}

// Record logs an accepted transition unless the identical edge was already
// recorded within the cooldown. It reports whether the entry was written.
func (a *TransitionAudit) Record(orderID uuid.UUID, from, to models.OrderStatus, changedBy string) bool {
	key := auditKey{OrderID: orderID, From: from, To: to}
	now := a.now()

	a.mu.Lock()
	if last, ok := a.seen[key]; ok && now.Sub(last) < a.cooldown {
		a.mu.Unlock()
		return false
	}
	a.seen[key] = now
	a.prune(now)
	a.mu.Unlock()

	if a.log != nil {
		a.log.Info("order_transition", "Order status transition accepted", "", map[string]interface{}{
			"order_id": orderID.String(),
			"from":     string(from),
			"to":       string(to),
			"by":       changedBy,
		})
	}
	return true
}

// prune drops entries past the cooldown. Called with the lock held.
func (a *TransitionAudit) prune(now time.Time) {
	for k, at := range a.seen {
		if now.Sub(at) >= a.cooldown {
			delete(a.seen, k)
		}
	}
}
