package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/antonio12761/roxy-bar-sub000/internal/logger"
	"github.com/antonio12761/roxy-bar-sub000/internal/metrics"
	"github.com/antonio12761/roxy-bar-sub000/internal/models"
)

const (
	// clientBuffer is the per-client delivery buffer. A slow consumer drops
	// events rather than blocking the dispatcher.
	clientBuffer = 64

	// defaultRateLimitInterval is the minimum spacing between deliveries of
	// the same event name to the same user unless overridden with
	// WithRateLimitInterval. Excess deliveries are dropped, not delayed.
	defaultRateLimitInterval = 500 * time.Millisecond

	// queueTTL is how long an event targeted at an offline user is held.
	queueTTL = 5 * time.Minute

	// sweepInterval is how often expired queued events are discarded.
	sweepInterval = 5 * time.Second

	// settleDelay lets a freshly registered client finish its subscription
	// handshake before queued events are flushed at it.
	settleDelay = 500 * time.Millisecond

	heartbeatInterval = 30 * time.Second

	// deadClientMisses is how many consecutive undeliverable sends mark a
	// client dead.
	deadClientMisses = 3
)

// resendDelays are the re-delivery offsets for high-priority events, so a
// client reconnecting moments after the commit still sees them.
var resendDelays = []time.Duration{
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
	1000 * time.Millisecond,
	2000 * time.Millisecond,
}

// Client is one connected station screen.
type Client struct {
	ID       string
	UserID   uuid.UUID
	TenantID string
	Role     models.Role
	Channels []string

	ch     chan *models.Envelope
	missed int
}

// NewClient builds a client with a buffered delivery channel.
func NewClient(id string, userID uuid.UUID, tenantID string, role models.Role, channels []string) *Client {
	return &Client{
		ID:       id,
		UserID:   userID,
		TenantID: tenantID,
		Role:     role,
		Channels: channels,
		ch:       make(chan *models.Envelope, clientBuffer),
	}
}

// Events is the channel the transport adapter reads deliveries from. It is
// closed when the client is unregistered.
func (c *Client) Events() <-chan *models.Envelope {
	return c.ch
}

func (c *Client) onChannel(name string) bool {
	for _, ch := range c.Channels {
		if ch == name {
			return true
		}
	}
	return false
}

type rateKey struct {
	Event  string
	UserID uuid.UUID
}

type queuedEvent struct {
	env      *models.Envelope
	queuedAt time.Time
}

// Dispatcher routes committed events to registered clients. Delivery is
// best-effort and never blocks a mutation: full buffers and rate-limit
// violations drop the event for that client.
type Dispatcher struct {
	mu       sync.Mutex
	clients  map[string]*Client
	lastSent map[rateKey]time.Time
	queued   map[string][]queuedEvent

	rateLimit       time.Duration
	defaultChannels map[string][]string

	log     *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithRateLimitInterval overrides the per-(event, user) minimum delivery
// spacing. Zero disables rate limiting.
func WithRateLimitInterval(interval time.Duration) Option {
	return func(d *Dispatcher) { d.rateLimit = interval }
}

// WithDefaultChannels sets fallback channels per event name, used as the
// last routing tier when no other targeting matched any client.
func WithDefaultChannels(channels map[string][]string) Option {
	return func(d *Dispatcher) { d.defaultChannels = channels }
}

// NewDispatcher starts the dispatcher's sweep and heartbeat loops.
// m may be nil.
func NewDispatcher(log *logger.Logger, m *metrics.Metrics, opts ...Option) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		clients:   make(map[string]*Client),
		lastSent:  make(map[rateKey]time.Time),
		queued:    make(map[string][]queuedEvent),
		rateLimit: defaultRateLimitInterval,
		log:       log,
		metrics:   m,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(d)
	}

	d.wg.Add(2)
	go d.sweepLoop()
	go d.heartbeatLoop()
	return d
}

// Register adds a client and schedules the flush of any events queued for
// its user while it was offline.
func (d *Dispatcher) Register(c *Client) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		close(c.ch)
		return
	}
	d.clients[c.ID] = c
	d.mu.Unlock()

	if d.metrics != nil {
		d.metrics.ConnectedClients.Inc()
	}
	d.log.Debug("client_registered", "Event client registered", "", map[string]interface{}{
		"client_id": c.ID,
		"role":      string(c.Role),
	})

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		timer := time.NewTimer(settleDelay)
		defer timer.Stop()
		select {
		case <-d.ctx.Done():
		case <-timer.C:
			d.flushQueued(c)
		}
	}()
}

// Unregister removes the client and closes its channel.
func (d *Dispatcher) Unregister(id string) {
	d.mu.Lock()
	c, ok := d.clients[id]
	if ok {
		delete(d.clients, id)
		close(c.ch)
	}
	d.mu.Unlock()

	if ok && d.metrics != nil {
		d.metrics.ConnectedClients.Dec()
	}
}

// Publish routes one event. Targeting precedence: an explicit user first,
// then explicit channels, then a role-filtered tenant broadcast, then the
// event's configured default channels. High priority events are
// re-delivered at fixed delays, and queued for the tenant when nobody is
// connected to receive them.
func (d *Dispatcher) Publish(e *models.Envelope) {
	if e.EmittedAt.IsZero() {
		e.EmittedAt = d.now()
	}
	if e.CorrelationID == uuid.Nil {
		e.CorrelationID = uuid.New()
	}

	d.deliver(e, true)

	if e.Priority == models.PriorityHigh {
		d.wg.Add(1)
		go d.resend(e)
	}
}

// ClientCount returns the number of registered clients.
func (d *Dispatcher) ClientCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.clients)
}

// Close stops the loops, waits for pending resends and disconnects every
// client.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()

	d.mu.Lock()
	for id, c := range d.clients {
		delete(d.clients, id)
		close(c.ch)
	}
	d.mu.Unlock()
}

// deliver routes the event to its recipients once. initial is false for
// re-deliveries, which skip rate limiting (they would always collide with
// the original) and never queue a second copy.
func (d *Dispatcher) deliver(e *models.Envelope, initial bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	recipients := d.route(e)
	if len(recipients) == 0 {
		if !initial {
			return
		}
		// targeted events queue on request; high-priority broadcasts queue
		// unconditionally so an empty station still sees the order when its
		// screen connects
		switch {
		case e.TargetUserID != nil && e.QueueIfMissed,
			e.TargetUserID == nil && e.Priority == models.PriorityHigh:
			d.queued[e.TenantID] = append(d.queued[e.TenantID], queuedEvent{env: e, queuedAt: d.now()})
			if d.metrics != nil {
				d.metrics.EventsQueued.Inc()
			}
		default:
			if d.metrics != nil {
				d.metrics.EventsDropped.WithLabelValues("no_recipient").Inc()
			}
		}
		return
	}

	now := d.now()
	for _, c := range recipients {
		if initial {
			key := rateKey{Event: e.Name, UserID: c.UserID}
			if last, ok := d.lastSent[key]; ok && now.Sub(last) < d.rateLimit {
				if d.metrics != nil {
					d.metrics.EventsDropped.WithLabelValues("rate_limited").Inc()
				}
				continue
			}
			d.lastSent[key] = now
		}
		d.send(c, e)
	}
}

// route selects recipients. Called with the lock held.
func (d *Dispatcher) route(e *models.Envelope) []*Client {
	var out []*Client
	for _, c := range d.clients {
		if d.matches(c, e) {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		out = d.defaultRoute(e)
	}
	return out
}

// matches applies the targeting precedence to one client: explicit user,
// then explicit channels, then the role-filtered tenant broadcast.
func (d *Dispatcher) matches(c *Client, e *models.Envelope) bool {
	if e.TenantID != "" && c.TenantID != e.TenantID {
		return false
	}
	if e.TargetUserID != nil {
		return c.UserID == *e.TargetUserID
	}
	if len(e.Channels) > 0 {
		for _, ch := range e.Channels {
			if c.onChannel(ch) {
				return true
			}
		}
		return false
	}
	if len(e.TargetRoles) > 0 && !roleIn(c.Role, e.TargetRoles) {
		return false
	}
	return Relevant(c.Role, e)
}

// defaultRoute is the final targeting tier: an event name may carry
// statically configured fallback channels, consulted only when every other
// tier came up empty. Called with the lock held.
func (d *Dispatcher) defaultRoute(e *models.Envelope) []*Client {
	if e.TargetUserID != nil || len(e.Channels) > 0 {
		return nil
	}
	fallback := d.defaultChannels[e.Name]
	if len(fallback) == 0 {
		return nil
	}
	var out []*Client
	for _, c := range d.clients {
		if e.TenantID != "" && c.TenantID != e.TenantID {
			continue
		}
		for _, ch := range fallback {
			if c.onChannel(ch) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// send attempts one non-blocking delivery. Called with the lock held.
func (d *Dispatcher) send(c *Client, e *models.Envelope) {
	select {
	case c.ch <- e:
		c.missed = 0
		if d.metrics != nil {
			d.metrics.EventsDelivered.WithLabelValues(e.Name).Inc()
		}
	default:
		c.missed++
		if d.metrics != nil {
			d.metrics.EventsDropped.WithLabelValues("buffer_full").Inc()
		}
	}
}

func (d *Dispatcher) resend(e *models.Envelope) {
	defer d.wg.Done()
	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	start := e.EmittedAt
	for _, delay := range resendDelays {
		wait := time.Until(start.Add(delay))
		if wait < 0 {
			wait = 0
		}
		timer.Reset(wait)
		select {
		case <-d.ctx.Done():
			return
		case <-timer.C:
			d.deliver(e, false)
		}
	}
}

// flushQueued delivers queued events the freshly connected client can
// receive: its own targeted events and tenant broadcasts relevant to its
// station. Each queued event is delivered exactly once.
func (d *Dispatcher) flushQueued(c *Client) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if _, ok := d.clients[c.ID]; !ok {
		return
	}

	pending := d.queued[c.TenantID]
	var keep []queuedEvent
	now := d.now()
	for _, q := range pending {
		switch {
		case now.Sub(q.queuedAt) > queueTTL:
			if d.metrics != nil {
				d.metrics.EventsExpired.Inc()
			}
		case q.env.TargetUserID != nil && *q.env.TargetUserID == c.UserID:
			d.send(c, q.env)
		case q.env.TargetUserID == nil && d.matches(c, q.env):
			d.send(c, q.env)
		default:
			keep = append(keep, q)
		}
	}
	if len(keep) == 0 {
		delete(d.queued, c.TenantID)
	} else {
		d.queued[c.TenantID] = keep
	}
}

func (d *Dispatcher) sweepLoop() {
	defer d.wg.Done()
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.sweep()
		}
	}
}

func (d *Dispatcher) sweep() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for tenant, pending := range d.queued {
		var keep []queuedEvent
		for _, q := range pending {
			if now.Sub(q.queuedAt) > queueTTL {
				if d.metrics != nil {
					d.metrics.EventsExpired.Inc()
				}
				continue
			}
			// queued broadcasts drain as soon as a matching station is back
			if q.env.TargetUserID == nil {
				if recipients := d.route(q.env); len(recipients) > 0 {
					for _, c := range recipients {
						d.send(c, q.env)
					}
					continue
				}
			}
			keep = append(keep, q)
		}
		if len(keep) == 0 {
			delete(d.queued, tenant)
		} else {
			d.queued[tenant] = keep
		}
	}

	// the rate-limit map only ever grows otherwise
	for k, at := range d.lastSent {
		if now.Sub(at) > time.Minute {
			delete(d.lastSent, k)
		}
	}
}

func (d *Dispatcher) heartbeatLoop() {
	defer d.wg.Done()
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.heartbeat()
		}
	}
}

// heartbeat pings every client and disconnects the ones that have stopped
// draining their buffer.
func (d *Dispatcher) heartbeat() {
	now := d.now()
	e := &models.Envelope{
		Name:          models.EventHeartbeat,
		CorrelationID: uuid.New(),
		EmittedAt:     now,
	}

	d.mu.Lock()
	var dead []*Client
	for _, c := range d.clients {
		select {
		case c.ch <- e:
			c.missed = 0
		default:
			c.missed++
			if c.missed >= deadClientMisses {
				dead = append(dead, c)
			}
		}
	}
	for _, c := range dead {
		delete(d.clients, c.ID)
		close(c.ch)
	}
	d.mu.Unlock()

	for _, c := range dead {
		if d.metrics != nil {
			d.metrics.ConnectedClients.Dec()
		}
		d.log.Info("client_evicted", "Unresponsive event client disconnected", "", map[string]interface{}{
			"client_id": c.ID,
			"role":      string(c.Role),
		})
	}
}

func roleIn(role models.Role, roles []models.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
