package publish

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/cloudseg/internal/cloud"
	"github.com/banshee-data/cloudseg/internal/monitoring"
)

var logf = monitoring.Component("Publish")

// HubConfig sizes the hub queues.
type HubConfig struct {
	// QueueSize is the number of results buffered between Publish and the
	// broadcast loop.
	QueueSize int

	// ClientBuffer is the per-subscriber queue. A subscriber whose queue is
	// full misses results rather than stalling the others.
	ClientBuffer int

	// MaxClients limits concurrent subscribers; 0 means unlimited.
	MaxClients int
}

// DefaultHubConfig returns a default configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		QueueSize:    100,
		ClientBuffer: 10,
		MaxClients:   16,
	}
}

// ErrTooManyClients is returned by Subscribe when MaxClients is reached.
var ErrTooManyClients = errors.New("too many subscribers")

// Hub broadcasts published clouds to subscribers. Publish never blocks:
// results are dropped when the hub queue is full, and per subscriber when
// that subscriber falls behind.
type Hub struct {
	config HubConfig

	resultChan chan cloud.Cloud
	clients    map[string]*Subscription
	clientsMu  sync.RWMutex

	// Stats
	published   atomic.Uint64
	dropped     atomic.Uint64
	clientCount atomic.Int32

	// Lifecycle
	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// Subscription is one subscriber's view of the hub.
type Subscription struct {
	id     string
	hub    *Hub
	ch     chan cloud.Cloud
	doneCh chan struct{}
}

// ID returns the subscriber ID.
func (s *Subscription) ID() string { return s.id }

// C delivers published clouds.
func (s *Subscription) C() <-chan cloud.Cloud { return s.ch }

// Done is closed when the subscription ends, either by Close or because the
// hub stopped.
func (s *Subscription) Done() <-chan struct{} { return s.doneCh }

// Close unregisters the subscriber.
func (s *Subscription) Close() { s.hub.removeClient(s.id) }

// NewHub creates a hub. Call Start before publishing.
func NewHub(cfg HubConfig) *Hub {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = 1
	}
	return &Hub{
		config:     cfg,
		resultChan: make(chan cloud.Cloud, cfg.QueueSize),
		clients:    make(map[string]*Subscription),
		stopCh:     make(chan struct{}),
	}
}

// Start launches the broadcast loop.
func (h *Hub) Start() error {
	if !h.running.CompareAndSwap(false, true) {
		return fmt.Errorf("hub already running")
	}
	h.wg.Add(1)
	go h.broadcastLoop()
	return nil
}

// Stop ends the broadcast loop and every subscription.
func (h *Hub) Stop() {
	if !h.running.CompareAndSwap(true, false) {
		return
	}
	close(h.stopCh)
	h.wg.Wait()

	h.clientsMu.Lock()
	for id, c := range h.clients {
		close(c.doneCh)
		delete(h.clients, id)
		h.clientCount.Add(-1)
	}
	h.clientsMu.Unlock()
	logf("Hub stopped")
}

// Publish queues c for every subscriber. It is a no-op when the hub is not
// running.
func (h *Hub) Publish(c cloud.Cloud) {
	if !h.running.Load() {
		return
	}
	select {
	case h.resultChan <- c:
		h.published.Add(1)
	default:
		dropped := h.dropped.Add(1)
		logf("DROPPED result seq=%d (total dropped: %d), queue full, points=%d",
			c.Header.Seq, dropped, c.Len())
	}
}

// Subscribe registers a new subscriber.
func (h *Hub) Subscribe() (*Subscription, error) {
	h.clientsMu.Lock()
	if !h.running.Load() {
		h.clientsMu.Unlock()
		return nil, fmt.Errorf("hub not running")
	}
	if h.config.MaxClients > 0 && len(h.clients) >= h.config.MaxClients {
		h.clientsMu.Unlock()
		return nil, ErrTooManyClients
	}
	s := &Subscription{
		id:     uuid.NewString(),
		hub:    h,
		ch:     make(chan cloud.Cloud, h.config.ClientBuffer),
		doneCh: make(chan struct{}),
	}
	h.clients[s.id] = s
	h.clientCount.Add(1)
	h.clientsMu.Unlock()

	logf("Client connected: %s (total: %d)", s.id, h.clientCount.Load())
	return s, nil
}

func (h *Hub) removeClient(id string) {
	h.clientsMu.Lock()
	if c, ok := h.clients[id]; ok {
		close(c.doneCh)
		delete(h.clients, id)
		h.clientsMu.Unlock()
		h.clientCount.Add(-1)
		logf("Client disconnected: %s (remaining: %d)", id, h.clientCount.Load())
	} else {
		h.clientsMu.Unlock()
	}
}

// broadcastLoop distributes results to all subscribers.
func (h *Hub) broadcastLoop() {
	defer h.wg.Done()

	for {
		select {
		case <-h.stopCh:
			return
		case c := <-h.resultChan:
			h.clientsMu.RLock()
			for _, client := range h.clients {
				select {
				case client.ch <- c:
				default:
					// Subscriber is slow; it misses this result.
					h.dropped.Add(1)
				}
			}
			h.clientsMu.RUnlock()
		}
	}
}

// HubStats contains hub statistics.
type HubStats struct {
	Published   uint64 `json:"published"`
	Dropped     uint64 `json:"dropped"`
	ClientCount int32  `json:"client_count"`
	Running     bool   `json:"running"`
}

// Stats returns current hub statistics.
func (h *Hub) Stats() HubStats {
	return HubStats{
		Published:   h.published.Load(),
		Dropped:     h.dropped.Load(),
		ClientCount: h.clientCount.Load(),
		Running:     h.running.Load(),
	}
}

// WaitForClients blocks until at least n subscribers are connected or the
// timeout passes. Used by tests and readiness checks.
func (h *Hub) WaitForClients(n int32, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if h.clientCount.Load() >= n {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return h.clientCount.Load() >= n
}
