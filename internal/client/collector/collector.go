package collector

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/SofieTorch/cbba-mobility/internal/client/notify"
	"github.com/SofieTorch/cbba-mobility/internal/client/store"
	"github.com/SofieTorch/cbba-mobility/internal/recording"
)

// LocationSource delivers batches of GPS fixes from the platform location
// service. The channel closes when the source is exhausted or torn down.
type LocationSource interface {
	Locations() <-chan []recording.LocationPointInput
}

// SensorSource delivers batches of motion samples.
type SensorSource interface {
	Sensors() <-chan []recording.SensorReadingInput
}

// SessionStore is the slice of the local store the collector writes through.
type SessionStore interface {
	Current(ctx context.Context) (store.Session, error)
	AppendLocationPoints(ctx context.Context, sessionID int64, points []recording.LocationPointInput) (int, error)
	AppendSensorReadings(ctx context.Context, sessionID int64, readings []recording.SensorReadingInput) (int, error)
	Touch(ctx context.Context, sessionID int64) error
}

// Collector bridges sample sources into the local store. It may outlive the
// UI that started it, so every delivery re-resolves the current recording
// session from durable state instead of holding a session reference.
type Collector struct {
	store     SessionStore
	locations LocationSource
	sensors   SensorSource
	registry  *notify.Registry
	heartbeat time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(st SessionStore, locations LocationSource, sensors SensorSource, registry *notify.Registry, heartbeat time.Duration) *Collector {
	return &Collector{
		store:     st,
		locations: locations,
		sensors:   sensors,
		registry:  registry,
		heartbeat: heartbeat,
	}
}

// Start subscribes to the sources. Starting an already running collector is
// a no-op.
func (c *Collector) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(runCtx, c.done)
}

// Stop tears the subscription down and waits for the loop to drain. It is
// safe to call repeatedly and from a different goroutine than Start.
func (c *Collector) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether a subscription is active.
func (c *Collector) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

func (c *Collector) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	// Store writes run detached from Stop's cancel: a batch the source
	// already handed over is persisted, not dropped mid-write.
	storeCtx := context.WithoutCancel(ctx)

	var locations <-chan []recording.LocationPointInput
	if c.locations != nil {
		locations = c.locations.Locations()
	}
	var sensors <-chan []recording.SensorReadingInput
	if c.sensors != nil {
		sensors = c.sensors.Sensors()
	}

	var heartbeat <-chan time.Time
	if c.heartbeat > 0 {
		ticker := time.NewTicker(c.heartbeat)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-locations:
			if !ok {
				locations = nil
				if sensors == nil {
					return
				}
				continue
			}
			c.storeLocations(storeCtx, batch)
		case batch, ok := <-sensors:
			if !ok {
				sensors = nil
				if locations == nil {
					return
				}
				continue
			}
			c.storeSensors(storeCtx, batch)
		case <-heartbeat:
			c.touch(storeCtx)
		}
	}
}

func (c *Collector) storeLocations(ctx context.Context, batch []recording.LocationPointInput) {
	session, err := c.store.Current(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrNoActiveSession) {
			log.Printf("collector: resolving session failed, dropping %d points: %v", len(batch), err)
		}
		return
	}

	stored, err := c.store.AppendLocationPoints(ctx, session.ID, batch)
	if err != nil {
		// A failed append is a dropped sample, never a reason to stop
		// the subscription.
		log.Printf("collector: storing %d points failed: %v", len(batch), err)
		return
	}
	if stored > 0 {
		c.registry.Notify(notify.Progress{SessionID: session.ID, StoredPoints: stored})
	}
}

func (c *Collector) storeSensors(ctx context.Context, batch []recording.SensorReadingInput) {
	session, err := c.store.Current(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrNoActiveSession) {
			log.Printf("collector: resolving session failed, dropping %d readings: %v", len(batch), err)
		}
		return
	}

	stored, err := c.store.AppendSensorReadings(ctx, session.ID, batch)
	if err != nil {
		log.Printf("collector: storing %d readings failed: %v", len(batch), err)
		return
	}
	if stored > 0 {
		c.registry.Notify(notify.Progress{SessionID: session.ID, StoredReadings: stored})
	}
}

// touch keeps a stationary recording alive; data volume is not the liveness
// signal, last_activity_at is.
func (c *Collector) touch(ctx context.Context) {
	session, err := c.store.Current(ctx)
	if err != nil {
		return
	}
	if err := c.store.Touch(ctx, session.ID); err != nil {
		log.Printf("collector: heartbeat failed: %v", err)
	}
}
