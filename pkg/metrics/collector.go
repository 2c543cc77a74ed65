package metrics

import (
	"time"

	"github.com/fleetconf/shepherd/pkg/events"
	"github.com/fleetconf/shepherd/pkg/storage"
	"github.com/fleetconf/shepherd/pkg/types"
)

// collectBatch bounds how many records one gauge refresh scan pulls.
const collectBatch = 500

// Collector refreshes entity gauges from the store and counts state
// change events off the broker.
type Collector struct {
	store  storage.Store
	broker *events.Broker
	sub    events.Subscriber
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector. broker may be nil.
func NewCollector(store storage.Store, broker *events.Broker) *Collector {
	return &Collector{
		store:  store,
		broker: broker,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	if c.broker != nil {
		c.sub = c.broker.Subscribe()
		go c.countEvents()
	}
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

func (c *Collector) countEvents() {
	for {
		select {
		case ev, ok := <-c.sub:
			if !ok {
				return
			}
			EventsTotal.WithLabelValues(string(ev.Type)).Inc()
		case <-c.stopCh:
			return
		}
	}
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
	if c.broker != nil && c.sub != nil {
		c.broker.Unsubscribe(c.sub)
	}
}

func (c *Collector) collect() {
	c.collectComponentMetrics()
	c.collectCatalogMetrics()
	c.collectSessionMetrics()
}

func (c *Collector) collectComponentMetrics() {
	counts := map[types.ComponentStatus]int{
		types.StatusPending:    0,
		types.StatusSuccess:    0,
		types.StatusFailed:     0,
		types.StatusIncomplete: 0,
	}
	after := ""
	for {
		page, more, err := c.store.ScanComponents(after, collectBatch)
		if err != nil {
			return
		}
		for _, comp := range page {
			counts[comp.Status]++
		}
		if !more {
			break
		}
		after = page[len(page)-1].ID
	}
	for status, count := range counts {
		ComponentsTotal.WithLabelValues(string(status)).Set(float64(count))
	}
}

func (c *Collector) collectCatalogMetrics() {
	total := 0
	after := ""
	for {
		page, more, err := c.store.ScanConfigurations(after, collectBatch)
		if err != nil {
			return
		}
		total += len(page)
		if !more {
			break
		}
		after = page[len(page)-1].Name
	}
	ConfigurationsTotal.Set(float64(total))

	total = 0
	after = ""
	for {
		page, more, err := c.store.ScanSources(after, collectBatch)
		if err != nil {
			return
		}
		total += len(page)
		if !more {
			break
		}
		after = page[len(page)-1].Name
	}
	SourcesTotal.Set(float64(total))
}

func (c *Collector) collectSessionMetrics() {
	counts := map[types.SessionStatus]int{
		types.SessionPending:  0,
		types.SessionRunning:  0,
		types.SessionComplete: 0,
	}
	after := ""
	for {
		page, more, err := c.store.ScanSessions(after, collectBatch)
		if err != nil {
			return
		}
		for _, s := range page {
			counts[s.Status.Status]++
		}
		if !more {
			break
		}
		after = page[len(page)-1].Name
	}
	for status, count := range counts {
		SessionsTotal.WithLabelValues(string(status)).Set(float64(count))
	}
}
