package notify

import (
	"context"

	"github.com/yat0i811/CompShare/internal/core/event"
)

// Dispatcher forwards job lifecycle events to the channel registered under
// the job's correlation id. Events for ids with no live channel are dropped;
// the job itself never notices.
type Dispatcher struct {
	bus      event.Bus
	registry *Registry
}

func NewDispatcher(bus event.Bus, registry *Registry) *Dispatcher {
	return &Dispatcher{bus: bus, registry: registry}
}

// SetupSubscribers wires the bus to the registry. Call after the persistence
// subscribers so clients only observe state the database already holds.
func (d *Dispatcher) SetupSubscribers() {
	d.bus.Subscribe(event.EventJobProgress, func(ctx context.Context, e event.Event) error {
		ch, payload := d.target(e)
		if ch == nil {
			return nil
		}
		ch.Send(Progress(payload.Progress))
		return nil
	})

	d.bus.Subscribe(event.EventJobWarning, func(ctx context.Context, e event.Event) error {
		ch, payload := d.target(e)
		if ch == nil {
			return nil
		}
		ch.Send(Warning(payload.Detail))
		return nil
	})

	d.bus.Subscribe(event.EventJobCompleted, func(ctx context.Context, e event.Event) error {
		ch, payload := d.target(e)
		if ch == nil || payload.Result == nil {
			return nil
		}
		ch.Send(Done(DoneResult{
			DownloadID: payload.Result.DownloadID,
			URL:        payload.Result.URL,
			Filename:   payload.Result.Filename,
			Size:       payload.Result.Size,
			StorageKey: payload.Result.StorageKey,
		}))
		return nil
	})

	d.bus.Subscribe(event.EventJobFailed, func(ctx context.Context, e event.Event) error {
		ch, payload := d.target(e)
		if ch == nil {
			return nil
		}
		ch.Send(Error(payload.Detail))
		return nil
	})
}

func (d *Dispatcher) target(e event.Event) (*Channel, event.JobEvent) {
	payload, ok := e.Payload.(event.JobEvent)
	if !ok || payload.CorrelationID == "" {
		return nil, payload
	}
	return d.registry.Lookup(payload.CorrelationID), payload
}
