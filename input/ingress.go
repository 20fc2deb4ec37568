// Package input receives the inbound wire-contract events over NATS:
// parcel-detection announcements, parcel-blind DWS readings, and sorter
// completion reports. Each subject is decoded and handed to the engine's
// handler; malformed payloads are logged and dropped without crashing
// the subscription.
package input

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/zakyip/sortengine/errors"
	"github.com/zakyip/sortengine/natsclient"
	"github.com/zakyip/sortengine/wire"
)

// Handlers receives decoded inbound events. All handlers may be called
// concurrently from NATS callbacks.
type Handlers struct {
	OnParcelDetected   func(ctx context.Context, msg wire.ParcelDetected)
	OnDwsReading       func(ctx context.Context, msg wire.DwsReading)
	OnSortingCompleted func(ctx context.Context, msg wire.SortingCompleted)
}

// Subjects names the three inbound NATS subjects.
type Subjects struct {
	ParcelDetected   string
	DwsReading       string
	SortingCompleted string
}

// Ingress subscribes the inbound subjects and dispatches decoded events.
type Ingress struct {
	client   *natsclient.Client
	subjects Subjects
	handlers Handlers
	logger   *slog.Logger

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
}

// NewIngress creates the inbound adapter.
func NewIngress(client *natsclient.Client, subjects Subjects, handlers Handlers, logger *slog.Logger) *Ingress {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingress{
		client:   client,
		subjects: subjects,
		handlers: handlers,
		logger:   logger,
	}
}

// Start subscribes all inbound subjects.
func (in *Ingress) Start(ctx context.Context) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.started {
		return errors.ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)

	if _, err := in.client.Subscribe(in.subjects.ParcelDetected, func(msg *nats.Msg) {
		var event wire.ParcelDetected
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			in.logger.Error("malformed parcel-detected payload",
				"subject", msg.Subject, "error", err)
			return
		}
		if in.handlers.OnParcelDetected != nil {
			in.handlers.OnParcelDetected(runCtx, event)
		}
	}); err != nil {
		cancel()
		return err
	}

	if _, err := in.client.Subscribe(in.subjects.DwsReading, func(msg *nats.Msg) {
		var event wire.DwsReading
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			in.logger.Error("malformed DWS payload",
				"subject", msg.Subject, "error", err)
			return
		}
		if in.handlers.OnDwsReading != nil {
			in.handlers.OnDwsReading(runCtx, event)
		}
	}); err != nil {
		cancel()
		return err
	}

	if _, err := in.client.Subscribe(in.subjects.SortingCompleted, func(msg *nats.Msg) {
		var event wire.SortingCompleted
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			in.logger.Error("malformed sorting-completed payload",
				"subject", msg.Subject, "error", err)
			return
		}
		if in.handlers.OnSortingCompleted != nil {
			in.handlers.OnSortingCompleted(runCtx, event)
		}
	}); err != nil {
		cancel()
		return err
	}

	in.cancel = cancel
	in.started = true
	in.logger.Info("ingress subscribed",
		"parcel_detected", in.subjects.ParcelDetected,
		"dws_reading", in.subjects.DwsReading,
		"sorting_completed", in.subjects.SortingCompleted)
	return nil
}

// Stop cancels handler contexts. Subscription drain is owned by the
// shared NATS client.
func (in *Ingress) Stop(_ time.Duration) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if !in.started {
		return errors.ErrNotStarted
	}
	in.cancel()
	in.started = false
	return nil
}
