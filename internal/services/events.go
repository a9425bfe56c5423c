package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/federated-storage/proofpay/internal/models"
	"github.com/federated-storage/proofpay/internal/storage"
)

// EventSink receives events after they are durably recorded. Announcing is
// best-effort; a sink must never fail the operation that emitted the event.
type EventSink interface {
	Announce(event models.Event)
}

func recordEvent(ctx context.Context, store storage.Store, sink EventSink, datasetID uuid.UUID, kind string, fields map[string]any) error {
	payload, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to encode event payload: %w", err)
	}
	event := &models.Event{
		ID:        uuid.New(),
		DatasetID: &datasetID,
		Kind:      kind,
		Payload:   string(payload),
	}
	if err := store.RecordEvent(ctx, event); err != nil {
		return fmt.Errorf("failed to record %s event: %w", kind, err)
	}
	if sink != nil {
		sink.Announce(*event)
	}
	return nil
}
