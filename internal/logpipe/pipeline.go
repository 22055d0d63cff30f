package logpipe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/stellarlinkco/coachd/internal/store"
)

var (
	// ErrAlreadyCancelled rejects confirmation of a cancelled entry.
	ErrAlreadyCancelled = errors.New("pending log already cancelled")
)

// Edits are per-item numeric overrides supplied at confirmation time: the
// quantity for meals, duration for activities, value for measurements.
type Edits map[int]float64

// Outcome is the caller-facing result of a confirm or cancel operation.
type Outcome struct {
	Status         string `json:"status"`
	LinkedEntityID string `json:"linked_entity_id,omitempty"`
}

// PendingStore is the persistence surface the pipeline drives.
type PendingStore interface {
	CreatePendingLog(entry store.PendingLog) (string, error)
	PendingLog(id string) (*store.PendingLog, error)
	UpdatePendingLogStatus(id, status, reason, linkedEntityID string) error
	ApplyMealMutation(log store.MealLog) (string, error)
	ApplyActivityMutation(log store.ActivityLog) (string, error)
	ApplyMeasurementMutation(m store.Measurement) (string, error)
}

// Pipeline is the extraction -> pending -> confirmation -> transformation
// state machine for LOG-classified messages.
type Pipeline struct {
	st          PendingStore
	extractor   *Extractor
	transformer *Transformer
	logger      *log.Logger
}

func NewPipeline(st PendingStore, extractor *Extractor, transformer *Transformer) *Pipeline {
	return &Pipeline{
		st:          st,
		extractor:   extractor,
		transformer: transformer,
		logger:      log.New(log.Writer(), "[logpipe] ", log.LstdFlags),
	}
}

// Begin extracts provisional data from the message and records a pending
// entry. No canonical mutation happens here; the entry waits for explicit
// confirmation.
func (p *Pipeline) Begin(ctx context.Context, userID, conversationID, logType, message string) (*store.PendingLog, *Provisional, error) {
	prov, err := p.extractor.Extract(ctx, logType, message)
	if err != nil {
		return nil, nil, fmt.Errorf("extract %s log: %w", logType, err)
	}

	data, err := json.Marshal(prov)
	if err != nil {
		return nil, nil, fmt.Errorf("encode provisional data: %w", err)
	}

	entry := store.PendingLog{
		UserID:         userID,
		ConversationID: conversationID,
		LogType:        logType,
		StructuredData: string(data),
	}
	id, err := p.st.CreatePendingLog(entry)
	if err != nil {
		return nil, nil, err
	}

	pending, err := p.st.PendingLog(id)
	if err != nil {
		return nil, nil, err
	}
	return pending, prov, nil
}

// Confirm resolves and applies one pending entry. Idempotent: confirming an
// already-confirmed entry returns the original linked entity without a second
// mutation. A resolution failure leaves the entry pending so the user can
// correct a name or quantity and retry.
func (p *Pipeline) Confirm(ctx context.Context, userID, pendingID string, edits Edits) (*Outcome, error) {
	pending, err := p.st.PendingLog(pendingID)
	if err != nil {
		return nil, err
	}
	// Ownership check first: another user's entry reads as not found.
	if pending.UserID != userID {
		return nil, store.ErrNotFound
	}

	switch pending.Status {
	case store.PendingStatusConfirmed:
		return &Outcome{Status: pending.Status, LinkedEntityID: pending.LinkedEntityID}, nil
	case store.PendingStatusCancelled:
		return nil, ErrAlreadyCancelled
	}

	var prov Provisional
	if err := json.Unmarshal([]byte(pending.StructuredData), &prov); err != nil {
		return nil, fmt.Errorf("decode provisional data: %w", err)
	}
	applyEdits(pending.LogType, &prov, edits)

	mutations, err := p.transformer.Transform(userID, pending.LogType, prov.Items)
	if err != nil {
		var resErr *ResolutionError
		if errors.As(err, &resErr) {
			p.logger.Printf("confirm %s: resolution failed: %v", pendingID, resErr)
		}
		return nil, err
	}

	linkedID := ""
	for _, m := range mutations {
		var id string
		var applyErr error
		switch {
		case m.Meal != nil:
			id, applyErr = p.st.ApplyMealMutation(*m.Meal)
		case m.Activity != nil:
			id, applyErr = p.st.ApplyActivityMutation(*m.Activity)
		case m.Measurement != nil:
			id, applyErr = p.st.ApplyMeasurementMutation(*m.Measurement)
		}
		if applyErr != nil {
			return nil, fmt.Errorf("apply mutation: %w", applyErr)
		}
		if linkedID == "" {
			linkedID = id
		}
	}

	if err := p.st.UpdatePendingLogStatus(pendingID, store.PendingStatusConfirmed, "", linkedID); err != nil {
		// A concurrent confirm won the race; re-read and honor its result.
		if again, readErr := p.st.PendingLog(pendingID); readErr == nil && again.Status == store.PendingStatusConfirmed {
			return &Outcome{Status: again.Status, LinkedEntityID: again.LinkedEntityID}, nil
		}
		return nil, err
	}
	return &Outcome{Status: store.PendingStatusConfirmed, LinkedEntityID: linkedID}, nil
}

// Cancel marks one pending entry cancelled. No side effects; cancelling an
// already-cancelled entry is a no-op.
func (p *Pipeline) Cancel(ctx context.Context, userID, pendingID, reason string) (*Outcome, error) {
	pending, err := p.st.PendingLog(pendingID)
	if err != nil {
		return nil, err
	}
	if pending.UserID != userID {
		return nil, store.ErrNotFound
	}

	switch pending.Status {
	case store.PendingStatusCancelled:
		return &Outcome{Status: pending.Status}, nil
	case store.PendingStatusConfirmed:
		return nil, fmt.Errorf("pending log %s already confirmed", pendingID)
	}

	if reason == "" {
		reason = "user"
	}
	if err := p.st.UpdatePendingLogStatus(pendingID, store.PendingStatusCancelled, reason, ""); err != nil {
		return nil, err
	}
	return &Outcome{Status: store.PendingStatusCancelled}, nil
}

func applyEdits(logType string, prov *Provisional, edits Edits) {
	for idx, value := range edits {
		if idx < 0 || idx >= len(prov.Items) || value <= 0 {
			continue
		}
		switch logType {
		case store.LogTypeMeal:
			prov.Items[idx].Quantity = value
		case store.LogTypeActivity:
			prov.Items[idx].DurationMin = value
		case store.LogTypeMeasurement:
			prov.Items[idx].Value = value
		}
	}
}
