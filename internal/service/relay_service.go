package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/triage-ledger/internal/config"
	"github.com/spec-kit/triage-ledger/internal/events"
)

// Publisher is the outbound side of the relay. *persistence.Redis satisfies it.
type Publisher interface {
	Enabled() bool
	Publish(ctx context.Context, channel string, message []byte) error
	SetHash(ctx context.Context, key string, fields map[string]any) error
}

// RelayService forwards ledger events to Redis so other services can follow
// the workflow without reading the ledger.
type RelayService struct {
	dispatcher events.Dispatcher
	publisher  Publisher
	logger     *zap.Logger
	cfg        config.LedgerConfig
}

// NewRelayService creates the service.
func NewRelayService(dispatcher events.Dispatcher, publisher Publisher, logger *zap.Logger, cfg config.LedgerConfig) *RelayService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RelayService{
		dispatcher: dispatcher,
		publisher:  publisher,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (r *RelayService) RegisterHandlers() {
	if r.dispatcher == nil {
		return
	}
	r.dispatcher.Subscribe(events.EventRecordAppended, r.handleRecordAppended)
	r.dispatcher.Subscribe(events.EventWorkflowStateChanged, r.handleWorkflowStateChanged)
}

func (r *RelayService) handleRecordAppended(ctx context.Context, event events.Event) error {
	r.logger.Debug("RecordAppended", zap.String("ticket_id", event.TicketID), zap.Uint64("seq", event.Seq))
	return r.forward(ctx, event)
}

func (r *RelayService) handleWorkflowStateChanged(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.WorkflowStateChangedPayload)
	if !ok {
		return fmt.Errorf("workflow_state_changed: unexpected payload %T", event.Payload)
	}
	r.logger.Info("WorkflowStateChanged",
		zap.String("ticket_id", event.TicketID),
		zap.String("old_state", string(payload.OldState)),
		zap.String("new_state", string(payload.NewState)))

	if err := r.forward(ctx, event); err != nil {
		return err
	}
	if !r.enabled() {
		return nil
	}
	return r.publisher.SetHash(ctx, r.cfg.StateKeyPrefix+event.TicketID, map[string]any{
		"state":      string(payload.NewState),
		"seq":        event.Seq,
		"changed_at": event.Timestamp.UTC().Format(time.RFC3339Nano),
	})
}

func (r *RelayService) forward(ctx context.Context, event events.Event) error {
	if !r.enabled() {
		return nil
	}
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return r.publisher.Publish(ctx, r.cfg.EventChannel, body)
}

func (r *RelayService) enabled() bool {
	return r.publisher != nil && r.publisher.Enabled() && r.cfg.EventChannel != ""
}
