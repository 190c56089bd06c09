// Package lifecycle owns the append-only, per-ticket record sequences and
// enforces the invariants that span more than one record.
package lifecycle

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/triage-ledger/internal/domain"
	"github.com/spec-kit/triage-ledger/internal/events"
)

// Journal durably stores accepted entries. A failed write aborts the append.
type Journal interface {
	Append(ctx context.Context, entry Entry) error
}

// AppendRecorder receives append outcomes for metrics.
type AppendRecorder interface {
	RecordAppend(kind, outcome string)
}

// CoordinatorDependencies bundles collaborators for the coordinator. Every
// field is optional.
type CoordinatorDependencies struct {
	Journal        Journal
	JournalTimeout time.Duration
	Dispatcher     events.Dispatcher
	Logger         *zap.Logger
	Metrics        AppendRecorder
	Clock          func() time.Time
}

// Coordinator serializes appends per ticket and keeps the derived workflow
// state of every ticket.
//
// Appends hold gate for reading, so appends for different tickets run in
// parallel; Snapshot holds it for writing to observe every ticket at one
// instant. Appends for the same ticket are linearized by the ticket's own
// lock.
type Coordinator struct {
	gate sync.RWMutex

	mu      sync.RWMutex
	tickets map[uuid.UUID]*ticketLog

	seq atomic.Uint64

	journal        Journal
	journalTimeout time.Duration
	dispatcher     events.Dispatcher
	logger         *zap.Logger
	metrics        AppendRecorder
	now            func() time.Time
}

// NewCoordinator constructs an empty ledger.
func NewCoordinator(deps CoordinatorDependencies) *Coordinator {
	c := &Coordinator{
		tickets:        make(map[uuid.UUID]*ticketLog),
		journal:        deps.Journal,
		journalTimeout: deps.JournalTimeout,
		dispatcher:     deps.Dispatcher,
		logger:         deps.Logger,
		metrics:        deps.Metrics,
		now:            deps.Clock,
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Append checks rec against the ledger and, if every invariant holds,
// appends it atomically. On error the ledger is unchanged; the error is a
// *domain.ValidationError for field-level problems or an *AppendError.
func (c *Coordinator) Append(ctx context.Context, rec domain.Record) (Entry, error) {
	entry, _, err := c.AppendWithState(ctx, rec)
	return entry, err
}

// AppendWithState is Append that also returns the workflow state this
// record produced, read inside the same critical section as the commit.
func (c *Coordinator) AppendWithState(ctx context.Context, rec domain.Record) (Entry, domain.WorkflowState, error) {
	entry, oldState, newState, err := c.apply(ctx, rec, nil)
	c.observe(rec, entry, err)
	if err != nil {
		return Entry{}, "", err
	}
	c.publish(ctx, entry, oldState, newState)
	return entry, newState, nil
}

// Replay re-applies journaled entries in sequence order, keeping their
// sequence numbers. It neither writes the journal nor publishes events.
//
// An entry identical to one already replayed is skipped. The journal can hold
// such a pair when a write committed after its deadline and the client
// resent the record.
func (c *Coordinator) Replay(ctx context.Context, entries []Entry) error {
	sorted := append([]Entry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Seq < sorted[j].Seq })
	skipped := 0
	for i := range sorted {
		restored := sorted[i]
		_, _, _, err := c.apply(ctx, restored.Record, &restored)
		var aerr *AppendError
		if errors.As(err, &aerr) && aerr.Invariant == InvariantDuplicate {
			c.advanceSeq(restored.Seq)
			skipped++
			c.logger.Warn("skipped duplicate journal entry",
				zap.Uint64("seq", restored.Seq),
				zap.String("ticket_id", restored.TicketID().String()),
				zap.String("kind", string(restored.Kind())),
			)
			continue
		}
		if err != nil {
			return err
		}
	}
	c.logger.Info("ledger replayed",
		zap.Int("entries", len(sorted)),
		zap.Int("skipped", skipped),
		zap.Uint64("last_seq", c.seq.Load()),
	)
	return nil
}

// CurrentState returns the ticket's workflow phase.
func (c *Coordinator) CurrentState(ticketID uuid.UUID) (domain.WorkflowState, error) {
	l, err := c.readable(ticketID)
	if err != nil {
		return "", err
	}
	defer l.mu.RUnlock()
	return l.state, nil
}

// History returns the ticket's full audit trail in history order.
func (c *Coordinator) History(ticketID uuid.UUID) ([]Entry, error) {
	v, err := c.View(ticketID)
	if err != nil {
		return nil, err
	}
	return v.Entries, nil
}

// View returns a consistent copy of one ticket's ledger state.
func (c *Coordinator) View(ticketID uuid.UUID) (TicketView, error) {
	l, err := c.readable(ticketID)
	if err != nil {
		return TicketView{}, err
	}
	defer l.mu.RUnlock()
	return l.view(), nil
}

// Snapshot is a copy of every ticket taken while no append was in flight.
type Snapshot struct {
	Tickets []TicketView
	LastSeq uint64
	TakenAt time.Time
}

// Snapshot copies the whole ledger at a single instant.
func (c *Coordinator) Snapshot() Snapshot {
	c.gate.Lock()
	defer c.gate.Unlock()

	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := Snapshot{
		Tickets: make([]TicketView, 0, len(c.tickets)),
		LastSeq: c.seq.Load(),
		TakenAt: c.now(),
	}
	for _, l := range c.tickets {
		if !l.committed {
			continue
		}
		snap.Tickets = append(snap.Tickets, l.view())
	}
	sort.Slice(snap.Tickets, func(i, j int) bool {
		return snap.Tickets[i].Entries[0].Seq < snap.Tickets[j].Entries[0].Seq
	})
	return snap
}

func (c *Coordinator) readable(ticketID uuid.UUID) (*ticketLog, error) {
	c.mu.RLock()
	l := c.tickets[ticketID]
	c.mu.RUnlock()
	if l == nil {
		return nil, &UnknownTicketError{TicketID: ticketID}
	}
	l.mu.RLock()
	if !l.committed {
		l.mu.RUnlock()
		return nil, &UnknownTicketError{TicketID: ticketID}
	}
	return l, nil
}

// apply runs one append. restored carries the journaled entry during replay.
func (c *Coordinator) apply(ctx context.Context, rec domain.Record, restored *Entry) (Entry, domain.WorkflowState, domain.WorkflowState, error) {
	if rec == nil {
		return Entry{}, "", "", &domain.ValidationError{
			Violations: []domain.SchemaViolation{{Field: "$", Rule: "record required"}},
		}
	}
	if vs := rec.Validate(); len(vs) > 0 {
		return Entry{}, "", "", &domain.ValidationError{Kind: rec.Kind(), Violations: vs}
	}
	rec = domain.Clone(rec)
	fingerprint, err := domain.Fingerprint(rec)
	if err != nil {
		return Entry{}, "", "", err
	}

	c.gate.RLock()
	defer c.gate.RUnlock()

	if t, ok := rec.(domain.Ticket); ok {
		entry, err := c.applyTicket(ctx, t, fingerprint, restored)
		return entry, "", domain.WorkflowIntake, err
	}

	ticketID := rec.TicketRef()
	unknown := &AppendError{
		TicketID:  ticketID,
		Kind:      rec.Kind(),
		Invariant: InvariantTicketReference,
		Err:       &UnknownTicketError{TicketID: ticketID},
	}
	c.mu.RLock()
	l := c.tickets[ticketID]
	c.mu.RUnlock()
	if l == nil {
		return Entry{}, "", "", unknown
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.committed {
		return Entry{}, "", "", unknown
	}

	entry, aerr := l.admit(rec, fingerprint)
	if aerr != nil {
		return Entry{}, "", "", aerr
	}
	if restored != nil && restored.ProposalSeq != entry.ProposalSeq {
		return Entry{}, "", "", &AppendError{
			TicketID:  ticketID,
			Kind:      rec.Kind(),
			Invariant: InvariantProposalReference,
			Err:       ErrProposalNotFound,
			Detail:    "journaled proposal_seq differs from replayed target",
		}
	}
	if err := c.stamp(ctx, &entry, restored); err != nil {
		return Entry{}, "", "", err
	}

	oldState := l.state
	l.commit(entry)
	return entry, oldState, l.state, nil
}

func (c *Coordinator) applyTicket(ctx context.Context, t domain.Ticket, fingerprint string, restored *Entry) (Entry, error) {
	c.mu.Lock()
	if existing := c.tickets[t.ID]; existing != nil {
		c.mu.Unlock()
		existing.mu.RLock()
		defer existing.mu.RUnlock()
		if existing.committed {
			if _, dup := existing.fingerprints[fingerprint]; dup {
				return Entry{}, &AppendError{TicketID: t.ID, Kind: domain.KindTicket, Invariant: InvariantDuplicate, Err: ErrDuplicateRecord}
			}
			return Entry{}, &AppendError{
				TicketID:  t.ID,
				Kind:      domain.KindTicket,
				Invariant: InvariantConflictingTicket,
				Err:       ErrConflictingRecord,
				Detail:    "a different ticket already uses this id",
			}
		}
		// A concurrent creation failed its journal write and is being
		// withdrawn; this one may retry.
		return Entry{}, &AppendError{
			TicketID:  t.ID,
			Kind:      domain.KindTicket,
			Invariant: InvariantConflictingTicket,
			Err:       ErrConflictingRecord,
			Detail:    "ticket creation in progress",
		}
	}
	l := newTicketLog(t.ID)
	l.mu.Lock()
	defer l.mu.Unlock()
	c.tickets[t.ID] = l
	c.mu.Unlock()

	entry := Entry{Record: t, Fingerprint: fingerprint}
	if err := c.stamp(ctx, &entry, restored); err != nil {
		c.mu.Lock()
		delete(c.tickets, t.ID)
		c.mu.Unlock()
		return Entry{}, err
	}
	l.commit(entry)
	return entry, nil
}

// stamp assigns the sequence number and writes the journal.
func (c *Coordinator) stamp(ctx context.Context, entry *Entry, restored *Entry) error {
	if restored != nil {
		entry.Seq = restored.Seq
		entry.AppendedAt = restored.AppendedAt
		c.advanceSeq(entry.Seq)
		return nil
	}

	entry.Seq = c.seq.Add(1)
	entry.AppendedAt = c.now()
	if c.journal == nil {
		return nil
	}
	if c.journalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.journalTimeout)
		defer cancel()
	}
	if err := c.journal.Append(ctx, *entry); err != nil {
		return &AppendError{
			TicketID:  entry.TicketID(),
			Kind:      entry.Kind(),
			Invariant: InvariantJournal,
			Err:       errors.Join(ErrJournal, err),
		}
	}
	return nil
}

// advanceSeq moves the counter up to seq so later appends never reuse it.
func (c *Coordinator) advanceSeq(seq uint64) {
	for {
		cur := c.seq.Load()
		if cur >= seq || c.seq.CompareAndSwap(cur, seq) {
			return
		}
	}
}

func (c *Coordinator) observe(rec domain.Record, entry Entry, err error) {
	kind := "unknown"
	if rec != nil {
		kind = string(rec.Kind())
	}
	outcome := "accepted"
	if err != nil {
		var aerr *AppendError
		var verr *domain.ValidationError
		switch {
		case errors.As(err, &aerr):
			outcome = string(aerr.Invariant)
			c.logger.Info("append rejected",
				zap.String("ticket_id", aerr.TicketID.String()),
				zap.String("kind", kind),
				zap.String("invariant", outcome),
				zap.Error(err))
		case errors.As(err, &verr):
			outcome = "schema"
			c.logger.Info("append rejected", zap.String("kind", kind), zap.Strings("fields", verr.Fields()))
		default:
			outcome = "error"
			c.logger.Error("append failed", zap.String("kind", kind), zap.Error(err))
		}
	} else {
		c.logger.Debug("record appended",
			zap.String("ticket_id", entry.TicketID().String()),
			zap.String("kind", kind),
			zap.Uint64("seq", entry.Seq))
	}
	if c.metrics != nil {
		c.metrics.RecordAppend(kind, outcome)
	}
}

func (c *Coordinator) publish(ctx context.Context, entry Entry, oldState, newState domain.WorkflowState) {
	if c.dispatcher == nil {
		return
	}
	ticketID := entry.TicketID().String()
	if err := c.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventRecordAppended,
		TicketID:  ticketID,
		Seq:       entry.Seq,
		Timestamp: entry.AppendedAt,
		Payload: events.RecordAppendedPayload{
			Kind:        entry.Kind(),
			Fingerprint: entry.Fingerprint,
			ProposalSeq: entry.ProposalSeq,
			CreatedAt:   entry.CreatedAt(),
		},
	}); err != nil {
		c.logger.Warn("event handler failed", zap.String("ticket_id", ticketID), zap.Error(err))
	}
	if oldState == newState {
		return
	}
	if err := c.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventWorkflowStateChanged,
		TicketID:  ticketID,
		Seq:       entry.Seq,
		Timestamp: entry.AppendedAt,
		Payload:   events.WorkflowStateChangedPayload{OldState: oldState, NewState: newState},
	}); err != nil {
		c.logger.Warn("event handler failed", zap.String("ticket_id", ticketID), zap.Error(err))
	}
}
