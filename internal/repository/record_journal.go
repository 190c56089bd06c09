package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/triage-ledger/internal/domain"
	"github.com/spec-kit/triage-ledger/internal/lifecycle"
	"github.com/spec-kit/triage-ledger/internal/validation"
)

// ErrNoPool is returned when the journal has no database behind it.
var ErrNoPool = errors.New("postgres pool not configured")

// RecordJournal stores ledger entries in the append-only ticket_records table.
type RecordJournal interface {
	lifecycle.Journal
	LoadAll(ctx context.Context) ([]lifecycle.Entry, error)
	ListByTicket(ctx context.Context, ticketID string) ([]lifecycle.Entry, error)
}

type recordJournal struct {
	pool *pgxpool.Pool
}

// NewRecordJournal builds repository.
func NewRecordJournal(pool *pgxpool.Pool) RecordJournal {
	return &recordJournal{pool: pool}
}

func (r *recordJournal) Append(ctx context.Context, entry lifecycle.Entry) error {
	if r.pool == nil {
		return ErrNoPool
	}
	payload, err := json.Marshal(entry.Record)
	if err != nil {
		return fmt.Errorf("encode %s: %w", entry.Kind(), err)
	}
	var proposalSeq *int64
	if entry.ProposalSeq != 0 {
		v := int64(entry.ProposalSeq)
		proposalSeq = &v
	}
	const query = `
        INSERT INTO ticket_records (seq, ticket_id, kind, payload, fingerprint, proposal_seq, created_at, appended_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err = r.pool.Exec(ctx, query,
		int64(entry.Seq),
		entry.TicketID().String(),
		string(entry.Kind()),
		payload,
		entry.Fingerprint,
		proposalSeq,
		entry.CreatedAt(),
		entry.AppendedAt,
	)
	return err
}

func (r *recordJournal) LoadAll(ctx context.Context) ([]lifecycle.Entry, error) {
	const query = `
        SELECT seq, kind, payload, fingerprint, proposal_seq, appended_at
        FROM ticket_records ORDER BY seq ASC`
	return r.list(ctx, query)
}

func (r *recordJournal) ListByTicket(ctx context.Context, ticketID string) ([]lifecycle.Entry, error) {
	const query = `
        SELECT seq, kind, payload, fingerprint, proposal_seq, appended_at
        FROM ticket_records WHERE ticket_id=$1 ORDER BY created_at ASC, seq ASC`
	return r.list(ctx, query, ticketID)
}

func (r *recordJournal) list(ctx context.Context, query string, args ...any) ([]lifecycle.Entry, error) {
	if r.pool == nil {
		return nil, ErrNoPool
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []lifecycle.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

// scanEntry decodes a row, re-validating the stored payload so a journal
// row can never smuggle in a record the ledger would have refused.
func scanEntry(rows pgx.Rows) (lifecycle.Entry, error) {
	var (
		seq         int64
		kind        string
		payload     []byte
		proposalSeq *int64
		entry       lifecycle.Entry
	)
	if err := rows.Scan(&seq, &kind, &payload, &entry.Fingerprint, &proposalSeq, &entry.AppendedAt); err != nil {
		return lifecycle.Entry{}, err
	}
	rec, err := validation.Validate(payload, domain.RecordKind(kind))
	if err != nil {
		return lifecycle.Entry{}, fmt.Errorf("journal seq %d: %w", seq, err)
	}
	entry.Seq = uint64(seq)
	entry.Record = rec
	if proposalSeq != nil {
		entry.ProposalSeq = uint64(*proposalSeq)
	}
	return entry, nil
}
