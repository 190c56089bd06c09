package projection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/triage-ledger/internal/domain"
	"github.com/spec-kit/triage-ledger/internal/lifecycle"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func at(minutes int) time.Time { return t0.Add(time.Duration(minutes) * time.Minute) }

type fixture struct {
	t     *testing.T
	coord *lifecycle.Coordinator
	proj  *Projector
}

func newFixture(t *testing.T, now time.Time) *fixture {
	coord := lifecycle.NewCoordinator(lifecycle.CoordinatorDependencies{})
	return &fixture{t: t, coord: coord, proj: NewProjector(coord, func() time.Time { return now })}
}

func (f *fixture) add(rec domain.Record, err error) {
	f.t.Helper()
	if err != nil {
		f.t.Fatal(err)
	}
	if _, err := f.coord.Append(context.Background(), rec); err != nil {
		f.t.Fatalf("Append: %v", err)
	}
}

func (f *fixture) ticket(minute int) uuid.UUID {
	id := uuid.New()
	f.add(domain.NewTicket(id, "please refund my order", at(minute)))
	return id
}

func (f *fixture) propose(id uuid.UUID, confidence float64, minute int) {
	f.add(domain.NewDecisionProposal(id, domain.DecisionApprove, domain.AgreementConfidence(confidence), []string{"R1"}, "Refund approved.", at(minute)))
}

func (f *fixture) review(id uuid.UUID, d domain.Disposition, confidence float64, minute int) {
	f.add(domain.NewHumanFeedback(id, d, domain.AgreementConfidence(confidence), at(minute)))
}

func TestLatestProposalAndSummary(t *testing.T) {
	f := newFixture(t, at(60))
	id := f.ticket(0)

	if _, err := f.proj.LatestProposal(id); !errors.Is(err, ErrNoProposal) {
		t.Errorf("err = %v, want ErrNoProposal", err)
	}
	if _, _, err := f.proj.LatestSummary(id); !errors.Is(err, ErrNoSummary) {
		t.Errorf("err = %v, want ErrNoSummary", err)
	}
	if _, err := f.proj.LatestProposal(uuid.New()); !errors.Is(err, lifecycle.ErrUnknownTicket) {
		t.Errorf("err = %v, want ErrUnknownTicket", err)
	}

	f.add(domain.NewTicketSummary(id, "refund request", 0.95, at(1)))
	f.propose(id, 0.4, 2)
	f.review(id, domain.Rejected{Reason: "wrong policy"}, 0.4, 3)
	f.propose(id, 0.8, 4)

	latest, err := f.proj.LatestProposal(id)
	if err != nil {
		t.Fatal(err)
	}
	if latest.Seq != 5 || latest.Proposal.Confidence != 0.8 || latest.Disposition != "" {
		t.Errorf("latest = %+v", latest)
	}
	seq, summary, err := f.proj.LatestSummary(id)
	if err != nil || seq != 2 || summary.Summary != "refund request" {
		t.Errorf("summary = %d %+v %v", seq, summary, err)
	}
}

func TestReviewQueues(t *testing.T) {
	f := newFixture(t, at(60))
	f.ticket(0)
	pending := f.ticket(0)
	rejected := f.ticket(0)
	resolved := f.ticket(0)

	f.propose(pending, 0.7, 1)
	f.propose(rejected, 0.3, 1)
	f.review(rejected, domain.Rejected{Reason: "missing receipt"}, 0.3, 2)
	f.propose(resolved, 0.9, 1)
	f.review(resolved, domain.Approved{}, 0.9, 2)

	queue := f.proj.PendingReview()
	if len(queue) != 2 {
		t.Fatalf("pending = %+v, want both proposed tickets", queue)
	}
	byID := make(map[uuid.UUID]ReviewItem, len(queue))
	for _, item := range queue {
		byID[item.TicketID] = item
	}
	if item, ok := byID[pending]; !ok || item.Latest.Disposition != "" || item.RejectionReason != "" {
		t.Errorf("pending item = %+v, %v", item, ok)
	}
	if item, ok := byID[rejected]; !ok || item.Latest.Disposition != domain.ActionRejected || item.RejectionReason != "missing receipt" {
		t.Errorf("rejected item = %+v, %v", item, ok)
	}

	redo := f.proj.AwaitingReproposal()
	if len(redo) != 1 || redo[0].TicketID != rejected || redo[0].RejectionReason != "missing receipt" {
		t.Errorf("awaiting reproposal = %+v", redo)
	}
	if redo[0].State != domain.WorkflowProposed {
		t.Errorf("state = %s", redo[0].State)
	}

	counts := f.proj.StateCounts()
	want := map[domain.WorkflowState]int{
		domain.WorkflowIntake:   1,
		domain.WorkflowProposed: 2,
		domain.WorkflowResolved: 1,
	}
	for s, n := range want {
		if counts[s] != n {
			t.Errorf("counts[%s] = %d, want %d", s, counts[s], n)
		}
	}
}

func TestRejectionRate(t *testing.T) {
	f := newFixture(t, at(120))

	if _, err := f.proj.RejectionRate(time.Hour); !errors.Is(err, ErrNoFeedback) {
		t.Errorf("empty ledger err = %v", err)
	}
	if _, err := f.proj.RejectionRate(0); !errors.Is(err, ErrBadWindow) {
		t.Errorf("zero window err = %v", err)
	}

	old := f.ticket(0)
	f.propose(old, 0.2, 1)
	f.review(old, domain.Rejected{Reason: "stale"}, 0.2, 2)

	a := f.ticket(60)
	f.propose(a, 0.4, 70)
	f.review(a, domain.Rejected{Reason: "wrong policy"}, 0.4, 80)
	f.propose(a, 0.9, 90)
	f.review(a, domain.Approved{}, 0.9, 100)

	b := f.ticket(60)
	f.propose(b, 0.6, 70)
	f.review(b, domain.Edited{Diff: "tone"}, 0.6, 110)

	stats, err := f.proj.RejectionRate(time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 3 || stats.Rejected != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.Rate < 0.333 || stats.Rate > 0.334 {
		t.Errorf("rate = %v", stats.Rate)
	}

	all, err := f.proj.RejectionRate(3 * time.Hour)
	if err != nil || all.Total != 4 || all.Rejected != 2 || all.Rate != 0.5 {
		t.Errorf("all = %+v %v", all, err)
	}
}

func TestExportTrail(t *testing.T) {
	f := newFixture(t, at(60))
	id := f.ticket(0)
	f.propose(id, 0.6, 3)
	f.review(id, domain.Rejected{Reason: "wrong policy"}, 0.6, 4)

	trail, err := f.proj.Export(id)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if trail.TicketID != id.String() || trail.State != string(domain.WorkflowProposed) {
		t.Errorf("trail header = %s %s", trail.TicketID, trail.State)
	}
	if !trail.ExportedAt.Equal(at(60)) {
		t.Errorf("exported_at = %v", trail.ExportedAt)
	}
	if len(trail.Records) != 3 || trail.Records[2].RejectionReason != "wrong policy" {
		t.Errorf("records = %+v", trail.Records)
	}

	var unknown *lifecycle.UnknownTicketError
	if _, err := f.proj.Export(uuid.New()); !errors.As(err, &unknown) {
		t.Errorf("unknown ticket err = %v", err)
	}
}
