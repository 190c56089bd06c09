package observability

import (
	"testing"
	"time"
)

func TestMetricsSnapshotIsACopy(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("/tickets", "POST", 201, 15*time.Millisecond)
	m.RecordRequest("/tickets", "POST", 201, 5*time.Millisecond)
	m.RecordError("/feedback", "POST", "APPEND_REJECTED")
	m.RecordAppend("human_feedback", "confidence_match")

	snap := m.Snapshot()
	if snap.Requests["/tickets|POST|201"] != 2 {
		t.Errorf("requests = %v", snap.Requests)
	}
	if snap.RequestMillis["/tickets|POST|201"] != 20 {
		t.Errorf("request millis = %v", snap.RequestMillis)
	}
	if snap.Errors["/feedback|POST|APPEND_REJECTED"] != 1 {
		t.Errorf("errors = %v", snap.Errors)
	}
	if snap.Appends["human_feedback|confidence_match"] != 1 {
		t.Errorf("appends = %v", snap.Appends)
	}

	snap.Appends["human_feedback|confidence_match"] = 99
	if m.Snapshot().Appends["human_feedback|confidence_match"] != 1 {
		t.Error("snapshot shares maps with metrics")
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordRequest("/", "GET", 200, time.Millisecond)
	m.RecordAppend("ticket", "accepted")
	if snap := m.Snapshot(); snap.Appends != nil {
		t.Errorf("nil metrics snapshot = %+v", snap)
	}
}
