package idhash

import (
	"testing"
	"time"

	"token-graph-lab/internal/domain"
)

func TestComputeTransferID(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	base := domain.Transfer{Timestamp: ts, TxID: "0.0.5-1714564800-000000001", Sender: "0.0.1", Receiver: "0.0.2", Amount: 10}

	tests := []struct {
		name   string
		modify func(*domain.Transfer)
	}{
		{"timestamp", func(tr *domain.Transfer) { tr.Timestamp = ts.Add(time.Nanosecond) }},
		{"tx id", func(tr *domain.Transfer) { tr.TxID = "other" }},
		{"sender", func(tr *domain.Transfer) { tr.Sender = "0.0.3" }},
		{"receiver", func(tr *domain.Transfer) { tr.Receiver = "0.0.3" }},
		{"amount", func(tr *domain.Transfer) { tr.Amount = 10.5 }},
	}

	want := ComputeTransferID("0.0.9", base, 0)
	if len(want) != 64 {
		t.Fatalf("ComputeTransferID() length = %d, want 64", len(want))
	}
	if got := ComputeTransferID("0.0.9", base, 0); got != want {
		t.Errorf("ComputeTransferID() not deterministic: %s != %s", got, want)
	}
	if got := ComputeTransferID("0.0.8", base, 0); got == want {
		t.Error("Different token should produce different hash")
	}
	if got := ComputeTransferID("0.0.9", base, 1); got == want {
		t.Error("Different occurrence should produce different hash")
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := base
			tt.modify(&tr)
			if got := ComputeTransferID("0.0.9", tr, 0); got == want {
				t.Errorf("Changing %s should change the hash", tt.name)
			}
		})
	}
}

func TestTransferIDs_NumbersRepeats(t *testing.T) {
	tr := domain.Transfer{Timestamp: time.Unix(1714564800, 0), Sender: "0.0.1", Receiver: "0.0.2", Amount: 1}
	other := tr
	other.Amount = 2

	ids := TransferIDs("0.0.9", []domain.Transfer{tr, other, tr})
	if ids[0] == ids[2] {
		t.Error("Repeated transfers should get distinct ids")
	}
	if ids[0] != ComputeTransferID("0.0.9", tr, 0) || ids[2] != ComputeTransferID("0.0.9", tr, 1) {
		t.Errorf("Unexpected ids: %v", ids)
	}

	again := TransferIDs("0.0.9", []domain.Transfer{tr, other, tr})
	for i := range ids {
		if ids[i] != again[i] {
			t.Errorf("id %d not stable across calls", i)
		}
	}
}
