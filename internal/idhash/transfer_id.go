package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"

	"token-graph-lab/internal/domain"
)

// ComputeTransferID computes a deterministic transfer_id using SHA256.
// Formula: SHA256(token_id|ts_unix_nano|tx_id|sender|receiver|amount|occurrence)
// occurrence numbers otherwise identical transfers of one fetch, so a
// re-fetch maps onto the same ids.
// Returns hex-encoded hash (64 characters).
func ComputeTransferID(tokenID string, t domain.Transfer, occurrence int) string {
	var ts int64
	if !t.Timestamp.IsZero() {
		ts = t.Timestamp.UnixNano()
	}

	data := fmt.Sprintf("%s|%d|%s|%s|%s|%s|%d",
		tokenID,
		ts,
		t.TxID,
		t.Sender,
		t.Receiver,
		strconv.FormatFloat(t.Amount, 'g', -1, 64),
		occurrence,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// TransferIDs returns the ids of transfers in order, numbering repeats.
func TransferIDs(tokenID string, transfers []domain.Transfer) []string {
	ids := make([]string, len(transfers))
	seen := make(map[string]int, len(transfers))
	for i, t := range transfers {
		base := ComputeTransferID(tokenID, t, 0)
		n := seen[base]
		seen[base] = n + 1
		if n == 0 {
			ids[i] = base
			continue
		}
		ids[i] = ComputeTransferID(tokenID, t, n)
	}
	return ids
}
