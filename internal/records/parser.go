// Package records converts raw holder and transfer records, delivered either
// as delimited text with a header row or as structured records, into typed
// accounts and transfers.
package records

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"token-graph-lab/internal/domain"
)

// Table names used in errors.
const (
	tableHolders   = "holders"
	tableTransfers = "transfers"
)

// Column names, normalized by normalizeHeader.
const (
	colAccount   = "account"
	colBalance   = "balance"
	colTreasury  = "istreasury"
	colTimestamp = "timestamp"
	colTxID      = "txid"
	colSender    = "sender"
	colReceiver  = "receiver"
	colAmount    = "amount"
)

// HolderRecord is the structured upstream holder shape.
type HolderRecord struct {
	Account    string `json:"account"`
	Balance    Number `json:"balance"`
	IsTreasury bool   `json:"isTreasury,omitempty"`
}

// TransferRecord is the structured upstream transaction shape.
type TransferRecord struct {
	Timestamp string `json:"timestamp"`
	TxID      string `json:"txId,omitempty"`
	Sender    string `json:"sender"`
	Receiver  string `json:"receiver"`
	Amount    Number `json:"amount"`
}

// Input is one raw table in either accepted form.
type Input struct {
	Text       string
	Holders    []HolderRecord
	Transfers  []TransferRecord
	structured bool
}

// FromText wraps delimited text with a header row.
func FromText(text string) Input {
	return Input{Text: text}
}

// FromHolders wraps structured holder records.
func FromHolders(records []HolderRecord) Input {
	return Input{Holders: records, structured: true}
}

// FromTransfers wraps structured transfer records.
func FromTransfers(records []TransferRecord) Input {
	return Input{Transfers: records, structured: true}
}

// Structured reports whether the input carries records rather than text.
func (in Input) Structured() bool {
	return in.structured
}

// Parse converts raw holders and transfers into accounts and transfers.
// Non-numeric balances and amounts become zero and blank rows are skipped.
// A missing required column fails with *MalformedInputError.
func Parse(holders, transfers Input) ([]domain.Account, []domain.Transfer, error) {
	accounts, err := ParseHolders(holders)
	if err != nil {
		return nil, nil, err
	}
	txs, err := ParseTransfers(transfers)
	if err != nil {
		return nil, nil, err
	}
	return accounts, txs, nil
}

// ParseHolders converts one holders table.
func ParseHolders(in Input) ([]domain.Account, error) {
	if in.structured {
		accounts := make([]domain.Account, 0, len(in.Holders))
		for _, r := range in.Holders {
			id := strings.TrimSpace(r.Account)
			if id == "" {
				continue
			}
			accounts = append(accounts, domain.Account{
				ID:         id,
				Balance:    float64(r.Balance),
				IsTreasury: r.IsTreasury,
			})
		}
		return accounts, nil
	}

	rows, cols, err := readTable(in.Text, tableHolders, colAccount, colBalance)
	if err != nil {
		return nil, err
	}

	accounts := make([]domain.Account, 0, len(rows))
	for _, row := range rows {
		id := cell(row, cols, colAccount)
		if id == "" {
			continue
		}
		accounts = append(accounts, domain.Account{
			ID:         id,
			Balance:    parseAmount(cell(row, cols, colBalance)),
			IsTreasury: parseFlag(cell(row, cols, colTreasury)),
		})
	}
	return accounts, nil
}

// ParseTransfers converts one transfers table.
func ParseTransfers(in Input) ([]domain.Transfer, error) {
	if in.structured {
		txs := make([]domain.Transfer, 0, len(in.Transfers))
		for _, r := range in.Transfers {
			txs = append(txs, domain.Transfer{
				Timestamp: parseTimestamp(r.Timestamp),
				TxID:      strings.TrimSpace(r.TxID),
				Sender:    strings.TrimSpace(r.Sender),
				Receiver:  strings.TrimSpace(r.Receiver),
				Amount:    float64(r.Amount),
			})
		}
		return txs, nil
	}

	rows, cols, err := readTable(in.Text, tableTransfers, colTimestamp, colSender, colReceiver, colAmount)
	if err != nil {
		return nil, err
	}

	txs := make([]domain.Transfer, 0, len(rows))
	for _, row := range rows {
		txs = append(txs, domain.Transfer{
			Timestamp: parseTimestamp(cell(row, cols, colTimestamp)),
			TxID:      cell(row, cols, colTxID),
			Sender:    cell(row, cols, colSender),
			Receiver:  cell(row, cols, colReceiver),
			Amount:    parseAmount(cell(row, cols, colAmount)),
		})
	}
	return txs, nil
}

// readTable reads delimited text, locates columns by header name and returns
// the non-blank data rows. Empty text yields no rows.
func readTable(text, table string, required ...string) ([][]string, map[string]int, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil, nil
	}

	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read %s header: %w", table, err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		key := normalizeHeader(name)
		if _, dup := cols[key]; !dup {
			cols[key] = i
		}
	}
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			return nil, nil, &MalformedInputError{Table: table, Field: name, Row: -1}
		}
	}

	var rows [][]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read %s row: %w", table, err)
		}
		if blank(row) {
			continue
		}
		rows = append(rows, row)
	}
	return rows, cols, nil
}

// normalizeHeader lowercases a column name and drops separators so that
// "txId", "tx_id" and "TX ID" all match.
func normalizeHeader(name string) string {
	name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
	return strings.NewReplacer("_", "", "-", "", " ", "").Replace(name)
}

func cell(row []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
