package records

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"
)

func TestParse_DelimitedText(t *testing.T) {
	holders := "account,balance,isTreasury\n" +
		"0.0.1,1000,true\n" +
		"0.0.2,250.5,false\n" +
		"0.0.3,oops\n"
	transfers := "timestamp,txId,sender,amount,receiver\n" +
		"2024-03-01T10:00:00Z,tx-1,0.0.1,100,0.0.2\n" +
		"\n" +
		"  ,  ,  ,  ,  \n" +
		"1709287200.123456789,tx-2,0.0.2,7.5,0.0.3\n"

	accounts, txs, err := Parse(FromText(holders), FromText(transfers))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(accounts) != 3 {
		t.Fatalf("Expected 3 accounts, got %d", len(accounts))
	}
	if !accounts[0].IsTreasury || accounts[1].IsTreasury {
		t.Errorf("Treasury flags wrong: %+v", accounts[:2])
	}
	if accounts[1].Balance != 250.5 {
		t.Errorf("Expected balance 250.5, got %v", accounts[1].Balance)
	}
	if accounts[2].Balance != 0 {
		t.Errorf("Non-numeric balance should be 0, got %v", accounts[2].Balance)
	}

	if len(txs) != 2 {
		t.Fatalf("Expected 2 transfers (blank rows skipped), got %d", len(txs))
	}
	if txs[0].TxID != "tx-1" || txs[0].Sender != "0.0.1" || txs[0].Receiver != "0.0.2" || txs[0].Amount != 100 {
		t.Errorf("Unexpected first transfer: %+v", txs[0])
	}
	want := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	if !txs[0].Timestamp.Equal(want) {
		t.Errorf("Expected timestamp %v, got %v", want, txs[0].Timestamp)
	}
	if txs[1].Timestamp.Nanosecond() != 123456789 {
		t.Errorf("Expected consensus nanos preserved, got %d", txs[1].Timestamp.Nanosecond())
	}
}

func TestParse_ColumnsByName(t *testing.T) {
	holders := "Balance, Account\n500,0.0.9\n"
	accounts, err := ParseHolders(FromText(holders))
	if err != nil {
		t.Fatalf("ParseHolders failed: %v", err)
	}
	if len(accounts) != 1 || accounts[0].ID != "0.0.9" || accounts[0].Balance != 500 {
		t.Errorf("Columns not located by header: %+v", accounts)
	}

	transfers := "sender,receiver,amount,timestamp\nA,B,3,2024-01-02\n"
	txs, err := ParseTransfers(FromText(transfers))
	if err != nil {
		t.Fatalf("ParseTransfers failed: %v", err)
	}
	if len(txs) != 1 || txs[0].Sender != "A" || txs[0].TxID != "" {
		t.Errorf("Unexpected transfers: %+v", txs)
	}
}

func TestParse_MissingColumn(t *testing.T) {
	tests := []struct {
		name      string
		holders   string
		transfers string
		field     string
	}{
		{name: "no balance", holders: "account\n0.0.1\n", transfers: "", field: "balance"},
		{name: "no account", holders: "wallet,balance\nx,1\n", transfers: "", field: "account"},
		{name: "no receiver", holders: "", transfers: "timestamp,sender,amount\n2024-01-01,A,1\n", field: "receiver"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Parse(FromText(tt.holders), FromText(tt.transfers))
			var malformed *MalformedInputError
			if !errors.As(err, &malformed) {
				t.Fatalf("Expected MalformedInputError, got %v", err)
			}
			if malformed.Field != tt.field {
				t.Errorf("Expected field %q, got %q", tt.field, malformed.Field)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("Error message should name the field: %v", err)
			}
		})
	}
}

func TestParse_EmptyText(t *testing.T) {
	accounts, txs, err := Parse(FromText(""), FromText("   \n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(accounts) != 0 || len(txs) != 0 {
		t.Errorf("Expected no records, got %d accounts, %d transfers", len(accounts), len(txs))
	}
}

func TestParse_HeaderOnly(t *testing.T) {
	accounts, err := ParseHolders(FromText("account,balance\n"))
	if err != nil {
		t.Fatalf("ParseHolders failed: %v", err)
	}
	if len(accounts) != 0 {
		t.Errorf("Expected no accounts, got %d", len(accounts))
	}
}

func TestParse_Structured(t *testing.T) {
	holders := []HolderRecord{
		{Account: " 0.0.1 ", Balance: 10, IsTreasury: true},
		{Account: "", Balance: 5},
		{Account: "0.0.2", Balance: 3},
	}
	transfers := []TransferRecord{
		{Timestamp: "2024-05-01 12:00:00", Sender: "0.0.1", Receiver: "0.0.2", Amount: 4},
	}

	accounts, txs, err := Parse(FromHolders(holders), FromTransfers(transfers))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(accounts) != 2 || accounts[0].ID != "0.0.1" {
		t.Errorf("Unexpected accounts: %+v", accounts)
	}
	if len(txs) != 1 || txs[0].Timestamp.IsZero() {
		t.Errorf("Unexpected transfers: %+v", txs)
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"12.5", 12.5},
		{" 7 ", 7},
		{"1e3", 1000},
		{"abc", 0},
		{"", 0},
		{"-4", 0},
		{"NaN", 0},
		{"Inf", 0},
	}
	for _, tt := range tests {
		if got := parseAmount(tt.in); got != tt.want {
			t.Errorf("parseAmount(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-01-15T08:30:00Z", time.Date(2024, 1, 15, 8, 30, 0, 0, time.UTC)},
		{"2024-01-15T08:30:00+02:00", time.Date(2024, 1, 15, 6, 30, 0, 0, time.UTC)},
		{"2024-01-15", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)},
		{"1705307400", time.Date(2024, 1, 15, 8, 30, 0, 0, time.UTC)},
		{"1705307400000", time.Date(2024, 1, 15, 8, 30, 0, 0, time.UTC)},
		{"1705307400.5", time.Date(2024, 1, 15, 8, 30, 0, 500000000, time.UTC)},
		{"yesterday", time.Time{}},
		{"", time.Time{}},
	}
	for _, tt := range tests {
		if got := parseTimestamp(tt.in); !got.Equal(tt.want) {
			t.Errorf("parseTimestamp(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNumber_Lenient(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
	}{
		{`42`, 42},
		{`"42.25"`, 42.25},
		{`"n/a"`, 0},
		{`null`, 0},
		{`true`, 0},
	}
	for _, tt := range tests {
		var n Number
		if err := n.UnmarshalJSON([]byte(tt.raw)); err != nil {
			t.Fatalf("UnmarshalJSON(%s) failed: %v", tt.raw, err)
		}
		if math.Abs(float64(n)-tt.want) > 1e-12 {
			t.Errorf("UnmarshalJSON(%s) = %v, want %v", tt.raw, n, tt.want)
		}
	}
}
