package records

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Payload is a decoded visualize response: one holders table and one
// transfers table, each in either accepted form.
type Payload struct {
	Holders   Input
	Transfers Input
}

// DecodePayload decodes {"holders": ..., "transactions": ...} where each
// field is delimited text or an array of records. The {"nodes", "links"}
// naming used by older backends is accepted as well.
func DecodePayload(data []byte) (Payload, error) {
	var raw struct {
		Holders      json.RawMessage `json:"holders"`
		Transactions json.RawMessage `json:"transactions"`
		Nodes        json.RawMessage `json:"nodes"`
		Links        json.RawMessage `json:"links"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Payload{}, fmt.Errorf("decode payload: %w", err)
	}

	holders := firstPresent(raw.Holders, raw.Nodes)
	if holders == nil {
		return Payload{}, &MalformedInputError{Table: tableHolders, Field: "holders", Row: -1}
	}
	transfers := firstPresent(raw.Transactions, raw.Links)
	if transfers == nil {
		return Payload{}, &MalformedInputError{Table: tableTransfers, Field: "transactions", Row: -1}
	}

	var p Payload
	if text, ok := asText(holders); ok {
		p.Holders = FromText(text)
	} else {
		recs, err := DecodeHolders(holders)
		if err != nil {
			return Payload{}, err
		}
		p.Holders = FromHolders(recs)
	}

	if text, ok := asText(transfers); ok {
		p.Transfers = FromText(text)
	} else {
		recs, err := DecodeTransfers(transfers)
		if err != nil {
			return Payload{}, err
		}
		p.Transfers = FromTransfers(recs)
	}
	return p, nil
}

// DecodeHolders decodes a JSON array of holder objects. The account may be
// given as "account" or "id"; a record without it or without "balance" is
// malformed.
func DecodeHolders(data []byte) ([]HolderRecord, error) {
	var objs []map[string]json.RawMessage
	if err := json.Unmarshal(data, &objs); err != nil {
		return nil, fmt.Errorf("decode holders: %w", err)
	}

	out := make([]HolderRecord, 0, len(objs))
	for i, obj := range objs {
		id, ok := lookup(obj, "account", "id")
		if !ok {
			return nil, &MalformedInputError{Table: tableHolders, Field: colAccount, Row: i}
		}
		bal, ok := lookup(obj, "balance")
		if !ok {
			return nil, &MalformedInputError{Table: tableHolders, Field: colBalance, Row: i}
		}

		rec := HolderRecord{Account: rawString(id)}
		_ = rec.Balance.UnmarshalJSON(bal)
		if flag, ok := lookup(obj, "isTreasury", "is_treasury"); ok {
			rec.IsTreasury = rawBool(flag)
		}
		out = append(out, rec)
	}
	return out, nil
}

// DecodeTransfers decodes a JSON array of transaction objects. Sender and
// receiver may be given as "source" and "target".
func DecodeTransfers(data []byte) ([]TransferRecord, error) {
	var objs []map[string]json.RawMessage
	if err := json.Unmarshal(data, &objs); err != nil {
		return nil, fmt.Errorf("decode transfers: %w", err)
	}

	out := make([]TransferRecord, 0, len(objs))
	for i, obj := range objs {
		ts, ok := lookup(obj, "timestamp")
		if !ok {
			return nil, &MalformedInputError{Table: tableTransfers, Field: colTimestamp, Row: i}
		}
		sender, ok := lookup(obj, "sender", "source")
		if !ok {
			return nil, &MalformedInputError{Table: tableTransfers, Field: colSender, Row: i}
		}
		receiver, ok := lookup(obj, "receiver", "target")
		if !ok {
			return nil, &MalformedInputError{Table: tableTransfers, Field: colReceiver, Row: i}
		}
		amount, ok := lookup(obj, "amount")
		if !ok {
			return nil, &MalformedInputError{Table: tableTransfers, Field: colAmount, Row: i}
		}

		rec := TransferRecord{
			Timestamp: rawString(ts),
			Sender:    rawString(sender),
			Receiver:  rawString(receiver),
		}
		_ = rec.Amount.UnmarshalJSON(amount)
		if txID, ok := lookup(obj, "txId", "transactionId", "tx_id"); ok {
			rec.TxID = rawString(txID)
		}
		out = append(out, rec)
	}
	return out, nil
}

func firstPresent(values ...json.RawMessage) json.RawMessage {
	for _, v := range values {
		if len(bytes.TrimSpace(v)) > 0 && string(bytes.TrimSpace(v)) != "null" {
			return v
		}
	}
	return nil
}

func asText(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func lookup(obj map[string]json.RawMessage, keys ...string) (json.RawMessage, bool) {
	for _, k := range keys {
		if v, ok := obj[k]; ok {
			return v, true
		}
	}
	return nil, false
}

// rawString returns a JSON string's value, or the literal text of any other
// scalar (numeric ids and unix timestamps), or "" for null.
func rawString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	text := strings.TrimSpace(string(raw))
	if text == "null" {
		return ""
	}
	return text
}

func rawBool(raw json.RawMessage) bool {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	return parseFlag(rawString(raw))
}
