// Package ledgerid classifies ledger account identifiers and builds the
// identifiers of synthetic graph nodes.
//
// Hedera entity ids (shard.realm.num) are the primary form. The analysis
// backend also serves ledgers that address tokens and accounts by 32-byte
// base58 keys, so those are accepted too: an on-curve key is a wallet, an
// off-curve key is an account owned by a program (a mint, pool or vault)
// and can never sign.
package ledgerid

import (
	"regexp"
	"strconv"
	"strings"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Kind classifies an account identifier.
type Kind string

// Identifier kinds.
const (
	KindHedera         Kind = "hedera"          // shard.realm.num
	KindWallet         Kind = "wallet"          // base58 ed25519 public key
	KindProgramDerived Kind = "program_derived" // base58 32 bytes, off the ed25519 curve; program-owned
	KindAggregate      Kind = "aggregate"       // synthetic bucket node
	KindUnknown        Kind = "unknown"
)

// aggregatePrefix cannot appear in a Hedera id or in base58 text.
const aggregatePrefix = "~bucket/"

var hederaPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// Classify returns the kind of id.
func Classify(id string) Kind {
	id = strings.TrimSpace(id)
	switch {
	case id == "":
		return KindUnknown
	case IsAggregateID(id):
		return KindAggregate
	case hederaPattern.MatchString(id):
		return KindHedera
	}

	decoded, err := base58.Decode(id)
	if err != nil || len(decoded) != 32 {
		return KindUnknown
	}
	if isOnCurve(decoded) {
		return KindWallet
	}
	return KindProgramDerived
}

// ValidTokenID reports whether id is an acceptable token identifier:
// a Hedera entity id or, for base58 ledgers, a 32-byte mint key.
func ValidTokenID(id string) bool {
	switch Classify(id) {
	case KindHedera, KindWallet, KindProgramDerived:
		return true
	default:
		return false
	}
}

// AggregateID returns the node id of the aggregate bucket with the given index.
func AggregateID(bucket int) string {
	return aggregatePrefix + strconv.Itoa(bucket)
}

// IsAggregateID reports whether id was produced by AggregateID.
func IsAggregateID(id string) bool {
	return strings.HasPrefix(id, aggregatePrefix)
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
