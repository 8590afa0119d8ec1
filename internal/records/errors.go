package records

import "fmt"

// MalformedInputError reports structurally invalid raw records, such as a
// header row without a required column.
type MalformedInputError struct {
	Table string // "holders" or "transfers"
	Field string // name of the missing field
	Row   int    // record index for structured input, -1 for the header
}

func (e *MalformedInputError) Error() string {
	if e.Row < 0 {
		return fmt.Sprintf("malformed %s input: missing required column %q", e.Table, e.Field)
	}
	return fmt.Sprintf("malformed %s input: record %d missing required field %q", e.Table, e.Row, e.Field)
}
