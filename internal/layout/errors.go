package layout

import (
	"errors"
	"fmt"
)

// ErrUnknownNode is returned when pinning an id that is not laid out.
var ErrUnknownNode = errors.New("unknown node")

// DanglingReferenceError reports a link whose endpoint is not in the node
// set handed to SetGraph.
type DanglingReferenceError struct {
	LinkIndex int
	NodeID    string
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("link %d references missing node %q", e.LinkIndex, e.NodeID)
}

// ErrFramePanic wraps a panic recovered while running a frame.
var ErrFramePanic = errors.New("layout frame panicked")
