package stream

import (
	"token-graph-lab/internal/interaction"
	"token-graph-lab/internal/session"
)

// Event types sent by the render adapter.
const (
	EventDragStart    = "dragStart"
	EventDragMove     = "dragMove"
	EventDragEnd      = "dragEnd"
	EventPointerDown  = "pointerDown"
	EventWheel        = "wheel"
	EventHover        = "hover"
	EventToggleWallet = "toggleWallet"
	EventSetMonths    = "setMonths"
	EventHideIsolated = "hideIsolated"
	EventResize       = "resize"
	EventReheat       = "reheat"
)

// Message types sent to the render adapter.
const (
	MessageFrame = "frame"
	MessageError = "error"
)

// Event is one input from the render adapter. Coordinates are screen space.
type Event struct {
	Type   string  `json:"type"`
	ID     string  `json:"id,omitempty"`
	X      float64 `json:"x,omitempty"`
	Y      float64 `json:"y,omitempty"`
	Delta  float64 `json:"delta,omitempty"`
	Months int     `json:"months,omitempty"`
	Value  bool    `json:"value,omitempty"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
}

// Frame is one render update. When the adapter reported its viewport size,
// Nodes holds only the nodes inside it.
type Frame struct {
	Type       string                `json:"type"`
	SessionID  string                `json:"sessionId"`
	Seq        int                   `json:"seq"`
	State      string                `json:"state,omitempty"`
	Alpha      float64               `json:"alpha,omitempty"`
	MonthsBack int                   `json:"monthsBack"`
	Transform  interaction.Transform `json:"transform"`
	Nodes      []session.RenderNode  `json:"nodes,omitempty"`
	Links      []session.RenderLink  `json:"links,omitempty"`
	Hovered    *session.RenderNode   `json:"hovered,omitempty"`
	Error      string                `json:"error,omitempty"`
	Rebuilt    bool                  `json:"rebuilt,omitempty"`
}
