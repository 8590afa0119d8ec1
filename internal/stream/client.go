package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"token-graph-lab/internal/domain"
	"token-graph-lab/internal/filter"
	"token-graph-lab/internal/interaction"
	"token-graph-lab/internal/layout"
	"token-graph-lab/internal/observability"
	"token-graph-lab/internal/session"
)

var (
	errMalformedEvent = errors.New("malformed event")
	errMissingID      = errors.New("event requires an id")
)

// client is one connection. sess, seq, width, height and dirty belong to
// the run goroutine.
type client struct {
	hub    *Hub
	id     string
	token  string
	conn   *websocket.Conn
	logger *zap.Logger

	events chan Event
	ops    chan func()
	done   chan struct{}
	once   sync.Once

	sess          *session.Session
	seq           int
	width, height float64
	dirty         bool
}

func newClient(h *Hub, id, token string, conn *websocket.Conn) *client {
	return &client{
		hub:    h,
		id:     id,
		token:  token,
		conn:   conn,
		logger: h.logger.With(zap.String("session", id), zap.String("token", token)),
		events: make(chan Event, h.cfg.EventBuffer),
		ops:    make(chan func()),
		done:   make(chan struct{}),
	}
}

func (c *client) start(g *domain.Graph, opts session.Options) {
	opts.Scheduler = &layout.TickerScheduler{
		Interval: c.hub.cfg.FrameInterval,
		Dispatch: c.dispatch,
	}
	opts.OnFrame = c.onFrame
	go c.run(g, opts)
	go c.readPump()
}

// dispatch hands a layout frame to the run goroutine.
func (c *client) dispatch(fn func()) {
	select {
	case c.ops <- fn:
	case <-c.done:
	}
}

func (c *client) stop() {
	c.once.Do(func() { close(c.done) })
}

func (c *client) onFrame() {
	c.dirty = true
	observability.RecordLayoutTick(c.sess.Simulation().State() == layout.StateSettled)
}

func (c *client) run(g *domain.Graph, opts session.Options) {
	observability.SessionOpened()
	c.sess = session.New(g, opts)
	c.logger.Info("session opened",
		zap.Int("nodes", len(c.sess.Visible().Nodes)),
		zap.Int("links", len(c.sess.Visible().Links)),
	)
	defer c.cleanup()

	ping := time.NewTicker(c.hub.cfg.PingInterval)
	defer ping.Stop()

	c.dirty = true
	for {
		if c.dirty {
			if err := c.flush(); err != nil {
				c.logger.Debug("write frame", zap.Error(err))
				return
			}
		}

		select {
		case <-c.done:
			return
		case fn := <-c.ops:
			fn()
		case ev := <-c.events:
			if err := c.handle(ev); err != nil {
				if werr := c.writeError(err); werr != nil {
					return
				}
				continue
			}
			c.dirty = true
		case <-ping.C:
			deadline := time.Now().Add(c.hub.cfg.WriteTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func (c *client) cleanup() {
	c.stop()
	c.sess.Close()
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.hub.cfg.WriteTimeout))
	c.conn.Close()
	c.hub.unregister(c)
	observability.SessionClosed()
	c.logger.Info("session closed", zap.Int("frames", c.seq))
}

func (c *client) readPump() {
	defer c.stop()

	c.conn.SetReadLimit(c.hub.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.ReadTimeout))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("read event", zap.Error(err))
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.ReadTimeout))

		var ev Event
		if err := json.Unmarshal(message, &ev); err != nil {
			ev = Event{}
		}
		select {
		case c.events <- ev:
		case <-c.done:
			return
		}
	}
}

// handle applies one event to the session.
func (c *client) handle(ev Event) error {
	ctrl := c.sess.Controller()
	p := interaction.Point{X: ev.X, Y: ev.Y}

	switch ev.Type {
	case EventDragStart:
		if ev.ID == "" {
			return errMissingID
		}
		ctrl.DragStart(ev.ID, p)
	case EventDragMove:
		ctrl.DragMove(p)
	case EventDragEnd:
		ctrl.DragEnd()
	case EventPointerDown:
		ctrl.PointerDown(p)
	case EventWheel:
		ctrl.Wheel(ev.Delta, p)
	case EventHover:
		ctrl.Hover(ev.ID)
	case EventToggleWallet:
		if ev.ID == "" {
			return errMissingID
		}
		c.sess.ToggleWallet(ev.ID)
	case EventSetMonths:
		if err := filter.ValidateMonths(ev.Months); err != nil {
			return err
		}
		c.sess.SetMonthsBack(ev.Months)
	case EventHideIsolated:
		c.sess.SetHideIsolated(ev.Value)
	case EventResize:
		if ev.Width < 0 || ev.Height < 0 {
			return fmt.Errorf("invalid viewport %gx%g", ev.Width, ev.Height)
		}
		c.width, c.height = ev.Width, ev.Height
	case EventReheat:
		c.sess.Simulation().Reheat()
	case "":
		return errMalformedEvent
	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
	return nil
}

// flush writes the current frame. A layout left unusable by an error is
// rebuilt from the retained graph first.
func (c *client) flush() error {
	c.dirty = false
	f := Frame{Type: MessageFrame}

	ctrl := c.sess.Controller()
	if err := ctrl.Err(); err != nil {
		f.Error = err.Error()
		if ctrl.NeedsRebuild() {
			observability.RecordLayoutError("rebuild")
			c.logger.Warn("rebuilding layout", zap.Error(err))
			c.sess.Rebuild(c.sess.Graph())
			f.Rebuilt = true
		} else {
			observability.RecordLayoutError("recoverable")
			ctrl.Reset()
		}
	}

	c.fill(&f)
	return c.write(f)
}

func (c *client) fill(f *Frame) {
	sim := c.sess.Simulation()
	f.SessionID = c.id
	f.Seq = c.seq
	f.State = sim.State().String()
	f.Alpha = sim.Alpha()
	f.MonthsBack = c.sess.MonthsBack()
	f.Transform = c.sess.ViewportTransform()
	if c.width > 0 && c.height > 0 {
		f.Nodes = c.sess.CulledNodes(c.width, c.height)
	} else {
		f.Nodes = c.sess.VisibleNodes()
	}
	f.Links = c.sess.VisibleLinks()
	if n, ok := c.sess.HoveredNode(); ok {
		f.Hovered = &n
	}
}

func (c *client) writeError(err error) error {
	return c.write(Frame{Type: MessageError, SessionID: c.id, Seq: c.seq, Error: err.Error()})
}

func (c *client) write(f Frame) error {
	c.seq++
	c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout))
	return c.conn.WriteJSON(f)
}
