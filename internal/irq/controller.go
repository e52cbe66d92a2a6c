package irq

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/autopeer-io/cellink/pkg/log"
)

type vector struct {
	priority Priority
	handler  Handler
	enabled  bool
}

// Controller dispatches pending lines to their handlers.
//
// Handlers run to completion one at a time on the Run goroutine; among
// several pending lines the most urgent one is serviced first. A line that
// is pending but has no enabled handler stays pending until one is
// installed or enabled.
type Controller struct {
	mu      sync.RWMutex
	vectors [maxLines]*vector

	pending atomic.Uint64
	kick    chan struct{}

	serviced [maxLines]atomic.Uint64
}

func NewController() *Controller {
	return &Controller{kick: make(chan struct{}, 1)}
}

// Install binds handler to line at the given priority and enables it.
// A line is installed once for the life of the process.
func (c *Controller) Install(line Line, prio Priority, handler Handler) error {
	if line >= maxLines {
		return fmt.Errorf("%w: %d", ErrLineOutOfRange, line)
	}
	if prio > P7 {
		return fmt.Errorf("%w: %d", ErrPriority, prio)
	}
	if handler == nil {
		return ErrNilHandler
	}

	c.mu.Lock()
	if c.vectors[line] != nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrLineInstalled, line)
	}
	c.vectors[line] = &vector{priority: prio, handler: handler, enabled: true}
	c.mu.Unlock()

	log.Debug("Interrupt line installed", "line", line.String(), "priority", prio.String())

	// Anything asserted before the handler existed is serviced now.
	if c.pending.Load()&bit(line) != 0 {
		c.wake()
	}
	return nil
}

// Enable re-enables an installed line.
func (c *Controller) Enable(line Line) {
	c.setEnabled(line, true)
	c.wake()
}

// Disable masks an installed line. Pends are kept until it is re-enabled.
func (c *Controller) Disable(line Line) {
	c.setEnabled(line, false)
}

func (c *Controller) setEnabled(line Line, on bool) {
	if line >= maxLines {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if v := c.vectors[line]; v != nil {
		v.enabled = on
	}
}

// Enabled reports whether line has an installed, enabled handler.
func (c *Controller) Enabled(line Line) bool {
	if line >= maxLines {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	v := c.vectors[line]
	return v != nil && v.enabled
}

// Pend asserts line. It is O(1) and safe to call from any goroutine.
func (c *Controller) Pend(line Line) {
	if line >= maxLines {
		return
	}
	c.pending.Or(bit(line))
	c.wake()
}

// Serviced reports how many times the handler of line has run.
func (c *Controller) Serviced(line Line) uint64 {
	if line >= maxLines {
		return 0
	}
	return c.serviced[line].Load()
}

// Run is interrupt context. It returns when ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	for {
		c.drain()
		select {
		case <-ctx.Done():
			return nil
		case <-c.kick:
		}
	}
}

func (c *Controller) drain() {
	for {
		line, h, ok := c.next()
		if !ok {
			return
		}
		h()
		c.serviced[line].Add(1)
	}
}

// next claims the most urgent pending line that can be serviced.
func (c *Controller) next() (Line, Handler, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	pending := c.pending.Load()
	var (
		best    *vector
		bestIdx Line
	)
	for i := Line(0); i < maxLines; i++ {
		if pending&bit(i) == 0 {
			continue
		}
		v := c.vectors[i]
		if v == nil || !v.enabled {
			continue
		}
		if best == nil || v.priority < best.priority {
			best, bestIdx = v, i
		}
	}
	if best == nil {
		return 0, nil, false
	}
	c.pending.And(^bit(bestIdx))
	return bestIdx, best.handler, true
}

func (c *Controller) wake() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

func bit(l Line) uint64 { return 1 << uint(l) }
