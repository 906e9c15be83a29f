package controlplane

import (
	"context"
	"fmt"
	"sync"

	"github.com/byllyfish/finsy/internal/logger"
	"github.com/byllyfish/finsy/pkg/events"
)

// Controller lifecycle events.
const (
	EventControllerEnter = "CONTROLLER_ENTER" // (*Switch)
	EventControllerLeave = "CONTROLLER_LEAVE" // (*Switch)
)

type supervised struct {
	sw      *Switch
	stop    context.CancelFunc
	stopped chan struct{}
}

// Controller supervises a named set of Switches, each driven by an
// independent supervisor: one switch failing never cancels its
// siblings.
type Controller struct {
	emitter *events.Emitter

	mu       sync.Mutex
	switches map[string]*supervised
	order    []string
	running  bool
	runCtx   context.Context
	wg       sync.WaitGroup
}

// NewController creates an empty controller.
func NewController(switches ...*Switch) (*Controller, error) {
	c := &Controller{
		emitter:  events.NewEmitter(),
		switches: make(map[string]*supervised),
	}
	for _, sw := range switches {
		if err := c.Add(sw); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Events returns the controller's event emitter.
func (c *Controller) Events() *events.Emitter { return c.emitter }

// Get returns the named switch.
func (c *Controller) Get(name string) (*Switch, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.switches[name]
	if !ok {
		return nil, false
	}
	return s.sw, true
}

// Switches returns the switches in insertion order.
func (c *Controller) Switches() []*Switch {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Switch, 0, len(c.order))
	for _, name := range c.order {
		if s, ok := c.switches[name]; ok {
			out = append(out, s.sw)
		}
	}
	return out
}

// Len returns the number of switches.
func (c *Controller) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.switches)
}

// Add registers a switch. Names must be unique. When the controller is
// already running, the switch starts immediately.
func (c *Controller) Add(sw *Switch) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.switches[sw.name]; ok {
		return fmt.Errorf("duplicate switch name %q", sw.name)
	}
	sw.mu.Lock()
	sw.controller = c
	sw.mu.Unlock()
	s := &supervised{sw: sw, stopped: make(chan struct{})}
	c.switches[sw.name] = s
	c.order = append(c.order, sw.name)
	if c.running {
		c.startLocked(s)
	}
	return nil
}

// Remove stops the named switch and unregisters it. The returned
// channel closes when the switch has fully stopped.
func (c *Controller) Remove(name string) (<-chan struct{}, error) {
	c.mu.Lock()
	s, ok := c.switches[name]
	if !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("no switch named %q", name)
	}
	delete(c.switches, name)
	for i, n := range c.order {
		if n == name {
			c.order = append(c.order[:i:i], c.order[i+1:]...)
			break
		}
	}
	running := c.running
	c.mu.Unlock()

	if !running || s.stop == nil {
		close(s.stopped)
		return s.stopped, nil
	}
	s.stop()
	return s.stopped, nil
}

// startLocked launches one switch supervisor. Callers hold c.mu.
func (c *Controller) startLocked(s *supervised) {
	ctx, cancel := context.WithCancel(c.runCtx)
	s.stop = cancel
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(s.stopped)
		c.emitter.Emit(EventControllerEnter, s.sw)
		err := s.sw.runSupervised(ctx)
		s.sw.setState(StateClosed)
		if err != nil && ctx.Err() == nil {
			// Only FailFast programming errors escape the supervisor.
			logger.Error("switch supervisor ended", logger.Switch(s.sw.name), logger.Err(err))
		}
		c.emitter.Emit(EventControllerLeave, s.sw)
	}()
}

// Run starts all switches concurrently and blocks until the context is
// cancelled and every supervisor has stopped. The controller is
// reachable from ready handlers via Current.
func (c *Controller) Run(ctx context.Context) error {
	ctx = withController(ctx, c)

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("controller already running")
	}
	c.running = true
	c.runCtx = ctx
	for _, name := range c.order {
		c.startLocked(c.switches[name])
	}
	c.mu.Unlock()

	// Block until cancelled, or until every supervisor has ended (all
	// switches CLOSED, e.g. via Remove or FailFast).
	allDone := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(allDone)
	}()
	select {
	case <-ctx.Done():
		<-allDone
	case <-allDone:
	}

	c.mu.Lock()
	c.running = false
	c.runCtx = nil
	c.mu.Unlock()
	return ctx.Err()
}

type controllerKey struct{}

func withController(ctx context.Context, c *Controller) context.Context {
	return context.WithValue(ctx, controllerKey{}, c)
}

// Current returns the Controller owning the task running under ctx,
// nil when the task is not controller-managed.
func Current(ctx context.Context) *Controller {
	c, _ := ctx.Value(controllerKey{}).(*Controller)
	return c
}
