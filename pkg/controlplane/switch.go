// Package controlplane drives P4Runtime switches: a per-device control
// state machine (Switch) and a supervisor running many of them
// (Controller).
//
// A Switch connects, negotiates primary/backup arbitration, reconciles
// the forwarding pipeline, and then runs the user's ready handler under
// a structured task group. Failures tear the epoch down and reconnect
// with exponential backoff; programming errors can instead propagate
// with FailFast.
package controlplane

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/byllyfish/finsy/internal/logger"
	"github.com/byllyfish/finsy/pkg/events"
	"github.com/byllyfish/finsy/pkg/gnmiclient"
	"github.com/byllyfish/finsy/pkg/p4/client"
	"github.com/byllyfish/finsy/pkg/p4/schema"
)

// State names the switch channel state.
type State int

const (
	StateInit State = iota
	StateConnecting
	StateHandshaking
	StatePipelineCheck
	StateReady
	StateDegraded
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateConnecting:
		return "CONNECTING"
	case StateHandshaking:
		return "HANDSHAKING"
	case StatePipelineCheck:
		return "PIPELINE_CHECK"
	case StateReady:
		return "READY"
	case StateDegraded:
		return "DEGRADED"
	case StateClosed:
		return "CLOSED"
	}
	return "UNKNOWN"
}

// Switch lifecycle events, emitted on the switch's emitter. Listener
// arguments are (*Switch) unless noted.
const (
	EventChannelUp     = "CHANNEL_UP"
	EventChannelReady  = "CHANNEL_READY"
	EventChannelDown   = "CHANNEL_DOWN"
	EventBecamePrimary = "BECAME_PRIMARY"
	EventBecameBackup  = "BECAME_BACKUP"
	EventPipelineReady = "PIPELINE_READY"
	EventStreamError   = "STREAM_ERROR" // (*Switch, error or dropped count)
	EventPortUp        = "PORT_UP"      // (*Switch, port name)
	EventPortDown      = "PORT_DOWN"    // (*Switch, port name)
)

// Switch is the per-device control state machine.
type Switch struct {
	name    string
	address Address
	opts    SwitchOptions
	emitter *events.Emitter
	sessionID string // log correlation id

	mu         sync.Mutex
	state      State
	isPrimary  bool
	electionID Uint128
	schema     *schema.Schema
	cookie     uint64
	stash      map[string]any

	cl     *client.Client
	stream *client.Stream
	gnmi   *gnmiclient.Client

	// READY epoch task group; replaced on each READY transition.
	tasks     *errgroup.Group
	tasksCtx  context.Context
	tasksStop context.CancelFunc

	controller *Controller

	// onReadyReached informs the supervisor that this epoch reached
	// READY, resetting its backoff.
	onReadyReached func()

	// desired pipeline, loaded lazily from the options
	desired     *schema.Schema
	desiredBlob []byte
	desiredOnce sync.Once
	desiredErr  error
}

// NewSwitch creates a Switch. The options are validated and copied;
// the switch does not connect until Run or a Controller drives it.
func NewSwitch(name, address string, opts SwitchOptions) (*Switch, error) {
	addr, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	if err := opts.check(); err != nil {
		return nil, err
	}
	stash := make(map[string]any, len(opts.Stash))
	for k, v := range opts.Stash {
		stash[k] = v
	}
	return &Switch{
		name:       name,
		address:    addr,
		opts:       opts,
		emitter:    events.NewEmitter(),
		sessionID:  uuid.NewString(),
		electionID: opts.InitialElectionID,
		stash:      stash,
	}, nil
}

// Name returns the switch name, unique within its Controller.
func (sw *Switch) Name() string { return sw.name }

// Address returns the switch address.
func (sw *Switch) Address() Address { return sw.address }

// Options returns a copy of the switch options.
func (sw *Switch) Options() SwitchOptions { return sw.opts }

// DeviceID returns the P4Runtime device id.
func (sw *Switch) DeviceID() uint64 { return sw.opts.DeviceID }

// State returns the current channel state.
func (sw *Switch) State() State {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.state
}

// IsPrimary reports whether this client holds the primary role.
func (sw *Switch) IsPrimary() bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.isPrimary
}

// ElectionID returns the current election id.
func (sw *Switch) ElectionID() Uint128 {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.electionID
}

// Schema returns the attached P4Info schema, nil until discovered or
// installed.
func (sw *Switch) Schema() *schema.Schema {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.schema
}

// PipelineCookie returns the cookie of the attached pipeline.
func (sw *Switch) PipelineCookie() uint64 {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.cookie
}

// Events returns the switch's event emitter.
func (sw *Switch) Events() *events.Emitter { return sw.emitter }

// GNMI returns the gNMI sub-client sharing the switch's channel, nil
// before the first connection.
func (sw *Switch) GNMI() *gnmiclient.Client {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.gnmi
}

// Controller returns the owning controller, nil for a standalone
// switch.
func (sw *Switch) Controller() *Controller {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.controller
}

// Stash returns the user stash. It is written only from the ready
// handler's task group; external readers must tolerate staleness.
func (sw *Switch) Stash() map[string]any { return sw.stash }

// CreateTask spawns a managed task scoped to the current READY epoch;
// it is cancelled when the switch leaves READY. Outside READY the task
// is rejected.
func (sw *Switch) CreateTask(name string, fn func(ctx context.Context) error) bool {
	sw.mu.Lock()
	g, ctx := sw.tasks, sw.tasksCtx
	ready := sw.state == StateReady
	sw.mu.Unlock()
	if !ready || g == nil {
		logger.Warn("task rejected outside READY", logger.Switch(sw.name), "task", name)
		return false
	}
	g.Go(func() error {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("task panicked", logger.Switch(sw.name), "task", name, "panic", r)
			}
		}()
		err := fn(ctx)
		if err != nil && !client.IsCancelled(err) && ctx.Err() == nil {
			logger.Error("task failed", logger.Switch(sw.name), "task", name, logger.Err(err))
			return &SwitchError{Switch: sw.name, Err: err}
		}
		return nil
	})
	return true
}

func (sw *Switch) setState(s State) {
	sw.mu.Lock()
	prev := sw.state
	sw.state = s
	sw.mu.Unlock()
	if prev != s {
		logger.Debug("state change", logger.Switch(sw.name), "from", prev.String(), "to", s.String())
	}
}

func (sw *Switch) setPrimary(primary bool) (changed bool) {
	sw.mu.Lock()
	changed = sw.isPrimary != primary
	sw.isPrimary = primary
	sw.mu.Unlock()
	return changed
}
