package controlplane

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	p4v1 "github.com/p4lang/p4runtime/go/p4/v1"
	"google.golang.org/protobuf/types/known/anypb"

	"github.com/byllyfish/finsy/pkg/creds"
)

// Address is a switch gRPC endpoint: host:port with an optional
// "%zone" interface scope for link-local addresses. Immutable.
type Address struct {
	host string
	port string
	zone string
}

// ParseAddress validates and parses a host:port address.
func ParseAddress(s string) (Address, error) {
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return Address{}, fmt.Errorf("invalid switch address %q: %w", s, err)
	}
	var a Address
	if i := strings.IndexByte(host, '%'); i >= 0 {
		a.zone = host[i+1:]
		host = host[:i]
	}
	a.host = host
	a.port = port
	return a, nil
}

// Host returns the host without zone.
func (a Address) Host() string { return a.host }

// Port returns the port.
func (a Address) Port() string { return a.port }

// Zone returns the interface scope, if any.
func (a Address) Zone() string { return a.zone }

func (a Address) String() string {
	host := a.host
	if a.zone != "" {
		host += "%" + a.zone
	}
	return net.JoinHostPort(host, a.port)
}

// Uint128 is a 128-bit election id.
type Uint128 struct {
	High uint64
	Low  uint64
}

// IsZero reports the reserved "no primary" value.
func (u Uint128) IsZero() bool { return u.High == 0 && u.Low == 0 }

// Less compares two ids.
func (u Uint128) Less(v Uint128) bool {
	if u.High != v.High {
		return u.High < v.High
	}
	return u.Low < v.Low
}

// Dec returns u - 1, saturating at zero.
func (u Uint128) Dec() Uint128 {
	if u.IsZero() {
		return u
	}
	if u.Low == 0 {
		return Uint128{High: u.High - 1, Low: ^uint64(0)}
	}
	return Uint128{High: u.High, Low: u.Low - 1}
}

func (u Uint128) wire() *p4v1.Uint128 {
	return &p4v1.Uint128{High: u.High, Low: u.Low}
}

func uint128Of(pb *p4v1.Uint128) Uint128 {
	return Uint128{High: pb.GetHigh(), Low: pb.GetLow()}
}

func (u Uint128) String() string {
	if u.High == 0 {
		return fmt.Sprintf("%d", u.Low)
	}
	return fmt.Sprintf("%d:%d", u.High, u.Low)
}

// ReadyHandler is the user entry point, invoked each time the switch
// reaches READY. It runs as the root of the switch's task group; tasks
// it spawns via Switch.CreateTask are cancelled when the switch leaves
// READY. A non-nil return tears the channel down.
type ReadyHandler func(ctx context.Context, sw *Switch) error

// SwitchOptions configures a Switch. The value is copied at NewSwitch
// time and never mutated; derive variants with With.
type SwitchOptions struct {
	// P4InfoPath and P4InfoBytes locate the pipeline schema; at most
	// one may be set. Empty means "adopt whatever the device runs".
	P4InfoPath  string `validate:"omitempty,filepath"`
	P4InfoBytes []byte

	// P4BlobPath and P4Blob locate the target device config. P4Blob,
	// when set, wins.
	P4BlobPath string `validate:"omitempty,filepath"`
	P4Blob     func() ([]byte, error)

	// ForceReload reinstalls the pipeline even when the cookie matches.
	ForceReload bool

	// DeviceID is the P4Runtime device id; 0 selects the default of 1.
	DeviceID uint64

	// InitialElectionID seeds arbitration; 0 selects the default of 10.
	// Election id 0 itself is reserved for "no primary".
	InitialElectionID Uint128

	// Credentials supplies TLS material; nil dials insecure.
	Credentials *creds.Credentials

	// RoleName is the arbitration role; "" is the default full-access
	// role.
	RoleName string

	// RoleConfig is the opaque role configuration, if any.
	RoleConfig *anypb.Any

	// ReadyHandler runs on each READY transition.
	ReadyHandler ReadyHandler

	// FailFast propagates programming errors out of the supervisor
	// instead of reconnecting.
	FailFast bool

	// CallTimeout bounds unary RPCs. Zero selects the default.
	CallTimeout time.Duration `validate:"gte=0"`

	// Stash seeds the switch's user stash.
	Stash map[string]any
}

const (
	defaultDeviceID    = 1
	defaultElectionID  = 10
	defaultCallTimeout = 30 * time.Second
)

var validate = validator.New()

// With returns a copy of the options with overrides applied. The
// receiver is never mutated.
func (o SwitchOptions) With(fn func(*SwitchOptions)) SwitchOptions {
	fn(&o)
	return o
}

// withDefaults fills zero values.
func (o SwitchOptions) withDefaults() SwitchOptions {
	if o.DeviceID == 0 {
		o.DeviceID = defaultDeviceID
	}
	if o.InitialElectionID.IsZero() {
		o.InitialElectionID = Uint128{Low: defaultElectionID}
	}
	if o.CallTimeout == 0 {
		o.CallTimeout = defaultCallTimeout
	}
	return o
}

// check validates the options.
func (o SwitchOptions) check() error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("invalid switch options: %w", err)
	}
	if o.P4InfoPath != "" && len(o.P4InfoBytes) > 0 {
		return fmt.Errorf("invalid switch options: both P4InfoPath and P4InfoBytes set")
	}
	if o.P4InfoPath != "" {
		if _, err := os.Stat(o.P4InfoPath); err != nil {
			return fmt.Errorf("invalid switch options: p4info: %w", err)
		}
	}
	return nil
}

// hasPipeline reports whether a pipeline source is configured.
func (o SwitchOptions) hasPipeline() bool {
	return o.P4InfoPath != "" || len(o.P4InfoBytes) > 0
}

// loadBlob reads the device config blob, if any.
func (o SwitchOptions) loadBlob() ([]byte, error) {
	if o.P4Blob != nil {
		return o.P4Blob()
	}
	if o.P4BlobPath == "" {
		return nil, nil
	}
	data, err := os.ReadFile(o.P4BlobPath)
	if err != nil {
		return nil, fmt.Errorf("read p4blob: %w", err)
	}
	return data, nil
}
