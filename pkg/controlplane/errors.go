package controlplane

import (
	"errors"
	"fmt"

	"github.com/byllyfish/finsy/pkg/p4/bitstr"
	"github.com/byllyfish/finsy/pkg/p4/client"
	"github.com/byllyfish/finsy/pkg/p4/entity"
	"github.com/byllyfish/finsy/pkg/p4/schema"
)

// PipelineError reports a failed SetForwardingPipelineConfig.
type PipelineError struct {
	Switch string
	Err    error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("switch %q: pipeline install failed: %v", e.Switch, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// SwitchError wraps any error surfaced to the user with the owning
// switch's name.
type SwitchError struct {
	Switch string
	Err    error
}

func (e *SwitchError) Error() string {
	return fmt.Sprintf("switch %q: %v", e.Switch, e.Err)
}

func (e *SwitchError) Unwrap() error { return e.Err }

// errPrimaryLost marks loss of primary status while READY; the
// supervisor reconnects and re-arbitrates.
var errPrimaryLost = errors.New("primary status lost")

// isProgrammingError classifies errors that reconnection cannot fix:
// schema, encoding and configuration mistakes. With FailFast these
// propagate out of the supervisor.
func isProgrammingError(err error) bool {
	var (
		notFound  *schema.NotFoundError
		dup       *schema.DuplicateError
		typeErr   *schema.TypeError
		outOfRng  *bitstr.ValueOutOfRangeError
		maskErr   *bitstr.MaskError
		missing   *entity.MissingParameterError
		unknown   *entity.UnknownParameterError
		badUpdate *entity.InvalidUpdateError
		incompl   *entity.IncompleteError
	)
	switch {
	case errors.As(err, &notFound),
		errors.As(err, &dup),
		errors.As(err, &typeErr),
		errors.As(err, &outOfRng),
		errors.As(err, &maskErr),
		errors.As(err, &missing),
		errors.As(err, &unknown),
		errors.As(err, &badUpdate),
		errors.As(err, &incompl):
		return true
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		return true
	}
	var ce *client.ClientError
	if errors.As(err, &ce) {
		// A rejected write is a programming error, not a transport one.
		return !client.IsTransient(err)
	}
	return false
}
