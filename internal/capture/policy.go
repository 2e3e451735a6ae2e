// internal/capture/policy.go
package capture

import (
	"github.com/pkg/errors"

	"github.com/tamzrod/capture-sync/internal/syncclient"
)

// ErrConfiguration is returned by New when the controller cannot start.
var ErrConfiguration = errors.New("capture: configuration error")

// Policy decides which frames are persisted.
type Policy int

const (
	// PolicyStrict persists a frame only when the server said save.
	PolicyStrict Policy = iota + 1
	// PolicyRelaxed persists every frame; server time is opportunistic.
	PolicyRelaxed
)

// ParsePolicy maps the configured value to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "strict":
		return PolicyStrict, nil
	case "relaxed":
		return PolicyRelaxed, nil
	default:
		return 0, errors.Wrapf(ErrConfiguration, "unknown sync policy %q", s)
	}
}

func (p Policy) String() string {
	switch p {
	case PolicyStrict:
		return "strict"
	case PolicyRelaxed:
		return "relaxed"
	default:
		return "invalid"
	}
}

// Command is the per-frame exchange the policy needs.
func (p Policy) Command() syncclient.Command {
	if p == PolicyStrict {
		return syncclient.CmdCheck
	}
	return syncclient.CmdSync
}

// Persist reports whether a frame with this response is written.
func (p Policy) Persist(r syncclient.Response) bool {
	switch p {
	case PolicyStrict:
		return r == syncclient.RespSave
	case PolicyRelaxed:
		return true
	default:
		return false
	}
}
