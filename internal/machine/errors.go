package machine

import "errors"

// Configuration errors
var (
	ErrMissingArtifact = errors.New("machine: required boot artifact missing")
	ErrInvalidResource = errors.New("machine: resource request outside host limits")
	ErrAttachment      = errors.New("machine: disk image attachment failed")
	ErrRejected        = errors.New("machine: configuration rejected by hypervisor")
)

// Lifecycle errors
var (
	ErrConstruct  = errors.New("machine: hypervisor could not construct the machine")
	ErrStopFailed = errors.New("machine: stop request failed")
	ErrNoMachine  = errors.New("machine: no machine is live")
)
