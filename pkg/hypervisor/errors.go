package hypervisor

import "errors"

// Configuration errors
var (
	ErrInvalidCPUCount    = errors.New("hypervisor: CPU count must be at least 1")
	ErrInvalidMemorySize  = errors.New("hypervisor: memory size must be non-zero")
	ErrMissingKernel      = errors.New("hypervisor: kernel path is required")
	ErrInvalidNetworkMode = errors.New("hypervisor: network mode must be 'nat'")
	ErrBootImageWritable  = errors.New("hypervisor: boot image must be attached read-only")
	ErrDiskImageReadOnly  = errors.New("hypervisor: persistent disk must be attached read-write")
	ErrMissingConsole     = errors.New("hypervisor: serial console endpoints are required")
)

// Runtime errors
var (
	ErrNotRunning = errors.New("hypervisor: machine is not running")
	ErrNotPaused  = errors.New("hypervisor: machine is not paused")
	ErrStopDenied = errors.New("hypervisor: guest does not accept a stop request")
)

// Platform errors
var (
	ErrUnsupportedPlatform = errors.New("hypervisor: platform not supported")
)
