package hypervisor

import "runtime"

// SupportedPlatform returns true if the current platform has a hypervisor
// implementation.
func SupportedPlatform() bool {
	return runtime.GOOS == "darwin"
}

// New creates the hypervisor for the current platform. It is implemented in
// platform-specific files using build tags; see driver_darwin.go and
// driver_stub.go.
