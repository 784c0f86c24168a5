//go:build !darwin

package hypervisor

// New returns ErrUnsupportedPlatform on hosts without a virtualization
// capability.
func New() (Hypervisor, error) {
	return nil, ErrUnsupportedPlatform
}
