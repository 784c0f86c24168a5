// Package hypervisor abstracts the host capability that creates and runs
// virtual machine instances. The darwin implementation is backed by the
// Virtualization.framework; other platforms get a stub.
package hypervisor

// Hypervisor is the entry point to the host's virtualization capability.
// It validates machine configurations, opens disk-image attachments, and
// constructs live machine instances.
type Hypervisor interface {
	// Host reports the resource bounds supported by this host.
	// Used to reject configurations before any machine is constructed.
	Host() HostCapabilities

	// OpenReadOnly opens a disk image for read-only attachment.
	OpenReadOnly(path string) (Attachment, error)

	// OpenReadWrite opens a disk image for read-write attachment.
	OpenReadWrite(path string) (Attachment, error)

	// Validate checks a configuration against hypervisor policy without
	// constructing a machine.
	Validate(cfg *Config) error

	// Construct creates a live machine instance from a validated
	// configuration. The configuration is consumed exactly once.
	Construct(cfg *Config) (Machine, error)
}

// Machine is a live, running-or-transitioning virtual machine instance.
// At most one is expected to be live per controller.
type Machine interface {
	// RequestStart issues an asynchronous start request. done is invoked
	// exactly once with the outcome; state changes are reported only
	// through SubscribeState, never through done.
	RequestStart(done func(error))

	// RequestStop asks the guest to shut down. The request is best-effort:
	// a stuck guest cannot be forced from this layer.
	RequestStop() error

	// Pause suspends the running guest.
	Pause() error

	// Resume continues a paused guest.
	Resume() error

	// SubscribeState registers fn for state notifications. The current
	// state is delivered immediately, then every transition in the order
	// the hypervisor emits them. Returns the subscription for teardown.
	SubscribeState(fn func(State)) Subscription
}

// Subscription is a cancellable state-notification registration.
type Subscription interface {
	// Cancel stops delivery. After Cancel returns, fn is not invoked
	// again, including for notifications already in flight.
	Cancel()
}

// HostCapabilities reports the CPU and memory bounds the host supports.
type HostCapabilities struct {
	MaxCPUCount   uint
	MinMemorySize uint64
	MaxMemorySize uint64
}

// Attachment is an opened handle to a disk image used as virtual storage
// media. Opened by the hypervisor so that open failures surface before a
// machine is constructed.
type Attachment interface {
	Path() string
	ReadOnly() bool
}
