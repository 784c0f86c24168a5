package machine

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/javanstorm/vmbridge/pkg/hypervisor"
)

// DefaultCmdline directs the guest console to the first virtio serial port.
const DefaultCmdline = "console=hvc0"

// Policy holds the fixed machine shape applied to every start attempt.
// Artifact locations vary per attempt; these values do not.
type Policy struct {
	// CPUCount is the number of virtual CPUs.
	CPUCount uint

	// MemorySize is the guest memory size in bytes.
	MemorySize uint64

	// NetworkMode selects the network device mode. Only "nat" is supported.
	NetworkMode string
}

// Builder validates an artifact set against host capabilities and produces
// an immutable machine configuration. Build has no side effects beyond
// opening the two disk-image attachments.
type Builder struct {
	hv     hypervisor.Hypervisor
	policy Policy
	log    *logrus.Entry
}

// NewBuilder creates a builder for the given hypervisor and policy.
func NewBuilder(hv hypervisor.Hypervisor, policy Policy) *Builder {
	return &Builder{
		hv:     hv,
		policy: policy,
		log:    logrus.WithField("component", "builder"),
	}
}

// Build produces a validated configuration from the artifact set, with the
// serial port bound to the bridge's guest-facing pipe ends. Any failure
// aborts before a machine instance can be constructed.
func (b *Builder) Build(set ArtifactSet, bridge *ConsoleBridge) (*hypervisor.Config, error) {
	if missing := set.Missing(); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingArtifact, kindList(missing))
	}
	for _, kind := range []ArtifactKind{ArtifactKernel, ArtifactInitrd} {
		if _, err := os.Stat(set.Path(kind)); err != nil {
			return nil, fmt.Errorf("%w: %s %s: %v", ErrMissingArtifact, kind, set.Path(kind), err)
		}
	}

	caps := b.hv.Host()
	if b.policy.CPUCount < 1 || b.policy.CPUCount > caps.MaxCPUCount {
		return nil, fmt.Errorf("%w: %d CPUs requested, host supports 1-%d",
			ErrInvalidResource, b.policy.CPUCount, caps.MaxCPUCount)
	}
	if b.policy.MemorySize < caps.MinMemorySize || b.policy.MemorySize > caps.MaxMemorySize {
		return nil, fmt.Errorf("%w: %d bytes of memory requested, host supports %d-%d",
			ErrInvalidResource, b.policy.MemorySize, caps.MinMemorySize, caps.MaxMemorySize)
	}

	boot, err := b.hv.OpenReadOnly(set.Boot)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrAttachment, ArtifactBoot, set.Boot, err)
	}
	disk, err := b.hv.OpenReadWrite(set.Disk)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrAttachment, ArtifactDisk, set.Disk, err)
	}

	guestRead, guestWrite := bridge.GuestEndpoints()
	cfg := &hypervisor.Config{
		CPUCount:     b.policy.CPUCount,
		MemorySize:   b.policy.MemorySize,
		Kernel:       set.Kernel,
		Initrd:       set.Initrd,
		Cmdline:      DefaultCmdline,
		Boot:         boot,
		Disk:         disk,
		NetworkMode:  b.policy.NetworkMode,
		Entropy:      true,
		Balloon:      true,
		ConsoleRead:  guestRead,
		ConsoleWrite: guestWrite,
	}

	if err := b.hv.Validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRejected, err)
	}

	b.log.WithFields(logrus.Fields{
		"cpus":   cfg.CPUCount,
		"memory": cfg.MemorySize,
	}).Debug("configuration built")
	return cfg, nil
}
