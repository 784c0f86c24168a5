//go:build darwin

package hypervisor

import (
	"fmt"
	"sync"

	"github.com/Code-Hex/vz/v3"
	"github.com/sirupsen/logrus"
)

// vzHypervisor implements Hypervisor using macOS Virtualization.framework.
type vzHypervisor struct {
	log *logrus.Entry
}

// New creates the Virtualization.framework-backed hypervisor.
func New() (Hypervisor, error) {
	return &vzHypervisor{
		log: logrus.WithField("component", "vz"),
	}, nil
}

func (h *vzHypervisor) Host() HostCapabilities {
	return HostCapabilities{
		MaxCPUCount:   vz.VirtualMachineConfigurationMaximumAllowedCPUCount(),
		MinMemorySize: vz.VirtualMachineConfigurationMinimumAllowedMemorySize(),
		MaxMemorySize: vz.VirtualMachineConfigurationMaximumAllowedMemorySize(),
	}
}

// vzAttachment wraps a framework disk-image attachment with the metadata
// the configuration layer needs to report on it.
type vzAttachment struct {
	att      *vz.DiskImageStorageDeviceAttachment
	path     string
	readOnly bool
}

func (a *vzAttachment) Path() string   { return a.path }
func (a *vzAttachment) ReadOnly() bool { return a.readOnly }

func (h *vzHypervisor) OpenReadOnly(path string) (Attachment, error) {
	return h.open(path, true)
}

func (h *vzHypervisor) OpenReadWrite(path string) (Attachment, error) {
	return h.open(path, false)
}

func (h *vzHypervisor) open(path string, readOnly bool) (Attachment, error) {
	att, err := vz.NewDiskImageStorageDeviceAttachment(path, readOnly)
	if err != nil {
		return nil, fmt.Errorf("vz: open disk image %s: %w", path, err)
	}
	return &vzAttachment{att: att, path: path, readOnly: readOnly}, nil
}

func (h *vzHypervisor) Validate(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	vmCfg, err := h.buildConfiguration(cfg)
	if err != nil {
		return err
	}
	ok, err := vmCfg.Validate()
	if !ok || err != nil {
		return fmt.Errorf("vz: configuration rejected: %w", err)
	}
	return nil
}

func (h *vzHypervisor) Construct(cfg *Config) (Machine, error) {
	vmCfg, err := h.buildConfiguration(cfg)
	if err != nil {
		return nil, err
	}
	ok, err := vmCfg.Validate()
	if !ok || err != nil {
		return nil, fmt.Errorf("vz: configuration rejected: %w", err)
	}
	vm, err := vz.NewVirtualMachine(vmCfg)
	if err != nil {
		return nil, fmt.Errorf("vz: create virtual machine: %w", err)
	}
	return &vzMachine{vm: vm, log: h.log}, nil
}

// buildConfiguration translates a Config into the framework's device tree.
func (h *vzHypervisor) buildConfiguration(cfg *Config) (*vz.VirtualMachineConfiguration, error) {
	bootLoader, err := vz.NewLinuxBootLoader(cfg.Kernel,
		vz.WithCommandLine(cfg.Cmdline),
		vz.WithInitrd(cfg.Initrd),
	)
	if err != nil {
		return nil, fmt.Errorf("vz: create boot loader: %w", err)
	}

	vmCfg, err := vz.NewVirtualMachineConfiguration(bootLoader, cfg.CPUCount, cfg.MemorySize)
	if err != nil {
		return nil, fmt.Errorf("vz: create VM configuration: %w", err)
	}

	platform, err := vz.NewGenericPlatformConfiguration()
	if err != nil {
		return nil, fmt.Errorf("vz: create platform configuration: %w", err)
	}
	vmCfg.SetPlatformVirtualMachineConfiguration(platform)

	// Serial console wired to the bridge's guest-facing pipe ends.
	serialCfg, err := vz.NewVirtioConsoleDeviceSerialPortConfiguration(
		vz.NewFileHandleSerialPortAttachment(cfg.ConsoleRead, cfg.ConsoleWrite),
	)
	if err != nil {
		return nil, fmt.Errorf("vz: create serial configuration: %w", err)
	}
	vmCfg.SetSerialPortsVirtualMachineConfiguration([]*vz.VirtioConsoleDeviceSerialPortConfiguration{
		serialCfg,
	})

	var storage []vz.StorageDeviceConfiguration
	for _, att := range []Attachment{cfg.Boot, cfg.Disk} {
		if att == nil {
			continue
		}
		va, ok := att.(*vzAttachment)
		if !ok {
			return nil, fmt.Errorf("vz: foreign attachment for %s", att.Path())
		}
		dev, err := vz.NewVirtioBlockDeviceConfiguration(va.att)
		if err != nil {
			return nil, fmt.Errorf("vz: create block device for %s: %w", att.Path(), err)
		}
		storage = append(storage, dev)
	}
	vmCfg.SetStorageDevicesVirtualMachineConfiguration(storage)

	if cfg.NetworkMode == "nat" {
		natAttachment, err := vz.NewNATNetworkDeviceAttachment()
		if err != nil {
			return nil, fmt.Errorf("vz: create NAT attachment: %w", err)
		}
		netCfg, err := vz.NewVirtioNetworkDeviceConfiguration(natAttachment)
		if err != nil {
			return nil, fmt.Errorf("vz: create network configuration: %w", err)
		}
		mac, err := vz.NewRandomLocallyAdministeredMACAddress()
		if err != nil {
			return nil, fmt.Errorf("vz: generate MAC address: %w", err)
		}
		netCfg.SetMACAddress(mac)
		vmCfg.SetNetworkDevicesVirtualMachineConfiguration([]*vz.VirtioNetworkDeviceConfiguration{netCfg})
	}

	if cfg.Entropy {
		entropyCfg, err := vz.NewVirtioEntropyDeviceConfiguration()
		if err != nil {
			return nil, fmt.Errorf("vz: create entropy device: %w", err)
		}
		vmCfg.SetEntropyDevicesVirtualMachineConfiguration([]*vz.VirtioEntropyDeviceConfiguration{
			entropyCfg,
		})
	}

	if cfg.Balloon {
		balloonCfg, err := vz.NewVirtioTraditionalMemoryBalloonDeviceConfiguration()
		if err != nil {
			return nil, fmt.Errorf("vz: create balloon device: %w", err)
		}
		vmCfg.SetMemoryBalloonDevicesVirtualMachineConfiguration([]vz.MemoryBalloonDeviceConfiguration{
			balloonCfg,
		})
	}

	return vmCfg, nil
}

// vzMachine wraps a live framework virtual machine.
type vzMachine struct {
	vm  *vz.VirtualMachine
	log *logrus.Entry
}

func (m *vzMachine) RequestStart(done func(error)) {
	go func() {
		done(m.vm.Start())
	}()
}

func (m *vzMachine) RequestStop() error {
	canStop, err := m.vm.CanRequestStop()
	if err != nil {
		return fmt.Errorf("vz: check stop request: %w", err)
	}
	if !canStop {
		return ErrStopDenied
	}
	ok, err := m.vm.RequestStop()
	if err != nil {
		return fmt.Errorf("vz: request stop: %w", err)
	}
	if !ok {
		return ErrStopDenied
	}
	return nil
}

func (m *vzMachine) Pause() error {
	if !m.vm.CanPause() {
		return ErrNotRunning
	}
	if err := m.vm.Pause(); err != nil {
		return fmt.Errorf("vz: pause: %w", err)
	}
	return nil
}

func (m *vzMachine) Resume() error {
	if !m.vm.CanResume() {
		return ErrNotPaused
	}
	if err := m.vm.Resume(); err != nil {
		return fmt.Errorf("vz: resume: %w", err)
	}
	return nil
}

func (m *vzMachine) SubscribeState(fn func(State)) Subscription {
	sub := &vzSubscription{done: make(chan struct{})}
	go func() {
		// Deliver the current state up front so subscribers do not have
		// to wait for the first transition.
		sub.deliver(fn, stateFromVZ(m.vm.State()))
		ch := m.vm.StateChangedNotify()
		for {
			select {
			case <-sub.done:
				return
			case st, ok := <-ch:
				if !ok {
					return
				}
				m.log.WithField("state", st).Debug("vm state change")
				sub.deliver(fn, stateFromVZ(st))
			}
		}
	}()
	return sub
}

// vzSubscription serializes callback delivery with cancellation so that no
// notification lands after Cancel returns.
type vzSubscription struct {
	mu        sync.Mutex
	cancelled bool
	done      chan struct{}
}

func (s *vzSubscription) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled {
		return
	}
	s.cancelled = true
	close(s.done)
}

func (s *vzSubscription) deliver(fn func(State), st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled {
		return
	}
	fn(st)
}

func stateFromVZ(st vz.VirtualMachineState) State {
	switch st {
	case vz.VirtualMachineStateStarting:
		return StateStarting
	case vz.VirtualMachineStateRunning:
		return StateRunning
	case vz.VirtualMachineStatePausing:
		return StatePausing
	case vz.VirtualMachineStatePaused:
		return StatePaused
	case vz.VirtualMachineStateResuming:
		return StateResuming
	case vz.VirtualMachineStateStopping:
		return StateStopping
	case vz.VirtualMachineStateStopped:
		return StateStopped
	case vz.VirtualMachineStateError:
		return StateError
	default:
		return StateUnconfigured
	}
}
