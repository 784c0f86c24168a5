package hypervisor

import "os"

// Config is an immutable machine configuration descriptor. It is built once
// per start attempt and consumed exactly once by Construct.
type Config struct {
	// CPUCount is the number of virtual CPUs.
	CPUCount uint

	// MemorySize is the guest memory size in bytes.
	MemorySize uint64

	// Kernel is the path to the Linux kernel image.
	Kernel string

	// Initrd is the path to the initial ramdisk.
	Initrd string

	// Cmdline is the kernel command line.
	Cmdline string

	// Boot is the read-only boot/install image attachment.
	Boot Attachment

	// Disk is the read-write persistent disk attachment.
	Disk Attachment

	// NetworkMode selects the network device mode. Only "nat" is supported.
	NetworkMode string

	// Entropy attaches a virtio entropy device.
	Entropy bool

	// Balloon attaches a virtio memory balloon device.
	Balloon bool

	// ConsoleRead and ConsoleWrite are the guest-facing ends of the serial
	// console bridge. The guest reads its input from ConsoleRead and writes
	// its output to ConsoleWrite.
	ConsoleRead  *os.File
	ConsoleWrite *os.File
}

// Validate performs structural validation of the configuration.
// Host-capability and policy checks are the hypervisor's job.
func (c *Config) Validate() error {
	if c.CPUCount < 1 {
		return ErrInvalidCPUCount
	}
	if c.MemorySize == 0 {
		return ErrInvalidMemorySize
	}
	if c.Kernel == "" {
		return ErrMissingKernel
	}
	if c.NetworkMode != "" && c.NetworkMode != "nat" {
		return ErrInvalidNetworkMode
	}
	if c.Boot != nil && !c.Boot.ReadOnly() {
		return ErrBootImageWritable
	}
	if c.Disk != nil && c.Disk.ReadOnly() {
		return ErrDiskImageReadOnly
	}
	if c.ConsoleRead == nil || c.ConsoleWrite == nil {
		return ErrMissingConsole
	}
	return nil
}
