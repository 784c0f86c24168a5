package config

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/docker/go-units"
	"github.com/spf13/viper"
)

// Config holds all vmbridge configuration.
type Config struct {
	// KernelPath is the path to the Linux kernel image.
	KernelPath string `mapstructure:"kernel_path"`

	// InitrdPath is the path to the initial ramdisk.
	InitrdPath string `mapstructure:"initrd_path"`

	// BootImagePath is the path to the read-only boot/install image.
	BootImagePath string `mapstructure:"boot_image_path"`

	// DiskImagePath is the path to the persistent disk image.
	DiskImagePath string `mapstructure:"disk_image_path"`

	// CPUs is the number of virtual CPUs allocated to the VM.
	CPUs uint `mapstructure:"cpus"`

	// Memory is the guest memory size, e.g. "2GiB" or "512MiB".
	Memory string `mapstructure:"memory"`

	// NetworkMode selects the network device mode ("nat" or "none").
	NetworkMode string `mapstructure:"network_mode"`

	// GUI opens a terminal window instead of attaching to the calling
	// terminal.
	GUI bool `mapstructure:"gui"`
}

// DefaultConfig returns a Config with sensible defaults. Artifact paths
// have no defaults; they are machine-specific.
func DefaultConfig() *Config {
	return &Config{
		CPUs:        uint(runtime.NumCPU()),
		Memory:      "2GiB",
		NetworkMode: "nat",
		GUI:         true,
	}
}

// MemoryBytes parses the configured memory size into bytes.
func (c *Config) MemoryBytes() (uint64, error) {
	n, err := units.RAMInBytes(c.Memory)
	if err != nil {
		return 0, fmt.Errorf("invalid memory size %q: %w", c.Memory, err)
	}
	return uint64(n), nil
}

// Global holds the loaded configuration.
var Global *Config

// Load reads configuration from file, environment, and defaults.
func Load() error {
	paths, err := GetPaths()
	if err != nil {
		return fmt.Errorf("failed to determine paths: %w", err)
	}

	defaults := DefaultConfig()
	viper.SetDefault("kernel_path", defaults.KernelPath)
	viper.SetDefault("initrd_path", defaults.InitrdPath)
	viper.SetDefault("boot_image_path", defaults.BootImagePath)
	viper.SetDefault("disk_image_path", defaults.DiskImagePath)
	viper.SetDefault("cpus", defaults.CPUs)
	viper.SetDefault("memory", defaults.Memory)
	viper.SetDefault("network_mode", defaults.NetworkMode)
	viper.SetDefault("gui", defaults.GUI)

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(paths.DataDir)
	viper.AddConfigPath(paths.ConfigDir)

	// Environment variable support: VMBRIDGE_KERNEL_PATH, VMBRIDGE_CPUS, etc.
	viper.SetEnvPrefix("VMBRIDGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Config file is optional; defaults apply when it is missing.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	Global = &Config{}
	if err := viper.Unmarshal(Global); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	return nil
}

// ConfigFileUsed returns the path of the config file being used, if any.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
