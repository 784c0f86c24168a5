package machine

import "strings"

// ArtifactKind identifies one of the four boot artifacts a machine needs.
type ArtifactKind int

const (
	ArtifactKernel ArtifactKind = iota
	ArtifactInitrd
	ArtifactBoot
	ArtifactDisk
)

func (k ArtifactKind) String() string {
	switch k {
	case ArtifactKernel:
		return "kernel"
	case ArtifactInitrd:
		return "initrd"
	case ArtifactBoot:
		return "boot image"
	case ArtifactDisk:
		return "disk image"
	default:
		return "unknown"
	}
}

// Kinds lists every artifact kind in the order Start requires them.
func Kinds() []ArtifactKind {
	return []ArtifactKind{ArtifactKernel, ArtifactInitrd, ArtifactBoot, ArtifactDisk}
}

// ArtifactSet holds the filesystem locations of the boot artifacts:
// kernel image, initial ramdisk, boot/install image and persistent disk.
type ArtifactSet struct {
	Kernel string
	Initrd string
	Boot   string
	Disk   string
}

// Set records the location for the given artifact kind.
func (s *ArtifactSet) Set(kind ArtifactKind, path string) {
	switch kind {
	case ArtifactKernel:
		s.Kernel = path
	case ArtifactInitrd:
		s.Initrd = path
	case ArtifactBoot:
		s.Boot = path
	case ArtifactDisk:
		s.Disk = path
	}
}

// Path returns the recorded location for the given artifact kind.
func (s *ArtifactSet) Path(kind ArtifactKind) string {
	switch kind {
	case ArtifactKernel:
		return s.Kernel
	case ArtifactInitrd:
		return s.Initrd
	case ArtifactBoot:
		return s.Boot
	case ArtifactDisk:
		return s.Disk
	default:
		return ""
	}
}

// Missing returns the kinds that have no location set.
func (s *ArtifactSet) Missing() []ArtifactKind {
	var missing []ArtifactKind
	for _, kind := range Kinds() {
		if s.Path(kind) == "" {
			missing = append(missing, kind)
		}
	}
	return missing
}

// Complete reports whether all four artifacts are set.
func (s *ArtifactSet) Complete() bool {
	return len(s.Missing()) == 0
}

func kindList(kinds []ArtifactKind) string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	return strings.Join(names, ", ")
}
