package machine

import (
	"errors"
	"testing"

	"github.com/javanstorm/vmbridge/internal/testutil"
	"github.com/javanstorm/vmbridge/pkg/hypervisor"
)

func testPolicy() Policy {
	return Policy{
		CPUCount:    2,
		MemorySize:  512 * 1024 * 1024,
		NetworkMode: "nat",
	}
}

// newTestController wires a controller to a fake hypervisor with a full,
// valid artifact set.
func newTestController(t *testing.T, hv *fakeHypervisor) *Controller {
	t.Helper()

	c, err := NewController(hv, testPolicy(), "")
	if err != nil {
		t.Fatalf("NewController failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	dir := t.TempDir()
	c.SetArtifact(ArtifactKernel, testutil.CreateArtifact(t, dir, "vmlinux"))
	c.SetArtifact(ArtifactInitrd, testutil.CreateArtifact(t, dir, "initrd.img"))
	c.SetArtifact(ArtifactBoot, testutil.CreateArtifact(t, dir, "boot.img"))
	diskPath := dir + "/disk.raw"
	testutil.CreateDiskImage(t, diskPath, 1)
	c.SetArtifact(ArtifactDisk, diskPath)
	return c
}

func TestStartMissingArtifact(t *testing.T) {
	hv := newFakeHypervisor()
	c, err := NewController(hv, testPolicy(), "")
	if err != nil {
		t.Fatalf("NewController failed: %v", err)
	}
	defer c.Close()

	dir := t.TempDir()
	c.SetArtifact(ArtifactKernel, testutil.CreateArtifact(t, dir, "vmlinux"))

	err = c.Start()
	if !errors.Is(err, ErrMissingArtifact) {
		t.Fatalf("Start error = %v, want ErrMissingArtifact", err)
	}
	if got := hv.machineCount(); got != 0 {
		t.Errorf("machines constructed = %d, want 0", got)
	}
	if st := c.State(); st != hypervisor.StateUnconfigured {
		t.Errorf("state after failed start = %v, want Unconfigured", st)
	}
}

func TestStartInvalidResources(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
	}{
		{"zero cpus", Policy{CPUCount: 0, MemorySize: 512 * 1024 * 1024, NetworkMode: "nat"}},
		{"too many cpus", Policy{CPUCount: 64, MemorySize: 512 * 1024 * 1024, NetworkMode: "nat"}},
		{"memory below minimum", Policy{CPUCount: 2, MemorySize: 1024, NetworkMode: "nat"}},
		{"memory above maximum", Policy{CPUCount: 2, MemorySize: 1 << 50, NetworkMode: "nat"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hv := newFakeHypervisor()
			c := newTestController(t, hv)
			c.builder = NewBuilder(hv, tt.policy)

			if err := c.Start(); !errors.Is(err, ErrInvalidResource) {
				t.Fatalf("Start error = %v, want ErrInvalidResource", err)
			}
			if got := hv.machineCount(); got != 0 {
				t.Errorf("machines constructed = %d, want 0", got)
			}
		})
	}
}

func TestStartAttachmentFailure(t *testing.T) {
	hv := newFakeHypervisor()
	c := newTestController(t, hv)
	hv.openErr[c.Artifacts().Boot] = errors.New("no such device")

	if err := c.Start(); !errors.Is(err, ErrAttachment) {
		t.Fatalf("Start error = %v, want ErrAttachment", err)
	}
	if got := hv.machineCount(); got != 0 {
		t.Errorf("machines constructed = %d, want 0", got)
	}
}

func TestStartRejectedConfiguration(t *testing.T) {
	hv := newFakeHypervisor()
	hv.validateErr = errors.New("unsupported device")
	c := newTestController(t, hv)

	if err := c.Start(); !errors.Is(err, ErrRejected) {
		t.Fatalf("Start error = %v, want ErrRejected", err)
	}
}

func TestStartConstructFailure(t *testing.T) {
	hv := newFakeHypervisor()
	hv.constructErr = errors.New("out of resources")
	c := newTestController(t, hv)

	if err := c.Start(); !errors.Is(err, ErrConstruct) {
		t.Fatalf("Start error = %v, want ErrConstruct", err)
	}
	if st := c.State(); st != hypervisor.StateUnconfigured {
		t.Errorf("state = %v, want Unconfigured", st)
	}
}

func TestStartIdempotentWhileLive(t *testing.T) {
	hv := newFakeHypervisor()
	c := newTestController(t, hv)

	if err := c.Start(); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	m := hv.lastMachine()
	m.emit(hypervisor.StateRunning)

	if err := c.Start(); err != nil {
		t.Fatalf("second Start failed: %v", err)
	}
	if got := hv.machineCount(); got != 1 {
		t.Errorf("machines constructed = %d, want 1", got)
	}
	if got := m.activeSubs(); got != 1 {
		t.Errorf("active subscriptions = %d, want 1", got)
	}
	if st := c.State(); st != hypervisor.StateRunning {
		t.Errorf("state = %v, want Running", st)
	}
}

func TestStartAsyncBootFailure(t *testing.T) {
	hv := newFakeHypervisor()
	hv.startErr = errors.New("bootloader fault")
	c := newTestController(t, hv)

	// The boot request is asynchronous; its failure does not surface
	// through Start but through the absence of a Running transition.
	if err := c.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if st := c.State(); st != hypervisor.StateUnconfigured {
		t.Errorf("state = %v, want Unconfigured", st)
	}
}

func TestStateFollowsHypervisor(t *testing.T) {
	hv := newFakeHypervisor()
	c := newTestController(t, hv)

	if err := c.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	m := hv.lastMachine()

	for _, st := range []hypervisor.State{
		hypervisor.StateStarting,
		hypervisor.StateRunning,
		hypervisor.StatePausing,
		hypervisor.StatePaused,
		hypervisor.StateResuming,
		hypervisor.StateRunning,
	} {
		m.emit(st)
		if got := c.State(); got != st {
			t.Fatalf("State() = %v after emitting %v", got, st)
		}
	}
}

func TestNotifyKeepsLatest(t *testing.T) {
	hv := newFakeHypervisor()
	c := newTestController(t, hv)

	if err := c.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	m := hv.lastMachine()
	m.emit(hypervisor.StateStarting)
	m.emit(hypervisor.StateRunning)

	// The consumer never drained, so only the most recent state remains.
	select {
	case st := <-c.Notify():
		if st != hypervisor.StateRunning {
			t.Errorf("Notify delivered %v, want Running", st)
		}
	default:
		t.Fatal("Notify channel should hold a state")
	}
	select {
	case st := <-c.Notify():
		t.Errorf("Notify delivered extra state %v", st)
	default:
	}
}

func TestStopReleasesHandle(t *testing.T) {
	hv := newFakeHypervisor()
	c := newTestController(t, hv)

	if err := c.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	m := hv.lastMachine()
	m.emit(hypervisor.StateRunning)

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if !m.stopped {
		t.Error("stop was not requested from the machine")
	}
	if got := m.activeSubs(); got != 0 {
		t.Errorf("active subscriptions after Stop = %d, want 0", got)
	}
	if st := c.State(); st != hypervisor.StateUnconfigured {
		t.Errorf("state after Stop = %v, want Unconfigured", st)
	}
}

func TestStopWithoutMachine(t *testing.T) {
	hv := newFakeHypervisor()
	c := newTestController(t, hv)

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop with no machine should be a no-op, got %v", err)
	}
}

func TestStopFailureStillReleases(t *testing.T) {
	hv := newFakeHypervisor()
	hv.stopErr = errors.New("guest unresponsive")
	c := newTestController(t, hv)

	if err := c.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := c.Stop(); !errors.Is(err, ErrStopFailed) {
		t.Fatalf("Stop error = %v, want ErrStopFailed", err)
	}

	// The handle is released regardless, so a new machine can start.
	hv.stopErr = nil
	if err := c.Start(); err != nil {
		t.Fatalf("Start after failed Stop failed: %v", err)
	}
	if got := hv.machineCount(); got != 2 {
		t.Errorf("machines constructed = %d, want 2", got)
	}
}

func TestNoCrosstalkAcrossRestarts(t *testing.T) {
	hv := newFakeHypervisor()
	c := newTestController(t, hv)

	if err := c.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	old := hv.lastMachine()
	old.mu.Lock()
	oldSub := old.subs[0]
	old.mu.Unlock()

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := c.Start(); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	hv.lastMachine().emit(hypervisor.StateRunning)

	// A late notification from the first machine, racing its own
	// cancellation, must not disturb the successor's state.
	oldSub.fn(hypervisor.StateStopped)

	if st := c.State(); st != hypervisor.StateRunning {
		t.Errorf("state = %v, want Running", st)
	}
}

func TestConsoleStableAcrossRestarts(t *testing.T) {
	hv := newFakeHypervisor()
	c := newTestController(t, hv)

	r, w := c.Console()
	for i := 0; i < 3; i++ {
		if err := c.Start(); err != nil {
			t.Fatalf("Start %d failed: %v", i, err)
		}
		if err := c.Stop(); err != nil {
			t.Fatalf("Stop %d failed: %v", i, err)
		}
		r2, w2 := c.Console()
		if r2 != r || w2 != w {
			t.Fatalf("console endpoints changed on cycle %d", i)
		}
	}
}

func TestReadyOmitsDiskImage(t *testing.T) {
	hv := newFakeHypervisor()
	c, err := NewController(hv, testPolicy(), "")
	if err != nil {
		t.Fatalf("NewController failed: %v", err)
	}
	defer c.Close()

	dir := t.TempDir()
	c.SetArtifact(ArtifactKernel, testutil.CreateArtifact(t, dir, "vmlinux"))
	c.SetArtifact(ArtifactInitrd, testutil.CreateArtifact(t, dir, "initrd.img"))
	c.SetArtifact(ArtifactBoot, testutil.CreateArtifact(t, dir, "boot.img"))

	// Ready does not require the disk image, but Start does.
	if !c.Ready() {
		t.Error("Ready() = false with kernel, initrd and boot image set")
	}
	if err := c.Start(); !errors.Is(err, ErrMissingArtifact) {
		t.Errorf("Start error = %v, want ErrMissingArtifact", err)
	}
}

func TestPauseResumeRequireMachine(t *testing.T) {
	hv := newFakeHypervisor()
	c := newTestController(t, hv)

	if err := c.Pause(); !errors.Is(err, ErrNoMachine) {
		t.Errorf("Pause error = %v, want ErrNoMachine", err)
	}
	if err := c.Resume(); !errors.Is(err, ErrNoMachine) {
		t.Errorf("Resume error = %v, want ErrNoMachine", err)
	}

	if err := c.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	m := hv.lastMachine()
	if err := c.Pause(); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if !m.paused {
		t.Error("pause was not forwarded to the machine")
	}
	if err := c.Resume(); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if m.paused {
		t.Error("resume was not forwarded to the machine")
	}
}

func TestStateDescription(t *testing.T) {
	hv := newFakeHypervisor()
	c := newTestController(t, hv)

	desc, live := c.StateDescription()
	if live {
		t.Error("live = true before Start")
	}
	if desc != "unconfigured" {
		t.Errorf("description = %q, want %q", desc, "unconfigured")
	}

	if err := c.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	hv.lastMachine().emit(hypervisor.StateRunning)

	desc, live = c.StateDescription()
	if !live {
		t.Error("live = false after Start")
	}
	if desc != "running" {
		t.Errorf("description = %q, want %q", desc, "running")
	}
}

func TestBootRecordTracksLifecycle(t *testing.T) {
	hv := newFakeHypervisor()
	dataDir := t.TempDir()
	c, err := NewController(hv, testPolicy(), dataDir)
	if err != nil {
		t.Fatalf("NewController failed: %v", err)
	}
	defer c.Close()

	dir := t.TempDir()
	c.SetArtifact(ArtifactKernel, testutil.CreateArtifact(t, dir, "vmlinux"))
	c.SetArtifact(ArtifactInitrd, testutil.CreateArtifact(t, dir, "initrd.img"))
	c.SetArtifact(ArtifactBoot, testutil.CreateArtifact(t, dir, "boot.img"))
	diskPath := dir + "/disk.raw"
	testutil.CreateDiskImage(t, diskPath, 1)
	c.SetArtifact(ArtifactDisk, diskPath)

	if err := c.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	hv.lastMachine().emit(hypervisor.StateRunning)
	hv.lastMachine().emit(hypervisor.StateStopped)

	h, err := NewBootRecord(dataDir).Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if h.BootCount != 1 {
		t.Errorf("boot count = %d, want 1", h.BootCount)
	}
	if !h.CleanShutdown {
		t.Error("shutdown after Stopped state should be recorded clean")
	}
}
