package machine

import (
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javanstorm/vmbridge/pkg/hypervisor"
)

// Controller drives a single virtual machine through its lifecycle. It owns
// the console bridge, the current artifact set and, while a machine is live,
// the hypervisor handle and its state subscription.
//
// The published state always reflects what the hypervisor reported; the
// controller never sets a state on its own optimism. After a failed start
// the state simply never leaves Unconfigured.
type Controller struct {
	mu  sync.Mutex
	log *logrus.Entry

	hv      hypervisor.Hypervisor
	builder *Builder
	bridge  *ConsoleBridge

	artifacts ArtifactSet
	machine   hypervisor.Machine
	machineID string
	sub       hypervisor.Subscription
	record    *BootRecord

	pub stateCell
}

// stateCell is the single-writer publication point for machine state. Each
// start attempt adopts the cell under a fresh owner token; notifications
// from earlier machines carry a stale token and are rejected, so a restart
// can never see a late terminal state from its predecessor.
type stateCell struct {
	mu     sync.Mutex
	owner  string
	state  hypervisor.State
	notify chan hypervisor.State
}

func (c *stateCell) init() {
	c.notify = make(chan hypervisor.State, 1)
	c.state = hypervisor.StateUnconfigured
}

func (c *stateCell) adopt(owner string) {
	c.mu.Lock()
	c.owner = owner
	c.mu.Unlock()
}

// publish records the state and signals the notify channel, keeping only
// the most recent value when the consumer lags. Returns false when the
// owner token is stale.
func (c *stateCell) publish(owner string, st hypervisor.State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if owner != c.owner {
		return false
	}
	c.state = st
	select {
	case <-c.notify:
	default:
	}
	select {
	case c.notify <- st:
	default:
	}
	return true
}

// reset drops ownership and publishes Unconfigured.
func (c *stateCell) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.owner = ""
	c.state = hypervisor.StateUnconfigured
	select {
	case <-c.notify:
	default:
	}
	select {
	case c.notify <- c.state:
	default:
	}
}

func (c *stateCell) current() hypervisor.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// NewController creates a controller with a fresh console bridge. When
// dataDir is non-empty, boot history is recorded under it.
func NewController(hv hypervisor.Hypervisor, policy Policy, dataDir string) (*Controller, error) {
	bridge, err := NewConsoleBridge()
	if err != nil {
		return nil, fmt.Errorf("create console bridge: %w", err)
	}
	c := &Controller{
		log:     logrus.WithField("component", "controller"),
		hv:      hv,
		builder: NewBuilder(hv, policy),
		bridge:  bridge,
	}
	c.pub.init()
	if dataDir != "" {
		c.record = NewBootRecord(dataDir)
	}
	return c, nil
}

// SetArtifact records the location of one boot artifact. Takes effect on
// the next Start; a live machine is unaffected.
func (c *Controller) SetArtifact(kind ArtifactKind, path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.artifacts.Set(kind, path)
}

// Artifacts returns a copy of the current artifact set.
func (c *Controller) Artifacts() ArtifactSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.artifacts
}

// Ready reports whether the kernel, initrd and boot image are all set.
// The persistent disk image is not counted here even though Start requires
// it; callers that need the full set should check Artifacts().Complete().
func (c *Controller) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.artifacts.Kernel != "" && c.artifacts.Initrd != "" && c.artifacts.Boot != ""
}

// Start builds a configuration from the current artifacts, constructs a
// machine and requests boot. A second Start while a machine is live is a
// no-op. Start returns once the boot request is submitted; progress and
// failure after that point surface through the state stream.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.machine != nil {
		c.log.Debug("start ignored, machine already live")
		return nil
	}

	cfg, err := c.builder.Build(c.artifacts, c.bridge)
	if err != nil {
		c.log.WithError(err).Error("configuration failed")
		return err
	}

	m, err := c.hv.Construct(cfg)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConstruct, err)
	}

	if c.sub != nil {
		c.sub.Cancel()
		c.sub = nil
	}

	id := uuid.NewString()
	c.pub.adopt(id)
	c.machine = m
	c.machineID = id

	c.sub = m.SubscribeState(func(st hypervisor.State) {
		c.observe(id, st)
	})

	log := c.log.WithField("machine", id)
	m.RequestStart(func(err error) {
		if err != nil {
			log.WithError(err).Error("boot request failed")
		}
	})

	if c.record != nil {
		if err := c.record.RecordBoot(); err != nil {
			log.WithError(err).Warn("could not record boot")
		}
	}
	log.Info("boot requested")
	return nil
}

// observe handles one state notification. Runs on the subscription's
// delivery goroutine; it must not take c.mu.
func (c *Controller) observe(id string, st hypervisor.State) {
	if !c.pub.publish(id, st) {
		c.log.WithFields(logrus.Fields{
			"machine": id,
			"state":   st,
		}).Debug("dropped stale state notification")
		return
	}
	c.log.WithFields(logrus.Fields{
		"machine": id,
		"state":   st,
	}).Info("state changed")
	if st.Terminal() && c.record != nil {
		if err := c.record.RecordShutdown(st == hypervisor.StateStopped); err != nil {
			c.log.WithError(err).Warn("could not record shutdown")
		}
	}
}

// Stop requests guest shutdown and releases the machine handle. The handle
// and subscription are released even when the stop request fails, so the
// controller can always be restarted; the failure is reported to the
// caller wrapped in ErrStopFailed.
func (c *Controller) Stop() error {
	c.mu.Lock()
	m := c.machine
	id := c.machineID
	if c.sub != nil {
		c.sub.Cancel()
		c.sub = nil
	}
	c.machine = nil
	c.machineID = ""
	c.pub.reset()
	c.mu.Unlock()

	if m == nil {
		return nil
	}
	if err := m.RequestStop(); err != nil {
		c.log.WithFields(logrus.Fields{
			"machine": id,
		}).WithError(err).Warn("stop request failed")
		return fmt.Errorf("%w: %v", ErrStopFailed, err)
	}
	c.log.WithField("machine", id).Info("stop requested")
	return nil
}

// Pause suspends the live machine.
func (c *Controller) Pause() error {
	c.mu.Lock()
	m := c.machine
	c.mu.Unlock()
	if m == nil {
		return ErrNoMachine
	}
	return m.Pause()
}

// Resume continues a paused machine.
func (c *Controller) Resume() error {
	c.mu.Lock()
	m := c.machine
	c.mu.Unlock()
	if m == nil {
		return ErrNoMachine
	}
	return m.Resume()
}

// State returns the most recently published machine state.
func (c *Controller) State() hypervisor.State {
	return c.pub.current()
}

// StateDescription returns a printable state and whether a machine is live.
func (c *Controller) StateDescription() (string, bool) {
	c.mu.Lock()
	live := c.machine != nil
	c.mu.Unlock()
	return c.pub.current().String(), live
}

// Notify returns the state stream. The channel holds only the most recent
// state; a slow consumer sees the latest value, not every transition.
func (c *Controller) Notify() <-chan hypervisor.State {
	return c.pub.notify
}

// Console returns the host-facing console endpoints. They remain valid
// across start/stop cycles.
func (c *Controller) Console() (io.Reader, io.Writer) {
	return c.bridge.HostReader(), c.bridge.HostWriter()
}

// Close stops any live machine and tears down the console bridge.
func (c *Controller) Close() error {
	stopErr := c.Stop()
	closeErr := c.bridge.Close()
	if stopErr != nil {
		return stopErr
	}
	return closeErr
}
