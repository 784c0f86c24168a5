package machine

import (
	"sync"

	"github.com/javanstorm/vmbridge/pkg/hypervisor"
)

// fakeHypervisor is a scripted in-process hypervisor. Failure points are
// injected per call site; constructed machines are retained for inspection.
type fakeHypervisor struct {
	caps         hypervisor.HostCapabilities
	openErr      map[string]error
	validateErr  error
	constructErr error
	startErr     error
	stopErr      error

	mu          sync.Mutex
	constructed []*fakeMachine
}

func newFakeHypervisor() *fakeHypervisor {
	return &fakeHypervisor{
		caps: hypervisor.HostCapabilities{
			MaxCPUCount:   8,
			MinMemorySize: 64 * 1024 * 1024,
			MaxMemorySize: 16 * 1024 * 1024 * 1024,
		},
		openErr: make(map[string]error),
	}
}

func (f *fakeHypervisor) Host() hypervisor.HostCapabilities { return f.caps }

func (f *fakeHypervisor) OpenReadOnly(path string) (hypervisor.Attachment, error) {
	if err := f.openErr[path]; err != nil {
		return nil, err
	}
	return fakeAttachment{path: path, readOnly: true}, nil
}

func (f *fakeHypervisor) OpenReadWrite(path string) (hypervisor.Attachment, error) {
	if err := f.openErr[path]; err != nil {
		return nil, err
	}
	return fakeAttachment{path: path}, nil
}

func (f *fakeHypervisor) Validate(cfg *hypervisor.Config) error {
	if f.validateErr != nil {
		return f.validateErr
	}
	return cfg.Validate()
}

func (f *fakeHypervisor) Construct(cfg *hypervisor.Config) (hypervisor.Machine, error) {
	if f.constructErr != nil {
		return nil, f.constructErr
	}
	m := &fakeMachine{startErr: f.startErr, stopErr: f.stopErr}
	f.mu.Lock()
	f.constructed = append(f.constructed, m)
	f.mu.Unlock()
	return m, nil
}

func (f *fakeHypervisor) machineCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.constructed)
}

func (f *fakeHypervisor) lastMachine() *fakeMachine {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.constructed) == 0 {
		return nil
	}
	return f.constructed[len(f.constructed)-1]
}

type fakeAttachment struct {
	path     string
	readOnly bool
}

func (a fakeAttachment) Path() string   { return a.path }
func (a fakeAttachment) ReadOnly() bool { return a.readOnly }

// fakeMachine delivers scripted state notifications synchronously from
// emit, so tests observe transitions deterministically.
type fakeMachine struct {
	startErr error
	stopErr  error

	mu      sync.Mutex
	started bool
	stopped bool
	paused  bool
	subs    []*fakeSubscription
}

func (m *fakeMachine) RequestStart(done func(error)) {
	m.mu.Lock()
	m.started = true
	m.mu.Unlock()
	done(m.startErr)
}

func (m *fakeMachine) RequestStop() error {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
	return m.stopErr
}

func (m *fakeMachine) Pause() error {
	m.mu.Lock()
	m.paused = true
	m.mu.Unlock()
	return nil
}

func (m *fakeMachine) Resume() error {
	m.mu.Lock()
	m.paused = false
	m.mu.Unlock()
	return nil
}

func (m *fakeMachine) SubscribeState(fn func(hypervisor.State)) hypervisor.Subscription {
	sub := &fakeSubscription{fn: fn}
	m.mu.Lock()
	m.subs = append(m.subs, sub)
	m.mu.Unlock()
	sub.deliver(hypervisor.StateUnconfigured)
	return sub
}

// emit pushes a state to every live subscription.
func (m *fakeMachine) emit(st hypervisor.State) {
	m.mu.Lock()
	subs := append([]*fakeSubscription(nil), m.subs...)
	m.mu.Unlock()
	for _, sub := range subs {
		sub.deliver(st)
	}
}

func (m *fakeMachine) activeSubs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, sub := range m.subs {
		if !sub.isCancelled() {
			n++
		}
	}
	return n
}

type fakeSubscription struct {
	mu        sync.Mutex
	cancelled bool
	fn        func(hypervisor.State)
}

func (s *fakeSubscription) deliver(st hypervisor.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled {
		return
	}
	s.fn(st)
}

func (s *fakeSubscription) Cancel() {
	s.mu.Lock()
	s.cancelled = true
	s.mu.Unlock()
}

func (s *fakeSubscription) isCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}
