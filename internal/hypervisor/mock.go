package hypervisor

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	apperrors "provinator.io/provinator/internal/pkg/errors"
)

// MockDriver implements Driver for testing without a hypervisor.
// Failures are injected per VM name so multi-VM batches can partially
// fail deterministically.
type MockDriver struct {
	TypeTag   string
	Targets   []Target
	Templates []TemplateInfo

	// AllocateUnsupported makes the driver behave like vSphere.
	AllocateUnsupported bool

	// FailCloneFor, FailPowerOnFor inject failures keyed by VM name.
	FailCloneFor   map[string]error
	FailPowerOnFor map[string]error

	mu         sync.Mutex
	nextID     int
	Cloned     []CloneRequest
	Resized    []VMRef
	Networked  []VMRef
	PoweredOn  []VMRef
	Identifers []string
}

type mockPending struct {
	ref VMRef
	err error
}

func (*mockPending) isPendingClone() {}

// NewMockDriver creates a mock with a single online target.
func NewMockDriver() *MockDriver {
	return &MockDriver{
		TypeTag: "proxmox",
		Targets: []Target{{Name: "node1", Online: true, UsedMemory: 8 << 30, TotalMemory: 64 << 30}},
		nextID:  100,
	}
}

func (m *MockDriver) Type() string { return m.TypeTag }

func (m *MockDriver) Version(ctx context.Context) (string, error) { return "mock-1.0", nil }

func (m *MockDriver) ListTargets(ctx context.Context) ([]Target, error) {
	return m.Targets, nil
}

func (m *MockDriver) ListTemplates(ctx context.Context) ([]TemplateInfo, error) {
	return m.Templates, nil
}

func (m *MockDriver) AllocateIdentifier(ctx context.Context) (string, error) {
	if m.AllocateUnsupported {
		return "", apperrors.ErrNotSupported
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := strconv.Itoa(m.nextID)
	m.Identifers = append(m.Identifers, id)
	return id, nil
}

func (m *MockDriver) CloneTemplate(ctx context.Context, req CloneRequest) (PendingClone, error) {
	m.mu.Lock()
	m.Cloned = append(m.Cloned, req)
	m.mu.Unlock()

	if err, ok := m.FailCloneFor[req.Name]; ok {
		return nil, err
	}

	id := req.NewID
	if id == "" {
		id = "moref-" + req.Name
	}
	return &mockPending{ref: VMRef{ID: id, Node: req.TargetNode, Name: req.Name}}, nil
}

func (m *MockDriver) WaitForCompletion(ctx context.Context, pending PendingClone, timeout time.Duration) (VMRef, error) {
	p, ok := pending.(*mockPending)
	if !ok {
		return VMRef{}, fmt.Errorf("foreign clone handle %T", pending)
	}
	if p.err != nil {
		return VMRef{}, p.err
	}
	return p.ref, nil
}

func (m *MockDriver) Resize(ctx context.Context, ref VMRef, cpuCores, ramMB, diskGB int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Resized = append(m.Resized, ref)
	return nil
}

func (m *MockDriver) ConfigureNetwork(ctx context.Context, ref VMRef, cfg NetworkConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Networked = append(m.Networked, ref)
	return nil
}

func (m *MockDriver) PowerOn(ctx context.Context, ref VMRef, timeout time.Duration) error {
	if err, ok := m.FailPowerOnFor[ref.Name]; ok {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PoweredOn = append(m.PoweredOn, ref)
	return nil
}

func (m *MockDriver) Close(ctx context.Context) {}
