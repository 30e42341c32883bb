package provisioner

import (
	"context"
	"errors"
	"strings"
	"testing"

	"provinator.io/provinator/internal/config"
	"provinator.io/provinator/internal/domain"
	"provinator.io/provinator/internal/hypervisor"
	apperrors "provinator.io/provinator/internal/pkg/errors"
	"provinator.io/provinator/internal/pkg/logger"
	"provinator.io/provinator/internal/settings"
	"provinator.io/provinator/internal/store"
	"provinator.io/provinator/internal/template"
)

func init() {
	_ = logger.Init("error", "json")
}

// recordingScheduler captures enqueue calls instead of touching River.
type recordingScheduler struct {
	requests    []int64
	deployments []int64
}

func (s *recordingScheduler) EnqueueRequest(_ context.Context, id int64) error {
	s.requests = append(s.requests, id)
	return nil
}

func (s *recordingScheduler) EnqueueDeployment(_ context.Context, id int64) error {
	s.deployments = append(s.deployments, id)
	return nil
}

type testRig struct {
	engine    *Engine
	store     *store.Memory
	driver    *hypervisor.MockDriver
	scheduler *recordingScheduler
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	mem := store.NewMemory()
	driver := hypervisor.NewMockDriver()
	sched := &recordingScheduler{}

	cfg := &config.Config{}
	cfg.App.NodeSelectionStrategy = "least_memory"
	settingsSvc := settings.NewService(mem, cfg)

	catalog := map[string]config.CatalogTemplate{
		"ubuntu-22": {Key: "ubuntu-22", ProxmoxVMID: 9000, SourceNode: "pve1", CloudInit: true},
		"win2022":   {Key: "win2022", ProxmoxVMID: 9001, SourceNode: "pve1", CloudInit: false},
	}

	engine := NewEngine(
		mem,
		template.NewResolver(mem, catalog),
		settingsSvc,
		func(ctx context.Context, env *domain.Environment) (hypervisor.Driver, error) {
			return driver, nil
		},
		[]domain.SizeClass{
			{Key: "small", CPUCores: 2, RAMMB: 4096, DiskGB: 40},
			{Key: "medium", CPUCores: 4, RAMMB: 8192, DiskGB: 80},
		},
		Options{Scheduler: sched},
	)
	return &testRig{engine: engine, store: mem, driver: driver, scheduler: sched}
}

func (r *testRig) submit(t *testing.T, vmName string) *domain.VMRequest {
	t.Helper()
	req, err := r.engine.SubmitRequest(t.Context(), RequestInput{
		RequesterName:  "Dana",
		RequesterEmail: "dana@example.com",
		VMName:         vmName,
		TemplateKey:    "ubuntu-22",
		SizeKey:        "small",
	})
	if err != nil {
		t.Fatalf("SubmitRequest(%s) error = %v", vmName, err)
	}
	return req
}

func TestSubmitRequest_ResolvesSize(t *testing.T) {
	rig := newTestRig(t)

	req := rig.submit(t, "web-01")
	if req.Status != domain.RequestPendingApproval {
		t.Errorf("Status = %s, want pending_approval", req.Status)
	}
	if req.CPUCores != 2 || req.RAMMB != 4096 || req.DiskGB != 40 {
		t.Errorf("resources = %d/%d/%d, want small (2/4096/40)", req.CPUCores, req.RAMMB, req.DiskGB)
	}
}

func TestSubmitRequest_UnknownSizeAndTemplate(t *testing.T) {
	rig := newTestRig(t)

	_, err := rig.engine.SubmitRequest(t.Context(), RequestInput{
		RequesterName: "Dana", RequesterEmail: "dana@example.com",
		VMName: "web-01", TemplateKey: "ubuntu-22", SizeKey: "galactic",
	})
	if err == nil {
		t.Error("SubmitRequest accepted unknown size")
	}

	_, err = rig.engine.SubmitRequest(t.Context(), RequestInput{
		RequesterName: "Dana", RequesterEmail: "dana@example.com",
		VMName: "web-01", TemplateKey: "no-such", SizeKey: "small",
	})
	if !errors.Is(err, apperrors.ErrUnknownTemplate) {
		t.Errorf("SubmitRequest error = %v, want ErrUnknownTemplate", err)
	}
}

func TestApproveProvisionCompletes(t *testing.T) {
	rig := newTestRig(t)
	ctx := t.Context()
	req := rig.submit(t, "web-01")

	approved, err := rig.engine.ApproveRequest(ctx, req.ID)
	if err != nil {
		t.Fatalf("ApproveRequest() error = %v", err)
	}
	if approved.Status != domain.RequestApproved || approved.ApprovedAt == nil {
		t.Errorf("approved = %s/%v, want approved with timestamp", approved.Status, approved.ApprovedAt)
	}
	if len(rig.scheduler.requests) != 1 || rig.scheduler.requests[0] != req.ID {
		t.Errorf("scheduler.requests = %v, want [%d]", rig.scheduler.requests, req.ID)
	}

	if err := rig.engine.ProvisionRequest(ctx, req.ID); err != nil {
		t.Fatalf("ProvisionRequest() error = %v", err)
	}

	got, err := rig.store.GetRequest(ctx, req.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.RequestCompleted {
		t.Fatalf("Status = %s, want completed", got.Status)
	}
	if got.HypervisorVMID == "" || got.HypervisorHost != "node1" || got.CompletedAt == nil {
		t.Errorf("completion record incomplete: vmid=%q host=%q completed_at=%v",
			got.HypervisorVMID, got.HypervisorHost, got.CompletedAt)
	}
	if len(rig.driver.PoweredOn) != 1 {
		t.Errorf("PoweredOn = %d VMs, want 1", len(rig.driver.PoweredOn))
	}
}

func TestApproveRequest_GuardsTerminalStates(t *testing.T) {
	rig := newTestRig(t)
	ctx := t.Context()
	req := rig.submit(t, "web-01")

	if _, err := rig.engine.RejectRequest(ctx, req.ID, "no budget"); err != nil {
		t.Fatalf("RejectRequest() error = %v", err)
	}
	if _, err := rig.engine.ApproveRequest(ctx, req.ID); !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Fatalf("ApproveRequest after reject error = %v, want ErrInvalidTransition", err)
	}
}

func TestProvisionRequest_FailureRecordsTruncatedError(t *testing.T) {
	rig := newTestRig(t)
	ctx := t.Context()
	req := rig.submit(t, "web-01")

	rig.driver.FailCloneFor = map[string]error{
		"web-01": errors.New(strings.Repeat("x", 2000)),
	}

	if _, err := rig.engine.ApproveRequest(ctx, req.ID); err != nil {
		t.Fatal(err)
	}
	if err := rig.engine.ProvisionRequest(ctx, req.ID); err == nil {
		t.Fatal("ProvisionRequest() succeeded, want clone failure")
	}

	got, err := rig.store.GetRequest(ctx, req.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.RequestProvisioningFailed {
		t.Errorf("Status = %s, want provisioning_failed", got.Status)
	}
	if len(got.ErrorMessage) != 1000 {
		t.Errorf("len(ErrorMessage) = %d, want truncated to 1000", len(got.ErrorMessage))
	}
}

func TestRetryRequest_OnlyFromFailed(t *testing.T) {
	rig := newTestRig(t)
	ctx := t.Context()
	req := rig.submit(t, "web-01")

	// Pending requests cannot be retried.
	if _, err := rig.engine.RetryRequest(ctx, req.ID); !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Fatalf("RetryRequest on pending error = %v, want ErrInvalidTransition", err)
	}

	rig.driver.FailCloneFor = map[string]error{"web-01": errors.New("node out of disk")}
	if _, err := rig.engine.ApproveRequest(ctx, req.ID); err != nil {
		t.Fatal(err)
	}
	_ = rig.engine.ProvisionRequest(ctx, req.ID)

	rig.driver.FailCloneFor = nil
	retried, err := rig.engine.RetryRequest(ctx, req.ID)
	if err != nil {
		t.Fatalf("RetryRequest() error = %v", err)
	}
	if retried.Status != domain.RequestApproved || retried.ErrorMessage != "" {
		t.Errorf("retried = %s/%q, want approved with cleared error", retried.Status, retried.ErrorMessage)
	}

	if err := rig.engine.ProvisionRequest(ctx, req.ID); err != nil {
		t.Fatalf("ProvisionRequest after retry error = %v", err)
	}
	got, _ := rig.store.GetRequest(ctx, req.ID)
	if got.Status != domain.RequestCompleted {
		t.Errorf("Status = %s, want completed after retry", got.Status)
	}
}

func TestProvision_SkipsNetworkWithoutCloudInit(t *testing.T) {
	rig := newTestRig(t)
	ctx := t.Context()

	req, err := rig.engine.SubmitRequest(ctx, RequestInput{
		RequesterName: "Dana", RequesterEmail: "dana@example.com",
		VMName: "db-01", TemplateKey: "win2022", SizeKey: "medium",
	})
	if err != nil {
		t.Fatal(err)
	}
	// An address on file alone must not trigger network configuration.
	req.IPAddress = "10.0.0.20"
	if err := rig.store.SaveRequest(ctx, req); err != nil {
		t.Fatal(err)
	}

	if _, err := rig.engine.ApproveRequest(ctx, req.ID); err != nil {
		t.Fatal(err)
	}
	if err := rig.engine.ProvisionRequest(ctx, req.ID); err != nil {
		t.Fatal(err)
	}
	if len(rig.driver.Networked) != 0 {
		t.Errorf("ConfigureNetwork called %d times for non-cloud-init template, want 0", len(rig.driver.Networked))
	}
}

func TestProvision_VSphereIdentifierSkip(t *testing.T) {
	rig := newTestRig(t)
	ctx := t.Context()
	rig.driver.AllocateUnsupported = true

	req := rig.submit(t, "web-01")
	if _, err := rig.engine.ApproveRequest(ctx, req.ID); err != nil {
		t.Fatal(err)
	}
	if err := rig.engine.ProvisionRequest(ctx, req.ID); err != nil {
		t.Fatalf("ProvisionRequest() error = %v", err)
	}
	if len(rig.driver.Cloned) != 1 || rig.driver.Cloned[0].NewID != "" {
		t.Errorf("clone NewID = %q, want empty when allocation is unsupported", rig.driver.Cloned[0].NewID)
	}
}
