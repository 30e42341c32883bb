package provisioner

import (
	"errors"
	"testing"

	"provinator.io/provinator/internal/domain"
	apperrors "provinator.io/provinator/internal/pkg/errors"
)

func (r *testRig) submitDeployment(t *testing.T, names ...string) *domain.Deployment {
	t.Helper()
	vms := make([]DeploymentVMInput, 0, len(names))
	for _, n := range names {
		vms = append(vms, DeploymentVMInput{VMName: n, TemplateKey: "ubuntu-22", SizeKey: "small"})
	}
	dep, err := r.engine.SubmitDeployment(t.Context(), DeploymentInput{
		Name:           "cluster",
		RequesterName:  "Dana",
		RequesterEmail: "dana@example.com",
		VMs:            vms,
	})
	if err != nil {
		t.Fatalf("SubmitDeployment() error = %v", err)
	}
	return dep
}

func TestApproveDeployment_ApprovesMembers(t *testing.T) {
	rig := newTestRig(t)
	ctx := t.Context()
	dep := rig.submitDeployment(t, "cluster-01", "cluster-02")

	got, err := rig.engine.ApproveDeployment(ctx, dep.ID)
	if err != nil {
		t.Fatalf("ApproveDeployment() error = %v", err)
	}
	if got.Status != domain.DeploymentApproved {
		t.Errorf("Status = %s, want approved", got.Status)
	}
	for _, m := range got.Requests {
		if m.Status != domain.RequestApproved {
			t.Errorf("member %s = %s, want approved", m.VMName, m.Status)
		}
	}
	if len(rig.scheduler.deployments) != 1 {
		t.Errorf("scheduler.deployments = %v, want one entry", rig.scheduler.deployments)
	}
}

func TestProvisionDeployment_AllSucceed(t *testing.T) {
	rig := newTestRig(t)
	ctx := t.Context()
	dep := rig.submitDeployment(t, "cluster-01", "cluster-02", "cluster-03")

	if _, err := rig.engine.ApproveDeployment(ctx, dep.ID); err != nil {
		t.Fatal(err)
	}
	if err := rig.engine.ProvisionDeployment(ctx, dep.ID); err != nil {
		t.Fatalf("ProvisionDeployment() error = %v", err)
	}

	got, err := rig.store.GetDeployment(ctx, dep.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.DeploymentCompleted || got.CompletedAt == nil {
		t.Errorf("deployment = %s/%v, want completed with timestamp", got.Status, got.CompletedAt)
	}
}

func TestProvisionDeployment_AllFail(t *testing.T) {
	rig := newTestRig(t)
	ctx := t.Context()
	dep := rig.submitDeployment(t, "cluster-01", "cluster-02")

	rig.driver.FailCloneFor = map[string]error{
		"cluster-01": errors.New("storage full"),
		"cluster-02": errors.New("storage full"),
	}

	if _, err := rig.engine.ApproveDeployment(ctx, dep.ID); err != nil {
		t.Fatal(err)
	}
	if err := rig.engine.ProvisionDeployment(ctx, dep.ID); err != nil {
		t.Fatal(err)
	}

	got, _ := rig.store.GetDeployment(ctx, dep.ID)
	if got.Status != domain.DeploymentFailed {
		t.Errorf("Status = %s, want failed", got.Status)
	}
	if got.ErrorMessage != "All VMs failed to provision" {
		t.Errorf("ErrorMessage = %q", got.ErrorMessage)
	}
	if got.CompletedAt != nil {
		t.Errorf("CompletedAt = %v, want nil when no VM provisioned", got.CompletedAt)
	}
}

func TestProvisionDeployment_PartialFailureThenRetryCompletes(t *testing.T) {
	rig := newTestRig(t)
	ctx := t.Context()
	dep := rig.submitDeployment(t, "cluster-01", "cluster-02")

	rig.driver.FailPowerOnFor = map[string]error{"cluster-02": errors.New("power task aborted")}

	if _, err := rig.engine.ApproveDeployment(ctx, dep.ID); err != nil {
		t.Fatal(err)
	}
	if err := rig.engine.ProvisionDeployment(ctx, dep.ID); err != nil {
		t.Fatal(err)
	}

	got, _ := rig.store.GetDeployment(ctx, dep.ID)
	if got.Status != domain.DeploymentPartiallyCompleted {
		t.Fatalf("Status = %s, want partially_completed", got.Status)
	}
	if got.ErrorMessage != "1/2 VMs failed" {
		t.Errorf("ErrorMessage = %q, want \"1/2 VMs failed\"", got.ErrorMessage)
	}
	// Partial completion ends the run, so it carries a timestamp.
	if got.CompletedAt == nil {
		t.Error("CompletedAt = nil, want set on partial completion")
	}

	// The survivor keeps its VM, the failed member is failed.
	var firstVMID string
	for _, m := range got.Requests {
		switch m.VMName {
		case "cluster-01":
			if m.Status != domain.RequestCompleted {
				t.Errorf("cluster-01 = %s, want completed", m.Status)
			}
			firstVMID = m.HypervisorVMID
		case "cluster-02":
			if m.Status != domain.RequestProvisioningFailed {
				t.Errorf("cluster-02 = %s, want provisioning_failed", m.Status)
			}
		}
	}

	// Retry provisions only the failed member.
	rig.driver.FailPowerOnFor = nil
	cloneCountBefore := len(rig.driver.Cloned)
	if _, err := rig.engine.RetryDeployment(ctx, dep.ID); err != nil {
		t.Fatalf("RetryDeployment() error = %v", err)
	}
	if err := rig.engine.ProvisionDeployment(ctx, dep.ID); err != nil {
		t.Fatal(err)
	}

	got, _ = rig.store.GetDeployment(ctx, dep.ID)
	if got.Status != domain.DeploymentCompleted {
		t.Fatalf("Status after retry = %s, want completed", got.Status)
	}
	if clones := len(rig.driver.Cloned) - cloneCountBefore; clones != 1 {
		t.Errorf("retry cloned %d VMs, want 1 (completed member skipped)", clones)
	}
	for _, m := range got.Requests {
		if m.VMName == "cluster-01" && m.HypervisorVMID != firstVMID {
			t.Errorf("cluster-01 VM id changed on retry: %s -> %s", firstVMID, m.HypervisorVMID)
		}
	}
}

func TestRetryDeployment_OnlyFromFailedStates(t *testing.T) {
	rig := newTestRig(t)
	dep := rig.submitDeployment(t, "cluster-01")

	if _, err := rig.engine.RetryDeployment(t.Context(), dep.ID); !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Fatalf("RetryDeployment on pending error = %v, want ErrInvalidTransition", err)
	}
}

func TestRejectDeployment_RejectsMembers(t *testing.T) {
	rig := newTestRig(t)
	ctx := t.Context()
	dep := rig.submitDeployment(t, "cluster-01", "cluster-02")

	got, err := rig.engine.RejectDeployment(ctx, dep.ID, "quota exceeded")
	if err != nil {
		t.Fatalf("RejectDeployment() error = %v", err)
	}
	if got.Status != domain.DeploymentRejected {
		t.Errorf("Status = %s, want rejected", got.Status)
	}
	for _, m := range got.Requests {
		if m.Status != domain.RequestRejected {
			t.Errorf("member %s = %s, want rejected", m.VMName, m.Status)
		}
	}
}

func TestMemberLifecycle_BlockedOutsideDeployment(t *testing.T) {
	rig := newTestRig(t)
	ctx := t.Context()
	dep := rig.submitDeployment(t, "cluster-01")

	memberID := dep.Requests[0].ID
	if _, err := rig.engine.ApproveRequest(ctx, memberID); err == nil {
		t.Error("ApproveRequest accepted a deployment member")
	}
	if _, err := rig.engine.RejectRequest(ctx, memberID, "x"); err == nil {
		t.Error("RejectRequest accepted a deployment member")
	}
}
