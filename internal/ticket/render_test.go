package ticket

import (
	"strings"
	"testing"

	"provinator.io/provinator/internal/domain"
)

func TestRequestDescription(t *testing.T) {
	req := &domain.VMRequest{
		ID:             42,
		RequesterName:  "Dana Ops",
		RequesterEmail: "dana@example.com",
		VMName:         "web-01",
		TemplateKey:    "ubuntu-22",
		SizeKey:        "medium",
		CPUCores:       4,
		RAMMB:          8192,
		DiskGB:         80,
		IPAddress:      "10.0.0.15",
	}

	got := RequestDescription(req, "https://provinator.example.com/")
	for _, want := range []string{
		"web-01",
		"4 vCPU, 8192 MB RAM, 80 GB disk",
		"10.0.0.15",
		"https://provinator.example.com/requests/42",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("description missing %q:\n%s", want, got)
		}
	}
}

func TestDeploymentSummaryCountsMembers(t *testing.T) {
	dep := &domain.Deployment{
		Name: "cluster",
		Requests: []domain.VMRequest{
			{VMName: "cluster-01"},
			{VMName: "cluster-02"},
		},
	}
	if got := DeploymentSummary(dep); got != "Deployment request: cluster (2 VMs)" {
		t.Errorf("DeploymentSummary() = %q", got)
	}
}
