package hypervisor

import (
	"errors"
	"testing"

	"github.com/luthermonson/go-proxmox"

	"provinator.io/provinator/internal/domain"
	apperrors "provinator.io/provinator/internal/pkg/errors"
	"provinator.io/provinator/internal/pkg/logger"
)

func init() {
	_ = logger.Init("error", "json")
}

func TestForEnvironment(t *testing.T) {
	tests := []struct {
		name     string
		env      domain.Environment
		wantType string
		wantErr  bool
	}{
		{
			name: "proxmox",
			env: domain.Environment{
				Type: domain.EnvTypeProxmox, PVEHost: "pve.example.com",
				PVETokenID: "svc@pam!tok", PVETokenValue: "secret",
			},
			wantType: "proxmox",
		},
		{
			name: "esxi",
			env: domain.Environment{
				Type: domain.EnvTypeESXi, VSphereHost: "esx1.example.com",
				VSphereUser: "root", VSpherePassword: "secret",
			},
			wantType: "esxi",
		},
		{
			name: "vcenter",
			env: domain.Environment{
				Type: domain.EnvTypeVCenter, VSphereHost: "vc.example.com",
				VSphereUser: "svc", VSpherePassword: "secret", VSphereDatacenter: "DC1",
			},
			wantType: "vcenter",
		},
		{
			name:    "unknown type",
			env:     domain.Environment{Type: "hyperv"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drv, err := ForEnvironment(&tt.env)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ForEnvironment() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if drv.Type() != tt.wantType {
				t.Errorf("Type() = %q, want %q", drv.Type(), tt.wantType)
			}
		})
	}
}

func TestVSphere_AllocateIdentifierNotSupported(t *testing.T) {
	drv := NewVSphere(VSphereOptions{Host: "vc.example.com", TypeTag: "vcenter"})
	_, err := drv.AllocateIdentifier(t.Context())
	if !errors.Is(err, apperrors.ErrNotSupported) {
		t.Fatalf("AllocateIdentifier() error = %v, want ErrNotSupported", err)
	}
}

func TestBootDiskKey(t *testing.T) {
	tests := []struct {
		name string
		cfg  *proxmox.VirtualMachineConfig
		want string
	}{
		{"nil config", nil, ""},
		{"scsi first", &proxmox.VirtualMachineConfig{SCSI0: "local-lvm:vm-100-disk-0", VirtIO0: "x"}, "scsi0"},
		{"virtio", &proxmox.VirtualMachineConfig{VirtIO0: "local-lvm:vm-100-disk-0"}, "virtio0"},
		{"ide", &proxmox.VirtualMachineConfig{IDE0: "local-lvm:vm-100-disk-0"}, "ide0"},
		{"no disk", &proxmox.VirtualMachineConfig{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := bootDiskKey(tt.cfg); got != tt.want {
				t.Errorf("bootDiskKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestShouldGrowDisk(t *testing.T) {
	const gb = 1024 * 1024 * 1024
	tests := []struct {
		name         string
		currentBytes uint64
		requestedGB  int
		want         bool
	}{
		{"shrink", 50 * gb, 20, false},
		{"equal", 40 * gb, 40, false},
		{"grow", 40 * gb, 80, true},
		{"unknown current size", 0, 40, true},
		{"zero request", 40 * gb, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shouldGrowDisk(tt.currentBytes, tt.requestedGB); got != tt.want {
				t.Errorf("shouldGrowDisk(%d, %d) = %v, want %v", tt.currentBytes, tt.requestedGB, got, tt.want)
			}
		})
	}
}

func TestPrefixToMask(t *testing.T) {
	tests := []struct {
		prefix int
		want   string
	}{
		{24, "255.255.255.0"},
		{16, "255.255.0.0"},
		{25, "255.255.255.128"},
		{32, "255.255.255.255"},
		{-1, "255.255.255.0"}, // out of range falls back to /24
	}

	for _, tt := range tests {
		if got := prefixToMask(tt.prefix); got != tt.want {
			t.Errorf("prefixToMask(%d) = %q, want %q", tt.prefix, got, tt.want)
		}
	}
}
