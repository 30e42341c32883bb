// Package hypervisor abstracts the Proxmox VE and VMware vSphere APIs
// behind one capability interface. The provisioning pipeline never
// branches on hypervisor types; the factory and the capability probes
// (ErrNotSupported) are the only vendor-specific seams.
package hypervisor

import (
	"context"
	"time"
)

// Task tracking defaults. Vendor tasks are polled, never retried.
const (
	// PollInterval is the wait loop interval for vendor tasks.
	PollInterval = 5 * time.Second

	// DefaultCloneTimeout bounds template clone tasks.
	DefaultCloneTimeout = 600 * time.Second

	// DefaultPowerOnTimeout bounds power-on tasks.
	DefaultPowerOnTimeout = 120 * time.Second
)

// shouldGrowDisk reports whether a resize to requestedGB actually grows
// the disk. Equal or smaller requests are skipped; a shrink is never
// issued to the hypervisor.
func shouldGrowDisk(currentBytes uint64, requestedGB int) bool {
	if requestedGB <= 0 {
		return false
	}
	return uint64(requestedGB)*1024*1024*1024 > currentBytes
}

// Target is one schedulable node (Proxmox) or host (vSphere) with a
// point-in-time memory snapshot.
type Target struct {
	Name        string
	Online      bool
	UsedMemory  uint64
	TotalMemory uint64
}

// VMRef identifies a VM on its hypervisor: numeric VMID on Proxmox,
// managed object reference on vSphere.
type VMRef struct {
	ID   string
	Node string
	Name string
}

// CloneRequest carries everything a driver needs to clone a template.
// Exactly one of (SourceVMID, SourceNode) or TemplateRef is set,
// matching the driver family.
type CloneRequest struct {
	// Proxmox template artifact.
	SourceVMID int
	SourceNode string

	// vSphere template inventory path or name.
	TemplateRef string

	Name       string
	TargetNode string

	// NewID is the pre-allocated identifier, when the driver supports
	// explicit allocation.
	NewID string

	CPUCores int
	RAMMB    int
}

// NetworkConfig is the static IP layout applied via cloud-init or guest
// customization. PrefixLen 0 means /24.
type NetworkConfig struct {
	IPAddress string
	PrefixLen int
	Gateway   string
}

// TemplateInfo is a template artifact discovered on the hypervisor.
type TemplateInfo struct {
	ID   string
	Name string
	Node string
}

// PendingClone is an opaque handle for an in-flight clone task. Only the
// driver that issued it can wait on it.
type PendingClone interface {
	isPendingClone()
}

// Driver is the capability surface shared by all hypervisor families.
// Vendor failures are wrapped as HypervisorError; drivers never retry.
type Driver interface {
	// Type returns the environment type tag the driver serves.
	Type() string

	// Version probes connectivity and returns the product version.
	Version(ctx context.Context) (string, error)

	// ListTargets returns the candidate placement set with memory stats.
	ListTargets(ctx context.Context) ([]Target, error)

	// ListTemplates discovers template artifacts for the admin surface.
	ListTemplates(ctx context.Context) ([]TemplateInfo, error)

	// AllocateIdentifier reserves a VM identifier ahead of cloning.
	// Drivers whose platform assigns identifiers implicitly return
	// ErrNotSupported and the pipeline skips the step.
	AllocateIdentifier(ctx context.Context) (string, error)

	// CloneTemplate starts the clone and returns a handle to wait on.
	CloneTemplate(ctx context.Context, req CloneRequest) (PendingClone, error)

	// WaitForCompletion blocks until the clone finishes or the timeout
	// elapses, returning the reference of the new VM.
	WaitForCompletion(ctx context.Context, pending PendingClone, timeout time.Duration) (VMRef, error)

	// Resize applies CPU and RAM unconditionally. Disk only grows; a
	// shrink request is skipped with a telemetry warning.
	Resize(ctx context.Context, ref VMRef, cpuCores, ramMB, diskGB int) error

	// ConfigureNetwork applies a static IP via the platform mechanism.
	ConfigureNetwork(ctx context.Context, ref VMRef, cfg NetworkConfig) error

	// PowerOn starts the VM and waits for the power task to finish.
	PowerOn(ctx context.Context, ref VMRef, timeout time.Duration) error

	// Close releases the vendor session, if any.
	Close(ctx context.Context)
}
