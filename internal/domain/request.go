// Package domain holds the persistent records and state machine vocabulary
// for VM provisioning.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// RequestStatus is the lifecycle state of a single VM request.
type RequestStatus string

const (
	RequestPendingApproval    RequestStatus = "pending_approval"
	RequestApproved           RequestStatus = "approved"
	RequestRejected           RequestStatus = "rejected"
	RequestProvisioning       RequestStatus = "provisioning"
	RequestCompleted          RequestStatus = "completed"
	RequestProvisioningFailed RequestStatus = "provisioning_failed"
)

// Retryable reports whether a request in this state may be retried.
// Retry re-enters Approved; it is never automatic.
func (s RequestStatus) Retryable() bool {
	return s == RequestProvisioningFailed
}

// Terminal reports whether the state accepts no further transitions
// except an explicit retry.
func (s RequestStatus) Terminal() bool {
	switch s {
	case RequestRejected, RequestCompleted, RequestProvisioningFailed:
		return true
	}
	return false
}

// VMRequest is one requested virtual machine. CPU/RAM/disk are resolved
// from the size class at submission time and immutable afterwards.
type VMRequest struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	Reference uuid.UUID `gorm:"type:uuid;uniqueIndex" json:"reference"`

	RequesterName  string `gorm:"size:255" json:"requester_name"`
	RequesterEmail string `gorm:"size:255" json:"requester_email"`

	VMName      string `gorm:"size:63;index" json:"vm_name"`
	TemplateKey string `gorm:"size:255" json:"template_key"`
	SizeKey     string `gorm:"size:64" json:"size_key"`
	CPUCores    int    `json:"cpu_cores"`
	RAMMB       int    `json:"ram_mb"`
	DiskGB      int    `json:"disk_gb"`

	// IPAddress is allocated from IPAM at submission when enabled.
	IPAddress     string `gorm:"size:45" json:"ip_address,omitempty"`
	IPAMAddressID *int64 `json:"ipam_address_id,omitempty"`

	JiraIssueKey string `gorm:"size:32;index" json:"jira_issue_key,omitempty"`

	Status       RequestStatus `gorm:"size:32;index" json:"status"`
	ErrorMessage string        `gorm:"size:1000" json:"error_message,omitempty"`

	// HypervisorVMID and HypervisorHost are recorded on success in the
	// same write as the Completed transition.
	HypervisorVMID string `gorm:"size:128" json:"hypervisor_vm_id,omitempty"`
	HypervisorHost string `gorm:"size:255" json:"hypervisor_host,omitempty"`

	EnvironmentID *int64 `gorm:"index" json:"environment_id,omitempty"`
	DeploymentID  *int64 `gorm:"index" json:"deployment_id,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TableName pins the table name independent of gorm pluralization rules.
func (VMRequest) TableName() string { return "vm_requests" }
