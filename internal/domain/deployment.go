package domain

import (
	"time"

	"github.com/google/uuid"
)

// DeploymentStatus is the lifecycle state of a multi-VM deployment.
type DeploymentStatus string

const (
	DeploymentPendingApproval    DeploymentStatus = "pending_approval"
	DeploymentApproved           DeploymentStatus = "approved"
	DeploymentRejected           DeploymentStatus = "rejected"
	DeploymentProvisioning       DeploymentStatus = "provisioning"
	DeploymentCompleted          DeploymentStatus = "completed"
	DeploymentPartiallyCompleted DeploymentStatus = "partially_completed"
	DeploymentFailed             DeploymentStatus = "failed"
)

// Retryable reports whether a deployment in this state may be retried.
func (s DeploymentStatus) Retryable() bool {
	return s == DeploymentFailed || s == DeploymentPartiallyCompleted
}

// Deployment groups member VM requests that are approved, rejected and
// provisioned as a unit. Members keep their own per-VM status so a batch
// can partially succeed.
type Deployment struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	Reference uuid.UUID `gorm:"type:uuid;uniqueIndex" json:"reference"`

	Name           string `gorm:"size:255" json:"name"`
	RequesterName  string `gorm:"size:255" json:"requester_name"`
	RequesterEmail string `gorm:"size:255" json:"requester_email"`

	JiraIssueKey string `gorm:"size:32;index" json:"jira_issue_key,omitempty"`

	Status       DeploymentStatus `gorm:"size:32;index" json:"status"`
	ErrorMessage string           `gorm:"size:1000" json:"error_message,omitempty"`

	EnvironmentID *int64 `gorm:"index" json:"environment_id,omitempty"`

	Requests []VMRequest `gorm:"foreignKey:DeploymentID" json:"requests,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TableName pins the table name independent of gorm pluralization rules.
func (Deployment) TableName() string { return "deployments" }
