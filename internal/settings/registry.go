// Package settings provides the runtime settings store: a registry of
// known keys grouped by integration, with database overrides layered on
// top of config defaults.
package settings

// Definition describes one registered setting key.
type Definition struct {
	Key         string `json:"key"`
	Group       string `json:"group"`
	Secret      bool   `json:"secret"`
	Description string `json:"description"`
}

// Setting groups.
const (
	GroupProxmox = "proxmox"
	GroupJira    = "jira"
	GroupIPAM    = "phpipam"
	GroupSMTP    = "smtp"
	GroupApp     = "app"
)

// Well-known keys referenced in code.
const (
	KeyAppBaseURL            = "APP_BASE_URL"
	KeyNodeSelectionStrategy = "NODE_SELECTION_STRATEGY"
	KeyNetworkGateway        = "NETWORK_GATEWAY"
	KeyJiraApproveStatus     = "JIRA_APPROVE_STATUS"
	KeyJiraRejectStatus      = "JIRA_REJECT_STATUS"
	KeyJiraWebhookSecret     = "JIRA_WEBHOOK_SECRET"
)

// Registry lists every setting the service accepts. Unregistered keys
// are rejected on write.
var Registry = []Definition{
	{Key: "PROXMOX_HOST", Group: GroupProxmox, Description: "Proxmox API host for the fallback connection"},
	{Key: "PROXMOX_TOKEN_ID", Group: GroupProxmox, Description: "Proxmox API token ID (user@realm!name)"},
	{Key: "PROXMOX_TOKEN_VALUE", Group: GroupProxmox, Secret: true, Description: "Proxmox API token secret"},
	{Key: "PROXMOX_VERIFY_SSL", Group: GroupProxmox, Description: "Verify the Proxmox TLS certificate"},

	{Key: "JIRA_BASE_URL", Group: GroupJira, Description: "Jira Cloud base URL"},
	{Key: "JIRA_EMAIL", Group: GroupJira, Description: "Jira service account email"},
	{Key: "JIRA_API_TOKEN", Group: GroupJira, Secret: true, Description: "Jira API token"},
	{Key: "JIRA_PROJECT_KEY", Group: GroupJira, Description: "Project receiving provisioning issues"},
	{Key: "JIRA_ISSUE_TYPE", Group: GroupJira, Description: "Issue type for provisioning tickets"},
	{Key: KeyJiraApproveStatus, Group: GroupJira, Description: "Workflow status mirrored on approval"},
	{Key: KeyJiraRejectStatus, Group: GroupJira, Description: "Workflow status mirrored on rejection"},
	{Key: KeyJiraWebhookSecret, Group: GroupJira, Secret: true, Description: "Shared secret for the Jira webhook"},

	{Key: "PHPIPAM_URL", Group: GroupIPAM, Description: "phpIPAM base URL"},
	{Key: "PHPIPAM_APP_ID", Group: GroupIPAM, Description: "phpIPAM API application ID"},
	{Key: "PHPIPAM_TOKEN", Group: GroupIPAM, Secret: true, Description: "phpIPAM API token"},
	{Key: "PHPIPAM_SUBNET_ID", Group: GroupIPAM, Description: "Subnet for automatic IP allocation"},
	{Key: "PHPIPAM_ENABLED", Group: GroupIPAM, Description: "Allocate IPs at submission"},

	{Key: "SMTP_HOST", Group: GroupSMTP, Description: "SMTP relay host"},
	{Key: "SMTP_PORT", Group: GroupSMTP, Description: "SMTP relay port"},
	{Key: "SMTP_USERNAME", Group: GroupSMTP, Description: "SMTP username"},
	{Key: "SMTP_PASSWORD", Group: GroupSMTP, Secret: true, Description: "SMTP password"},
	{Key: "SMTP_USE_TLS", Group: GroupSMTP, Description: "Use STARTTLS"},
	{Key: "SMTP_FROM", Group: GroupSMTP, Description: "Sender address for notifications"},
	{Key: "SMTP_ENABLED", Group: GroupSMTP, Description: "Send notification emails"},

	{Key: KeyAppBaseURL, Group: GroupApp, Description: "External base URL used in emails and tickets"},
	{Key: KeyNodeSelectionStrategy, Group: GroupApp, Description: "Placement strategy (least_memory)"},
	{Key: KeyNetworkGateway, Group: GroupApp, Description: "Default gateway for static IP configuration"},
}

var registryIndex = func() map[string]Definition {
	idx := make(map[string]Definition, len(Registry))
	for _, d := range Registry {
		idx[d.Key] = d
	}
	return idx
}()

// Lookup returns the definition for key.
func Lookup(key string) (Definition, bool) {
	d, ok := registryIndex[key]
	return d, ok
}
