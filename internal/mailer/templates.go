package mailer

import (
	"fmt"
	"html/template"
	"strings"

	"provinator.io/provinator/internal/domain"
)

// RequestMailData is the template context for per-request emails.
type RequestMailData struct {
	RequesterName string
	VMName        string
	TemplateKey   string
	SizeKey       string
	CPUCores      int
	RAMMB         int
	DiskGB        int
	IPAddress     string
	JiraIssueKey  string
	ErrorMessage  string
	BaseURL       string
	RequestID     int64
}

var mailTemplates = template.Must(template.New("mail").Parse(`
{{define "received"}}
<p>Hi {{.RequesterName}},</p>
<p>Your request for VM <strong>{{.VMName}}</strong> ({{.SizeKey}}, template {{.TemplateKey}}) has been received and is awaiting approval.</p>
{{if .JiraIssueKey}}<p>Tracking ticket: {{.JiraIssueKey}}</p>{{end}}
{{if .BaseURL}}<p><a href="{{.BaseURL}}/requests/{{.RequestID}}">View request</a></p>{{end}}
{{end}}

{{define "rejected"}}
<p>Hi {{.RequesterName}},</p>
<p>Your request for VM <strong>{{.VMName}}</strong> was rejected.</p>
{{if .ErrorMessage}}<p>Reason: {{.ErrorMessage}}</p>{{end}}
{{if .JiraIssueKey}}<p>Tracking ticket: {{.JiraIssueKey}}</p>{{end}}
{{end}}

{{define "ready"}}
<p>Hi {{.RequesterName}},</p>
<p>Your VM <strong>{{.VMName}}</strong> is ready.</p>
<ul>
<li>{{.CPUCores}} vCPU, {{.RAMMB}} MB RAM, {{.DiskGB}} GB disk</li>
{{if .IPAddress}}<li>IP address: {{.IPAddress}}</li>{{end}}
</ul>
{{end}}

{{define "failed"}}
<p>Hi {{.RequesterName}},</p>
<p>Provisioning of VM <strong>{{.VMName}}</strong> failed. The operations team has been notified and the request can be retried.</p>
{{if .ErrorMessage}}<p>Error: {{.ErrorMessage}}</p>{{end}}
{{if .JiraIssueKey}}<p>Tracking ticket: {{.JiraIssueKey}}</p>{{end}}
{{end}}
`))

// RenderRequestMail produces subject and body for one of the known
// per-request email kinds: received, rejected, ready, failed.
func RenderRequestMail(kind string, req *domain.VMRequest, baseURL string) (subject, body string, err error) {
	data := RequestMailData{
		RequesterName: req.RequesterName,
		VMName:        req.VMName,
		TemplateKey:   req.TemplateKey,
		SizeKey:       req.SizeKey,
		CPUCores:      req.CPUCores,
		RAMMB:         req.RAMMB,
		DiskGB:        req.DiskGB,
		IPAddress:     req.IPAddress,
		JiraIssueKey:  req.JiraIssueKey,
		ErrorMessage:  req.ErrorMessage,
		BaseURL:       strings.TrimRight(baseURL, "/"),
		RequestID:     req.ID,
	}

	var b strings.Builder
	if err := mailTemplates.ExecuteTemplate(&b, kind, data); err != nil {
		return "", "", fmt.Errorf("render %s mail: %w", kind, err)
	}

	switch kind {
	case "received":
		subject = fmt.Sprintf("VM request received: %s", req.VMName)
	case "rejected":
		subject = fmt.Sprintf("VM request rejected: %s", req.VMName)
	case "ready":
		subject = fmt.Sprintf("VM ready: %s", req.VMName)
	case "failed":
		subject = fmt.Sprintf("VM provisioning failed: %s", req.VMName)
	default:
		return "", "", fmt.Errorf("unknown mail kind %q", kind)
	}
	return subject, b.String(), nil
}
