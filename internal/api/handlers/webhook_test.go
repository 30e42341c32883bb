package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"provinator.io/provinator/internal/domain"
	"provinator.io/provinator/internal/settings"
)

func webhookBody(issueKey, status string) string {
	return fmt.Sprintf(`{
		"webhookEvent": "jira:issue_updated",
		"issue": {"key": %q, "fields": {"status": {"name": %q}}}
	}`, issueKey, status)
}

func submitTracked(t *testing.T, rig *apiRig, issueKey string) *domain.VMRequest {
	t.Helper()
	w := rig.do(t, http.MethodPost, "/requests", validRequestBody)
	if w.Code != http.StatusCreated {
		t.Fatalf("submit status = %d", w.Code)
	}
	var req domain.VMRequest
	_ = json.Unmarshal(w.Body.Bytes(), &req)

	stored, err := rig.store.GetRequest(context.Background(), req.ID)
	if err != nil {
		t.Fatal(err)
	}
	stored.JiraIssueKey = issueKey
	if err := rig.store.SaveRequest(context.Background(), stored); err != nil {
		t.Fatal(err)
	}
	return stored
}

func TestJiraWebhook_ApprovesRequest(t *testing.T) {
	rig := newAPIRig(t)
	req := submitTracked(t, rig, "PROV-101")

	w := rig.do(t, http.MethodPost, "/webhooks/jira", webhookBody("PROV-101", "Approved"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var body struct {
		Handled bool `json:"handled"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if !body.Handled {
		t.Fatal("webhook not handled")
	}

	got, err := rig.store.GetRequest(context.Background(), req.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.RequestApproved {
		t.Errorf("status = %s, want approved", got.Status)
	}
}

func TestJiraWebhook_RejectsRequest(t *testing.T) {
	rig := newAPIRig(t)
	req := submitTracked(t, rig, "PROV-102")

	w := rig.do(t, http.MethodPost, "/webhooks/jira", webhookBody("PROV-102", "Declined"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	got, _ := rig.store.GetRequest(context.Background(), req.ID)
	if got.Status != domain.RequestRejected {
		t.Errorf("status = %s, want rejected", got.Status)
	}
	if got.ErrorMessage == "" {
		t.Error("rejection reason not recorded")
	}
}

func TestJiraWebhook_IgnoresUnrelatedEvents(t *testing.T) {
	rig := newAPIRig(t)
	req := submitTracked(t, rig, "PROV-103")

	tests := []struct {
		name string
		body string
	}{
		{"untracked issue", webhookBody("OTHER-1", "Approved")},
		{"unrelated status", webhookBody("PROV-103", "In Progress")},
		{"empty issue", webhookBody("", "Approved")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := rig.do(t, http.MethodPost, "/webhooks/jira", tt.body)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d", w.Code)
			}
			var body struct {
				Handled bool `json:"handled"`
			}
			_ = json.Unmarshal(w.Body.Bytes(), &body)
			if body.Handled {
				t.Error("event should not be handled")
			}
		})
	}

	got, _ := rig.store.GetRequest(context.Background(), req.ID)
	if got.Status != domain.RequestPendingApproval {
		t.Errorf("status changed to %s", got.Status)
	}
}

func TestJiraWebhook_DuplicateDeliveryIsBenign(t *testing.T) {
	rig := newAPIRig(t)
	submitTracked(t, rig, "PROV-104")

	first := rig.do(t, http.MethodPost, "/webhooks/jira", webhookBody("PROV-104", "Approved"))
	second := rig.do(t, http.MethodPost, "/webhooks/jira", webhookBody("PROV-104", "Approved"))
	if first.Code != http.StatusOK || second.Code != http.StatusOK {
		t.Fatalf("statuses = %d, %d", first.Code, second.Code)
	}
	var body struct {
		Handled bool `json:"handled"`
	}
	_ = json.Unmarshal(second.Body.Bytes(), &body)
	if body.Handled {
		t.Error("duplicate delivery should not be handled")
	}
}

func TestJiraWebhook_SecretRequired(t *testing.T) {
	rig := newAPIRig(t)
	submitTracked(t, rig, "PROV-105")

	if err := rig.store.UpsertSetting(context.Background(), settings.KeyJiraWebhookSecret, "s3cret"); err != nil {
		t.Fatal(err)
	}

	w := rig.do(t, http.MethodPost, "/webhooks/jira", webhookBody("PROV-105", "Approved"))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("without secret: status = %d, want 401", w.Code)
	}

	w = rig.do(t, http.MethodPost, "/webhooks/jira?secret=s3cret", webhookBody("PROV-105", "Approved"))
	if w.Code != http.StatusOK {
		t.Fatalf("with secret: status = %d", w.Code)
	}
}
