package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"provinator.io/provinator/internal/api/middleware"
	"provinator.io/provinator/internal/config"
	"provinator.io/provinator/internal/domain"
	"provinator.io/provinator/internal/hypervisor"
	"provinator.io/provinator/internal/pkg/logger"
	"provinator.io/provinator/internal/provisioner"
	"provinator.io/provinator/internal/settings"
	"provinator.io/provinator/internal/store"
	"provinator.io/provinator/internal/template"
)

func init() {
	gin.SetMode(gin.TestMode)
	_ = logger.Init("error", "json")
}

type apiRig struct {
	router *gin.Engine
	store  *store.Memory
	driver *hypervisor.MockDriver
	engine *provisioner.Engine
}

func newAPIRig(t *testing.T) *apiRig {
	t.Helper()
	mem := store.NewMemory()
	driver := hypervisor.NewMockDriver()

	cfg := &config.Config{}
	cfg.App.NodeSelectionStrategy = "least_memory"
	cfg.Jira.ApproveStatus = "Approved"
	cfg.Jira.RejectStatus = "Declined"
	settingsSvc := settings.NewService(mem, cfg)

	sizes := []domain.SizeClass{{Key: "small", CPUCores: 2, RAMMB: 4096, DiskGB: 40}}
	catalog := map[string]config.CatalogTemplate{
		"ubuntu-22": {Key: "ubuntu-22", ProxmoxVMID: 9000, SourceNode: "pve1", CloudInit: true},
	}
	engine := provisioner.NewEngine(
		mem,
		template.NewResolver(mem, catalog),
		settingsSvc,
		func(ctx context.Context, env *domain.Environment) (hypervisor.Driver, error) {
			return driver, nil
		},
		sizes,
		provisioner.Options{},
	)

	server := NewServer(Deps{Engine: engine, Store: mem, Settings: settingsSvc, Sizes: sizes})

	router := gin.New()
	router.Use(middleware.RequestID(), middleware.ErrorHandler())
	router.POST("/requests", server.CreateRequest)
	router.GET("/requests", server.ListRequests)
	router.GET("/requests/:id", server.GetRequest)
	router.POST("/requests/:id/approve", server.ApproveRequest)
	router.POST("/requests/:id/reject", server.RejectRequest)
	router.POST("/requests/:id/retry", server.RetryRequest)
	router.GET("/sizes", server.ListSizes)
	router.POST("/webhooks/jira", server.JiraWebhook)

	return &apiRig{router: router, store: mem, driver: driver, engine: engine}
}

func (r *apiRig) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.router.ServeHTTP(w, req)
	return w
}

const validRequestBody = `{
	"requester_name": "Dana",
	"requester_email": "dana@example.com",
	"vm_name": "web-01",
	"template_key": "ubuntu-22",
	"size_key": "small"
}`

func TestCreateRequest(t *testing.T) {
	rig := newAPIRig(t)

	w := rig.do(t, http.MethodPost, "/requests", validRequestBody)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var req domain.VMRequest
	if err := json.Unmarshal(w.Body.Bytes(), &req); err != nil {
		t.Fatal(err)
	}
	if req.Status != domain.RequestPendingApproval || req.CPUCores != 2 {
		t.Errorf("created = %s cpu=%d, want pending_approval with small resources", req.Status, req.CPUCores)
	}
}

func TestCreateRequest_ValidationErrors(t *testing.T) {
	rig := newAPIRig(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"missing email", `{"requester_name":"D","vm_name":"a","template_key":"ubuntu-22","size_key":"small"}`, http.StatusBadRequest},
		{"unknown template", strings.Replace(validRequestBody, "ubuntu-22", "nope", 1), http.StatusUnprocessableEntity},
		{"unknown size", strings.Replace(validRequestBody, "small", "galactic", 1), http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := rig.do(t, http.MethodPost, "/requests", tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestApproveRejectFlow(t *testing.T) {
	rig := newAPIRig(t)

	w := rig.do(t, http.MethodPost, "/requests", validRequestBody)
	var req domain.VMRequest
	_ = json.Unmarshal(w.Body.Bytes(), &req)

	w = rig.do(t, http.MethodPost, "/requests/1/approve", "")
	if w.Code != http.StatusOK {
		t.Fatalf("approve status = %d, body %s", w.Code, w.Body.String())
	}

	// A second approve must hit the transition guard.
	w = rig.do(t, http.MethodPost, "/requests/1/approve", "")
	if w.Code != http.StatusConflict {
		t.Errorf("second approve status = %d, want 409", w.Code)
	}
}

func TestRejectRequest_RecordsReason(t *testing.T) {
	rig := newAPIRig(t)
	rig.do(t, http.MethodPost, "/requests", validRequestBody)

	w := rig.do(t, http.MethodPost, "/requests/1/reject", `{"reason":"no budget"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("reject status = %d, body %s", w.Code, w.Body.String())
	}
	var req domain.VMRequest
	_ = json.Unmarshal(w.Body.Bytes(), &req)
	if req.Status != domain.RequestRejected || req.ErrorMessage != "no budget" {
		t.Errorf("rejected = %s/%q", req.Status, req.ErrorMessage)
	}
}

func TestGetRequest_NotFound(t *testing.T) {
	rig := newAPIRig(t)

	w := rig.do(t, http.MethodGet, "/requests/99", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestListSizes(t *testing.T) {
	rig := newAPIRig(t)

	w := rig.do(t, http.MethodGet, "/sizes", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Count int `json:"count"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body.Count != 1 {
		t.Errorf("count = %d, want 1", body.Count)
	}
}
