package ipam

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"provinator.io/provinator/internal/config"
	"provinator.io/provinator/internal/pkg/logger"
	"provinator.io/provinator/internal/settings"
	"provinator.io/provinator/internal/store"
)

func init() {
	_ = logger.Init("error", "json")
}

func newTestIPAM(t *testing.T, handler http.Handler) *Service {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.Config{}
	cfg.IPAM.URL = srv.URL
	cfg.IPAM.AppID = "provinator"
	cfg.IPAM.Token = "tok"
	cfg.IPAM.Enabled = true
	cfg.IPAM.DefaultSubnetID = 7
	return NewService(settings.NewService(store.NewMemory(), cfg))
}

func TestAllocateFirstFree(t *testing.T) {
	svc := newTestIPAM(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/provinator/addresses/first_free/7/" {
			t.Errorf("unexpected call %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("token") != "tok" {
			t.Errorf("token header = %q", r.Header.Get("token"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"success":true,"code":201,"data":"10.0.0.15","id":"12"}`))
	}))

	addr, err := svc.AllocateFirstFree(t.Context(), 7)
	if err != nil {
		t.Fatalf("AllocateFirstFree() error = %v", err)
	}
	if addr.IP != "10.0.0.15" || addr.ID != 12 {
		t.Errorf("AllocateFirstFree() = %+v, want 10.0.0.15/12", addr)
	}
}

func TestAllocateFirstFree_SubnetExhausted(t *testing.T) {
	svc := newTestIPAM(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"success":false,"code":409,"message":"No free addresses found"}`))
	}))

	if _, err := svc.AllocateFirstFree(t.Context(), 7); err == nil {
		t.Fatal("AllocateFirstFree() succeeded on exhausted subnet")
	}
}

func TestReleaseAddress(t *testing.T) {
	var released bool
	svc := newTestIPAM(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete && r.URL.Path == "/api/provinator/addresses/12/" {
			released = true
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"code":200}`))
	}))

	if err := svc.ReleaseAddress(t.Context(), 12); err != nil {
		t.Fatalf("ReleaseAddress() error = %v", err)
	}
	if !released {
		t.Error("DELETE /addresses/12/ was not called")
	}
}
