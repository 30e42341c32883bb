package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "without wrapped error",
			err:  New("REQUEST_NOT_FOUND", "VM request not found", http.StatusNotFound),
			want: "REQUEST_NOT_FOUND: VM request not found",
		},
		{
			name: "with wrapped error",
			err:  Wrap(fmt.Errorf("db error"), "DB_ERROR", "database failure", http.StatusInternalServerError),
			want: "DB_ERROR: database failure: db error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("inner error")
	appErr := Wrap(inner, "CODE", "msg", 500)

	if !errors.Is(appErr, inner) {
		t.Error("errors.Is should match inner error")
	}
}

func TestIsAppError(t *testing.T) {
	appErr := NotFound("NOT_FOUND", "resource not found")
	wrapped := fmt.Errorf("wrapped: %w", appErr)

	got, ok := IsAppError(wrapped)
	if !ok {
		t.Fatal("IsAppError should return true for wrapped AppError")
	}
	if got.Code != "NOT_FOUND" {
		t.Errorf("Code = %q, want NOT_FOUND", got.Code)
	}
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		wantStatus int
	}{
		{"NotFound", NotFound("NF", "not found"), http.StatusNotFound},
		{"BadRequest", BadRequest("BR", "bad request"), http.StatusBadRequest},
		{"Unauthorized", Unauthorized("UA", "unauthorized"), http.StatusUnauthorized},
		{"Forbidden", Forbidden("FB", "forbidden"), http.StatusForbidden},
		{"Conflict", Conflict("CF", "conflict"), http.StatusConflict},
		{"Internal", Internal("IE", "internal"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.HTTPStatus != tt.wantStatus {
				t.Errorf("HTTPStatus = %d, want %d", tt.err.HTTPStatus, tt.wantStatus)
			}
		})
	}
}

// TestProvisioningTaxonomy verifies errors.Is classification across the
// terminal failure categories.
func TestProvisioningTaxonomy(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"unknown template", UnknownTemplate("ubuntu-22"), ErrUnknownTemplate},
		{"no capacity", NoAvailableCapacity("no online nodes"), ErrNoAvailableCapacity},
		{"hypervisor failure", Hypervisor(fmt.Errorf("503"), "clone"), ErrHypervisor},
		{"task timeout is a hypervisor error", TaskTimeout("clone", 600), ErrHypervisor},
		{"task timeout sentinel", TaskTimeout("power on", 120), ErrTaskTimeout},
		{"invalid transition", InvalidTransition("completed", "approved"), ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.sentinel) {
				t.Errorf("errors.Is(%v, %v) = false, want true", tt.err, tt.sentinel)
			}
		})
	}
}

func TestHypervisor_PreservesVendorMessage(t *testing.T) {
	vendor := fmt.Errorf("596 Connection timed out")
	err := Hypervisor(vendor, "clone template 9000")

	if !strings.Contains(err.Message, "596 Connection timed out") {
		t.Errorf("Message = %q, want vendor text preserved", err.Message)
	}
	if err.HTTPStatus != http.StatusBadGateway {
		t.Errorf("HTTPStatus = %d, want 502", err.HTTPStatus)
	}
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("x", 1500)

	if got := Truncate(long, 1000); len(got) != 1000 {
		t.Errorf("len(Truncate(long, 1000)) = %d, want 1000", len(got))
	}
	if got := Truncate("short", 1000); got != "short" {
		t.Errorf("Truncate(short) = %q, want unchanged", got)
	}
}
