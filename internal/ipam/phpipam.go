// Package ipam allocates IP addresses from phpIPAM. Addresses are
// claimed at request submission and released when provisioning is
// rejected or fails before the VM exists.
package ipam

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"provinator.io/provinator/internal/pkg/logger"
	"provinator.io/provinator/internal/settings"
)

// Address is an allocated phpIPAM address row.
type Address struct {
	ID int64
	IP string
}

// Service wraps the phpIPAM REST API. Connection parameters come from
// the settings service.
type Service struct {
	settings *settings.Service
}

// NewService creates a phpIPAM service.
func NewService(s *settings.Service) *Service {
	return &Service{settings: s}
}

// Enabled reports whether IPAM allocation is turned on and configured.
func (s *Service) Enabled(ctx context.Context) bool {
	eff, err := s.settings.Effective(ctx)
	if err != nil {
		return false
	}
	enabled, _ := strconv.ParseBool(eff["PHPIPAM_ENABLED"])
	return enabled && eff["PHPIPAM_URL"] != "" && eff["PHPIPAM_APP_ID"] != ""
}

// SubnetID returns the configured allocation subnet.
func (s *Service) SubnetID(ctx context.Context) (int, error) {
	v, err := s.settings.Value(ctx, "PHPIPAM_SUBNET_ID")
	if err != nil {
		return 0, err
	}
	id, err := strconv.Atoi(v)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("phpipam subnet id not configured")
	}
	return id, nil
}

func (s *Service) client(ctx context.Context) (*resty.Client, error) {
	eff, err := s.settings.Effective(ctx)
	if err != nil {
		return nil, err
	}
	if eff["PHPIPAM_URL"] == "" {
		return nil, fmt.Errorf("phpipam is not configured")
	}
	return resty.New().
		SetBaseURL(fmt.Sprintf("%s/api/%s", eff["PHPIPAM_URL"], eff["PHPIPAM_APP_ID"])).
		SetHeader("token", eff["PHPIPAM_TOKEN"]).
		SetHeader("Content-Type", "application/json"), nil
}

// envelope is phpIPAM's standard response wrapper. data is either the
// allocated IP string (first_free) or an object, so it stays raw.
type envelope struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	ID      any             `json:"id"`
}

// AllocateFirstFree claims the first free address in the subnet.
func (s *Service) AllocateFirstFree(ctx context.Context, subnetID int) (*Address, error) {
	client, err := s.client(ctx)
	if err != nil {
		return nil, err
	}

	var env envelope
	resp, err := client.R().
		SetContext(ctx).
		SetResult(&env).
		Post(fmt.Sprintf("/addresses/first_free/%d/", subnetID))
	if err != nil {
		return nil, fmt.Errorf("phpipam first_free: %w", err)
	}
	if resp.IsError() || !env.Success {
		return nil, fmt.Errorf("phpipam first_free: %s (HTTP %d)", env.Message, resp.StatusCode())
	}

	var ip string
	if err := json.Unmarshal(env.Data, &ip); err != nil {
		return nil, fmt.Errorf("phpipam first_free: unexpected payload %s", env.Data)
	}
	id, err := parseID(env.ID)
	if err != nil {
		return nil, fmt.Errorf("phpipam first_free: %w", err)
	}

	logger.Info("IP address allocated",
		zap.String("ip", ip),
		zap.Int64("address_id", id),
		zap.Int("subnet_id", subnetID),
	)
	return &Address{ID: id, IP: ip}, nil
}

// UpdateAddress records the hostname and description on an address row.
func (s *Service) UpdateAddress(ctx context.Context, id int64, hostname, description string) error {
	client, err := s.client(ctx)
	if err != nil {
		return err
	}

	var env envelope
	resp, err := client.R().
		SetContext(ctx).
		SetBody(map[string]string{"hostname": hostname, "description": description}).
		SetResult(&env).
		Patch(fmt.Sprintf("/addresses/%d/", id))
	if err != nil {
		return fmt.Errorf("phpipam update address %d: %w", id, err)
	}
	if resp.IsError() || !env.Success {
		return fmt.Errorf("phpipam update address %d: %s (HTTP %d)", id, env.Message, resp.StatusCode())
	}
	return nil
}

// ReleaseAddress frees an allocated address.
func (s *Service) ReleaseAddress(ctx context.Context, id int64) error {
	client, err := s.client(ctx)
	if err != nil {
		return err
	}

	var env envelope
	resp, err := client.R().
		SetContext(ctx).
		SetResult(&env).
		Delete(fmt.Sprintf("/addresses/%d/", id))
	if err != nil {
		return fmt.Errorf("phpipam release address %d: %w", id, err)
	}
	if resp.IsError() || !env.Success {
		return fmt.Errorf("phpipam release address %d: %s (HTTP %d)", id, env.Message, resp.StatusCode())
	}

	logger.Info("IP address released", zap.Int64("address_id", id))
	return nil
}

// parseID copes with phpIPAM returning the new row id as either a
// number or a string depending on version.
func parseID(v any) (int64, error) {
	switch id := v.(type) {
	case float64:
		return int64(id), nil
	case string:
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("unparseable address id %q", id)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("missing address id in response")
	}
}
