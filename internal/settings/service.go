package settings

import (
	"context"
	"fmt"
	"maps"
	"strconv"
	"time"

	"go.uber.org/zap"

	"provinator.io/provinator/internal/config"
	"provinator.io/provinator/internal/pkg/cache"
	apperrors "provinator.io/provinator/internal/pkg/errors"
	"provinator.io/provinator/internal/pkg/logger"
	"provinator.io/provinator/internal/store"
)

// Entry is one effective setting as exposed over the API. Secret values
// are masked.
type Entry struct {
	Key         string `json:"key"`
	Group       string `json:"group"`
	Value       string `json:"value"`
	Secret      bool   `json:"secret"`
	Overridden  bool   `json:"overridden"`
	Description string `json:"description"`
}

// Service layers database overrides on top of config defaults. The
// effective snapshot is cached; writes invalidate it so the next read
// sees the new value.
type Service struct {
	store    store.SettingStore
	defaults map[string]string
	snapshot *cache.Fetcher[map[string]string]
}

const snapshotTTL = 30 * time.Second

// NewService builds a Service seeded with defaults from cfg.
func NewService(s store.SettingStore, cfg *config.Config) *Service {
	svc := &Service{
		store:    s,
		defaults: defaultsFromConfig(cfg),
	}
	svc.snapshot = cache.NewFetcher("settings", snapshotTTL, svc.load)
	return svc
}

func (s *Service) load(ctx context.Context) (map[string]string, error) {
	overrides, err := s.store.SettingValues(ctx)
	if err != nil {
		return nil, fmt.Errorf("load setting overrides: %w", err)
	}
	eff := make(map[string]string, len(s.defaults)+len(overrides))
	maps.Copy(eff, s.defaults)
	for k, v := range overrides {
		if _, ok := Lookup(k); !ok {
			logger.Warn("Ignoring unregistered setting override", zap.String("key", k))
			continue
		}
		eff[k] = v
	}
	return eff, nil
}

// Effective returns the full key to value snapshot.
func (s *Service) Effective(ctx context.Context) (map[string]string, error) {
	return s.snapshot.Get(ctx)
}

// Value returns one effective value. Unregistered keys resolve to "".
func (s *Service) Value(ctx context.Context, key string) (string, error) {
	eff, err := s.Effective(ctx)
	if err != nil {
		return "", err
	}
	return eff[key], nil
}

// Bool parses an effective value as a boolean, defaulting to false.
func (s *Service) Bool(ctx context.Context, key string) (bool, error) {
	v, err := s.Value(ctx, key)
	if err != nil {
		return false, err
	}
	b, _ := strconv.ParseBool(v)
	return b, nil
}

// Strategy returns the configured node selection strategy.
func (s *Service) Strategy(ctx context.Context) (string, error) {
	return s.Value(ctx, KeyNodeSelectionStrategy)
}

// Set stores an override for a registered key.
func (s *Service) Set(ctx context.Context, key, value string) error {
	if _, ok := Lookup(key); !ok {
		return apperrors.New(apperrors.CodeValidationFailed, fmt.Sprintf("unknown setting key: %s", key), 422)
	}
	if err := s.store.UpsertSetting(ctx, key, value); err != nil {
		return err
	}
	s.snapshot.Invalidate()
	logger.Info("Setting updated", zap.String("key", key))
	return nil
}

// Unset removes an override, reverting the key to its config default.
func (s *Service) Unset(ctx context.Context, key string) error {
	if err := s.store.DeleteSetting(ctx, key); err != nil {
		return err
	}
	s.snapshot.Invalidate()
	return nil
}

// Describe lists all registered settings with effective values. Secret
// values are replaced with a fixed mask when set.
func (s *Service) Describe(ctx context.Context) ([]Entry, error) {
	eff, err := s.Effective(ctx)
	if err != nil {
		return nil, err
	}
	overrides, err := s.store.SettingValues(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(Registry))
	for _, d := range Registry {
		value := eff[d.Key]
		if d.Secret && value != "" {
			value = "********"
		}
		_, overridden := overrides[d.Key]
		entries = append(entries, Entry{
			Key:         d.Key,
			Group:       d.Group,
			Value:       value,
			Secret:      d.Secret,
			Overridden:  overridden,
			Description: d.Description,
		})
	}
	return entries, nil
}

func defaultsFromConfig(cfg *config.Config) map[string]string {
	return map[string]string{
		"PROXMOX_HOST":        cfg.Proxmox.Host,
		"PROXMOX_TOKEN_ID":    cfg.Proxmox.TokenID,
		"PROXMOX_TOKEN_VALUE": cfg.Proxmox.TokenValue,
		"PROXMOX_VERIFY_SSL":  strconv.FormatBool(cfg.Proxmox.VerifySSL),

		"JIRA_BASE_URL":      cfg.Jira.BaseURL,
		"JIRA_EMAIL":         cfg.Jira.Email,
		"JIRA_API_TOKEN":     cfg.Jira.APIToken,
		"JIRA_PROJECT_KEY":   cfg.Jira.ProjectKey,
		"JIRA_ISSUE_TYPE":    cfg.Jira.IssueType,
		KeyJiraApproveStatus: cfg.Jira.ApproveStatus,
		KeyJiraRejectStatus:  cfg.Jira.RejectStatus,
		KeyJiraWebhookSecret: cfg.Jira.WebhookSecret,

		"PHPIPAM_URL":       cfg.IPAM.URL,
		"PHPIPAM_APP_ID":    cfg.IPAM.AppID,
		"PHPIPAM_TOKEN":     cfg.IPAM.Token,
		"PHPIPAM_SUBNET_ID": strconv.Itoa(cfg.IPAM.DefaultSubnetID),
		"PHPIPAM_ENABLED":   strconv.FormatBool(cfg.IPAM.Enabled),

		"SMTP_HOST":     cfg.SMTP.Host,
		"SMTP_PORT":     strconv.Itoa(cfg.SMTP.Port),
		"SMTP_USERNAME": cfg.SMTP.Username,
		"SMTP_PASSWORD": cfg.SMTP.Password,
		"SMTP_USE_TLS":  strconv.FormatBool(cfg.SMTP.UseTLS),
		"SMTP_FROM":     cfg.SMTP.From,
		"SMTP_ENABLED":  strconv.FormatBool(cfg.SMTP.Enabled),

		KeyAppBaseURL:            cfg.App.BaseURL,
		KeyNodeSelectionStrategy: cfg.App.NodeSelectionStrategy,
		KeyNetworkGateway:        "",
	}
}
