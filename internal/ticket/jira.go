// Package ticket tracks provisioning requests in Jira. One issue per
// request or deployment; approval decisions are mirrored as workflow
// transitions and progress is posted as comments.
package ticket

import (
	"context"
	"fmt"
	"strings"

	jira "github.com/andygrunwald/go-jira"
	"go.uber.org/zap"

	apperrors "provinator.io/provinator/internal/pkg/errors"
	"provinator.io/provinator/internal/pkg/logger"
	"provinator.io/provinator/internal/settings"
)

// Issue is the created ticket reference returned to callers.
type Issue struct {
	Key string
	URL string
}

// Service wraps the Jira REST API. Connection parameters come from the
// settings service so they can change at runtime without a restart.
type Service struct {
	settings *settings.Service
}

// NewService creates a Jira ticket service.
func NewService(s *settings.Service) *Service {
	return &Service{settings: s}
}

// Enabled reports whether a Jira base URL is configured.
func (s *Service) Enabled(ctx context.Context) bool {
	base, err := s.settings.Value(ctx, "JIRA_BASE_URL")
	return err == nil && base != ""
}

func (s *Service) client(ctx context.Context) (*jira.Client, string, error) {
	eff, err := s.settings.Effective(ctx)
	if err != nil {
		return nil, "", err
	}
	base := eff["JIRA_BASE_URL"]
	if base == "" {
		return nil, "", fmt.Errorf("jira is not configured")
	}
	tp := jira.BasicAuthTransport{
		Username: eff["JIRA_EMAIL"],
		Password: eff["JIRA_API_TOKEN"],
	}
	client, err := jira.NewClient(tp.Client(), base)
	if err != nil {
		return nil, "", fmt.Errorf("create jira client: %w", err)
	}
	return client, strings.TrimRight(base, "/"), nil
}

// CreateIssue opens a ticket in the configured project and returns its
// key and browse URL.
func (s *Service) CreateIssue(ctx context.Context, summary, description string) (*Issue, error) {
	client, base, err := s.client(ctx)
	if err != nil {
		return nil, err
	}
	eff, err := s.settings.Effective(ctx)
	if err != nil {
		return nil, err
	}

	issueType := eff["JIRA_ISSUE_TYPE"]
	if issueType == "" {
		issueType = "Task"
	}
	created, resp, err := client.Issue.CreateWithContext(ctx, &jira.Issue{
		Fields: &jira.IssueFields{
			Project:     jira.Project{Key: eff["JIRA_PROJECT_KEY"]},
			Type:        jira.IssueType{Name: issueType},
			Summary:     summary,
			Description: description,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create jira issue: %w", jiraError(resp, err))
	}

	logger.Info("Jira issue created", zap.String("issue_key", created.Key))
	return &Issue{
		Key: created.Key,
		URL: fmt.Sprintf("%s/browse/%s", base, created.Key),
	}, nil
}

// AddComment posts a comment on an existing issue.
func (s *Service) AddComment(ctx context.Context, issueKey, body string) error {
	client, _, err := s.client(ctx)
	if err != nil {
		return err
	}
	_, resp, err := client.Issue.AddCommentWithContext(ctx, issueKey, &jira.Comment{Body: body})
	if err != nil {
		return fmt.Errorf("comment on %s: %w", issueKey, jiraError(resp, err))
	}
	return nil
}

// TransitionIssue moves an issue to the workflow status with the given
// name. The lookup is case-insensitive; an unknown status is an error so
// misconfigured workflows surface in the logs.
func (s *Service) TransitionIssue(ctx context.Context, issueKey, statusName string) error {
	client, _, err := s.client(ctx)
	if err != nil {
		return err
	}
	transitions, resp, err := client.Issue.GetTransitionsWithContext(ctx, issueKey)
	if err != nil {
		return fmt.Errorf("list transitions for %s: %w", issueKey, jiraError(resp, err))
	}

	for _, tr := range transitions {
		if strings.EqualFold(tr.To.Name, statusName) || strings.EqualFold(tr.Name, statusName) {
			resp, err := client.Issue.DoTransitionWithContext(ctx, issueKey, tr.ID)
			if err != nil {
				return fmt.Errorf("transition %s to %s: %w", issueKey, statusName, jiraError(resp, err))
			}
			logger.Info("Jira issue transitioned",
				zap.String("issue_key", issueKey),
				zap.String("status", statusName),
			)
			return nil
		}
	}
	return apperrors.New(apperrors.CodeValidationFailed,
		fmt.Sprintf("no transition to status %q available on %s", statusName, issueKey), 422)
}

// jiraError folds the response body into the error; go-jira's errors
// alone rarely carry the reason.
func jiraError(resp *jira.Response, err error) error {
	if resp == nil {
		return err
	}
	return fmt.Errorf("%w: %s", err, jira.NewJiraError(resp, err))
}
