// Package notification fans provisioning lifecycle events out to the
// configured side channels: Jira comments and transitions, notification
// emails and IPAM cleanup. All delivery is best-effort on the general
// worker pool; a failed side effect never fails the business operation.
package notification

import (
	"context"

	"go.uber.org/zap"

	"provinator.io/provinator/internal/ipam"
	"provinator.io/provinator/internal/mailer"
	"provinator.io/provinator/internal/pkg/logger"
	"provinator.io/provinator/internal/pkg/worker"
	"provinator.io/provinator/internal/settings"
	"provinator.io/provinator/internal/ticket"
)

// Notifier dispatches side effects for request and deployment events.
type Notifier struct {
	tickets  *ticket.Service
	ipam     *ipam.Service
	mail     *mailer.Service
	settings *settings.Service
	pools    *worker.Pools
}

// NewNotifier creates the notifier.
func NewNotifier(tickets *ticket.Service, ipamSvc *ipam.Service, mail *mailer.Service, s *settings.Service, pools *worker.Pools) *Notifier {
	return &Notifier{tickets: tickets, ipam: ipamSvc, mail: mail, settings: s, pools: pools}
}

// dispatch runs one side effect on the general pool, detached from the
// request context so an HTTP timeout cannot cancel it. Failures are
// logged and swallowed.
func (n *Notifier) dispatch(name string, fn func(ctx context.Context) error) {
	err := n.pools.SubmitDetached("general", func(ctx context.Context) {
		if err := fn(ctx); err != nil {
			logger.Warn("Notification side effect failed",
				zap.String("effect", name),
				zap.Error(err),
			)
		}
	})
	if err != nil {
		logger.Warn("Notification side effect not scheduled",
			zap.String("effect", name),
			zap.Error(err),
		)
	}
}

func (n *Notifier) comment(issueKey, body string) {
	if issueKey == "" {
		return
	}
	n.dispatch("jira-comment", func(ctx context.Context) error {
		if !n.tickets.Enabled(ctx) {
			return nil
		}
		return n.tickets.AddComment(ctx, issueKey, body)
	})
}

func (n *Notifier) transition(issueKey, statusKey string) {
	if issueKey == "" {
		return
	}
	n.dispatch("jira-transition", func(ctx context.Context) error {
		if !n.tickets.Enabled(ctx) {
			return nil
		}
		status, err := n.settings.Value(ctx, statusKey)
		if err != nil || status == "" {
			return err
		}
		return n.tickets.TransitionIssue(ctx, issueKey, status)
	})
}

func (n *Notifier) email(kind, to string, render func(ctx context.Context) (string, string, error)) {
	if to == "" {
		return
	}
	n.dispatch("email-"+kind, func(ctx context.Context) error {
		if !n.mail.Enabled(ctx) {
			return nil
		}
		subject, body, err := render(ctx)
		if err != nil {
			return err
		}
		return n.mail.Send(ctx, to, subject, body)
	})
}

func (n *Notifier) releaseIP(addressID *int64) {
	if addressID == nil {
		return
	}
	id := *addressID
	n.dispatch("ipam-release", func(ctx context.Context) error {
		if !n.ipam.Enabled(ctx) {
			return nil
		}
		return n.ipam.ReleaseAddress(ctx, id)
	})
}
