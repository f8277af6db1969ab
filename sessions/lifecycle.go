// Package sessions manages conversation session lifecycle beyond the
// pipeline's find-or-create step. The Lifecycle expires sessions whose
// conversations have gone idle so stale sessions stop matching the
// pipeline's active-session scan.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/marianoberton/go-messaging/core"
)

// DefaultIdleAfter is how long a session may sit without activity before
// ExpireIdle transitions it. Session activity is tracked through UpdatedAt.
const DefaultIdleAfter = 30 * time.Minute

// Store is the persistence surface the lifecycle needs. The sqlstore
// SessionStore satisfies it.
type Store interface {
	ListActiveByTenant(ctx context.Context, tenantID string) ([]core.Session, error)
	UpdateStatus(ctx context.Context, id string, status core.SessionStatus) error
}

type Config struct {
	IdleAfter time.Duration
	Logger    core.Logger
	Now       func() time.Time
}

type Lifecycle struct {
	store     Store
	idleAfter time.Duration
	logger    core.Logger
	now       func() time.Time
}

func NewLifecycle(store Store, cfg Config) (*Lifecycle, error) {
	if store == nil {
		return nil, fmt.Errorf("sessions: store is required")
	}
	idleAfter := cfg.IdleAfter
	if idleAfter <= 0 {
		idleAfter = DefaultIdleAfter
	}
	logger := cfg.Logger
	if logger == nil {
		logger = glog.Nop()
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Lifecycle{
		store:     store,
		idleAfter: idleAfter,
		logger:    logger,
		now:       now,
	}, nil
}

// ExpireIdle transitions every active session of the tenant whose last
// activity predates the idle window. Per-session failures are joined into
// the returned error without stopping the sweep; the count reflects only
// sessions actually transitioned.
func (l *Lifecycle) ExpireIdle(ctx context.Context, tenantID string) (int, error) {
	if l == nil || l.store == nil {
		return 0, fmt.Errorf("sessions: lifecycle is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return 0, fmt.Errorf("sessions: tenant id is required")
	}

	active, err := l.store.ListActiveByTenant(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("sessions: list active sessions for %s: %w", tenantID, err)
	}

	cutoff := l.now().Add(-l.idleAfter)
	expired := 0
	var sweepErr error
	for _, session := range active {
		if !l.isIdle(session, cutoff) {
			continue
		}
		if err := l.store.UpdateStatus(ctx, session.ID, core.SessionStatusExpired); err != nil {
			l.logger.Warn("session expiry failed",
				"session_id", session.ID,
				"tenant_id", tenantID,
				"error", err,
			)
			sweepErr = errors.Join(sweepErr, fmt.Errorf("sessions: expire %s: %w", session.ID, err))
			continue
		}
		expired++
		l.logger.Debug("session expired",
			"session_id", session.ID,
			"tenant_id", tenantID,
			"contact_id", session.ContactID(),
		)
	}
	return expired, sweepErr
}

// Close ends a session deliberately, for example when an operator hands the
// conversation back or a contact opts out.
func (l *Lifecycle) Close(ctx context.Context, sessionID string) error {
	if l == nil || l.store == nil {
		return fmt.Errorf("sessions: lifecycle is not configured")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return fmt.Errorf("sessions: session id is required")
	}
	if err := l.store.UpdateStatus(ctx, sessionID, core.SessionStatusClosed); err != nil {
		return fmt.Errorf("sessions: close %s: %w", sessionID, err)
	}
	return nil
}

// isIdle treats UpdatedAt as the activity clock, falling back to CreatedAt
// for sessions a store never touched after creation.
func (l *Lifecycle) isIdle(session core.Session, cutoff time.Time) bool {
	lastActivity := session.UpdatedAt
	if lastActivity.IsZero() {
		lastActivity = session.CreatedAt
	}
	if lastActivity.IsZero() {
		return false
	}
	return lastActivity.Before(cutoff)
}

var _ core.SessionJanitor = (*Lifecycle)(nil)
