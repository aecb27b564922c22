// Package sessions issues, validates and revokes session tokens. A token is
// only honoured while its grant exists in the store.
package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/learnkeeper/internal/common"
	"github.com/dmitrijs2005/learnkeeper/internal/cryptox"
	"github.com/dmitrijs2005/learnkeeper/internal/logging"
	"github.com/dmitrijs2005/learnkeeper/internal/server/auth"
	"github.com/dmitrijs2005/learnkeeper/internal/server/docstore"
	"github.com/dmitrijs2005/learnkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/learnkeeper/internal/server/models"
	"github.com/dmitrijs2005/learnkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/learnkeeper/internal/timex"
	"github.com/google/uuid"
)

// Stage is the position of a session in the sign-in state machine.
type Stage int

const (
	Anonymous Stage = iota
	MFAPending
	Authenticated
)

func (s Stage) String() string {
	switch s {
	case MFAPending:
		return "mfa_pending"
	case Authenticated:
		return "authenticated"
	default:
		return "anonymous"
	}
}

// Claims describes a validated session.
type Claims struct {
	UserID    string
	Username  string
	TokenID   string
	Stage     Stage
	ExpiresAt time.Time
}

type Config struct {
	TokenTTL      time.Duration
	MFAPendingTTL time.Duration
}

type Manager struct {
	cfg     Config
	signer  *auth.Signer
	backend docstore.Backend
	repos   repomanager.RepositoryManager
	now     timex.Clock
	logger  logging.Logger
	metrics *metrics.Metrics
}

func NewManager(cfg Config, signer *auth.Signer, b docstore.Backend, rm repomanager.RepositoryManager,
	now timex.Clock, l logging.Logger, m *metrics.Metrics) *Manager {
	if now == nil {
		now = timex.Now
	}
	return &Manager{cfg: cfg, signer: signer, backend: b, repos: rm, now: now, logger: l.With("module", "sessions"), metrics: m}
}

func (m *Manager) ttl(stage Stage) time.Duration {
	if stage == MFAPending {
		return m.cfg.MFAPendingTTL
	}
	return m.cfg.TokenTTL
}

// Issue records a grant for account and returns a bearer token for it.
// account must carry UserID and Username.
func (m *Manager) Issue(ctx context.Context, account *models.Account, mfaRequired bool) (string, error) {
	stage := Authenticated
	if mfaRequired {
		stage = MFAPending
	}

	tokenID := uuid.NewString()
	grant := &models.SessionGrant{UserID: account.UserID, TokenID: tokenID, CreatedAt: m.now()}
	if err := m.repos.Grants(m.backend.Store()).Create(ctx, grant); err != nil {
		return "", err
	}

	token, err := m.signer.GenerateToken(auth.Identity{
		Username:    account.Username,
		AccountID:   account.UserID,
		TokenID:     tokenID,
		MFARequired: mfaRequired,
	}, m.ttl(stage))
	if err != nil {
		return "", err
	}

	m.metrics.SessionsIssued.WithLabelValues(stage.String()).Inc()
	return token, nil
}

// Validate resolves token to its claims. Any failure, including store
// errors, leaves the caller anonymous; it is logged but never returned.
func (m *Manager) Validate(ctx context.Context, token string) (*Claims, bool) {
	if token == "" {
		return nil, false
	}

	id, err := m.signer.ParseToken(token)
	if err != nil {
		m.logger.Debug(ctx, "token rejected", "reason", err.Error())
		return nil, false
	}

	stage := Authenticated
	if id.MFARequired {
		stage = MFAPending
	}

	repos := m.repos.Bind(m.backend.Store())

	account, err := repos.Accounts.GetByUserID(ctx, id.AccountID)
	if err != nil {
		m.logFailure(ctx, "token account lookup failed", err)
		return nil, false
	}
	if !cryptox.EqualString(account.Username, id.Username) {
		m.logger.Debug(ctx, "token username no longer matches account")
		return nil, false
	}

	grant, err := repos.Grants.Get(ctx, id.TokenID)
	if err != nil {
		m.logFailure(ctx, "token grant lookup failed", err)
		return nil, false
	}
	if grant.UserID != id.AccountID {
		m.logger.Warn(ctx, "token grant belongs to another account")
		return nil, false
	}
	if m.now().Sub(grant.CreatedAt) > m.ttl(stage) {
		m.logger.Debug(ctx, "token grant expired")
		return nil, false
	}

	return &Claims{
		UserID:    id.AccountID,
		Username:  id.Username,
		TokenID:   id.TokenID,
		Stage:     stage,
		ExpiresAt: id.ExpiresAt,
	}, true
}

func (m *Manager) logFailure(ctx context.Context, msg string, err error) {
	if errors.Is(err, common.ErrorNotFound) {
		m.logger.Debug(ctx, msg, "reason", err.Error())
		return
	}
	logging.LogError(ctx, m.logger, msg, err)
}

// Revoke deletes the grant behind tokenID if it belongs to userID. Revoking
// an unknown or already revoked token succeeds.
func (m *Manager) Revoke(ctx context.Context, userID, tokenID string) error {
	repo := m.repos.Grants(m.backend.Store())

	grant, err := repo.Get(ctx, tokenID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		return err
	}
	if grant.UserID != userID {
		return nil
	}

	_, err = repo.Delete(ctx, tokenID)
	return err
}

// RevokeAll deletes every grant of userID.
func (m *Manager) RevokeAll(ctx context.Context, userID string) (int64, error) {
	return m.repos.Grants(m.backend.Store()).DeleteByUser(ctx, userID)
}

// RevokeOthers deletes every grant of userID except keepTokenID.
func (m *Manager) RevokeOthers(ctx context.Context, userID, keepTokenID string) (int64, error) {
	repo := m.repos.Grants(m.backend.Store())

	list, err := repo.ListByUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	var n int64
	for _, g := range list {
		if g.TokenID == keepTokenID {
			continue
		}
		d, err := repo.Delete(ctx, g.TokenID)
		if err != nil {
			return n, err
		}
		n += d
	}
	return n, nil
}

// Sweep deletes grants older than the longest token lifetime.
func (m *Manager) Sweep(ctx context.Context) (int64, error) {
	cutoff := m.now().Add(-max(m.cfg.TokenTTL, m.cfg.MFAPendingTTL))
	n, err := m.repos.Grants(m.backend.Store()).DeleteCreatedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	m.metrics.GrantsSwept.Add(float64(n))
	return n, nil
}

// StartSweeper runs Sweep every interval until ctx is done.
func (m *Manager) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := m.Sweep(ctx)
				if err != nil {
					logging.LogError(ctx, m.logger, "grant sweep failed", err)
					continue
				}
				if n > 0 {
					m.logger.Info(ctx, "swept expired grants", "removed", n)
				}
			}
		}
	}()
}
