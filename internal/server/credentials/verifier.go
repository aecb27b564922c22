// Package credentials verifies passwords and the emailed second factor.
package credentials

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/dmitrijs2005/learnkeeper/internal/common"
	"github.com/dmitrijs2005/learnkeeper/internal/cryptox"
	"github.com/dmitrijs2005/learnkeeper/internal/logging"
	"github.com/dmitrijs2005/learnkeeper/internal/server/docstore"
	"github.com/dmitrijs2005/learnkeeper/internal/server/mail"
	"github.com/dmitrijs2005/learnkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/learnkeeper/internal/server/models"
	"github.com/dmitrijs2005/learnkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/learnkeeper/internal/server/schema"
	"github.com/dmitrijs2005/learnkeeper/internal/server/txn"
	"github.com/dmitrijs2005/learnkeeper/internal/timex"
)

const codeDigits = 6

type Config struct {
	// Pepper is mixed into every password digest and never stored.
	Pepper      []byte
	KDF         cryptox.KDFParams
	SaltLength  int
	MFAValidity time.Duration
	// MFAMaxAttempts wrong codes burn the challenge; the user must sign in again.
	MFAMaxAttempts int
}

func DefaultConfig(pepper []byte) Config {
	return Config{
		Pepper:         pepper,
		KDF:            cryptox.KDFParams{Iterations: 3, MemoryKiB: 64 * 1024, Parallelism: 2},
		SaltLength:     16,
		MFAValidity:    30 * time.Minute,
		MFAMaxAttempts: 5,
	}
}

type Verifier struct {
	cfg     Config
	backend docstore.Backend
	repos   repomanager.RepositoryManager
	tx      *txn.Coordinator
	mailer  mail.Dispatcher
	now     timex.Clock
	logger  logging.Logger
	metrics *metrics.Metrics
}

func NewVerifier(cfg Config, b docstore.Backend, rm repomanager.RepositoryManager, tx *txn.Coordinator,
	mailer mail.Dispatcher, now timex.Clock, l logging.Logger, m *metrics.Metrics) (*Verifier, error) {
	if len(cfg.Pepper) == 0 {
		return nil, errors.New("password pepper is empty")
	}
	if err := cfg.KDF.Validate(); err != nil {
		return nil, err
	}
	if cfg.SaltLength < 8 {
		return nil, fmt.Errorf("password salt length %d is too short", cfg.SaltLength)
	}
	if cfg.MFAMaxAttempts < 1 {
		return nil, fmt.Errorf("mfa max attempts %d must be at least 1", cfg.MFAMaxAttempts)
	}
	if now == nil {
		now = timex.Now
	}
	return &Verifier{
		cfg: cfg, backend: b, repos: rm, tx: tx, mailer: mailer, now: now,
		logger: l.With("module", "credentials"), metrics: m,
	}, nil
}

// HashPassword returns the digest of password under a fresh salt.
func (v *Verifier) HashPassword(password string) (digest, salt []byte) {
	salt = common.GenerateRandByteArray(v.cfg.SaltLength)
	return v.digest(password, salt), salt
}

func (v *Verifier) digest(password string, salt []byte) []byte {
	m := hmac.New(sha256.New, v.cfg.Pepper)
	m.Write([]byte(password))
	peppered := m.Sum(nil)
	defer common.WipeByteArray(peppered)

	return cryptox.DeriveKey(peppered, salt, v.cfg.KDF)
}

// VerifyPassword reports whether password matches the account identified by
// field (username or email).
func (v *Verifier) VerifyPassword(ctx context.Context, field, identifier, password string) (bool, error) {
	a, err := v.Authenticate(ctx, field, identifier, password)
	return a != nil, err
}

// Authenticate is VerifyPassword returning the matched account, which only
// carries its user id. A nil account with a nil error is a mismatch or an
// unknown identifier; both take the same time.
func (v *Verifier) Authenticate(ctx context.Context, field, identifier, password string) (*models.Account, error) {
	if field != schema.FieldUsername && field != schema.FieldEmail {
		return nil, common.Policy(field, "sign in with a username or an email address")
	}

	a, err := v.repos.Accounts(v.backend.Store()).GetCredentials(ctx, field, identifier)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			// equalise timing with the found path
			v.digest(password, common.GenerateRandByteArray(v.cfg.SaltLength))
			v.metrics.AuthAttempts.WithLabelValues("password", "unknown").Inc()
			return nil, nil
		}
		v.metrics.AuthAttempts.WithLabelValues("password", "error").Inc()
		return nil, err
	}

	got := v.digest(password, a.PasswordSalt)
	if !cryptox.Equal(got, a.PasswordDigest) {
		v.metrics.AuthAttempts.WithLabelValues("password", "mismatch").Inc()
		return nil, nil
	}

	v.metrics.AuthAttempts.WithLabelValues("password", "ok").Inc()
	return &models.Account{UserID: a.UserID}, nil
}

// VerifyAccountPassword checks password for a known user id.
func (v *Verifier) VerifyAccountPassword(ctx context.Context, userID, password string) (bool, error) {
	a, err := v.repos.Accounts(v.backend.Store()).GetByUserID(ctx, userID)
	if err != nil {
		return false, err
	}
	return cryptox.Equal(v.digest(password, a.PasswordSalt), a.PasswordDigest), nil
}

func newCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}

// IssueMFACode stores a fresh code for the account, replacing any previous
// one, and emails it. The code is only ever held in plaintext on its way to
// the mailer.
func (v *Verifier) IssueMFACode(ctx context.Context, userID string) error {
	a, err := v.repos.Accounts(v.backend.Store()).GetByUserID(ctx, userID)
	if err != nil {
		return err
	}

	code, err := newCode()
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}

	issued := v.now()
	if err := v.tx.Run(ctx, "mfa.issue", func(ctx context.Context, r *repomanager.Repositories) error {
		return r.Challenges.Put(ctx, userID, code, issued)
	}); err != nil {
		return err
	}

	msg := mail.Message{
		Subject:     "Your sign-in code",
		HTMLBody:    fmt.Sprintf("<p>Your sign-in code is <b>%s</b>. It expires in %d minutes.</p>", code, int(v.cfg.MFAValidity.Minutes())),
		Recipient:   a.Email,
		DisplayName: a.Username,
	}
	if err := v.mailer.Send(ctx, msg); err != nil {
		return common.External("email dispatch", err)
	}

	v.logger.Debug(ctx, "mfa code issued")
	return nil
}

// VerifyMFACode checks code against the live challenge of the account and
// consumes it on success. Missing, consumed and expired challenges all
// verify as false. Each wrong code is counted, and reaching MFAMaxAttempts
// consumes the challenge so further guesses fail until a new code is issued.
func (v *Verifier) VerifyMFACode(ctx context.Context, userID, code string) (bool, error) {
	var ok, locked bool
	err := v.tx.Run(ctx, "mfa.verify", func(ctx context.Context, r *repomanager.Repositories) error {
		ok, locked = false, false

		c, err := r.Challenges.Get(ctx, userID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return nil
			}
			return err
		}
		if !c.Live() {
			return nil
		}
		if v.now().Sub(c.IssuedAt) > v.cfg.MFAValidity {
			return nil
		}
		if !cryptox.EqualString(c.Code, code) {
			attempts := c.Attempts + 1
			if attempts >= v.cfg.MFAMaxAttempts {
				locked = true
				return r.Challenges.Consume(ctx, userID)
			}
			return r.Challenges.RecordFailure(ctx, userID, attempts)
		}

		ok = true
		return r.Challenges.Consume(ctx, userID)
	})
	if err != nil {
		v.metrics.AuthAttempts.WithLabelValues("mfa", "error").Inc()
		return false, err
	}

	result := "rejected"
	switch {
	case ok:
		result = "ok"
	case locked:
		result = "locked"
		v.logger.Warn(ctx, "mfa challenge burned after too many wrong codes")
	}
	v.metrics.AuthAttempts.WithLabelValues("mfa", result).Inc()
	return ok, nil
}

// MFAValidity is how long an issued code stays usable.
func (v *Verifier) MFAValidity() time.Duration { return v.cfg.MFAValidity }
