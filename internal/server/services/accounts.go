package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	"github.com/dmitrijs2005/learnkeeper/internal/common"
	"github.com/dmitrijs2005/learnkeeper/internal/logging"
	"github.com/dmitrijs2005/learnkeeper/internal/server/models"
	"github.com/dmitrijs2005/learnkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/learnkeeper/internal/server/schema"
	"github.com/dmitrijs2005/learnkeeper/internal/server/sessions"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{2,31}$`)

const maxProgressBytes = 256 << 10

// AccountView is what an account owner may see about their account.
type AccountView struct {
	UserID          string
	Username        string
	Email           string
	Kind            models.AccountKind
	InstitutionID   string
	InstitutionName string
	CourseProgress  json.RawMessage
}

// UserService handles sign-up, the two-step sign-in and account upkeep.
type UserService struct {
	*Deps
	logger logging.Logger
}

func NewUserService(d *Deps) *UserService {
	return &UserService{Deps: d, logger: d.Logger.With("module", "users")}
}

// normalizeEmail lowercases the address so lookups and the unique index
// treat case variants as one mailbox.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateSignUp(username, email string, kind models.AccountKind) error {
	if !usernamePattern.MatchString(username) {
		return common.Policy(schema.FieldUsername, "username must be 3-32 letters, digits, '.', '_' or '-'")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return common.Policy(schema.FieldEmail, "email address is not valid")
	}
	if kind != models.KindIndividual && kind != models.KindAdmin {
		return common.Policy(schema.FieldKind, "account kind must be individual or admin")
	}
	return nil
}

// SignUp creates an account with its payment profile and an empty MFA
// challenge. It returns the new user id.
func (s *UserService) SignUp(ctx context.Context, username, email, pw string, kind models.AccountKind) (string, error) {
	email = normalizeEmail(email)
	if err := validateSignUp(username, email, kind); err != nil {
		return "", err
	}
	if err := s.checkPassword(ctx, pw); err != nil {
		return "", err
	}

	customer, err := s.Processor.CreateCustomer(ctx, email, username)
	if err != nil {
		return "", common.External("payment processor", err)
	}

	userID, err := common.MakeRandHexString(16)
	if err != nil {
		return "", fmt.Errorf("generate user id: %w", err)
	}
	digest, salt := s.Verifier.HashPassword(pw)

	err = s.Tx.Run(ctx, "signup", func(ctx context.Context, r *repomanager.Repositories) error {
		if err := r.Accounts.Create(ctx, &models.Account{
			UserID:         userID,
			Username:       username,
			Email:          email,
			PasswordDigest: digest,
			PasswordSalt:   salt,
			Kind:           kind,
			CustomerID:     customer.ID,
		}); err != nil {
			return err
		}
		if err := r.Payments.Create(ctx, &models.PaymentProfile{UserID: userID, CustomerID: customer.ID}); err != nil {
			return err
		}
		return r.Challenges.Create(ctx, userID)
	})
	if err != nil {
		if derr := s.Processor.DeleteCustomer(ctx, customer.ID); derr != nil {
			s.logger.Warn(ctx, "orphaned payment customer", "error", derr.Error())
		}
		return "", err
	}

	s.logger.Info(ctx, "account created", "kind", string(kind))
	return userID, nil
}

// SignIn checks the password and emails a code. The returned token only
// allows CompleteMFA.
func (s *UserService) SignIn(ctx context.Context, identifier, pw string) (string, error) {
	field := schema.FieldUsername
	if strings.Contains(identifier, "@") {
		field = schema.FieldEmail
		identifier = normalizeEmail(identifier)
	}

	found, err := s.Verifier.Authenticate(ctx, field, identifier, pw)
	if err != nil {
		return "", err
	}
	if found == nil {
		return "", common.ErrorUnauthorized
	}

	acc, err := s.read().Accounts.GetByUserID(ctx, found.UserID)
	if err != nil {
		return "", err
	}
	if err := s.Verifier.IssueMFACode(ctx, acc.UserID); err != nil {
		return "", err
	}
	return s.Sessions.Issue(ctx, acc, true)
}

// CompleteMFA exchanges an MFA-pending session and the emailed code for a
// full session.
func (s *UserService) CompleteMFA(ctx context.Context, c *sessions.Claims, code string) (string, error) {
	if err := requireStage(c, sessions.MFAPending); err != nil {
		return "", err
	}

	ok, err := s.Verifier.VerifyMFACode(ctx, c.UserID, code)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", common.ErrorUnauthorized
	}

	token, err := s.Sessions.Issue(ctx, &models.Account{UserID: c.UserID, Username: c.Username}, false)
	if err != nil {
		return "", err
	}
	if err := s.Sessions.Revoke(ctx, c.UserID, c.TokenID); err != nil {
		logging.LogError(ctx, s.logger, "pending grant not revoked", err)
	}
	return token, nil
}

func (s *UserService) SignOut(ctx context.Context, c *sessions.Claims) error {
	if c == nil {
		return common.ErrorUnauthorized
	}
	return s.Sessions.Revoke(ctx, c.UserID, c.TokenID)
}

func (s *UserService) SignOutEverywhere(ctx context.Context, c *sessions.Claims) error {
	if err := requireStage(c, sessions.Authenticated); err != nil {
		return err
	}
	_, err := s.Sessions.RevokeAll(ctx, c.UserID)
	return err
}

func (s *UserService) GetAccount(ctx context.Context, c *sessions.Claims) (*AccountView, error) {
	if err := requireStage(c, sessions.Authenticated); err != nil {
		return nil, err
	}

	repos := s.read()
	acc, err := repos.Accounts.GetByUserID(ctx, c.UserID)
	if err != nil {
		return nil, err
	}

	v := &AccountView{
		UserID:         acc.UserID,
		Username:       acc.Username,
		Email:          acc.Email,
		Kind:           acc.Kind,
		InstitutionID:  acc.InstitutionID,
		CourseProgress: acc.CourseProgress,
	}
	if acc.Kind == models.KindAdmin {
		inst, err := repos.Institutions.GetByAdmin(ctx, acc.UserID)
		switch {
		case err == nil:
			v.InstitutionID, v.InstitutionName = inst.InstitutionID, inst.Name
		case !isNotFound(err):
			return nil, err
		}
	} else if acc.InstitutionID != "" {
		inst, err := repos.Institutions.GetByID(ctx, acc.InstitutionID)
		if err != nil {
			return nil, err
		}
		v.InstitutionName = inst.Name
	}
	return v, nil
}

// SaveProgress replaces the course progress document of the account.
func (s *UserService) SaveProgress(ctx context.Context, c *sessions.Claims, progress json.RawMessage) error {
	if err := requireStage(c, sessions.Authenticated); err != nil {
		return err
	}
	if len(progress) > maxProgressBytes {
		return common.Policy(schema.FieldCourseProgress, "course progress is too large")
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(progress, &obj); err != nil || obj == nil {
		return common.Policy(schema.FieldCourseProgress, "course progress must be a JSON object")
	}

	return s.Tx.Run(ctx, "progress.save", func(ctx context.Context, r *repomanager.Repositories) error {
		return r.Accounts.UpdateProgress(ctx, c.UserID, progress)
	})
}

// ChangePassword replaces the password and ends every other session.
func (s *UserService) ChangePassword(ctx context.Context, c *sessions.Claims, oldPw, newPw string) error {
	if err := requireStage(c, sessions.Authenticated); err != nil {
		return err
	}

	ok, err := s.Verifier.VerifyAccountPassword(ctx, c.UserID, oldPw)
	if err != nil {
		return err
	}
	if !ok {
		return common.ErrorUnauthorized
	}
	if err := s.checkPassword(ctx, newPw); err != nil {
		return err
	}

	digest, salt := s.Verifier.HashPassword(newPw)
	if err := s.Tx.Run(ctx, "password.change", func(ctx context.Context, r *repomanager.Repositories) error {
		return r.Accounts.UpdatePassword(ctx, c.UserID, digest, salt)
	}); err != nil {
		return err
	}

	n, err := s.Sessions.RevokeOthers(ctx, c.UserID, c.TokenID)
	if err != nil {
		return err
	}
	s.logger.Info(ctx, "password changed", "revoked_sessions", n)
	return nil
}

// DeleteAccount removes the account and everything hanging off it. Admins
// must delete their institution first.
func (s *UserService) DeleteAccount(ctx context.Context, c *sessions.Claims, pw string) error {
	if err := requireStage(c, sessions.Authenticated); err != nil {
		return err
	}

	ok, err := s.Verifier.VerifyAccountPassword(ctx, c.UserID, pw)
	if err != nil {
		return err
	}
	if !ok {
		return common.ErrorUnauthorized
	}

	var customerID string
	err = s.Tx.Run(ctx, "account.delete", func(ctx context.Context, r *repomanager.Repositories) error {
		acc, err := r.Accounts.GetByUserID(ctx, c.UserID)
		if err != nil {
			return err
		}
		customerID = acc.CustomerID

		if acc.Kind == models.KindAdmin {
			_, err := r.Institutions.GetByAdmin(ctx, acc.UserID)
			if err == nil {
				return common.Precondition("delete your institution before deleting your account")
			}
			if !isNotFound(err) {
				return err
			}
		}
		if acc.InstitutionID != "" {
			if err := r.Institutions.RemoveMember(ctx, acc.InstitutionID, acc.UserID); err != nil && !isNotFound(err) {
				return err
			}
		}

		if err := r.Accounts.Delete(ctx, acc.UserID); err != nil {
			return err
		}
		if err := r.Payments.Delete(ctx, acc.UserID); err != nil {
			return err
		}
		if err := r.Challenges.Delete(ctx, acc.UserID); err != nil {
			return err
		}
		_, err = r.Grants.DeleteByUser(ctx, acc.UserID)
		return err
	})
	if err != nil {
		return err
	}

	if customerID != "" {
		if err := s.Processor.DeleteCustomer(ctx, customerID); err != nil {
			s.logger.Warn(ctx, "payment customer not deleted", "error", err.Error())
		}
	}
	s.logger.Info(ctx, "account deleted")
	return nil
}
