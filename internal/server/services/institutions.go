package services

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/dmitrijs2005/learnkeeper/internal/common"
	"github.com/dmitrijs2005/learnkeeper/internal/logging"
	"github.com/dmitrijs2005/learnkeeper/internal/server/models"
	"github.com/dmitrijs2005/learnkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/learnkeeper/internal/server/schema"
	"github.com/dmitrijs2005/learnkeeper/internal/server/sessions"
	"github.com/google/uuid"
)

const (
	joinCodeBytes    = 5
	joinCodeAttempts = 5
)

// newJoinCode is swapped out in tests.
var newJoinCode = func() (string, error) {
	code, err := common.MakeRandHexString(joinCodeBytes)
	return strings.ToUpper(code), err
}

// allocateJoinCode draws codes until one is not held by another institution.
func allocateJoinCode(ctx context.Context, r *repomanager.Repositories) (string, error) {
	for range joinCodeAttempts {
		code, err := newJoinCode()
		if err != nil {
			return "", err
		}
		taken, err := r.Institutions.JoinCodeTaken(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", common.Precondition("could not allocate a join code, try again")
}

// InstitutionService manages institutions and their student rosters.
type InstitutionService struct {
	*Deps
	logger logging.Logger
}

func NewInstitutionService(d *Deps) *InstitutionService {
	return &InstitutionService{Deps: d, logger: d.Logger.With("module", "institutions")}
}

// CreateInstitution registers an institution administered by the caller,
// who must hold an admin account without one.
func (s *InstitutionService) CreateInstitution(ctx context.Context, c *sessions.Claims, name string) (*models.Institution, error) {
	if err := requireStage(c, sessions.Authenticated); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > 100 {
		return nil, common.Policy(schema.FieldName, "institution name must be 1-100 characters")
	}

	inst := &models.Institution{
		InstitutionID: uuid.NewString(),
		AdminID:       c.UserID,
		Name:          name,
	}

	err := s.Tx.Run(ctx, "institution.create", func(ctx context.Context, r *repomanager.Repositories) error {
		acc, err := r.Accounts.GetByUserID(ctx, c.UserID)
		if err != nil {
			return err
		}
		if acc.Kind != models.KindAdmin {
			return common.ErrorPermission
		}
		if _, err := r.Institutions.GetByAdmin(ctx, c.UserID); err == nil {
			return common.Precondition("you already administer an institution")
		} else if !isNotFound(err) {
			return err
		}
		code, err := allocateJoinCode(ctx, r)
		if err != nil {
			return err
		}
		inst.JoinCode = code
		return r.Institutions.Create(ctx, inst)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "institution created", "institution_id", inst.InstitutionID)
	return inst, nil
}

// JoinInstitution turns an individual account into a student of the
// institution owning joinCode.
func (s *InstitutionService) JoinInstitution(ctx context.Context, c *sessions.Claims, joinCode string) (*models.Institution, error) {
	if err := requireStage(c, sessions.Authenticated); err != nil {
		return nil, err
	}
	joinCode = strings.ToUpper(strings.TrimSpace(joinCode))
	if joinCode == "" {
		return nil, common.Policy(schema.FieldJoinCode, "join code is required")
	}

	var inst *models.Institution
	err := s.Tx.Run(ctx, "institution.join", func(ctx context.Context, r *repomanager.Repositories) error {
		acc, err := r.Accounts.GetByUserID(ctx, c.UserID)
		if err != nil {
			return err
		}
		if acc.Kind != models.KindIndividual {
			return common.Precondition("only individual accounts can join an institution")
		}

		inst, err = r.Institutions.GetByJoinCode(ctx, joinCode)
		if err != nil {
			if isNotFound(err) {
				return common.Policy(schema.FieldJoinCode, "unknown join code")
			}
			return err
		}

		if err := r.Institutions.AddMember(ctx, inst.InstitutionID, acc.UserID); err != nil {
			return err
		}
		if err := r.Accounts.UpdateMembership(ctx, acc.UserID, models.KindStudent, inst.InstitutionID); err != nil {
			return err
		}
		return r.Payments.SetInstitution(ctx, acc.UserID, inst.InstitutionID)
	})
	if err != nil {
		return nil, err
	}
	return inst, nil
}

// LeaveInstitution turns a student back into an individual account.
func (s *InstitutionService) LeaveInstitution(ctx context.Context, c *sessions.Claims) error {
	if err := requireStage(c, sessions.Authenticated); err != nil {
		return err
	}

	return s.Tx.Run(ctx, "institution.leave", func(ctx context.Context, r *repomanager.Repositories) error {
		acc, err := r.Accounts.GetByUserID(ctx, c.UserID)
		if err != nil {
			return err
		}
		if acc.Kind != models.KindStudent || acc.InstitutionID == "" {
			return common.Precondition("you are not a member of an institution")
		}

		if err := r.Institutions.RemoveMember(ctx, acc.InstitutionID, acc.UserID); err != nil && !isNotFound(err) {
			return err
		}
		if err := r.Accounts.UpdateMembership(ctx, acc.UserID, models.KindIndividual, ""); err != nil {
			return err
		}
		return r.Payments.SetInstitution(ctx, acc.UserID, "")
	})
}

// DeleteInstitution removes the caller's institution and returns every
// member to an individual account.
func (s *InstitutionService) DeleteInstitution(ctx context.Context, c *sessions.Claims) error {
	if err := requireStage(c, sessions.Authenticated); err != nil {
		return err
	}

	var released int64
	err := s.Tx.Run(ctx, "institution.delete", func(ctx context.Context, r *repomanager.Repositories) error {
		inst, err := r.Institutions.GetByAdmin(ctx, c.UserID)
		if err != nil {
			return err
		}
		if released, err = r.Accounts.ResetInstitution(ctx, inst.InstitutionID); err != nil {
			return err
		}
		if _, err := r.Payments.ResetInstitution(ctx, inst.InstitutionID); err != nil {
			return err
		}
		return r.Institutions.Delete(ctx, inst.InstitutionID)
	})
	if err != nil {
		return err
	}

	s.logger.Info(ctx, "institution deleted", "released_members", released)
	return nil
}
