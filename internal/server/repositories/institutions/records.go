package institutions

import (
	"context"
	"encoding/json"
	"slices"

	"github.com/dmitrijs2005/learnkeeper/internal/common"
	"github.com/dmitrijs2005/learnkeeper/internal/server/models"
	"github.com/dmitrijs2005/learnkeeper/internal/server/query"
	"github.com/dmitrijs2005/learnkeeper/internal/server/schema"
)

// MemberHasher maps a user id to the hash stored in rosters.
type MemberHasher func(userID string) (string, error)

type RecordRepository struct {
	t    *query.Table
	hash MemberHasher
}

func NewRecordRepository(t *query.Table, hash MemberHasher) *RecordRepository {
	return &RecordRepository{t: t, hash: hash}
}

func (r *RecordRepository) Create(ctx context.Context, inst *models.Institution) error {
	members := inst.Members
	if members == nil {
		members = []string{}
	}
	_, err := r.t.Insert(ctx, models.Values{
		schema.FieldInstitutionID:  inst.InstitutionID,
		schema.FieldAdminID:        inst.AdminID,
		schema.FieldJoinCode:       inst.JoinCode,
		schema.FieldName:           inst.Name,
		schema.FieldSubscriptionID: inst.SubscriptionID,
		schema.FieldMembers:        members,
	})
	return err
}

func (r *RecordRepository) get(ctx context.Context, field, value string) (*models.Institution, error) {
	rec, err := r.t.FindOne(ctx, field, value)
	if err != nil {
		return nil, err
	}

	inst := &models.Institution{
		InstitutionID:  rec.Values.String(schema.FieldInstitutionID),
		AdminID:        rec.Values.String(schema.FieldAdminID),
		JoinCode:       rec.Values.String(schema.FieldJoinCode),
		Name:           rec.Values.String(schema.FieldName),
		SubscriptionID: rec.Values.String(schema.FieldSubscriptionID),
	}
	if raw := rec.Values.Raw(schema.FieldMembers); len(raw) > 0 {
		if err := json.Unmarshal(raw, &inst.Members); err != nil {
			return nil, common.Decryption(schema.FieldMembers, err)
		}
	}
	return inst, nil
}

func (r *RecordRepository) GetByID(ctx context.Context, institutionID string) (*models.Institution, error) {
	return r.get(ctx, schema.FieldInstitutionID, institutionID)
}

func (r *RecordRepository) GetByAdmin(ctx context.Context, adminID string) (*models.Institution, error) {
	return r.get(ctx, schema.FieldAdminID, adminID)
}

func (r *RecordRepository) GetByJoinCode(ctx context.Context, joinCode string) (*models.Institution, error) {
	return r.get(ctx, schema.FieldJoinCode, joinCode)
}

func (r *RecordRepository) JoinCodeTaken(ctx context.Context, joinCode string) (bool, error) {
	return r.t.Exists(ctx, schema.FieldJoinCode, joinCode)
}

func (r *RecordRepository) AddMember(ctx context.Context, institutionID, userID string) error {
	return r.editRoster(ctx, institutionID, userID, func(members []string, h string) []string {
		if slices.Contains(members, h) {
			return members
		}
		return append(members, h)
	})
}

func (r *RecordRepository) RemoveMember(ctx context.Context, institutionID, userID string) error {
	return r.editRoster(ctx, institutionID, userID, func(members []string, h string) []string {
		return slices.DeleteFunc(members, func(m string) bool { return m == h })
	})
}

func (r *RecordRepository) editRoster(ctx context.Context, institutionID, userID string, edit func([]string, string) []string) error {
	h, err := r.hash(userID)
	if err != nil {
		return err
	}
	inst, err := r.GetByID(ctx, institutionID)
	if err != nil {
		return err
	}
	members := edit(inst.Members, h)
	if members == nil {
		members = []string{}
	}
	return r.t.UpdateOne(ctx, schema.FieldInstitutionID, institutionID, models.Values{schema.FieldMembers: members})
}

func (r *RecordRepository) SetSubscription(ctx context.Context, institutionID, subscriptionID string) error {
	return r.t.UpdateOne(ctx, schema.FieldInstitutionID, institutionID, models.Values{schema.FieldSubscriptionID: subscriptionID})
}

func (r *RecordRepository) Delete(ctx context.Context, institutionID string) error {
	n, err := r.t.DeleteWhere(ctx, schema.FieldInstitutionID, institutionID)
	if err != nil {
		return err
	}
	if n == 0 {
		return common.NotFound(schema.Institutions, schema.FieldInstitutionID)
	}
	return nil
}
