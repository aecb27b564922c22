package accounts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/learnkeeper/internal/common"
	"github.com/dmitrijs2005/learnkeeper/internal/server/models"
	"github.com/dmitrijs2005/learnkeeper/internal/server/query"
	"github.com/dmitrijs2005/learnkeeper/internal/server/schema"
)

// RecordRepository keeps accounts in the encrypted record store.
type RecordRepository struct {
	t *query.Table
}

func NewRecordRepository(t *query.Table) *RecordRepository {
	return &RecordRepository{t: t}
}

func (r *RecordRepository) Create(ctx context.Context, a *models.Account) error {
	progress := a.CourseProgress
	if len(progress) == 0 {
		progress = json.RawMessage(`{}`)
	}

	_, err := r.t.Insert(ctx, models.Values{
		schema.FieldUserID:         a.UserID,
		schema.FieldUsername:       a.Username,
		schema.FieldEmail:          a.Email,
		schema.FieldCustomerID:     a.CustomerID,
		schema.FieldInstitutionID:  a.InstitutionID,
		schema.FieldPasswordDigest: base64.StdEncoding.EncodeToString(a.PasswordDigest),
		schema.FieldPasswordSalt:   base64.StdEncoding.EncodeToString(a.PasswordSalt),
		schema.FieldKind:           string(a.Kind),
		schema.FieldCourseProgress: progress,
	})
	return err
}

func (r *RecordRepository) GetByUserID(ctx context.Context, userID string) (*models.Account, error) {
	rec, err := r.t.FindOne(ctx, schema.FieldUserID, userID)
	if err != nil {
		return nil, err
	}
	return fromValues(rec.Values)
}

func (r *RecordRepository) GetCredentials(ctx context.Context, field, identifier string) (*models.Account, error) {
	if field != schema.FieldUsername && field != schema.FieldEmail {
		return nil, fmt.Errorf("accounts cannot be identified by %q", field)
	}
	rec, err := r.t.FindOne(ctx, field, identifier,
		schema.FieldUserID, schema.FieldPasswordDigest, schema.FieldPasswordSalt)
	if err != nil {
		return nil, err
	}
	return fromValues(rec.Values)
}

func (r *RecordRepository) ListByInstitution(ctx context.Context, institutionID string) ([]*models.Account, error) {
	recs, err := r.t.FindByIndex(ctx, schema.FieldInstitutionID, institutionID,
		schema.FieldUserID, schema.FieldUsername, schema.FieldKind)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Account, 0, len(recs))
	for _, rec := range recs {
		a, err := fromValues(rec.Values)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *RecordRepository) UpdateProgress(ctx context.Context, userID string, progress json.RawMessage) error {
	return r.t.UpdateOne(ctx, schema.FieldUserID, userID, models.Values{schema.FieldCourseProgress: progress})
}

func (r *RecordRepository) UpdatePassword(ctx context.Context, userID string, digest, salt []byte) error {
	return r.t.UpdateOne(ctx, schema.FieldUserID, userID, models.Values{
		schema.FieldPasswordDigest: base64.StdEncoding.EncodeToString(digest),
		schema.FieldPasswordSalt:   base64.StdEncoding.EncodeToString(salt),
	})
}

func (r *RecordRepository) UpdateMembership(ctx context.Context, userID string, kind models.AccountKind, institutionID string) error {
	return r.t.UpdateOne(ctx, schema.FieldUserID, userID, models.Values{
		schema.FieldKind:          string(kind),
		schema.FieldInstitutionID: institutionID,
	})
}

// ResetInstitution turns every member of institutionID back into an
// individual account.
func (r *RecordRepository) ResetInstitution(ctx context.Context, institutionID string) (int64, error) {
	return r.t.UpdateWhere(ctx, schema.FieldInstitutionID, institutionID, models.Values{
		schema.FieldKind:          string(models.KindIndividual),
		schema.FieldInstitutionID: "",
	})
}

func (r *RecordRepository) Delete(ctx context.Context, userID string) error {
	n, err := r.t.DeleteWhere(ctx, schema.FieldUserID, userID)
	if err != nil {
		return err
	}
	if n == 0 {
		return common.NotFound(schema.Accounts, schema.FieldUserID)
	}
	return nil
}

func (r *RecordRepository) UserHash(userID string) (string, error) {
	return r.t.Hash(schema.FieldUserID, userID)
}

func fromValues(v models.Values) (*models.Account, error) {
	a := &models.Account{
		UserID:         v.String(schema.FieldUserID),
		Username:       v.String(schema.FieldUsername),
		Email:          v.String(schema.FieldEmail),
		Kind:           models.AccountKind(v.String(schema.FieldKind)),
		CustomerID:     v.String(schema.FieldCustomerID),
		InstitutionID:  v.String(schema.FieldInstitutionID),
		CourseProgress: v.Raw(schema.FieldCourseProgress),
	}

	var err error
	if s := v.String(schema.FieldPasswordDigest); s != "" {
		if a.PasswordDigest, err = base64.StdEncoding.DecodeString(s); err != nil {
			return nil, common.Decryption(schema.FieldPasswordDigest, err)
		}
	}
	if s := v.String(schema.FieldPasswordSalt); s != "" {
		if a.PasswordSalt, err = base64.StdEncoding.DecodeString(s); err != nil {
			return nil, common.Decryption(schema.FieldPasswordSalt, err)
		}
	}
	return a, nil
}
