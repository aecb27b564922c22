package payments

import (
	"context"
	"encoding/json"

	"github.com/dmitrijs2005/learnkeeper/internal/common"
	"github.com/dmitrijs2005/learnkeeper/internal/server/models"
	"github.com/dmitrijs2005/learnkeeper/internal/server/query"
	"github.com/dmitrijs2005/learnkeeper/internal/server/schema"
)

type RecordRepository struct {
	t *query.Table
}

func NewRecordRepository(t *query.Table) *RecordRepository {
	return &RecordRepository{t: t}
}

func (r *RecordRepository) Create(ctx context.Context, p *models.PaymentProfile) error {
	paid := p.PaidCourses
	if paid == nil {
		paid = map[string]bool{}
	}
	_, err := r.t.Insert(ctx, models.Values{
		schema.FieldUserID:         p.UserID,
		schema.FieldCustomerID:     p.CustomerID,
		schema.FieldInstitutionID:  p.InstitutionID,
		schema.FieldSubscriptionID: p.SubscriptionID,
		schema.FieldPaidCourses:    paid,
	})
	return err
}

func (r *RecordRepository) GetByUserID(ctx context.Context, userID string) (*models.PaymentProfile, error) {
	rec, err := r.t.FindOne(ctx, schema.FieldUserID, userID)
	if err != nil {
		return nil, err
	}

	p := &models.PaymentProfile{
		UserID:         rec.Values.String(schema.FieldUserID),
		CustomerID:     rec.Values.String(schema.FieldCustomerID),
		InstitutionID:  rec.Values.String(schema.FieldInstitutionID),
		SubscriptionID: rec.Values.String(schema.FieldSubscriptionID),
		PaidCourses:    map[string]bool{},
	}
	if raw := rec.Values.Raw(schema.FieldPaidCourses); len(raw) > 0 {
		if err := json.Unmarshal(raw, &p.PaidCourses); err != nil {
			return nil, common.Decryption(schema.FieldPaidCourses, err)
		}
	}
	return p, nil
}

func (r *RecordRepository) SetInstitution(ctx context.Context, userID, institutionID string) error {
	return r.t.UpdateOne(ctx, schema.FieldUserID, userID, models.Values{schema.FieldInstitutionID: institutionID})
}

func (r *RecordRepository) ResetInstitution(ctx context.Context, institutionID string) (int64, error) {
	return r.t.UpdateWhere(ctx, schema.FieldInstitutionID, institutionID, models.Values{schema.FieldInstitutionID: ""})
}

func (r *RecordRepository) SetSubscription(ctx context.Context, userID, subscriptionID string) error {
	return r.t.UpdateOne(ctx, schema.FieldUserID, userID, models.Values{schema.FieldSubscriptionID: subscriptionID})
}

// MarkPaid sets the paid flag of courseID. Callers run it inside a
// transaction since it reads and rewrites the whole flag set.
func (r *RecordRepository) MarkPaid(ctx context.Context, userID, courseID string) error {
	p, err := r.GetByUserID(ctx, userID)
	if err != nil {
		return err
	}
	p.PaidCourses[courseID] = true
	return r.t.UpdateOne(ctx, schema.FieldUserID, userID, models.Values{schema.FieldPaidCourses: p.PaidCourses})
}

func (r *RecordRepository) Delete(ctx context.Context, userID string) error {
	_, err := r.t.DeleteWhere(ctx, schema.FieldUserID, userID)
	return err
}
