package challenges

import (
	"context"
	"encoding/json"
	"time"

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

func (r *RecordRepository) Create(ctx context.Context, userID string) error {
	_, err := r.t.Insert(ctx, models.Values{
		schema.FieldUserID:   userID,
		schema.FieldCode:     "",
		schema.FieldIssuedAt: nil,
		schema.FieldAttempts: 0,
	})
	return err
}

func (r *RecordRepository) Put(ctx context.Context, userID, code string, issuedAt time.Time) error {
	return r.t.UpdateOne(ctx, schema.FieldUserID, userID, models.Values{
		schema.FieldCode:     code,
		schema.FieldIssuedAt: issuedAt.UTC(),
		schema.FieldAttempts: 0,
	})
}

func (r *RecordRepository) Get(ctx context.Context, userID string) (*models.AuthChallenge, error) {
	rec, err := r.t.FindOne(ctx, schema.FieldUserID, userID, schema.FieldCode, schema.FieldIssuedAt, schema.FieldAttempts)
	if err != nil {
		return nil, err
	}

	c := &models.AuthChallenge{UserID: userID, Code: rec.Values.String(schema.FieldCode)}
	if raw := rec.Values.Raw(schema.FieldIssuedAt); len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &c.IssuedAt); err != nil {
			return nil, common.Decryption(schema.FieldIssuedAt, err)
		}
	}
	if raw := rec.Values.Raw(schema.FieldAttempts); len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &c.Attempts); err != nil {
			return nil, common.Decryption(schema.FieldAttempts, err)
		}
	}
	return c, nil
}

func (r *RecordRepository) RecordFailure(ctx context.Context, userID string, attempts int) error {
	return r.t.UpdateOne(ctx, schema.FieldUserID, userID, models.Values{schema.FieldAttempts: attempts})
}

func (r *RecordRepository) Consume(ctx context.Context, userID string) error {
	return r.t.UpdateOne(ctx, schema.FieldUserID, userID, models.Values{
		schema.FieldCode:     "",
		schema.FieldIssuedAt: nil,
		schema.FieldAttempts: 0,
	})
}

func (r *RecordRepository) Delete(ctx context.Context, userID string) error {
	_, err := r.t.DeleteWhere(ctx, schema.FieldUserID, userID)
	return err
}
