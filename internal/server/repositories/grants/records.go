package grants

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

func (r *RecordRepository) Create(ctx context.Context, g *models.SessionGrant) error {
	_, err := r.t.Insert(ctx, models.Values{
		schema.FieldTokenID:   g.TokenID,
		schema.FieldUserID:    g.UserID,
		schema.FieldCreatedAt: g.CreatedAt.UTC(),
	})
	return err
}

func (r *RecordRepository) Get(ctx context.Context, tokenID string) (*models.SessionGrant, error) {
	rec, err := r.t.FindOne(ctx, schema.FieldTokenID, tokenID)
	if err != nil {
		return nil, err
	}
	return fromRecord(rec)
}

func (r *RecordRepository) ListByUser(ctx context.Context, userID string) ([]*models.SessionGrant, error) {
	recs, err := r.t.FindByIndex(ctx, schema.FieldUserID, userID)
	if err != nil {
		return nil, err
	}
	out := make([]*models.SessionGrant, 0, len(recs))
	for _, rec := range recs {
		g, err := fromRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

func (r *RecordRepository) Delete(ctx context.Context, tokenID string) (int64, error) {
	return r.t.DeleteWhere(ctx, schema.FieldTokenID, tokenID)
}

func (r *RecordRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	return r.t.DeleteWhere(ctx, schema.FieldUserID, userID)
}

func (r *RecordRepository) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return r.t.DeleteCreatedBefore(ctx, cutoff)
}

func fromRecord(rec models.Record) (*models.SessionGrant, error) {
	g := &models.SessionGrant{
		TokenID:   rec.Values.String(schema.FieldTokenID),
		UserID:    rec.Values.String(schema.FieldUserID),
		CreatedAt: rec.CreatedAt,
	}
	if raw := rec.Values.Raw(schema.FieldCreatedAt); len(raw) > 0 {
		if err := json.Unmarshal(raw, &g.CreatedAt); err != nil {
			return nil, common.Decryption(schema.FieldCreatedAt, err)
		}
	}
	return g, nil
}
