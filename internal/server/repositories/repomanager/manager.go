// Package repomanager vends entity repositories bound to a document store
// handle, which is either the backend's auto-commit store or the store of an
// open transaction.
package repomanager

import (
	"github.com/dmitrijs2005/learnkeeper/internal/logging"
	"github.com/dmitrijs2005/learnkeeper/internal/server/codec"
	"github.com/dmitrijs2005/learnkeeper/internal/server/docstore"
	"github.com/dmitrijs2005/learnkeeper/internal/server/query"
	"github.com/dmitrijs2005/learnkeeper/internal/server/records"
	"github.com/dmitrijs2005/learnkeeper/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/learnkeeper/internal/server/repositories/challenges"
	"github.com/dmitrijs2005/learnkeeper/internal/server/repositories/grants"
	"github.com/dmitrijs2005/learnkeeper/internal/server/repositories/institutions"
	"github.com/dmitrijs2005/learnkeeper/internal/server/repositories/payments"
	"github.com/dmitrijs2005/learnkeeper/internal/server/schema"
	"github.com/dmitrijs2005/learnkeeper/internal/timex"
)

type RepositoryManager interface {
	Accounts(s docstore.Store) accounts.Repository
	Payments(s docstore.Store) payments.Repository
	Challenges(s docstore.Store) challenges.Repository
	Grants(s docstore.Store) grants.Repository
	Institutions(s docstore.Store) institutions.Repository
	Bind(s docstore.Store) *Repositories
}

// Repositories is every repository bound to the same store handle.
type Repositories struct {
	Accounts     accounts.Repository
	Payments     payments.Repository
	Challenges   challenges.Repository
	Grants       grants.Repository
	Institutions institutions.Repository
}

// RecordRepositoryManager builds repositories over the encrypted record store.
type RecordRepositoryManager struct {
	schema *schema.Schema
	codec  *codec.Codec
	logger logging.Logger
	now    timex.Clock
}

func NewRecordRepositoryManager(s *schema.Schema, c *codec.Codec, l logging.Logger, now timex.Clock) *RecordRepositoryManager {
	return &RecordRepositoryManager{schema: s, codec: c, logger: l.With("module", "records"), now: now}
}

func (m *RecordRepositoryManager) table(s docstore.Store, collection string) *query.Table {
	rec := records.New(m.schema.MustCollection(collection), m.codec, s, m.logger, m.now)
	return query.NewTable(rec)
}

func (m *RecordRepositoryManager) Accounts(s docstore.Store) accounts.Repository {
	return accounts.NewRecordRepository(m.table(s, schema.Accounts))
}

func (m *RecordRepositoryManager) Payments(s docstore.Store) payments.Repository {
	return payments.NewRecordRepository(m.table(s, schema.Payments))
}

func (m *RecordRepositoryManager) Challenges(s docstore.Store) challenges.Repository {
	return challenges.NewRecordRepository(m.table(s, schema.Challenges))
}

func (m *RecordRepositoryManager) Grants(s docstore.Store) grants.Repository {
	return grants.NewRecordRepository(m.table(s, schema.Grants))
}

func (m *RecordRepositoryManager) Institutions(s docstore.Store) institutions.Repository {
	accountsTable := m.table(s, schema.Accounts)
	hash := func(userID string) (string, error) {
		return accountsTable.Hash(schema.FieldUserID, userID)
	}
	return institutions.NewRecordRepository(m.table(s, schema.Institutions), hash)
}

func (m *RecordRepositoryManager) Bind(s docstore.Store) *Repositories {
	return &Repositories{
		Accounts:     m.Accounts(s),
		Payments:     m.Payments(s),
		Challenges:   m.Challenges(s),
		Grants:       m.Grants(s),
		Institutions: m.Institutions(s),
	}
}
