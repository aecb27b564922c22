package repomanager

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/dmitrijs2005/learnkeeper/internal/common"
	"github.com/dmitrijs2005/learnkeeper/internal/cryptox"
	"github.com/dmitrijs2005/learnkeeper/internal/logging"
	"github.com/dmitrijs2005/learnkeeper/internal/server/codec"
	"github.com/dmitrijs2005/learnkeeper/internal/server/docstore"
	"github.com/dmitrijs2005/learnkeeper/internal/server/models"
	"github.com/dmitrijs2005/learnkeeper/internal/server/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepos(t *testing.T) *Repositories {
	t.Helper()
	cfg := codec.DefaultConfig()
	cfg.KDF = cryptox.KDFParams{Iterations: 1, MemoryKiB: 64, Parallelism: 1}
	c, err := codec.New([]byte("repo-test-secret"), cfg)
	require.NoError(t, err)

	s := schema.Default()
	backend := docstore.NewMemoryBackend(s.UniqueFields())
	var m RepositoryManager = NewRecordRepositoryManager(s, c, logging.Nop(), nil)
	return m.Bind(backend.Store())
}

func TestAccounts(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()

	acc := &models.Account{
		UserID:         "u1",
		Username:       "alice",
		Email:          "alice@example.com",
		PasswordDigest: []byte{1, 2, 3},
		PasswordSalt:   []byte{4, 5, 6},
		Kind:           models.KindIndividual,
		CustomerID:     "cus_1",
	}
	require.NoError(t, r.Accounts.Create(ctx, acc))

	got, err := r.Accounts.GetByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, models.KindIndividual, got.Kind)
	assert.JSONEq(t, `{}`, string(got.CourseProgress))

	cred, err := r.Accounts.GetCredentials(ctx, schema.FieldEmail, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", cred.UserID)
	assert.Equal(t, []byte{1, 2, 3}, cred.PasswordDigest)
	assert.Equal(t, []byte{4, 5, 6}, cred.PasswordSalt)
	assert.Empty(t, cred.Username, "only credential fields are decrypted")

	_, err = r.Accounts.GetCredentials(ctx, schema.FieldCustomerID, "cus_1")
	assert.Error(t, err)

	dup := *acc
	dup.UserID = "u2"
	dup.CustomerID = "cus_2"
	err = r.Accounts.Create(ctx, &dup)
	assert.ErrorIs(t, err, common.ErrorDuplicateKey)

	require.NoError(t, r.Accounts.UpdateProgress(ctx, "u1", json.RawMessage(`{"c1":2}`)))
	require.NoError(t, r.Accounts.UpdatePassword(ctx, "u1", []byte{9}, []byte{8}))
	got, err = r.Accounts.GetByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"c1":2}`, string(got.CourseProgress))
	assert.Equal(t, []byte{9}, got.PasswordDigest)

	require.NoError(t, r.Accounts.Delete(ctx, "u1"))
	_, err = r.Accounts.GetByUserID(ctx, "u1")
	assert.ErrorIs(t, err, common.ErrorNotFound)
	assert.ErrorIs(t, r.Accounts.Delete(ctx, "u1"), common.ErrorNotFound)
}

func TestAccounts_Membership(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()

	for _, u := range []string{"s1", "s2"} {
		require.NoError(t, r.Accounts.Create(ctx, &models.Account{UserID: u, Username: u, Email: u + "@x.io", Kind: models.KindIndividual}))
		require.NoError(t, r.Accounts.UpdateMembership(ctx, u, models.KindStudent, "inst-1"))
	}

	members, err := r.Accounts.ListByInstitution(ctx, "inst-1")
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, models.KindStudent, members[0].Kind)

	n, err := r.Accounts.ResetInstitution(ctx, "inst-1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	got, err := r.Accounts.GetByUserID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.KindIndividual, got.Kind)
	assert.Empty(t, got.InstitutionID)
}

func TestPayments(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()

	require.NoError(t, r.Payments.Create(ctx, &models.PaymentProfile{UserID: "u1", CustomerID: "cus_1"}))
	require.NoError(t, r.Payments.MarkPaid(ctx, "u1", "go-101"))
	require.NoError(t, r.Payments.MarkPaid(ctx, "u1", "rust-201"))
	require.NoError(t, r.Payments.SetSubscription(ctx, "u1", "sub_9"))
	require.NoError(t, r.Payments.SetInstitution(ctx, "u1", "inst-1"))

	p, err := r.Payments.GetByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"go-101": true, "rust-201": true}, p.PaidCourses)
	assert.Equal(t, "sub_9", p.SubscriptionID)
	assert.Equal(t, "inst-1", p.InstitutionID)

	n, err := r.Payments.ResetInstitution(ctx, "inst-1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	require.NoError(t, r.Payments.Delete(ctx, "u1"))
	_, err = r.Payments.GetByUserID(ctx, "u1")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestChallenges(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()

	require.NoError(t, r.Challenges.Create(ctx, "u1"))
	c, err := r.Challenges.Get(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, c.Live())

	issued := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	require.NoError(t, r.Challenges.Put(ctx, "u1", "123456", issued))
	require.NoError(t, r.Challenges.Put(ctx, "u1", "654321", issued.Add(time.Minute)))

	c, err = r.Challenges.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "654321", c.Code, "a new code replaces the previous one")
	assert.True(t, issued.Add(time.Minute).Equal(c.IssuedAt))
	assert.Zero(t, c.Attempts)

	require.NoError(t, r.Challenges.RecordFailure(ctx, "u1", 2))
	c, err = r.Challenges.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, c.Attempts)
	assert.Equal(t, "654321", c.Code, "a failure keeps the code")

	require.NoError(t, r.Challenges.Consume(ctx, "u1"))
	c, err = r.Challenges.Get(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, c.Live())
	assert.True(t, c.IssuedAt.IsZero())
}

func TestGrants(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()

	created := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	for _, tok := range []string{"t1", "t2"} {
		require.NoError(t, r.Grants.Create(ctx, &models.SessionGrant{UserID: "u1", TokenID: tok, CreatedAt: created}))
	}
	require.NoError(t, r.Grants.Create(ctx, &models.SessionGrant{UserID: "u2", TokenID: "t3", CreatedAt: created}))

	g, err := r.Grants.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "u1", g.UserID)
	assert.True(t, created.Equal(g.CreatedAt))

	list, err := r.Grants.ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 2, "several grants per account are allowed")

	n, err := r.Grants.Delete(ctx, "t1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = r.Grants.DeleteByUser(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = r.Grants.Get(ctx, "t3")
	require.NoError(t, err)
}

func TestInstitutions(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()

	inst := &models.Institution{InstitutionID: "i1", AdminID: "admin", JoinCode: "JOIN1", Name: "Uni"}
	require.NoError(t, r.Institutions.Create(ctx, inst))

	err := r.Institutions.Create(ctx, &models.Institution{InstitutionID: "i2", AdminID: "admin", JoinCode: "JOIN2"})
	assert.ErrorIs(t, err, common.ErrorDuplicateKey, "one institution per admin")

	require.NoError(t, r.Institutions.AddMember(ctx, "i1", "s1"))
	require.NoError(t, r.Institutions.AddMember(ctx, "i1", "s1"))
	require.NoError(t, r.Institutions.AddMember(ctx, "i1", "s2"))

	got, err := r.Institutions.GetByJoinCode(ctx, "JOIN1")
	require.NoError(t, err)
	assert.Equal(t, "Uni", got.Name)
	require.Len(t, got.Members, 2)
	h, err := r.Accounts.UserHash("s1")
	require.NoError(t, err)
	assert.Equal(t, h, got.Members[0], "rosters hold account hashes, not ids")

	require.NoError(t, r.Institutions.RemoveMember(ctx, "i1", "s1"))
	require.NoError(t, r.Institutions.SetSubscription(ctx, "i1", "sub_1"))
	got, err = r.Institutions.GetByAdmin(ctx, "admin")
	require.NoError(t, err)
	assert.Len(t, got.Members, 1)
	assert.Equal(t, "sub_1", got.SubscriptionID)

	require.NoError(t, r.Institutions.Delete(ctx, "i1"))
	_, err = r.Institutions.GetByID(ctx, "i1")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}
