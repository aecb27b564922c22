package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	s := Default()
	assert.Equal(t, []string{Accounts, Challenges, Grants, Institutions, Payments}, s.Names())

	acc := s.MustCollection(Accounts)
	f, ok := acc.Field(FieldEmail)
	require.True(t, ok)
	assert.Equal(t, Indexed, f.Class)
	assert.True(t, f.Unique)

	f, ok = acc.Field(FieldInstitutionID)
	require.True(t, ok)
	assert.False(t, f.Unique, "institution membership is not unique")

	var names []string
	for _, u := range acc.Unique() {
		names = append(names, u.Name)
	}
	assert.Equal(t, []string{FieldUserID, FieldUsername, FieldEmail, FieldCustomerID}, names)
}

func TestNew_RejectsInvalidDeclarations(t *testing.T) {
	tests := []struct {
		name string
		c    Collection
	}{
		{"bad collection name", Collection{Name: "Bad-Name", Fields: []Field{{Name: "a", Encoding: UTF8, Class: Indexed}}}},
		{"no fields", Collection{Name: "c"}},
		{"unknown encoding", Collection{Name: "c", Fields: []Field{{Name: "a", Encoding: "rot13", Class: Indexed}}}},
		{"unknown class", Collection{Name: "c", Fields: []Field{{Name: "a", Encoding: UTF8, Class: "plain"}}}},
		{"object encrypted", Collection{Name: "c", Fields: []Field{{Name: "a", Encoding: Object, Class: Encrypted}}}},
		{"opaque non-object", Collection{Name: "c", Fields: []Field{{Name: "a", Encoding: UTF8, Class: Opaque}}}},
		{"unique encrypted-only", Collection{Name: "c", Fields: []Field{{Name: "a", Encoding: UTF8, Class: Encrypted, Unique: true}}}},
		{"duplicate field", Collection{Name: "c", Fields: []Field{
			{Name: "a", Encoding: UTF8, Class: Indexed},
			{Name: "a", Encoding: Hex, Class: Indexed},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.c)
			assert.Error(t, err)
		})
	}
}

func TestNew_DuplicateCollection(t *testing.T) {
	c := Collection{Name: "c", Fields: []Field{{Name: "a", Encoding: UTF8, Class: Indexed}}}
	_, err := New(c, c)
	assert.Error(t, err)
}

func TestCollection_Unknown(t *testing.T) {
	_, err := Default().Collection("nope")
	assert.Error(t, err)
	assert.Panics(t, func() { Default().MustCollection("nope") })
}

func TestUniqueIndexName(t *testing.T) {
	assert.Equal(t, "documents_accounts_email_uq", UniqueIndexName(Accounts, FieldEmail))
}

func TestUniqueFields(t *testing.T) {
	u := Default().UniqueFields()
	assert.Equal(t, []string{FieldTokenID}, u[Grants])
	assert.Equal(t, []string{FieldInstitutionID, FieldAdminID, FieldJoinCode}, u[Institutions])
}
