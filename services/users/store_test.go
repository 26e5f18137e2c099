package users

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tasklinker/authcore/testutils"
)

func newTestStore(t *testing.T) Store {
	db := testutils.SetupTestDB(t, &User{})
	return NewStore(db)
}

func TestStore_CreateAndFind(t *testing.T) {
	store := newTestStore(t)

	user := &User{
		Email:    "Alice@Example.com",
		Name:     "Alice",
		Role:     RoleFreelancer,
		Active:   true,
		Verified: true,
	}
	require.NoError(t, store.Create(user))
	assert.NotZero(t, user.ID)
	assert.Equal(t, testutils.TestEmails.Freelancer, user.Email)

	found, err := store.FindByEmail("  ALICE@example.com ")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)
	assert.Equal(t, RoleFreelancer, found.Role)
}

func TestStore_FindByEmail_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.FindByEmail(testutils.TestEmails.Unknown)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Create_DuplicateEmail(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Create(&User{Email: "a@x.com", Role: RoleClient, Active: true}))

	err := store.Create(&User{Email: "A@X.com", Role: RoleFreelancer, Active: true})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestStore_Create_InvalidRole(t *testing.T) {
	store := newTestStore(t)

	err := store.Create(&User{Email: "a@x.com", Role: "superuser"})
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestStore_Deactivate(t *testing.T) {
	store := newTestStore(t)

	user := &User{Email: "a@x.com", Role: RoleClient, Active: true}
	require.NoError(t, store.Create(user))

	require.NoError(t, store.Deactivate(user.ID))

	found, err := store.FindByEmail("a@x.com")
	require.NoError(t, err)
	assert.False(t, found.Active)
}

func TestStore_Deactivate_MissingUser(t *testing.T) {
	store := newTestStore(t)

	assert.ErrorIs(t, store.Deactivate(999), ErrNotFound)
	assert.ErrorIs(t, store.Deactivate(0), ErrInvalidUserID)
}

func TestValidRole(t *testing.T) {
	assert.True(t, ValidRole(RoleClient))
	assert.True(t, ValidRole(RoleFreelancer))
	assert.True(t, ValidRole(RoleAdmin))
	assert.False(t, ValidRole("manager"))
	assert.False(t, ValidRole(""))
}
