package graph_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graph-identity/backend/internal/graph"
	"graph-identity/backend/internal/identity"
	apperrors "graph-identity/backend/pkg/errors"
)

func TestSetters_PersistOnlyTheirField(t *testing.T) {
	store, _, clock := newTestStore(t, false)
	ctx := context.Background()
	created := createPrincipal(t, store, "alice", "alice@example.com")

	first, err := store.FindByID(ctx, created.ID)
	require.NoError(t, err)
	second, err := store.FindByID(ctx, created.ID)
	require.NoError(t, err)

	clock.Advance(time.Hour)
	require.NoError(t, store.SetPhoneNumber(ctx, first, "+15550123"))
	require.NoError(t, store.SetTwoFactorEnabled(ctx, second, true))
	require.NoError(t, store.SetEmailConfirmed(ctx, second, true))
	require.NoError(t, store.SetPhoneNumberConfirmed(ctx, first, true))

	assert.Equal(t, "+15550123", first.PhoneNumber)
	assert.True(t, second.TwoFactorEnabled)

	found, err := store.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "+15550123", found.PhoneNumber)
	assert.True(t, found.PhoneNumberConfirmed)
	assert.True(t, found.TwoFactorEnabled)
	assert.True(t, found.EmailConfirmed)
	assert.True(t, found.LastLogin.Equal(created.LastLogin), "setters must not touch lastLogin")
}

func TestSetEmail_Lowercases(t *testing.T) {
	store, _, _ := newTestStore(t, false)
	ctx := context.Background()
	p := createPrincipal(t, store, "bob", "bob@example.com")

	require.NoError(t, store.SetEmail(ctx, p, "Bob.New@Example.COM"))
	assert.Equal(t, "bob.new@example.com", store.Email(p))

	found, err := store.FindByEmail(ctx, "BOB.NEW@example.com")
	require.NoError(t, err)
	assert.Equal(t, p.ID, found.ID)

	err = store.SetEmail(ctx, p, " ")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidArgument))
}

func TestSetEmail_RejectsAddressHeldByAnother(t *testing.T) {
	store, g, _ := newTestStore(t, false)
	ctx := context.Background()
	alice := createPrincipal(t, store, "alice", "alice@example.com")
	bob := createPrincipal(t, store, "bob", "bob@example.com")

	err := store.SetEmail(ctx, bob, "ALICE@example.com")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrAlreadyExists))
	var dup *apperrors.ErrDuplicate
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "email", dup.Field)
	assert.Equal(t, "bob@example.com", bob.Email)

	stored, ok := g.Principal(bob.ID)
	require.True(t, ok)
	assert.Equal(t, "bob@example.com", stored["email"])

	found, err := store.FindByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, found.ID)

	// re-setting the address a principal already holds is fine
	require.NoError(t, store.SetEmail(ctx, alice, "Alice@Example.com"))

	err = store.SetEmail(ctx, &identity.Principal{ID: "missing"}, "x@example.com")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestGetters_NilPrincipal(t *testing.T) {
	store, _, _ := newTestStore(t, false)

	assert.Empty(t, store.PasswordHash(nil))
	assert.False(t, store.HasPassword(nil))
	assert.Empty(t, store.Email(nil))
	assert.False(t, store.EmailConfirmed(nil))
	assert.Empty(t, store.PhoneNumber(nil))
	assert.False(t, store.PhoneNumberConfirmed(nil))
	assert.False(t, store.TwoFactorEnabled(nil))
	assert.Zero(t, store.AccessFailedCount(nil))
	assert.False(t, store.LockoutEnabled(nil))
	assert.True(t, store.LockoutEnd(nil).IsZero())
}

func TestPasswordHash(t *testing.T) {
	store, g, _ := newTestStore(t, false)
	ctx := context.Background()
	p := createPrincipal(t, store, "carol", "carol@example.com")

	assert.False(t, store.HasPassword(p))
	require.NoError(t, store.SetPasswordHash(ctx, p, "hashed"))
	assert.True(t, store.HasPassword(p))
	assert.Equal(t, "hashed", store.PasswordHash(p))

	stored, ok := g.Principal(p.ID)
	require.True(t, ok)
	assert.Equal(t, "hashed", stored["passwordHash"])

	require.NoError(t, store.SetPasswordHash(ctx, p, ""))
	stored, _ = g.Principal(p.ID)
	_, present := stored["passwordHash"]
	assert.False(t, present)
}

func TestIncrementAccessFailedCount_UsesStoredValue(t *testing.T) {
	store, _, _ := newTestStore(t, false)
	ctx := context.Background()
	created := createPrincipal(t, store, "dave", "dave@example.com")

	stale1, err := store.FindByID(ctx, created.ID)
	require.NoError(t, err)
	stale2, err := store.FindByID(ctx, created.ID)
	require.NoError(t, err)

	count, err := store.IncrementAccessFailedCount(ctx, stale1)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = store.IncrementAccessFailedCount(ctx, stale2)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, 2, store.AccessFailedCount(stale2))

	require.NoError(t, store.ResetAccessFailedCount(ctx, stale1))
	found, err := store.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, found.FailedLoginCount)

	_, err = store.IncrementAccessFailedCount(ctx, &identity.Principal{ID: "missing"})
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestLockoutEnd(t *testing.T) {
	store, g, clock := newTestStore(t, false)
	ctx := context.Background()
	p := createPrincipal(t, store, "erin", "erin@example.com")

	assert.True(t, store.LockoutEnabled(p))
	assert.True(t, store.LockoutEnd(p).IsZero())

	end := clock.now.Add(5 * time.Minute)
	require.NoError(t, store.SetLockoutEnd(ctx, p, end))

	found, err := store.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, found.LockoutEnd.Equal(end))

	require.NoError(t, store.SetLockoutEnd(ctx, p, time.Time{}))
	stored, _ := g.Principal(p.ID)
	_, present := stored["lockoutEndTimestamp"]
	assert.False(t, present)

	require.NoError(t, store.SetLockoutEnabled(ctx, p, false))
	found, err = store.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, found.LockoutEnabled)
}

func TestRecordLogin(t *testing.T) {
	store, g, clock := newTestStore(t, false)
	ctx := context.Background()
	p := createPrincipal(t, store, "frank", "frank@example.com")

	clock.Advance(24 * time.Hour)
	require.NoError(t, store.RecordLogin(ctx, p))
	assert.True(t, p.LastLogin.Equal(clock.now))
	assert.Equal(t, 1, g.CallCount(graph.StmtPatchPrincipal))

	found, err := store.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, found.LastLogin.Equal(clock.now))
}

func TestSetters_Errors(t *testing.T) {
	store, _, _ := newTestStore(t, false)
	ctx := context.Background()

	err := store.SetTwoFactorEnabled(ctx, nil, true)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidArgument))

	err = store.SetPhoneNumber(ctx, &identity.Principal{ID: "missing"}, "+1555")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	err = store.RecordLogin(ctx, &identity.Principal{})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidArgument))
}
