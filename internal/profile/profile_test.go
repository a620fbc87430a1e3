package profile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mindfulspace.app/backend/internal/kv"
	"mindfulspace.app/backend/internal/store"
)

func ptr(s string) *string { return &s }

func TestGet_Defaults(t *testing.T) {
	a := New(kv.NewMemory())
	p, err := a.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Profile{Role: store.UserRoleClient}, p)
}

func TestUpdate_PartialFields(t *testing.T) {
	ctx := context.Background()
	a := New(kv.NewMemory())

	_, err := a.Update(ctx, Update{FullName: ptr("Ana"), Bio: ptr("Runner")})
	require.NoError(t, err)
	_, err = a.Update(ctx, Update{Role: ptr("expert")})
	require.NoError(t, err)

	p, err := a.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, Profile{FullName: "Ana", Role: store.UserRoleExpert, Bio: "Runner"}, p)

	// Empty values never clear.
	_, err = a.Update(ctx, Update{FullName: ptr(""), Bio: ptr("")})
	require.NoError(t, err)
	p, err = a.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Ana", p.FullName)
	assert.Equal(t, "Runner", p.Bio)
}

func TestUpdate_NicknameAlias(t *testing.T) {
	ctx := context.Background()
	a := New(kv.NewMemory())

	_, err := a.Update(ctx, Update{Nickname: ptr("Beto")})
	require.NoError(t, err)
	p, _ := a.Get(ctx)
	assert.Equal(t, "Beto", p.FullName)

	_, err = a.Update(ctx, Update{FullName: ptr("Roberto")})
	require.NoError(t, err)
	p, _ = a.Get(ctx)
	assert.Equal(t, "Roberto", p.FullName)

	_, err = a.Update(ctx, Update{FullName: ptr("Roberto"), Nickname: ptr("Beto")})
	require.NoError(t, err)
	p, _ = a.Get(ctx)
	assert.Equal(t, "Beto", p.FullName)
}

func TestUpdate_RoleNormalization(t *testing.T) {
	ctx := context.Background()
	m := kv.NewMemory()
	a := New(m)

	_, err := a.Update(ctx, Update{Role: ptr("both")})
	require.NoError(t, err)
	v, _, _ := m.Get(ctx, "user-role")
	assert.Equal(t, "expert", v)

	_, err = a.Update(ctx, Update{Role: ptr("admin"), FullName: ptr("Mallory")})
	assert.True(t, store.IsValidation(err))
	_, ok, _ := m.Get(ctx, "nickname")
	assert.False(t, ok, "nothing is written when validation fails")
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	m := kv.NewMemory()
	a := New(m)

	_, err := a.Update(ctx, Update{FullName: ptr("Ana"), Role: ptr("client"), Bio: ptr("hi")})
	require.NoError(t, err)
	require.NoError(t, a.SetAuthToken(ctx, "tok"))
	require.NoError(t, m.Set(ctx, "db_Expert", "[]"))

	tok, err := a.AuthToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok", tok)

	require.NoError(t, a.Logout(ctx))
	for _, k := range sessionKeys {
		_, ok, _ := m.Get(ctx, k)
		assert.False(t, ok, k)
	}
	_, ok, _ := m.Get(ctx, "db_Expert")
	assert.True(t, ok, "collections survive logout")
}

func TestSetupFromIdentity(t *testing.T) {
	ctx := context.Background()

	a := New(kv.NewMemory())
	p, err := a.SetupFromIdentity(ctx, Identity{UID: "g1", Email: "lu@x.com", DisplayName: " Lucía "})
	require.NoError(t, err)
	assert.Equal(t, "Lucía", p.FullName)

	b := New(kv.NewMemory())
	p, err = b.SetupFromIdentity(ctx, Identity{Email: "mo@x.com"})
	require.NoError(t, err)
	assert.Equal(t, "mo", p.FullName)

	// Existing names are kept.
	p, err = a.SetupFromIdentity(ctx, Identity{DisplayName: "Other"})
	require.NoError(t, err)
	assert.Equal(t, "Lucía", p.FullName)
}

type brokenKV struct{ *kv.Memory }

func (brokenKV) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("io")
}

func TestGet_StorageError(t *testing.T) {
	a := New(brokenKV{kv.NewMemory()})
	_, err := a.Get(context.Background())
	var se *store.StorageError
	assert.ErrorAs(t, err, &se)
}
