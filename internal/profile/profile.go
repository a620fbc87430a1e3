// Package profile keeps the signed-in user's profile as independent scalar keys
// in the local key-value store. Session state itself belongs to the identity
// provider.
package profile

import (
	"context"
	"fmt"
	"strings"

	"mindfulspace.app/backend/internal/kv"
	"mindfulspace.app/backend/internal/store"
)

const (
	keyFullName  = "nickname"
	keyRole      = "user-role"
	keyBio       = "user-bio"
	keyAuthToken = "auth-token"
)

// sessionKeys are cleared together on logout.
var sessionKeys = []string{keyFullName, keyRole, keyBio, keyAuthToken}

type Profile struct {
	FullName string         `json:"full_name,omitempty"`
	Role     store.UserRole `json:"role"`
	Bio      string         `json:"bio,omitempty"`
}

// Update is a partial profile. Nil or empty fields are left untouched.
// Nickname is the legacy spelling of FullName and wins when both are set.
type Update struct {
	FullName *string `json:"full_name,omitempty"`
	Nickname *string `json:"nickname,omitempty"`
	Role     *string `json:"role,omitempty"`
	Bio      *string `json:"bio,omitempty"`
}

// Identity is the minimal record handed over by the identity provider.
type Identity struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

type Adapter struct {
	kv kv.Store
}

func New(store kv.Store) *Adapter {
	return &Adapter{kv: store}
}

func (a *Adapter) Get(ctx context.Context) (Profile, error) {
	var p Profile
	var err error
	if p.FullName, err = a.read(ctx, keyFullName); err != nil {
		return Profile{}, err
	}
	role, err := a.read(ctx, keyRole)
	if err != nil {
		return Profile{}, err
	}
	p.Role = store.UserRoleClient
	if r, ok := store.NormalizeUserRole(role); ok {
		p.Role = r
	}
	if p.Bio, err = a.read(ctx, keyBio); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Update writes each present field under its canonical key and returns the
// input unchanged. The role is validated before anything is written.
func (a *Adapter) Update(ctx context.Context, u Update) (Update, error) {
	var role store.UserRole
	if nonEmpty(u.Role) {
		r, ok := store.NormalizeUserRole(*u.Role)
		if !ok {
			return u, &store.ValidationError{Field: "role", Message: "must be client or expert"}
		}
		role = r
	}

	name := ""
	switch {
	case nonEmpty(u.Nickname):
		name = *u.Nickname
	case nonEmpty(u.FullName):
		name = *u.FullName
	}
	if name != "" {
		if err := a.write(ctx, keyFullName, name); err != nil {
			return u, err
		}
	}
	if role != "" {
		if err := a.write(ctx, keyRole, string(role)); err != nil {
			return u, err
		}
	}
	if nonEmpty(u.Bio) {
		if err := a.write(ctx, keyBio, *u.Bio); err != nil {
			return u, err
		}
	}
	return u, nil
}

// SetupFromIdentity fills the name from the identity provider when the profile
// has none yet. The display name wins over the email's local part.
func (a *Adapter) SetupFromIdentity(ctx context.Context, id Identity) (Profile, error) {
	p, err := a.Get(ctx)
	if err != nil {
		return Profile{}, err
	}
	if p.FullName != "" {
		return p, nil
	}
	name := strings.TrimSpace(id.DisplayName)
	if name == "" {
		name, _, _ = strings.Cut(id.Email, "@")
	}
	if name == "" {
		return p, nil
	}
	if _, err := a.Update(ctx, Update{FullName: &name}); err != nil {
		return Profile{}, err
	}
	p.FullName = name
	return p, nil
}

func (a *Adapter) SetAuthToken(ctx context.Context, token string) error {
	return a.write(ctx, keyAuthToken, token)
}

// AuthToken returns the cached token, or "" when signed out.
func (a *Adapter) AuthToken(ctx context.Context) (string, error) {
	return a.read(ctx, keyAuthToken)
}

// Logout removes every session key in one batch. The identity provider's own
// session is not touched.
func (a *Adapter) Logout(ctx context.Context) error {
	if err := a.kv.Remove(ctx, sessionKeys...); err != nil {
		return &store.StorageError{Op: "remove", Key: strings.Join(sessionKeys, ","), Err: err}
	}
	return nil
}

func (a *Adapter) read(ctx context.Context, key string) (string, error) {
	v, _, err := a.kv.Get(ctx, key)
	if err != nil {
		return "", &store.StorageError{Op: "read", Key: key, Err: err}
	}
	return v, nil
}

func (a *Adapter) write(ctx context.Context, key, value string) error {
	if err := a.kv.Set(ctx, key, value); err != nil {
		return &store.StorageError{Op: "write", Key: key, Err: fmt.Errorf("set: %w", err)}
	}
	return nil
}

func nonEmpty(s *string) bool {
	return s != nil && *s != ""
}
