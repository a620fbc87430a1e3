package core

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"mindfulspace.app/backend/internal/auth"
	"mindfulspace.app/backend/internal/logging"
	"mindfulspace.app/backend/internal/store"
)

const (
	providerPassword = "email"
	providerGoogle   = "google"
)

type UserService struct {
	users  *store.Collection
	google auth.GoogleVerifier
	log    *logging.Logger
}

// NewUserService builds the account flows. Without a verifier, Google sign-in
// trusts the email sent by the client.
func NewUserService(users *store.Collection, google auth.GoogleVerifier, log *logging.Logger) *UserService {
	return &UserService{users: users, google: google, log: log}
}

type AuthResult struct {
	User      store.User `json:"user"`
	Token     string     `json:"token"`
	IsNewUser *bool      `json:"isNewUser,omitempty"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

func (s *UserService) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if req.Password == "" {
		return nil, &store.ValidationError{Field: "password", Message: "is required"}
	}
	if len(req.Password) > auth.MaxPasswordBytes {
		return nil, &store.ValidationError{Field: "password", Message: fmt.Sprintf("must be at most %d bytes", auth.MaxPasswordBytes)}
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	fullName := strings.TrimSpace(req.FullName)
	if fullName == "" {
		fullName = localPart(email)
	}

	doc, err := s.users.Insert(ctx, store.Document{
		"email":         email,
		"password_hash": hash,
		"full_name":     fullName,
		"role":          string(store.UserRoleClient),
		"provider":      providerPassword,
	})
	if err != nil {
		return nil, err
	}
	user, err := store.Decode[store.User](doc)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("user", user.ID).Msg("user registered")
	return s.issue(user, nil)
}

func (s *UserService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.findByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil || user.PasswordHash == "" || !auth.CheckPasswordHash(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return s.issue(*user, nil)
}

type GoogleSignInRequest struct {
	IDToken  string `json:"id_token"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	PhotoURL string `json:"photoUrl"`
}

// GoogleSignIn finds or creates the account behind a Google identity.
func (s *UserService) GoogleSignIn(ctx context.Context, req GoogleSignInRequest) (*AuthResult, error) {
	if s.google != nil {
		if req.IDToken == "" {
			return nil, &store.ValidationError{Field: "id_token", Message: "is required"}
		}
		identity, err := s.google.Verify(ctx, req.IDToken)
		switch {
		case errors.Is(err, auth.ErrInvalidIDToken), errors.Is(err, auth.ErrUnverifiedEmail):
			return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
		case err != nil:
			return nil, upstream("google", err)
		}
		req.Email, req.Name, req.PhotoURL = identity.Email, identity.Name, identity.Picture
	}

	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	existing, err := s.findByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		isNew := false
		return s.issue(*existing, &isNew)
	}

	fullName := strings.TrimSpace(req.Name)
	if fullName == "" {
		fullName = localPart(email)
	}
	doc, err := s.users.Insert(ctx, store.Document{
		"email":     email,
		"full_name": fullName,
		"photo_url": req.PhotoURL,
		"role":      string(store.UserRoleClient),
		"provider":  providerGoogle,
	})
	if errors.Is(err, store.ErrDuplicate) {
		// Lost a race with a concurrent sign-in for the same address.
		existing, err = s.findByEmail(ctx, email)
		if err != nil || existing == nil {
			return nil, fmt.Errorf("failed to load user after duplicate insert: %w", err)
		}
		isNew := false
		return s.issue(*existing, &isNew)
	}
	if err != nil {
		return nil, err
	}
	user, err := store.Decode[store.User](doc)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("user", user.ID).Msg("user created from google sign-in")
	isNew := true
	return s.issue(user, &isNew)
}

// Get returns the public view of a user, or nil when the id is unknown.
func (s *UserService) Get(ctx context.Context, id string) (*store.User, error) {
	doc, err := s.users.Get(ctx, id)
	if err != nil || doc == nil {
		return nil, err
	}
	user, err := store.Decode[store.User](doc)
	if err != nil {
		return nil, err
	}
	user = user.Public()
	return &user, nil
}

type ProfileUpdate struct {
	FullName *string `json:"full_name"`
	Role     *string `json:"role"`
	Nickname *string `json:"nickname"`
	Bio      *string `json:"bio"`
}

// UpdateProfile applies the present fields. Blank full names are ignored and an
// unknown role is rejected before anything is written.
func (s *UserService) UpdateProfile(ctx context.Context, id string, u ProfileUpdate) (*store.User, error) {
	patch := store.Document{}
	if u.FullName != nil {
		if name := strings.TrimSpace(*u.FullName); name != "" {
			patch["full_name"] = name
		}
	}
	if u.Role != nil {
		role, ok := store.NormalizeUserRole(*u.Role)
		if !ok {
			return nil, &store.ValidationError{Field: "role", Message: "must be client or expert"}
		}
		patch["role"] = string(role)
	}
	if u.Nickname != nil {
		patch["nickname"] = strings.TrimSpace(*u.Nickname)
	}
	if u.Bio != nil {
		patch["bio"] = *u.Bio
	}

	doc, err := s.users.Update(ctx, id, patch)
	if err != nil || doc == nil {
		return nil, err
	}
	user, err := store.Decode[store.User](doc)
	if err != nil {
		return nil, err
	}
	user = user.Public()
	return &user, nil
}

// Count returns the number of registered users.
func (s *UserService) Count(ctx context.Context) (int, error) {
	docs, err := s.users.List(ctx, "")
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

func (s *UserService) findByEmail(ctx context.Context, email string) (*store.User, error) {
	if email == "" {
		return nil, nil
	}
	doc, err := s.users.FindBy(ctx, "email", email)
	if err != nil || doc == nil {
		return nil, err
	}
	user, err := store.Decode[store.User](doc)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *UserService) issue(user store.User, isNew *bool) (*AuthResult, error) {
	token, err := auth.GenerateJWT(user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}
	return &AuthResult{User: user.Public(), Token: token, IsNewUser: isNew}, nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", &store.ValidationError{Field: "email", Message: "is required"}
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", &store.ValidationError{Field: "email", Message: "is not a valid address"}
	}
	return email, nil
}

func localPart(email string) string {
	name, _, _ := strings.Cut(email, "@")
	return name
}
