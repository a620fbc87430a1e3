package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"google.golang.org/api/idtoken"
)

var (
	// ErrInvalidIDToken marks a Google ID token that was rejected on its own
	// merits. Any other Verify error means Google could not be consulted.
	ErrInvalidIDToken = errors.New("invalid google id token")

	ErrUnverifiedEmail = errors.New("identity provider email not verified")
)

// GoogleIdentity is the subset of a Google ID token the application uses.
type GoogleIdentity struct {
	Subject string
	Email   string
	Name    string
	Picture string
}

type GoogleVerifier interface {
	Verify(ctx context.Context, rawToken string) (*GoogleIdentity, error)
}

// IDTokenVerifier checks Google ID tokens against the configured OAuth client.
type IDTokenVerifier struct {
	clientID string
}

func NewIDTokenVerifier(clientID string) *IDTokenVerifier {
	return &IDTokenVerifier{clientID: clientID}
}

func (v *IDTokenVerifier) Verify(ctx context.Context, rawToken string) (*GoogleIdentity, error) {
	// Claims are checked offline first so a bad token never costs a cert fetch.
	unverified, err := idtoken.ParsePayload(rawToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIDToken, err)
	}
	if err := checkClaims(unverified, v.clientID, time.Now()); err != nil {
		return nil, err
	}

	payload, err := idtoken.Validate(ctx, rawToken, v.clientID)
	if err != nil {
		return nil, classifyValidateError(err)
	}
	return identityFromPayload(payload)
}

func checkClaims(p *idtoken.Payload, audience string, now time.Time) error {
	if audience != "" && p.Audience != audience {
		return fmt.Errorf("%w: audience mismatch", ErrInvalidIDToken)
	}
	if now.Unix() > p.Expires {
		return fmt.Errorf("%w: token expired", ErrInvalidIDToken)
	}
	return nil
}

// classifyValidateError separates cert retrieval failures from signature
// rejections.
func classifyValidateError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		strings.Contains(err.Error(), "unable to retrieve cert") {
		return fmt.Errorf("fetch google certs: %w", err)
	}
	return fmt.Errorf("%w: %v", ErrInvalidIDToken, err)
}

func identityFromPayload(p *idtoken.Payload) (*GoogleIdentity, error) {
	email, _ := p.Claims["email"].(string)
	if email == "" {
		return nil, fmt.Errorf("%w: no email claim", ErrInvalidIDToken)
	}
	if verified, ok := p.Claims["email_verified"].(bool); ok && !verified {
		return nil, ErrUnverifiedEmail
	}
	id := &GoogleIdentity{Subject: p.Subject, Email: email}
	id.Name, _ = p.Claims["name"].(string)
	id.Picture, _ = p.Claims["picture"].(string)
	return id, nil
}
