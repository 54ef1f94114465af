// Package token issues and verifies the four JWT families used by the auth
// flows. Every token is RS256-signed by the current key of its purpose and
// carries that key's id in the kid header, so verification survives rotation.
package token

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	keydomain "authplane/backend/internal/key/domain"
	keyservice "authplane/backend/internal/key/service"
	"authplane/backend/internal/security"
	userdomain "authplane/backend/internal/user/domain"
)

// ErrInvalidToken is returned when a token is malformed or invalid.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the common claim set across all token purposes. SessionID is only
// set on refresh tokens.
type Claims struct {
	jwt.RegisteredClaims
	Email     string `json:"email,omitempty"`
	Name      string `json:"name,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// JTI returns the token's unique id.
func (c *Claims) JTI() string { return c.ID }

// UserID returns the subject.
func (c *Claims) UserID() string { return c.Subject }

// Signed is one issued token with the identifiers callers track in the
// session registries.
type Signed struct {
	Token     string
	JTI       string
	SessionID string
	ExpiresAt time.Time
}

// Pair is an access and refresh token bound to the same session.
type Pair struct {
	Access  Signed
	Refresh Signed
}

// Keys is the minimal key service surface needed by the issuer.
type Keys interface {
	CurrentKey(ctx context.Context, purpose keydomain.KeyPurpose) (*keyservice.Material, error)
	KeyByID(ctx context.Context, id string) (*keydomain.Key, error)
}

// Issuer signs and verifies JWTs against the rotating key store.
type Issuer struct {
	keys       Keys
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	confirmTTL time.Duration
	resetTTL   time.Duration
}

// NewIssuer returns an Issuer signing with keys and the given per-purpose TTLs.
func NewIssuer(keys Keys, issuer, audience string, accessTTL, refreshTTL, confirmTTL, resetTTL time.Duration) *Issuer {
	return &Issuer{
		keys:       keys,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		confirmTTL: confirmTTL,
		resetTTL:   resetTTL,
	}
}

// SignAccessToken issues a short-lived access token for the user.
func (i *Issuer) SignAccessToken(ctx context.Context, u *userdomain.User) (*Signed, error) {
	return i.sign(ctx, keydomain.KeyPurposeAccess, u, "", i.accessTTL)
}

// SignRefreshToken issues a refresh token bound to sessionID. When sessionID
// is empty a fresh session id is generated; the returned Signed carries it.
func (i *Issuer) SignRefreshToken(ctx context.Context, u *userdomain.User, sessionID string) (*Signed, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	return i.sign(ctx, keydomain.KeyPurposeRefresh, u, sessionID, i.refreshTTL)
}

// SignConfirmationToken issues the email verification token.
func (i *Issuer) SignConfirmationToken(ctx context.Context, u *userdomain.User) (*Signed, error) {
	return i.sign(ctx, keydomain.KeyPurposeConfirmation, u, "", i.confirmTTL)
}

// SignResetPasswordToken issues the password reset token.
func (i *Issuer) SignResetPasswordToken(ctx context.Context, u *userdomain.User) (*Signed, error) {
	return i.sign(ctx, keydomain.KeyPurposeResetPassword, u, "", i.resetTTL)
}

// SignPair issues an access and refresh token sharing one session id. A fresh
// session id is generated when sessionID is empty.
func (i *Issuer) SignPair(ctx context.Context, u *userdomain.User, sessionID string) (*Pair, error) {
	refresh, err := i.SignRefreshToken(ctx, u, sessionID)
	if err != nil {
		return nil, err
	}
	access, err := i.sign(ctx, keydomain.KeyPurposeAccess, u, refresh.SessionID, i.accessTTL)
	if err != nil {
		return nil, err
	}
	return &Pair{Access: *access, Refresh: *refresh}, nil
}

func (i *Issuer) sign(ctx context.Context, purpose keydomain.KeyPurpose, u *userdomain.User, sessionID string, ttl time.Duration) (*Signed, error) {
	mat, err := i.keys.CurrentKey(ctx, purpose)
	if err != nil {
		return nil, err
	}
	priv, err := security.ParsePrivateKey(mat.PrivateKeyPEM)
	if err != nil {
		return nil, err
	}
	jti := uuid.NewString()
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   u.ID,
			Issuer:    i.issuer,
			Audience:  jwt.ClaimStrings{i.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email:     u.Email,
		Name:      u.Name,
		SessionID: sessionID,
	}
	t := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	t.Header["kid"] = mat.KID
	signed, err := t.SignedString(priv)
	if err != nil {
		return nil, err
	}
	return &Signed{Token: signed, JTI: jti, SessionID: sessionID, ExpiresAt: expiresAt}, nil
}

// Verify checks the token against the key its kid header names, requiring
// that key to belong to purpose. It reports validity and, when valid, the
// parsed claims. Failure causes are deliberately not distinguished.
func (i *Issuer) Verify(ctx context.Context, tokenString string, purpose keydomain.KeyPurpose) (bool, *Claims) {
	_, kid, err := i.Decode(tokenString)
	if err != nil || kid == "" {
		return false, nil
	}
	k, err := i.keys.KeyByID(ctx, kid)
	if err != nil || k == nil || k.Purpose != purpose {
		return false, nil
	}
	pub, err := security.ParsePublicKey(k.PublicKey)
	if err != nil {
		return false, nil
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, ErrInvalidToken
		}
		return pub, nil
	}, jwt.WithIssuer(i.issuer), jwt.WithAudience(i.audience))
	if err != nil || !parsed.Valid {
		return false, nil
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return false, nil
	}
	return true, claims
}

// Decode parses the token without verifying the signature and returns the
// claims and the kid header. Callers that trust the result must Verify first.
func (i *Issuer) Decode(tokenString string) (*Claims, string, error) {
	var claims Claims
	parsed, _, err := jwt.NewParser().ParseUnverified(tokenString, &claims)
	if err != nil {
		return nil, "", ErrInvalidToken
	}
	kid, _ := parsed.Header["kid"].(string)
	return &claims, kid, nil
}
