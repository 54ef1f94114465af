// Package auth orchestrates the authentication flows: login, registration
// with email verification, password reset, token refresh and the logout
// family. It composes the token issuer, the session store and the user
// repository and owns the state transition rules between them.
package auth

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"authplane/backend/internal/apperr"
	keydomain "authplane/backend/internal/key/domain"
	"authplane/backend/internal/mail"
	"authplane/backend/internal/security"
	"authplane/backend/internal/session"
	"authplane/backend/internal/token"
	userdomain "authplane/backend/internal/user/domain"
)

const (
	msgInvalidCredentials = "invalid credentials"
	msgSessionExpired     = "session expired"
)

// UserRepo is the minimal user repository needed by the auth service.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
	GetActiveByEmailAndID(ctx context.Context, email, id string) (*userdomain.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, u *userdomain.User) error
	UpdateStatus(ctx context.Context, id string, status userdomain.UserStatus) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// Issuer is the token issuer surface needed by the auth service.
type Issuer interface {
	SignPair(ctx context.Context, u *userdomain.User, sessionID string) (*token.Pair, error)
	SignConfirmationToken(ctx context.Context, u *userdomain.User) (*token.Signed, error)
	SignResetPasswordToken(ctx context.Context, u *userdomain.User) (*token.Signed, error)
	Verify(ctx context.Context, tokenString string, purpose keydomain.KeyPurpose) (bool, *token.Claims)
	Decode(tokenString string) (*token.Claims, string, error)
}

// ClientContext is what the transport knows about the caller, captured on the
// session record.
type ClientContext struct {
	IP        string
	UserAgent string
	OS        string
	Browser   string
}

// Principal is an authenticated caller resolved from an access token.
type Principal struct {
	User      *userdomain.User
	SessionID string
	JTI       string
}

// LoginResult is the outcome of login and every login-equivalent flow.
type LoginResult struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	User             *userdomain.User
}

// Service implements the authentication flows.
type Service struct {
	users            UserRepo
	issuer           Issuer
	sessions         *session.Store
	hasher           *security.Hasher
	mailer           mail.Producer
	verifyEmailURL   string
	resetPasswordURL string
	log              zerolog.Logger
}

// NewService returns an auth service with the given dependencies. mailer may
// be nil; mail sending then degrades to a logged no-op.
func NewService(
	users UserRepo,
	issuer Issuer,
	sessions *session.Store,
	hasher *security.Hasher,
	mailer mail.Producer,
	verifyEmailURL, resetPasswordURL string,
	log zerolog.Logger,
) *Service {
	return &Service{
		users:            users,
		issuer:           issuer,
		sessions:         sessions,
		hasher:           hasher,
		mailer:           mailer,
		verifyEmailURL:   verifyEmailURL,
		resetPasswordURL: resetPasswordURL,
		log:              log,
	}
}

// Login checks the credentials and opens a new session. Rejection is uniform:
// an unknown email, a wrong password and a non-active account all read the
// same to the caller.
func (s *Service) Login(ctx context.Context, email, password string, client ClientContext) (*LoginResult, error) {
	u, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "look up user")
	}
	if u == nil || u.Status != userdomain.UserStatusActive || s.hasher.Compare(u.PasswordHash, []byte(password)) != nil {
		return nil, apperr.New(apperr.KindUnauthorized, msgInvalidCredentials)
	}
	return s.establishSession(ctx, u, client)
}

// Register creates an inactive account and sends the verification mail. The
// returned user carries no credential material.
func (s *Service) Register(ctx context.Context, email, name, password string) (*userdomain.User, error) {
	email = normalizeEmail(email)
	exists, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "check email")
	}
	if exists {
		return nil, apperr.New(apperr.KindConflict, "email already registered")
	}
	hash, err := s.hasher.Hash([]byte(password))
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "hash password")
	}
	now := time.Now().UTC()
	u := &userdomain.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Role:         userdomain.UserRoleUser,
		Status:       userdomain.UserStatusInactive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := u.Validate(); err != nil {
		return nil, apperr.Wrap(err, apperr.KindBadRequest, "invalid registration")
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "create user")
	}
	s.sendConfirmation(ctx, u)
	return u.Sanitized(), nil
}

// VerifyEmail activates the account named by a valid confirmation token and
// behaves like login afterwards, so the user is authenticated immediately.
func (s *Service) VerifyEmail(ctx context.Context, rawToken string, client ClientContext) (*LoginResult, error) {
	ok, claims := s.issuer.Verify(ctx, rawToken, keydomain.KeyPurposeConfirmation)
	if !ok {
		return nil, apperr.New(apperr.KindUnauthorized, msgInvalidCredentials)
	}
	u, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "look up user")
	}
	if u == nil {
		return nil, apperr.New(apperr.KindUnauthorized, msgInvalidCredentials)
	}
	if u.Status == userdomain.UserStatusActive {
		return nil, apperr.New(apperr.KindBadRequest, "email already verified")
	}
	if u.Status == userdomain.UserStatusBlocked {
		return nil, apperr.New(apperr.KindBadRequest, "user is blocked")
	}
	if err := s.users.UpdateStatus(ctx, u.ID, userdomain.UserStatusActive); err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "activate user")
	}
	u.Status = userdomain.UserStatusActive
	return s.establishSession(ctx, u, client)
}

// ResendVerificationEmail reissues the confirmation token. Already active
// accounts (and unknown emails, indistinguishably) are rejected as a
// conflict, blocked ones as a bad request.
func (s *Service) ResendVerificationEmail(ctx context.Context, email string) error {
	u, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return apperr.Wrap(err, apperr.KindInternal, "look up user")
	}
	if u == nil || u.Status == userdomain.UserStatusActive {
		return apperr.New(apperr.KindConflict, "email already verified")
	}
	if u.Status == userdomain.UserStatusBlocked {
		return apperr.New(apperr.KindBadRequest, "user is blocked")
	}
	s.sendConfirmation(ctx, u)
	return nil
}

// Refresh rotates the token pair of a live session. The presented refresh
// token must verify, still be whitelisted and name a session whose record has
// not expired; the session id is preserved across the rotation.
func (s *Service) Refresh(ctx context.Context, rawRefreshToken string) (*LoginResult, error) {
	ok, claims := s.issuer.Verify(ctx, rawRefreshToken, keydomain.KeyPurposeRefresh)
	if !ok {
		return nil, apperr.New(apperr.KindUnauthorized, msgInvalidCredentials)
	}
	live, err := s.sessions.ValidateToken(ctx, claims.ID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "check token registry")
	}
	if !live {
		return nil, apperr.New(apperr.KindUnauthorized, msgInvalidCredentials)
	}
	u, err := s.users.GetActiveByEmailAndID(ctx, claims.Email, claims.Subject)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "look up user")
	}
	if u == nil {
		return nil, apperr.New(apperr.KindUnauthorized, msgInvalidCredentials)
	}
	rec, err := s.sessions.GetSession(ctx, claims.SessionID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "load session")
	}
	if rec == nil {
		return nil, apperr.New(apperr.KindUnauthorized, msgSessionExpired)
	}
	pair, err := s.issuer.SignPair(ctx, u, claims.SessionID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "sign tokens")
	}
	s.sessions.RotateSession(ctx, rec,
		pair.Access.JTI, pair.Access.ExpiresAt,
		pair.Refresh.JTI, pair.Refresh.ExpiresAt)
	return &LoginResult{
		AccessToken:      pair.Access.Token,
		AccessExpiresAt:  pair.Access.ExpiresAt,
		RefreshToken:     pair.Refresh.Token,
		RefreshExpiresAt: pair.Refresh.ExpiresAt,
		User:             u.Sanitized(),
	}, nil
}

// Logout closes the session named by the presented refresh token. The token
// is only decoded here; a session removal with a forged token hits no other
// user's keys because the set is scoped to userID.
func (s *Service) Logout(ctx context.Context, userID, rawRefreshToken string) error {
	claims, _, err := s.issuer.Decode(rawRefreshToken)
	if err != nil || claims.SessionID == "" {
		return apperr.New(apperr.KindUnauthorized, msgInvalidCredentials)
	}
	s.sessions.RemoveSession(ctx, userID, claims.SessionID)
	return nil
}

// LogoutAll closes every session of the user.
func (s *Service) LogoutAll(ctx context.Context, userID string) error {
	if err := s.sessions.RemoveAllSessions(ctx, userID); err != nil {
		return apperr.Wrap(err, apperr.KindInternal, "remove sessions")
	}
	return nil
}

// LogoutSessions closes the named sessions of the user.
func (s *Service) LogoutSessions(ctx context.Context, userID string, sessionIDs ...string) error {
	if err := s.sessions.RemoveAllSessions(ctx, userID, sessionIDs...); err != nil {
		return apperr.Wrap(err, apperr.KindInternal, "remove sessions")
	}
	return nil
}

// SendResetPassword mails a password reset link. Unlike login, a miss is
// reported as not found; the flow is only reachable for known accounts.
func (s *Service) SendResetPassword(ctx context.Context, email string) error {
	u, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return apperr.Wrap(err, apperr.KindInternal, "look up user")
	}
	if u == nil {
		return apperr.New(apperr.KindNotFound, "user not found")
	}
	signed, err := s.issuer.SignResetPasswordToken(ctx, u)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", u.ID).Msg("sign reset password token")
		return apperr.Wrap(err, apperr.KindInternal, "sign token")
	}
	if s.mailer == nil {
		s.log.Warn().Str("user_id", u.ID).Msg("mail producer disabled, dropping reset mail")
		return nil
	}
	m := &mail.ResetPasswordMail{Email: u.Email, Name: u.Name, ResetURL: tokenURL(s.resetPasswordURL, signed.Token)}
	if err := s.mailer.SendResetPassword(ctx, m); err != nil {
		s.log.Error().Err(err).Str("user_id", u.ID).Msg("publish reset mail")
	}
	return nil
}

// ResetPassword replaces the password named by a valid reset token and opens
// a fresh session, exactly like a login with the new password.
func (s *Service) ResetPassword(ctx context.Context, rawToken, newPassword string, client ClientContext) (*LoginResult, error) {
	ok, claims := s.issuer.Verify(ctx, rawToken, keydomain.KeyPurposeResetPassword)
	if !ok {
		return nil, apperr.New(apperr.KindUnauthorized, msgInvalidCredentials)
	}
	u, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "look up user")
	}
	if u == nil {
		return nil, apperr.New(apperr.KindUnauthorized, msgInvalidCredentials)
	}
	hash, err := s.hasher.Hash([]byte(newPassword))
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "hash password")
	}
	if err := s.users.UpdatePassword(ctx, u.ID, hash); err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "update password")
	}
	return s.establishSession(ctx, u, client)
}

// Sessions lists the live sessions of the user.
func (s *Service) Sessions(ctx context.Context, userID string) ([]*session.Record, error) {
	recs, err := s.sessions.AllSessions(ctx, userID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "list sessions")
	}
	return recs, nil
}

// ValidateRefreshToken resolves the active user behind a refresh token bound
// to userID. The token is decoded, not signature-verified; callers that have
// not verified it yet must use Refresh instead.
func (s *Service) ValidateRefreshToken(ctx context.Context, userID, rawRefreshToken string) (*Principal, error) {
	claims, _, err := s.issuer.Decode(rawRefreshToken)
	if err != nil {
		return nil, apperr.New(apperr.KindUnauthorized, msgInvalidCredentials)
	}
	valid, err := s.sessions.ValidateSession(ctx, claims.SessionID, userID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "validate session")
	}
	if !valid {
		return nil, apperr.New(apperr.KindUnauthorized, msgSessionExpired)
	}
	u, err := s.users.GetActiveByEmailAndID(ctx, claims.Email, userID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "look up user")
	}
	if u == nil {
		return nil, apperr.New(apperr.KindUnauthorized, msgInvalidCredentials)
	}
	return &Principal{User: u, SessionID: claims.SessionID, JTI: claims.ID}, nil
}

// VerifyAccess authenticates a bearer access token: signature against its
// kid, whitelist membership of its jti and an active user behind it.
func (s *Service) VerifyAccess(ctx context.Context, rawToken string) (*Principal, error) {
	ok, claims := s.issuer.Verify(ctx, rawToken, keydomain.KeyPurposeAccess)
	if !ok {
		return nil, apperr.New(apperr.KindUnauthorized, msgInvalidCredentials)
	}
	live, err := s.sessions.ValidateToken(ctx, claims.ID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "check token registry")
	}
	if !live {
		return nil, apperr.New(apperr.KindUnauthorized, msgInvalidCredentials)
	}
	u, err := s.users.GetActiveByEmailAndID(ctx, claims.Email, claims.Subject)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "look up user")
	}
	if u == nil {
		return nil, apperr.New(apperr.KindUnauthorized, msgInvalidCredentials)
	}
	return &Principal{User: u, SessionID: claims.SessionID, JTI: claims.ID}, nil
}

// establishSession signs a fresh pair and records the session, shared by
// login, email verification and password reset.
func (s *Service) establishSession(ctx context.Context, u *userdomain.User, client ClientContext) (*LoginResult, error) {
	pair, err := s.issuer.SignPair(ctx, u, "")
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "sign tokens")
	}
	rec := &session.Record{
		SessionID:        pair.Refresh.SessionID,
		UserID:           u.ID,
		Email:            u.Email,
		IP:               client.IP,
		UserAgent:        client.UserAgent,
		OS:               client.OS,
		Browser:          client.Browser,
		AccessJTI:        pair.Access.JTI,
		AccessExpiresAt:  pair.Access.ExpiresAt,
		RefreshJTI:       pair.Refresh.JTI,
		RefreshExpiresAt: pair.Refresh.ExpiresAt,
	}
	s.sessions.CreateSession(ctx, rec)
	return &LoginResult{
		AccessToken:      pair.Access.Token,
		AccessExpiresAt:  pair.Access.ExpiresAt,
		RefreshToken:     pair.Refresh.Token,
		RefreshExpiresAt: pair.Refresh.ExpiresAt,
		User:             u.Sanitized(),
	}, nil
}

// sendConfirmation issues and mails the verification token best-effort.
func (s *Service) sendConfirmation(ctx context.Context, u *userdomain.User) {
	signed, err := s.issuer.SignConfirmationToken(ctx, u)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", u.ID).Msg("sign confirmation token")
		return
	}
	if s.mailer == nil {
		s.log.Warn().Str("user_id", u.ID).Msg("mail producer disabled, dropping verification mail")
		return
	}
	m := &mail.VerificationMail{Email: u.Email, Name: u.Name, VerifyURL: tokenURL(s.verifyEmailURL, signed.Token)}
	if err := s.mailer.SendVerification(ctx, m); err != nil {
		s.log.Error().Err(err).Str("user_id", u.ID).Msg("publish verification mail")
	}
}

func tokenURL(base, tok string) string {
	return base + "?token=" + url.QueryEscape(tok)
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}
