package application

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/client-powered/internal/application/profilestate"
	"github.com/oksasatya/client-powered/internal/domain/entity"
	repo "github.com/oksasatya/client-powered/internal/domain/repository"
	"github.com/oksasatya/client-powered/pkg/helpers"
	"github.com/oksasatya/client-powered/pkg/mailer"
	"github.com/oksasatya/client-powered/pkg/mailer/templates"
)

const oauthStateTTL = 10 * time.Minute

// MailQueue hands email jobs to the worker.
type MailQueue interface {
	Enqueue(ctx context.Context, job mailer.EmailJob) error
}

// OAuthProvider is one configured third-party sign-in.
type OAuthProvider interface {
	Name() string
	AuthCodeURL(state, nonce string) string
	// Email exchanges the authorization code and returns the verified email.
	Email(ctx context.Context, code, nonce string) (string, error)
}

// RequestMeta describes the browser that asked for a sign-in email.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// SignIn is the result of every successful sign-in or refresh.
type SignIn struct {
	Session *entity.Session
	Tokens  entity.TokenPair
	Created bool
}

type AuthService struct {
	Profiles  repo.ProfileRepository
	Sessions  repo.SessionStore
	State     repo.AuthStateStore
	JWT       *helpers.JWTManager
	Mail      MailQueue // nil disables sending
	Providers map[string]OAuthProvider
	Trackers  *profilestate.Registry
	Logger    *logrus.Logger

	BaseURL      string
	Brand        templates.Brand
	MagicLinkTTL time.Duration
	SessionTTL   time.Duration

	validate *validator.Validate
}

func NewAuthService(
	profiles repo.ProfileRepository,
	sessions repo.SessionStore,
	state repo.AuthStateStore,
	jwt *helpers.JWTManager,
	mail MailQueue,
	providers []OAuthProvider,
	trackers *profilestate.Registry,
	logger *logrus.Logger,
	baseURL string,
	brand templates.Brand,
	magicLinkTTL, sessionTTL time.Duration,
) *AuthService {
	byName := make(map[string]OAuthProvider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	if logger == nil {
		logger = helpers.NopLogger()
	}
	return &AuthService{
		Profiles:     profiles,
		Sessions:     sessions,
		State:        state,
		JWT:          jwt,
		Mail:         mail,
		Providers:    byName,
		Trackers:     trackers,
		Logger:       logger,
		BaseURL:      strings.TrimRight(baseURL, "/"),
		Brand:        brand,
		MagicLinkTTL: magicLinkTTL,
		SessionTTL:   sessionTTL,
		validate:     validator.New(),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ProviderNames lists configured OAuth providers in a stable order.
func (s *AuthService) ProviderNames() []string {
	names := make([]string, 0, len(s.Providers))
	for n := range s.Providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// SendMagicLink stores a single-use link token and OTP code for email and
// queues the sign-in email. The result does not reveal whether an account
// exists.
func (s *AuthService) SendMagicLink(ctx context.Context, email string, meta RequestMeta) error {
	email = normalizeEmail(email)
	if err := s.validate.Var(email, "required,email"); err != nil {
		return ErrInvalidEmail
	}

	token, err := helpers.GenToken(32)
	if err != nil {
		return fmt.Errorf("generate token: %w", err)
	}
	code, err := helpers.GenOTPCode()
	if err != nil {
		return fmt.Errorf("generate otp: %w", err)
	}
	if err := s.State.PutMagicLink(ctx, helpers.HashToken(token), email, s.MagicLinkTTL); err != nil {
		return fmt.Errorf("store magic link: %w", err)
	}
	if err := s.State.PutOTP(ctx, email, code, s.MagicLinkTTL); err != nil {
		return fmt.Errorf("store otp: %w", err)
	}

	link := s.BaseURL + "/verify?token=" + url.QueryEscape(token)
	if s.Mail == nil {
		s.Logger.WithFields(logrus.Fields{"email": email, "link": link}).Debug("mail disabled; magic link not sent")
		return nil
	}
	data := templates.NewMagicLinkData(s.Brand, email, link, code,
		templates.WithTime(time.Now()),
		templates.WithExpiresIn(s.MagicLinkTTL),
		templates.WithIP(meta.IP),
		templates.WithUserAgent(meta.UserAgent),
	)
	if err := s.Mail.Enqueue(ctx, mailer.EmailJob{To: email, Template: templates.MagicLink, Data: data}); err != nil {
		return fmt.Errorf("enqueue magic link: %w", err)
	}
	return nil
}

// VerifyMagicLink consumes token and signs its owner in.
func (s *AuthService) VerifyMagicLink(ctx context.Context, token string) (*SignIn, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	email, err := s.State.TakeMagicLink(ctx, helpers.HashToken(token))
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("take magic link: %w", err)
	}
	// the code mailed with the link dies with it
	if _, err := s.State.TakeOTP(ctx, email); err != nil && !errors.Is(err, repo.ErrNotFound) {
		s.Logger.WithError(err).Warn("failed to discard otp")
	}
	return s.signIn(ctx, email)
}

// VerifyOTP checks the six digit code sent to email. A wrong code burns the
// stored one.
func (s *AuthService) VerifyOTP(ctx context.Context, email, code string) (*SignIn, error) {
	email = normalizeEmail(email)
	stored, err := s.State.TakeOTP(ctx, email)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("take otp: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		return nil, ErrInvalidToken
	}
	return s.signIn(ctx, email)
}

// OAuthLoginURL starts an OAuth sign-in and returns where to send the browser.
func (s *AuthService) OAuthLoginURL(ctx context.Context, provider string) (string, error) {
	p, ok := s.Providers[provider]
	if !ok {
		return "", ErrUnsupportedProvider
	}
	state, err := helpers.GenToken(24)
	if err != nil {
		return "", err
	}
	nonce, err := helpers.GenToken(24)
	if err != nil {
		return "", err
	}
	if err := s.State.PutOAuthState(ctx, state, repo.OAuthState{Provider: provider, Nonce: nonce}, oauthStateTTL); err != nil {
		return "", fmt.Errorf("store oauth state: %w", err)
	}
	return p.AuthCodeURL(state, nonce), nil
}

// OAuthCallback finishes an OAuth sign-in.
func (s *AuthService) OAuthCallback(ctx context.Context, provider, state, code string) (*SignIn, error) {
	p, ok := s.Providers[provider]
	if !ok {
		return nil, ErrUnsupportedProvider
	}
	if state == "" || code == "" {
		return nil, ErrInvalidToken
	}
	st, err := s.State.TakeOAuthState(ctx, state)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("take oauth state: %w", err)
	}
	if st.Provider != provider {
		return nil, ErrInvalidToken
	}
	email, err := p.Email(ctx, code, st.Nonce)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOAuthFailed, err)
	}
	return s.signIn(ctx, email)
}

// Refresh validates a refresh token against the live session, rotates the
// session id and issues a new token pair.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*SignIn, error) {
	claims, err := s.JWT.ParseRefreshToken(refreshToken)
	if err != nil {
		return nil, ErrInvalidSession
	}
	sess, err := s.Sessions.Get(ctx, claims.UserID)
	if err != nil || sess.ID != claims.SessionID {
		return nil, ErrInvalidSession
	}

	oldSID := sess.ID
	sess.ID = uuid.NewString()
	pair, err := s.tokens(sess)
	if err != nil {
		return nil, err
	}
	if err := s.Sessions.Rotate(ctx, claims.UserID, sess.ID, s.SessionTTL); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, fmt.Errorf("rotate session: %w", err)
	}
	if s.Trackers != nil {
		s.Trackers.Move(oldSID, sess.ID)
	}
	return &SignIn{Session: sess, Tokens: pair}, nil
}

// SignOut ends the session and drops its profile tracker.
func (s *AuthService) SignOut(ctx context.Context, sess *entity.Session) error {
	if sess == nil {
		return nil
	}
	if s.Trackers != nil {
		s.Trackers.Drop(sess.ID)
	}
	if err := s.Sessions.Delete(ctx, sess.Identity.UserID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// ResolveUser finds the account for email or creates it with an empty
// public profile.
func (s *AuthService) ResolveUser(ctx context.Context, email string) (*entity.PrivateProfile, bool, error) {
	email = normalizeEmail(email)
	priv, err := s.Profiles.GetPrivateByEmail(ctx, email)
	if err == nil {
		return priv, false, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, false, mapRepoErr("find user", err)
	}

	priv = &entity.PrivateProfile{ID: uuid.NewString(), Email: email}
	if err := s.Profiles.CreateUser(ctx, priv); err != nil {
		// lost a race with a concurrent sign-in for the same address
		if existing, gErr := s.Profiles.GetPrivateByEmail(ctx, email); gErr == nil {
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("create user: %w", err)
	}
	s.Logger.WithField("user_id", priv.ID).Info("user created")
	return priv, true, nil
}

func (s *AuthService) signIn(ctx context.Context, email string) (*SignIn, error) {
	priv, created, err := s.ResolveUser(ctx, email)
	if err != nil {
		return nil, err
	}

	sess := &entity.Session{
		ID:        uuid.NewString(),
		Identity:  entity.Identity{UserID: priv.ID, Email: priv.Email},
		CreatedAt: time.Now(),
	}
	if pub, err := s.Profiles.GetPublic(ctx, priv.ID); err == nil {
		sess.Name = valueOr(pub.Name)
		sess.Avatar = valueOr(pub.Avatar)
	}

	pair, err := s.tokens(sess)
	if err != nil {
		return nil, err
	}
	if err := s.Sessions.Save(ctx, sess, s.SessionTTL); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	s.Logger.WithFields(logrus.Fields{"user_id": priv.ID, "created": created}).Info("signed in")
	return &SignIn{Session: sess, Tokens: pair, Created: created}, nil
}

func (s *AuthService) tokens(sess *entity.Session) (entity.TokenPair, error) {
	access, aexp, err := s.JWT.GenerateAccessToken(sess.Identity.UserID, sess.ID)
	if err != nil {
		s.Logger.WithError(err).WithField("user_id", sess.Identity.UserID).Error("generate access token failed")
		return entity.TokenPair{}, err
	}
	refresh, rexp, err := s.JWT.GenerateRefreshToken(sess.Identity.UserID, sess.ID)
	if err != nil {
		s.Logger.WithError(err).WithField("user_id", sess.Identity.UserID).Error("generate refresh token failed")
		return entity.TokenPair{}, err
	}
	return entity.TokenPair{AccessToken: access, AccessTokenExpiry: aexp, RefreshToken: refresh, RefreshTokenExpiry: rexp}, nil
}

func valueOr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
