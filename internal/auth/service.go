package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/KevinKickass/OpenLabManager/internal/storage"
	"github.com/KevinKickass/OpenLabManager/internal/types"
	"go.uber.org/zap"
)

// UserDirectory is the slice of the repository the auth service needs.
type UserDirectory interface {
	GetUser(ctx context.Context, id int64) (*types.User, error)
	FindUserByEmail(ctx context.Context, email string) (*types.User, error)
	FindUserByAuthID(ctx context.Context, authID string) (*types.User, error)
	CreateUser(ctx context.Context, user types.User, password string) (int64, error)
	UpdateUser(ctx context.Context, id int64, patch types.UserPatch) error
	GetGroup(ctx context.Context, id int64) (*types.Group, error)
}

// Session is an authenticated user together with its token.
type Session struct {
	Token       string             `json:"token"`
	User        *types.User        `json:"user"`
	Permissions []types.Permission `json:"permissions"`
	ExpiresAt   time.Time          `json:"expiresAt"`
}

type Options struct {
	// External, when set, owns credentials. Password checks and sign-ups
	// are delegated to it.
	External storage.ExternalAuthenticator
	// ProvisionExternal creates a profile for an external identity that
	// has none yet.
	ProvisionExternal bool
	Logger            *zap.Logger
}

type Service struct {
	users     UserDirectory
	tokens    *TokenIssuer
	hasher    *PasswordHasher
	external  storage.ExternalAuthenticator
	provision bool
	logger    *zap.Logger

	mu      sync.Mutex
	revoked map[string]time.Time
}

func NewService(users UserDirectory, tokens *TokenIssuer, hasher *PasswordHasher, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Service{
		users:     users,
		tokens:    tokens,
		hasher:    hasher,
		external:  opts.External,
		provision: opts.ProvisionExternal,
		logger:    opts.Logger,
		revoked:   make(map[string]time.Time),
	}
}

// Login checks credentials and opens a session. A blocked user is
// rejected with ErrUserBlocked even when the password is right.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = normalizeEmail(email)

	if s.external != nil {
		identity, err := s.external.SignInWithPassword(ctx, email, password)
		if err != nil {
			s.logger.Info("External login failed", zap.String("email", email), zap.Error(err))
			return nil, err
		}
		return s.LoginExternal(ctx, identity)
	}

	user, err := s.users.FindUserByEmail(ctx, email)
	if types.IsNotFound(err) {
		s.logger.Info("Login failed", zap.String("email", email), zap.String("reason", "unknown email"))
		return nil, types.NewAuthError(types.ErrInvalidCredentials)
	}
	if err != nil {
		return nil, err
	}

	if user.PasswordHash == "" {
		return nil, types.NewAuthError(types.ErrInvalidCredentials)
	}
	ok, err := s.hasher.VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		s.logger.Info("Login failed", zap.String("email", email), zap.String("reason", "password mismatch"))
		return nil, types.NewAuthError(types.ErrInvalidCredentials)
	}

	return s.open(ctx, user)
}

// LoginExternal maps an identity confirmed by an external provider to a
// local profile: by subject first, then by email (linking the subject),
// and finally by provisioning a new profile when enabled.
func (s *Service) LoginExternal(ctx context.Context, identity *types.ExternalIdentity) (*Session, error) {
	if identity == nil || identity.Subject == "" {
		return nil, types.NewAuthError(types.ErrInvalidCredentials)
	}

	user, err := s.users.FindUserByAuthID(ctx, identity.Subject)
	if err == nil {
		return s.open(ctx, user)
	}
	if !types.IsNotFound(err) {
		return nil, err
	}

	email := normalizeEmail(identity.Email)
	if email != "" {
		user, err = s.users.FindUserByEmail(ctx, email)
		if err == nil {
			subject := identity.Subject
			if err := s.users.UpdateUser(ctx, user.ID, types.UserPatch{AuthID: &subject}); err != nil {
				return nil, fmt.Errorf("failed to link external identity: %w", err)
			}
			user.AuthID = subject
			return s.open(ctx, user)
		}
		if !types.IsNotFound(err) {
			return nil, err
		}
	}

	if !s.provision {
		return nil, types.NewAuthError(types.ErrInvalidCredentials)
	}

	user, err = s.provisionProfile(ctx, identity, types.PresenceOnline)
	if err != nil {
		return nil, err
	}
	return s.open(ctx, user)
}

func (s *Service) provisionProfile(ctx context.Context, identity *types.ExternalIdentity, presence types.Presence) (*types.User, error) {
	email := normalizeEmail(identity.Email)
	name := identity.Name
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}
	avatar := identity.Avatar
	if avatar == "" {
		avatar = PlaceholderAvatar(name)
	}

	id, err := s.users.CreateUser(ctx, types.User{
		AuthID: identity.Subject,
		Name:   name,
		Email:  email,
		Avatar: avatar,
		Role:   types.RoleUser,
		Status: presence,
	}, "")
	if err != nil {
		return nil, fmt.Errorf("failed to provision profile: %w", err)
	}

	s.logger.Info("Profile provisioned for external identity",
		zap.Int64("user_id", id),
		zap.String("email", email))
	return s.users.GetUser(ctx, id)
}

// Register creates a regular user and opens a session for it.
func (s *Service) Register(ctx context.Context, name, email, password string) (*Session, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, types.Missing("user", "email")
	}
	if password == "" {
		return nil, types.Missing("user", "password")
	}
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}
	avatar := PlaceholderAvatar(name)

	if s.external != nil {
		identity, err := s.external.SignUp(ctx, email, password, name, avatar)
		if err != nil {
			return nil, err
		}
		if identity.Name == "" {
			identity.Name = name
		}
		if identity.Email == "" {
			identity.Email = email
		}
		if identity.Avatar == "" {
			identity.Avatar = avatar
		}
		user, err := s.provisionProfile(ctx, identity, types.PresenceOnline)
		if err != nil {
			return nil, err
		}
		return s.open(ctx, user)
	}

	id, err := s.users.CreateUser(ctx, types.User{
		Name:   name,
		Email:  email,
		Avatar: avatar,
		Role:   types.RoleUser,
		Status: types.PresenceOffline,
	}, password)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.open(ctx, user)
}

// Resolve turns a token back into a session. The user is reloaded so
// changes since login (blocking, group moves) apply immediately.
func (s *Service) Resolve(ctx context.Context, token string) (*Session, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, err
	}
	if s.isRevoked(claims.ID) {
		return nil, types.NewAuthError(types.ErrSessionNotFound)
	}

	user, err := s.users.GetUser(ctx, claims.UserID)
	if types.IsNotFound(err) {
		return nil, types.NewAuthError(types.ErrSessionNotFound)
	}
	if err != nil {
		return nil, err
	}
	if user.IsBlocked {
		return nil, types.NewAuthError(types.ErrUserBlocked)
	}

	perms, err := s.Permissions(ctx, user)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, User: user, Permissions: perms, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Logout revokes the token until it would have expired anyway.
func (s *Service) Logout(ctx context.Context, token string) error {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		// Already unusable.
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for id, exp := range s.revoked {
		if exp.Before(now) {
			delete(s.revoked, id)
		}
	}
	s.revoked[claims.ID] = claims.ExpiresAt.Time

	s.logger.Info("Session closed", zap.Int64("user_id", claims.UserID))
	return nil
}

// ChangePassword verifies the current password, stores the new one and
// clears the forced-change flag.
func (s *Service) ChangePassword(ctx context.Context, userID int64, current, next string) error {
	if next == "" {
		return types.Missing("user", "password")
	}
	if s.external != nil {
		return fmt.Errorf("failed to change password: %w", storage.ErrUnsupported)
	}

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	ok, err := s.hasher.VerifyPassword(current, user.PasswordHash)
	if err != nil || !ok {
		return types.NewAuthError(types.ErrInvalidCredentials)
	}

	cleared := false
	return s.users.UpdateUser(ctx, userID, types.UserPatch{Password: &next, ForceChangePassword: &cleared})
}

// UpdateProfile applies a self-service patch. Role, group and blocking
// cannot be changed this way.
func (s *Service) UpdateProfile(ctx context.Context, userID int64, patch types.UserPatch) (*types.User, error) {
	patch.Role = nil
	patch.GroupID = nil
	patch.IsBlocked = nil
	patch.ForceChangePassword = nil
	patch.Password = nil
	patch.AuthID = nil
	patch.PasswordHash = nil

	if err := s.users.UpdateUser(ctx, userID, patch); err != nil {
		return nil, err
	}
	return s.users.GetUser(ctx, userID)
}

// Permissions returns every tag for admins and the group's tags for
// everyone else.
func (s *Service) Permissions(ctx context.Context, user *types.User) ([]types.Permission, error) {
	if user.Role == types.RoleAdmin {
		return append([]types.Permission(nil), types.AllPermissions...), nil
	}
	if user.GroupID == nil {
		return []types.Permission{}, nil
	}

	group, err := s.users.GetGroup(ctx, *user.GroupID)
	if types.IsNotFound(err) {
		return []types.Permission{}, nil
	}
	if err != nil {
		return nil, err
	}
	return group.Permissions, nil
}

func (s *Service) open(ctx context.Context, user *types.User) (*Session, error) {
	if user.IsBlocked {
		s.logger.Info("Login rejected", zap.Int64("user_id", user.ID), zap.String("reason", "blocked"))
		return nil, types.NewAuthError(types.ErrUserBlocked)
	}

	perms, err := s.Permissions(ctx, user)
	if err != nil {
		return nil, err
	}

	token, claims, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Session opened", zap.Int64("user_id", user.ID), zap.String("role", string(user.Role)))
	return &Session{Token: token, User: user, Permissions: perms, ExpiresAt: claims.ExpiresAt.Time}, nil
}

func (s *Service) isRevoked(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.revoked[id]
	return ok
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// PlaceholderAvatar builds a generated initials avatar URL.
func PlaceholderAvatar(name string) string {
	return "https://ui-avatars.com/api/?background=random&name=" + url.QueryEscape(name)
}

// HasPermission reports whether perms grants want.
func HasPermission(perms []types.Permission, want types.Permission) bool {
	for _, p := range perms {
		if p == want {
			return true
		}
	}
	return false
}

var errNoSession = errors.New("no active session")
