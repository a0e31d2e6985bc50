package auth

import (
	"context"
	"fmt"
	"sync"

	"github.com/KevinKickass/OpenLabManager/internal/types"
	"go.uber.org/zap"
)

type State int

const (
	StateUnresolved State = iota
	StateAnonymous
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateUnresolved:
		return "unresolved"
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Gate holds the current user of one client and persists its session
// token. It starts Unresolved until Resolve has looked at the stored token.
type Gate struct {
	svc    *Service
	store  SessionStore
	logger *zap.Logger

	mu      sync.RWMutex
	state   State
	session *Session
}

func NewGate(svc *Service, store SessionStore, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{svc: svc, store: store, logger: logger, state: StateUnresolved}
}

// Resolve restores the session from the store. An unknown, expired or
// revoked token leaves the gate Anonymous and clears the store; a backend
// failure leaves it Anonymous and is returned.
func (g *Gate) Resolve(ctx context.Context) error {
	token, err := g.store.Load()
	if err != nil {
		g.set(StateAnonymous, nil)
		return err
	}
	if token == "" {
		g.set(StateAnonymous, nil)
		return nil
	}

	sess, err := g.svc.Resolve(ctx, token)
	if err != nil {
		g.set(StateAnonymous, nil)
		if types.IsAuth(err) {
			g.logger.Info("Stored session rejected", zap.Error(err))
			return g.store.Clear()
		}
		return err
	}

	g.set(StateAuthenticated, sess)
	return nil
}

func (g *Gate) Login(ctx context.Context, email, password string) (*types.User, error) {
	sess, err := g.svc.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return g.adopt(sess)
}

func (g *Gate) LoginExternal(ctx context.Context, identity *types.ExternalIdentity) (*types.User, error) {
	sess, err := g.svc.LoginExternal(ctx, identity)
	if err != nil {
		return nil, err
	}
	return g.adopt(sess)
}

func (g *Gate) Register(ctx context.Context, name, email, password string) (*types.User, error) {
	sess, err := g.svc.Register(ctx, name, email, password)
	if err != nil {
		return nil, err
	}
	return g.adopt(sess)
}

func (g *Gate) adopt(sess *Session) (*types.User, error) {
	if err := g.store.Save(sess.Token); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}
	g.set(StateAuthenticated, sess)
	return sess.User, nil
}

// Logout clears the persisted token before anything else, then revokes it.
func (g *Gate) Logout(ctx context.Context) error {
	if err := g.store.Clear(); err != nil {
		return err
	}

	g.mu.Lock()
	sess := g.session
	g.state = StateAnonymous
	g.session = nil
	g.mu.Unlock()

	if sess == nil {
		return nil
	}
	return g.svc.Logout(ctx, sess.Token)
}

// UpdateCurrentUser patches the signed-in user's own profile and refreshes
// the cached copy.
func (g *Gate) UpdateCurrentUser(ctx context.Context, patch types.UserPatch) (*types.User, error) {
	sess := g.Session()
	if sess == nil {
		return nil, types.NewAuthError(errNoSession)
	}

	user, err := g.svc.UpdateProfile(ctx, sess.User.ID, patch)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	if g.session != nil && g.session.Token == sess.Token {
		updated := *g.session
		updated.User = user
		g.session = &updated
	}
	g.mu.Unlock()
	return user, nil
}

func (g *Gate) ChangePassword(ctx context.Context, current, next string) error {
	sess := g.Session()
	if sess == nil {
		return types.NewAuthError(errNoSession)
	}
	if err := g.svc.ChangePassword(ctx, sess.User.ID, current, next); err != nil {
		return err
	}

	g.mu.Lock()
	if g.session != nil && g.session.Token == sess.Token {
		updated := *g.session
		user := *updated.User
		user.ForceChangePassword = false
		updated.User = &user
		g.session = &updated
	}
	g.mu.Unlock()
	return nil
}

func (g *Gate) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

func (g *Gate) Session() *Session {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.session
}

func (g *Gate) CurrentUser() (*types.User, bool) {
	sess := g.Session()
	if sess == nil {
		return nil, false
	}
	return sess.User, true
}

// ForceChangePassword reports whether the signed-in user must pick a new
// password before doing anything else. Enforcing it is up to the caller.
func (g *Gate) ForceChangePassword() bool {
	sess := g.Session()
	return sess != nil && sess.User.ForceChangePassword
}

func (g *Gate) Can(perm types.Permission) bool {
	sess := g.Session()
	return sess != nil && HasPermission(sess.Permissions, perm)
}

func (g *Gate) set(state State, sess *Session) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = state
	g.session = sess
}
