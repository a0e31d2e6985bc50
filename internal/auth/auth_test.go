package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/KevinKickass/OpenLabManager/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testParams = HasherParams{Memory: 1024, Iterations: 1, Parallelism: 1}

type fakeDirectory struct {
	mu     sync.Mutex
	hasher *PasswordHasher
	users  map[int64]*types.User
	groups map[int64]*types.Group
	nextID int64
}

func newFakeDirectory(hasher *PasswordHasher) *fakeDirectory {
	return &fakeDirectory{hasher: hasher, users: map[int64]*types.User{}, groups: map[int64]*types.Group{}}
}

func (f *fakeDirectory) GetUser(ctx context.Context, id int64) (*types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, types.NotFound("user", id)
	}
	cp := *u
	return &cp, nil
}

func (f *fakeDirectory) find(match func(*types.User) bool, key any) (*types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, types.NotFound("user", key)
}

func (f *fakeDirectory) FindUserByEmail(ctx context.Context, email string) (*types.User, error) {
	return f.find(func(u *types.User) bool { return u.Email == email }, email)
}

func (f *fakeDirectory) FindUserByAuthID(ctx context.Context, authID string) (*types.User, error) {
	return f.find(func(u *types.User) bool { return u.AuthID != "" && u.AuthID == authID }, authID)
}

func (f *fakeDirectory) CreateUser(ctx context.Context, user types.User, password string) (int64, error) {
	if _, err := f.FindUserByEmail(ctx, user.Email); err == nil {
		return 0, types.Duplicate("user", "email")
	}
	if password != "" {
		hash, err := f.hasher.HashPassword(password)
		if err != nil {
			return 0, err
		}
		user.PasswordHash = hash
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	user.ID = f.nextID
	f.users[user.ID] = &user
	return user.ID, nil
}

func (f *fakeDirectory) UpdateUser(ctx context.Context, id int64, patch types.UserPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return types.NotFound("user", id)
	}
	if patch.Name != nil {
		u.Name = *patch.Name
	}
	if patch.AuthID != nil {
		u.AuthID = *patch.AuthID
	}
	if patch.Role != nil {
		u.Role = *patch.Role
	}
	if patch.ForceChangePassword != nil {
		u.ForceChangePassword = *patch.ForceChangePassword
	}
	if patch.Password != nil {
		hash, err := f.hasher.HashPassword(*patch.Password)
		if err != nil {
			return err
		}
		u.PasswordHash = hash
	}
	return nil
}

func (f *fakeDirectory) GetGroup(ctx context.Context, id int64) (*types.Group, error) {
	g, ok := f.groups[id]
	if !ok {
		return nil, types.NotFound("group", id)
	}
	return g, nil
}

type fakeExternal struct {
	identity *types.ExternalIdentity
	err      error
}

func (f *fakeExternal) SignInWithPassword(ctx context.Context, email, password string) (*types.ExternalIdentity, error) {
	return f.identity, f.err
}

func (f *fakeExternal) SignUp(ctx context.Context, email, password, name, avatar string) (*types.ExternalIdentity, error) {
	return &types.ExternalIdentity{Subject: "ext-new", Email: email}, f.err
}

func setup(t *testing.T, opts Options) (*Service, *fakeDirectory) {
	t.Helper()
	hasher := NewPasswordHasher(testParams)
	dir := newFakeDirectory(hasher)
	dir.groups[1] = &types.Group{ID: 1, Name: "Técnicos", Permissions: []types.Permission{types.PermManageInventory}}

	_, err := dir.CreateUser(context.Background(), types.User{Name: "Admin", Email: "admin@labmanager.local", Role: types.RoleAdmin, ForceChangePassword: true}, "admin123")
	require.NoError(t, err)
	gid := int64(1)
	_, err = dir.CreateUser(context.Background(), types.User{Name: "Tec", Email: "tec@labmanager.local", Role: types.RoleUser, GroupID: &gid}, "tec123")
	require.NoError(t, err)

	opts.Logger = zap.NewNop()
	return NewService(dir, NewTokenIssuer("test-secret", time.Hour), hasher, opts), dir
}

func TestPasswordHasher(t *testing.T) {
	h := NewPasswordHasher(testParams)
	hash, err := h.HashPassword("s3cret")
	require.NoError(t, err)
	assert.Contains(t, hash, "$argon2id$v=19$m=1024,t=1,p=1$")

	ok, err := h.VerifyPassword("s3cret", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.VerifyPassword("wrong", hash)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = h.VerifyPassword("s3cret", "plaintext")
	assert.Error(t, err)
}

func TestLogin(t *testing.T) {
	svc, dir := setup(t, Options{})
	ctx := context.Background()

	sess, err := svc.Login(ctx, " Admin@LabManager.local ", "admin123")
	require.NoError(t, err)
	assert.Equal(t, types.RoleAdmin, sess.User.Role)
	assert.True(t, sess.User.ForceChangePassword)
	assert.ElementsMatch(t, types.AllPermissions, sess.Permissions)

	_, err = svc.Login(ctx, "admin@labmanager.local", "nope")
	assert.True(t, errors.Is(err, types.ErrInvalidCredentials))

	_, err = svc.Login(ctx, "ghost@labmanager.local", "admin123")
	assert.True(t, errors.Is(err, types.ErrInvalidCredentials))

	assert.Len(t, dir.users, 2)
}

func TestLoginBlockedUser(t *testing.T) {
	svc, dir := setup(t, Options{})
	dir.users[2].IsBlocked = true

	_, err := svc.Login(context.Background(), "tec@labmanager.local", "tec123")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrUserBlocked))
	assert.False(t, errors.Is(err, types.ErrInvalidCredentials))
}

func TestGroupPermissions(t *testing.T) {
	svc, _ := setup(t, Options{})
	sess, err := svc.Login(context.Background(), "tec@labmanager.local", "tec123")
	require.NoError(t, err)
	assert.Equal(t, []types.Permission{types.PermManageInventory}, sess.Permissions)
}

func TestResolveAndLogout(t *testing.T) {
	svc, _ := setup(t, Options{})
	ctx := context.Background()

	sess, err := svc.Login(ctx, "tec@labmanager.local", "tec123")
	require.NoError(t, err)

	resolved, err := svc.Resolve(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, resolved.User.ID)

	require.NoError(t, svc.Logout(ctx, sess.Token))
	_, err = svc.Resolve(ctx, sess.Token)
	assert.True(t, errors.Is(err, types.ErrSessionNotFound))

	_, err = svc.Resolve(ctx, "garbage")
	assert.True(t, errors.Is(err, types.ErrSessionNotFound))
}

func TestExpiredToken(t *testing.T) {
	svc, dir := setup(t, Options{})
	issued := time.Now().Add(-2 * time.Hour)
	svc.tokens.now = func() time.Time { return issued }
	token, _, err := svc.tokens.Issue(dir.users[1])
	require.NoError(t, err)
	svc.tokens.now = time.Now

	_, err = svc.Resolve(context.Background(), token)
	assert.True(t, errors.Is(err, types.ErrSessionExpired))
}

func TestChangePasswordClearsFlag(t *testing.T) {
	svc, dir := setup(t, Options{})
	ctx := context.Background()

	assert.True(t, errors.Is(svc.ChangePassword(ctx, 1, "bad", "new-pass"), types.ErrInvalidCredentials))
	require.NoError(t, svc.ChangePassword(ctx, 1, "admin123", "new-pass"))
	assert.False(t, dir.users[1].ForceChangePassword)

	_, err := svc.Login(ctx, "admin@labmanager.local", "new-pass")
	require.NoError(t, err)
}

func TestLoginExternal(t *testing.T) {
	ctx := context.Background()

	t.Run("links existing profile by email", func(t *testing.T) {
		ext := &fakeExternal{identity: &types.ExternalIdentity{Subject: "sub-1", Email: "tec@labmanager.local"}}
		svc, dir := setup(t, Options{External: ext})

		sess, err := svc.Login(ctx, "tec@labmanager.local", "whatever")
		require.NoError(t, err)
		assert.Equal(t, int64(2), sess.User.ID)
		assert.Equal(t, "sub-1", dir.users[2].AuthID)
	})

	t.Run("provisions missing profile", func(t *testing.T) {
		ext := &fakeExternal{identity: &types.ExternalIdentity{Subject: "sub-2", Email: "new@labmanager.local"}}
		svc, dir := setup(t, Options{External: ext, ProvisionExternal: true})

		sess, err := svc.Login(ctx, "new@labmanager.local", "whatever")
		require.NoError(t, err)
		assert.Equal(t, types.RoleUser, sess.User.Role)
		assert.Equal(t, types.PresenceOnline, sess.User.Status)
		assert.Equal(t, "new", sess.User.Name)
		assert.NotEmpty(t, sess.User.Avatar)
		assert.Len(t, dir.users, 3)
	})

	t.Run("rejects missing profile without provisioning", func(t *testing.T) {
		ext := &fakeExternal{identity: &types.ExternalIdentity{Subject: "sub-3", Email: "x@labmanager.local"}}
		svc, _ := setup(t, Options{External: ext})

		_, err := svc.Login(ctx, "x@labmanager.local", "whatever")
		assert.True(t, errors.Is(err, types.ErrInvalidCredentials))
	})

	t.Run("propagates provider rejection", func(t *testing.T) {
		ext := &fakeExternal{err: types.NewAuthError(types.ErrInvalidCredentials)}
		svc, _ := setup(t, Options{External: ext})

		_, err := svc.Login(ctx, "tec@labmanager.local", "whatever")
		assert.True(t, types.IsAuth(err))
	})
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	svc, dir := setup(t, Options{})
	ctx := context.Background()

	sess, err := svc.Register(ctx, "Maria", "maria@labmanager.local", "pw")
	require.NoError(t, err)
	assert.Equal(t, types.RoleUser, sess.User.Role)

	_, err = svc.Register(ctx, "Maria", "maria@labmanager.local", "pw")
	assert.True(t, types.IsDuplicate(err))
	assert.Len(t, dir.users, 3)
}

func TestGateLifecycle(t *testing.T) {
	svc, _ := setup(t, Options{})
	ctx := context.Background()
	store := NewFileSessionStore(filepath.Join(t.TempDir(), "session"))

	gate := NewGate(svc, store, zap.NewNop())
	assert.Equal(t, StateUnresolved, gate.State())

	require.NoError(t, gate.Resolve(ctx))
	assert.Equal(t, StateAnonymous, gate.State())

	user, err := gate.Login(ctx, "admin@labmanager.local", "admin123")
	require.NoError(t, err)
	assert.Equal(t, "Admin", user.Name)
	assert.True(t, gate.ForceChangePassword())
	assert.True(t, gate.Can(types.PermManageUsers))

	// A fresh gate over the same store resumes the session.
	resumed := NewGate(svc, store, zap.NewNop())
	require.NoError(t, resumed.Resolve(ctx))
	assert.Equal(t, StateAuthenticated, resumed.State())

	require.NoError(t, gate.ChangePassword(ctx, "admin123", "changed"))
	assert.False(t, gate.ForceChangePassword())

	require.NoError(t, gate.Logout(ctx))
	assert.Equal(t, StateAnonymous, gate.State())
	token, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, token)

	// The revoked token no longer resolves anywhere.
	require.NoError(t, store.Save(resumed.Session().Token))
	again := NewGate(svc, store, zap.NewNop())
	require.NoError(t, again.Resolve(ctx))
	assert.Equal(t, StateAnonymous, again.State())
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, _ := setup(t, Options{})
	sess, err := svc.Login(context.Background(), "tec@labmanager.local", "tec123")
	require.NoError(t, err)

	router := gin.New()
	router.Use(svc.Middleware())
	router.GET("/inventory", RequirePermission(types.PermManageInventory), func(c *gin.Context) {
		c.String(http.StatusOK, CurrentSession(c).User.Name)
	})
	router.GET("/users", RequirePermission(types.PermManageUsers), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	do := func(path, token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusUnauthorized, do("/inventory", "").Code)
	w := do("/inventory", sess.Token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Tec", w.Body.String())
	assert.Equal(t, http.StatusForbidden, do("/users", sess.Token).Code)
}
