package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/smartconnect/auth-service/internal/audit"
	"github.com/smartconnect/auth-service/internal/blacklist"
	"github.com/smartconnect/auth-service/internal/models"
	"github.com/smartconnect/auth-service/internal/repo"
	"github.com/smartconnect/auth-service/internal/service"
	"github.com/smartconnect/auth-service/internal/tokens"
)

type recordingAudit struct {
	mu     sync.Mutex
	events []audit.Event
}

func (a *recordingAudit) Publish(_ context.Context, e audit.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
}

func (a *recordingAudit) types() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.events))
	for _, e := range a.events {
		out = append(out, e.Type)
	}
	return out
}

type testEnv struct {
	svc   *service.AuthService
	repo  *repo.GormRepo
	db    *gorm.DB
	audit *recordingAudit
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.RefreshToken{}))

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	gormRepo := repo.New(db)
	rec := &recordingAudit{}
	codec := &tokens.Codec{
		Secret:     []byte("test-jwt-secret"),
		AccessTTL:  24 * time.Hour,
		RefreshTTL: 7 * 24 * time.Hour,
	}

	return &testEnv{
		svc:   service.New(gormRepo, gormRepo, &blacklist.Cache{RDB: rdb}, rec, codec),
		repo:  gormRepo,
		db:    db,
		audit: rec,
	}
}

func (env *testEnv) register(t *testing.T, username, email, password string) *service.Result {
	t.Helper()

	res, err := env.svc.Register(context.Background(), service.RegisterInput{
		Username: username,
		Email:    email,
		Password: password,
		FullName: "Test User",
	})
	require.NoError(t, err)
	return res
}

func (env *testEnv) user(t *testing.T, username string) *models.User {
	t.Helper()

	var user models.User
	require.NoError(t, env.db.Where("username = ?", username).First(&user).Error)
	return &user
}

func (env *testEnv) setLockState(t *testing.T, username string, until *time.Time, attempts int) {
	t.Helper()

	require.NoError(t, env.db.Model(&models.User{}).
		Where("username = ?", username).
		Updates(map[string]interface{}{
			"locked_until":          until,
			"failed_login_attempts": attempts,
		}).Error)
}

func (env *testEnv) deactivate(t *testing.T, username string) {
	t.Helper()

	require.NoError(t, env.db.Model(&models.User{}).
		Where("username = ?", username).
		Update("is_active", false).Error)
}

func TestLogin_UnknownIdentifierIsCredentialError(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Login(context.Background(), "nobody", "whatever")
	assert.ErrorIs(t, err, service.ErrInvalidCredentials)
	assert.NotErrorIs(t, err, service.ErrAccountLocked)
	assert.NotErrorIs(t, err, service.ErrAccountInactive)
}

func TestLogin_ByUsernameOrEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "bob", "bob@example.com", "password123")

	res, err := env.svc.Login(ctx, "bob", "password123")
	require.NoError(t, err)
	assert.Equal(t, "bob", res.User.Username)
	assert.Equal(t, "Bearer", res.TokenType)
	assert.EqualValues(t, 24*60*60, res.ExpiresIn)

	res, err = env.svc.Login(ctx, "bob@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, "bob", res.User.Username)

	user := env.user(t, "bob")
	require.NotNil(t, user.LastLogin)
	assert.Zero(t, user.FailedLoginAttempts)
}

func TestLogin_LocksAtThreshold(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "carol", "carol@example.com", "password123")

	for i := 0; i < service.DefaultLockThreshold-1; i++ {
		_, err := env.svc.Login(ctx, "carol", "wrong")
		assert.ErrorIs(t, err, service.ErrInvalidCredentials)
	}

	// one short of the threshold: still unlocked
	user := env.user(t, "carol")
	assert.Equal(t, service.DefaultLockThreshold-1, user.FailedLoginAttempts)
	assert.Nil(t, user.LockedUntil)

	_, err := env.svc.Login(ctx, "carol", "wrong")
	assert.ErrorIs(t, err, service.ErrInvalidCredentials)

	user = env.user(t, "carol")
	require.NotNil(t, user.LockedUntil)
	assert.WithinDuration(t, time.Now().Add(service.DefaultLockDuration), *user.LockedUntil, time.Minute)

	// the lock holds even for the correct password
	_, err = env.svc.Login(ctx, "carol", "password123")
	assert.ErrorIs(t, err, service.ErrAccountLocked)
}

func TestLogin_AutoUnlockAfterLockElapses(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "dave", "dave@example.com", "password123")

	past := time.Now().Add(-time.Minute)
	env.setLockState(t, "dave", &past, service.DefaultLockThreshold)

	res, err := env.svc.Login(ctx, "dave", "password123")
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)

	user := env.user(t, "dave")
	assert.Nil(t, user.LockedUntil)
	assert.Zero(t, user.FailedLoginAttempts)
}

func TestLogin_AutoUnlockResetsCounterBeforeAttempt(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "erin", "erin@example.com", "password123")

	past := time.Now().Add(-time.Minute)
	env.setLockState(t, "erin", &past, service.DefaultLockThreshold)

	// wrong password on an elapsed lock counts from zero, not from five
	_, err := env.svc.Login(ctx, "erin", "wrong")
	assert.ErrorIs(t, err, service.ErrInvalidCredentials)

	user := env.user(t, "erin")
	assert.Equal(t, 1, user.FailedLoginAttempts)
	assert.Nil(t, user.LockedUntil)
}

func TestLogin_InactiveAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "frank", "frank@example.com", "password123")
	env.deactivate(t, "frank")

	_, err := env.svc.Login(ctx, "frank", "password123")
	assert.ErrorIs(t, err, service.ErrAccountInactive)

	// inactive is reported even for a wrong password, so activity state
	// never leaks whether the password matched
	_, err = env.svc.Login(ctx, "frank", "wrong")
	assert.ErrorIs(t, err, service.ErrAccountInactive)
}

func TestRegister_DefaultsAndSession(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.svc.Register(context.Background(), service.RegisterInput{
		Username: "grace",
		Email:    "grace@example.com",
		Password: "password123",
		FullName: "Grace H",
		Phone:    "   ",
	})
	require.NoError(t, err)

	// registration always produces an authenticated session
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Equal(t, models.RoleStudent, res.User.Role)

	user := env.user(t, "grace")
	assert.True(t, user.IsActive)
	assert.Nil(t, user.Phone)
	assert.Zero(t, user.FailedLoginAttempts)
}

func TestRegister_Conflicts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "heidi", "heidi@example.com", "password123")

	_, err := env.svc.Register(ctx, service.RegisterInput{
		Username: "heidi",
		Email:    "other@example.com",
		Password: "password123",
		FullName: "Other",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, service.ErrAlreadyExists)
	var exists *service.AlreadyExistsError
	require.ErrorAs(t, err, &exists)
	assert.Equal(t, "username", exists.Field)

	_, err = env.svc.Register(ctx, service.RegisterInput{
		Username: "other",
		Email:    "heidi@example.com",
		Password: "password123",
		FullName: "Other",
	})
	require.ErrorAs(t, err, &exists)
	assert.Equal(t, "email", exists.Field)
}

func TestRegister_InvalidRole(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Register(context.Background(), service.RegisterInput{
		Username: "ivan",
		Email:    "ivan@example.com",
		Password: "password123",
		FullName: "Ivan",
		Role:     "WIZARD",
	})
	assert.ErrorIs(t, err, service.ErrInvalidRole)
}

func TestRefresh_RotationIsSingleUse(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := env.register(t, "alice", "alice@example.com", "password123")

	second, err := env.svc.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.AccessToken, second.AccessToken)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.Equal(t, "alice", second.User.Username)

	// the rotated token is spent
	_, err = env.svc.Refresh(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, service.ErrInvalidToken)

	// its replacement still works
	third, err := env.svc.Refresh(ctx, second.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, second.RefreshToken, third.RefreshToken)
}

func TestRefresh_UnknownToken(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Refresh(context.Background(), "no-such-token")
	assert.ErrorIs(t, err, service.ErrInvalidToken)
}

func TestRefresh_ExpiredToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res := env.register(t, "judy", "judy@example.com", "password123")
	require.NoError(t, env.db.Model(&models.RefreshToken{}).
		Where("token = ?", res.RefreshToken).
		Update("expires_at", time.Now().Add(-time.Hour)).Error)

	_, err := env.svc.Refresh(ctx, res.RefreshToken)
	assert.ErrorIs(t, err, service.ErrInvalidToken)
}

func TestRefresh_InactiveOwner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res := env.register(t, "kate", "kate@example.com", "password123")
	env.deactivate(t, "kate")

	_, err := env.svc.Refresh(ctx, res.RefreshToken)
	assert.ErrorIs(t, err, service.ErrAccountInactive)
}

func TestLogout_BlacklistsAndRevokes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res := env.register(t, "leo", "leo@example.com", "password123")

	claims, err := env.svc.VerifyAccessToken(ctx, res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "leo", claims.Subject)

	env.svc.Logout(ctx, res.AccessToken, res.RefreshToken)

	_, err = env.svc.VerifyAccessToken(ctx, res.AccessToken)
	assert.ErrorIs(t, err, service.ErrInvalidToken)

	_, err = env.svc.Refresh(ctx, res.RefreshToken)
	assert.ErrorIs(t, err, service.ErrInvalidToken)
}

func TestLogout_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res := env.register(t, "mary", "mary@example.com", "password123")

	env.svc.Logout(ctx, res.AccessToken, res.RefreshToken)
	env.svc.Logout(ctx, res.AccessToken, res.RefreshToken)

	_, err := env.svc.VerifyAccessToken(ctx, res.AccessToken)
	assert.ErrorIs(t, err, service.ErrInvalidToken)
}

func TestLogout_StepsAreIndependent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res := env.register(t, "nick", "nick@example.com", "password123")

	// a garbage refresh token must not stop the access-token blacklist
	env.svc.Logout(ctx, res.AccessToken, "not-a-token")
	_, err := env.svc.VerifyAccessToken(ctx, res.AccessToken)
	assert.ErrorIs(t, err, service.ErrInvalidToken)

	// and a missing access token must not stop the ledger revocation
	env.svc.Logout(ctx, "", res.RefreshToken)
	_, err = env.svc.Refresh(ctx, res.RefreshToken)
	assert.ErrorIs(t, err, service.ErrInvalidToken)
}

func TestVerifyAccessToken_Unblock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res := env.register(t, "olly", "olly@example.com", "password123")

	env.svc.Logout(ctx, res.AccessToken, "")
	_, err := env.svc.VerifyAccessToken(ctx, res.AccessToken)
	assert.ErrorIs(t, err, service.ErrInvalidToken)

	env.svc.Unblock(ctx, res.AccessToken)
	claims, err := env.svc.VerifyAccessToken(ctx, res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "olly", claims.Subject)
}

func TestVerifyAccessToken_Garbage(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.VerifyAccessToken(context.Background(), "garbage")
	assert.ErrorIs(t, err, service.ErrInvalidToken)
}

func TestAuditEvents(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res := env.register(t, "pam", "pam@example.com", "password123")
	_, _ = env.svc.Login(ctx, "pam", "wrong")
	_, err := env.svc.Login(ctx, "pam", "password123")
	require.NoError(t, err)
	env.svc.Logout(ctx, res.AccessToken, res.RefreshToken)

	assert.Equal(t, []string{"user_registered", "login_failed", "user_login", "user_logout"}, env.audit.types())
}
