package auth

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sealtrack/sealtrack-backend/internal/audit"
	"github.com/sealtrack/sealtrack-backend/internal/users"
	pkgauth "github.com/sealtrack/sealtrack-backend/pkg/auth"
	"github.com/sealtrack/sealtrack-backend/pkg/auth/session"
	"github.com/sealtrack/sealtrack-backend/pkg/config"
	"github.com/sealtrack/sealtrack-backend/pkg/db/models"
	"github.com/sealtrack/sealtrack-backend/pkg/enums"
	apperrors "github.com/sealtrack/sealtrack-backend/pkg/errors"
	"github.com/sealtrack/sealtrack-backend/pkg/logger"
	"github.com/sealtrack/sealtrack-backend/pkg/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupAuthTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	usersDDL := `
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  full_name TEXT NOT NULL,
  phone TEXT,
  role TEXT NOT NULL,
  is_active INTEGER NOT NULL DEFAULT 1,
  last_login_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	bindingsDDL := `
CREATE TABLE IF NOT EXISTS device_bindings (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL UNIQUE,
  device_identifier TEXT NOT NULL,
  bound_at DATETIME
);`
	auditDDL := `
CREATE TABLE IF NOT EXISTS audit_logs (
  id TEXT PRIMARY KEY,
  action TEXT NOT NULL,
  entity_type TEXT NOT NULL,
  entity_id TEXT,
  actor_id TEXT,
  ip_address TEXT,
  detail TEXT,
  created_at DATETIME
);`
	require.NoError(t, db.Exec(usersDDL).Error)
	require.NoError(t, db.Exec(bindingsDDL).Error)
	require.NoError(t, db.Exec(auditDDL).Error)
	return db
}

func fastPasswordConfig() config.PasswordConfig {
	return config.PasswordConfig{
		ArgonMemoryKB:    8,
		ArgonTime:        1,
		ArgonParallelism: 1,
		ArgonSaltLen:     8,
		ArgonKeyLen:      16,
	}
}

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:                 "auth-service-test-secret",
		Issuer:                 "sealtrack-test",
		ExpirationMinutes:      15,
		RefreshTokenTTLMinutes: 60,
	}
}

type stubSessions struct {
	generatedFor []string
	refreshToken string

	rotateAccessID string
	rotateToken    string
	rotateErr      error

	revokedAll []string
}

func (s *stubSessions) Generate(ctx context.Context, userID, accessID string) (string, error) {
	s.generatedFor = append(s.generatedFor, accessID)
	if s.refreshToken == "" {
		return "stub-refresh-token", nil
	}
	return s.refreshToken, nil
}

func (s *stubSessions) Rotate(ctx context.Context, userID, oldAccessID, provided string) (string, string, error) {
	if s.rotateErr != nil {
		return "", "", s.rotateErr
	}
	return s.rotateAccessID, s.rotateToken, nil
}

func (s *stubSessions) RevokeAll(ctx context.Context, userID string) error {
	s.revokedAll = append(s.revokedAll, userID)
	return nil
}

func newTestService(t *testing.T, db *gorm.DB, sessions sessionManager) *Service {
	t.Helper()

	return &Service{
		users:    users.NewRepository(db),
		sessions: sessions,
		jwtCfg:   testJWTConfig(),
		audit:    audit.NewRecorder(db),
		logg:     logger.New(logger.Options{Level: zerolog.ErrorLevel, Output: io.Discard}),
		now:      time.Now,
	}
}

func createTestUser(t *testing.T, db *gorm.DB, username string, role enums.Role, password string) *models.User {
	t.Helper()

	hash, err := security.HashPassword(password, fastPasswordConfig())
	require.NoError(t, err)

	user := &models.User{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: hash,
		FullName:     "Test User",
		Role:         role,
		IsActive:     true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func auditActions(t *testing.T, db *gorm.DB) []string {
	t.Helper()

	var actions []string
	require.NoError(t, db.Model(&models.AuditLog{}).Order("created_at").Pluck("action", &actions).Error)
	return actions
}

func TestLogin_FirstAgentLoginBindsDevice(t *testing.T) {
	db := setupAuthTestDB(t)
	sessions := &stubSessions{}
	svc := newTestService(t, db, sessions)
	user := createTestUser(t, db, "agent.one", enums.RoleFieldAgent, "correct-horse-1")

	resp, err := svc.Login(context.Background(), LoginRequest{
		Username: "agent.one",
		Password: "correct-horse-1",
		DeviceID: "device-alpha",
	})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, "stub-refresh-token", resp.RefreshToken)
	assert.Equal(t, user.ID, resp.User.ID)

	claims, err := pkgauth.ParseAccessToken(testJWTConfig(), resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), claims.UserID)
	assert.Equal(t, enums.RoleFieldAgent, claims.Role)
	require.Len(t, sessions.generatedFor, 1)
	assert.Equal(t, claims.ID, sessions.generatedFor[0])

	var binding models.DeviceBinding
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&binding).Error)
	assert.Equal(t, "device-alpha", binding.DeviceIdentifier)

	var stored models.User
	require.NoError(t, db.First(&stored, "id = ?", user.ID).Error)
	assert.NotNil(t, stored.LastLoginAt)

	assert.Contains(t, auditActions(t, db), audit.ActionDeviceBound)
	assert.Contains(t, auditActions(t, db), audit.ActionLoginSuccess)
}

func TestLogin_RepeatLoginSameDeviceSucceeds(t *testing.T) {
	db := setupAuthTestDB(t)
	sessions := &stubSessions{}
	svc := newTestService(t, db, sessions)
	user := createTestUser(t, db, "agent.two", enums.RoleFieldAgent, "correct-horse-2")
	require.NoError(t, db.Create(&models.DeviceBinding{
		ID:               uuid.New(),
		UserID:           user.ID,
		DeviceIdentifier: "device-bravo",
	}).Error)

	_, err := svc.Login(context.Background(), LoginRequest{
		Username: "agent.two",
		Password: "correct-horse-2",
		DeviceID: "device-bravo",
	})
	require.NoError(t, err)

	// Still exactly one binding; nothing rebinds on a match.
	var count int64
	require.NoError(t, db.Model(&models.DeviceBinding{}).Where("user_id = ?", user.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestLogin_DeviceMismatchLooksLikeBadCredentials(t *testing.T) {
	db := setupAuthTestDB(t)
	sessions := &stubSessions{}
	svc := newTestService(t, db, sessions)
	user := createTestUser(t, db, "agent.three", enums.RoleFieldAgent, "correct-horse-3")
	require.NoError(t, db.Create(&models.DeviceBinding{
		ID:               uuid.New(),
		UserID:           user.ID,
		DeviceIdentifier: "device-charlie",
	}).Error)

	resp, err := svc.Login(context.Background(), LoginRequest{
		Username: "agent.three",
		Password: "correct-horse-3",
		DeviceID: "device-imposter",
	})
	require.Error(t, err)
	assert.Nil(t, resp)

	appErr := apperrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.CodeDeviceMismatch, appErr.Code())
	// Same message a bad password produces; the caller learns nothing extra.
	assert.Equal(t, "invalid username or password", appErr.Message())

	assert.Empty(t, sessions.generatedFor)
	assert.Contains(t, auditActions(t, db), audit.ActionDeviceMismatch)

	// The original binding is untouched.
	var binding models.DeviceBinding
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&binding).Error)
	assert.Equal(t, "device-charlie", binding.DeviceIdentifier)
}

func TestLogin_AgentWithoutDeviceIDRejected(t *testing.T) {
	db := setupAuthTestDB(t)
	svc := newTestService(t, db, &stubSessions{})
	createTestUser(t, db, "agent.four", enums.RoleFieldAgent, "correct-horse-4")

	_, err := svc.Login(context.Background(), LoginRequest{
		Username: "agent.four",
		Password: "correct-horse-4",
	})
	require.Error(t, err)
	appErr := apperrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.CodeValidation, appErr.Code())
}

func TestLogin_AdminSkipsDeviceBinding(t *testing.T) {
	db := setupAuthTestDB(t)
	svc := newTestService(t, db, &stubSessions{})
	user := createTestUser(t, db, "admin.one", enums.RoleAdmin, "admin-pass-123")

	resp, err := svc.Login(context.Background(), LoginRequest{
		Username: "admin.one",
		Password: "admin-pass-123",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)

	var count int64
	require.NoError(t, db.Model(&models.DeviceBinding{}).Where("user_id = ?", user.ID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestLogin_BadPassword(t *testing.T) {
	db := setupAuthTestDB(t)
	sessions := &stubSessions{}
	svc := newTestService(t, db, sessions)
	createTestUser(t, db, "agent.five", enums.RoleFieldAgent, "correct-horse-5")

	_, err := svc.Login(context.Background(), LoginRequest{
		Username: "agent.five",
		Password: "wrong-password",
		DeviceID: "device-echo",
	})
	require.Error(t, err)
	appErr := apperrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.CodeUnauthorized, appErr.Code())
	assert.Empty(t, sessions.generatedFor)
	assert.Contains(t, auditActions(t, db), audit.ActionLoginFailed)
}

func TestLogin_UnknownUsername(t *testing.T) {
	db := setupAuthTestDB(t)
	svc := newTestService(t, db, &stubSessions{})

	_, err := svc.Login(context.Background(), LoginRequest{
		Username: "nobody",
		Password: "whatever-pass",
	})
	require.Error(t, err)
	appErr := apperrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.CodeUnauthorized, appErr.Code())
	assert.Equal(t, "invalid username or password", appErr.Message())
}

func TestLogin_DisabledAccount(t *testing.T) {
	db := setupAuthTestDB(t)
	svc := newTestService(t, db, &stubSessions{})
	user := createTestUser(t, db, "agent.six", enums.RoleFieldAgent, "correct-horse-6")
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", user.ID).Update("is_active", false).Error)

	_, err := svc.Login(context.Background(), LoginRequest{
		Username: "agent.six",
		Password: "correct-horse-6",
		DeviceID: "device-foxtrot",
	})
	require.Error(t, err)
	appErr := apperrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.CodeUnauthorized, appErr.Code())
}

func TestRefresh_RotatesPair(t *testing.T) {
	db := setupAuthTestDB(t)
	newAccessID := uuid.NewString()
	sessions := &stubSessions{
		rotateAccessID: newAccessID,
		rotateToken:    "rotated-refresh-token",
	}
	svc := newTestService(t, db, sessions)
	user := createTestUser(t, db, "agent.seven", enums.RoleFieldAgent, "correct-horse-7")

	// An access token issued in the past, already expired.
	oldAccessID := uuid.NewString()
	expired, err := pkgauth.MintAccessToken(testJWTConfig(), time.Now().Add(-2*time.Hour), pkgauth.AccessTokenPayload{
		UserID: user.ID.String(),
		Role:   user.Role,
		JTI:    oldAccessID,
	})
	require.NoError(t, err)

	resp, err := svc.Refresh(context.Background(), RefreshRequest{
		AccessToken:  expired,
		RefreshToken: "the-old-refresh-token",
	})
	require.NoError(t, err)
	assert.Equal(t, "rotated-refresh-token", resp.RefreshToken)

	claims, err := pkgauth.ParseAccessToken(testJWTConfig(), resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, newAccessID, claims.ID)
	assert.Equal(t, user.ID.String(), claims.UserID)

	assert.Contains(t, auditActions(t, db), audit.ActionTokenRefreshed)
}

func TestRefresh_InvalidRefreshToken(t *testing.T) {
	db := setupAuthTestDB(t)
	sessions := &stubSessions{rotateErr: session.ErrInvalidRefreshToken}
	svc := newTestService(t, db, sessions)
	user := createTestUser(t, db, "agent.eight", enums.RoleFieldAgent, "correct-horse-8")

	token, err := pkgauth.MintAccessToken(testJWTConfig(), time.Now(), pkgauth.AccessTokenPayload{
		UserID: user.ID.String(),
		Role:   user.Role,
		JTI:    uuid.NewString(),
	})
	require.NoError(t, err)

	_, err = svc.Refresh(context.Background(), RefreshRequest{
		AccessToken:  token,
		RefreshToken: "stolen-or-replayed",
	})
	require.Error(t, err)
	appErr := apperrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.CodeUnauthorized, appErr.Code())
}

func TestRefresh_GarbageAccessToken(t *testing.T) {
	db := setupAuthTestDB(t)
	svc := newTestService(t, db, &stubSessions{})

	_, err := svc.Refresh(context.Background(), RefreshRequest{
		AccessToken:  "not-a-jwt",
		RefreshToken: "anything",
	})
	require.Error(t, err)
	appErr := apperrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.CodeUnauthorized, appErr.Code())
}

func TestLogout_RevokesAllSessions(t *testing.T) {
	db := setupAuthTestDB(t)
	sessions := &stubSessions{}
	svc := newTestService(t, db, sessions)
	userID := uuid.New()

	require.NoError(t, svc.Logout(context.Background(), userID, "10.0.0.1"))
	require.Len(t, sessions.revokedAll, 1)
	assert.Equal(t, userID.String(), sessions.revokedAll[0])
	assert.Contains(t, auditActions(t, db), audit.ActionLogout)
}

func TestResetDevice_RemovesBindingAndSessions(t *testing.T) {
	db := setupAuthTestDB(t)
	sessions := &stubSessions{}
	svc := newTestService(t, db, sessions)
	admin := createTestUser(t, db, "admin.two", enums.RoleAdmin, "admin-pass-456")
	agent := createTestUser(t, db, "agent.nine", enums.RoleFieldAgent, "correct-horse-9")
	require.NoError(t, db.Create(&models.DeviceBinding{
		ID:               uuid.New(),
		UserID:           agent.ID,
		DeviceIdentifier: "device-golf",
	}).Error)

	require.NoError(t, svc.ResetDevice(context.Background(), admin.ID, agent.ID, "10.0.0.2"))

	var count int64
	require.NoError(t, db.Model(&models.DeviceBinding{}).Where("user_id = ?", agent.ID).Count(&count).Error)
	assert.Zero(t, count)
	require.Len(t, sessions.revokedAll, 1)
	assert.Equal(t, agent.ID.String(), sessions.revokedAll[0])
	assert.Contains(t, auditActions(t, db), audit.ActionDeviceReset)

	// Agent can log in again and claim a new device.
	_, err := svc.Login(context.Background(), LoginRequest{
		Username: "agent.nine",
		Password: "correct-horse-9",
		DeviceID: "device-hotel",
	})
	require.NoError(t, err)
	var binding models.DeviceBinding
	require.NoError(t, db.Where("user_id = ?", agent.ID).First(&binding).Error)
	assert.Equal(t, "device-hotel", binding.DeviceIdentifier)
}

func TestResetDevice_UnknownUser(t *testing.T) {
	db := setupAuthTestDB(t)
	svc := newTestService(t, db, &stubSessions{})

	err := svc.ResetDevice(context.Background(), uuid.New(), uuid.New(), "")
	require.Error(t, err)
	appErr := apperrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.CodeNotFound, appErr.Code())
}
