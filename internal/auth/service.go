package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sealtrack/sealtrack-backend/internal/audit"
	"github.com/sealtrack/sealtrack-backend/internal/users"
	pkgauth "github.com/sealtrack/sealtrack-backend/pkg/auth"
	"github.com/sealtrack/sealtrack-backend/pkg/auth/session"
	"github.com/sealtrack/sealtrack-backend/pkg/config"
	"github.com/sealtrack/sealtrack-backend/pkg/db/models"
	apperrors "github.com/sealtrack/sealtrack-backend/pkg/errors"
	"github.com/sealtrack/sealtrack-backend/pkg/logger"
	"github.com/sealtrack/sealtrack-backend/pkg/security"
	"github.com/sealtrack/sealtrack-backend/pkg/types"
	"gorm.io/gorm"
)

// sessionManager is the refresh-session surface the service depends on.
// Satisfied by session.Manager; mocked in tests.
type sessionManager interface {
	Generate(ctx context.Context, userID, accessID string) (string, error)
	Rotate(ctx context.Context, userID, oldAccessID, provided string) (string, string, error)
	RevokeAll(ctx context.Context, userID string) error
}

// Service implements login, token refresh, logout, and device binding.
//
// A device mismatch is deliberately indistinguishable from bad credentials in
// the response body; the distinction lives only in the audit trail.
type Service struct {
	users    users.Repository
	sessions sessionManager
	jwtCfg   config.JWTConfig
	audit    audit.Recorder
	logg     *logger.Logger
	now      func() time.Time
}

// NewService wires the authenticator against its collaborators.
func NewService(
	userRepo users.Repository,
	sessions *session.Manager,
	jwtCfg config.JWTConfig,
	recorder audit.Recorder,
	logg *logger.Logger,
) *Service {
	return &Service{
		users:    userRepo,
		sessions: sessions,
		jwtCfg:   jwtCfg,
		audit:    recorder,
		logg:     logg,
		now:      time.Now,
	}
}

func errInvalidCredentials() *apperrors.Error {
	return apperrors.New(apperrors.CodeUnauthorized, "invalid username or password")
}

// Login verifies credentials and, for roles that require it, the presented
// device identifier. The first successful login of an unbound field agent
// binds their device; every later login must present the same identifier.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	user, err := s.users.FindByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.recordLoginFailure(ctx, nil, req, "unknown_username")
			return nil, errInvalidCredentials()
		}
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "looking up user")
	}

	if !user.IsActive {
		s.recordLoginFailure(ctx, &user.ID, req, "account_disabled")
		return nil, errInvalidCredentials()
	}

	ok, err := security.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "verifying password")
	}
	if !ok {
		s.recordLoginFailure(ctx, &user.ID, req, "bad_password")
		return nil, errInvalidCredentials()
	}

	if user.Role.RequiresDeviceBinding() {
		if err := s.enforceDeviceBinding(ctx, user, req); err != nil {
			return nil, err
		}
	}

	accessID := session.NewAccessID()
	accessToken, err := pkgauth.MintAccessToken(s.jwtCfg, s.now(), pkgauth.AccessTokenPayload{
		UserID: user.ID.String(),
		Role:   user.Role,
		JTI:    accessID,
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "minting access token")
	}

	refreshToken, err := s.sessions.Generate(ctx, user.ID.String(), accessID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDependency, err, "creating session")
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID, s.now()); err != nil {
		s.logg.Error(ctx, "updating last login", err)
	}

	s.record(ctx, audit.Entry{
		Action:     audit.ActionLoginSuccess,
		EntityType: "user",
		EntityID:   &user.ID,
		ActorID:    &user.ID,
		IPAddress:  req.ClientIP,
	})
	s.logg.Info(s.logg.WithUserID(ctx, user.ID.String()), "login succeeded")

	return &LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         users.FromModel(user),
	}, nil
}

func (s *Service) enforceDeviceBinding(ctx context.Context, user *models.User, req LoginRequest) error {
	if req.DeviceID == "" {
		return apperrors.New(apperrors.CodeValidation, "device_id is required")
	}

	binding, err := s.users.FindBinding(ctx, user.ID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.Wrap(apperrors.CodeInternal, err, "looking up device binding")
		}
		// Unbound account: this login claims the device.
		if err := s.users.CreateBinding(ctx, &models.DeviceBinding{
			UserID:           user.ID,
			DeviceIdentifier: req.DeviceID,
		}); err != nil {
			return apperrors.Wrap(apperrors.CodeInternal, err, "binding device")
		}
		s.record(ctx, audit.Entry{
			Action:     audit.ActionDeviceBound,
			EntityType: "user",
			EntityID:   &user.ID,
			ActorID:    &user.ID,
			IPAddress:  req.ClientIP,
			Detail:     types.JSONMap{"device_id": req.DeviceID},
		})
		return nil
	}

	if binding.DeviceIdentifier != req.DeviceID {
		s.record(ctx, audit.Entry{
			Action:     audit.ActionDeviceMismatch,
			EntityType: "user",
			EntityID:   &user.ID,
			ActorID:    &user.ID,
			IPAddress:  req.ClientIP,
			Detail: types.JSONMap{
				"presented_device_id": req.DeviceID,
			},
		})
		s.logg.Warn(s.logg.WithUserID(ctx, user.ID.String()), "login rejected: device mismatch")
		return apperrors.New(apperrors.CodeDeviceMismatch, "invalid username or password")
	}
	return nil
}

// Refresh rotates a consumed access/refresh pair. The expired access token is
// still parsed (signature and issuer checked) to recover the session ID; the
// refresh token itself is single-use.
func (s *Service) Refresh(ctx context.Context, req RefreshRequest) (*RefreshResponse, error) {
	claims, err := pkgauth.ParseAccessTokenAllowExpired(s.jwtCfg, req.AccessToken)
	if err != nil {
		return nil, apperrors.New(apperrors.CodeUnauthorized, "invalid access token")
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, apperrors.New(apperrors.CodeUnauthorized, "invalid access token")
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.CodeUnauthorized, "invalid access token")
		}
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "looking up user")
	}
	if !user.IsActive {
		if err := s.sessions.RevokeAll(ctx, user.ID.String()); err != nil {
			s.logg.Error(ctx, "revoking sessions for disabled account", err)
		}
		return nil, apperrors.New(apperrors.CodeUnauthorized, "account disabled")
	}

	newAccessID, newRefreshToken, err := s.sessions.Rotate(ctx, claims.UserID, claims.ID, req.RefreshToken)
	if err != nil {
		if errors.Is(err, session.ErrInvalidRefreshToken) {
			return nil, apperrors.New(apperrors.CodeUnauthorized, "invalid refresh token")
		}
		return nil, apperrors.Wrap(apperrors.CodeDependency, err, "rotating session")
	}

	// Role is re-read from the store so a role change takes effect at the
	// next refresh rather than waiting for the session to die.
	accessToken, err := pkgauth.MintAccessToken(s.jwtCfg, s.now(), pkgauth.AccessTokenPayload{
		UserID: user.ID.String(),
		Role:   user.Role,
		JTI:    newAccessID,
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "minting access token")
	}

	s.record(ctx, audit.Entry{
		Action:     audit.ActionTokenRefreshed,
		EntityType: "user",
		EntityID:   &user.ID,
		ActorID:    &user.ID,
		IPAddress:  req.ClientIP,
	})

	return &RefreshResponse{
		AccessToken:  accessToken,
		RefreshToken: newRefreshToken,
	}, nil
}

// Logout invalidates every live session for the user. Field devices are
// shared between exam duties, so a logout on one must not leave a refreshable
// session behind anywhere else.
func (s *Service) Logout(ctx context.Context, userID uuid.UUID, clientIP string) error {
	if err := s.sessions.RevokeAll(ctx, userID.String()); err != nil {
		return apperrors.Wrap(apperrors.CodeDependency, err, "revoking sessions")
	}
	s.record(ctx, audit.Entry{
		Action:     audit.ActionLogout,
		EntityType: "user",
		EntityID:   &userID,
		ActorID:    &userID,
		IPAddress:  clientIP,
	})
	return nil
}

// ResetDevice removes the target user's device binding so their next login
// rebinds, and kills every live session they hold. Admin-only.
func (s *Service) ResetDevice(ctx context.Context, actorID, targetUserID uuid.UUID, clientIP string) error {
	target, err := s.users.FindByID(ctx, targetUserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.New(apperrors.CodeNotFound, "user not found")
		}
		return apperrors.Wrap(apperrors.CodeInternal, err, "looking up user")
	}

	if err := s.users.DeleteBinding(ctx, target.ID); err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, err, "deleting device binding")
	}
	if err := s.sessions.RevokeAll(ctx, target.ID.String()); err != nil {
		return apperrors.Wrap(apperrors.CodeDependency, err, "revoking sessions")
	}

	s.record(ctx, audit.Entry{
		Action:     audit.ActionDeviceReset,
		EntityType: "user",
		EntityID:   &target.ID,
		ActorID:    &actorID,
		IPAddress:  clientIP,
	})
	s.logg.Info(s.logg.WithUserID(ctx, target.ID.String()), "device binding reset")
	return nil
}

func (s *Service) recordLoginFailure(ctx context.Context, userID *uuid.UUID, req LoginRequest, reason string) {
	s.record(ctx, audit.Entry{
		Action:     audit.ActionLoginFailed,
		EntityType: "user",
		EntityID:   userID,
		IPAddress:  req.ClientIP,
		Detail: types.JSONMap{
			"username": req.Username,
			"reason":   reason,
		},
	})
}

func (s *Service) record(ctx context.Context, entry audit.Entry) {
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logg.Error(ctx, "writing audit entry", err)
	}
}
