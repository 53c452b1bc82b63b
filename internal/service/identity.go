package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"support_chat/internal/config"
	"support_chat/internal/domain"
	"support_chat/internal/repository"
	pkgerrors "support_chat/pkg/errors"
	"support_chat/pkg/jwt"
	"support_chat/pkg/logger"
)

// Credential — учетные данные из handshake или логина.
// Заполняется ровно одно из Token / APIKey / Phone.
type Credential struct {
	UserID string
	Token  string
	APIKey string
	Phone  string
}

type IdentityService interface {
	// Resolve превращает учетные данные в пользователя. wantStaff задает,
	// с какого endpoint пришло подключение: staff не может входить по
	// телефону, клиент — по ключу.
	Resolve(ctx context.Context, cred Credential, wantStaff bool) (*domain.User, error)
	ResolveToken(ctx context.Context, token string) (*domain.User, error)
	Login(ctx context.Context, cred Credential) (*domain.User, string, error)
	Register(ctx context.Context, user *domain.User) error
}

type identityService struct {
	userRepo repository.UserRepository
	jwtCfg   config.JWTConfig
	log      logger.Logger
}

func NewIdentityService(userRepo repository.UserRepository, jwtCfg config.JWTConfig, log logger.Logger) IdentityService {
	return &identityService{
		userRepo: userRepo,
		jwtCfg:   jwtCfg,
		log:      log,
	}
}

func (s *identityService) Resolve(ctx context.Context, cred Credential, wantStaff bool) (*domain.User, error) {
	kinds := 0
	for _, v := range []string{cred.Token, cred.APIKey, cred.Phone} {
		if strings.TrimSpace(v) != "" {
			kinds++
		}
	}
	if kinds != 1 {
		return nil, pkgerrors.ErrMalformedCredential
	}

	// Вид учетных данных должен соответствовать endpoint
	if wantStaff && cred.Phone != "" {
		return nil, pkgerrors.ErrMalformedCredential
	}
	if !wantStaff && cred.APIKey != "" {
		return nil, pkgerrors.ErrMalformedCredential
	}

	user, err := s.lookup(ctx, cred)
	if err != nil {
		return nil, err
	}

	// Заявленный идентификатор должен совпасть с владельцем учетных данных
	if declared := strings.TrimSpace(cred.UserID); declared != "" && declared != user.ID {
		if domain.LooksLikeUserID(declared) {
			if _, err := s.userRepo.GetByID(ctx, declared); errors.Is(err, pkgerrors.ErrNotFound) {
				return nil, pkgerrors.ErrInvalidUser
			}
		}
		return nil, pkgerrors.ErrInvalidCredential
	}

	if wantStaff && !user.IsStaff() {
		return nil, pkgerrors.ErrInvalidCredential
	}
	if !wantStaff && user.IsStaff() {
		return nil, pkgerrors.ErrInvalidCredential
	}

	return user, nil
}

func (s *identityService) lookup(ctx context.Context, cred Credential) (*domain.User, error) {
	var (
		user *domain.User
		err  error
	)

	switch {
	case cred.Token != "":
		claims, jwtErr := jwt.ValidateToken(cred.Token, s.jwtCfg.SessionSecret)
		if jwtErr != nil {
			return nil, pkgerrors.ErrInvalidCredential
		}
		user, err = s.userRepo.GetByID(ctx, claims.UserID)
	case cred.APIKey != "":
		user, err = s.userRepo.GetByAPIKey(ctx, cred.APIKey)
	default:
		user, err = s.userRepo.GetByPhone(ctx, cred.Phone)
	}

	if err != nil {
		if errors.Is(err, pkgerrors.ErrNotFound) {
			return nil, pkgerrors.ErrInvalidCredential
		}
		s.log.Error("Credential lookup failed", "error", err)
		return nil, err
	}

	return user, nil
}

func (s *identityService) ResolveToken(ctx context.Context, token string) (*domain.User, error) {
	claims, err := jwt.ValidateToken(token, s.jwtCfg.SessionSecret)
	if err != nil {
		return nil, pkgerrors.ErrInvalidCredential
	}

	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrNotFound) {
			return nil, pkgerrors.ErrInvalidCredential
		}
		return nil, err
	}

	return user, nil
}

func (s *identityService) Login(ctx context.Context, cred Credential) (*domain.User, string, error) {
	user, err := s.Resolve(ctx, cred, cred.APIKey != "")
	if err != nil {
		return nil, "", err
	}

	token, err := jwt.GenerateSessionToken(user.ID, user.Role, s.jwtCfg.SessionSecret, s.jwtCfg.SessionTTL)
	if err != nil {
		s.log.Error("Failed to generate session token", "error", err, "user_id", user.ID)
		return nil, "", pkgerrors.ErrInternal
	}

	return user, token, nil
}

func (s *identityService) Register(ctx context.Context, user *domain.User) error {
	user.ID = strings.TrimSpace(user.ID)
	if user.ID == "" || !domain.ValidRole(user.Role) {
		return pkgerrors.ErrBadRequest
	}
	if user.IsStaff() && user.APIKey == "" {
		return pkgerrors.ErrBadRequest
	}
	if user.Role == domain.RoleCustomer && user.Phone == "" && user.TelegramID == 0 {
		return pkgerrors.ErrBadRequest
	}

	user.CreatedAt = time.Now()
	return s.userRepo.Create(ctx, user)
}
