package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jwalitptl/scheduler-api/internal/model"
)

var ErrInvalidToken = errors.New("invalid token")

const issuer = "scheduler-api"

type JWTService interface {
	GenerateAccessToken(therapist *model.Therapist) (string, error)
	GenerateRefreshToken(therapist *model.Therapist) (string, error)
	ValidateToken(token string) (*model.TokenClaims, error)
	ValidateRefreshToken(token string) (*model.TokenClaims, error)
}

type Config struct {
	Secret             string        `mapstructure:"secret"`
	RefreshSecret      string        `mapstructure:"refresh_secret" split_words:"true"`
	AccessTokenExpiry  time.Duration `mapstructure:"access_token_expiry" split_words:"true"`
	RefreshTokenExpiry time.Duration `mapstructure:"refresh_token_expiry" split_words:"true"`
}

type jwtService struct {
	cfg Config
	now func() time.Time
}

func NewJWTService(cfg Config) JWTService {
	if cfg.AccessTokenExpiry <= 0 {
		cfg.AccessTokenExpiry = 24 * time.Hour
	}
	if cfg.RefreshTokenExpiry <= 0 {
		cfg.RefreshTokenExpiry = 7 * 24 * time.Hour
	}
	return &jwtService{cfg: cfg, now: time.Now}
}

func (s *jwtService) GenerateAccessToken(therapist *model.Therapist) (string, error) {
	return s.sign(therapist, s.cfg.Secret, s.cfg.AccessTokenExpiry)
}

func (s *jwtService) GenerateRefreshToken(therapist *model.Therapist) (string, error) {
	return s.sign(therapist, s.cfg.RefreshSecret, s.cfg.RefreshTokenExpiry)
}

func (s *jwtService) sign(therapist *model.Therapist, secret string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := model.TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			Subject:   strconv.FormatInt(therapist.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		TherapistID: therapist.ID,
		Phone:       therapist.Phone,
		Role:        therapist.Role,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (s *jwtService) ValidateToken(token string) (*model.TokenClaims, error) {
	return s.parse(token, s.cfg.Secret)
}

func (s *jwtService) ValidateRefreshToken(token string) (*model.TokenClaims, error) {
	return s.parse(token, s.cfg.RefreshSecret)
}

func (s *jwtService) parse(token, secret string) (*model.TokenClaims, error) {
	claims := &model.TokenClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.TherapistID == 0 {
		return nil, fmt.Errorf("%w: missing therapist id", ErrInvalidToken)
	}
	return claims, nil
}
