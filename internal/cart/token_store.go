package cart

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type tokenLine struct {
	ID        int64      `json:"id"`
	ProductID uuid.UUID  `json:"p"`
	VariantID *uuid.UUID `json:"v,omitempty"`
	Quantity  int        `json:"q"`
}

type tokenClaims struct {
	Lines  []tokenLine `json:"lines"`
	NextID int64       `json:"nid"`
	jwt.RegisteredClaims
}

// TokenStore keeps anonymous carts in an HS256-signed token held by the client.
// An unreadable or expired token decodes to an empty cart.
type TokenStore struct {
	cfg  config.CartTokenConfig
	logg *logger.Logger
	now  func() time.Time
}

func NewTokenStore(cfg config.CartTokenConfig, logg *logger.Logger) (*TokenStore, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, fmt.Errorf("cart token secret required")
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("cart token ttl must be positive")
	}
	return &TokenStore{cfg: cfg, logg: logg, now: time.Now}, nil
}

func (s *TokenStore) Load(ctx context.Context, owner Owner) (*Cart, error) {
	return &Cart{Lines: s.decode(ctx, owner.Token), Token: owner.Token}, nil
}

func (s *TokenStore) Mutate(ctx context.Context, owner Owner, fn func(*Lines) error) (*Cart, error) {
	lines := s.decode(ctx, owner.Token)
	if err := fn(&lines); err != nil {
		return nil, err
	}
	token, err := s.Encode(lines)
	if err != nil {
		return nil, err
	}
	return &Cart{Lines: lines, Token: token}, nil
}

func (s *TokenStore) Clear(ctx context.Context, _ Owner) (*Cart, error) {
	token, err := s.Encode(Lines{})
	if err != nil {
		return nil, err
	}
	return &Cart{Token: token}, nil
}

// Encode signs lines into a fresh token.
func (s *TokenStore) Encode(lines Lines) (string, error) {
	now := s.now().UTC()
	claims := tokenClaims{
		Lines:  make([]tokenLine, 0, len(lines.Items)),
		NextID: lines.NextID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TTL)),
		},
	}
	for _, line := range lines.Items {
		claims.Lines = append(claims.Lines, tokenLine{
			ID:        line.ID,
			ProductID: line.ProductID,
			VariantID: line.VariantID,
			Quantity:  line.Quantity,
		})
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign cart token: %w", err)
	}
	return signed, nil
}

// Decode parses a token, reporting why it was rejected.
func (s *TokenStore) Decode(raw string) (Lines, error) {
	claims := &tokenClaims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.cfg.Issuer))
	}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.Secret), nil
	}, opts...)
	if err != nil {
		return Lines{}, err
	}

	lines := Lines{NextID: claims.NextID, Items: make([]Line, 0, len(claims.Lines))}
	for _, tl := range claims.Lines {
		if tl.Quantity <= 0 || tl.ProductID == uuid.Nil {
			return Lines{}, fmt.Errorf("cart token line %d malformed", tl.ID)
		}
		lines.Items = append(lines.Items, Line{
			ID:        tl.ID,
			ProductID: tl.ProductID,
			VariantID: tl.VariantID,
			Quantity:  tl.Quantity,
		})
		if tl.ID > lines.NextID {
			lines.NextID = tl.ID
		}
	}
	return lines, nil
}

func (s *TokenStore) decode(ctx context.Context, raw string) Lines {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Lines{}
	}
	lines, err := s.Decode(raw)
	if err != nil {
		if s.logg != nil {
			logCtx := s.logg.WithField(ctx, "reason", err.Error())
			s.logg.Warn(logCtx, "discarding unreadable cart token")
		}
		return Lines{}
	}
	return lines
}
