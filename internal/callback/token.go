// Package callback authenticates scoring results delivered by the engine.
//
// The engine posts a compact HS256 JWT whose claims carry the result. A token
// is accepted once: its jti is claimed in a ReplayGuard before the result is
// handed to the ingestor.
package callback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ahrav/go-assess/internal/domain"
)

var (
	// ErrUnauthorized is returned for tokens that fail signature or claim checks.
	ErrUnauthorized = errors.New("callback token rejected")

	// ErrReplayed is returned when a token id has already been used.
	ErrReplayed = errors.New("callback token already used")
)

// DefaultIssuer identifies tokens minted by the scoring engine.
const DefaultIssuer = "scoring-engine"

// Claims is the callback token payload.
type Claims struct {
	EvaluationID string  `json:"evaluation_id"`
	Score        float64 `json:"score"`
	ArtifactRef  string  `json:"artifact_ref"`
	jwt.RegisteredClaims
}

// Result returns the scoring result carried by the claims.
func (c *Claims) Result() domain.ScoringResult {
	return domain.ScoringResult{EvaluationID: c.EvaluationID, Score: c.Score, ArtifactRef: c.ArtifactRef}
}

// Signer mints callback tokens. The engine holds the same secret; the signer
// exists for tooling and tests.
type Signer struct {
	secret SecretSource
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner creates a Signer.
func NewSigner(secret SecretSource, issuer string, ttl time.Duration) *Signer {
	if issuer == "" {
		issuer = DefaultIssuer
	}
	return &Signer{secret: secret, issuer: issuer, ttl: ttl, now: time.Now}
}

// Sign returns a token carrying result.
func (s *Signer) Sign(result domain.ScoringResult) (string, error) {
	key := s.secret.Secret()
	if len(key) == 0 {
		return "", ErrEmptySecret
	}
	now := s.now()
	claims := Claims{
		EvaluationID: result.EvaluationID,
		Score:        result.Score,
		ArtifactRef:  result.ArtifactRef,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}

// VerifierConfig tunes token verification.
type VerifierConfig struct {
	Issuer string
	// Leeway tolerates clock skew on exp and iat.
	Leeway time.Duration
	// ReplayTTL is how long a token id stays claimed. It should exceed the
	// longest token lifetime the engine issues.
	ReplayTTL time.Duration
}

// Verifier checks callback tokens.
type Verifier struct {
	cfg    VerifierConfig
	secret SecretSource
	guard  ReplayGuard
	logger *slog.Logger
}

// NewVerifier creates a Verifier. A nil guard falls back to process memory.
func NewVerifier(cfg VerifierConfig, secret SecretSource, guard ReplayGuard, logger *slog.Logger) *Verifier {
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	if cfg.ReplayTTL <= 0 {
		cfg.ReplayTTL = 24 * time.Hour
	}
	if guard == nil {
		guard = NewMemoryReplayGuard()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{cfg: cfg, secret: secret, guard: guard, logger: logger.With("component", "callback_verifier")}
}

// Verify authenticates token and claims its id. The returned claims are
// trusted when err is nil. On ErrReplayed they identify the duplicate.
func (v *Verifier) Verify(ctx context.Context, token string) (*Claims, error) {
	key := v.secret.Secret()
	if len(key) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, ErrEmptySecret)
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.cfg.Issuer),
		jwt.WithLeeway(v.cfg.Leeway),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("%w: missing jti", ErrUnauthorized)
	}
	if claims.EvaluationID == "" {
		return nil, fmt.Errorf("%w: missing evaluation_id", ErrUnauthorized)
	}

	first, err := v.guard.Claim(ctx, claims.ID, v.cfg.ReplayTTL)
	if err != nil {
		return nil, err
	}
	if !first {
		v.logger.InfoContext(ctx, "replayed callback token", "jti", claims.ID, "evaluation_id", claims.EvaluationID)
		return claims, ErrReplayed
	}
	return claims, nil
}

// Release forgets a claimed token so a failed delivery can be retried.
func (v *Verifier) Release(ctx context.Context, claims *Claims) {
	if err := v.guard.Release(ctx, claims.ID); err != nil {
		v.logger.WarnContext(ctx, "failed to release callback token", "jti", claims.ID, "error", err)
	}
}
