package passport

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultSigningSecret is the development secret used when none is configured.
const DefaultSigningSecret = "ai-code-review-secret-key-2024"

// MinSigningKeyLength is the HS256 key size in bytes.
const MinSigningKeyLength = 32

// Identity is what a verified token says about its bearer.
type Identity struct {
	AccountID    int64
	Username     string
	Capabilities []string
	IssuedAt     time.Time
	ExpiresAt    time.Time
}

// HasCapability reports whether the identity carries c.
func (i Identity) HasCapability(c string) bool {
	return HasCapability(i.Capabilities, c)
}

// TokenVerifier is the part of the codec the gates need.
type TokenVerifier interface {
	Verify(token string) (Identity, bool)
}

// TokenCodec mints and verifies HS256 identity tokens.
type TokenCodec struct {
	key    []byte
	ttl    time.Duration
	issuer string
	strict bool
	now    func() time.Time
	logger *slog.Logger
}

type CodecOption func(*TokenCodec)

// WithTokenTTL sets the lifetime used by Issue.
func WithTokenTTL(ttl time.Duration) CodecOption {
	return func(c *TokenCodec) { c.ttl = ttl }
}

// WithIssuer sets the iss claim on minted tokens and requires it on verify.
func WithIssuer(issuer string) CodecOption {
	return func(c *TokenCodec) { c.issuer = issuer }
}

// WithStrictKeyLength makes NewTokenCodec reject secrets shorter than
// MinSigningKeyLength instead of expanding them.
func WithStrictKeyLength() CodecOption {
	return func(c *TokenCodec) { c.strict = true }
}

func WithCodecClock(now func() time.Time) CodecOption {
	return func(c *TokenCodec) { c.now = now }
}

func WithCodecLogger(logger *slog.Logger) CodecOption {
	return func(c *TokenCodec) { c.logger = logger }
}

// NewTokenCodec builds a codec from a shared secret. An empty secret falls
// back to DefaultSigningSecret.
//
// Secrets shorter than MinSigningKeyLength are expanded with ExpandSigningKey
// unless WithStrictKeyLength is given, in which case ErrWeakKey is returned.
// Expansion keeps a misconfigured deployment running and compatible with
// tokens minted by earlier deployments using the same short secret, but the
// padding is public so the effective key strength is only that of the
// configured secret.
func NewTokenCodec(secret string, opts ...CodecOption) (*TokenCodec, error) {
	c := &TokenCodec{
		ttl:    DefaultTokenTTL,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if secret == "" {
		c.logger.Warn("no signing secret configured, using the development default")
		secret = DefaultSigningSecret
	}
	if len(secret) < MinSigningKeyLength {
		if c.strict {
			return nil, fmt.Errorf("%w: got %d bytes, need %d", ErrWeakKey, len(secret), MinSigningKeyLength)
		}
		c.logger.Warn("signing secret is shorter than recommended, expanding deterministically",
			"length", len(secret), "min", MinSigningKeyLength)
	}
	c.key = ExpandSigningKey([]byte(secret))
	return c, nil
}

// ExpandSigningKey pads secret to MinSigningKeyLength bytes; byte i of the
// padding is the digit '0'+(i%10). Longer secrets are returned unchanged.
func ExpandSigningKey(secret []byte) []byte {
	if len(secret) >= MinSigningKeyLength {
		return secret
	}
	out := make([]byte, MinSigningKeyLength)
	copy(out, secret)
	for i := len(secret); i < MinSigningKeyLength; i++ {
		out[i] = byte('0' + i%10)
	}
	return out
}

// TTL is the lifetime used by Issue.
func (c *TokenCodec) TTL() time.Duration { return c.ttl }

// Issue mints a token with the configured lifetime.
func (c *TokenCodec) Issue(accountID int64, username string, caps []string) (string, error) {
	return c.Mint(accountID, username, caps, c.ttl)
}

// Mint signs a token that expires ttl from now. A ttl of zero or less
// yields a token that is already expired.
func (c *TokenCodec) Mint(accountID int64, username string, caps []string, ttl time.Duration) (string, error) {
	now := c.now()
	if caps == nil {
		caps = []string{}
	}
	claims := jwt.MapClaims{
		"uid":   accountID,
		"uname": username,
		"roles": caps,
		"sub":   username,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}
	if c.issuer != "" {
		claims["iss"] = c.issuer
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// Verify reports the identity in token, or false for any defect: bad
// format, bad signature, wrong algorithm, expired, or malformed claims.
func (c *TokenCodec) Verify(token string) (Identity, bool) {
	id, err := c.Parse(token)
	if err != nil {
		return Identity{}, false
	}
	return id, true
}

// Parse is Verify with a reason: ErrTokenExpired for expired tokens and
// ErrInvalidToken (wrapping the cause) for everything else.
func (c *TokenCodec) Parse(tokenString string) (Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
		jwt.WithJSONNumber(),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return c.key, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrTokenExpired
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, fmt.Errorf("%w: invalid claims", ErrInvalidToken)
	}
	return identityFromClaims(claims)
}

func identityFromClaims(claims jwt.MapClaims) (Identity, error) {
	var id Identity

	uid, ok := claims["uid"].(json.Number)
	if !ok {
		return id, fmt.Errorf("%w: missing uid", ErrInvalidToken)
	}
	accountID, err := uid.Int64()
	if err != nil {
		return id, fmt.Errorf("%w: bad uid", ErrInvalidToken)
	}
	id.AccountID = accountID

	id.Username, ok = claims["uname"].(string)
	if !ok || id.Username == "" {
		return id, fmt.Errorf("%w: missing uname", ErrInvalidToken)
	}

	if rolesRaw, ok := claims["roles"].([]any); ok {
		id.Capabilities = make([]string, 0, len(rolesRaw))
		for _, r := range rolesRaw {
			if s, ok := r.(string); ok {
				id.Capabilities = append(id.Capabilities, s)
			}
		}
	}

	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		id.IssuedAt = iat.Time
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		id.ExpiresAt = exp.Time
	}
	return id, nil
}
