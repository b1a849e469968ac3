package jwt

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the algorithm tokens are signed with.
//
// SigningMethod is fixed at construction time and applies to both token kinds.
type SigningMethod string

const (
	// MethodHS256 signs with a shared HMAC secret.
	MethodHS256 SigningMethod = "hs256"
	// MethodES256 signs with an ECDSA P-256 private key.
	MethodES256 SigningMethod = "es256"
)

// Kind distinguishes short-lived access tokens from long-lived refresh
// tokens. The two kinds share one claim schema and differ only in lifetime.
type Kind string

const (
	// KindAccess is an access token, valid for Config.AccessTTL.
	KindAccess Kind = "access"
	// KindRefresh is a refresh token, valid for Config.RefreshTTL.
	KindRefresh Kind = "refresh"
)

// ErrTokenInvalid is returned by Validate for any token that cannot be
// accepted: bad signature, malformed payload, expired, or wrong algorithm.
// Callers never learn which; the distinction is deliberately collapsed.
var ErrTokenInvalid = errors.New("jwt: token invalid")

// Config defines signing material and lifetimes for a Processor.
//
// Config instances are intended to be configured during initialization and
// then treated as immutable.
type Config struct {
	SigningMethod SigningMethod
	// Secret is the HMAC key for MethodHS256.
	Secret []byte
	// PrivateKeyPEM and PublicKeyPEM hold PEM-encoded ECDSA keys for
	// MethodES256. A verify-only deployment may omit the private key.
	PrivateKeyPEM []byte
	PublicKeyPEM  []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// Claims is the payload carried by every issued token.
type Claims struct {
	ID          string   `json:"id"`
	Username    string   `json:"username"`
	Permissions []string `json:"permissions"`
	State       int      `json:"state"`
	jwt.RegisteredClaims
}

// Processor creates and validates tokens. It is safe for concurrent use.
type Processor struct {
	config    Config
	signKey   any
	verifyKey any
	now       func() time.Time
}

// NewProcessor validates cfg and parses its key material once up front so
// Create and Validate never fail on configuration.
func NewProcessor(cfg Config) (*Processor, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.RefreshTTL < cfg.AccessTTL {
		return nil, errors.New("refresh TTL shorter than access TTL")
	}

	p := &Processor{config: cfg, now: time.Now}
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.Secret) == 0 {
			return nil, errors.New("hs256 requires a secret")
		}
		p.signKey = cfg.Secret
		p.verifyKey = cfg.Secret
	case MethodES256:
		if len(cfg.PublicKeyPEM) == 0 {
			return nil, errors.New("es256 requires a public key")
		}
		pub, err := parseECPublicKey(cfg.PublicKeyPEM)
		if err != nil {
			return nil, err
		}
		p.verifyKey = pub
		if len(cfg.PrivateKeyPEM) > 0 {
			priv, err := parseECPrivateKey(cfg.PrivateKeyPEM)
			if err != nil {
				return nil, err
			}
			p.signKey = priv
		}
	default:
		return nil, errors.New("unsupported signing method")
	}
	return p, nil
}

// Create issues a signed token of the given kind. The expiry is the only
// field that depends on kind; everything else is the caller's snapshot of
// the account at issuance time.
func (p *Processor) Create(id, username string, permissions []string, state int, kind Kind) (string, error) {
	if p.signKey == nil {
		return "", errors.New("processor is verify-only")
	}

	ttl := p.config.AccessTTL
	if kind == KindRefresh {
		ttl = p.config.RefreshTTL
	}
	if permissions == nil {
		permissions = []string{}
	}

	claims := Claims{
		ID:          id,
		Username:    username,
		Permissions: permissions,
		State:       state,
		RegisteredClaims: jwt.RegisteredClaims{
			// the jti keeps back-to-back issuances distinct even within one
			// second, so rotation never blacklists its own replacement
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(p.now()),
			ExpiresAt: jwt.NewNumericDate(p.now().Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(p.method(), claims)
	return token.SignedString(p.signKey)
}

// Validate verifies the signature and expiry of tok and returns its claims.
// Every failure mode surfaces as ErrTokenInvalid.
func (p *Processor) Validate(tok string) (*Claims, error) {
	if tok == "" {
		return nil, ErrTokenInvalid
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{p.method().Alg()}),
		jwt.WithExpirationRequired(),
	)
	parsed, err := parser.ParseWithClaims(tok, &Claims{}, func(t *jwt.Token) (any, error) {
		return p.verifyKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.ID == "" || claims.Username == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// IsValid reports whether tok would pass Validate. It never panics; empty
// and malformed input are simply false.
func (p *Processor) IsValid(tok string) bool {
	_, err := p.Validate(tok)
	return err == nil
}

func (p *Processor) method() jwt.SigningMethod {
	if p.config.SigningMethod == MethodES256 {
		return jwt.SigningMethodES256
	}
	return jwt.SigningMethodHS256
}

func parseECPrivateKey(pem []byte) (*ecdsa.PrivateKey, error) {
	key, err := jwt.ParseECPrivateKeyFromPEM(pem)
	if err != nil {
		return nil, errors.New("invalid es256 private key")
	}
	return key, nil
}

func parseECPublicKey(pem []byte) (*ecdsa.PublicKey, error) {
	key, err := jwt.ParseECPublicKeyFromPEM(pem)
	if err != nil {
		return nil, errors.New("invalid es256 public key")
	}
	return key, nil
}
