package jwt

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the signature algorithm of one key domain.
type SigningMethod string

const (
	// MethodEd25519 signs with EdDSA over Ed25519.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with HMAC-SHA256.
	MethodHS256 SigningMethod = "hs256"
)

// Kind names a key domain.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
	KindID      Kind = "id"
)

// ErrTokenExpired is matched by errors.Is when a token failed on its exp claim.
var ErrTokenExpired = jwt.ErrTokenExpired

// ErrWrongKind is returned when a token of one domain is presented to another.
var ErrWrongKind = errors.New("token kind mismatch")

// KeyConfig configures one key domain. Each domain signs with its own key and
// audience so compromise of one does not affect the others.
type KeyConfig struct {
	TTL           time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Audience      string
	KeyID         string
	VerifyKeys    map[string][]byte
}

// Config configures a Manager.
type Config struct {
	Issuer       string
	Leeway       time.Duration
	RequireIAT   bool
	MaxFutureIAT time.Duration
	Now          func() time.Time

	Access  KeyConfig
	Refresh KeyConfig
	ID      KeyConfig
}

// Claims is the payload shared by the three token kinds.
type Claims struct {
	UID       string `json:"uid"`
	DeviceID  string `json:"did"`
	SessionID string `json:"sid,omitempty"`
	SetID     string `json:"set,omitempty"`
	Kind      Kind   `json:"knd"`
	Email     string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Manager signs and verifies tokens for the three key domains.
type Manager struct {
	issuer       string
	leeway       time.Duration
	requireIAT   bool
	maxFutureIAT time.Duration
	now          func() time.Time
	domains      map[Kind]KeyConfig
}

// NewManager validates every domain and rejects shared HMAC secrets between
// domains.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	domains := map[Kind]KeyConfig{
		KindAccess:  cfg.Access,
		KindRefresh: cfg.Refresh,
		KindID:      cfg.ID,
	}
	for kind, kc := range domains {
		kc.KeyID = strings.TrimSpace(kc.KeyID)
		if err := validateKey(kc); err != nil {
			return nil, fmt.Errorf("%s key domain: %w", kind, err)
		}
		domains[kind] = kc
	}
	if err := distinctSecrets(domains); err != nil {
		return nil, err
	}

	return &Manager{
		issuer:       cfg.Issuer,
		leeway:       cfg.Leeway,
		requireIAT:   cfg.RequireIAT,
		maxFutureIAT: cfg.MaxFutureIAT,
		now:          cfg.Now,
		domains:      domains,
	}, nil
}

func validateKey(kc KeyConfig) error {
	if kc.TTL <= 0 {
		return errors.New("invalid TTL configuration")
	}
	switch kc.SigningMethod {
	case MethodHS256:
		if len(kc.PrivateKey) == 0 {
			return errors.New("hs256 requires private key")
		}
	case MethodEd25519:
		if len(kc.PrivateKey) > 0 {
			if _, err := parseEdPrivateKey(kc.PrivateKey); err != nil {
				return err
			}
		}
		if len(kc.PublicKey) > 0 {
			if _, err := parseEdPublicKey(kc.PublicKey); err != nil {
				return err
			}
		}
		if len(kc.VerifyKeys) == 0 && len(kc.PublicKey) == 0 {
			return errors.New("ed25519 requires public key or verify key set")
		}
		for kid, key := range kc.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return errors.New("verify key map contains empty kid")
			}
			if _, err := parseEdPublicKey(key); err != nil {
				return fmt.Errorf("invalid ed25519 verify key for kid %q: %w", kid, err)
			}
		}
	default:
		return errors.New("unsupported signing method")
	}
	if kc.KeyID != "" && len(kc.VerifyKeys) > 0 {
		if _, ok := kc.VerifyKeys[kc.KeyID]; !ok {
			return errors.New("KeyID is not present in VerifyKeys")
		}
	}
	return nil
}

func distinctSecrets(domains map[Kind]KeyConfig) error {
	kinds := []Kind{KindAccess, KindRefresh, KindID}
	for i := 0; i < len(kinds); i++ {
		for j := i + 1; j < len(kinds); j++ {
			a, b := domains[kinds[i]], domains[kinds[j]]
			if len(a.PrivateKey) > 0 && bytes.Equal(a.PrivateKey, b.PrivateKey) {
				return fmt.Errorf("%s and %s key domains share a signing key", kinds[i], kinds[j])
			}
		}
	}
	return nil
}

// TTL returns the lifetime configured for kind.
func (m *Manager) TTL(kind Kind) time.Duration {
	return m.domains[kind].TTL
}

// Sign issues a token of kind for claims. Kind, issuer, audience, iat and exp
// are set here; callers provide the subject fields and the token id.
func (m *Manager) Sign(kind Kind, claims Claims) (string, time.Time, error) {
	kc, ok := m.domains[kind]
	if !ok {
		return "", time.Time{}, ErrWrongKind
	}
	now := m.now()
	expires := now.Add(kc.TTL)

	claims.Kind = kind
	claims.Issuer = m.issuer
	claims.Subject = claims.UID
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(expires)
	if kc.Audience != "" {
		claims.Audience = jwt.ClaimStrings{kc.Audience}
	}

	token := jwt.NewWithClaims(method(kc), claims)
	if kc.KeyID != "" {
		token.Header["kid"] = kc.KeyID
	}
	signKey, err := signKey(kc)
	if err != nil {
		return "", time.Time{}, err
	}
	signed, err := token.SignedString(signKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// Parse verifies tokenStr against the key domain of kind, including issuer and
// audience, and rejects tokens minted for another kind.
func (m *Manager) Parse(kind Kind, tokenStr string) (*Claims, error) {
	kc, ok := m.domains[kind]
	if !ok {
		return nil, ErrWrongKind
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{method(kc).Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	}
	if m.leeway > 0 {
		options = append(options, jwt.WithLeeway(m.leeway))
	}
	if m.requireIAT {
		options = append(options, jwt.WithIssuedAt())
	}
	if m.issuer != "" {
		options = append(options, jwt.WithIssuer(m.issuer))
	}
	if kc.Audience != "" {
		options = append(options, jwt.WithAudience(kc.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != method(kc).Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}

		if len(kc.VerifyKeys) > 0 {
			kid, _ := t.Header["kid"].(string)
			if kid == "" {
				return nil, errors.New("missing kid")
			}
			key, ok := kc.VerifyKeys[kid]
			if !ok {
				return nil, errors.New("unknown kid")
			}
			return keyBytesToVerifyKey(kc, key)
		}

		if kc.KeyID != "" {
			kid, _ := t.Header["kid"].(string)
			if kid == "" {
				return nil, errors.New("missing kid")
			}
			if kid != kc.KeyID {
				return nil, errors.New("unknown kid")
			}
		}

		return verifyKey(kc)
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.Kind != kind {
		return nil, ErrWrongKind
	}
	if claims.ID == "" || claims.UID == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.IssuedAt != nil && m.maxFutureIAT > 0 {
		if claims.IssuedAt.Time.After(m.now().Add(m.maxFutureIAT)) {
			return nil, errors.New("token iat too far in the future")
		}
	}

	return claims, nil
}

func method(kc KeyConfig) jwt.SigningMethod {
	switch kc.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func signKey(kc KeyConfig) (interface{}, error) {
	switch kc.SigningMethod {
	case MethodHS256:
		return kc.PrivateKey, nil
	default:
		return parseEdPrivateKey(kc.PrivateKey)
	}
}

func verifyKey(kc KeyConfig) (interface{}, error) {
	switch kc.SigningMethod {
	case MethodHS256:
		return kc.PrivateKey, nil
	default:
		return parseEdPublicKey(kc.PublicKey)
	}
}

func keyBytesToVerifyKey(kc KeyConfig, key []byte) (interface{}, error) {
	switch kc.SigningMethod {
	case MethodHS256:
		return key, nil
	default:
		return parseEdPublicKey(key)
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
