package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func hsConfig() Config {
	return Config{
		Issuer:  "shop",
		Access:  KeyConfig{TTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("access-secret-access-secret"), Audience: "api"},
		Refresh: KeyConfig{TTL: time.Hour, SigningMethod: MethodHS256, PrivateKey: []byte("refresh-secret-refresh-secret"), Audience: "refresh"},
		ID:      KeyConfig{TTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("identity-secret-identity-secret"), Audience: "client"},
	}
}

func TestSignAndParseEachDomain(t *testing.T) {
	m, err := NewManager(hsConfig())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	for _, kind := range []Kind{KindAccess, KindRefresh, KindID} {
		token, exp, err := m.Sign(kind, Claims{UID: "u1", DeviceID: "d1", RegisteredClaims: gjwt.RegisteredClaims{ID: "jti-" + string(kind)}})
		if err != nil {
			t.Fatalf("%s: sign: %v", kind, err)
		}
		if exp.Before(time.Now()) {
			t.Fatalf("%s: expiry in the past", kind)
		}
		claims, err := m.Parse(kind, token)
		if err != nil {
			t.Fatalf("%s: parse: %v", kind, err)
		}
		if claims.Kind != kind || claims.UID != "u1" || claims.DeviceID != "d1" || claims.Issuer != "shop" {
			t.Fatalf("%s: unexpected claims %+v", kind, claims)
		}
	}
}

func TestParseRejectsCrossDomainTokens(t *testing.T) {
	m, err := NewManager(hsConfig())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	refresh, _, err := m.Sign(KindRefresh, Claims{UID: "u1", RegisteredClaims: gjwt.RegisteredClaims{ID: "r1"}})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := m.Parse(KindAccess, refresh); err == nil {
		t.Fatal("refresh token must not parse in the access domain")
	}
	if _, err := m.Parse(KindID, refresh); err == nil {
		t.Fatal("refresh token must not parse in the identity domain")
	}
}

func TestNewManagerRejectsSharedSecret(t *testing.T) {
	cfg := hsConfig()
	cfg.Refresh.PrivateKey = cfg.Access.PrivateKey
	if _, err := NewManager(cfg); err == nil {
		t.Fatal("expected shared key domains to be rejected")
	}
}

func TestParseRejectsWrongAlgorithm(t *testing.T) {
	pub, _ := newEdKeys(t)
	cfg := hsConfig()
	cfg.Access = KeyConfig{TTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub}
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := Claims{UID: "u1", Kind: KindAccess, RegisteredClaims: gjwt.RegisteredClaims{ID: "a1", ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute))}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims)
	token, err := tok.SignedString([]byte("secret-secret-secret-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := m.Parse(KindAccess, token); err == nil {
		t.Fatal("expected wrong algorithm to be rejected")
	}
}

func TestParseIssuerAudienceAndLeeway(t *testing.T) {
	pub, priv := newEdKeys(t)
	cfg := hsConfig()
	cfg.Leeway = 30 * time.Second
	cfg.Access = KeyConfig{TTL: time.Minute, SigningMethod: MethodEd25519, PrivateKey: priv, PublicKey: pub, Audience: "api"}
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	sign := func(issuer, audience string, exp time.Time) string {
		c := Claims{UID: "u1", Kind: KindAccess, RegisteredClaims: gjwt.RegisteredClaims{
			ID:        "a1",
			Issuer:    issuer,
			Audience:  gjwt.ClaimStrings{audience},
			ExpiresAt: gjwt.NewNumericDate(exp),
			IssuedAt:  gjwt.NewNumericDate(time.Now().Add(-time.Minute)),
		}}
		s, _ := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, c).SignedString(priv)
		return s
	}

	if _, err := m.Parse(KindAccess, sign("other", "api", time.Now().Add(time.Minute))); err == nil {
		t.Fatal("expected wrong issuer to fail")
	}
	if _, err := m.Parse(KindAccess, sign("shop", "other-api", time.Now().Add(time.Minute))); err == nil {
		t.Fatal("expected wrong audience to fail")
	}
	if _, err := m.Parse(KindAccess, sign("shop", "api", time.Now().Add(-15*time.Second))); err != nil {
		t.Fatalf("expected token within leeway to pass: %v", err)
	}
	_, err = m.Parse(KindAccess, sign("shop", "api", time.Now().Add(-2*time.Minute)))
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestParseUsesConfiguredClock(t *testing.T) {
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := hsConfig()
	cfg.Now = func() time.Time { return now }
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	token, _, _ := m.Sign(KindAccess, Claims{UID: "u1", RegisteredClaims: gjwt.RegisteredClaims{ID: "a1"}})

	if _, err := m.Parse(KindAccess, token); err != nil {
		t.Fatalf("expected valid at issue time: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := m.Parse(KindAccess, token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected expiry under the injected clock, got %v", err)
	}
}

func TestParseUnknownKidFails(t *testing.T) {
	pub1, priv1 := newEdKeys(t)
	cfg := hsConfig()
	cfg.Access = KeyConfig{
		TTL:           time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv1,
		PublicKey:     pub1,
		KeyID:         "k1",
		VerifyKeys:    map[string][]byte{"k1": pub1},
	}
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := Claims{UID: "u1", Kind: KindAccess, RegisteredClaims: gjwt.RegisteredClaims{ID: "a1", ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute))}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims)
	tok.Header["kid"] = "k2"
	token, err := tok.SignedString(priv1)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := m.Parse(KindAccess, token); err == nil {
		t.Fatal("expected unknown kid failure")
	}

	good, _, err := m.Sign(KindAccess, Claims{UID: "u1", RegisteredClaims: gjwt.RegisteredClaims{ID: "a2"}})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := m.Parse(KindAccess, good); err != nil {
		t.Fatalf("expected known kid token to pass: %v", err)
	}
}
