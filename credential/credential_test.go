package credential

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/authgate/jwt"
	"github.com/MrEthical07/authgate/store"
	"github.com/MrEthical07/authgate/store/memory"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestManager(t *testing.T) (*Manager, *memory.Store, *clock) {
	t.Helper()
	clk := &clock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	signer, err := jwt.NewManager(jwt.Config{
		Issuer:  "shop",
		Now:     clk.now,
		Access:  jwt.KeyConfig{TTL: 15 * time.Minute, SigningMethod: jwt.MethodHS256, PrivateKey: []byte("access-key-access-key-access-key"), Audience: "api"},
		Refresh: jwt.KeyConfig{TTL: 24 * time.Hour, SigningMethod: jwt.MethodHS256, PrivateKey: []byte("refresh-key-refresh-key-refresh"), Audience: "refresh"},
		ID:      jwt.KeyConfig{TTL: 15 * time.Minute, SigningMethod: jwt.MethodHS256, PrivateKey: []byte("identity-key-identity-key-ident"), Audience: "client"},
	})
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	st := memory.New()
	return NewManager(st.Credentials(), signer, 3, clk.now), st, clk
}

func TestIssueValidateRoundTrip(t *testing.T) {
	m, st, _ := newTestManager(t)
	ctx := context.Background()

	out, err := m.Issue(ctx, Subject{UserID: "u1", Email: "u1@example.com"}, "dev1", "sess1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	rec, claims, err := m.Validate(ctx, out.AccessToken, jwt.KindAccess)
	if err != nil {
		t.Fatalf("Validate access: %v", err)
	}
	if rec.LastUsedAt == nil || claims.DeviceID != "dev1" || claims.SessionID != "sess1" || rec.SetID != out.SetID {
		t.Fatalf("unexpected record %+v claims %+v", rec, claims)
	}
	if _, _, err := m.Validate(ctx, out.RefreshToken, jwt.KindRefresh); err != nil {
		t.Fatalf("Validate refresh: %v", err)
	}
	if _, claims, err := m.Validate(ctx, out.IDToken, jwt.KindID); err != nil || claims.Email != "u1@example.com" {
		t.Fatalf("Validate id: %v %+v", err, claims)
	}

	// The refresh token is not an access token.
	if _, _, err := m.Validate(ctx, out.RefreshToken, jwt.KindAccess); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}

	all, _ := st.Credentials().List(ctx, "u1")
	if len(all) != 3 {
		t.Fatalf("expected one record per kind, got %d", len(all))
	}
	for _, c := range all {
		if c.TokenHash == out.AccessToken || c.TokenHash == out.RefreshToken || c.TokenHash == out.IDToken {
			t.Fatal("token stored in plaintext")
		}
	}
}

func TestValidateExpiry(t *testing.T) {
	m, _, clk := newTestManager(t)
	ctx := context.Background()
	out, _ := m.Issue(ctx, Subject{UserID: "u1"}, "dev1", "s1")

	clk.advance(15 * time.Minute)
	_, _, err := m.Validate(ctx, out.AccessToken, jwt.KindAccess)
	if !errors.Is(err, ErrTokenExpired) || !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected expired (and invalid), got %v", err)
	}
	if _, _, err := m.Validate(ctx, out.RefreshToken, jwt.KindRefresh); err != nil {
		t.Fatalf("refresh should still be valid: %v", err)
	}
}

func TestRevocationIsMonotonic(t *testing.T) {
	m, st, clk := newTestManager(t)
	ctx := context.Background()
	out, _ := m.Issue(ctx, Subject{UserID: "u1"}, "dev1", "s1")

	if _, err := m.RevokeToken(ctx, out.AccessToken, "logout"); err != nil {
		t.Fatalf("RevokeToken: %v", err)
	}
	first, _ := st.Credentials().Get(ctx, "u1", out.SetID)

	clk.advance(time.Minute)
	n, err := m.RevokeSet(ctx, "u1", out.SetID, "again")
	if err != nil || n != 0 {
		t.Fatalf("second revoke: n=%d err=%v", n, err)
	}
	second, _ := st.Credentials().Get(ctx, "u1", out.SetID)
	if !second.Revoked || second.RevokedReason != "logout" || !second.RevokedAt.Equal(*first.RevokedAt) {
		t.Fatalf("revocation changed on second call: %+v", second)
	}

	_, _, err = m.Validate(ctx, out.AccessToken, jwt.KindAccess)
	if !errors.Is(err, ErrTokenRevoked) || !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected revoked, got %v", err)
	}
	if _, _, err := m.Validate(ctx, out.RefreshToken, jwt.KindRefresh); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("logout must revoke the whole set, got %v", err)
	}
}

func TestIssueEvictsOldestSet(t *testing.T) {
	m, st, clk := newTestManager(t)
	ctx := context.Background()

	var sets []Issued
	for i := 0; i < 3; i++ {
		out, err := m.Issue(ctx, Subject{UserID: "u1"}, "dev", "s")
		if err != nil {
			t.Fatalf("Issue %d: %v", i, err)
		}
		if len(out.Evicted) != 0 {
			t.Fatalf("unexpected eviction on set %d", i)
		}
		sets = append(sets, out)
		clk.advance(time.Second)
	}

	fourth, err := m.Issue(ctx, Subject{UserID: "u1"}, "dev", "s")
	if err != nil {
		t.Fatalf("Issue 4: %v", err)
	}
	if len(fourth.Evicted) != 1 || fourth.Evicted[0].SetID != sets[0].SetID {
		t.Fatalf("expected oldest set evicted, got %v", fourth.Evicted)
	}

	oldest, _ := st.Credentials().Get(ctx, "u1", sets[0].SetID)
	if !oldest.Revoked || oldest.RevokedReason != ReasonSessionLimitExceeded {
		t.Fatalf("unexpected oldest record %+v", oldest)
	}
	if _, _, err := m.Validate(ctx, sets[0].AccessToken, jwt.KindAccess); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("evicted access token must be revoked, got %v", err)
	}
	for _, s := range append(sets[1:], fourth) {
		if _, _, err := m.Validate(ctx, s.AccessToken, jwt.KindAccess); err != nil {
			t.Fatalf("surviving set %s: %v", s.SetID, err)
		}
	}

	all, err := st.Credentials().List(ctx, "u1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if active := activeSets(all, clk.now()); len(active) != 3 {
		t.Fatalf("expected 3 active sets, got %d", len(active))
	}
}

func TestRefreshKeepsRefreshToken(t *testing.T) {
	m, _, clk := newTestManager(t)
	ctx := context.Background()
	out, _ := m.Issue(ctx, Subject{UserID: "u1"}, "dev1", "s1")

	clk.advance(time.Minute)
	r, err := m.Refresh(ctx, out.RefreshToken, "dev1")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if r.AccessToken == out.AccessToken || r.SetID != out.SetID || r.SessionID != "s1" {
		t.Fatalf("unexpected refresh result %+v", r)
	}
	if _, _, err := m.Validate(ctx, r.AccessToken, jwt.KindAccess); err != nil {
		t.Fatalf("new access token: %v", err)
	}
	if _, err := m.Refresh(ctx, out.RefreshToken, ""); err != nil {
		t.Fatalf("refresh token must remain usable: %v", err)
	}

	// The new access token belongs to the set and dies with it.
	if _, err := m.RevokeSet(ctx, "u1", out.SetID, "logout"); err != nil {
		t.Fatalf("RevokeSet: %v", err)
	}
	if _, _, err := m.Validate(ctx, r.AccessToken, jwt.KindAccess); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected revoked, got %v", err)
	}
}

func TestRefreshDeviceBinding(t *testing.T) {
	m, st, _ := newTestManager(t)
	ctx := context.Background()
	out, _ := m.Issue(ctx, Subject{UserID: "u1"}, "dev1", "s1")

	if _, err := m.Refresh(ctx, out.RefreshToken, "dev2"); !errors.Is(err, ErrTokenMismatch) {
		t.Fatalf("expected mismatch for foreign request device, got %v", err)
	}

	rec, _ := st.Credentials().Get(ctx, "u1", out.SetID)
	rec.DeviceID = "dev9"
	_ = st.Credentials().Put(ctx, "u1", rec)
	r, err := m.Refresh(ctx, out.RefreshToken, "")
	if !errors.Is(err, ErrTokenMismatch) {
		t.Fatalf("expected mismatch for stored binding, got %v", err)
	}
	if r.UserID != "u1" || r.DeviceID != "dev9" {
		t.Fatalf("mismatch result should identify the binding: %+v", r)
	}
}

func TestPruneAndRevokeDevice(t *testing.T) {
	m, st, clk := newTestManager(t)
	ctx := context.Background()
	_, _ = m.Issue(ctx, Subject{UserID: "u1"}, "dev1", "s1")
	clk.advance(16 * time.Minute)
	second, _ := m.Issue(ctx, Subject{UserID: "u1"}, "dev2", "s2")

	n, err := m.Prune(ctx, "u1")
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 0 {
		t.Fatalf("Issue already pruned expired records, got %d more", n)
	}
	all, _ := st.Credentials().List(ctx, "u1")
	if len(all) != 4 {
		t.Fatalf("expected first refresh + 3 new records, got %d", len(all))
	}

	revoked, err := m.RevokeDevice(ctx, "u1", "dev2", "device_removed")
	if err != nil || revoked != 3 {
		t.Fatalf("RevokeDevice: n=%d err=%v", revoked, err)
	}
	if _, _, err := m.Validate(ctx, second.AccessToken, jwt.KindAccess); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected revoked, got %v", err)
	}

	clk.advance(48 * time.Hour)
	n, _ = m.Prune(ctx, "u1")
	if n != 4 {
		t.Fatalf("expected 4 pruned, got %d", n)
	}
	if n, _ := m.Prune(ctx, "u1"); n != 0 {
		t.Fatalf("prune must be idempotent, got %d", n)
	}
}

func TestStoreFailureSurfaces(t *testing.T) {
	m, st, _ := newTestManager(t)
	st.SetFailure(errors.New("timeout"))
	if _, err := m.Issue(context.Background(), Subject{UserID: "u1"}, "d", "s"); !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
