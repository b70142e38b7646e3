package authgate

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/MrEthical07/authgate/otp"
	"github.com/MrEthical07/authgate/store"
	"github.com/MrEthical07/authgate/store/memory"
)

const testPassword = "correct-password-123"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// plainHasher keeps tests fast; the argon2 hasher has its own tests.
type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) {
	return "plain$" + password, nil
}

func (plainHasher) Verify(password, encodedHash string) (bool, error) {
	if !strings.HasPrefix(encodedHash, "plain$") {
		return false, errors.New("unknown hash format")
	}
	return encodedHash == "plain$"+password, nil
}

type fakeUsers struct {
	mu    sync.Mutex
	users map[string]UserRecord
	fail  error
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: make(map[string]UserRecord)}
}

func (f *fakeUsers) add(u UserRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u.PasswordHash == "" {
		u.PasswordHash = "plain$" + testPassword
	}
	if u.Status == "" {
		u.Status = AccountActive
	}
	if u.Identifier == "" {
		u.Identifier = u.Email
	}
	f.users[u.UserID] = u
}

func (f *fakeUsers) GetUserByIdentifier(_ context.Context, identifier string) (UserRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return UserRecord{}, f.fail
	}
	for _, u := range f.users {
		if u.Identifier == identifier {
			return u, nil
		}
	}
	return UserRecord{}, ErrUserNotFound
}

func (f *fakeUsers) GetUserByID(_ context.Context, userID string) (UserRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return UserRecord{}, f.fail
	}
	u, ok := f.users[userID]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return u, nil
}

func (f *fakeUsers) UpdateAccountStatus(_ context.Context, userID string, status AccountStatus) (UserRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	u.Status = status
	f.users[userID] = u
	return u, nil
}

type sentCode struct {
	UserID  string
	Purpose string
	Method  otp.Method
	Code    string
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentCode
	err  error
}

func (s *recordingSender) Send(_ context.Context, user UserRecord, purpose string, method otp.Method, code string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return time.Time{}, s.err
	}
	s.sent = append(s.sent, sentCode{UserID: user.UserID, Purpose: purpose, Method: method, Code: code})
	return time.Time{}, nil
}

func (s *recordingSender) last(t *testing.T) sentCode {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		t.Fatalf("no code was sent")
	}
	return s.sent[len(s.sent)-1]
}

// testConfig uses HS256 keys and turns device verification off so plain
// logins complete without an OTP. Tests that need the gate turn it back on.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.Access.PrivateKey = []byte("access-secret-0123456789abcdefghij")
	cfg.JWT.Refresh.PrivateKey = []byte("refresh-secret-0123456789abcdefghi")
	cfg.JWT.ID.PrivateKey = []byte("id-secret-0123456789abcdefghijklmno")
	cfg.OTP.Key = []byte("otp-key-0123456789abcdef")
	cfg.Device.EnforceVerification = false
	cfg.Metrics.Enabled = true
	return cfg
}

type testEnv struct {
	engine *Engine
	store  *memory.Store
	users  *fakeUsers
	clock  *fakeClock
	sender *recordingSender
	audit  *collectSink
}

type collectSink struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (s *collectSink) Emit(_ context.Context, ev AuditEvent) error {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
	return nil
}

func (s *collectSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.EventType)
	}
	return out
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()

	env := &testEnv{
		store:  memory.New(),
		users:  newFakeUsers(),
		clock:  newFakeClock(),
		sender: &recordingSender{},
		audit:  &collectSink{},
	}
	env.users.add(UserRecord{UserID: "u1", Email: "alice@example.com", Phone: "+15550100", Role: "customer"})

	logger := log.New()
	logger.SetOutput(io.Discard)

	cfg.Audit.Enabled = true
	engine, err := New().
		WithConfig(cfg).
		WithStore(env.store).
		WithUserProvider(env.users).
		WithPasswordHasher(plainHasher{}).
		WithOTPSender(env.sender).
		WithAuditSink(env.audit).
		WithLogger(logger).
		WithClock(env.clock.Now).
		WithPermissions([]string{"orders:read", "orders:write", "reports:read"}).
		WithRoles(map[string][]string{
			"customer": {"orders:read"},
			"manager":  {"orders:*"},
			"admin":    {"*"},
		}).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)
	env.engine = engine
	return env
}

// deviceCtx returns a request context coming from one client device.
func deviceCtx(clientID string) context.Context {
	ctx := WithClientID(context.Background(), clientID)
	ctx = WithClientIP(ctx, "203.0.113.10")
	return WithUserAgent(ctx, "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_0) AppleWebKit/605.1.15 Version/17.0 Safari/605.1.15")
}

func (env *testEnv) login(t *testing.T, ctx context.Context) *LoginResult {
	t.Helper()
	res, err := env.engine.Login(ctx, LoginRequest{Identifier: "alice@example.com", Password: testPassword})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Outcome != OutcomeAuthenticated || res.Tokens == nil {
		t.Fatalf("expected authenticated login, got %+v", res)
	}
	return res
}

func (env *testEnv) eventNames(t *testing.T, userID string) []string {
	t.Helper()
	events, err := env.engine.SecurityEvents(context.Background(), userID)
	if err != nil {
		t.Fatalf("SecurityEvents: %v", err)
	}
	names := make([]string, 0, len(events))
	for _, ev := range events {
		names = append(names, ev.Name)
	}
	return names
}

func (env *testEnv) credentials(t *testing.T, userID string) []store.Credential {
	t.Helper()
	creds, err := env.store.Credentials().List(context.Background(), userID)
	if err != nil {
		t.Fatalf("list credentials: %v", err)
	}
	return creds
}

func hasName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
