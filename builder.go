package authgate

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/MrEthical07/authgate/credential"
	"github.com/MrEthical07/authgate/device"
	internalaudit "github.com/MrEthical07/authgate/internal/audit"
	"github.com/MrEthical07/authgate/internal/keylock"
	"github.com/MrEthical07/authgate/jwt"
	"github.com/MrEthical07/authgate/otp"
	"github.com/MrEthical07/authgate/password"
	"github.com/MrEthical07/authgate/permission"
	"github.com/MrEthical07/authgate/policy"
	"github.com/MrEthical07/authgate/risk"
	"github.com/MrEthical07/authgate/session"
	"github.com/MrEthical07/authgate/store"
)

// Locker serializes work per user. internal/keylock provides the in-process
// implementation and store/redisstore.Locker the distributed one.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// Builder assembles an Engine. A Builder can be used once.
type Builder struct {
	config Config

	store        store.Store
	userProvider UserProvider
	hasher       PasswordHasher
	sender       OTPSender
	auditSink    AuditSink
	evaluator    policy.Evaluator
	locker       Locker
	logger       log.FieldLogger
	clock        func() time.Time

	permissions []string
	roles       map[string][]string

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration. The builder keeps a copy.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

func (b *Builder) WithStore(s store.Store) *Builder {
	b.store = s
	return b
}

// WithUserProvider sets the source of user records. It is required.
func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

// WithPasswordHasher replaces the default argon2id hasher.
func (b *Builder) WithPasswordHasher(h PasswordHasher) *Builder {
	b.hasher = h
	return b
}

// WithOTPSender sets the email/SMS code delivery. Without a sender only TOTP
// challenges can be completed.
func (b *Builder) WithOTPSender(s OTPSender) *Builder {
	b.sender = s
	return b
}

// WithAuditSink routes audit events to sink. Events are queued and delivered
// by a background dispatcher and dropped when its queue is full.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithPolicy replaces the built-in OTP requirement rules, for example with a
// policy.Rego evaluator.
func (b *Builder) WithPolicy(e policy.Evaluator) *Builder {
	b.evaluator = e
	return b
}

// WithLocker sets the per-user lock. The default is an in-process keyed
// mutex, which only serializes within one process.
func (b *Builder) WithLocker(l Locker) *Builder {
	b.locker = l
	return b
}

// WithLogger sets the logger for best-effort failures.
func (b *Builder) WithLogger(l log.FieldLogger) *Builder {
	b.logger = l
	return b
}

// WithClock overrides time.Now.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// WithPermissions registers the "resource:action" permissions known to
// Engine.Authorize.
func (b *Builder) WithPermissions(perms []string) *Builder {
	b.permissions = append([]string(nil), perms...)
	return b
}

// WithRoles maps role names to permissions. "*" grants everything.
func (b *Builder) WithRoles(r map[string][]string) *Builder {
	b.roles = make(map[string][]string, len(r))
	for role, perms := range r {
		b.roles[role] = append([]string(nil), perms...)
	}
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms enables the authenticate latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires every component.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, errors.New("store required")
	}
	if b.userProvider == nil {
		return nil, errors.New("user provider required")
	}
	// Unknown devices must be able to receive a verification code.
	if cfg.Device.EnforceVerification && b.sender == nil {
		return nil, errors.New("device verification requires an OTP sender")
	}

	now := b.clock
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	locker := b.locker
	if locker == nil {
		locker = keylock.New()
	}

	hasher := b.hasher
	if hasher == nil {
		ph, err := password.NewArgon2(cfg.Password.HasherConfig())
		if err != nil {
			return nil, err
		}
		hasher = ph
	}
	dummy, err := hasher.Hash("authgate-unknown-user-placeholder")
	if err != nil {
		return nil, err
	}

	signer, err := jwt.NewManager(cfg.jwtConfig(now))
	if err != nil {
		return nil, err
	}
	gate, err := otp.NewGate(cfg.otpSettings(), b.evaluator)
	if err != nil {
		return nil, err
	}

	var roles *permission.RoleManager
	if len(b.roles) > 0 {
		roles, err = buildRoles(b.permissions, b.roles)
		if err != nil {
			return nil, err
		}
	}

	engine := &Engine{
		config:       cfg,
		store:        b.store,
		users:        b.userProvider,
		hasher:       hasher,
		sender:       b.sender,
		locker:       locker,
		log:          logger,
		now:          now,
		dummyHash:    dummy,
		signer:       signer,
		credentials:  credential.NewManager(b.store.Credentials(), signer, cfg.Session.MaxConcurrent, now),
		sessions:     session.NewManager(b.store.Sessions(), cfg.Session.MaxConcurrent, cfg.Session.Timeout, now),
		devices:      device.NewRegistry(b.store.Devices(), now),
		risk:         risk.NewEngine(cfg.Risk.Rules, cfg.Risk.SuspiciousActivityDetection),
		gate:         gate,
		roles:        roles,
		lockoutRules: cfg.lockoutPolicy(),
		metrics:      NewMetrics(cfg.Metrics),
	}
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:     cfg.Audit.Enabled,
		BufferSize:  cfg.Audit.BufferSize,
		DropIfFull:  cfg.Audit.DropIfFull,
		EmitTimeout: cfg.Audit.EmitTimeout,
		Logger:      logger,
	}, b.auditSink)

	b.built = true
	return engine, nil
}

func buildRoles(perms []string, roles map[string][]string) (*permission.RoleManager, error) {
	registry, err := permission.NewRegistry(512, true)
	if err != nil {
		return nil, err
	}
	for _, p := range perms {
		if _, err := registry.Register(p); err != nil {
			return nil, err
		}
	}
	registry.Freeze()

	rm := permission.NewRoleManager(registry)
	for role, list := range roles {
		if err := rm.RegisterRole(role, list); err != nil {
			return nil, err
		}
	}
	rm.Freeze()
	return rm, nil
}
