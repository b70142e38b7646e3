package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/authgate"
	"github.com/MrEthical07/authgate/audit/kafkasink"
	"github.com/MrEthical07/authgate/config"
	"github.com/MrEthical07/authgate/internal/rate"
	"github.com/MrEthical07/authgate/middleware"
	"github.com/MrEthical07/authgate/policy"
)

const shutdownTimeout = 15 * time.Second

type serveOptions struct {
	usersFile string
	rolesFile string
}

func newServeCommand(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, logger, err := loadSettings(root)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, settings, logger, opts)
		},
	}
	cmd.Flags().StringVar(&opts.usersFile, "users", "users.json", "JSON file with the user accounts")
	cmd.Flags().StringVar(&opts.rolesFile, "roles", "", "optional JSON file mapping roles to resource:action permissions")
	return cmd
}

func serve(ctx context.Context, settings *config.Settings, logger *log.Logger, opts *serveOptions) error {
	users, err := loadUsers(opts.usersFile)
	if err != nil {
		return err
	}
	roles, err := loadRoles(opts.rolesFile)
	if err != nil {
		return err
	}

	engine, be, cleanup, err := buildEngine(ctx, settings, logger, users, roles)
	if err != nil {
		return err
	}
	defer cleanup()

	report := engine.SecurityReport()
	logger.WithFields(log.Fields{
		"signing_method":      report.SigningMethod,
		"access_ttl":          report.AccessTTL.String(),
		"max_sessions":        report.MaxConcurrentSessions,
		"device_binding":      report.DeviceBindingEnforced,
		"device_verification": report.DeviceVerificationEnforced,
		"risk_detection":      report.RiskDetectionEnabled,
	}).Info("authgate: engine ready")
	for _, w := range report.Warnings {
		logger.Warn("authgate: " + w)
	}

	var limiter middleware.Limiter
	if settings.ThrottleLimit > 0 && be.redis != nil {
		l, err := rate.New(be.redis, rate.Config{
			Prefix: settings.RedisPrefix + ":rl",
			Limit:  settings.ThrottleLimit,
			Window: settings.ThrottleWindow,
		})
		if err != nil {
			return err
		}
		limiter = l
	} else if settings.ThrottleLimit > 0 {
		logger.Info("authgate: request throttling needs the redis store, disabled")
	}

	srv := &http.Server{
		Addr:              settings.HTTPAddr,
		Handler:           newRouter(engine, limiter, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", settings.HTTPAddr).Info("authgate: listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("authgate: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// buildEngine opens the store, the optional Kafka sink and the Rego policy.
// The returned cleanup closes them in reverse order.
func buildEngine(ctx context.Context, settings *config.Settings, logger *log.Logger, users *fileUsers, roles *roleTable) (*authgate.Engine, *backend, func(), error) {
	cfg, err := settings.Engine()
	if err != nil {
		return nil, nil, nil, err
	}

	be, err := openBackend(ctx, settings, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	closers := []func() error{be.close}
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.WithError(err).Warn("authgate: close failed")
			}
		}
	}

	b := authgate.New().
		WithConfig(cfg).
		WithStore(be.store).
		WithUserProvider(users).
		WithOTPSender(logSender{log: logger}).
		WithLogger(logger)
	if be.locker != nil {
		b = b.WithLocker(be.locker)
	}
	if roles != nil {
		b = b.WithPermissions(roles.Permissions).WithRoles(roles.Roles)
	}

	if settings.OTPPolicyFile != "" {
		module, err := os.ReadFile(settings.OTPPolicyFile)
		if err != nil {
			cleanup()
			return nil, nil, nil, fmt.Errorf("otp policy: %w", err)
		}
		evaluator, err := policy.NewRego(ctx, string(module))
		if err != nil {
			cleanup()
			return nil, nil, nil, fmt.Errorf("otp policy: %w", err)
		}
		b = b.WithPolicy(evaluator)
	}

	if brokers := settings.KafkaBrokerList(); settings.AuditEnabled && len(brokers) > 0 {
		sink, err := kafkasink.New(kafkasink.Config{Brokers: brokers, Topic: settings.AuditKafkaTopic})
		if err != nil {
			cleanup()
			return nil, nil, nil, err
		}
		closers = append(closers, sink.Close)
		b = b.WithAuditSink(sink)
	} else if settings.AuditEnabled {
		b = b.WithAuditSink(authgate.NewJSONWriterSink(os.Stdout))
	}

	engine, err := b.Build()
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}
	// The engine drains its audit queue into the sink, so it closes first.
	closers = append(closers, func() error {
		engine.Close()
		return nil
	})
	return engine, be, cleanup, nil
}
