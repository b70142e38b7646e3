package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/authgate"
	"github.com/MrEthical07/authgate/config"
	"github.com/MrEthical07/authgate/password"
	"github.com/MrEthical07/authgate/store"
	"github.com/MrEthical07/authgate/store/postgres"
)

func newMigrateCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate up|down",
		Short:     "Apply or roll back the PostgreSQL schema",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{string(postgres.Up), string(postgres.Down)},
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, logger, err := loadSettings(root)
			if err != nil {
				return err
			}
			if settings.DatabaseURL == "" {
				return errors.New("migrate: DATABASE_URL must be set")
			}
			if err := postgres.Migrate(settings.DatabaseURL, postgres.Direction(args[0])); err != nil {
				return err
			}
			logger.WithField("direction", args[0]).Info("authgate: migration complete")
			return nil
		},
	}
}

type sweepOptions struct {
	users []string
}

func newSweepCommand(root *rootOptions) *cobra.Command {
	opts := &sweepOptions{}
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired credentials and sessions of the given users",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(opts.users) == 0 {
				return errors.New("sweep: at least one --user is required")
			}
			settings, logger, err := loadSettings(root)
			if err != nil {
				return err
			}
			if settings.StoreDriver == config.DriverMemory {
				return errors.New("sweep: the memory store has nothing to sweep across processes")
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			engine, _, cleanup, err := buildEngine(ctx, settings, logger, sweepUsers(opts.users), nil)
			if err != nil {
				return err
			}
			defer cleanup()

			total := 0
			for _, id := range opts.users {
				n, err := engine.Prune(ctx, id)
				if err != nil {
					if errors.Is(err, store.ErrUnavailable) {
						return err
					}
					logger.WithError(err).WithField("user_id", id).Warn("authgate: sweep failed")
					continue
				}
				total += n
				logger.WithField("user_id", id).WithField("removed", n).Debug("authgate: swept")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d records for %d user(s)\n", total, len(opts.users))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&opts.users, "user", nil, "user id to sweep (repeatable)")
	return cmd
}

// sweepUsers lets Prune run for ids that are not in any users file. Prune
// never consults the provider, but the builder requires one.
func sweepUsers(ids []string) *fileUsers {
	f := &fileUsers{users: make(map[string]authgate.UserRecord, len(ids))}
	for _, id := range ids {
		f.users[id] = authgate.UserRecord{UserID: id, Status: authgate.AccountActive}
	}
	return f
}

func newHashPasswordCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Read a password from stdin and print its argon2id hash for the users file",
		RunE: func(cmd *cobra.Command, args []string) error {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read password: %w", err)
			}
			pw := strings.TrimRight(line, "\r\n")
			if pw == "" {
				return errors.New("empty password")
			}
			hasher, err := password.NewArgon2(authgate.DefaultConfig().Password.HasherConfig())
			if err != nil {
				return err
			}
			hash, err := hasher.Hash(pw)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
