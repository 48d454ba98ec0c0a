package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/ehr/tracker/internal/config"
	"github.com/ehr/tracker/internal/domain/account"
	"github.com/ehr/tracker/internal/domain/team"
	"github.com/ehr/tracker/internal/platform/db"
	"github.com/ehr/tracker/internal/platform/metrics"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tracker-server",
		Short: "Ward patient tracker",
	}
	cmd.AddCommand(serveCmd())
	cmd.AddCommand(migrateCmd())
	cmd.AddCommand(userCmd())
	cmd.AddCommand(teamCmd())
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the tracker web server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// withPool loads config and opens the database for one-shot commands.
func withPool(fn func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, cfg, pool)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(func(ctx context.Context, _ *config.Config, pool *pgxpool.Pool) error {
				count, err := db.NewMigrator(pool, db.EmbeddedMigrations()).Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(func(ctx context.Context, _ *config.Config, pool *pgxpool.Pool) error {
				statuses, err := db.NewMigrator(pool, db.EmbeddedMigrations()).Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
				for _, s := range statuses {
					status := "pending"
					appliedAt := ""
					if s.Applied {
						status = "applied"
						if s.AppliedAt != nil {
							appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
						}
					}
					fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
				}
				return nil
			})
		},
	})

	return cmd
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user who must change their password at first login",
		RunE: func(cmd *cobra.Command, args []string) error {
			username, _ := cmd.Flags().GetString("username")
			password, _ := cmd.Flags().GetString("password")
			if username == "" || password == "" {
				return fmt.Errorf("--username and --password are required")
			}
			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				svc := account.NewService(account.NewRepoPG(pool), newLimiter(nil, cfg.LoginMaxAttempts))
				u, err := svc.CreateUser(ctx, username, password)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created user %s (%s)\n", u.Username, u.ID)
				return nil
			})
		},
	}
	createCmd.Flags().String("username", "", "Login name")
	createCmd.Flags().String("password", "", "Initial password")
	cmd.AddCommand(createCmd)

	return cmd
}

func teamCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "team",
		Short: "Manage teams",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a team episodes can be tagged with",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			title, _ := cmd.Flags().GetString("title")
			restricted, _ := cmd.Flags().GetBool("restricted")
			order, _ := cmd.Flags().GetInt("order")
			if name == "" {
				return fmt.Errorf("--name is required")
			}
			if title == "" {
				title = name
			}
			return withPool(func(ctx context.Context, _ *config.Config, pool *pgxpool.Pool) error {
				t := &team.Team{Name: name, Title: title, Active: true, Restricted: restricted, Order: order}
				if err := team.NewService(team.NewRepoPG(pool)).Create(ctx, t); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created team %s\n", t.Name)
				return nil
			})
		},
	}
	createCmd.Flags().String("name", "", "Tag name used in URLs")
	createCmd.Flags().String("title", "", "Display title")
	createCmd.Flags().Bool("restricted", false, "Only offer the team to its members")
	createCmd.Flags().Int("order", 0, "Sort position")
	cmd.AddCommand(createCmd)

	addCmd := &cobra.Command{
		Use:   "add-member",
		Short: "Make a user a member of a restricted team",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("team")
			username, _ := cmd.Flags().GetString("username")
			if name == "" || username == "" {
				return fmt.Errorf("--team and --username are required")
			}
			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				r := pgRepos(pool)
				u, err := r.accounts.GetUserByUsername(ctx, username)
				if err != nil {
					return err
				}
				return team.NewService(r.teams).AddMember(ctx, name, u.ID)
			})
		},
	}
	addCmd.Flags().String("team", "", "Team name")
	addCmd.Flags().String("username", "", "Member's login name")
	cmd.AddCommand(addCmd)

	return cmd
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	rdb, err := newRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid redis config")
	}
	if rdb != nil {
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		logger.Info().Msg("connected to redis")
	}

	m := metrics.NewManager()
	a, err := newApp(cfg, logger, pgRepos(pool), newLimiter(rdb, cfg.LoginMaxAttempts), newPublisher(cfg, logger, rdb), m)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build application")
	}
	defer a.revoked.Close()
	a.pinger = pool
	a.poolStats = func() *db.PoolStats { return db.GetPoolStats(pool) }

	e := a.routes()

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Bool("tls", cfg.TLSEnabled).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
