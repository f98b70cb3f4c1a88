// Command certctl administers a certification engine deployment: schema
// migrations, course policies, one-off lifecycle operations and credentials
// for development.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/certiva/certiva-engine/config"
	"github.com/certiva/certiva-engine/internal/app"
	"github.com/certiva/certiva-engine/internal/application/command"
	"github.com/certiva/certiva-engine/internal/application/query"
	"github.com/certiva/certiva-engine/internal/infrastructure/persistence/postgres"
	"github.com/certiva/certiva-engine/internal/interface/http/handlers"
	"github.com/certiva/certiva-engine/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configFile string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "certctl",
		Short:         "Administer the Certiva certification engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", os.Getenv(config.ConfigFileEnv), "YAML config file")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log to stderr")

	root.AddCommand(newMigrateCmd(opts))
	root.AddCommand(newEnrollCmd(opts))
	root.AddCommand(newSubmitCmd(opts))
	root.AddCommand(newIssueCmd(opts))
	root.AddCommand(newReconcileCmd(opts))
	root.AddCommand(newVerifyCmd(opts))
	root.AddCommand(newRenderCmd(opts))
	root.AddCommand(newPolicyCmd(opts))
	root.AddCommand(newHashAdminKeyCmd())
	root.AddCommand(newTokenCmd(opts))
	return root
}

func (o *rootOptions) load() (*config.Config, *logger.Logger, error) {
	cfg, err := config.LoadFrom(o.configFile)
	if err != nil {
		return nil, nil, err
	}
	if !o.verbose {
		return cfg, logger.Nop(), nil
	}
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	opts.Format = "console"
	return cfg, logger.New(opts), nil
}

func (o *rootOptions) engine(ctx context.Context) (*app.App, error) {
	cfg, log, err := o.load()
	if err != nil {
		return nil, err
	}
	// Lifecycle commands must not race the server on schema changes.
	cfg.Database.AutoMigrate = false
	return app.New(ctx, cfg, log)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ═══════════════════════════════════════════════════════════════════════════
// MIGRATIONS
// ═══════════════════════════════════════════════════════════════════════════

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	migrate := &cobra.Command{Use: "migrate", Short: "Manage the database schema"}

	withMigrator := func(cmd *cobra.Command, fn func(context.Context, *postgres.Migrator) error) error {
		cfg, log, err := opts.load()
		if err != nil {
			return err
		}
		if !cfg.UsesPostgres() {
			return fmt.Errorf("migrations need STORAGE_DRIVER=%s", config.StoragePostgres)
		}
		ctx := cmd.Context()
		conn, err := app.OpenDatabase(ctx, cfg.Database, log)
		if err != nil {
			return err
		}
		defer conn.Close()
		return fn(ctx, postgres.NewMigrator(conn))
	}

	migrate.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *postgres.Migrator) error {
				if err := m.Migrate(ctx); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
				return nil
			})
		},
	})

	migrate.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the latest migration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *postgres.Migrator) error {
				if err := m.Rollback(ctx); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "rolled back one migration")
				return nil
			})
		},
	})

	migrate.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *postgres.Migrator) error {
				migrations, err := m.Status(ctx)
				if err != nil {
					return err
				}
				for _, mig := range migrations {
					state := "pending"
					if mig.IsApplied {
						state = "applied " + mig.AppliedAt.Format(time.RFC3339)
					}
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%03d  %-40s %s\n", mig.Version, mig.Name, state)
				}
				return nil
			})
		},
	})

	return migrate
}

// ═══════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ═══════════════════════════════════════════════════════════════════════════

func newEnrollCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "enroll <learner-id> <course-id>",
		Short: "Enroll a learner in a course",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := opts.engine(cmd.Context())
			if err != nil {
				return err
			}
			defer engine.Close()

			res, err := engine.Enroll.Handle(cmd.Context(), command.EnrollCommand{LearnerID: args[0], CourseID: args[1]})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), query.NewEnrollmentDTO(res.Enrollment, nil))
		},
	}
}

func newSubmitCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "submit <learner-id> <course-id> <score>",
		Short: "Record an assessment score",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			score, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("score must be an integer: %w", err)
			}

			engine, err := opts.engine(cmd.Context())
			if err != nil {
				return err
			}
			defer engine.Close()

			res, err := engine.Submit.Handle(cmd.Context(), command.SubmitAssessmentCommand{
				LearnerID: args[0],
				CourseID:  args[1],
				Score:     score,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"enrollment": query.NewEnrollmentDTO(res.Enrollment, nil),
				"outcome":    res.Outcome,
			})
		},
	}
}

func newIssueCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "issue <learner-id> <course-id>",
		Short: "Issue the certificate for a completed enrollment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := opts.engine(cmd.Context())
			if err != nil {
				return err
			}
			defer engine.Close()

			res, err := engine.Generate.Handle(cmd.Context(), command.GenerateCertificateCommand{LearnerID: args[0], CourseID: args[1]})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"certificate": res.Certificate.Record(),
				"issued":      res.Issued,
			})
		},
	}
}

func newReconcileCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Issue certificates for completed enrollments that have none",
		Long: "Runs one batch of the reconciliation job the server schedules with\n" +
			"RECONCILE_SCHEDULE. RECONCILE_GRACE and RECONCILE_BATCH_SIZE apply.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			engine, err := opts.engine(cmd.Context())
			if err != nil {
				return err
			}
			defer engine.Close()

			stats, err := engine.Reconciler.Reconcile(cmd.Context())
			if perr := printJSON(cmd.OutOrStdout(), map[string]any{
				"found":          stats.Found,
				"issued":         stats.Issued,
				"already_issued": stats.AlreadyIssued,
				"failed":         stats.Failed,
				"duration":       stats.Duration.String(),
			}); perr != nil {
				return perr
			}
			return err
		},
	}
}

func newVerifyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <verification-id>",
		Short: "Look up a certificate by its verification id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := opts.engine(cmd.Context())
			if err != nil {
				return err
			}
			defer engine.Close()

			res, err := engine.Verify.Handle(cmd.Context(), query.VerifyCertificateQuery{VerificationID: args[0]})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
}

func newRenderCmd(opts *rootOptions) *cobra.Command {
	var learnerID, outDir string

	cmd := &cobra.Command{
		Use:   "render <verification-id>",
		Short: "Render a certificate to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := opts.engine(cmd.Context())
			if err != nil {
				return err
			}
			defer engine.Close()

			doc, err := engine.Render.Handle(cmd.Context(), query.RenderCertificateQuery{
				VerificationID: args[0],
				RequesterID:    learnerID,
			})
			if err != nil {
				return err
			}

			path := filepath.Join(outDir, doc.FileName)
			if err := os.WriteFile(path, doc.Data, 0o644); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", path, len(doc.Data))
			return nil
		},
	}
	cmd.Flags().StringVar(&learnerID, "learner", "", "holder of the certificate")
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "output directory")
	_ = cmd.MarkFlagRequired("learner")
	return cmd
}

// ═══════════════════════════════════════════════════════════════════════════
// POLICIES
// ═══════════════════════════════════════════════════════════════════════════

func newPolicyCmd(opts *rootOptions) *cobra.Command {
	policy := &cobra.Command{Use: "policy", Short: "Manage course pass thresholds"}

	policy.AddCommand(&cobra.Command{
		Use:   "set <course-id> <pass-threshold>",
		Short: "Store a course pass threshold",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			threshold, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("pass threshold must be an integer: %w", err)
			}

			engine, err := opts.engine(cmd.Context())
			if err != nil {
				return err
			}
			defer engine.Close()

			p, err := engine.UpsertPolicy.Handle(cmd.Context(), command.UpsertCoursePolicyCommand{
				CourseID:      args[0],
				PassThreshold: threshold,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), p)
		},
	})

	policy.AddCommand(&cobra.Command{
		Use:   "get <course-id>",
		Short: "Show the effective pass threshold of a course",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := opts.engine(cmd.Context())
			if err != nil {
				return err
			}
			defer engine.Close()

			threshold, err := engine.Thresholds.PassThreshold(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), threshold)
			return nil
		},
	})

	return policy
}

// ═══════════════════════════════════════════════════════════════════════════
// CREDENTIALS
// ═══════════════════════════════════════════════════════════════════════════

func newHashAdminKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-admin-key [key]",
		Short: "Print the bcrypt hash to use as ADMIN_KEY_HASH",
		Long:  "Hashes the key given as argument, or read from stdin when omitted.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var key string
			if len(args) == 1 {
				key = args[0]
			} else {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				key = strings.TrimSpace(string(data))
			}
			if key == "" {
				return fmt.Errorf("admin key is empty")
			}

			hash, err := handlers.HashAdminKey(key)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token <learner-id>",
		Short: "Sign a learner token with JWT_SECRET (development only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			if cfg.IsProduction() {
				return fmt.Errorf("refusing to mint tokens in production")
			}

			auth, err := handlers.NewJWTAuth(handlers.JWTAuthConfig{
				Secret:   cfg.Auth.JWTSecret,
				Issuer:   cfg.Auth.JWTIssuer,
				Audience: cfg.Auth.JWTAudience,
			})
			if err != nil {
				return err
			}

			token, err := auth.Sign(args[0], ttl)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
