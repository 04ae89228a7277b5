package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/identityd/internal/app"
	"github.com/dropDatabas3/identityd/internal/claims"
	"github.com/dropDatabas3/identityd/internal/config"
	"github.com/dropDatabas3/identityd/internal/directory"
	"github.com/dropDatabas3/identityd/internal/directory/local"
	httpserver "github.com/dropDatabas3/identityd/internal/http"
	"github.com/dropDatabas3/identityd/internal/observability/logger"
)

var version = "dev"

func main() {
	// .env opcional (dev)
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:           "identityd",
		Short:         "Núcleo de identidad federada: directorios, claims y usuarios",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", envOr("IDENTITYD_CONFIG", ""), "ruta del config.yaml (env IDENTITYD_CONFIG)")

	// load construye la app; el caller cierra.
	load := func(ctx context.Context) (*app.App, error) {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return nil, err
		}
		if cfg.App.Version == "" {
			cfg.App.Version = version
		}
		logger.Init(logger.Config{
			Env:         cfg.App.Env,
			Level:       cfg.Log.Level,
			ServiceName: cfg.App.Name,
			Version:     cfg.App.Version,
		})
		return app.Build(ctx, cfg)
	}

	root.AddCommand(
		serveCmd(load),
		bootstrapCmd(load),
		searchCmd(load),
		findCmd(load),
		setPasswordCmd(load),
		migrateCmd(load),
		loginCmd(load),
	)
	return root
}

type loader func(ctx context.Context) (*app.App, error)

func serveCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Bootstrap del store y servidor de operaciones (/healthz, /readyz, /metrics)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			defer func() { _ = logger.Sync() }()

			a, err := load(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Bootstrap(ctx); err != nil {
				return err
			}
			h, err := a.OpsHandler(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
			if err != nil {
				return err
			}
			return httpserver.NewServer(a.Config.Server.Addr, h, a.Log).Run(ctx)
		},
	}
}

func bootstrapCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Crea la base, instala las vistas y carga el seed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.Bootstrap(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "store ready")
			return nil
		},
	}
}

func searchCmd(load loader) *cobra.Command {
	var (
		typ       string
		prefix    bool
		providers []string
	)
	cmd := &cobra.Command{
		Use:   "search <text>",
		Short: "Busca principals en todos los directorios",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			q := directory.Query{
				Text:      args[0],
				Filter:    directory.ParseTypeFilter(typ),
				Providers: providers,
			}
			if prefix {
				q.Mode = directory.MatchWildcardPrefix
			}
			out := a.Aggregator.SearchPrincipals(cmd.Context(), q)
			if out == nil {
				out = []directory.Principal{}
			}
			return printJSON(cmd, out)
		},
	}
	cmd.Flags().StringVar(&typ, "type", "all", "all | users | groups")
	cmd.Flags().BoolVar(&prefix, "prefix", false, "match por prefijo")
	cmd.Flags().StringSliceVar(&providers, "provider", nil, "limitar a estos providers")
	return cmd
}

func findCmd(load loader) *cobra.Command {
	var providers []string
	cmd := &cobra.Command{
		Use:   "find <subject-id>",
		Short: "Busca un principal por subject id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			p := a.Aggregator.FindBySubjectID(cmd.Context(), args[0], providers...)
			if p == nil {
				return fmt.Errorf("principal %q not found", args[0])
			}
			return printJSON(cmd, p)
		},
	}
	cmd.Flags().StringSliceVar(&providers, "provider", nil, "limitar a estos providers")
	return cmd
}

func setPasswordCmd(load loader) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "set-password <username>",
		Short: "Fija el password de una cuenta local",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				return fmt.Errorf("falta --password (o env IDENTITYD_PASSWORD)")
			}
			a, err := load(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			if a.Local == nil {
				return fmt.Errorf("local directory is not enabled")
			}
			if err := a.Local.SetPassword(cmd.Context(), args[0], password); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "password updated")
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", envOr("IDENTITYD_PASSWORD", ""), "nuevo password")
	return cmd
}

func loginCmd(load loader) *cobra.Command {
	var password, clientID string
	cmd := &cobra.Command{
		Use:   "login <username>",
		Short: "Autentica una cuenta local y reconcilia el usuario",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			if a.Local == nil {
				return fmt.Errorf("local directory is not enabled")
			}
			if err := a.Bootstrap(cmd.Context()); err != nil {
				return err
			}
			out, err := a.Login.PasswordLogin(cmd.Context(), a.Local, args[0], password, &claims.AuthorizationContext{ClientID: clientID})
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{
				"subject_id": out.SubjectID,
				"provider":   out.Result.Provider,
				"claims":     out.User.Claims,
			})
		},
	}
	cmd.Flags().StringVar(&password, "password", envOr("IDENTITYD_PASSWORD", ""), "password")
	cmd.Flags().StringVar(&clientID, "client", "", "client_id a registrar como último login")
	return cmd
}

func migrateCmd(load loader) *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Aplica las migraciones de local_account",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := local.Up
			if len(args) == 1 {
				dir = local.Direction(strings.ToLower(args[0]))
			}
			a, err := load(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			if a.LocalDB == nil {
				return fmt.Errorf("local directory is not enabled")
			}
			applied, err := local.Migrate(cmd.Context(), a.LocalDB, dir, steps, a.Log)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d migration(s) applied\n", len(applied))
			return nil
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 0, "cantidad máxima de migraciones (0 = todas)")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
