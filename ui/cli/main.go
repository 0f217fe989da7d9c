// Copyright (c) 2026 Gatekeeper Team
// Gatekeeper - audited remote command sessions
// This source code is licensed under the MIT license found in the LICENSE file.

// main.go sets up the Gatekeeper command-line interface using cobra: the
// root command, its persistent flags and the shared service wiring every
// subcommand runs against.

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strconv"
	"syscall"

	log "github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/toeirei/gatekeeper/internal/apperr"
	"github.com/toeirei/gatekeeper/internal/config"
	"github.com/toeirei/gatekeeper/internal/core"
	"github.com/toeirei/gatekeeper/internal/db"
	"github.com/toeirei/gatekeeper/internal/i18n"
	"github.com/toeirei/gatekeeper/internal/logging"
	"github.com/toeirei/gatekeeper/internal/remote"
)

var version = "dev"   // set by the linker
var gitCommit = "dev" // short commit SHA, set at build time
var buildDate = ""    // RFC3339, set at build time

// app carries the services built in PersistentPreRunE for one invocation.
type app struct {
	cfg     config.Config
	store   db.Store
	dialer  *remote.Dialer
	svc     *core.Service
	as      string
	verbose bool
}

// annotationNoStore marks commands that run without opening the database.
const annotationNoStore = "gatekeeper/no-store"

func (a *app) setup(cmd *cobra.Command) error {
	configPath, err := getConfigPathFromCli(cmd)
	if err != nil {
		return err
	}

	defaults := config.Defaults()
	a.cfg, err = config.LoadConfig[config.Config](cmd, defaults, configPath)
	if errors.As(err, &viper.ConfigFileNotFoundError{}) {
		// First run: persist the defaults so there is a file to edit.
		if writeErr := config.WriteConfigFile(&a.cfg, false); writeErr != nil {
			log.Warnf("could not write default config file: %v", writeErr)
		}
	} else if err != nil {
		return apperr.Wrap(apperr.ErrValidation, err, "%s", i18n.T("config.error_load"))
	}

	if a.cfg.Database.Type == "" {
		a.cfg.Database.Type = defaults["database.type"].(string)
	}
	if a.cfg.Database.Dsn == "" {
		a.cfg.Database.Dsn = defaults["database.dsn"].(string)
	}
	if a.cfg.Language == "" {
		a.cfg.Language = defaults["language"].(string)
	}

	i18n.Init(a.cfg.Language)
	if a.cfg.Log.Level != "" {
		if err := logging.SetLevel(a.cfg.Log.Level); err != nil {
			log.Warnf("ignoring log level %q: %v", a.cfg.Log.Level, err)
		}
	}
	if a.verbose {
		logging.SetDebug(true)
		db.SetDebug(true)
	}

	if cmd.Annotations[annotationNoStore] == "true" {
		return nil
	}

	rc, err := a.cfg.Remote()
	if err != nil {
		return apperr.Wrap(apperr.ErrValidation, err, "%s", i18n.T("config.error_ssh"))
	}
	store, err := db.New(a.cfg.Database.Type, a.cfg.Database.Dsn)
	if err != nil {
		return apperr.Wrap(apperr.ErrInternal, err, "%s", i18n.T("config.error_init_db"))
	}
	a.store = store
	a.dialer = remote.NewDialer(rc, store)
	a.svc = core.New(store, core.SSHDialer(a.dialer), a.cfg.ServiceOptions())
	return nil
}

func (a *app) teardown() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}

// principal resolves the --as identity.
func (a *app) principal(ctx context.Context) (core.Principal, error) {
	if a.as == "" {
		return core.Principal{}, apperr.New(apperr.ErrValidation, "%s", i18n.T("cli.error_no_principal"))
	}
	return a.svc.Principal(ctx, a.as)
}

// Execute runs the CLI until it finishes or the process is interrupted.
// The caller maps the returned error to an exit status with ExitCode.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{}
	err := newRootCmd(a).ExecuteContext(ctx)
	if cerr := a.teardown(); cerr != nil {
		log.Warnf("closing database: %v", cerr)
	}
	return err
}

func applyDefaultFlags(cmd *cobra.Command) {
	if cmd.Flags().Lookup("database.type") == nil {
		cmd.PersistentFlags().String("database.type", "sqlite", "Database type (sqlite, postgres, mysql)")
	}
	if cmd.Flags().Lookup("database.dsn") == nil {
		cmd.PersistentFlags().String("database.dsn", "./gatekeeper.db", "Database connection string (DSN)")
	}
}

func getConfigPathFromCli(cmd *cobra.Command) (*string, error) {
	if !cmd.Flags().Changed("config") {
		return nil, nil
	}
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("could not read --config flag: %w", err)
	}
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file specified via --config flag not found or is not accessible: %w", err)
	}
	return &path, nil
}

// NewRootCmd builds a fresh command tree. Services opened by a run are
// released by Execute; callers running the tree directly leak them until
// process exit.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&app{})
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gatekeeper",
		Short: "Gatekeeper runs audited commands on remote devices.",
		Long: `Gatekeeper opens sessions against managed devices, executes
allow-listed commands over SSH and records every execution and file
edit in an append-only audit log.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	v, c, d := resolveBuildVersion(nil)
	composite := v
	if c != "" && c != "dev" {
		composite += " (" + c + ")"
	}
	if d != "" {
		composite += " built: " + d
	}
	cmd.Version = composite

	cmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().String("config", "", "config file")
	cmd.PersistentFlags().String("language", "en", `Message language ("en", "de")`)
	cmd.PersistentFlags().StringVar(&a.as, "as", os.Getenv("GATEKEEPER_AS"), "Username to act as")
	applyDefaultFlags(cmd)

	cmd.AddCommand(
		newSessionCmd(a),
		newExecCmd(a),
		newFileCmd(a),
		newLogsCmd(a),
		newAuditCmd(a),
		newAccessAtCmd(a),
		newSeedCmd(a),
		newDBCmd(a),
		newHostKeyCmd(a),
		newLanguagesCmd(),
	)
	return cmd
}

// resolveBuildVersion computes the best-available version, commit and build
// date for the running binary. A nil info reads the runtime build info.
func resolveBuildVersion(info *debug.BuildInfo) (versionOut, commitOut, dateOut string) {
	resolvedVersion := version
	resolvedCommit := gitCommit
	resolvedDate := buildDate

	if info == nil {
		if local, ok := debug.ReadBuildInfo(); ok {
			info = local
		}
	}
	if info != nil {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			resolvedVersion = info.Main.Version
		}
		if resolvedVersion == "dev" {
			for _, dep := range info.Deps {
				if dep.Path == "github.com/toeirei/gatekeeper" && dep.Version != "" {
					resolvedVersion = dep.Version
					break
				}
			}
		}
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				if s.Value != "" {
					resolvedCommit = s.Value
				}
			case "vcs.time":
				if s.Value != "" {
					resolvedDate = s.Value
				}
			}
		}
	}

	if resolvedVersion == "dev" && gitCommit != "dev" && gitCommit != "" {
		resolvedVersion = gitCommit
	}
	return resolvedVersion, resolvedCommit, resolvedDate
}

func parseID(s, what string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.New(apperr.ErrValidation, "invalid %s id %q", what, s)
	}
	return id, nil
}
