package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/pixperk/sharelock/internal/config"
	"github.com/pixperk/sharelock/pkg/logging"
	"github.com/pixperk/sharelock/pkg/manager"
	"github.com/pixperk/sharelock/pkg/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is stamped at build time with -ldflags "-X ...cli.Version=..."
var Version = "dev"

// app carries what every subcommand needs, built once per invocation
type app struct {
	v      *viper.Viper
	cfg    *config.Config
	logger *slog.Logger
	store  storage.Store
	mgr    *manager.Manager
}

// NewRootCommand builds the sharelock command tree
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "sharelock",
		Short: "Shared-file write lock for the compliance database",
		Long: `sharelock manages the application-level write lock stored inside the
shared compliance database. Only one desktop may hold it at a time; holders
heartbeat every few seconds and a silent holder is reclaimed once its
heartbeat is older than the staleness window.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.init(cmd.ErrOrStderr())
		},
	}

	flags := root.PersistentFlags()
	flags.StringP("config", "c", "", "config file (default is $HOME/.config/sharelock/sharelock.yaml)")
	flags.String("db", "", "path of the shared database file")
	flags.Duration("heartbeat-interval", 0, "heartbeat cadence of a holder")
	flags.Duration("stale-after", 0, "heartbeat silence after which a lock may be reclaimed")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (text, json)")

	_ = a.v.BindPFlag("config", flags.Lookup("config"))
	_ = a.v.BindPFlag("database.path", flags.Lookup("db"))
	_ = a.v.BindPFlag("lock.heartbeat_interval", flags.Lookup("heartbeat-interval"))
	_ = a.v.BindPFlag("lock.stale_after", flags.Lookup("stale-after"))
	_ = a.v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = a.v.BindPFlag("log.format", flags.Lookup("log-format"))

	root.AddCommand(
		newStatusCommand(a),
		newHoldCommand(a),
		newReleaseCommand(a),
		newVersionCommand(),
	)
	return root
}

func (a *app) init(logOut io.Writer) error {
	v := a.v
	config.SetDefaults(v)

	if cfgFile := v.GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("sharelock")
		v.SetConfigType("yaml")
		v.AddConfigPath(config.ConfigDir())
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("SHARELOCK")
	// e.g., SHARELOCK_LOCK_STALE_AFTER for lock.stale_after
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		// a missing default config file is fine, an explicit one must load
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || v.GetString("config") != "" {
			return fmt.Errorf("read config: %w", err)
		}
	}

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logging.New(cfg.Log.Level, cfg.Log.Format, logOut)

	store, err := storage.NewBoltDBStorage(cfg.Database.Path, storage.WithIOTimeout(cfg.Database.IOTimeout))
	if err != nil {
		return err
	}
	a.store = store

	a.mgr, err = manager.New(store, cfg.Manager(), manager.WithLogger(a.logger))
	return err
}
