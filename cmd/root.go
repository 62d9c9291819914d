package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"bookload/internal/banner"
	"bookload/internal/cli"
	"bookload/internal/config"
	"bookload/internal/journey"
	"bookload/internal/runner"
	"bookload/internal/storage"
	"bookload/internal/tui"
	"bookload/internal/tui/result"
)

// Keys that steer the command itself rather than the load.
const (
	KeyTUI       = "TUI"
	KeyOut       = "OUT"
	KeyLogLevel  = "LOG_LEVEL"
	KeyLogFile   = "LOG_FILE"
	KeyNoHistory = "NO_HISTORY"
	KeyHistoryDB = "HISTORY_DB"
)

// ExitThresholds is the exit code for a run that breached a threshold.
const ExitThresholds = 99

var ErrThresholdsFailed = errors.New("one or more thresholds failed")

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "bookload",
	Short: "bookload - booking journey load generator",
	Long: `
bookload drives three flight-booking journeys (reserve, purchase, confirm)
against a target site at open-model arrival rates, then checks the
configured latency and failure-rate thresholds.

Every setting can come from a flag, an environment variable of the same
name (BASE_URL, RATE_J1, ...) or the config file.

Exit codes: 0 thresholds passed, 99 thresholds failed, 1 error.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runLoad,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the booking load (default command)",
	RunE:  runLoad,
}

func Execute() {
	// Custom Help with Banner
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		fmt.Println(banner.GetString())
		cmd.Usage()
	})

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		if errors.Is(err, ErrThresholdsFailed) {
			os.Exit(ExitThresholds)
		}
		os.Exit(1)
	}
}

// flagKeys binds each load flag to its configuration key.
var flagKeys = map[string]string{
	"base-url":         config.KeyBaseURL,
	"duration":         config.KeyDuration,
	"ramp-up":          config.KeyRampUp,
	"rate-j1":          config.KeyRateJ1,
	"rate-j2":          config.KeyRateJ2,
	"rate-j3":          config.KeyRateJ3,
	"time-unit":        config.KeyTimeUnit,
	"prealloc-vus":     config.KeyPreAllocated,
	"max-vus":          config.KeyMaxWorkers,
	"graceful-stop":    config.KeyGracefulStop,
	"queue-timeout":    config.KeyQueueTimeout,
	"think-min":        config.KeyThinkMin,
	"think-max":        config.KeyThinkMax,
	"timeout":          config.KeyTimeout,
	"bias-carrier":     config.KeyBiasCarrier,
	"bias-probability": config.KeyBiasProbability,
	"success-marker":   config.KeySuccessMarker,
	"p99-limit":        config.KeyP99Limit,
	"max-failure-rate": config.KeyMaxFailureRate,
	"tui":              KeyTUI,
	"out":              KeyOut,
	"log-level":        KeyLogLevel,
	"log-file":         KeyLogFile,
	"no-history":       KeyNoHistory,
	"history-db":       KeyHistoryDB,
}

func init() {
	cobra.OnInitialize(initConfig)

	v := viper.GetViper()
	config.SetDefaults(v)
	v.SetDefault(KeyLogLevel, "warn")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(dummyCmd)
	rootCmd.AddCommand(historyCmd)

	f := rootCmd.PersistentFlags()
	f.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.bookload.yaml)")
	f.String("history-db", "", "history database (default is $HOME/.bookload/history.db)")
	f.String("log-level", v.GetString(KeyLogLevel), "log level: debug, info, warn, error")
	f.String("log-file", "", "write logs to this file")

	f.StringP("base-url", "u", v.GetString(config.KeyBaseURL), "target site")
	f.StringP("duration", "d", v.GetString(config.KeyDuration), "steady-state duration")
	f.String("ramp-up", v.GetString(config.KeyRampUp), "ramp from 0 to the target rates over this long")
	f.Float64("rate-j1", v.GetFloat64(config.KeyRateJ1), "journey1 arrivals per time unit")
	f.Float64("rate-j2", v.GetFloat64(config.KeyRateJ2), "journey2 arrivals per time unit")
	f.Float64("rate-j3", v.GetFloat64(config.KeyRateJ3), "journey3 arrivals per time unit")
	f.String("time-unit", v.GetString(config.KeyTimeUnit), "unit the rates are expressed in")
	f.Int("prealloc-vus", v.GetInt(config.KeyPreAllocated), "workers allocated up front per journey")
	f.Int("max-vus", v.GetInt(config.KeyMaxWorkers), "worker ceiling per journey")
	f.String("graceful-stop", v.GetString(config.KeyGracefulStop), "grace period for in-flight journeys at the end")
	f.String("queue-timeout", v.GetString(config.KeyQueueTimeout), "how long an arrival may wait for a worker (0 drops at once)")
	f.String("think-min", v.GetString(config.KeyThinkMin), "minimum pause between steps")
	f.String("think-max", v.GetString(config.KeyThinkMax), "maximum pause between steps")
	f.String("timeout", v.GetString(config.KeyTimeout), "HTTP request timeout")
	f.String("bias-carrier", v.GetString(config.KeyBiasCarrier), "carrier journey3 prefers")
	f.Float64("bias-probability", v.GetFloat64(config.KeyBiasProbability), "chance journey3 restricts itself to the preferred carrier")
	f.String("success-marker", v.GetString(config.KeySuccessMarker), "text the confirmation page must contain")
	f.String("p99-limit", v.GetString(config.KeyP99Limit), "p99 limit for each step")
	f.Float64("max-failure-rate", v.GetFloat64(config.KeyMaxFailureRate), "maximum share of failed requests")
	f.Bool("tui", false, "show the live dashboard")
	f.StringP("out", "o", "", "Output filename prefix for auto-reporting")
	f.Bool("no-history", false, "do not record the run in history")

	bindFlags(v, rootCmd.PersistentFlags())
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) {
	fs.VisitAll(func(fl *pflag.Flag) {
		if key, ok := flagKeys[fl.Name]; ok {
			// Only fails for a nil flag.
			_ = v.BindPFlag(key, fl)
		}
	})
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.SetConfigType("yaml")
			viper.SetConfigName(".bookload")
		}
	}
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil && cfgFile != "" {
		fmt.Fprintf(os.Stderr, "⚠️  could not read config %s: %v\n", cfgFile, err)
	}
}

// newLogger builds the process logger. The dashboard owns the terminal, so
// with it active logs go to logFile or nowhere.
func newLogger(level, logFile string, dashboard bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", KeyLogLevel, err)
	}

	var zc zap.Config
	if lvl == zapcore.DebugLevel {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)

	switch {
	case logFile != "":
		zc.OutputPaths = []string{logFile}
		zc.ErrorOutputPaths = []string{logFile}
	case dashboard:
		return zap.NewNop(), nil
	default:
		zc.OutputPaths = []string{"stderr"}
	}
	return zc.Build()
}

func historyPath(v *viper.Viper) (string, error) {
	if p := v.GetString(KeyHistoryDB); p != "" {
		return p, nil
	}
	return storage.DefaultPath()
}

func runLoad(cmd *cobra.Command, _ []string) error {
	v := viper.GetViper()

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	dashboard := v.GetBool(KeyTUI)
	logger, err := newLogger(v.GetString(KeyLogLevel), v.GetString(KeyLogFile), dashboard)
	if err != nil {
		return err
	}
	defer logger.Sync()

	specs, err := journey.Predefined(cfg, journey.NewTemplateEngine())
	if err != nil {
		return err
	}
	r, err := runner.NewRunner(cfg, specs, nil, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	var rep runner.Report
	if dashboard {
		rep, err = tui.Run(ctx, r, cfg.BaseURL)
		if err == nil {
			m := result.NewModel(storage.FromReport(rep, cfg.BaseURL))
			m.Hint = ""
			fmt.Fprintln(out, m.View())
		}
	} else {
		rep, err = cli.Start(ctx, out, r)
	}
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	if err := cli.HandleAutoReport(out, v.GetString(KeyOut), r, rep); err != nil {
		return err
	}

	if !v.GetBool(KeyNoHistory) {
		saveHistory(v, logger, storage.FromReport(rep, cfg.BaseURL))
	}

	if !rep.Passed {
		return ErrThresholdsFailed
	}
	return nil
}

// saveHistory never fails the run; a lost history entry is only logged.
func saveHistory(v *viper.Viper, logger *zap.Logger, item storage.HistoryItem) {
	path, err := historyPath(v)
	if err != nil {
		logger.Warn("history disabled", zap.Error(err))
		return
	}
	store, err := storage.Open(path)
	if err != nil {
		logger.Warn("history disabled", zap.Error(err))
		return
	}
	defer store.Close()

	if err := store.Save(item); err != nil {
		logger.Warn("could not save run", zap.String("run_id", item.ID), zap.Error(err))
	}
}
