// Package main provides the entry point for the sovits-player CLI application.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/sovits-player/internal/detect"
	"github.com/dgnsrekt/sovits-player/internal/tts"
	"github.com/dgnsrekt/sovits-player/ui"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

const appName = "sovits-player"

// SOVITS_PLAYER_API_BASE_URL sets api.base_url
var envKeyReplacer = strings.NewReplacer(".", "_")

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile    string
	fromClipboard bool
	watch         bool
	headless      bool
	debug         bool

	rootCmd = &cobra.Command{
		Use:   "sovits-player [SOURCE]",
		Short: "Narrate chat transcripts with GPT-SoVITS voices",
		Long: paragraph(
			fmt.Sprintf("\nNarrate chat transcripts with %s. Characters, dialogue and narration are detected in the text and voiced through a GPT-SoVITS API server.", keyword("GPT-SoVITS voices")),
		),
		Example: paragraph("sovits-player story.md\ncat story.md | sovits-player -\nsovits-player --clipboard\nsovits-player --watch chat.log"),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.MaximumNArgs(1),
		ValidArgsFunction: func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
			return nil, cobra.ShellCompDirectiveDefault
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
		RunE: execute,
	}
)

// validateOptions applies flags that change process-wide state.
func validateOptions(cmd *cobra.Command) error {
	if debug || viper.GetBool("debug") {
		log.SetLevel(log.DebugLevel)
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config file %s: %w", configFile, err)
		}
		log.Debug("Using configuration file", "path", configFile)
	}

	if watch && fromClipboard {
		return errors.New("--watch and --clipboard cannot be combined")
	}
	if cmd.Flags().Changed("speed") {
		if err := tts.ValidateSpeed(viper.GetFloat64("generation.speed")); err != nil {
			return fmt.Errorf("--speed: %w", err)
		}
	}
	return nil
}

// loadConfig reads the merged configuration.
func loadConfig() (*tts.Config, error) {
	cfg, err := tts.LoadConfig(viper.GetViper())
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func execute(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	src, err := sourceFromArgs(args, fromClipboard)
	if err != nil {
		return err
	}
	if watch && src.Path == "" {
		return errors.New("--watch needs a file argument")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(cfg, configPath(), nil)
	if err != nil {
		return err
	}
	defer a.Close()
	a.setText(src.Text)

	if addr := cfg.Metrics.Addr; addr != "" {
		a.serveMetrics(addr)
	}

	if err := a.loadCatalogs(ctx); err != nil {
		// Start reports the empty catalog; explain how to fix it here.
		fmt.Fprintln(os.Stderr, warning(describe(err, cfg)))
	}

	if headless || !term.IsTerminal(int(os.Stdout.Fd())) { //nolint:gosec
		return runHeadless(ctx, a, src, watch)
	}
	return runTUI(ctx, a, src)
}

func runTUI(ctx context.Context, a *app, src *source) error {
	// Read environment to get debugging stuff
	cfg, err := env.ParseAs[ui.Config]()
	if err != nil {
		return fmt.Errorf("error parsing config: %v", err)
	}
	if src.Path != "" {
		cfg.Title = filepath.Base(src.Path)
	}
	cfg.Watching = watch

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := ui.NewProgram(ctx, cfg, a.session, a.tasks, a.speed)
	a.events.attach(ui.Hooks(p))

	if watch {
		go func() {
			err := watchSource(ctx, src, func(text string) {
				p.Send(ui.TextChanged{})
				a.textChanged(ctx, text)
			})
			if err != nil {
				log.Error("Watch stopped", "err", err)
			}
		}()
	}

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("unable to run tui program: %w", err)
	}
	return nil
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = rootCmd.ExecuteContext(ctx)
	stop()
	_ = closer()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "log debug output to the log file")
	rootCmd.PersistentFlags().String("server", "", "synthesis server address")
	rootCmd.PersistentFlags().String("api-version", "", "default API version of the voices")
	rootCmd.PersistentFlags().String("mode", "", fmt.Sprintf("detection mode (%s)", detectModes()))
	rootCmd.PersistentFlags().String("quotes", "", "quotation style (japanese/western)")
	rootCmd.Flags().BoolVarP(&fromClipboard, "clipboard", "c", false, "read the text from the clipboard")
	rootCmd.Flags().BoolVarP(&watch, "watch", "w", false, "narrate the file again whenever it changes")
	rootCmd.Flags().BoolVar(&headless, "headless", false, "play without the TUI")
	rootCmd.Flags().Float64P("speed", "s", 0, "speaking rate (0.5 to 2.0)")
	rootCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address")

	// Config bindings
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("api.base_url", rootCmd.PersistentFlags().Lookup("server"))
	_ = viper.BindPFlag("api.version", rootCmd.PersistentFlags().Lookup("api-version"))
	_ = viper.BindPFlag("detection.mode", rootCmd.PersistentFlags().Lookup("mode"))
	_ = viper.BindPFlag("detection.quotation_style", rootCmd.PersistentFlags().Lookup("quotes"))
	_ = viper.BindPFlag("generation.speed", rootCmd.Flags().Lookup("speed"))
	_ = viper.BindPFlag("metrics.addr", rootCmd.Flags().Lookup("metrics-addr"))

	tts.SetDefaults(viper.GetViper())

	rootCmd.AddCommand(configCmd, manCmd, voicesCmd, detectCmd)
}

func detectModes() string {
	names := make([]string, 0, len(detect.Modes))
	for _, m := range detect.Modes {
		names = append(names, string(m))
	}
	return fmt.Sprint(names)
}

// configPath is where newly detected characters are written.
func configPath() string {
	if configFile != "" {
		return configFile
	}
	return viper.ConfigFileUsed()
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, appName)
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, appName)}, dirs...)
	}

	if c := os.Getenv("SOVITS_PLAYER_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName(appName)
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("sovits_player")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	configFile = filepath.Join(dirs[0], appName+".yml")
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
		return
	}
	viper.SetConfigFile(configFile)
	if err := viper.ReadInConfig(); err != nil {
		log.Warn("Could not read default configuration", "err", err)
	}
}
