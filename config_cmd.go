package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/x/editor"
	"github.com/dgnsrekt/sovits-player/internal/tts"
	"github.com/dgnsrekt/sovits-player/internal/ttypes"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	configPrintPath bool
	configCheck     bool

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Edit the voice and server settings",
		Long: paragraph(fmt.Sprintf("\n%s the file that maps characters to voices and points at the synthesis server. EDITOR picks the editor; a commented example is written first if the file is missing. The file is checked after every edit.",
			keyword("Edit"))),
		Example: paragraph("sovits-player config\nsovits-player config --check\nsovits-player config --path"),
		Args:    cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			path, err := configTarget()
			if err != nil {
				return err
			}
			if configPrintPath {
				fmt.Println(path)
				return nil
			}

			if err := ensureConfigFile(); err != nil {
				return err
			}
			if !configCheck {
				if err := editFile(path); err != nil {
					return err
				}
			}

			cfg, err := tts.LoadConfigFile(path)
			if err != nil {
				fmt.Fprintln(os.Stderr, warning(tts.UserMessage(err)))
				return err
			}
			return summarizeConfig(os.Stdout, path, cfg)
		},
	}
)

func init() {
	configCmd.Flags().BoolVar(&configPrintPath, "path", false, "print the config file path and exit")
	configCmd.Flags().BoolVar(&configCheck, "check", false, "check the config file without opening an editor")
}

// configTarget is the file the config command works on.
func configTarget() (string, error) {
	path := configFile
	if path == "" {
		path = viper.ConfigFileUsed()
	}
	if path == "" {
		return "", errors.New("no config file location found")
	}
	if ext := filepath.Ext(path); ext != ".yaml" && ext != ".yml" {
		return "", fmt.Errorf("%q is not a YAML file: use .yaml or .yml", path)
	}
	return path, nil
}

func editFile(path string) error {
	c, err := editor.Cmd(appName, path)
	if err != nil {
		return fmt.Errorf("unable to find an editor: %w", err)
	}
	c.Stdin, c.Stdout, c.Stderr = os.Stdin, os.Stdout, os.Stderr
	if err := c.Run(); err != nil {
		return fmt.Errorf("editor failed: %w", err)
	}
	return nil
}

// ensureConfigFile writes the commented example config when the file does
// not exist yet.
func ensureConfigFile() error {
	path, err := configTarget()
	if err != nil {
		return err
	}
	configFile = path

	_, err = os.Stat(path)
	if err == nil {
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("unable to stat config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("unable to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(tts.GenerateExampleConfig()), 0o600); err != nil {
		return fmt.Errorf("unable to write config file: %w", err)
	}
	return nil
}

// summarizeConfig prints where narration will go and who gets which voice.
func summarizeConfig(w io.Writer, path string, cfg *tts.Config) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", keyword("Config"), path)
	fmt.Fprintf(&b, "  server   %s (api %s)\n", cfg.API.BaseURL, cfg.API.Version)
	fmt.Fprintf(&b, "  mode     %s, %s quotes\n", cfg.Detection.Mode, cfg.Detection.QuotationStyle)
	fmt.Fprintf(&b, "  voice    %s\n", cell(cfg.Detection.DefaultVoice))

	names := make([]string, 0, len(cfg.Detection.Characters))
	for name := range cfg.Detection.Characters {
		names = append(names, name)
	}
	sort.Strings(names)

	muted := 0
	for _, name := range names {
		setting := cfg.Detection.Characters[name]
		if setting.Voice == "" || setting.Voice == ttypes.DoNotPlay {
			muted++
			continue
		}
		line := fmt.Sprintf("  %-8s %s", name, setting.Voice)
		if setting.Version != "" {
			line += " @" + setting.Version
		}
		if setting.Speed != nil {
			line += fmt.Sprintf(" %.2fx", *setting.Speed)
		}
		b.WriteString(line + "\n")
	}
	if muted > 0 {
		b.WriteString(faint(fmt.Sprintf("  %d muted %s", muted, plural(muted, "character"))) + "\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}
