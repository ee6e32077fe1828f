package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/dgnsrekt/sovits-player/internal/detect"
	"github.com/dgnsrekt/sovits-player/internal/tts"
	"github.com/dgnsrekt/sovits-player/internal/ttypes"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	detectClipboard bool
	detectRecord    bool

	detectCmd = &cobra.Command{
		Use:   "detect [SOURCE]",
		Short: "Show how a text would be narrated",
		Long: paragraph(fmt.Sprintf("\n%s characters, dialogue and narration in a text and show the voice each line gets, without calling the synthesis server.",
			keyword("Detect"))),
		Example: paragraph("sovits-player detect story.md\nsovits-player detect --mode dialogue_only story.md"),
		Args:    cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			src, err := sourceFromArgs(args, detectClipboard)
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			mode, err := detect.ParseMode(cfg.Detection.Mode)
			if err != nil {
				return err
			}
			quotes, err := detect.ParseQuoteStyle(cfg.Detection.QuotationStyle)
			if err != nil {
				return err
			}

			result := detect.New(mode, detect.WithQuoteStyle(quotes)).Detect(src.Text)
			fresh := newCharacters(cfg.Detection.Characters, result.Characters)
			if detectRecord && cfg.RecordCharacters(fresh) {
				if path := configPath(); path != "" {
					if err := tts.SaveConfig(cfg, path); err != nil {
						return err
					}
				}
			}
			tasks := detect.VoicesFromConfig(cfg).Tasks(result.Parts)

			out, err := renderDetection(mode, result, tasks, fresh)
			if err != nil {
				return err
			}
			fmt.Print(out)
			return nil
		},
	}
)

func init() {
	detectCmd.Flags().BoolVarP(&detectClipboard, "clipboard", "c", false, "read the text from the clipboard")
	detectCmd.Flags().BoolVar(&detectRecord, "record", false, "add new characters to the config file")
}

// newCharacters returns the names that have no voice setting yet.
func newCharacters(known map[string]ttypes.VoiceSetting, seen []string) []string {
	var fresh []string
	for _, name := range seen {
		if _, ok := known[name]; !ok {
			fresh = append(fresh, name)
		}
	}
	return fresh
}

// detectionMarkdown lays the result out as a markdown document.
func detectionMarkdown(mode detect.Mode, result detect.Result, tasks []ttypes.Task, fresh []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Detection (%s)\n\n", mode)

	if len(result.Parts) == 0 {
		b.WriteString("Nothing speakable was found.\n")
		return b.String()
	}

	b.WriteString("| # | Part | Who | Emotion | Text |\n|---|---|---|---|---|\n")
	for i, p := range result.Parts {
		fmt.Fprintf(&b, "| %d | %s | %s | %s | %s |\n", i+1, p.Type, cell(p.Character), cell(p.Emotion), cell(p.Text))
	}

	b.WriteString("\n## Voices\n\n")
	if len(tasks) == 0 {
		b.WriteString("Every line is muted or has no voice configured.\n")
	} else {
		b.WriteString("| Source | Voice | Version | Speed | Text |\n|---|---|---|---|---|\n")
		for _, t := range tasks {
			fmt.Fprintf(&b, "| %s | %s | %s | %.2f | %s |\n", cell(t.Source), cell(t.VoiceID), cell(t.Version), t.Speed, cell(t.Text))
		}
	}

	if len(fresh) > 0 {
		b.WriteString("\n## New characters\n\n")
		for _, name := range fresh {
			fmt.Fprintf(&b, "- %s (muted until a voice is set)\n", name)
		}
	}
	return b.String()
}

func renderDetection(mode detect.Mode, result detect.Result, tasks []ttypes.Task, fresh []string) (string, error) {
	md := detectionMarkdown(mode, result, tasks, fresh)
	if !term.IsTerminal(int(os.Stdout.Fd())) { //nolint:gosec
		return md, nil
	}

	width := 100
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 { //nolint:gosec
		width = w
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithColorProfile(lipgloss.ColorProfile()),
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("unable to create renderer: %w", err)
	}
	out, err := r.Render(md)
	if err != nil {
		return "", fmt.Errorf("unable to render markdown: %w", err)
	}
	return out, nil
}

// cell makes s safe inside a markdown table cell.
func cell(s string) string {
	if s == "" {
		return "-"
	}
	s = strings.Join(strings.Fields(s), " ")
	return strings.ReplaceAll(s, "|", `\|`)
}
