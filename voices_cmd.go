package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/sovits-player/internal/tts"
	"github.com/dgnsrekt/sovits-player/internal/tts/engines"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var voicesCmd = &cobra.Command{
	Use:     "voices",
	Short:   "List the voices of the synthesis server",
	Long:    paragraph(fmt.Sprintf("\n%s the voices the synthesis server offers for the configured API version, with their languages and emotions.", keyword("List"))),
	Example: paragraph("sovits-player voices\nsovits-player voices --api-version v2"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		engine, err := engines.NewSovitsEngine(engines.SovitsConfig{
			BaseURL:        cfg.API.BaseURL,
			Timeout:        cfg.API.Timeout,
			CatalogTimeout: cfg.API.CatalogTimeout,
			Logger:         log.WithPrefix("engine"),
		})
		if err != nil {
			return err
		}

		result := tts.CheckServer(cmd.Context(), engine, cfg)
		if !result.Available {
			fmt.Fprintln(os.Stderr, warning(tts.UserMessage(result.Error)))
			fmt.Fprintln(os.Stderr)
			fmt.Fprint(os.Stderr, result.Guidance)
			return result.Error
		}

		catalogs, err := tts.NewCatalogCache(engine, cfg.API.Version, 1)
		if err != nil {
			return err
		}
		start := time.Now()
		catalog, err := loadCatalog(cmd.Context(), catalogs)
		if err != nil {
			return err
		}
		return printVoices(os.Stdout, catalog, time.Since(start))
	},
}

func loadCatalog(ctx context.Context, catalogs *tts.CatalogCache) (*tts.Catalog, error) {
	catalog, err := catalogs.Load(ctx, "")
	if err != nil {
		return nil, err
	}
	if !catalog.Loaded() {
		return nil, errors.New("the server lists no voices")
	}
	return catalog, nil
}

func printVoices(w io.Writer, catalog *tts.Catalog, took time.Duration) error {
	emotions := 0
	for _, name := range catalog.Names() {
		voice, _ := catalog.Voice(name)
		if _, err := fmt.Fprintln(w, keyword(name)); err != nil {
			return err
		}
		for _, lang := range voice.Languages() {
			list := voice.Emotions[lang]
			emotions += len(list)
			if _, err := fmt.Fprintf(w, "  %s: %s\n", lang, strings.Join(list, ", ")); err != nil {
				return err
			}
		}
	}

	_, err := fmt.Fprintln(w, faint(fmt.Sprintf("\n%s %s, %s %s for %s (%s)",
		humanize.Comma(int64(catalog.Len())), plural(catalog.Len(), "voice"),
		humanize.Comma(int64(emotions)), plural(emotions, "emotion"),
		catalog.Version, took.Round(time.Millisecond))))
	return err
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
