package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"golang.org/x/term"
)

var errNoInput = errors.New("no text given: pass a file, pipe text on stdin or use --clipboard")

// source is where the narrated text comes from.
type source struct {
	// Path of a local file, empty for stdin and the clipboard
	Path string
	Text string
}

// sourceFromArgs reads the text named by the command line.
func sourceFromArgs(args []string, fromClipboard bool) (*source, error) {
	if fromClipboard {
		if len(args) > 0 {
			return nil, errors.New("--clipboard does not take a file argument")
		}
		text, err := clipboard.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("unable to read clipboard: %w", err)
		}
		return &source{Text: text}, nil
	}

	arg := ""
	if len(args) > 0 {
		arg = args[0]
	}

	// from stdin
	if arg == "" || arg == "-" {
		if arg == "" && term.IsTerminal(int(os.Stdin.Fd())) { //nolint:gosec
			return nil, errNoInput
		}
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("unable to read stdin: %w", err)
		}
		return &source{Text: string(b)}, nil
	}

	path, err := filepath.Abs(arg)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", arg, err)
	}
	return &source{Path: path, Text: string(b)}, nil
}

// reload reads the file again.
func (s *source) reload() (string, error) {
	b, err := os.ReadFile(s.Path)
	if err != nil {
		return "", err
	}
	s.Text = string(b)
	return s.Text, nil
}

// watchSource calls onChange with the new text whenever the file is
// written. Bursts of events are coalesced. It returns when ctx is done.
func watchSource(ctx context.Context, src *source, onChange func(text string)) error {
	if src.Path == "" {
		return errors.New("--watch needs a file")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("unable to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	// Editors replace files, so watch the directory
	dir := filepath.Dir(src.Path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("unable to watch %s: %w", dir, err)
	}
	log.Info("fsnotify watching dir", "dir", dir)

	const settle = 200 * time.Millisecond
	timer := time.NewTimer(settle)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != src.Path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			log.Debug("fsnotify event", "file", event.Name, "event", event.Op)
			timer.Reset(settle)
		case <-timer.C:
			previous := src.Text
			text, err := src.reload()
			if err != nil {
				log.Warn("Could not reload file", "path", src.Path, "err", err)
				continue
			}
			if strings.TrimSpace(text) == strings.TrimSpace(previous) {
				continue
			}
			onChange(text)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Debug("fsnotify error", "dir", dir, "error", err)
		}
	}
}
