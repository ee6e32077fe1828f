package main

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/sovits-player/internal/session"
	"github.com/dgnsrekt/sovits-player/internal/ttypes"
)

// runHeadless narrates the text without a TUI, printing notifications to
// stderr. Without watch it returns once the session ends; the error of a
// failed session becomes the exit status.
func runHeadless(ctx context.Context, a *app, src *source, watch bool) error {
	ended := make(chan struct{}, 1)

	var (
		mu     sync.Mutex
		failed error
	)
	a.events.attach(
		func(n session.Notification) {
			line := n.Message
			switch n.Level {
			case session.LevelError:
				line = warning(line)
				mu.Lock()
				failed = n.Err
				mu.Unlock()
			case session.LevelWarn:
				line = warning(line)
			}
			fmt.Fprintln(os.Stderr, line)
		},
		func(p ttypes.Phase) {
			if p.Active() {
				return
			}
			select {
			case ended <- struct{}{}:
			default:
			}
		},
		func(index int, item *ttypes.PlaybackItem) {
			who := item.Task.Source
			if who == "" {
				who = item.Task.VoiceID
			}
			fmt.Fprintln(os.Stderr, faint(fmt.Sprintf("%d/%d %s", index+1, a.session.QueueLength(), who)))
		},
	)

	if err := a.session.Start(ctx, a.tasks()); err != nil && !watch {
		return err
	}

	if watch {
		go func() {
			if err := watchSource(ctx, src, func(text string) {
				a.textChanged(ctx, text)
			}); err != nil {
				log.Error("Watch stopped", "err", err)
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			a.session.Stop()
			return nil
		case <-ended:
			if watch {
				continue
			}
			mu.Lock()
			defer mu.Unlock()
			return failed
		}
	}
}
