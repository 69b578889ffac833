package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	zlog "github.com/rs/zerolog/log"
	"golang.org/x/term"

	"github.com/osa030/slidecast/internal/app/live"
	"github.com/osa030/slidecast/internal/app/notification"
	"github.com/osa030/slidecast/internal/app/playback"
	"github.com/osa030/slidecast/internal/infra/config"
	"github.com/osa030/slidecast/internal/infra/terminal"
)

// completionWatcher forwards the complete notification to done.
type completionWatcher struct {
	done chan struct{}
}

func (c *completionWatcher) Send(n *notification.Notification) error {
	if n.Type == playback.EventComplete.String() {
		select {
		case c.done <- struct{}{}:
		default:
		}
	}
	return nil
}

// runPresent plays a deck in the terminal until the presenter quits or
// the presentation completes.
func runPresent(cfg *config.Config) error {
	deck, err := loadDeck(cfg, *presentInput)
	if err != nil {
		return err
	}

	speaker, err := newSpeaker(cfg)
	if err != nil {
		return err
	}

	mode, err := playback.ParseMode(firstNonEmpty(*presentMode, deck.Meta.Mode, cfg.Presenter.Mode))
	if err != nil {
		return err
	}
	if mode == playback.ModeAuto && speaker == nil {
		zlog.Warn().Msg("No speech backend available, falling back to manual mode")
		mode = playback.ModeManual
	}

	restore, raw, err := terminal.MakeRaw(os.Stdin)
	if err != nil {
		return err
	}
	defer restore()

	width := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = w
	}
	display, err := terminal.NewDisplay(os.Stdout, terminal.DisplayOptions{
		Width:   width,
		NoColor: *noColor,
		Raw:     raw,
		Clear:   raw,
	})
	if err != nil {
		return err
	}

	notifier := notification.NewManager(cfg.Server.NotificationTimeout())
	session := live.NewSession(deck, speaker, playbackConfig(cfg), notifier, nil)
	session.Run()
	defer session.Close()

	watcher := &completionWatcher{done: make(chan struct{}, 1)}
	if _, err := session.Subscribe(display); err != nil {
		return err
	}
	if _, err := session.Subscribe(watcher); err != nil {
		return err
	}

	controller := session.Controller()
	if err := controller.Start(mode); err != nil {
		return err
	}
	if mode == playback.ModeAuto {
		display.Message("space: pause/resume  <-/->: navigate  ,/.: slower/faster  q: quit")
	} else {
		display.Message("space/->: next  <-: previous  q: quit")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	keys := terminal.ReadKeys(ctx, os.Stdin)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	for {
		select {
		case key, ok := <-keys:
			if !ok {
				// Input closed; let an auto presentation finish on its own
				keys = nil
				if mode == playback.ModeManual {
					return nil
				}
				continue
			}
			quit, err := terminal.Dispatch(controller, key)
			if quit {
				_ = controller.Stop()
				return nil
			}
			if err != nil {
				display.Message("%v", err)
			}
		case <-watcher.done:
			return nil
		case <-session.Done():
			return nil
		case sig := <-sigCh:
			zlog.Info().Msgf("Received %s, stopping presentation", sig)
			_ = controller.Stop()
			return nil
		}
	}
}
