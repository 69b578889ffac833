package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"

	apiconnect "github.com/osa030/slidecast/internal/api/connect"
	"github.com/osa030/slidecast/internal/app/notification"
	"github.com/osa030/slidecast/internal/app/playback"
	"github.com/osa030/slidecast/internal/infra/config"
)

var (
	remoteCmd    = app.Command("remote", "Control a live presentation on a running server")
	remoteServer = remoteCmd.Flag("server", "Server address").Default("http://localhost:8080").String()
	remoteToken  = remoteCmd.Flag("token", "Presenter token (or set SLIDECAST_PRESENTER_TOKEN env)").Envar("SLIDECAST_PRESENTER_TOKEN").String()

	remoteStateCmd  = remoteCmd.Command("state", "Show the playback state").Default()
	remoteStartCmd  = remoteCmd.Command("start", "Start the presentation")
	remoteStartMode = remoteStartCmd.Arg("mode", "Playback mode").Default("auto").Enum("auto", "manual")
	remoteNextCmd   = remoteCmd.Command("next", "Go to the next slide")
	remotePrevCmd   = remoteCmd.Command("prev", "Go to the previous slide")
	remotePauseCmd  = remoteCmd.Command("pause", "Pause or resume narration")
	remoteFasterCmd = remoteCmd.Command("faster", "Increase the speech rate")
	remoteSlowerCmd = remoteCmd.Command("slower", "Decrease the speech rate")
	remoteStopCmd   = remoteCmd.Command("stop", "Stop the presentation")
	remoteWatchCmd  = remoteCmd.Command("watch", "Print presentation updates")
)

// runRemote executes a remote subcommand against the presenter service.
func runRemote(cfg *config.Config, command string) error {
	token := firstNonEmpty(*remoteToken, cfg.Presenter.Token)
	client := apiconnect.NewClient(http.DefaultClient, *remoteServer, token)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var (
		st  playback.PlaybackState
		err error
	)
	switch command {
	case remoteStateCmd.FullCommand():
		st, err = client.State(ctx)
	case remoteStartCmd.FullCommand():
		st, err = client.Start(ctx, *remoteStartMode)
	case remoteNextCmd.FullCommand():
		st, err = client.Next(ctx)
	case remotePrevCmd.FullCommand():
		st, err = client.Prev(ctx)
	case remotePauseCmd.FullCommand():
		st, err = client.TogglePause(ctx)
	case remoteFasterCmd.FullCommand():
		st, err = client.AdjustSpeed(ctx, playback.SpeedStep)
	case remoteSlowerCmd.FullCommand():
		st, err = client.AdjustSpeed(ctx, -playback.SpeedStep)
	case remoteStopCmd.FullCommand():
		st, err = client.Stop(ctx)
	case remoteWatchCmd.FullCommand():
		return watch(ctx, client)
	default:
		return errors.Newf("unknown command %q", command)
	}
	if err != nil {
		return err
	}
	printState(st)
	return nil
}

func watch(ctx context.Context, client *apiconnect.Client) error {
	err := client.Watch(ctx, func(n *notification.Notification) error {
		switch n.Type {
		case "chunk_spoken":
			fmt.Printf("  > %s\n", n.Caption)
		case "complete":
			fmt.Println(n.Message)
		default:
			fmt.Printf("#%d %s: [%s] %s rate=%.2f\n",
				n.SequenceNo, n.Type, position(n.Index, n.Total, n.State), n.State, n.Rate)
		}
		return nil
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func printState(st playback.PlaybackState) {
	fmt.Println("\n=== PRESENTATION STATE ===")
	if st.Title != "" {
		fmt.Printf("Title: %s\n", st.Title)
	}
	fmt.Printf("State: %s\n", st.State)
	if st.Mode != "" {
		fmt.Printf("Mode: %s\n", st.Mode)
	}
	fmt.Printf("Slide: %s\n", position(st.CurrentIndex, st.Total, st.State))
	fmt.Printf("Paused: %v\n", st.Paused)
	fmt.Printf("Rate: %.2f\n", st.Rate)
	fmt.Printf("Pitch: %.2f\n", st.Pitch)
	if st.Voice != "" {
		fmt.Printf("Voice: %s\n", st.Voice)
	}
	fmt.Println()
}

func position(index, total int, state string) string {
	if state == playback.StateIdle.String() {
		return fmt.Sprintf("-/%d", total)
	}
	return fmt.Sprintf("%d/%d", index+1, total)
}
