package connect

import (
	"context"
	"strings"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/osa030/slidecast/internal/app/notification"
	"github.com/osa030/slidecast/internal/app/playback"
)

// Client calls a remote PresenterService.
type Client struct {
	token string

	getState    *connect.Client[emptypb.Empty, structpb.Struct]
	start       *connect.Client[wrapperspb.StringValue, structpb.Struct]
	next        *connect.Client[emptypb.Empty, structpb.Struct]
	prev        *connect.Client[emptypb.Empty, structpb.Struct]
	togglePause *connect.Client[emptypb.Empty, structpb.Struct]
	adjustSpeed *connect.Client[wrapperspb.DoubleValue, structpb.Struct]
	stop        *connect.Client[emptypb.Empty, structpb.Struct]
	watch       *connect.Client[emptypb.Empty, structpb.Struct]
}

// NewClient creates a client for the server at baseURL.
func NewClient(httpClient connect.HTTPClient, baseURL, token string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	return &Client{
		token:       token,
		getState:    connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+GetStateProcedure, opts...),
		start:       connect.NewClient[wrapperspb.StringValue, structpb.Struct](httpClient, baseURL+StartProcedure, opts...),
		next:        connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+NextProcedure, opts...),
		prev:        connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+PrevProcedure, opts...),
		togglePause: connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+TogglePauseProcedure, opts...),
		adjustSpeed: connect.NewClient[wrapperspb.DoubleValue, structpb.Struct](httpClient, baseURL+AdjustSpeedProcedure, opts...),
		stop:        connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+StopProcedure, opts...),
		watch:       connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+WatchProcedure, opts...),
	}
}

// State returns the remote playback state.
func (c *Client) State(ctx context.Context) (playback.PlaybackState, error) {
	return callWith(ctx, c, c.getState, &emptypb.Empty{})
}

// Start starts the remote presentation in mode ("auto" or "manual").
func (c *Client) Start(ctx context.Context, mode string) (playback.PlaybackState, error) {
	return callWith(ctx, c, c.start, wrapperspb.String(mode))
}

// Next advances one slide.
func (c *Client) Next(ctx context.Context) (playback.PlaybackState, error) {
	return callWith(ctx, c, c.next, &emptypb.Empty{})
}

// Prev goes back one slide.
func (c *Client) Prev(ctx context.Context) (playback.PlaybackState, error) {
	return callWith(ctx, c, c.prev, &emptypb.Empty{})
}

// TogglePause pauses or resumes narration.
func (c *Client) TogglePause(ctx context.Context) (playback.PlaybackState, error) {
	return callWith(ctx, c, c.togglePause, &emptypb.Empty{})
}

// AdjustSpeed changes the narration rate by delta.
func (c *Client) AdjustSpeed(ctx context.Context, delta float64) (playback.PlaybackState, error) {
	return callWith(ctx, c, c.adjustSpeed, wrapperspb.Double(delta))
}

// Stop returns the remote presentation to idle.
func (c *Client) Stop(ctx context.Context) (playback.PlaybackState, error) {
	return callWith(ctx, c, c.stop, &emptypb.Empty{})
}

// Watch calls fn for each live notification until the stream ends, ctx is
// done or fn returns an error.
func (c *Client) Watch(ctx context.Context, fn func(*notification.Notification) error) error {
	ctx, cancel := context.WithCancel(ctx)
	stream, err := c.watch.CallServerStream(ctx, newRequest(c.token, &emptypb.Empty{}))
	if err != nil {
		cancel()
		return err
	}
	// Cancel first so closing does not wait on an idle stream.
	defer func() {
		cancel()
		_ = stream.Close()
	}()

	for stream.Receive() {
		n, err := StructToNotification(stream.Msg())
		if err != nil {
			return err
		}
		if err := fn(n); err != nil {
			return err
		}
	}
	return stream.Err()
}

func callWith[Req any](
	ctx context.Context,
	c *Client,
	client *connect.Client[Req, structpb.Struct],
	msg *Req,
) (playback.PlaybackState, error) {
	resp, err := client.CallUnary(ctx, newRequest(c.token, msg))
	if err != nil {
		return playback.PlaybackState{}, err
	}
	return StructToState(resp.Msg)
}

func newRequest[T any](token string, msg *T) *connect.Request[T] {
	req := connect.NewRequest(msg)
	if token != "" {
		req.Header().Set(PresenterTokenHeader, token)
	}
	return req
}
