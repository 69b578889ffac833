package connect

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/slidecast/internal/app/live"
	"github.com/osa030/slidecast/internal/app/notification"
	"github.com/osa030/slidecast/internal/app/playback"
	"github.com/osa030/slidecast/internal/domain/slide"
)

const testToken = "s3cret"

func newTestServer(t *testing.T) (*live.Session, *httptest.Server) {
	t.Helper()
	deck := &slide.Deck{
		Meta: slide.Meta{Title: "Remote"},
		Slides: []slide.Slide{
			{HTML: "<h1>One</h1>"},
			{HTML: "<h1>Two</h1>"},
			{HTML: "<h1>Three</h1>"},
		},
	}
	session := live.NewSession(deck, nil, playback.DefaultConfig(), notification.NewManager(0), nil)
	session.Run()

	path, handler := NewPresenterServiceHandler(
		NewPresenterService(session),
		connect.WithInterceptors(NewPresenterAuthInterceptor(testToken)),
	)
	assert.Equal(t, "/slidecast.v1.PresenterService/", path)

	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		srv.Close()
		session.Close()
	})
	return session, srv
}

func TestPresenterService_Navigation(t *testing.T) {
	_, srv := newTestServer(t)
	client := NewClient(srv.Client(), srv.URL, testToken)
	ctx := context.Background()

	st, err := client.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, "idle", st.State)
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, "Remote", st.Title)

	st, err = client.Start(ctx, "manual")
	require.NoError(t, err)
	assert.Equal(t, "running", st.State)
	assert.Equal(t, "manual", st.Mode)
	assert.Equal(t, 0, st.CurrentIndex)

	st, err = client.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.CurrentIndex)

	st, err = client.Prev(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, st.CurrentIndex)

	st, err = client.Stop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "idle", st.State)
}

func TestPresenterService_Errors(t *testing.T) {
	_, srv := newTestServer(t)
	ctx := context.Background()

	tests := []struct {
		name string
		call func(c *Client) error
		code connect.Code
	}{
		{
			name: "missing token",
			call: func(*Client) error {
				_, err := NewClient(srv.Client(), srv.URL, "").State(ctx)
				return err
			},
			code: connect.CodeUnauthenticated,
		},
		{
			name: "wrong token",
			call: func(*Client) error {
				_, err := NewClient(srv.Client(), srv.URL, "nope").Next(ctx)
				return err
			},
			code: connect.CodeUnauthenticated,
		},
		{
			name: "next before start",
			call: func(c *Client) error { _, err := c.Next(ctx); return err },
			code: connect.CodeFailedPrecondition,
		},
		{
			name: "unknown mode",
			call: func(c *Client) error { _, err := c.Start(ctx, "turbo"); return err },
			code: connect.CodeInvalidArgument,
		},
		{
			name: "auto without speech",
			call: func(c *Client) error { _, err := c.Start(ctx, "auto"); return err },
			code: connect.CodeFailedPrecondition,
		},
	}

	client := NewClient(srv.Client(), srv.URL, testToken)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call(client)
			require.Error(t, err)
			assert.Equal(t, tt.code, connect.CodeOf(err))
		})
	}
}

func TestPresenterService_ManualRestrictions(t *testing.T) {
	_, srv := newTestServer(t)
	client := NewClient(srv.Client(), srv.URL, testToken)
	ctx := context.Background()

	_, err := client.Start(ctx, "manual")
	require.NoError(t, err)

	_, err = client.Prev(ctx)
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))

	_, err = client.AdjustSpeed(ctx, 0.05)
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))

	_, err = client.TogglePause(ctx)
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))
}

func TestPresenterService_Watch(t *testing.T) {
	session, srv := newTestServer(t)
	client := NewClient(srv.Client(), srv.URL, testToken)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errDone := errors.New("done")
	var got []*notification.Notification
	err := client.Watch(ctx, func(n *notification.Notification) error {
		got = append(got, n)
		switch len(got) {
		case 1:
			require.NoError(t, session.Controller().Start(playback.ModeManual))
		case 3:
			return errDone
		}
		return nil
	})
	require.ErrorIs(t, err, errDone)

	require.Len(t, got, 3)
	assert.Equal(t, "snapshot", got[0].Type)
	assert.Equal(t, "Remote", got[0].Title)
	assert.Equal(t, "state_changed", got[1].Type)
	assert.Equal(t, "slide_changed", got[2].Type)
	assert.Equal(t, "<h1>One</h1>", got[2].HTML)
	assert.Equal(t, 3, got[2].Total)

	assert.Eventually(t, func() bool {
		return session.ViewerCount() == 0
	}, 2*time.Second, 10*time.Millisecond, "the watch stream is unsubscribed on disconnect")
}

func TestStateStructRoundTrip(t *testing.T) {
	in := playback.PlaybackState{
		State: "paused", Mode: "auto", CurrentIndex: 4, Total: 9,
		Running: true, Paused: true, Rate: 1.05, Pitch: 0.9, Voice: "Alex", Title: "T",
	}
	s, err := StateToStruct(in)
	require.NoError(t, err)
	assert.Equal(t, float64(4), s.Fields["current_index"].GetNumberValue())

	out, err := StructToState(s)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
