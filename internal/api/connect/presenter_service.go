// Package connect provides Connect RPC service implementations.
package connect

import (
	"context"
	"net/http"
	"sync"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/osa030/slidecast/internal/app/live"
	"github.com/osa030/slidecast/internal/app/notification"
	"github.com/osa030/slidecast/internal/app/playback"
)

// PresenterServiceName is the fully-qualified name of the PresenterService.
const PresenterServiceName = "slidecast.v1.PresenterService"

// Procedure paths.
const (
	GetStateProcedure    = "/" + PresenterServiceName + "/GetState"
	StartProcedure       = "/" + PresenterServiceName + "/Start"
	NextProcedure        = "/" + PresenterServiceName + "/Next"
	PrevProcedure        = "/" + PresenterServiceName + "/Prev"
	TogglePauseProcedure = "/" + PresenterServiceName + "/TogglePause"
	AdjustSpeedProcedure = "/" + PresenterServiceName + "/AdjustSpeed"
	StopProcedure        = "/" + PresenterServiceName + "/Stop"
	WatchProcedure       = "/" + PresenterServiceName + "/Watch"
)

// PresenterService drives a live session remotely.
type PresenterService struct {
	session *live.Session
}

// NewPresenterService creates a new PresenterService.
func NewPresenterService(session *live.Session) *PresenterService {
	return &PresenterService{session: session}
}

// NewPresenterServiceHandler builds an HTTP handler serving every
// procedure of svc. It returns the path prefix to mount it on.
func NewPresenterServiceHandler(svc *PresenterService, opts ...connect.HandlerOption) (string, http.Handler) {
	mux := http.NewServeMux()
	mux.Handle(GetStateProcedure, connect.NewUnaryHandler(GetStateProcedure, svc.GetState, opts...))
	mux.Handle(StartProcedure, connect.NewUnaryHandler(StartProcedure, svc.Start, opts...))
	mux.Handle(NextProcedure, connect.NewUnaryHandler(NextProcedure, svc.Next, opts...))
	mux.Handle(PrevProcedure, connect.NewUnaryHandler(PrevProcedure, svc.Prev, opts...))
	mux.Handle(TogglePauseProcedure, connect.NewUnaryHandler(TogglePauseProcedure, svc.TogglePause, opts...))
	mux.Handle(AdjustSpeedProcedure, connect.NewUnaryHandler(AdjustSpeedProcedure, svc.AdjustSpeed, opts...))
	mux.Handle(StopProcedure, connect.NewUnaryHandler(StopProcedure, svc.Stop, opts...))
	mux.Handle(WatchProcedure, connect.NewServerStreamHandler(WatchProcedure, svc.Watch, opts...))
	return "/" + PresenterServiceName + "/", mux
}

// GetState returns the current playback state.
func (s *PresenterService) GetState(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	return s.stateResponse()
}

// Start starts the presentation in the requested mode ("auto" or "manual").
func (s *PresenterService) Start(
	ctx context.Context,
	req *connect.Request[wrapperspb.StringValue],
) (*connect.Response[structpb.Struct], error) {
	mode, err := playback.ParseMode(req.Msg.GetValue())
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	if err := s.session.Controller().Start(mode); err != nil {
		return nil, toConnectError(err)
	}
	zlog.Info().Msgf("presenter: started remotely: mode=%s", mode)
	return s.stateResponse()
}

// Next advances one slide.
func (s *PresenterService) Next(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	if err := s.session.Controller().Next(); err != nil {
		return nil, toConnectError(err)
	}
	return s.stateResponse()
}

// Prev goes back one slide.
func (s *PresenterService) Prev(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	if err := s.session.Controller().Prev(); err != nil {
		return nil, toConnectError(err)
	}
	return s.stateResponse()
}

// TogglePause pauses or resumes narration.
func (s *PresenterService) TogglePause(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	if err := s.session.Controller().TogglePause(); err != nil {
		return nil, toConnectError(err)
	}
	return s.stateResponse()
}

// AdjustSpeed changes the narration rate by the given delta.
func (s *PresenterService) AdjustSpeed(
	ctx context.Context,
	req *connect.Request[wrapperspb.DoubleValue],
) (*connect.Response[structpb.Struct], error) {
	if _, err := s.session.Controller().AdjustSpeed(req.Msg.GetValue()); err != nil {
		return nil, toConnectError(err)
	}
	return s.stateResponse()
}

// Stop returns the presentation to idle.
func (s *PresenterService) Stop(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	if err := s.session.Controller().Stop(); err != nil {
		return nil, toConnectError(err)
	}
	return s.stateResponse()
}

// Watch streams live notifications, starting with a snapshot.
func (s *PresenterService) Watch(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
	stream *connect.ServerStream[structpb.Struct],
) error {
	adapter := &notificationStreamAdapter{stream: stream}
	subscriptionID, err := s.session.Subscribe(adapter)
	if err != nil {
		return connect.NewError(connect.CodeUnavailable, err)
	}

	// Wait for client disconnect or session end
	select {
	case <-ctx.Done():
	case <-s.session.Done():
	}

	s.session.Unsubscribe(subscriptionID)
	return nil
}

func (s *PresenterService) stateResponse() (*connect.Response[structpb.Struct], error) {
	st, err := StateToStruct(s.session.Controller().State())
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(st), nil
}

// toConnectError maps controller errors to RPC codes.
func toConnectError(err error) error {
	switch {
	case errors.Is(err, playback.ErrNotIdle),
		errors.Is(err, playback.ErrNotRunning),
		errors.Is(err, playback.ErrComplete),
		errors.Is(err, playback.ErrNotAuto),
		errors.Is(err, playback.ErrAtFirstSlide),
		errors.Is(err, playback.ErrNarrationUnavailable):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, playback.ErrClosed):
		return connect.NewError(connect.CodeUnavailable, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}

// StateToStruct encodes a playback state as a protobuf Struct.
func StateToStruct(st playback.PlaybackState) (*structpb.Struct, error) {
	var m map[string]any
	if err := mapstructure.Decode(st, &m); err != nil {
		return nil, errors.Wrap(err, "failed to encode state")
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode state")
	}
	return out, nil
}

// StructToState decodes a protobuf Struct produced by StateToStruct.
func StructToState(s *structpb.Struct) (playback.PlaybackState, error) {
	var st playback.PlaybackState
	if err := decodeWeak(s.AsMap(), "mapstructure", &st); err != nil {
		return st, errors.Wrap(err, "failed to decode state")
	}
	return st, nil
}

// NotificationToStruct encodes a notification using its JSON field names.
func NotificationToStruct(n *notification.Notification) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"sequence_no": n.SequenceNo,
		"type":        n.Type,
		"index":       n.Index,
		"total":       n.Total,
		"state":       n.State,
		"mode":        n.Mode,
		"paused":      n.Paused,
		"rate":        n.Rate,
		"title":       n.Title,
		"html":        n.HTML,
		"caption":     n.Caption,
		"message":     n.Message,
	})
}

// StructToNotification decodes a Struct produced by NotificationToStruct.
func StructToNotification(s *structpb.Struct) (*notification.Notification, error) {
	var n notification.Notification
	if err := decodeWeak(s.AsMap(), "json", &n); err != nil {
		return nil, errors.Wrap(err, "failed to decode notification")
	}
	return &n, nil
}

func decodeWeak(input map[string]any, tag string, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          tag,
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

// notificationStreamAdapter adapts connect.ServerStream to notification.Stream.
type notificationStreamAdapter struct {
	mu     sync.Mutex
	stream *connect.ServerStream[structpb.Struct]
}

func (a *notificationStreamAdapter) Send(n *notification.Notification) error {
	msg, err := NotificationToStruct(n)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stream.Send(msg)
}
