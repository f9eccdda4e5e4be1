package api

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/victornm/quizbox/internal/domain"
	"github.com/victornm/quizbox/internal/errors"
	"github.com/victornm/quizbox/internal/leaderboard"
	"github.com/victornm/quizbox/internal/session"
)

// SessionServiceName is the gRPC service name. Requests and responses are
// google.protobuf.Struct messages shaped like the HTTP JSON bodies.
const SessionServiceName = "quizbox.v1.SessionService"

// SessionServer is the gRPC session service.
type SessionServer interface {
	CreateSession(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	GetSession(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Join(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Start(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	SubmitAnswer(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Quit(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	RequestEnd(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Resume(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	EndSession(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	GetLeaderboard(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	WatchSession(in *structpb.Struct, stream grpc.ServerStream) error
}

var sessionServiceDesc = grpc.ServiceDesc{
	ServiceName: SessionServiceName,
	HandlerType: (*SessionServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateSession", Handler: unaryHandler("CreateSession", SessionServer.CreateSession)},
		{MethodName: "GetSession", Handler: unaryHandler("GetSession", SessionServer.GetSession)},
		{MethodName: "Join", Handler: unaryHandler("Join", SessionServer.Join)},
		{MethodName: "Start", Handler: unaryHandler("Start", SessionServer.Start)},
		{MethodName: "SubmitAnswer", Handler: unaryHandler("SubmitAnswer", SessionServer.SubmitAnswer)},
		{MethodName: "Quit", Handler: unaryHandler("Quit", SessionServer.Quit)},
		{MethodName: "RequestEnd", Handler: unaryHandler("RequestEnd", SessionServer.RequestEnd)},
		{MethodName: "Resume", Handler: unaryHandler("Resume", SessionServer.Resume)},
		{MethodName: "EndSession", Handler: unaryHandler("EndSession", SessionServer.EndSession)},
		{MethodName: "GetLeaderboard", Handler: unaryHandler("GetLeaderboard", SessionServer.GetLeaderboard)},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchSession",
			Handler:       watchSessionHandler,
			ServerStreams: true,
		},
	},
	Metadata: "quizbox/v1/session.proto",
}

func unaryHandler(
	method string,
	call func(SessionServer, context.Context, *structpb.Struct) (*structpb.Struct, error),
) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}

		if interceptor == nil {
			return call(srv.(SessionServer), ctx, in)
		}

		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + SessionServiceName + "/" + method,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(SessionServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func watchSessionHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(SessionServer).WatchSession(in, stream)
}

func (a *API) CreateSession(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	ss, err := a.qss.CreateSession(ctx, session.CreateSessionRequest{
		Players: stringsField(in, "players"),
	})
	return a.sessionStruct(ss, err)
}

func (a *API) GetSession(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	ss, err := a.qss.GetSession(ctx, session.GetSessionRequest{SessionID: stringField(in, "session_id")})
	return a.sessionStruct(ss, err)
}

func (a *API) Join(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	ss, err := a.qss.Join(ctx, session.JoinRequest{
		SessionID: stringField(in, "session_id"),
		Username:  stringField(in, "username"),
	})
	return a.sessionStruct(ss, err)
}

func (a *API) Start(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	ss, err := a.qss.Start(ctx, session.StartRequest{SessionID: stringField(in, "session_id")})
	return a.sessionStruct(ss, err)
}

func (a *API) SubmitAnswer(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	ss, err := a.qss.SubmitAnswer(ctx, session.SubmitAnswerRequest{
		SessionID: stringField(in, "session_id"),
		Username:  stringField(in, "username"),
		Answer:    domain.Answer(stringsField(in, "answer")),
		Round:     int(in.GetFields()["round"].GetNumberValue()),
	})
	return a.sessionStruct(ss, err)
}

func (a *API) Quit(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	ss, err := a.qss.Quit(ctx, session.QuitRequest{
		SessionID: stringField(in, "session_id"),
		Username:  stringField(in, "username"),
	})
	return a.sessionStruct(ss, err)
}

func (a *API) RequestEnd(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	ss, err := a.qss.RequestEnd(ctx, session.RequestEndRequest{SessionID: stringField(in, "session_id")})
	return a.sessionStruct(ss, err)
}

func (a *API) Resume(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	ss, err := a.qss.Resume(ctx, session.ResumeRequest{SessionID: stringField(in, "session_id")})
	return a.sessionStruct(ss, err)
}

func (a *API) EndSession(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	ss, err := a.qss.EndSession(ctx, session.EndSessionRequest{SessionID: stringField(in, "session_id")})
	return a.sessionStruct(ss, err)
}

// GetLeaderboard returns the session leaderboard, or the all-time one when no
// session_id is given.
func (a *API) GetLeaderboard(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if a.ls == nil {
		return nil, errors.New(errors.KindNotFound, errors.WithMessagef("leaderboard is not enabled"))
	}

	var (
		l   *domain.Leaderboard
		err error
	)
	if id := stringField(in, "session_id"); id != "" {
		l, err = a.ls.GetLeaderboard(ctx, leaderboard.GetLeaderboardRequest{SessionID: id})
	} else {
		l, err = a.ls.GetGlobalLeaderboard(ctx, leaderboard.GetGlobalLeaderboardRequest{
			Limit: int(in.GetFields()["limit"].GetNumberValue()),
		})
	}
	if err != nil {
		return nil, err
	}

	return toStruct(newLeaderboard(*l))
}

// WatchSession streams snapshots of a session until it is closed or the client
// goes away.
func (a *API) WatchSession(in *structpb.Struct, stream grpc.ServerStream) error {
	ctx := stream.Context()

	snapshots, cancel, err := a.qss.Subscribe(ctx, stringField(in, "session_id"))
	if err != nil {
		return err
	}
	defer cancel()

	categories := a.qss.Categories()
	for {
		select {
		case ss, ok := <-snapshots:
			if !ok {
				return nil
			}

			out, err := toStruct(newSession(ss, categories))
			if err != nil {
				return err
			}
			if err := stream.SendMsg(out); err != nil {
				return err
			}

		case <-ctx.Done():
			return nil
		}
	}
}

func (a *API) sessionStruct(ss domain.Session, err error) (*structpb.Struct, error) {
	if err != nil {
		return nil, err
	}
	return toStruct(newSession(ss, a.qss.Categories()))
}

// toStruct converts a JSON view into a Struct so both transports share one shape.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Internal(err)
	}

	m := make(map[string]any)
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, errors.Internal(err)
	}

	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, errors.Internal(err)
	}
	return s, nil
}

func stringField(in *structpb.Struct, key string) string {
	return in.GetFields()[key].GetStringValue()
}

func stringsField(in *structpb.Struct, key string) []string {
	values := in.GetFields()[key].GetListValue().GetValues()

	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, v.GetStringValue())
	}
	return out
}
