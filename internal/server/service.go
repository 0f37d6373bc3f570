package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ptcgai/referee-server-go/internal/catalog"
	"github.com/ptcgai/referee-server-go/internal/game"
	"github.com/ptcgai/referee-server-go/internal/game/model"
	"github.com/ptcgai/referee-server-go/internal/game/referee"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "ptcg.referee.v1.Referee"

// Full method names.
const (
	MethodCreateMatch = "/" + ServiceName + "/CreateMatch"
	MethodSubmit      = "/" + ServiceName + "/Submit"
	MethodGetState    = "/" + ServiceName + "/GetState"
	MethodListMatches = "/" + ServiceName + "/ListMatches"
)

// RefereeServer is the server API of the referee service. Every message is a
// google.protobuf.Struct carrying the JSON shape of the request or result.
type RefereeServer interface {
	CreateMatch(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Submit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetState(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListMatches(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(RefereeServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func structHandler(fullMethod string, call unaryMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(RefereeServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(RefereeServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// RefereeServiceDesc describes the referee service for grpc.Server.
var RefereeServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RefereeServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateMatch", Handler: structHandler(MethodCreateMatch, RefereeServer.CreateMatch)},
		{MethodName: "Submit", Handler: structHandler(MethodSubmit, RefereeServer.Submit)},
		{MethodName: "GetState", Handler: structHandler(MethodGetState, RefereeServer.GetState)},
		{MethodName: "ListMatches", Handler: structHandler(MethodListMatches, RefereeServer.ListMatches)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ptcg/referee/v1/referee.proto",
}

// RegisterRefereeServer registers srv on s.
func RegisterRefereeServer(s grpc.ServiceRegistrar, srv RefereeServer) {
	s.RegisterService(&RefereeServiceDesc, srv)
}

// RefereeClient calls the referee service.
type RefereeClient struct {
	cc grpc.ClientConnInterface
}

// NewRefereeClient creates a client on cc.
func NewRefereeClient(cc grpc.ClientConnInterface) *RefereeClient {
	return &RefereeClient{cc: cc}
}

func (c *RefereeClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateMatch sets up a new match.
func (c *RefereeClient) CreateMatch(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodCreateMatch, in, opts...)
}

// Submit sends one request to a match.
func (c *RefereeClient) Submit(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodSubmit, in, opts...)
}

// GetState renders a match for a viewer.
func (c *RefereeClient) GetState(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodGetState, in, opts...)
}

// ListMatches summarises the hosted matches.
func (c *RefereeClient) ListMatches(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodListMatches, in, opts...)
}

// RefereeService implements RefereeServer on a match registry.
type RefereeService struct {
	registry *game.Registry
	catalog  *catalog.Catalog
	logger   *zap.Logger
}

// NewRefereeService creates the service. Decks in CreateMatch are resolved
// against cards.
func NewRefereeService(registry *game.Registry, cards *catalog.Catalog, logger *zap.Logger) *RefereeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RefereeService{registry: registry, catalog: cards, logger: logger}
}

type playerEntry struct {
	PlayerID string           `json:"player_id"`
	Deck     catalog.DeckList `json:"deck"`
}

type createMatchRequest struct {
	MatchID string               `json:"match_id"`
	Players []playerEntry        `json:"players"`
	Setup   referee.SetupOptions `json:"setup"`
}

type submitRequest struct {
	MatchID string `json:"match_id"`
	referee.Request
}

type stateRequest struct {
	MatchID string `json:"match_id"`
	Viewer  string `json:"viewer"`
}

// CreateMatch builds both decks from the catalog and sets the match up.
func (s *RefereeService) CreateMatch(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req createMatchRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	if len(req.Players) != 2 {
		return nil, status.Errorf(codes.InvalidArgument, "a match needs exactly 2 players, got %d", len(req.Players))
	}
	if s.catalog == nil {
		return nil, status.Error(codes.FailedPrecondition, "no card catalog loaded")
	}

	decks := make([]*model.Deck, 0, len(req.Players))
	for _, p := range req.Players {
		playerID := strings.TrimSpace(p.PlayerID)
		if playerID == "" {
			return nil, status.Error(codes.InvalidArgument, "player_id is required")
		}
		deck, err := s.catalog.BuildDeck(playerID, &p.Deck)
		if err != nil {
			return nil, toStatus(err)
		}
		decks = append(decks, deck)
	}

	matchID, res, err := s.registry.Create(ctx, req.MatchID, decks, req.Setup)
	if err != nil {
		return nil, toStatus(err)
	}
	s.logger.Debug("match created over grpc", zap.String("match_id", matchID))
	return toStruct(map[string]any{
		"match_id": matchID,
		"result":   res,
	})
}

// Submit forwards a request to its match. Rejected requests are answered with
// success=false rather than a gRPC error.
func (s *RefereeService) Submit(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req submitRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	if req.MatchID == "" {
		return nil, status.Error(codes.InvalidArgument, "match_id is required")
	}
	if req.Action == "" {
		return nil, status.Error(codes.InvalidArgument, "action is required")
	}
	res, err := s.registry.Submit(ctx, req.MatchID, req.Request)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(res)
}

// GetState renders a match for the requested viewer. Hands other than the
// viewer's are hidden.
func (s *RefereeService) GetState(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req stateRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, err
	}
	if req.MatchID == "" {
		return nil, status.Error(codes.InvalidArgument, "match_id is required")
	}
	view, err := s.registry.View(req.MatchID, req.Viewer)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(view)
}

// ListMatches summarises every hosted match.
func (s *RefereeService) ListMatches(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return toStruct(map[string]any{"matches": s.registry.List()})
}

// toStatus maps domain failures onto gRPC codes.
func toStatus(err error) error {
	if f, ok := model.AsFailure(err); ok {
		switch f.Kind {
		case model.FailureNotFound:
			return status.Error(codes.NotFound, f.Error())
		case model.FailureValidation, model.FailureMalformedPlan:
			return status.Error(codes.InvalidArgument, f.Error())
		case model.FailureTurnViolation:
			return status.Error(codes.FailedPrecondition, f.Error())
		}
	}
	return status.Error(codes.Internal, err.Error())
}

// fromStruct decodes a Struct into the JSON shape of v.
func fromStruct(in *structpb.Struct, v any) error {
	data, err := json.Marshal(in.AsMap())
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	return nil
}

func toMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode response: %w", err)
	}
	out := make(map[string]any)
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to encode response: %w", err)
	}
	return out, nil
}

// toStruct converts any JSON-encodable value into a Struct.
func toStruct(v any) (*structpb.Struct, error) {
	m, err := toMap(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}
