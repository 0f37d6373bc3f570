package server

import (
	"context"
	"net"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ptcgai/referee-server-go/internal/catalog"
	"github.com/ptcgai/referee-server-go/internal/game"
	"github.com/ptcgai/referee-server-go/internal/game/referee"
	"github.com/ptcgai/referee-server-go/internal/game/rules"
	"github.com/ptcgai/referee-server-go/internal/metrics"
	"github.com/ptcgai/referee-server-go/internal/tracing"
)

type harness struct {
	client   *RefereeClient
	registry *game.Registry
	bus      *rules.EventBus
	metrics  *metrics.Metrics
	spans    *tracetest.SpanRecorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)

	cards, err := catalog.Load("../../data/cards.yaml")
	require.NoError(t, err)

	bus := rules.NewEventBus()
	m := metrics.New()
	registry := game.NewRegistry(logger,
		game.WithRefereeOptions(referee.WithEventBus(bus)),
		game.WithHooks(m),
	)
	spans := tracetest.NewSpanRecorder()
	tracer := tracing.FromProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans)), "test")

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.UnaryInterceptor(ChainUnaryInterceptors(
		RecoveryInterceptor(logger),
		LoggingInterceptor(logger),
		MetricsInterceptor(m),
		TracingInterceptor(tracer),
	)))
	RegisterRefereeServer(srv, NewRefereeService(registry, cards, logger))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &harness{
		client:   NewRefereeClient(conn),
		registry: registry,
		bus:      bus,
		metrics:  m,
		spans:    spans,
	}
}

func mustStruct(t *testing.T, v map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(v)
	require.NoError(t, err)
	return s
}

func lightningDeck(t *testing.T) map[string]any {
	t.Helper()
	list, err := catalog.LoadDeckList("../../data/decks/lightning.yaml")
	require.NoError(t, err)
	m, err := toMap(list)
	require.NoError(t, err)
	return m
}

func createRequest(t *testing.T, matchID string) *structpb.Struct {
	return mustStruct(t, map[string]any{
		"match_id": matchID,
		"players": []any{
			map[string]any{"player_id": "alice", "deck": lightningDeck(t)},
			map[string]any{"player_id": "bob", "deck": lightningDeck(t)},
		},
		"setup": map[string]any{"first_player": "alice", "auto_active": true},
	})
}

func TestCreateMatchAndSubmit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	out, err := h.client.CreateMatch(ctx, createRequest(t, "m-grpc"))
	require.NoError(t, err)
	assert.Equal(t, "m-grpc", out.GetFields()["match_id"].GetStringValue())
	result := out.GetFields()["result"].GetStructValue()
	require.NotNil(t, result)
	assert.True(t, result.GetFields()["success"].GetBoolValue())
	assert.Equal(t, 1, h.registry.Len())

	res, err := h.client.Submit(ctx, mustStruct(t, map[string]any{
		"match_id": "m-grpc",
		"actor_id": "alice",
		"action":   "start_turn",
	}))
	require.NoError(t, err)
	assert.True(t, res.GetFields()["success"].GetBoolValue(), res.GetFields()["message"].GetStringValue())
	drawn := res.GetFields()["data"].GetStructValue().GetFields()["drawn"].GetListValue()
	require.NotNil(t, drawn)
	assert.Len(t, drawn.GetValues(), 1)

	// A request out of turn is answered, not rejected at the transport.
	res, err = h.client.Submit(ctx, mustStruct(t, map[string]any{
		"match_id": "m-grpc",
		"actor_id": "bob",
		"action":   "end_turn",
	}))
	require.NoError(t, err)
	assert.False(t, res.GetFields()["success"].GetBoolValue())
	assert.Equal(t, "turn_violation", res.GetFields()["data"].GetStructValue().GetFields()["kind"].GetStringValue())

	// CreateMatch/OK and Submit/OK.
	series, err := testutil.GatherAndCount(h.metrics.Registry(), "ptcg_referee_rpc_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, series)
}

func TestGetStateHidesOpponentHand(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.client.CreateMatch(ctx, createRequest(t, "m-view"))
	require.NoError(t, err)

	view, err := h.client.GetState(ctx, mustStruct(t, map[string]any{"match_id": "m-view", "viewer": "alice"}))
	require.NoError(t, err)
	assert.Equal(t, "setup", view.GetFields()["phase"].GetStringValue())

	players := view.GetFields()["players"].GetListValue().GetValues()
	require.Len(t, players, 2)
	for _, p := range players {
		fields := p.GetStructValue().GetFields()
		hand := fields["hand"].GetListValue()
		if fields["player_id"].GetStringValue() == "alice" {
			require.NotNil(t, hand)
			assert.Len(t, hand.GetValues(), int(fields["hand_size"].GetNumberValue()))
		} else {
			assert.Nil(t, hand)
			assert.Positive(t, fields["hand_size"].GetNumberValue())
		}
	}
}

func TestErrorCodes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.client.GetState(ctx, mustStruct(t, map[string]any{"match_id": "missing"}))
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = h.client.Submit(ctx, mustStruct(t, map[string]any{"actor_id": "alice", "action": "draw"}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = h.client.CreateMatch(ctx, mustStruct(t, map[string]any{
		"players": []any{map[string]any{"player_id": "alice", "deck": lightningDeck(t)}},
	}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	short := lightningDeck(t)
	short["cards"] = []any{map[string]any{"card": "SVI-62", "count": 4}}
	_, err = h.client.CreateMatch(ctx, mustStruct(t, map[string]any{
		"players": []any{
			map[string]any{"player_id": "alice", "deck": short},
			map[string]any{"player_id": "bob", "deck": lightningDeck(t)},
		},
	}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = h.client.CreateMatch(ctx, createRequest(t, "m-dup"))
	require.NoError(t, err)
	_, err = h.client.CreateMatch(ctx, createRequest(t, "m-dup"))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestListMatches(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, id := range []string{"m-a", "m-b"} {
		_, err := h.client.CreateMatch(ctx, createRequest(t, id))
		require.NoError(t, err)
	}

	out, err := h.client.ListMatches(ctx, &structpb.Struct{})
	require.NoError(t, err)
	matches := out.GetFields()["matches"].GetListValue().GetValues()
	require.Len(t, matches, 2)
	ids := []string{
		matches[0].GetStructValue().GetFields()["match_id"].GetStringValue(),
		matches[1].GetStructValue().GetFields()["match_id"].GetStringValue(),
	}
	assert.ElementsMatch(t, []string{"m-a", "m-b"}, ids)
}

func TestSubmitIsTraced(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.client.CreateMatch(ctx, createRequest(t, "m-trace"))
	require.NoError(t, err)
	_, err = h.client.Submit(ctx, mustStruct(t, map[string]any{
		"match_id": "m-trace",
		"actor_id": "alice",
		"action":   "start_turn",
	}))
	require.NoError(t, err)

	var names []string
	for _, s := range h.spans.Ended() {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{MethodCreateMatch, MethodSubmit}, names)
}

func TestRecoveryInterceptor(t *testing.T) {
	interceptor := RecoveryInterceptor(zaptest.NewLogger(t))
	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: MethodSubmit},
		func(context.Context, any) (any, error) { panic("boom") })
	assert.Equal(t, codes.Internal, status.Code(err))
}

func TestChainUnaryInterceptorsOrder(t *testing.T) {
	var order []string
	record := func(name string) grpc.UnaryServerInterceptor {
		return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
			order = append(order, name)
			return next(ctx, req)
		}
	}
	chain := ChainUnaryInterceptors(record("first"), record("second"))
	_, err := chain(context.Background(), nil, &grpc.UnaryServerInfo{}, func(context.Context, any) (any, error) {
		order = append(order, "handler")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "handler"}, order)
}
