package coalesce

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/geo"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/spatialmatch"
	"github.com/Adithya-Monish-Kumar-K/geocoder/internal/store"
	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/grpc"
)

func startGridServer(t *testing.T) (*Service, *grpc.Client) {
	t.Helper()
	ctx := context.Background()

	street := store.New("address", store.NewMemoryBackend(), store.Options{Shards: 2})
	require.NoError(t, street.AddGrids(ctx, "main st", []uint64{enc(5, 2620, 6334, 1, 2)}))
	place := store.New("place", store.NewMemoryBackend(), store.Options{Shards: 2})
	require.NoError(t, place.AddGrids(ctx, "springfield", []uint64{enc(9, 655, 1583, 1, 5)}))

	svc := NewService(NewEngine())
	svc.AddSource(0, street)
	svc.AddSource(1, place)

	srv := grpc.NewServer()
	svc.Register(srv)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.ServeListener(ln)
	t.Cleanup(srv.Stop)

	client, err := grpc.Dial(ln.Addr().String(), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return svc, client
}

func TestClientMatchesLocalEngine(t *testing.T) {
	svc, rpc := startGridServer(t)
	client := NewClient(rpc)

	stack := stackOf(member(1, "springfield", 12, 0.5), member(0, "main st", 14, 0.5))
	center := geo.ZXY{Z: 14, X: 2620.5, Y: 6334.5}
	bbox := geo.TileBBox{Z: 12, MinX: 600, MinY: 1500, MaxX: 700, MaxY: 1600}
	opts := spatialmatch.CoalesceOptions{Center: &center, Radius: 200, BBox: &bbox}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	remote, err := client.Coalesce(ctx, stack, opts)
	require.NoError(t, err)
	local, err := svc.engine.Coalesce(ctx, stack, opts)
	require.NoError(t, err)

	require.Len(t, remote, 1)
	assert.Equal(t, local, remote)
}

func TestClientEmptyAndRemoteError(t *testing.T) {
	_, rpc := startGridServer(t)
	client := NewClient(rpc)
	ctx := context.Background()

	matches, err := client.Coalesce(ctx, stackOf(member(1, "nowhere", 12, 1)), spatialmatch.CoalesceOptions{})
	require.NoError(t, err)
	assert.Empty(t, matches)

	_, err = client.Coalesce(ctx, stackOf(member(7, "x", 12, 1)), spatialmatch.CoalesceOptions{})
	require.Error(t, err)
	var remoteErr *grpc.RemoteError
	require.True(t, errors.As(err, &remoteErr))
	assert.Contains(t, remoteErr.Message, "no grid source for index 7")
}

func TestClientStatsAndPing(t *testing.T) {
	_, rpc := startGridServer(t)
	client := NewClient(rpc)
	ctx := context.Background()

	require.NoError(t, client.Ping(ctx))

	stats, err := client.Stats(ctx, "")
	require.NoError(t, err)
	require.Len(t, stats.Sources, 2)
	assert.Equal(t, "address", stats.Sources[0].Source)
	assert.Equal(t, 1, stats.Sources[0].Grids)
	assert.Equal(t, 1, stats.Sources[0].Shards)

	stats, err = client.Stats(ctx, "place")
	require.NoError(t, err)
	require.Len(t, stats.Sources, 1)
	assert.Equal(t, 1, stats.Sources[0].Idx)
}

func TestRequestConversionKeepsFields(t *testing.T) {
	stack := spatialmatch.Stack{Relev: 0.75, Members: []spatialmatch.Phrasematch{{
		Idx: 2, Phrase: "1## main st", Mask: 6, Weight: 0.25, Zoom: 14,
		Subquery: []string{"1##", "main", "st"}, ScoreFactor: 40, Prefix: true, Address: "100",
	}}}
	center := geo.ZXY{Z: 14, X: 1.5, Y: 2.5}
	bbox := geo.TileBBox{Z: 14, MinX: 1, MinY: 2, MaxX: 3, MaxY: 4}
	opts := spatialmatch.CoalesceOptions{Center: &center, Radius: 50, BBox: &bbox}

	gotStack, gotOpts := fromRequest(*toRequest(stack, opts))
	assert.Equal(t, stack, gotStack)
	assert.Equal(t, opts, gotOpts)
}
