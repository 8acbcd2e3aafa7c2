package store

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/geocoder/pkg/errors"
)

func packedShard(t *testing.T) (*Store, uint32, []byte) {
	t.Helper()
	ctx := context.Background()
	s := New("address", NewMemoryBackend(), Options{Shards: 2})
	for _, id := range []string{"main st", "elm st", "oak ave", "pine rd", "1## main st"} {
		require.NoError(t, s.Set(ctx, TypeGrid, id, []byte("grid:"+id)))
	}
	shards, err := s.List(ctx, TypeGrid)
	require.NoError(t, err)
	require.NotEmpty(t, shards)

	data, err := s.Pack(ctx, TypeGrid, shards[0])
	require.NoError(t, err)
	return s, shards[0], data
}

func TestPackOpenSegment(t *testing.T) {
	s, shard, data := packedShard(t)
	ids, err := s.ListShard(context.Background(), TypeGrid, shard)
	require.NoError(t, err)

	seg, err := OpenSegment(data)
	require.NoError(t, err)
	assert.Equal(t, TypeGrid, seg.Type())
	assert.Equal(t, "address", seg.Source())
	assert.Equal(t, shard, seg.Shard())
	assert.Equal(t, ids, seg.IDs())
	assert.Equal(t, len(ids), seg.Len())

	for _, id := range ids {
		v, ok := seg.Get(id)
		require.True(t, ok)
		assert.Equal(t, "grid:"+id, string(v))
	}
	_, ok := seg.Get("missing")
	assert.False(t, ok)
}

func TestUnpackIntoEmptyStore(t *testing.T) {
	ctx := context.Background()
	src, shard, data := packedShard(t)
	ids, err := src.ListShard(ctx, TypeGrid, shard)
	require.NoError(t, err)

	dst := New("address", NewMemoryBackend(), Options{Shards: 2})
	typ, n, err := dst.Unpack(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, TypeGrid, typ)
	assert.Equal(t, len(ids), n)

	got, err := dst.ListShard(ctx, TypeGrid, shard)
	require.NoError(t, err)
	assert.Equal(t, ids, got)
	for _, id := range ids {
		v, found, err := dst.Get(ctx, TypeGrid, id)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "grid:"+id, string(v))
	}
}

func TestPackEmptyShard(t *testing.T) {
	s := New("address", NewMemoryBackend(), Options{Shards: 2})
	data, err := s.Pack(context.Background(), TypeGrid, 1)
	require.NoError(t, err)

	seg, err := OpenSegment(data)
	require.NoError(t, err)
	assert.Zero(t, seg.Len())
}

func TestOpenSegmentRejectsCorruption(t *testing.T) {
	_, _, data := packedShard(t)

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"truncated", func(b []byte) []byte { return b[:10] }},
		{"bad magic", func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[0:4], 0xdeadbeef)
			return b
		}},
		{"bad version", func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[4:8], 99)
			return b
		}},
		{"dict checksum", func(b []byte) []byte {
			off := binary.LittleEndian.Uint64(b[24:32])
			b[off+1] ^= 0xff
			return b
		}},
		{"span overflow", func(b []byte) []byte {
			binary.LittleEndian.PutUint64(b[32:40], uint64(len(b)))
			return b
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			corrupt := tt.mutate(append([]byte(nil), data...))
			_, err := OpenSegment(corrupt)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		})
	}
}

func TestWriteSegmentFile(t *testing.T) {
	_, _, data := packedShard(t)
	path := filepath.Join(t.TempDir(), "segments", "grid-0.geos")

	require.NoError(t, WriteSegmentFile(path, data))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}
