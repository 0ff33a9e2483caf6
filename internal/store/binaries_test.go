package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/clprog/internal/backend"
)

func TestPutGetBinary(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, found, err := s.GetBinary(ctx, "d1", "gpu0")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.PutBinary(ctx, CachedBinary{
		SourceDigest: "d1", Device: "gpu0", Backend: "refcc",
		BinaryType: backend.BinaryExecutable, Blob: []byte("exe-1"),
	}))

	got, found, err := s.GetBinary(ctx, "d1", "gpu0")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, CachedBinary{
		SourceDigest: "d1", Device: "gpu0", Backend: "refcc",
		BinaryType: backend.BinaryExecutable, Blob: []byte("exe-1"), Seq: 1,
	}, got)
}

func TestPutBinary_Upserts(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	put := func(dev, blob string, bt backend.BinaryType) {
		t.Helper()
		require.NoError(t, s.PutBinary(ctx, CachedBinary{
			SourceDigest: "d1", Device: deviceID(dev), Backend: "refcc", BinaryType: bt, Blob: []byte(blob),
		}))
	}
	put("gpu1", "obj", backend.BinaryCompiledObject)
	put("gpu0", "old", backend.BinaryExecutable)
	put("gpu0", "new", backend.BinaryLibrary)

	got, found, err := s.GetBinary(ctx, "d1", "gpu0")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("new"), got.Blob)
	assert.Equal(t, backend.BinaryLibrary, got.BinaryType)
	assert.Equal(t, int64(3), got.Seq)

	list, err := s.ListBinaries(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, deviceID("gpu0"), list[0].Device, "ordered by device")
	assert.Equal(t, deviceID("gpu1"), list[1].Device)
}

func TestPutBinary_RejectsEmptyBlob(t *testing.T) {
	s := createTestStore(t)

	err := s.PutBinary(context.Background(), CachedBinary{SourceDigest: "d1", Device: "gpu0", BinaryType: backend.BinaryExecutable})
	assert.Error(t, err)
}

func TestListBinaries(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	list, err := s.ListBinaries(ctx, "missing")
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)

	for _, digest := range []string{"b", "a"} {
		require.NoError(t, s.PutBinary(ctx, CachedBinary{
			SourceDigest: digest, Device: "gpu0", Backend: "refcc", BinaryType: backend.BinaryExecutable, Blob: []byte(digest),
		}))
	}

	all, err := s.ListBinaries(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "b", all[0].SourceDigest, "whole-cache listing is ordered by seq")
	assert.Equal(t, "a", all[1].SourceDigest)
}
