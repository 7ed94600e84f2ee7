package primary

import (
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"hashkv/internal/blockindex"
	"hashkv/internal/errs"
	"hashkv/internal/testutil"
)

func openTestStore(t *testing.T, maxKeys uint64, redundantBlocks uint16) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "primary.hkv")
	s, err := Open(path, maxKeys, redundantBlocks, 64, 10)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSetAndGet(t *testing.T) {
	s := openTestStore(t, 100, 1)

	_, err := s.Set([]byte("hey"), []byte("English"), 0)
	require.NoError(t, err)
	_, err = s.Set([]byte("bonjour"), []byte("French"), 0)
	require.NoError(t, err)

	v, ok, err := s.Get([]byte("hey"), 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "English", string(v))

	v, ok, err = s.Get([]byte("bonjour"), 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "French", string(v))

	_, ok, err = s.Get([]byte("missing"), 0)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSetOverwritesExistingKey(t *testing.T) {
	s := openTestStore(t, 100, 1)

	_, err := s.Set([]byte("k"), []byte("v1"), 0)
	require.NoError(t, err)
	_, err = s.Set([]byte("k"), []byte("v2"), 0)
	require.NoError(t, err)

	v, ok, err := s.Get([]byte("k"), 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v2", string(v))
}

func TestDeleteIsIdempotent(t *testing.T) {
	s := openTestStore(t, 100, 1)

	_, err := s.Set([]byte("k"), []byte("v"), 0)
	require.NoError(t, err)

	require.NoError(t, s.Delete([]byte("k")))
	_, ok, err := s.Get([]byte("k"), 0)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Delete([]byte("k")))
	require.NoError(t, s.Delete([]byte("never-set")))
}

func TestExpiredEntryIsInvisible(t *testing.T) {
	s := openTestStore(t, 100, 1)

	_, err := s.Set([]byte("k"), []byte("v"), 1000)
	require.NoError(t, err)

	_, ok, err := s.Get([]byte("k"), 500)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = s.Get([]byte("k"), 1000)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestClearRemovesAllEntries(t *testing.T) {
	s := openTestStore(t, 100, 1)

	_, err := s.Set([]byte("k1"), []byte("v1"), 0)
	require.NoError(t, err)
	_, err = s.Set([]byte("k2"), []byte("v2"), 0)
	require.NoError(t, err)

	require.NoError(t, s.Clear())

	_, ok, err := s.Get([]byte("k1"), 0)
	require.NoError(t, err)
	require.False(t, ok)
	_, ok, err = s.Get([]byte("k2"), 0)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = s.Set([]byte("k3"), []byte("v3"), 0)
	require.NoError(t, err)
	v, ok, err := s.Get([]byte("k3"), 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v3", string(v))
}

func TestCollisionSaturationReturnsError(t *testing.T) {
	s := openTestStore(t, 1, 0)

	r := rand.New(rand.NewSource(1))
	var lastErr error
	for i := 0; i < 200; i++ {
		_, err := s.Set(testutil.RandomBytes(r, 8), []byte("v"), 0)
		if err != nil {
			lastErr = err
			break
		}
	}
	require.ErrorIs(t, lastErr, errs.ErrCollisionSaturated)
}

func TestGetAndDeleteReachLaterRedundantBlockAfterEarlierCollidingKeyIsCleared(t *testing.T) {
	s := openTestStore(t, 100, 1)

	r := rand.New(rand.NewSource(2))
	seen := map[int64][]byte{}
	var a, b []byte
	for {
		k := testutil.RandomBytes(r, 8)
		off := blockindex.SlotOffsets(s.layout.Geometry, k)[0]
		if prev, ok := seen[off]; ok && string(prev) != string(k) {
			a, b = prev, k
			break
		}
		seen[off] = k
	}

	_, err := s.Set(a, []byte("va"), 0)
	require.NoError(t, err)
	_, err = s.Set(b, []byte("vb"), 0)
	require.NoError(t, err)

	require.NoError(t, s.Delete(a))

	v, ok, err := s.Get(b, 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "vb", string(v))

	require.NoError(t, s.Delete(b))
	_, ok, err = s.Get(b, 0)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "primary.hkv")

	s, err := Open(path, 100, 1, 64, 10)
	require.NoError(t, err)
	_, err = s.Set([]byte("hey"), []byte("English"), 0)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s2, err := Open(path, 100, 1, 64, 10)
	require.NoError(t, err)
	defer s2.Close()

	v, ok, err := s2.Get([]byte("hey"), 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "English", string(v))
}

func TestCompactDropsDeletedAndExpiredEntries(t *testing.T) {
	s := openTestStore(t, 100, 1)

	_, err := s.Set([]byte("live"), []byte("v1"), 0)
	require.NoError(t, err)
	_, err = s.Set([]byte("expiring"), []byte("v2"), 10)
	require.NoError(t, err)
	_, err = s.Set([]byte("deleted"), []byte("v3"), 0)
	require.NoError(t, err)
	require.NoError(t, s.Delete([]byte("deleted")))

	require.NoError(t, s.Compact(20))

	v, ok, err := s.Get([]byte("live"), 20)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v1", string(v))

	_, ok, err = s.Get([]byte("expiring"), 20)
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = s.Get([]byte("deleted"), 20)
	require.NoError(t, err)
	require.False(t, ok)
}
