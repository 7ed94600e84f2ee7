package hashkv

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, optFns ...OptionFunc) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), optFns...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func ttl(seconds uint32) *uint32 { return &seconds }

func TestSetAndReadMultipleKeyValuePairs(t *testing.T) {
	s := openTestStore(t)

	keys := []string{"hey", "hi", "yoo-hoo", "bonjour"}
	values := []string{"English", "English", "Slang", "French"}

	for i, k := range keys {
		require.NoError(t, s.Set([]byte(k), []byte(values[i]), nil))
	}

	for i, k := range keys {
		v, err := s.Get([]byte(k))
		require.NoError(t, err)
		require.Equal(t, values[i], string(v))
	}
}

func TestSetAndDeleteMultipleKeyValuePairs(t *testing.T) {
	s := openTestStore(t)

	keys := []string{"hey", "hi", "yoo-hoo", "bonjour"}
	values := []string{"English", "English", "Slang", "French"}
	for i, k := range keys {
		require.NoError(t, s.Set([]byte(k), []byte(values[i]), nil))
	}

	toDelete := keys[2:]
	for _, k := range toDelete {
		require.NoError(t, s.Delete([]byte(k)))
	}

	for i, k := range keys {
		v, err := s.Get([]byte(k))
		require.NoError(t, err)
		if i < 2 {
			require.Equal(t, values[i], string(v))
		} else {
			require.Nil(t, v)
		}
	}
}

func TestSetAndClear(t *testing.T) {
	s := openTestStore(t)

	keys := []string{"hey", "hi", "yoo-hoo", "bonjour"}
	for _, k := range keys {
		require.NoError(t, s.Set([]byte(k), []byte("v"), nil))
	}

	require.NoError(t, s.Clear())

	for _, k := range keys {
		v, err := s.Get([]byte(k))
		require.NoError(t, err)
		require.Nil(t, v)
	}
}

func TestPersistsAcrossClose(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.Set([]byte("hey"), []byte("English"), nil))
	require.NoError(t, s.Close())

	s2, err := Open(dir)
	require.NoError(t, err)
	defer s2.Close()

	v, err := s2.Get([]byte("hey"))
	require.NoError(t, err)
	require.Equal(t, "English", string(v))
}

func TestExpiredEntryReadsAsMissing(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Set([]byte("ephemeral"), []byte("v"), ttl(1)))

	v, err := s.Get([]byte("ephemeral"))
	require.NoError(t, err)
	require.Equal(t, "v", string(v))

	time.Sleep(1100 * time.Millisecond)

	v, err = s.Get([]byte("ephemeral"))
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestSecondOpenOnSameDirFailsWhileFirstIsOpen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir)
	require.NoError(t, err)
	defer s.Close()

	_, err = Open(dir)
	require.Error(t, err)
}

func TestSearchRequiresSearchOption(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Search([]byte("he"), 0, 0)
	require.Error(t, err)
}

func TestSearchReturnsMatchingPairs(t *testing.T) {
	s := openTestStore(t, WithSearch(3))

	require.NoError(t, s.Set([]byte("hey"), []byte("English"), nil))
	require.NoError(t, s.Set([]byte("hello"), []byte("English greeting"), nil))
	require.NoError(t, s.Set([]byte("bonjour"), []byte("French"), nil))

	results, err := s.Search([]byte("he"), 0, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)

	byKey := map[string]string{}
	for _, r := range results {
		byKey[string(r.Key)] = string(r.Value)
	}
	require.Equal(t, "English", byKey["hey"])
	require.Equal(t, "English greeting", byKey["hello"])
}

func TestDeleteAlsoRemovesFromSearchIndex(t *testing.T) {
	s := openTestStore(t, WithSearch(3))

	require.NoError(t, s.Set([]byte("hey"), []byte("English"), nil))
	require.NoError(t, s.Delete([]byte("hey")))

	results, err := s.Search([]byte("he"), 0, 0)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestCompactPreservesLiveDataAndDropsTombstones(t *testing.T) {
	s := openTestStore(t, WithSearch(3))

	require.NoError(t, s.Set([]byte("hey"), []byte("English"), nil))
	require.NoError(t, s.Set([]byte("bonjour"), []byte("French"), nil))
	require.NoError(t, s.Delete([]byte("bonjour")))

	require.NoError(t, s.Compact())

	v, err := s.Get([]byte("hey"))
	require.NoError(t, err)
	require.Equal(t, "English", string(v))

	v, err = s.Get([]byte("bonjour"))
	require.NoError(t, err)
	require.Nil(t, v)

	results, err := s.Search([]byte("he"), 0, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestSearchAfterCompactResolvesToFreshAddresses(t *testing.T) {
	s := openTestStore(t, WithSearch(3))

	keys := []string{"hey", "hello", "heron", "heavy", "helm", "hectic", "henna"}
	for _, k := range keys {
		require.NoError(t, s.Set([]byte(k), []byte("v-"+k), nil))
	}
	require.NoError(t, s.Delete([]byte("hello")))
	require.NoError(t, s.Delete([]byte("heron")))

	require.NoError(t, s.Compact())

	results, err := s.Search([]byte("he"), 0, 0)
	require.NoError(t, err)

	byKey := map[string]string{}
	for _, r := range results {
		byKey[string(r.Key)] = string(r.Value)
	}
	require.Len(t, byKey, 5)
	for _, k := range []string{"hey", "heavy", "helm", "hectic", "henna"} {
		require.Equal(t, "v-"+k, byKey[k])
	}
}
