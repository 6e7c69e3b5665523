package stomp_ws

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreInsertAndEvict(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive", "frames.db")
	s, err := OpenStore(path, 1000)
	require.NoError(t, err)

	body := []byte(`{"type":"SCORE_UPDATE","data":{}}`)
	for range 5 {
		s.Insert("/topic/match/1", "SCORE_UPDATE", body)
	}
	rows, size, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 5, rows)
	assert.Equal(t, int64(5*len(body)), size)

	big := []byte(strings.Repeat("x", 400))
	for range 5 {
		s.Insert("/topic/match/1", "EVENT", big)
	}
	_, size, err = s.Stats()
	require.NoError(t, err)
	assert.LessOrEqual(t, size, int64(1000))
	require.NoError(t, s.Close())

	reopened, err := OpenStore(path, 1000)
	require.NoError(t, err)
	defer reopened.Close()
	_, again, err := reopened.Stats()
	require.NoError(t, err)
	assert.Equal(t, size, again)
}

func TestNilStoreIsSafe(t *testing.T) {
	var s *Store
	s.Insert("t", "x", []byte("y"))
	assert.NoError(t, s.Close())
}
