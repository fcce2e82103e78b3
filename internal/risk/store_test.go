package risk

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreMissingFile(t *testing.T) {
	st, err := NewFileStore(filepath.Join(t.TempDir(), "nope.json")).Load()
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewFileStore(path).Load()
	assert.Error(t, err)

	// A corrupt file is not fatal for the gate.
	g := New(DefaultConfig(), discard(), WithStore(NewFileStore(path)))
	assert.Equal(t, 0, g.GetStatus().Positions)
}

func TestFileStoreSaveReplaces(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(filepath.Join(dir, "state.json"))
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Save(State{DailyTrades: 1, DayStart: day}))
	require.NoError(t, s.Save(State{
		DailyTrades: 2,
		DayStart:    day,
		Positions:   map[string]Entry{"a": {InstrumentID: "m", Notional: 10}},
	}))

	st, err := s.Load()
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, 2, st.DailyTrades)
	assert.True(t, st.DayStart.Equal(day))
	assert.Equal(t, 10.0, st.Positions["a"].Notional)

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, files, 1, "temp files must not be left behind")
}
