package ops

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadResolvesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	payload := `{
		"symbols": [{"name": "BTC-PERP", "scale": {"priceScale": 2, "quantityScale": 8}}],
		"exec": {"orderQty": 5},
		"signal": {"threshold": 0.7}
	}`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))

	loaded, err := Load(path)
	require.NoError(t, err)

	sym, ok := loaded.Registry.SymbolByName("BTC-PERP")
	require.True(t, ok)
	assert.Equal(t, "BTC-PERP", sym.Name)

	assert.Equal(t, 0.7, loaded.Signal.Threshold)
	assert.Equal(t, 0.15, loaded.Signal.OBIThreshold)
	assert.Equal(t, 4096, loaded.Queue.MarketDataCapacity)
	assert.Equal(t, 50, loaded.Feed.SnapshotDepth)
	assert.Equal(t, 5*time.Second, loaded.Signal.LabelHorizon)
}

func TestLoadRejectsMissingSymbols(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"exec":{"orderQty":1}}`), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsZeroOrderQty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	payload := `{"symbols": [{"name": "X", "scale": {}}]}`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestDefaultIsUsable(t *testing.T) {
	loaded, err := Default()
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Registry.SymbolCount())
	assert.Positive(t, loaded.Exec.OrderQty)
}
