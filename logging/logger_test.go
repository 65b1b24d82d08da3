package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseBeforeConfigureDiscards(t *testing.T) {
	reset()
	t.Cleanup(reset)

	l := Base()
	assert.Equal(t, zerolog.Disabled, l.GetLevel())
}

func TestConfigure_WritesComponentAndService(t *testing.T) {
	reset()
	t.Cleanup(reset)

	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf, Service: "reflash-test"})

	l := WithComponent("probe")
	l.Info().Str(FieldPath, "/mnt/images").Msg("mounted")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "reflash-test", entry["service"])
	assert.Equal(t, "probe", entry[FieldComponent])
	assert.Equal(t, "/mnt/images", entry[FieldPath])
	assert.Equal(t, "mounted", entry["message"])
}

func TestConfigure_OnlyFirstCallWins(t *testing.T) {
	reset()
	t.Cleanup(reset)

	var first, second bytes.Buffer
	Configure(Config{Output: &first})
	Configure(Config{Output: &second})

	l := Base()
	l.Info().Msg("hello")
	assert.NotEmpty(t, first.String())
	assert.Empty(t, second.String())
}

func TestOpenFileAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reflash.log")

	f, err := OpenFile(path)
	require.NoError(t, err)
	_, err = f.WriteString("one\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	f, err = OpenFile(path)
	require.NoError(t, err)
	_, err = f.WriteString("two\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", string(data))
}
