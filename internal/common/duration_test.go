package common

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDuration_UnmarshalText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{name: "milliseconds", input: "250ms", expected: 250 * time.Millisecond},
		{name: "seconds", input: "12s", expected: 12 * time.Second},
		{name: "minutes", input: "5m", expected: 5 * time.Minute},
		{name: "complex duration", input: "1h30m45s", expected: time.Hour + 30*time.Minute + 45*time.Second},
		{name: "zero duration", input: "0s", expected: 0},
		{name: "no unit", input: "100", wantErr: true},
		{name: "invalid unit", input: "100x", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration
			err := d.UnmarshalText([]byte(tt.input))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, d.Duration)
		})
	}
}

func TestDuration_ConfigFormats(t *testing.T) {
	type pollConfig struct {
		Interval Duration `json:"interval" yaml:"interval" toml:"interval"`
	}

	t.Run("json", func(t *testing.T) {
		var cfg pollConfig
		require.NoError(t, json.Unmarshal([]byte(`{"interval":"30s"}`), &cfg))
		assert.Equal(t, 30*time.Second, cfg.Interval.Duration)

		require.Error(t, json.Unmarshal([]byte(`{"interval":"soon"}`), &cfg))
	})

	t.Run("yaml", func(t *testing.T) {
		var cfg pollConfig
		require.NoError(t, yaml.Unmarshal([]byte("interval: 1h30m\n"), &cfg))
		assert.Equal(t, 90*time.Minute, cfg.Interval.Duration)

		require.Error(t, yaml.Unmarshal([]byte("interval: soon\n"), &cfg))
	})

	t.Run("toml", func(t *testing.T) {
		var cfg pollConfig
		_, err := toml.Decode(`interval = "500ms"`, &cfg)
		require.NoError(t, err)
		assert.Equal(t, 500*time.Millisecond, cfg.Interval.Duration)
	})
}

func TestDuration_Roundtrip(t *testing.T) {
	type pollConfig struct {
		Interval Duration `json:"interval" yaml:"interval"`
	}
	original := pollConfig{Interval: NewDuration(5 * time.Minute)}

	data, err := json.Marshal(original)
	require.NoError(t, err)
	require.JSONEq(t, `{"interval":"5m0s"}`, string(data))

	var fromJSON pollConfig
	require.NoError(t, json.Unmarshal(data, &fromJSON))
	assert.Equal(t, original, fromJSON)

	data, err = yaml.Marshal(original)
	require.NoError(t, err)

	var fromYAML pollConfig
	require.NoError(t, yaml.Unmarshal(data, &fromYAML))
	assert.Equal(t, original, fromYAML)
}

func TestDuration_JSONSchema(t *testing.T) {
	schema := Duration{}.JSONSchema()

	require.NotNil(t, schema)
	assert.Equal(t, "string", schema.Type)
	assert.Equal(t, "Duration", schema.Title)
	assert.Contains(t, schema.Examples, "1m")
	assert.Contains(t, schema.Examples, "300ms")
}
