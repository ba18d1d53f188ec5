package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDurationForms(t *testing.T) {
	var out struct {
		A Duration `yaml:"a"`
		B Duration `yaml:"b"`
		C Duration `yaml:"c"`
		D Duration `yaml:"d"`
	}

	// Duration strings, bare seconds, and empty all parse.
	in := "a: 1h30m\nb: 45\nc: \"\"\nd: 1.5\n"
	require.NoError(t, yaml.Unmarshal([]byte(in), &out))

	assert.Equal(t, 90*time.Minute, out.A.Duration())
	assert.Equal(t, 45*time.Second, out.B.Duration())
	assert.Zero(t, out.C.Duration())
	assert.Equal(t, 1500*time.Millisecond, out.D.Duration())
}

func TestDurationRejectsGarbage(t *testing.T) {
	var out struct {
		A Duration `yaml:"a"`
	}
	assert.Error(t, yaml.Unmarshal([]byte("a: sometimes\n"), &out))
	assert.Error(t, yaml.Unmarshal([]byte("a: [1, 2]\n"), &out))
}
