package plugin

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

const axpertManifest = `
name: axpert-king-5kw
alias: axpert
creator: ACasal
runtime:
  main: axpert
  tests:
    - axpert_test
repository: https://github.com/berfenger/voltronic2mqtt
description: Voltronic Axpert King 5kW
version: 1.2.0
requirements:
  - name: pi30
    version: 1.0.0
`

func TestParseManifest(t *testing.T) {
	assert := assert.New(t)
	m, err := ParseManifest([]byte(axpertManifest))
	assert.NoError(err)
	assert.Equal("axpert-king-5kw", m.Name)
	assert.Equal("axpert", m.Alias)
	assert.Equal("axpert", m.Runtime.Main)
	assert.Equal([]string{"axpert_test"}, m.Runtime.Tests)
	assert.Equal("1.2.0", m.Version)
	if assert.Len(m.Requirements, 1) {
		assert.Equal("pi30>=1.0.0", m.Requirements[0].String())
	}
}

func TestParseManifestErrors(t *testing.T) {
	_, err := ParseManifest([]byte("alias: nameless\n"))
	assert.Error(t, err)

	_, err = ParseManifest([]byte("name: [unclosed"))
	assert.Error(t, err)
}

func TestLoadManifestNotFound(t *testing.T) {
	_, err := LoadManifest(t.TempDir())
	assert.ErrorIs(t, err, ErrManifestNotFound)
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, os.WriteFile(filepath.Join(dir, MANIFEST_FILE), []byte(axpertManifest), 0o644))
	m, err := LoadManifest(dir)
	assert.NoError(t, err)
	assert.Equal(t, "axpert-king-5kw", m.Name)
}
