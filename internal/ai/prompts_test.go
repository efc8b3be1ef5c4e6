package ai

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemplate(t *testing.T, dir, file, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(body), 0o644))
}

func TestPromptManagerRender(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "decision.yaml", `
name: decision
system: "你是 {{symbol}} 的交易员"
user: "当前价 {{price}}，请判断"
`)
	m, err := NewPromptManager(dir)
	require.NoError(t, err)
	defer m.Close()

	sys, user, err := m.Render("decision", map[string]string{"symbol": "HK.00700", "price": "321.5"})
	require.NoError(t, err)
	assert.Equal(t, "你是 HK.00700 的交易员", sys)
	assert.Equal(t, "当前价 321.5，请判断", user)

	_, _, err = m.Render("missing", nil)
	assert.Error(t, err)
}

func TestPromptManagerNameFallsBackToFilename(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "reflect.yaml", "system: s\nuser: u\n")
	m, err := NewPromptManager(dir)
	require.NoError(t, err)
	defer m.Close()
	assert.Contains(t, m.Names(), "reflect")
}

func TestPromptManagerEmptyDirFails(t *testing.T) {
	_, err := NewPromptManager(t.TempDir())
	assert.Error(t, err)
}
