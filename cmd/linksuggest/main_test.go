package main

import (
	"bytes"
	"math/rand/v2"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/api"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/events"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/ingest"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/internal/orchestrator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRootCommandDefinition(t *testing.T) {
	root := newRootCmd()
	assert.Equal(t, "linksuggest", root.Use)
	require.NotNil(t, root.PersistentFlags().Lookup("config"))

	var names []string
	for _, sub := range root.Commands() {
		names = append(names, sub.Name())
	}
	assert.Contains(t, names, "run")
	assert.Contains(t, names, "serve")
}

func TestRunWritesExport(t *testing.T) {
	dir := t.TempDir()
	sources := writeFile(t, dir, "sources.csv", "url,body\n"+
		"https://blog.example/post,cats make great pets\n"+
		"https://blog.example/physics,quantum chromodynamics lattice\n"+
		"not-a-url,this row is rejected\n")
	targets := writeFile(t, dir, "targets.csv", "url,body\n"+
		"https://pets.example/cats,cats are great pets\n"+
		"https://pets.example/dogs,dogs are loyal animals\n")

	stdout, stderr, err := execute(t, "run", "--sources", sources, "--targets", targets, "--log-level", "error")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "source_url,match_url,similarity_percent,suggested_anchor,match_topics,source_topics", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "https://blog.example/physics,,,"), lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "https://blog.example/post,https://pets.example/cats,"), lines[2])
	assert.Contains(t, stderr, "sources.csv: line 4")
}

func TestRunToFile(t *testing.T) {
	dir := t.TempDir()
	sources := writeFile(t, dir, "s.csv", "https://blog.example/post,cats make great pets\n")
	targets := writeFile(t, dir, "t.csv", "https://pets.example/cats,cats are great pets\n")
	out := filepath.Join(dir, "links.csv")

	stdout, _, err := execute(t, "run", "--sources", sources, "--targets", targets, "-o", out, "--log-level", "error")
	require.NoError(t, err)
	assert.Empty(t, stdout)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "https://pets.example/cats")
}

func TestRunRequiresTargets(t *testing.T) {
	dir := t.TempDir()
	sources := writeFile(t, dir, "s.csv", "https://blog.example/post,cats make great pets\n")
	targets := writeFile(t, dir, "t.csv", "url,body\n")

	_, _, err := execute(t, "run", "--sources", sources, "--targets", targets, "--log-level", "error")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no valid target documents")

	_, _, err = execute(t, "run", "--sources", sources)
	assert.Error(t, err)
}

func TestRunPublishNeedsKafka(t *testing.T) {
	dir := t.TempDir()
	sources := writeFile(t, dir, "s.csv", "https://blog.example/post,cats make great pets\n")
	targets := writeFile(t, dir, "t.csv", "https://pets.example/cats,cats are great pets\n")
	_, _, err := execute(t, "run", "--sources", sources, "--targets", targets, "--publish", "--log-level", "error")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kafka.enabled")
}

func TestRunWithSQLiteStore(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("LS_STORE_DRIVER", "sqlite")
	cfgPath := writeFile(t, dir, "cfg.yaml", "sqlite:\n  path: "+filepath.Join(dir, "links.db")+"\n")
	sources := writeFile(t, dir, "s.csv", "https://blog.example/post,cats make great pets\n")
	targets := writeFile(t, dir, "t.csv", "https://pets.example/cats,cats are great pets\n")

	for i := 0; i < 2; i++ {
		stdout, _, err := execute(t, "--config", cfgPath, "run", "--sources", sources, "--targets", targets, "--log-level", "error")
		require.NoError(t, err)
		assert.Contains(t, stdout, "https://pets.example/cats")
	}
}

func TestLoadTestAgainstServer(t *testing.T) {
	o, err := orchestrator.New(orchestrator.Config{Threshold: 0.02, TopK: 5}, orchestrator.Options{})
	require.NoError(t, err)
	defer o.Close()
	srv := httptest.NewServer(api.NewRouter(api.New(o, nil, ingest.Limits{}, 0), nil, api.RouterOptions{}))
	defer srv.Close()

	stdout, _, err := execute(t, "loadtest", "--url", srv.URL, "--concurrency", "2",
		"--duration", "200ms", "--sources", "2", "--targets", "5", "--words", "12")
	require.NoError(t, err)
	assert.Contains(t, stdout, "=== Latency (ms) ===")
	assert.Contains(t, stdout, "200: ")
	assert.Contains(t, stdout, "Errors:          0")
}

func TestSyntheticRequestIsValid(t *testing.T) {
	req := syntheticRequest(rand.New(rand.NewPCG(1, 2)), 3, 4, 10)
	assert.Len(t, req.Sources, 3)
	assert.Len(t, req.Targets, 4)
	assert.NoError(t, events.ValidateRequest(req, ingest.Limits{}))
}
