package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/turbo/internal/config"
	"github.com/zjrosen/turbo/internal/flags"
	"github.com/zjrosen/turbo/internal/pathmap"
	"github.com/zjrosen/turbo/internal/presentation"
)

const testDefinitions = `definitions:
  - id: etl
    name: Nightly ETL
    parameters: object
    labels:
      team: data
  - id: plain
    name: Plain
`

const testRequest = `job_definition_id: etl
name: nightly
group_path: pipelines/nightly
replication_mode: follow_queue
extra_queues: [q1, q2]
output_queues: [warehouse]
parameters:
  source: s3://bucket
`

// testWorkspace writes a config, a definitions file and a request file
// into a temp dir and returns the config path.
func testWorkspace(t *testing.T) (dir, configPath string) {
	t.Helper()
	dir = t.TempDir()
	configPath = filepath.Join(dir, "config.yaml")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "definitions.yaml"), []byte(testDefinitions), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "request.yaml"), []byte(testRequest), 0o600))
	require.NoError(t, os.WriteFile(configPath, []byte(fmt.Sprintf(`storage:
  path: %s
definitions:
  path: %s
`, filepath.Join(dir, "turbo.db"), filepath.Join(dir, "definitions.yaml"))), 0o600))

	return dir, configPath
}

// resetFlags puts every flag back to its default so that runs do not leak
// into each other.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.PersistentFlags().VisitAll(reset)
	c.Flags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// runCLI executes the root command with args and returns combined output.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	viper.Reset()
	_ = viper.BindPFlag("storage.path", rootCmd.PersistentFlags().Lookup("db"))
	_ = viper.BindPFlag("definitions.path", rootCmd.PersistentFlags().Lookup("definitions"))
	cfg = config.Config{}

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCLI_DefinitionsList(t *testing.T) {
	_, configPath := testWorkspace(t)

	out, err := runCLI(t, "--config", configPath, "definitions", "list")
	require.NoError(t, err, out)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"etl", "Nightly", "ETL", "object", "team=data"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"plain", "Plain", "-", "-"}, strings.Fields(lines[2]))
}

func TestCLI_DefinitionsFlagOverridesConfig(t *testing.T) {
	dir, configPath := testWorkspace(t)
	other := filepath.Join(dir, "other.yaml")
	require.NoError(t, os.WriteFile(other, []byte("definitions:\n  - id: only\n"), 0o600))

	out, err := runCLI(t, "--config", configPath, "--definitions", other, "definitions", "list", "-o", "json")
	require.NoError(t, err, out)

	var defs []presentation.DefinitionDTO
	require.NoError(t, json.Unmarshal([]byte(out), &defs))
	require.Len(t, defs, 1)
	assert.Equal(t, "only", defs[0].ID)
}

func TestCLI_InstancesCreateAndList(t *testing.T) {
	dir, configPath := testWorkspace(t)
	request := filepath.Join(dir, "request.yaml")

	out, err := runCLI(t, "--config", configPath, "instances", "create", "-f", request, "-o", "json")
	require.NoError(t, err, out)

	var created []presentation.InstanceDTO
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	require.Len(t, created, 2)
	assert.Equal(t, "q1", created[0].InputQueue)
	assert.Equal(t, "q2", created[1].InputQueue)
	assert.Equal(t, "manual_setting", created[0].Mode)
	assert.Equal(t, []string{"warehouse"}, created[0].OutputQueues)

	// A fresh process restores the instances from the database.
	out, err = runCLI(t, "--config", configPath, "instances", "list", "-o", "json")
	require.NoError(t, err, out)
	var listed []presentation.InstanceDTO
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	require.Len(t, listed, 2)
	assert.ElementsMatch(t, []string{created[0].ID, created[1].ID}, []string{listed[0].ID, listed[1].ID})

	out, err = runCLI(t, "--config", configPath, "instances", "list", "--group", "pipelines", "-o", "json")
	require.NoError(t, err, out)
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	assert.Len(t, listed, 2)

	out, err = runCLI(t, "--config", configPath, "instances", "list", "--group", "elsewhere", "-o", "json")
	require.NoError(t, err, out)
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	assert.Empty(t, listed)
}

func TestCLI_InstancesCreateExisting(t *testing.T) {
	dir, configPath := testWorkspace(t)
	request := filepath.Join(dir, "request.yaml")

	_, err := runCLI(t, "--config", configPath, "instances", "create", "-f", request)
	require.NoError(t, err)

	out, err := runCLI(t, "--config", configPath, "instances", "create", "-f", request)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Instance already exists, nothing created")

	out, err = runCLI(t, "--config", configPath, "instances", "create", "-f", request, "--fail-if-exists")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestCLI_InstancesCreateRequiresFile(t *testing.T) {
	_, configPath := testWorkspace(t)

	_, err := runCLI(t, "--config", configPath, "instances", "create")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"file" not set`)
}

func TestCLI_InstancesCreateMissingParameters(t *testing.T) {
	dir, configPath := testWorkspace(t)
	request := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(request, []byte("job_definition_id: etl\n"), 0o600))

	_, err := runCLI(t, "--config", configPath, "instances", "create", "-f", request)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires parameters")
}

func TestCLI_InstancesDelete(t *testing.T) {
	dir, configPath := testWorkspace(t)
	request := filepath.Join(dir, "one.yaml")
	require.NoError(t, os.WriteFile(request, []byte("job_definition_id: plain\ninstance_resource_id: one\n"), 0o600))

	_, err := runCLI(t, "--config", configPath, "instances", "create", "-f", request)
	require.NoError(t, err)

	out, err := runCLI(t, "--config", configPath, "instances", "delete", "one")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Deleted one")

	_, err = runCLI(t, "--config", configPath, "instances", "delete", "one")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestCLI_ObjectsList(t *testing.T) {
	_, configPath := testWorkspace(t)

	out, err := runCLI(t, "--config", configPath, "objects", "list", "--prefix", "jobs/definitions", "-o", "json")
	require.NoError(t, err, out)

	var objects []presentation.ObjectDTO
	require.NoError(t, json.Unmarshal([]byte(out), &objects))
	require.Len(t, objects, 2)
	assert.Equal(t, "jobs/definitions/etl", objects[0].Path)
	assert.Equal(t, "*jobs.Definition", objects[0].Type)

	out, err = runCLI(t, "--config", configPath, "objects", "list", "--match", "jobs/definitions/p.*", "-o", "json")
	require.NoError(t, err, out)
	require.NoError(t, json.Unmarshal([]byte(out), &objects))
	require.Len(t, objects, 1)
	assert.Equal(t, "jobs/definitions/plain", objects[0].Path)
}

func TestCLI_ObjectsListInvalidMatch(t *testing.T) {
	_, configPath := testWorkspace(t)

	_, err := runCLI(t, "--config", configPath, "objects", "list", "--match", "(")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --match expression")
}

func TestCLI_UnknownOutputFormat(t *testing.T) {
	_, configPath := testWorkspace(t)

	_, err := runCLI(t, "--config", configPath, "definitions", "list", "-o", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
}

func TestCLI_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("storage:\n  disabled: true\nlog:\n  level: loud\n"), 0o600))

	_, err := runCLI(t, "--config", configPath, "definitions", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestCLI_ConfigSet(t *testing.T) {
	_, configPath := testWorkspace(t)

	out, err := runCLI(t, "--config", configPath, "config", "set", "server.queue_capacity", "50")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Set server.queue_capacity")

	_, err = runCLI(t, "--config", configPath, "config", "set", "server.dedup_ttl", "2s")
	require.NoError(t, err)

	_, err = runCLI(t, "--config", configPath, "definitions", "list")
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Server.QueueCapacity)
	assert.Equal(t, "2s", cfg.Server.DedupTTL.String())
}

func TestCLI_ConfigInit(t *testing.T) {
	dir, configPath := testWorkspace(t)
	target := filepath.Join(dir, "new", "config.yaml")

	out, err := runCLI(t, "--config", configPath, "config", "init", target)
	require.NoError(t, err, out)
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfigTemplate(), string(data))

	_, err = runCLI(t, "--config", configPath, "config", "init", target)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = runCLI(t, "--config", configPath, "config", "init", target, "--force")
	require.NoError(t, err)
}

func TestCLI_LogFile(t *testing.T) {
	dir, configPath := testWorkspace(t)
	logPath := filepath.Join(dir, "turbo.log")
	f, err := os.OpenFile(configPath, os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = fmt.Fprintf(f, "log:\n  path: %s\n  level: debug\n", logPath)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = runCLI(t, "--config", configPath, "definitions", "list")
	require.NoError(t, err)

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[jobs] Registry ready")
}

func TestStartService_EventStreamFlag(t *testing.T) {
	dir, _ := testWorkspace(t)

	c := config.Defaults()
	c.Storage = config.StorageConfig{Disabled: true}
	c.Definitions.Path = filepath.Join(dir, "definitions.yaml")
	c.Server.Addr = "127.0.0.1:0"
	c.Flags = map[string]bool{flags.FlagEventStream: false}

	svc, err := startService(context.Background(), c)
	require.NoError(t, err)
	go func() { _ = svc.server.Start() }()
	t.Cleanup(func() { svc.shutdown(context.Background()) })

	base := fmt.Sprintf("http://127.0.0.1:%d", svc.server.Port())
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/events")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusNotFound
	}, time.Second*2, 20*time.Millisecond)
}

func TestStartService_ServesRegistry(t *testing.T) {
	dir, _ := testWorkspace(t)

	c := config.Defaults()
	c.Storage = config.StorageConfig{Disabled: true}
	c.Definitions.Path = filepath.Join(dir, "definitions.yaml")
	c.Server.Addr = "127.0.0.1:0"
	c.Server.DedupTTL = 0

	svc, err := startService(context.Background(), c)
	require.NoError(t, err)
	go func() { _ = svc.server.Start() }()
	t.Cleanup(func() { svc.shutdown(context.Background()) })

	base := fmt.Sprintf("http://127.0.0.1:%d", svc.server.Port())
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, time.Second*2, 20*time.Millisecond)

	resp, err := http.Post(base+"/instances", "application/json",
		strings.NewReader(`{"job_definition_id": "etl", "instance_resource_id": "one", "parameters": {"source": "s3"}}`))
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, err = http.Get(base + "/instances/one")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rec map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rec))
	assert.Equal(t, "one", rec["instance_resource_id"])
	assert.Equal(t, map[string]any{"source": "s3"}, rec["parameters"])
}

func TestStartService_DedupRejectsRepeatedCreate(t *testing.T) {
	dir, _ := testWorkspace(t)

	c := config.Defaults()
	c.Storage = config.StorageConfig{Disabled: true}
	c.Definitions.Path = filepath.Join(dir, "definitions.yaml")
	c.Server.Addr = "127.0.0.1:0"
	c.Server.DedupTTL = time.Minute

	svc, err := startService(context.Background(), c)
	require.NoError(t, err)
	t.Cleanup(func() { svc.shutdown(context.Background()) })

	body := `{"job_definition_id": "plain", "instance_resource_id": "dup"}`
	go func() { _ = svc.server.Start() }()
	base := fmt.Sprintf("http://127.0.0.1:%d", svc.server.Port())
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return true
	}, time.Second*2, 20*time.Millisecond)

	resp, err := http.Post(base+"/instances", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, err = http.Post(base+"/instances", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestStartService_MissingDefinitionsFile(t *testing.T) {
	c := config.Defaults()
	c.Storage = config.StorageConfig{Disabled: true}
	c.Server.Addr = "127.0.0.1:0"
	c.Definitions = config.DefinitionsConfig{Path: filepath.Join(t.TempDir(), "missing", "defs.yaml"), Watch: true}

	svc, err := startService(context.Background(), c)
	if err == nil {
		svc.shutdown(context.Background())
	}
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading definitions")
}

func TestStartService_WatchReloadsDefinitions(t *testing.T) {
	dir, _ := testWorkspace(t)
	defsPath := filepath.Join(dir, "definitions.yaml")

	c := config.Defaults()
	c.Storage = config.StorageConfig{Disabled: true}
	c.Server.Addr = "127.0.0.1:0"
	c.Definitions = config.DefinitionsConfig{Path: defsPath, Watch: true, Debounce: 20 * time.Millisecond}

	svc, err := startService(context.Background(), c)
	require.NoError(t, err)
	t.Cleanup(func() { svc.shutdown(context.Background()) })

	require.NoError(t, os.WriteFile(defsPath, []byte("definitions:\n  - id: fresh\n"), 0o600))

	require.Eventually(t, func() bool {
		_, ok := svc.rt.central.ObjectReference(context.Background(), pathmap.P("jobs", "definitions", "fresh"))
		return ok
	}, 5*time.Second, 20*time.Millisecond)
	_, ok := svc.rt.central.ObjectReference(context.Background(), pathmap.P("jobs", "definitions", "etl"))
	assert.False(t, ok)
}
