package hooks

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeHooksFile(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644); err != nil {
		t.Fatalf("write hooks.yaml: %v", err)
	}
}

func sampleContext() ExportContext {
	return ExportContext{
		ExportPath:   "/tmp/board.svg",
		ExportFormat: "svg",
		FEN:          "8/4P3/8/8/8/8/k7/7K w - - 0 1",
		Ply:          12,
		Timestamp:    time.Date(2025, 11, 30, 10, 30, 0, 0, time.UTC),
	}
}

func TestExportContextToEnv(t *testing.T) {
	env := sampleContext().ToEnv()
	want := []string{
		"BOARDSYNC_EXPORT_PATH=/tmp/board.svg",
		"BOARDSYNC_EXPORT_FORMAT=svg",
		"BOARDSYNC_FEN=8/4P3/8/8/8/8/k7/7K w - - 0 1",
		"BOARDSYNC_PLY=12",
		"BOARDSYNC_TIMESTAMP=2025-11-30T10:30:00Z",
	}
	if len(env) != len(want) {
		t.Fatalf("got %d vars, want %d", len(env), len(want))
	}
	for i := range want {
		if env[i] != want[i] {
			t.Errorf("env[%d] = %q, want %q", i, env[i], want[i])
		}
	}
}

func TestFormatOf(t *testing.T) {
	cases := map[string]string{
		"a.svg":      "svg",
		"a.PNG":      "png",
		"report.md":  "markdown",
		"noext":      "svg",
		"x.markdown": "markdown",
	}
	for path, want := range cases {
		if got := FormatOf(path); got != want {
			t.Errorf("FormatOf(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestLoaderNoConfig(t *testing.T) {
	loader := NewLoader(WithDir(t.TempDir()))
	if err := loader.Load(); err != nil {
		t.Fatalf("expected no error for missing config, got: %v", err)
	}
	if loader.HasHooks() {
		t.Error("expected no hooks when config is missing")
	}
}

func TestLoaderWithValidConfig(t *testing.T) {
	dir := t.TempDir()
	writeHooksFile(t, dir, `
hooks:
  pre-export:
    - name: validate
      command: echo "validating"
      timeout: 5s
  post-export:
    - name: upload
      command: echo "done"
      timeout: 30
      env:
        CUSTOM_VAR: value
`)

	loader := NewLoader(WithDir(dir))
	if err := loader.Load(); err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if !loader.HasHooks() {
		t.Fatal("expected hooks to be loaded")
	}

	pre := loader.GetHooks(PreExport)
	if len(pre) != 1 || pre[0].Name != "validate" {
		t.Fatalf("unexpected pre-export hooks: %+v", pre)
	}
	if pre[0].Timeout != 5*time.Second {
		t.Errorf("expected 5s timeout, got %v", pre[0].Timeout)
	}
	if pre[0].OnError != "fail" {
		t.Errorf("pre-export default on_error = %q, want fail", pre[0].OnError)
	}

	post := loader.GetHooks(PostExport)
	if len(post) != 1 {
		t.Fatalf("expected 1 post-export hook, got %d", len(post))
	}
	if post[0].Timeout != 30*time.Second {
		t.Errorf("bare seconds timeout = %v, want 30s", post[0].Timeout)
	}
	if post[0].OnError != "continue" {
		t.Errorf("post-export default on_error = %q, want continue", post[0].OnError)
	}
	if post[0].Env["CUSTOM_VAR"] != "value" {
		t.Errorf("expected CUSTOM_VAR env, got %v", post[0].Env)
	}
}

func TestLoaderInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	writeHooksFile(t, dir, "hooks:\n  pre-export:\n    - name: [invalid yaml\n")

	if err := NewLoader(WithDir(dir)).Load(); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoaderSkipsEmptyCommandsAndDefaultsNames(t *testing.T) {
	dir := t.TempDir()
	writeHooksFile(t, dir, `
hooks:
  pre-export:
    - name: empty
      command: ""
  post-export:
    - command: "   "
    - command: echo ok
      on_error: sometimes
`)

	loader := NewLoader(WithDir(dir))
	if err := loader.Load(); err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if len(loader.GetHooks(PreExport)) != 0 {
		t.Error("expected empty pre-export command to be skipped")
	}
	post := loader.GetHooks(PostExport)
	if len(post) != 1 {
		t.Fatalf("expected 1 post-export hook, got %d", len(post))
	}
	if post[0].Name != "post-export-2" {
		t.Errorf("default name = %q", post[0].Name)
	}
	if post[0].OnError != "fail" {
		t.Errorf("unknown on_error should fall back to fail, got %q", post[0].OnError)
	}
	if len(loader.Warnings()) != 3 {
		t.Errorf("expected 3 warnings, got %v", loader.Warnings())
	}
}

func TestExecutorRunSimpleHook(t *testing.T) {
	config := &Config{Hooks: HooksByPhase{PreExport: []Hook{
		{Name: "echo-test", Command: "echo hello", Timeout: 5 * time.Second, OnError: "fail"},
	}}}

	executor := NewExecutor(config, sampleContext())
	if err := executor.RunPreExport(); err != nil {
		t.Fatalf("expected hook to succeed, got: %v", err)
	}

	results := executor.Results()
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if !results[0].Success {
		t.Errorf("expected success, got failure: %v", results[0].Error)
	}
	if results[0].Stdout != "hello" {
		t.Errorf("expected stdout 'hello', got %q", results[0].Stdout)
	}
}

func TestExecutorEnvironmentVariables(t *testing.T) {
	config := &Config{Hooks: HooksByPhase{PostExport: []Hook{
		{Name: "env", Command: `echo "$BOARDSYNC_EXPORT_PATH $BOARDSYNC_PLY $BOARDSYNC_EXPORT_FORMAT"`, Timeout: 5 * time.Second},
	}}}

	executor := NewExecutor(config, sampleContext())
	if err := executor.RunPostExport(); err != nil {
		t.Fatalf("expected success, got: %v", err)
	}
	if got := executor.Results()[0].Stdout; got != "/tmp/board.svg 12 svg" {
		t.Errorf("expected env vars in output, got %q", got)
	}
}

func TestExecutorCustomEnvExpansion(t *testing.T) {
	t.Setenv("TEST_HOOK_VAR", "expanded_value")

	config := &Config{Hooks: HooksByPhase{PreExport: []Hook{{
		Name:    "env-expand",
		Command: "echo $CUSTOM_VAR",
		Timeout: 5 * time.Second,
		OnError: "fail",
		Env:     map[string]string{"CUSTOM_VAR": "${TEST_HOOK_VAR}"},
	}}}}

	executor := NewExecutor(config, sampleContext())
	if err := executor.RunPreExport(); err != nil {
		t.Fatalf("expected success, got: %v", err)
	}
	if got := executor.Results()[0].Stdout; got != "expanded_value" {
		t.Errorf("expected env expansion, got %q", got)
	}
}

func TestExecutorHookTimeout(t *testing.T) {
	config := &Config{Hooks: HooksByPhase{PreExport: []Hook{
		{Name: "slow-hook", Command: "sleep 10", Timeout: 100 * time.Millisecond, OnError: "fail"},
	}}}

	executor := NewExecutor(config, sampleContext())
	start := time.Now()
	if err := executor.RunPreExport(); err == nil {
		t.Error("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timeout did not stop the hook promptly: %v", elapsed)
	}

	results := executor.Results()
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Success {
		t.Error("expected hook to fail due to timeout")
	}
	if !strings.Contains(results[0].Error.Error(), "timed out") {
		t.Errorf("unexpected error: %v", results[0].Error)
	}
}

func TestRunPreExportStopsOnFail(t *testing.T) {
	config := &Config{Hooks: HooksByPhase{PreExport: []Hook{
		{Name: "fail-fast", Command: "exit 1", Timeout: time.Second, OnError: "fail"},
		{Name: "should-not-run", Command: "echo nope", Timeout: time.Second, OnError: "fail"},
	}}}

	executor := NewExecutor(config, ExportContext{})
	if err := executor.RunPreExport(); err == nil {
		t.Fatal("expected error from failing pre-export hook")
	}
	results := executor.Results()
	if len(results) != 1 {
		t.Fatalf("expected only first hook to run, got %d results", len(results))
	}
}

func TestRunPreExportContinue(t *testing.T) {
	config := &Config{Hooks: HooksByPhase{PreExport: []Hook{
		{Name: "soft", Command: "exit 3", Timeout: time.Second, OnError: "continue"},
		{Name: "next", Command: "echo next", Timeout: time.Second, OnError: "fail"},
	}}}

	executor := NewExecutor(config, ExportContext{})
	if err := executor.RunPreExport(); err != nil {
		t.Fatalf("expected no error with on_error=continue, got: %v", err)
	}
	if len(executor.Results()) != 2 {
		t.Fatalf("expected both hooks to run")
	}
}

func TestRunPostExportFailOnErrorStillRunsAll(t *testing.T) {
	config := &Config{Hooks: HooksByPhase{PostExport: []Hook{
		{Name: "fail", Command: "exit 1", Timeout: time.Second, OnError: "fail"},
		{Name: "after", Command: "echo ok", Timeout: time.Second, OnError: "continue"},
	}}}

	executor := NewExecutor(config, ExportContext{})
	if err := executor.RunPostExport(); err == nil {
		t.Fatal("expected error for post-export hook with on_error=fail")
	}
	results := executor.Results()
	if len(results) != 2 {
		t.Fatalf("expected both hooks to run, got %d", len(results))
	}
	if results[1].Stdout != "ok" {
		t.Errorf("expected second hook to run despite earlier failure, got stdout %q", results[1].Stdout)
	}
}

func TestExecutorSummary(t *testing.T) {
	config := &Config{Hooks: HooksByPhase{
		PreExport:  []Hook{{Name: "ok", Command: "echo ok", Timeout: 5 * time.Second, OnError: "continue"}},
		PostExport: []Hook{{Name: "broken", Command: "echo oops >&2; exit 1", Timeout: 5 * time.Second, OnError: "continue"}},
	}}

	executor := NewExecutor(config, sampleContext())
	if executor.Summary() != "" {
		t.Error("expected empty summary before any run")
	}
	_ = executor.RunPreExport()
	_ = executor.RunPostExport()

	summary := executor.Summary()
	if !strings.Contains(summary, "1 succeeded") || !strings.Contains(summary, "1 failed") {
		t.Errorf("summary should count success and failure: %s", summary)
	}
	if !strings.Contains(summary, "broken") || !strings.Contains(summary, "oops") {
		t.Errorf("summary should name the failing hook and its stderr: %s", summary)
	}
}

func TestRunHooks(t *testing.T) {
	dir := t.TempDir()

	exec, err := RunHooks(dir, ExportContext{}, false)
	if err != nil || exec != nil {
		t.Fatalf("missing config should return nil executor without error, got exec=%v err=%v", exec, err)
	}

	writeHooksFile(t, dir, "hooks:\n  post-export:\n    - command: echo hi\n")

	exec, err = RunHooks(dir, ExportContext{}, true)
	if err != nil || exec != nil {
		t.Fatalf("noHooks should short-circuit, got exec=%v err=%v", exec, err)
	}

	exec, err = RunHooks(dir, sampleContext(), false)
	if err != nil {
		t.Fatalf("RunHooks returned error: %v", err)
	}
	if exec == nil || len(exec.config.Hooks.PostExport) != 1 {
		t.Fatalf("executor config not initialized correctly")
	}
	if len(exec.Results()) != 0 {
		t.Fatalf("results should be empty before runs")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("truncate should return original when shorter, got %q", got)
	}
	if got := truncate("abcdefghijklmnopqrstuvwxyz", 8); got != "abcde..." {
		t.Fatalf("unexpected truncation output: %q", got)
	}
}

func TestAround(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(t.TempDir(), "board.svg")
	writeHooksFile(t, dir, `
hooks:
  pre-export:
    - command: test ! -e "$BOARDSYNC_EXPORT_PATH"
  post-export:
    - command: test -e "$BOARDSYNC_EXPORT_PATH"
      on_error: fail
`)

	ctx := ExportContext{ExportPath: out, ExportFormat: "svg"}
	exec, err := Around(dir, ctx, false, func() error {
		return os.WriteFile(out, []byte("<svg/>"), 0o644)
	})
	if err != nil {
		t.Fatalf("Around: %v", err)
	}
	if exec == nil || len(exec.Results()) != 2 {
		t.Fatalf("expected both hooks to run")
	}

	// The file now exists, so the pre-export check fails and nothing is written.
	wrote := false
	_, err = Around(dir, ctx, false, func() error {
		wrote = true
		return nil
	})
	if err == nil || !strings.Contains(err.Error(), "export cancelled") {
		t.Fatalf("expected cancelled export, got %v", err)
	}
	if wrote {
		t.Error("write ran after a failing pre-export hook")
	}

	exec, err = Around(t.TempDir(), ctx, false, func() error { return nil })
	if err != nil || exec != nil {
		t.Fatalf("no hooks configured: exec=%v err=%v", exec, err)
	}
}
