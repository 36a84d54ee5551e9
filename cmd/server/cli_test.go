package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/liamcoop/rulesets/internal/config"
	"github.com/liamcoop/rulesets/rules"
	"github.com/liamcoop/rulesets/ruleservice"
)

const adultsYAML = `
name: adults
rules:
  - id: age
    type: condition
    path: user.age
    operator: ">="
    value: 18
  - id: geo
    type: group
    logic: OR
    children:
      - {id: us, type: condition, path: user.country, operator: "==", value: US}
      - {id: ca, type: condition, path: user.country, operator: "==", value: CA}
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// runCLI executes the root command with args and returns stdout
func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	// flag values persist on the package-level command between runs
	evalJSON, evalStopOnFirst, evalPayloadFile = false, false, "-"

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestEvaluateCommand_JSON(t *testing.T) {
	dir := t.TempDir()
	rulesetPath := writeFile(t, dir, "adults.yaml", adultsYAML)

	out, err := runCLI(t, `{"user":{"age":30,"country":"US"}}`,
		"evaluate", "--ruleset", rulesetPath, "--payload", "-", "--json")
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}

	var result rules.EvaluationResult
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("output is not a result envelope: %v\n%s", err, out)
	}
	if result.Status != rules.StatusPass {
		t.Errorf("Expected PASS, got %s", result.Status)
	}
}

func TestEvaluateCommand_FailExitsWithError(t *testing.T) {
	dir := t.TempDir()
	rulesetPath := writeFile(t, dir, "adults.yaml", adultsYAML)
	payloadPath := writeFile(t, dir, "payload.json", `{"user":{"age":12,"country":"US"}}`)

	out, err := runCLI(t, "", "evaluate", "--ruleset", rulesetPath, "--payload", payloadPath)
	if !errors.Is(err, errRulesetFailed) {
		t.Fatalf("Expected errRulesetFailed, got %v", err)
	}
	if !strings.Contains(out, "FAIL") || !strings.Contains(out, "age") {
		t.Errorf("Expected table output naming the failing node, got:\n%s", out)
	}
}

func TestEvaluateCommand_InvalidPayload(t *testing.T) {
	dir := t.TempDir()
	rulesetPath := writeFile(t, dir, "adults.yaml", adultsYAML)

	_, err := runCLI(t, `{"user":`, "evaluate", "--ruleset", rulesetPath)
	if err == nil || !strings.Contains(err.Error(), "invalid JSON payload") {
		t.Errorf("Expected invalid payload error, got %v", err)
	}
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.yaml", adultsYAML)
	bad := writeFile(t, dir, "bad.json", `{"rules":[{"id":"x","type":"condition","path":"a","operator":"~","value":1}]}`)

	out, err := runCLI(t, "", "validate", good)
	if err != nil {
		t.Fatalf("validate good file failed: %v\n%s", err, out)
	}

	out, err = runCLI(t, "", "validate", good, bad)
	if err == nil {
		t.Fatal("Expected error when a file is invalid")
	}
	if !strings.Contains(out, "invalid operator") {
		t.Errorf("Expected output to name the problem, got:\n%s", out)
	}
}

func TestOpenStore_DirValidation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	validate := func(rs *rules.Ruleset) error {
		return ruleservice.ValidateRuleset(rs, 0)
	}
	dir := t.TempDir()
	writeFile(t, dir, "adults.yaml", adultsYAML)

	store, _, closeStore, err := openStore(ctx, config.StoreConfig{Driver: config.StoreDir, Dir: dir}, validate)
	if err != nil {
		t.Fatalf("openStore() failed: %v", err)
	}
	closeStore()
	if _, err := store.Get(ctx, "adults"); err != nil {
		t.Errorf("Get() failed: %v", err)
	}

	writeFile(t, dir, "dup.json",
		`{"rules":[{"id":"a","type":"condition","path":"x","operator":"==","value":1},{"id":"a","type":"condition","path":"y","operator":"==","value":2}]}`)
	_, _, _, err = openStore(ctx, config.StoreConfig{Driver: config.StoreDir, Dir: dir}, validate)
	if !errors.Is(err, ruleservice.ErrInvalidRuleset) {
		t.Errorf("openStore() error = %v, want ErrInvalidRuleset", err)
	}
}
