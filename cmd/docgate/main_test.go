package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/artpar/docgate/adapters/auth"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// executeCommand runs the root command with args and captures its output.
func executeCommand(t *testing.T, args ...string) (string, error) {
	return executeCommandWithInput(t, "", args...)
}

func executeCommandWithInput(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })

	cfgFile = "docgate.yaml"
	insertFormat = "json"
	validateFormat = "table"
	tokenResources = nil
	hashCost = 0

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	return buf.String(), err
}

// writeProject creates a config using the memory store and a people resource.
func writeProject(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	resDir := filepath.Join(dir, "resources")
	if err := os.Mkdir(resDir, 0755); err != nil {
		t.Fatal(err)
	}
	write := func(path, body string) {
		t.Helper()
		if err := os.WriteFile(path, []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
	}

	write(filepath.Join(resDir, "people.yaml"), `
resource: people
schema:
  name:  { type: string, required: true, constraints: [{ type: min_length, value: 2 }] }
  title: { type: string, default: Dr. }
`)
	path := filepath.Join(dir, "docgate.yaml")
	write(path, `
resources:
  dir: ./resources
database:
  driver: memory
documents:
  id_generator: sequential
logging:
  level: error
`)
	return path
}

func TestVersionCommand(t *testing.T) {
	out, err := executeCommand(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, "docgate dev") {
		t.Errorf("output = %q", out)
	}
}

func TestValidateCommand(t *testing.T) {
	path := writeProject(t)

	out, err := executeCommand(t, "validate", "--config", path)
	if err != nil {
		t.Fatalf("validate: %v\n%s", err, out)
	}
	for _, want := range []string{"Config valid", "Resources valid: 1", "people", "NAME"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestValidateCommand_Errors(t *testing.T) {
	t.Setenv("DOCGATE_RESOURCES_DIR", "")

	if _, err := executeCommand(t, "validate", "--config", filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing config should fail")
	}

	path := writeProject(t)
	if _, err := executeCommand(t, "validate", "--config", path, "--format", "xml"); err == nil ||
		!strings.Contains(err.Error(), "unknown format") {
		t.Errorf("err = %v, want unknown format", err)
	}
}

func TestInsertCommand(t *testing.T) {
	path := writeProject(t)
	input := filepath.Join(filepath.Dir(path), "ada.json")
	os.WriteFile(input, []byte(`{"name":"Ada"}`), 0644)

	out, err := executeCommand(t, "insert", "people", input, "--config", path)
	if err != nil {
		t.Fatalf("insert: %v\n%s", err, out)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(out), &body); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if body["_status"] != "OK" || body["id"] != "1" {
		t.Errorf("body = %v", body)
	}
	if body["title"] != "Dr." {
		t.Errorf("default not applied: %v", body)
	}
}

func TestInsertCommand_YAMLBatch(t *testing.T) {
	path := writeProject(t)
	input := filepath.Join(filepath.Dir(path), "batch.yaml")
	os.WriteFile(input, []byte("- name: Grace\n- name: X\n"), 0644)

	out, err := executeCommand(t, "insert", "people", input, "--config", path, "--format", "table")
	if err != nil {
		t.Fatalf("partial commit should succeed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "OK") || !strings.Contains(out, "ERR") {
		t.Errorf("table output = %s", out)
	}
	if !strings.Contains(out, "min length is 2") {
		t.Errorf("issue not reported: %s", out)
	}
}

func TestInsertCommand_Failures(t *testing.T) {
	path := writeProject(t)
	dir := filepath.Dir(path)

	invalid := filepath.Join(dir, "bad.json")
	os.WriteFile(invalid, []byte(`{"title":"Mx."}`), 0644)

	out, err := executeCommand(t, "insert", "people", invalid, "--config", path)
	if err == nil || !strings.Contains(err.Error(), "status 422") {
		t.Errorf("err = %v, want status 422", err)
	}
	if !strings.Contains(out, "required field") {
		t.Errorf("output = %s", out)
	}

	if _, err := executeCommand(t, "insert", "ghosts", invalid, "--config", path); err == nil ||
		!strings.Contains(err.Error(), "status 404") {
		t.Errorf("err = %v, want status 404", err)
	}

	scalar := filepath.Join(dir, "scalar.json")
	os.WriteFile(scalar, []byte(`42`), 0644)
	if _, err := executeCommand(t, "insert", "people", scalar, "--config", path); err == nil ||
		!strings.Contains(err.Error(), "expected an object") {
		t.Errorf("err = %v, want malformed input", err)
	}
}

func TestReadDocuments(t *testing.T) {
	docs, isArray, err := readDocuments(strings.NewReader(`[{"a":1},{"a":2}]`), "-")
	if err != nil {
		t.Fatalf("readDocuments: %v", err)
	}
	if !isArray || len(docs) != 2 {
		t.Errorf("docs = %v, isArray = %v", docs, isArray)
	}

	if _, _, err := readDocuments(strings.NewReader(`[1]`), "-"); err == nil {
		t.Error("non-object item should fail")
	}
}

func TestHashPasswordCommand(t *testing.T) {
	out, err := executeCommandWithInput(t, "s3cret\n", "hash-password", "--cost", "4")
	if err != nil {
		t.Fatalf("hash-password: %v", err)
	}
	hash := strings.TrimSpace(out)
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")) != nil {
		t.Errorf("hash %q does not match password", hash)
	}

	if _, err := executeCommandWithInput(t, "\n", "hash-password"); err == nil {
		t.Error("empty password should fail")
	}
}

func TestTokenCommand(t *testing.T) {
	path := writeProject(t)
	secret := "0123456789abcdef0123456789abcdef"
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("auth:\n  mode: token\n  secret: " + secret + "\n")
	f.Close()

	out, err := executeCommand(t, "token", "importer", "--config", path, "-r", "people")
	if err != nil {
		t.Fatalf("token: %v\n%s", err, out)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	claims, err := auth.NewTokenService(secret, "docgate", 0).ValidateToken(lines[0])
	if err != nil {
		t.Fatalf("minted token invalid: %v", err)
	}
	if claims.Subject != "importer" || len(claims.Resources) != 1 || claims.Resources[0] != "people" {
		t.Errorf("claims = %+v", claims)
	}

	if _, err := executeCommand(t, "token", "ops", "--config", writeProject(t)); err == nil {
		t.Error("token without token auth should fail")
	}
}
