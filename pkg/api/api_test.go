package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lemonberrylabs/condeval/pkg/store"
)

func setupTestServer(t *testing.T) (*Server, *bytes.Buffer) {
	t.Helper()
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	return New(store.New(), WithLogger(logger)), &logs
}

func doRequest(t *testing.T, srv *Server, method, path, body string) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := srv.App().Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("invalid JSON response %q: %v", raw, err)
	}
	return resp.StatusCode, out
}

func errorStatus(t *testing.T, body map[string]interface{}) string {
	t.Helper()
	e, ok := body["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error envelope, got %v", body)
	}
	return e["status"].(string)
}

func TestEvaluateExpression(t *testing.T) {
	srv, _ := setupTestServer(t)

	tests := []struct {
		name string
		body string
		want interface{}
	}{
		{"boolean default", `{"expression": "level >= 5", "variables": {"level": 7}}`, true},
		{"number mode", `{"expression": "1 + 2 * 3", "mode": "number"}`, 7.0},
		{"power", `{"expression": "2 ^ 3 ^ 2", "mode": "number"}`, 512.0},
		{"numeric string", `{"expression": "'100' == 100"}`, true},
		{"null safe", `{"expression": "x < 5"}`, false},
		{"contains", `{"expression": "perms.contains('fly')", "variables": {"perms": ["build", "fly"]}}`, true},
		{"class relation", `{"expression": "n :> 'java.lang.Number'", "variables": {"n": 3}}`, true},
		{"infinity", `{"expression": "1 / 0", "mode": "number"}`, "Infinity"},
		{"null variables", `{"expression": "true", "variables": null}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := doRequest(t, srv, "POST", "/v1/expressions:evaluate", tt.body)
			if code != 200 {
				t.Fatalf("expected 200, got %d: %v", code, body)
			}
			if body["result"] != tt.want {
				t.Errorf("result = %v, want %v", body["result"], tt.want)
			}
		})
	}
}

func TestEvaluateExpressionErrors(t *testing.T) {
	srv, logs := setupTestServer(t)

	tests := []struct {
		name   string
		body   string
		status string
		msg    string
	}{
		{"missing expression", `{}`, "INVALID_ARGUMENT", "expression is required"},
		{"bad json", `{"expression":`, "INVALID_ARGUMENT", "invalid request body"},
		{"bad mode", `{"expression": "1", "mode": "string"}`, "INVALID_ARGUMENT", "mode must be"},
		{"syntax", `{"expression": "1 +"}`, "INVALID_ARGUMENT", "SyntaxError"},
		{"object variable", `{"expression": "1", "variables": {"p": {"name": "x"}}}`, "INVALID_ARGUMENT", "object values are not supported"},
		{"variables not object", `{"expression": "1", "variables": [1]}`, "INVALID_ARGUMENT", "variables must be an object"},
		{"disallowed method", `{"expression": "p.getClass()"}`, "FAILED_PRECONDITION", "method getClass is not allowed"},
		{"property", `{"expression": "p.name", "mode": "number"}`, "FAILED_PRECONDITION", "not supported for safety"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := doRequest(t, srv, "POST", "/v1/expressions:evaluate", tt.body)
			if code != 400 {
				t.Fatalf("expected 400, got %d: %v", code, body)
			}
			if got := errorStatus(t, body); got != tt.status {
				t.Errorf("status = %s, want %s", got, tt.status)
			}
			msg := body["error"].(map[string]interface{})["message"].(string)
			if !strings.Contains(msg, tt.msg) {
				t.Errorf("message %q does not contain %q", msg, tt.msg)
			}
		})
	}

	if logs.Len() != 0 {
		t.Errorf("strict mode must not log, got %s", logs.String())
	}
}

func TestEvaluateExpressionLenient(t *testing.T) {
	srv, logs := setupTestServer(t)

	code, body := doRequest(t, srv, "POST", "/v1/expressions:evaluate",
		`{"expression": "p.getClass()", "lenient": true}`)
	if code != 200 {
		t.Fatalf("expected 200, got %d: %v", code, body)
	}
	if body["result"] != false {
		t.Errorf("result = %v, want false", body["result"])
	}

	code, body = doRequest(t, srv, "POST", "/v1/expressions:evaluate",
		`{"expression": "sqrt('abc')", "mode": "number", "lenient": true}`)
	if code != 200 {
		t.Fatalf("expected 200, got %d: %v", code, body)
	}
	if body["result"] != 0.0 {
		t.Errorf("result = %v, want 0", body["result"])
	}

	if !strings.Contains(logs.String(), "expression evaluation failed") {
		t.Errorf("expected failures to be logged, got %q", logs.String())
	}
	if !strings.Contains(logs.String(), "p.getClass()") {
		t.Errorf("expected expression text in log, got %q", logs.String())
	}
}

func TestRuleCRUD(t *testing.T) {
	srv, _ := setupTestServer(t)

	code, body := doRequest(t, srv, "POST", "/v1/rules",
		`{"name": "can-fly", "expression": "level >= 5", "description": "Flight"}`)
	if code != 200 {
		t.Fatalf("create: expected 200, got %d: %v", code, body)
	}
	if body["type"] != "boolean" || body["revisionId"] != "000001-000" || body["source"] != "api" {
		t.Errorf("unexpected rule: %v", body)
	}

	code, body = doRequest(t, srv, "POST", "/v1/rules?ruleId=score",
		`{"expression": "level * 2", "type": "number"}`)
	if code != 200 {
		t.Fatalf("create with ruleId: expected 200, got %d: %v", code, body)
	}
	if body["name"] != "score" {
		t.Errorf("name = %v, want score", body["name"])
	}

	code, body = doRequest(t, srv, "POST", "/v1/rules", `{"name": "can-fly", "expression": "true"}`)
	if code != 409 || errorStatus(t, body) != "ALREADY_EXISTS" {
		t.Errorf("duplicate: got %d %v", code, body)
	}

	code, body = doRequest(t, srv, "POST", "/v1/rules", `{"name": "bad", "expression": "level >"}`)
	if code != 400 || errorStatus(t, body) != "INVALID_ARGUMENT" {
		t.Errorf("syntax error: got %d %v", code, body)
	}

	code, body = doRequest(t, srv, "POST", "/v1/rules", `{"name": "Bad Name", "expression": "1"}`)
	if code != 400 || errorStatus(t, body) != "INVALID_ARGUMENT" {
		t.Errorf("invalid name: got %d %v", code, body)
	}

	code, body = doRequest(t, srv, "GET", "/v1/rules", "")
	if code != 200 {
		t.Fatalf("list: expected 200, got %d", code)
	}
	list := body["rules"].([]interface{})
	if len(list) != 2 || list[0].(map[string]interface{})["name"] != "can-fly" {
		t.Errorf("unexpected list: %v", list)
	}

	code, body = doRequest(t, srv, "PATCH", "/v1/rules/can-fly", `{"expression": "level >= 10"}`)
	if code != 200 {
		t.Fatalf("update: expected 200, got %d: %v", code, body)
	}
	if body["expression"] != "level >= 10" || body["description"] != "Flight" {
		t.Errorf("unexpected update result: %v", body)
	}

	code, body = doRequest(t, srv, "PATCH", "/v1/rules/can-fly", `{"type": "text"}`)
	if code != 400 {
		t.Errorf("invalid type: got %d %v", code, body)
	}

	code, body = doRequest(t, srv, "GET", "/v1/rules/can-fly", "")
	if code != 200 || body["expression"] != "level >= 10" {
		t.Errorf("get: got %d %v", code, body)
	}

	code, _ = doRequest(t, srv, "DELETE", "/v1/rules/can-fly", "")
	if code != 200 {
		t.Errorf("delete: expected 200, got %d", code)
	}
	code, body = doRequest(t, srv, "GET", "/v1/rules/can-fly", "")
	if code != 404 || errorStatus(t, body) != "NOT_FOUND" {
		t.Errorf("get after delete: got %d %v", code, body)
	}
	code, _ = doRequest(t, srv, "DELETE", "/v1/rules/can-fly", "")
	if code != 404 {
		t.Errorf("second delete: expected 404, got %d", code)
	}
}

func TestEvaluations(t *testing.T) {
	srv, logs := setupTestServer(t)

	doRequest(t, srv, "POST", "/v1/rules", `{"name": "can-fly", "expression": "level >= 5 && perms.contains('fly')"}`)
	doRequest(t, srv, "POST", "/v1/rules", `{"name": "unsafe", "expression": "player.name"}`)

	code, body := doRequest(t, srv, "POST", "/v1/rules/can-fly/evaluations",
		`{"variables": {"level": 6, "perms": ["fly"]}}`)
	if code != 200 {
		t.Fatalf("evaluate: expected 200, got %d: %v", code, body)
	}
	if body["state"] != "SUCCEEDED" || body["result"] != true {
		t.Errorf("unexpected evaluation: %v", body)
	}
	id := body["name"].(string)

	code, body = doRequest(t, srv, "POST", "/v1/rules/can-fly/evaluations", "")
	if code != 200 || body["result"] != false {
		t.Errorf("evaluate without body: got %d %v", code, body)
	}

	code, body = doRequest(t, srv, "POST", "/v1/rules/unsafe/evaluations", `{}`)
	if code != 200 || body["state"] != "FAILED" {
		t.Fatalf("failing evaluation: got %d %v", code, body)
	}
	if _, ok := body["result"]; ok {
		t.Errorf("failed evaluation must not carry a result: %v", body)
	}
	if !strings.Contains(logs.String(), "rule evaluation failed") {
		t.Errorf("expected failure to be logged, got %q", logs.String())
	}

	code, body = doRequest(t, srv, "POST", "/v1/rules/missing/evaluations", `{}`)
	if code != 404 {
		t.Errorf("missing rule: got %d %v", code, body)
	}

	code, body = doRequest(t, srv, "GET", "/v1/evaluations/"+id, "")
	if code != 200 || body["rule"] != "can-fly" {
		t.Errorf("get evaluation: got %d %v", code, body)
	}
	vars, _ := body["variables"].(map[string]interface{})
	if vars["level"] != 6.0 {
		t.Errorf("variables = %v", body["variables"])
	}

	code, body = doRequest(t, srv, "GET", "/v1/rules/can-fly/evaluations", "")
	if code != 200 {
		t.Fatalf("list evaluations: expected 200, got %d", code)
	}
	list := body["evaluations"].([]interface{})
	if len(list) != 2 || list[1].(map[string]interface{})["name"] != id {
		t.Errorf("expected newest first with %s last, got %v", id, list)
	}

	code, _ = doRequest(t, srv, "GET", "/v1/evaluations/nope", "")
	if code != 404 {
		t.Errorf("missing evaluation: expected 404, got %d", code)
	}
}

func TestWatchDir(t *testing.T) {
	srv, _ := setupTestServer(t)
	dir := t.TempDir()

	files := map[string]string{
		"perms.yaml":  "vars:\n  min: 5\nrules:\n  - name: can-fly\n    expression: \"level >= min\"\n  - name: can-build\n    expression: \"perms.contains('build')\"\n",
		"score.yml":   "rules:\n  - name: score\n    expression: \"level * 2\"\n    type: number\n",
		"broken.yaml": "rules:\n  - name: broken\n    expression: \"level >=\"\n",
		"notes.txt":   "not a rule file",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "nested.yaml"), 0o755); err != nil {
		t.Fatal(err)
	}

	loaded, err := srv.WatchDir(dir)
	if loaded != 3 {
		t.Errorf("loaded = %d, want 3", loaded)
	}
	if err == nil || !strings.Contains(err.Error(), "broken.yaml") {
		t.Errorf("expected error naming broken.yaml, got %v", err)
	}

	code, body := doRequest(t, srv, "POST", "/v1/rules/can-fly/evaluations", `{"variables": {"level": 5}}`)
	if code != 200 || body["result"] != true {
		t.Errorf("evaluate loaded rule: got %d %v", code, body)
	}
	code, body = doRequest(t, srv, "GET", "/v1/rules/score", "")
	if code != 200 || body["source"] != "score.yml" {
		t.Errorf("get loaded rule: got %d %v", code, body)
	}

	if _, err := srv.WatchDir(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for missing directory")
	}
}
