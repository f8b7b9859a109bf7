package expr

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemonberrylabs/condeval/pkg/classes"
	"github.com/lemonberrylabs/condeval/pkg/types"
)

func bufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, nil)), &buf
}

func TestCompile(t *testing.T) {
	e, err := Compile("level >= 5")
	require.NoError(t, err)
	assert.Equal(t, "level >= 5", e.Source())
	assert.Equal(t, "(level >= 5)", e.Root().String())

	_, err = Compile("level >=")
	require.Error(t, err)
	assert.True(t, types.IsSyntaxError(err))
}

func TestMustCompilePanics(t *testing.T) {
	assert.Panics(t, func() { MustCompile("(") })
	assert.NotPanics(t, func() { MustCompile("1") })
}

func TestVariables(t *testing.T) {
	e := MustCompile("level * bonus")

	require.NoError(t, e.SetVar("level", 7))
	require.NoError(t, e.SetVar("bonus", "1.5"))
	assert.True(t, e.HasVar("level"))
	assert.False(t, e.HasVar("missing"))

	got, err := e.Evaluate(nil)
	require.NoError(t, err)
	assert.Equal(t, 10.5, got)

	// Call variables shadow bound ones for that call only.
	got, err = e.Evaluate(map[string]interface{}{"bonus": 2})
	require.NoError(t, err)
	assert.Equal(t, 14.0, got)

	got, err = e.Evaluate(nil)
	require.NoError(t, err)
	assert.Equal(t, 10.5, got)

	e.ClearVars()
	assert.False(t, e.HasVar("level"))
	got, err = e.Evaluate(nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, got)
}

func TestSetVarRejectsUnsupportedValues(t *testing.T) {
	e := MustCompile("x")
	err := e.SetVar("x", struct{ A int }{1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `variable "x"`)
	assert.False(t, e.HasVar("x"))

	_, err = e.Eval(map[string]interface{}{"x": make(chan int)})
	assert.True(t, types.IsEvaluationError(err))
}

func TestSetVarCollections(t *testing.T) {
	e := MustCompile("perms.contains('fly') && ids.contains(2)")
	require.NoError(t, e.SetVar("perms", []string{"build", "fly"}))
	require.NoError(t, e.SetVar("ids", types.NewArray([]types.Value{types.NewDouble(1), types.NewDouble(2)})))

	ok, err := e.EvaluateBoolean(nil)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluateCoercion(t *testing.T) {
	tests := []struct {
		source  string
		number  float64
		boolean bool
	}{
		{"1 + 2 * 3", 7, true},
		{"2 ^ 3 ^ 2", 512, true},
		{"0", 0, false},
		{"1 > 2", 0, false},
		{"2 > 1", 1, true},
		{"'yes'", 0, true},
		{"'12'", 12, false},
		{"'1'", 1, true},
		{"missing", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			e := MustCompile(tt.source)

			n, err := e.Evaluate(nil)
			require.NoError(t, err)
			assert.Equal(t, tt.number, n)

			b, err := e.EvaluateBoolean(nil)
			require.NoError(t, err)
			assert.Equal(t, tt.boolean, b)
		})
	}
}

func TestEvaluateErrorModes(t *testing.T) {
	sources := []string{
		"foo.bar()",
		"sqrt('abc')",
		"player.name",
		"x :> 'no.such.Type'",
	}

	for _, src := range sources {
		t.Run(src, func(t *testing.T) {
			logger, buf := bufferLogger()
			e := MustCompile(src, WithLogger(logger))

			_, err := e.Evaluate(nil)
			require.Error(t, err)
			assert.True(t, types.IsEvaluationError(err))

			_, err = e.EvaluateBoolean(nil)
			require.Error(t, err)
			assert.Empty(t, buf.String(), "error-returning methods must not log")

			assert.Equal(t, 0.0, e.EvaluateOrZero(nil))
			assert.False(t, e.EvaluateBooleanOrFalse(nil))

			lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
			require.Len(t, lines, 2)
			for _, line := range lines {
				var rec map[string]interface{}
				require.NoError(t, json.Unmarshal(line, &rec))
				assert.Equal(t, "WARN", rec["level"])
				assert.Equal(t, "expression evaluation failed", rec["msg"])
				assert.Equal(t, src, rec["expression"])
				assert.Contains(t, rec["error"], "EvaluationError")
			}
		})
	}
}

func TestLenientModeReturnsResultWithoutLogging(t *testing.T) {
	logger, buf := bufferLogger()
	e := MustCompile("a + 1", WithLogger(logger))

	assert.Equal(t, 3.0, e.EvaluateOrZero(map[string]interface{}{"a": 2}))
	assert.True(t, e.EvaluateBooleanOrFalse(map[string]interface{}{"a": 2}))
	assert.Empty(t, buf.String())
}

func TestCustomClasses(t *testing.T) {
	reg := classes.NewRegistry()
	_, err := reg.Register("org.example.Entity", classes.Object)
	require.NoError(t, err)
	player, err := reg.Register("org.example.Player", "org.example.Entity", classes.Comparable)
	require.NoError(t, err)

	e := MustCompile("p.class :> 'org.example.Entity' && p <: 'org.example.Entity'", WithClasses(reg))
	require.NoError(t, e.SetVar("p", player))

	ok, err := e.EvaluateBoolean(nil)
	require.NoError(t, err)
	assert.False(t, ok, "<: asks whether Entity is assignable to Player")

	e = MustCompile("p.class :> 'org.example.Entity' && p :> 'java.lang.Comparable'", WithClasses(reg))
	require.NoError(t, e.SetVar("p", player))
	ok, err = e.EvaluateBoolean(nil)
	require.NoError(t, err)
	assert.True(t, ok)

	// The default registry knows nothing about host types.
	e = MustCompile("x :> 'org.example.Entity'")
	_, err = e.EvaluateBoolean(nil)
	assert.True(t, types.IsEvaluationError(err))
}

func TestConcurrentEvaluation(t *testing.T) {
	e := MustCompile("level >= threshold && perms.contains('fly')")
	require.NoError(t, e.SetVar("threshold", 10))
	require.NoError(t, e.SetVar("perms", []string{"fly"}))

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(level int) {
			defer wg.Done()
			got, err := e.EvaluateBoolean(map[string]interface{}{"level": level})
			if err != nil {
				errs <- err
				return
			}
			if want := level >= 10; got != want {
				errs <- fmt.Errorf("level %d: got %v, want %v", level, got, want)
			}
		}(i % 20)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}
