package config

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestStarlarkEvaluator_Evaluate(t *testing.T) {
	evaluator := NewStarlarkEvaluator(5 * time.Second)
	ctx := context.Background()

	tests := []struct {
		name      string
		script    string
		input     map[string]any
		checkFunc func(*testing.T, *StarlarkResult)
		wantErr   bool
	}{
		{
			name:   "simple arithmetic",
			script: "KHTH = 2 + 2\n",
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				if sr.Output["KHTH"] != int64(4) {
					t.Errorf("expected KHTH=4, got %v", sr.Output["KHTH"])
				}
			},
		},
		{
			name:   "use input variables",
			script: "DT = dt_base * scale\n",
			input:  map[string]any{"dt_base": 600, "scale": json.Number("2")},
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				if sr.Output["DT"] != int64(1200) {
					t.Errorf("expected DT=1200, got %v", sr.Output["DT"])
				}
			},
		},
		{
			name: "helper function and private globals",
			script: `
def _levels(n):
    return [i * 10 for i in range(n)]

_tmp = _levels(4)
NK = len(_tmp)
`,
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				if sr.Output["NK"] != int64(4) {
					t.Errorf("expected NK=4, got %v", sr.Output["NK"])
				}
				if _, ok := sr.Output["_tmp"]; ok {
					t.Error("private globals must not be returned")
				}
				if _, ok := sr.Output["_levels"]; ok {
					t.Error("functions must not be returned")
				}
			},
		},
		{
			name:   "quote and join builtins",
			script: "OBC_TIDE_CONSTITUENTS = quote(join(names))\n",
			input:  map[string]any{"names": []any{"M2", "S2"}},
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				if sr.Output["OBC_TIDE_CONSTITUENTS"] != `"M2, S2"` {
					t.Errorf("unexpected value %v", sr.Output["OBC_TIDE_CONSTITUENTS"])
				}
			},
		},
		{
			name:   "math module",
			script: "R = math.sqrt(x)\n",
			input:  map[string]any{"x": 16.0},
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				if sr.Output["R"] != 4.0 {
					t.Errorf("expected R=4.0, got %v", sr.Output["R"])
				}
			},
		},
		{
			name:   "conditional expression",
			script: `MODE = "on" if enabled else "off"` + "\n",
			input:  map[string]any{"enabled": true},
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				if sr.Output["MODE"] != "on" {
					t.Errorf("expected MODE=on, got %v", sr.Output["MODE"])
				}
			},
		},
		{
			name:    "syntax error",
			script:  "invalid syntax here\n",
			wantErr: true,
		},
		{
			name:    "runtime error",
			script:  "result = undefined_variable\n",
			wantErr: true,
		},
		{
			name:    "fail builtin",
			script:  `fail("bad grid")` + "\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := evaluator.Evaluate(ctx, tt.script, tt.input)

			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got none")
				}
				if result == nil || result.Error == "" {
					t.Error("expected error in result")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.Error != "" {
				t.Errorf("unexpected result error: %s", result.Error)
			}
			if tt.checkFunc != nil {
				tt.checkFunc(t, result)
			}
		})
	}
}

func TestStarlarkEvaluator_Timeout(t *testing.T) {
	evaluator := NewStarlarkEvaluator(100 * time.Millisecond)
	ctx := context.Background()

	script := `
def slow_function():
    result = 0
    for i in range(100000000):
        result = result + i
    return result

output = slow_function()
`

	result, err := evaluator.Evaluate(ctx, script, nil)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if result == nil || result.Error == "" {
		t.Error("expected timeout error in result")
	}
}

func TestStarlarkEvaluator_Cancelled(t *testing.T) {
	evaluator := NewStarlarkEvaluator(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := evaluator.Evaluate(ctx, "x = 1\n", nil)
	if err == nil {
		// The script may win the race against the cancelled context.
		return
	}
	if ctx.Err() == nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStarlarkEvaluator_TypeConversion(t *testing.T) {
	evaluator := NewStarlarkEvaluator(5 * time.Second)
	ctx := context.Background()

	tests := []struct {
		name   string
		input  map[string]any
		script string
		want   any
	}{
		{"bool", map[string]any{"enabled": true}, "result = enabled and True\n", true},
		{"int", map[string]any{"count": 42}, "result = count + 8\n", int64(50)},
		{"json integer", map[string]any{"n": json.Number("7")}, "result = n * 2\n", int64(14)},
		{"json float", map[string]any{"f": json.Number("1.5")}, "result = f * 2\n", 3.0},
		{"string", map[string]any{"name": "ocean"}, `result = name + "-case"` + "\n", "ocean-case"},
		{"list", map[string]any{"items": []any{"a", "b", "c"}}, "result = len(items)\n", int64(3)},
		{"string slice", map[string]any{"items": []string{"a", "b"}}, `result = items[1]` + "\n", "b"},
		{"dict", map[string]any{"grid": map[string]any{"nx": 10, "ny": 20}}, `result = grid["nx"] * grid["ny"]` + "\n", int64(200)},
		{"none", map[string]any{"missing": nil}, "result = missing == None\n", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := evaluator.Evaluate(ctx, tt.script, tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.Output["result"] != tt.want {
				t.Errorf("expected %v (%T), got %v (%T)", tt.want, tt.want, result.Output["result"], result.Output["result"])
			}
		})
	}

	t.Run("tuple and struct outputs", func(t *testing.T) {
		result, err := evaluator.Evaluate(ctx, "pair = (1, \"a\")\ns = struct(nx = 3)\n", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		pair, ok := result.Output["pair"].([]any)
		if !ok || len(pair) != 2 || pair[0] != int64(1) || pair[1] != "a" {
			t.Errorf("unexpected tuple conversion: %v", result.Output["pair"])
		}
		s, ok := result.Output["s"].(map[string]any)
		if !ok || s["nx"] != int64(3) {
			t.Errorf("unexpected struct conversion: %v", result.Output["s"])
		}
	})

	t.Run("unsupported input", func(t *testing.T) {
		_, err := evaluator.Evaluate(ctx, "x = 1\n", map[string]any{"ch": make(chan int)})
		if err == nil {
			t.Error("expected conversion error")
		}
	})
}

func TestStarlarkEvaluator_PrintSuppressed(t *testing.T) {
	evaluator := NewStarlarkEvaluator(5 * time.Second)

	result, err := evaluator.Evaluate(context.Background(), "print(\"hidden\")\nresult = \"done\"\n", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Output["result"] != "done" {
		t.Errorf("expected result='done', got %v", result.Output["result"])
	}
}
