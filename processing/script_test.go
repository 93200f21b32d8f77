package processing

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeChat serves canned chat completions in order and records request bodies.
type fakeChat struct {
	mu       sync.Mutex
	replies  []string
	bodies   []string
	failWith int
}

func (f *fakeChat) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies = append(f.bodies, string(body))

	if f.failWith != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.failWith)
		_, _ = w.Write([]byte(`{"error":{"message":"upstream unavailable","type":"server_error"}}`))
		return
	}

	content := ""
	if len(f.replies) > 0 {
		content = f.replies[0]
		f.replies = f.replies[1:]
	}
	resp := map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func scriptJSON(t *testing.T, script string) string {
	t.Helper()
	b, err := json.Marshal(ScriptResponse{Script: script})
	require.NoError(t, err)
	return string(b)
}

func newTestGenerator(t *testing.T, h http.Handler) *ScriptGenerator {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewScriptGenerator(GeneratorConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL + "/",
		Model:   "gpt-4o-mini",
		Timeout: 5 * time.Second,
	}, zap.NewNop())
}

func TestGenerateRunsCorrectionPass(t *testing.T) {
	fake := &fakeChat{replies: []string{
		scriptJSON(t, "class DraftMarker(Scene): pass"),
		scriptJSON(t, "```python\nfrom manim import *\n\nclass GeneratedScene(Scene):\n    pass\n```"),
	}}
	g := newTestGenerator(t, fake)

	script, err := g.Generate(context.Background(), "Show a blue circle transforming into a red square.")
	require.NoError(t, err)
	assert.Equal(t, "from manim import *\n\nclass GeneratedScene(Scene):\n    pass", script)

	require.Len(t, fake.bodies, 2)
	assert.Contains(t, fake.bodies[0], "blue circle")
	assert.Contains(t, fake.bodies[0], SceneName)
	assert.NotContains(t, fake.bodies[0], "DraftMarker")
	assert.Contains(t, fake.bodies[1], "DraftMarker")
	assert.Contains(t, fake.bodies[1], "json_schema")
}

func TestGenerateTransportError(t *testing.T) {
	g := newTestGenerator(t, &fakeChat{failWith: http.StatusInternalServerError})

	_, err := g.Generate(context.Background(), "Show a blue circle transforming into a red square.")
	require.ErrorIs(t, err, ErrGeneration)
}

func TestGenerateMalformedResponse(t *testing.T) {
	g := newTestGenerator(t, &fakeChat{replies: []string{"this is not json"}})

	_, err := g.Generate(context.Background(), "Show a blue circle transforming into a red square.")
	require.ErrorIs(t, err, ErrGeneration)
}

func TestGenerateEmptyScript(t *testing.T) {
	fake := &fakeChat{replies: []string{
		scriptJSON(t, "from manim import *"),
		scriptJSON(t, "```python\n```"),
	}}
	g := newTestGenerator(t, fake)

	_, err := g.Generate(context.Background(), "Show a blue circle transforming into a red square.")
	require.ErrorIs(t, err, ErrGeneration)
}

func TestStripCodeFences(t *testing.T) {
	cases := map[string]string{
		"```python\nprint(1)\n```":    "print(1)",
		"```py\nprint(1)\n```":        "print(1)",
		"```\nprint(1)\n```":          "print(1)",
		"  print(1)  ":                "print(1)",
		"print(1)\n```":               "print(1)",
		"```from manim import *\nx=1": "from manim import *\nx=1",
	}
	for in, want := range cases {
		assert.Equal(t, want, StripCodeFences(in), "input %q", in)
	}
	assert.False(t, strings.HasPrefix(StripCodeFences("```python\n```"), "`"))
}
