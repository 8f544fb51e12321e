package reason

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opscart/k8s-ai-diagnostics/pkg/config"
	"github.com/opscart/k8s-ai-diagnostics/pkg/types"
)

func newTestReasoner(t *testing.T, handler http.HandlerFunc) *Reasoner {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewReasoner(config.ReasonerConfig{
		Endpoint: srv.URL,
		Model:    "gpt-4",
		Timeout:  config.Duration(5 * time.Second),
	}, "test-key")
}

func chatResponse(content string) string {
	resp := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"content": content}},
		},
	}
	data, _ := json.Marshal(resp)
	return string(data)
}

func testIssue() types.Issue {
	return types.Issue{
		Namespace: "agentic-demo",
		PodName:   "web-abc",
		Workload:  "web",
		Reason:    types.ReasonCrashLoopBackOff,
		Message:   "back-off restarting failed container",
	}
}

func TestTryDetectValidPlan(t *testing.T) {
	var gotAuth string
	reasoner := newTestReasoner(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		io.WriteString(w, chatResponse(`Here is the plan:
[{"action":"restart_pod","rationale":"clear transient crash"}]`))
	})

	plan, ok := reasoner.TryDetect(testIssue())
	require.True(t, ok)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, types.ActionRestartPod, plan.Steps[0].Action)
	assert.Equal(t, "clear transient crash", plan.Steps[0].Rationale)
	assert.Equal(t, "Bearer test-key", gotAuth)
}

func TestTryDetectMultiStepPlan(t *testing.T) {
	reasoner := newTestReasoner(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, chatResponse(`[
{"action":"update_env","env":{"MYSQL_HOST":"localhost"},"rationale":"missing env"},
{"action":"restart_pod","rationale":"pick up new env"}]`))
	})

	plan, ok := reasoner.TryDetect(testIssue())
	require.True(t, ok)
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, types.ActionUpdateEnv, plan.Steps[0].Action)
	assert.Equal(t, "localhost", plan.Steps[0].Params.Env["MYSQL_HOST"])
	assert.Equal(t, types.ActionRestartPod, plan.Steps[1].Action)
}

func TestTryDetectDeclined(t *testing.T) {
	reasoner := newTestReasoner(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, chatResponse("CANNOT_DETERMINE"))
	})

	_, ok := reasoner.TryDetect(testIssue())
	assert.False(t, ok)
}

func TestTryDetectAbsentOnBadResponses(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			name: "no JSON array in content",
			handler: func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, chatResponse("try restarting the pod manually"))
			},
		},
		{
			name: "malformed array",
			handler: func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, chatResponse(`[{"action":]`))
			},
		},
		{
			name: "empty choices",
			handler: func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, `{"choices":[]}`)
			},
		},
		{
			name: "only out-of-catalog actions",
			handler: func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, chatResponse(`[{"action":"scale_replicas"},{"action":"skip"}]`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reasoner := newTestReasoner(t, tt.handler)
			_, ok := reasoner.TryDetect(testIssue())
			assert.False(t, ok)
		})
	}
}

func TestTryDetectUnreachableEndpoint(t *testing.T) {
	reasoner := NewReasoner(config.ReasonerConfig{
		Endpoint: "http://127.0.0.1:1",
		Model:    "gpt-4",
		Timeout:  config.Duration(time.Second),
	}, "")

	_, ok := reasoner.TryDetect(testIssue())
	assert.False(t, ok)
}

func TestPromptIncludesHistory(t *testing.T) {
	var body []byte
	reasoner := newTestReasoner(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		io.WriteString(w, chatResponse(`[{"action":"restart_pod"}]`))
	})
	reasoner.HistoryFor = func(fingerprint string) []string {
		return []string{"restart_pod failed: pod still crashing"}
	}

	_, ok := reasoner.TryDetect(testIssue())
	require.True(t, ok)
	assert.Contains(t, string(body), "web-abc")
	assert.Contains(t, string(body), "Past attempts")
	assert.Contains(t, string(body), "restart_pod failed")
}

func TestParseStepsFiltersSkip(t *testing.T) {
	steps, err := parseSteps(`[{"action":"skip","rationale":"nothing to do"},{"action":"patch_image","image":"nginx:latest"}]`)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, types.ActionPatchImage, steps[0].Action)
	assert.Equal(t, "nginx:latest", steps[0].Params.Image)
}
