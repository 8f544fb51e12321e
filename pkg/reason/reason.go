package reason

// The external reasoning collaborator is the lowest-priority planning path.
// It implements the same Issue -> Plan-or-absent contract as the rule
// detectors, so the planner treats it uniformly; its output is untrusted
// and any malformed response degrades to absent.

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/opscart/k8s-ai-diagnostics/pkg/config"
	"github.com/opscart/k8s-ai-diagnostics/pkg/detect"
	"github.com/opscart/k8s-ai-diagnostics/pkg/log"
	"github.com/opscart/k8s-ai-diagnostics/pkg/types"
)

// Reasoner consults an OpenAI-compatible chat-completions endpoint for
// issues no rule detector could handle.
type Reasoner struct {
	endpoint string
	model    string
	apiKey   string
	client   *http.Client

	// HistoryFor, when set, supplies recent attempt summaries for an
	// issue's fingerprint to give the model context.
	HistoryFor func(fingerprint string) []string
}

// NewReasoner creates a reasoner from configuration. The returned reasoner
// is nil-safe to skip when disabled.
func NewReasoner(cfg config.ReasonerConfig, apiKey string) *Reasoner {
	return &Reasoner{
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: cfg.Timeout.Std()},
	}
}

func (r *Reasoner) Name() string { return "external-reasoner" }

// TryDetect asks the reasoning service for a plan. Transport errors,
// malformed responses, and out-of-catalog actions all yield absent.
func (r *Reasoner) TryDetect(issue types.Issue) (types.Plan, bool) {
	logger := log.WithComponent("reasoner")

	content, err := r.complete(context.Background(), issue)
	if err != nil {
		logger.Warn().Err(err).Str("pod", issue.PodName).Msg("reasoning unavailable")
		return types.Plan{}, false
	}

	steps, err := parseSteps(content)
	if err != nil {
		logger.Warn().Err(err).Str("pod", issue.PodName).Msg("unusable reasoning response")
		return types.Plan{}, false
	}
	return types.Plan{Steps: steps}, true
}

const systemPrompt = `You are an expert Kubernetes SRE creating autonomous remediation plans.
Respond with a JSON array of steps:
[{"action":"...","image":"...","memory_limit":"...","env":{"KEY":"value"},"rationale":"..."}]
Allowed actions: update_env, patch_memory_limit, patch_image, restart_pod.
Only include the parameter fields the action needs.
If no automated remediation is possible, respond with the single word CANNOT_DETERMINE.`

func (r *Reasoner) complete(ctx context.Context, issue types.Issue) (string, error) {
	reqBody := map[string]any{
		"model": r.model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": r.prompt(issue)},
		},
		"temperature": 0.3,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("reasoning service returned status %d", resp.StatusCode)
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("empty response")
	}
	return parsed.Choices[0].Message.Content, nil
}

func (r *Reasoner) prompt(issue types.Issue) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Pod: %s\nNamespace: %s\nWorkload: %s\nPhase: %s\nReason: %s\nMessage: %s\n",
		issue.PodName, issue.Namespace, issue.Workload, issue.Phase, issue.Reason, issue.Message)
	fmt.Fprintf(&b, "Image: %s\nMemory limit: %s\n", issue.CurrentImage, issue.CurrentMemoryLimit)
	if len(issue.LogExcerpt) > 0 {
		b.WriteString("\nRecent logs:\n")
		for _, line := range issue.LogExcerpt {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	if r.HistoryFor != nil {
		if history := r.HistoryFor(detect.Fingerprint(issue)); len(history) > 0 {
			b.WriteString("\nPast attempts:\n")
			for _, entry := range history {
				b.WriteString(entry)
				b.WriteByte('\n')
			}
		}
	}
	b.WriteString("\nCreate a remediation plan.")
	return b.String()
}

// wireStep is the reasoning service's step format.
type wireStep struct {
	Action      string            `json:"action"`
	Image       string            `json:"image"`
	MemoryLimit string            `json:"memory_limit"`
	Env         map[string]string `json:"env"`
	Rationale   string            `json:"rationale"`
}

var jsonArray = regexp.MustCompile(`(?s)\[.*\]`)

func parseSteps(content string) ([]types.Step, error) {
	if strings.Contains(content, "CANNOT_DETERMINE") {
		return nil, fmt.Errorf("reasoning service declined")
	}
	raw := jsonArray.FindString(content)
	if raw == "" {
		return nil, fmt.Errorf("no JSON array in response")
	}

	var wire []wireStep
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, fmt.Errorf("malformed plan: %w", err)
	}

	var steps []types.Step
	for _, ws := range wire {
		kind := types.ActionKind(ws.Action)
		if !types.ValidAction(kind) || kind == types.ActionSkip {
			continue
		}
		steps = append(steps, types.Step{
			Action: kind,
			Params: types.ActionParams{
				Image:       ws.Image,
				MemoryLimit: ws.MemoryLimit,
				Env:         ws.Env,
			},
			Rationale: ws.Rationale,
		})
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("no valid steps in response")
	}
	return steps, nil
}
