package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

// classifierSystemPrompt instructs the model to emit only the structured
// classification JSON. Category semantics mirror the capability handlers.
const classifierSystemPrompt = `You classify a user's request to a collections ROI copilot.
Return ONLY a JSON object, no prose, with this shape:
{
  "categories": ["modify"|"analyze"|"scenario"|"document", ...],
  "field_changes": [{"field": "<field name>", "op": "set"|"increase"|"decrease", "value": <number>, "percent": true|false}],
  "bucket_ref": "<bucket name, or 'this' if the user says 'this bucket'>",
  "scenario_ref": "<scenario label, or 'previous' for 'the previous scenario'>",
  "scenario_overrides": {"<field name>": <number>},
  "strategy_mode": "displacement"|"augmentation",
  "metric_ref": "<metric the user is asking about>",
  "document_kind": "<kind of document requested>"
}
Category meanings:
- "modify": the user instructs a concrete change to calculator numbers.
- "analyze": the user asks why or how a metric behaves.
- "scenario": the user poses a hypothetical ("what if ...") without asking to change the live numbers.
- "document": the user asks for a report or document.
List every category that genuinely fits; omit fields that do not apply.
Field names: agentCount, monthlyRent, avgAgentSalary, commissionRate, accountsAssigned, avgAccountBalance, recoveryRate, accountsPerAgent.`

// GeminiClient implements Client using the Google GenAI API.
type GeminiClient struct {
	client      *genai.Client
	model       string
	temperature float32
	timeout     time.Duration
}

// NewGeminiClient creates a Gemini-backed inference client.
func NewGeminiClient(ctx context.Context, apiKey, model string, temperature float64, timeout time.Duration) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = "gemini-1.5-flash"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GeminiClient{
		client:      client,
		model:       model,
		temperature: float32(temperature),
		timeout:     timeout,
	}, nil
}

// Classify sends the utterance and context to the model and parses the
// structured classification. Transport failures and deadline expiry are
// wrapped in TransientError; a malformed model reply is returned as a plain
// (non-retryable) error.
func (c *GeminiClient) Classify(ctx context.Context, req *Request) (*Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt := buildPrompt(req)

	resp, err := c.client.Models.GenerateContent(callCtx, c.model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(classifierSystemPrompt, genai.RoleUser),
			Temperature:       genai.Ptr(c.temperature),
			ResponseMIMEType:  "application/json",
		},
	)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, &TransientError{Err: fmt.Errorf("inference timed out after %v: %w", c.timeout, err)}
		}
		return nil, &TransientError{Err: err}
	}

	raw := strings.TrimSpace(resp.Text())
	if raw == "" {
		return nil, fmt.Errorf("model returned empty classification")
	}

	var result Result
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("model returned malformed classification: %w", err)
	}

	return &result, nil
}

// buildPrompt assembles the user-visible prompt from the request context.
func buildPrompt(req *Request) string {
	var b strings.Builder

	if req.StateSummary != "" {
		fmt.Fprintf(&b, "Current calculator state: %s\n", req.StateSummary)
	}
	if len(req.RecentTurns) > 0 {
		b.WriteString("Recent conversation:\n")
		for _, turn := range req.RecentTurns {
			fmt.Fprintf(&b, "- %s\n", turn)
		}
	}
	if len(req.RecentChanges) > 0 {
		b.WriteString("Recent changes:\n")
		for _, change := range req.RecentChanges {
			fmt.Fprintf(&b, "- %s\n", change)
		}
	}
	fmt.Fprintf(&b, "User request: %s", req.Utterance)

	return b.String()
}
