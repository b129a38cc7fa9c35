package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/steamfamilyzap/kgbot/internal/retry"
)

// GeminiProvider talks to the Gemini API through the official genai SDK.
type GeminiProvider struct {
	client       *genai.Client
	defaultModel string
	retryConfig  retry.Config
}

// NewGeminiProvider creates a Gemini client. apiBase is optional and only
// needed behind a proxy.
func NewGeminiProvider(ctx context.Context, apiKey, apiBase, defaultModel string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: api key is required")
	}
	if defaultModel == "" {
		defaultModel = "gemini-2.5-flash"
	}
	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if apiBase != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: apiBase}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	rc := retry.DefaultConfig()
	rc.ShouldRetry = geminiRetryable
	return &GeminiProvider{client: client, defaultModel: defaultModel, retryConfig: rc}, nil
}

func (p *GeminiProvider) Name() string         { return "gemini" }
func (p *GeminiProvider) DefaultModel() string { return p.defaultModel }

func (p *GeminiProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	contents, system := toGeminiContents(req.Messages)
	cfg := &genai.GenerateContentConfig{SystemInstruction: system}
	if len(req.Tools) > 0 {
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: toFunctionDeclarations(req.Tools)}}
	}
	if v, ok := optFloat(req.Options, OptTemperature); ok {
		cfg.Temperature = genai.Ptr(float32(v))
	}
	if v, ok := optInt(req.Options, OptMaxTokens); ok {
		cfg.MaxOutputTokens = int32(v)
	}

	return retry.Do(ctx, p.retryConfig, func() (*ChatResponse, error) {
		resp, err := p.client.Models.GenerateContent(ctx, model, contents, cfg)
		if err != nil {
			return nil, fmt.Errorf("gemini: generate content: %w", err)
		}
		return parseGeminiResponse(resp), nil
	})
}

func geminiRetryable(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500
	}
	return retry.IsRetryable(err)
}

// toGeminiContents maps the conversation onto Gemini roles. System messages
// are folded into a single system instruction; tool results become
// function responses from the user side.
func toGeminiContents(msgs []Message) ([]*genai.Content, *genai.Content) {
	var (
		contents []*genai.Content
		system   []string
	)
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			var parts []*genai.Part
			if m.Content != "" {
				parts = append(parts, genai.NewPartFromText(m.Content))
			}
			for _, tc := range m.ToolCalls {
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{ID: tc.ID, Name: tc.Name, Args: tc.Arguments}})
			}
			contents = append(contents, genai.NewContentFromParts(parts, genai.RoleModel))
		case RoleTool:
			part := &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       m.ToolCallID,
				Name:     m.Name,
				Response: functionResponse(m.Content),
			}}
			contents = append(contents, genai.NewContentFromParts([]*genai.Part{part}, genai.RoleUser))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	if len(system) == 0 {
		return contents, nil
	}
	return contents, genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
}

// functionResponse decodes a JSON tool result. Gemini wants an object, so
// anything else is wrapped under "output".
func functionResponse(content string) map[string]any {
	var v any
	if err := json.Unmarshal([]byte(content), &v); err != nil {
		return map[string]any{"output": content}
	}
	if obj, ok := v.(map[string]any); ok {
		return obj
	}
	return map[string]any{"output": v}
}

func toFunctionDeclarations(tools []ToolDefinition) []*genai.FunctionDeclaration {
	out := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		fd := &genai.FunctionDeclaration{
			Name:        t.Function.Name,
			Description: t.Function.Description,
		}
		if s := toSchema(t.Function.Parameters); s != nil && len(s.Properties) > 0 {
			fd.Parameters = s
		}
		out = append(out, fd)
	}
	return out
}

// toSchema converts a JSON Schema map into the OpenAPI subset Gemini accepts.
// Keywords Gemini does not model (minLength, additionalProperties, ...) are dropped.
func toSchema(m map[string]any) *genai.Schema {
	if m == nil {
		return nil
	}
	s := &genai.Schema{}
	if t, ok := m["type"].(string); ok {
		s.Type = genai.Type(strings.ToUpper(t))
	}
	if d, ok := m["description"].(string); ok {
		s.Description = d
	}
	s.Enum = stringList(m["enum"])
	s.Required = stringList(m["required"])
	if props, ok := m["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			if pm, ok := raw.(map[string]any); ok {
				s.Properties[name] = toSchema(pm)
			}
		}
	}
	if items, ok := m["items"].(map[string]any); ok {
		s.Items = toSchema(items)
	}
	return s
}

func stringList(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func parseGeminiResponse(resp *genai.GenerateContentResponse) *ChatResponse {
	result := &ChatResponse{FinishReason: "stop"}
	if resp == nil {
		return result
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		cand := resp.Candidates[0]
		var text strings.Builder
		for _, part := range cand.Content.Parts {
			if part == nil {
				continue
			}
			if part.Text != "" && !part.Thought {
				text.WriteString(part.Text)
			}
			if fc := part.FunctionCall; fc != nil {
				id := fc.ID
				if id == "" {
					id = fmt.Sprintf("call_%d", len(result.ToolCalls))
				}
				args := fc.Args
				if args == nil {
					args = map[string]any{}
				}
				result.ToolCalls = append(result.ToolCalls, ToolCall{ID: id, Name: strings.TrimSpace(fc.Name), Arguments: args})
			}
		}
		result.Content = text.String()
		if cand.FinishReason == genai.FinishReasonMaxTokens {
			result.FinishReason = "length"
		}
	}
	if len(result.ToolCalls) > 0 {
		result.FinishReason = "tool_calls"
	}
	if u := resp.UsageMetadata; u != nil {
		result.Usage = &Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return result
}
