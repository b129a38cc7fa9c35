// Package agent turns one inbound message into one reply: a model call with
// the intent catalog as tools, at most one intent dispatch, and a second
// model call that words the intent result.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/steamfamilyzap/kgbot/internal/intents"
	"github.com/steamfamilyzap/kgbot/internal/mentions"
	"github.com/steamfamilyzap/kgbot/internal/providers"
	"github.com/steamfamilyzap/kgbot/internal/store"
	"github.com/steamfamilyzap/kgbot/internal/vaquinha"
)

// Fixed replies.
const (
	MsgUnknownTool = "A ferramenta solicitada, \"%s\", não me é familiar."
	MsgNoData      = "Não encontrei dados para sua solicitação."
	MsgApology     = "Perdão, tive uma dificuldade interna e não pude processar seu pedido."
)

// Directory resolves senders and mention placeholders.
type Directory interface {
	FindByChannelAddress(ctx context.Context, address string) (*store.Profile, error)
	FindByNickname(ctx context.Context, nickname string) (*store.Profile, error)
}

// IntentRunner executes a model tool call. *intents.Dispatcher implements it.
type IntentRunner interface {
	ParseAndDispatch(ctx context.Context, name string, args map[string]any, requester *store.Profile) (*intents.Result, error)
}

// CampaignSource reports the active campaign for the @[starter] alias.
// Both (nil, nil) and vaquinha.ErrNoActiveCampaign mean no alias.
type CampaignSource interface {
	Active(ctx context.Context) (*store.Campaign, error)
}

// PromptBuilder renders the system prompt.
type PromptBuilder interface {
	Build(ctx context.Context) (string, error)
}

// Config configures a new Agent.
type Config struct {
	Provider    providers.Provider
	Model       string // provider default when empty
	MaxTokens   int
	Temperature float64
	Prompt      PromptBuilder
	Directory   Directory
	Intents     IntentRunner
	Campaigns   CampaignSource // optional
}

// Agent answers family members.
type Agent struct {
	provider    providers.Provider
	model       string
	maxTokens   int
	temperature float64
	prompt      PromptBuilder
	directory   Directory
	intents     IntentRunner
	campaigns   CampaignSource
	tools       []providers.ToolDefinition
	tracer      trace.Tracer
}

// Reply is what goes back to the conversation.
type Reply struct {
	Text     string
	ImageURL string
	Mentions []string // channel addresses to notify
	Intent   string   // dispatched intent, empty on the text path
}

func New(cfg Config) *Agent {
	defs := intents.Definitions()
	tools := make([]providers.ToolDefinition, 0, len(defs))
	for _, d := range defs {
		tools = append(tools, providers.NewFunctionTool(d.Name, d.Description, d.Parameters))
	}
	model := cfg.Model
	if model == "" {
		model = cfg.Provider.DefaultModel()
	}
	return &Agent{
		provider:    cfg.Provider,
		model:       model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		prompt:      cfg.Prompt,
		directory:   cfg.Directory,
		intents:     cfg.Intents,
		campaigns:   cfg.Campaigns,
		tools:       tools,
		tracer:      otel.Tracer("github.com/steamfamilyzap/kgbot/internal/agent"),
	}
}

// Model returns the model identifier in use.
func (a *Agent) Model() string { return a.model }

// Respond answers text on behalf of requester. token renders mentions for
// the transport the reply goes to; nil falls back to mentions.DefaultToken.
// A nil Reply means there is nothing to send.
func (a *Agent) Respond(ctx context.Context, requester *store.Profile, text string, token mentions.TokenFunc) (reply *Reply, err error) {
	ctx, span := a.tracer.Start(ctx, "agent.respond",
		trace.WithAttributes(
			attribute.String("requester.nickname", requester.Nickname),
			attribute.String("llm.provider", a.provider.Name()),
			attribute.String("llm.model", a.model),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else if reply != nil && reply.Intent != "" {
			span.SetAttributes(attribute.String("intent.name", reply.Intent))
		}
		span.End()
	}()

	system, err := a.prompt.Build(ctx)
	if err != nil {
		return nil, fmt.Errorf("build system prompt: %w", err)
	}
	messages := []providers.Message{
		{Role: providers.RoleSystem, Content: system},
		{Role: providers.RoleUser, Content: text},
	}

	first, err := a.chat(ctx, messages, 1)
	if err != nil {
		return nil, err
	}

	if len(first.ToolCalls) == 0 {
		out := SanitizeAssistantContent(first.Content)
		if out == "" {
			slog.Warn("model returned neither text nor a tool call", "requester", requester.Nickname)
			return nil, nil
		}
		return a.finish(ctx, &Reply{Text: out}, token)
	}

	call := first.ToolCalls[0]
	if len(first.ToolCalls) > 1 {
		slog.Debug("model requested several tools, using the first", "count", len(first.ToolCalls), "first", call.Name)
	}
	slog.Info("intent requested", "intent", call.Name, "requester", requester.Nickname, "args", call.Arguments)

	result, err := a.intents.ParseAndDispatch(ctx, call.Name, call.Arguments, requester)
	if err != nil {
		if errors.Is(err, intents.ErrUnknownIntent) {
			return &Reply{Text: fmt.Sprintf(MsgUnknownTool, call.Name)}, nil
		}
		return nil, fmt.Errorf("dispatch %s: %w", call.Name, err)
	}
	if result.Empty() {
		return &Reply{Text: MsgNoData, Intent: result.Intent}, nil
	}

	payload, err := json.Marshal(result.Payload())
	if err != nil {
		return nil, fmt.Errorf("encode %s result: %w", call.Name, err)
	}
	messages = append(messages,
		providers.Message{Role: providers.RoleAssistant, Content: first.Content, ToolCalls: []providers.ToolCall{call}},
		providers.Message{Role: providers.RoleTool, ToolCallID: call.ID, Name: call.Name, Content: string(payload)},
	)

	second, err := a.chat(ctx, messages, 2)
	if err != nil {
		return nil, err
	}
	out := SanitizeAssistantContent(second.Content)
	if out == "" {
		slog.Warn("model returned no text for intent result", "intent", call.Name, "tool_calls", len(second.ToolCalls))
		return nil, nil
	}
	return a.finish(ctx, &Reply{Text: out, ImageURL: result.Image, Intent: result.Intent}, token)
}

func (a *Agent) chat(ctx context.Context, messages []providers.Message, iteration int) (*providers.ChatResponse, error) {
	opts := map[string]any{}
	if a.maxTokens > 0 {
		opts[providers.OptMaxTokens] = a.maxTokens
	}
	if a.temperature > 0 {
		opts[providers.OptTemperature] = a.temperature
	}

	start := time.Now()
	resp, err := a.provider.Chat(ctx, providers.ChatRequest{
		Messages: messages,
		Tools:    a.tools,
		Model:    a.model,
		Options:  opts,
	})
	if err != nil {
		return nil, fmt.Errorf("llm call %d: %w", iteration, err)
	}
	attrs := []any{"iteration", iteration, "duration", time.Since(start), "finish_reason", resp.FinishReason}
	if resp.Usage != nil {
		attrs = append(attrs, "prompt_tokens", resp.Usage.PromptTokens, "completion_tokens", resp.Usage.CompletionTokens)
	}
	slog.Debug("llm call completed", attrs...)
	return resp, nil
}

// finish rewrites @[nickname] placeholders; @[starter] names whoever
// started the active campaign.
func (a *Agent) finish(ctx context.Context, r *Reply, token mentions.TokenFunc) (*Reply, error) {
	var opts []mentions.Option
	if a.campaigns != nil {
		c, err := a.campaigns.Active(ctx)
		if err != nil && !errors.Is(err, vaquinha.ErrNoActiveCampaign) {
			return nil, fmt.Errorf("load active campaign: %w", err)
		}
		if c != nil {
			opts = append(opts, mentions.WithAlias("starter", c.StarterNickname))
		}
	}
	text, targets, err := mentions.NewResolver(a.directory, token).Resolve(ctx, r.Text, opts...)
	if err != nil {
		return nil, err
	}
	r.Text = text
	r.Mentions = targets
	return r, nil
}
