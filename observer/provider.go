package observer

import (
	"context"
	"time"

	axon "github.com/nevindra/axon"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Span and metric attribute keys.
var (
	attrLLMModel    = attribute.Key("llm.model")
	attrLLMProvider = attribute.Key("llm.provider")
	attrToolCount   = attribute.Key("llm.tool_count")
	attrTokensIn    = attribute.Key("llm.tokens.input")
	attrTokensOut   = attribute.Key("llm.tokens.output")
)

// ObservedProvider wraps an axon.Provider with OTEL instrumentation.
type ObservedProvider struct {
	inner axon.Provider
	inst  *Instruments
}

// WrapProvider returns an instrumented provider that emits traces, metrics,
// and structured logs for every model call.
func WrapProvider(inner axon.Provider, inst *Instruments) *ObservedProvider {
	return &ObservedProvider{inner: inner, inst: inst}
}

func (o *ObservedProvider) Name() string  { return o.inner.Name() }
func (o *ObservedProvider) Model() string { return o.inner.Model() }

func (o *ObservedProvider) Chat(ctx context.Context, req axon.ChatRequest) (axon.ChatResponse, error) {
	spanName := "llm.chat"
	if len(req.Tools) > 0 {
		spanName = "llm.chat_with_tools"
	}
	ctx, span := o.inst.Tracer.Start(ctx, spanName, trace.WithAttributes(
		attrLLMModel.String(o.inner.Model()),
		attrLLMProvider.String(o.inner.Name()),
		attrToolCount.Int(len(req.Tools)),
	))
	defer span.End()
	start := time.Now()

	resp, err := o.inner.Chat(ctx, req)

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	o.record(ctx, span, status, durationMs, resp.Usage)
	return resp, err
}

func (o *ObservedProvider) record(ctx context.Context, span trace.Span, status string, durationMs float64, usage axon.Usage) {
	span.SetAttributes(
		attrTokensIn.Int(usage.PromptTokens),
		attrTokensOut.Int(usage.CompletionTokens),
	)

	base := []attribute.KeyValue{
		attrLLMModel.String(o.inner.Model()),
		attrLLMProvider.String(o.inner.Name()),
	}
	o.inst.TokenUsage.Add(ctx, int64(usage.PromptTokens), metric.WithAttributes(
		append(base, attribute.String("direction", "input"))...))
	o.inst.TokenUsage.Add(ctx, int64(usage.CompletionTokens), metric.WithAttributes(
		append(base, attribute.String("direction", "output"))...))
	o.inst.LLMRequests.Add(ctx, 1, metric.WithAttributes(
		append(base, attribute.String("status", status))...))
	o.inst.LLMDuration.Record(ctx, durationMs, metric.WithAttributes(base...))

	var rec otellog.Record
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetBody(otellog.StringValue("llm call completed"))
	rec.AddAttributes(
		otellog.String("llm.model", o.inner.Model()),
		otellog.String("llm.provider", o.inner.Name()),
		otellog.Int("llm.tokens.input", usage.PromptTokens),
		otellog.Int("llm.tokens.output", usage.CompletionTokens),
		otellog.Float64("llm.duration_ms", durationMs),
		otellog.String("status", status),
	)
	o.inst.Logger.Emit(ctx, rec)
}

var _ axon.Provider = (*ObservedProvider)(nil)
