// Package observability wires OpenTelemetry tracing and Prometheus metrics
// across the session manager, AI loop, mailbox, and tool registry: spans
// for session runs/LLM calls/tool execution, an in-memory debug exporter
// for inspecting recent spans, and counters/histograms per domain.
package observability

// Service attributes (OpenTelemetry semantic conventions).
const (
	AttrServiceName    = "service.name"
	AttrServiceVersion = "service.version"
)

// GenAI semantic conventions, applied to LLM call spans.
const (
	AttrGenAISystem        = "gen_ai.system"
	AttrGenAIOperationName = "gen_ai.operation.name"
	AttrGenAIRequestModel  = "gen_ai.request.model"

	OpChat = "chat"
)

// AIWhisperer domain attributes.
const (
	AttrAgentName        = "aiwhisperer.agent.name"
	AttrSessionID        = "aiwhisperer.session.id"
	AttrToolName         = "aiwhisperer.tool.name"
	AttrLLMModel         = "gen_ai.request.model"
	AttrLLMTokensInput   = "gen_ai.usage.input_tokens"
	AttrLLMTokensOutput  = "gen_ai.usage.output_tokens"
	AttrMailboxRecipient = "aiwhisperer.mailbox.recipient"
)

// HTTP attributes.
const (
	AttrHTTPMethod       = "http.method"
	AttrHTTPPath         = "http.route"
	AttrHTTPStatusCode   = "http.status_code"
	AttrHTTPResponseSize = "http.response.body.size"
)

// Error attributes.
const (
	AttrErrorType = "error.type"
)

// Span names.
const (
	SpanSessionRun    = "aiwhisperer.session.run"
	SpanLLMCall       = "aiwhisperer.llm.call"
	SpanToolExecution = "aiwhisperer.tool.execute"
	SpanMailboxSend   = "aiwhisperer.mailbox.send"
	SpanHTTPRequest   = "aiwhisperer.http.request"
)

// Defaults.
const (
	DefaultServiceName  = "aiwhisperer"
	DefaultSamplingRate = 1.0
	DefaultOTLPEndpoint = "localhost:4317"
	DefaultMetricsPath  = "/metrics"
)
