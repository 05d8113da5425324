// Package modelcaps is the static model capability table: per-model
// traits that drive whether the AI loop can rely on multi-tool turns and
// structured output, ported from AIWhisperer's original
// model_capabilities.py table.
package modelcaps

import (
	"log/slog"
	"strings"
	"sync"

	aiwlog "github.com/aiwhisperer/core/pkg/logger"
)

// Quirk flags a model-specific behavioral limitation.
type Quirk string

const (
	// QuirkNoToolsWithStructuredOutput: the model errors if response_format
	// and tools are both present (observed on Gemini via OpenRouter).
	QuirkNoToolsWithStructuredOutput Quirk = "no_tools_with_structured_output"
	// QuirkStructuredOutputHidden: the model supports structured output but
	// its capability metadata under-reports it (observed on Claude 3.5+).
	QuirkStructuredOutputHidden Quirk = "structured_output_hidden"
)

// Record is one model's capability entry.
type Record struct {
	MultiTool         bool
	ParallelTools     bool
	MaxToolsPerTurn   int
	StructuredOutput  bool
	Quirks            map[Quirk]bool
}

// HasQuirk reports whether the record carries the given quirk.
func (r Record) HasQuirk(q Quirk) bool { return r.Quirks[q] }

// DefaultRecord is returned for any model not found in the table and not
// matched by prefix, per spec C4's "conservative default".
var DefaultRecord = Record{
	MultiTool:        false,
	ParallelTools:    false,
	MaxToolsPerTurn:  1,
	StructuredOutput: false,
	Quirks:           map[Quirk]bool{},
}

// builtin is the seed table, ported verbatim (values and comments) from
// the original Python model_capabilities.py.
var builtin = map[string]Record{
	// OpenAI models
	"openai/gpt-4": {
		MultiTool: false, ParallelTools: false, MaxToolsPerTurn: 1, StructuredOutput: false,
	},
	"openai/gpt-4-turbo": {
		MultiTool: true, ParallelTools: true, MaxToolsPerTurn: 10, StructuredOutput: false,
	},
	"openai/gpt-4o": {
		MultiTool: true, ParallelTools: true, MaxToolsPerTurn: 10, StructuredOutput: true,
	},
	"openai/gpt-4o-mini": {
		MultiTool: true, ParallelTools: true, MaxToolsPerTurn: 10, StructuredOutput: true,
	},
	"openai/gpt-3.5-turbo": {
		MultiTool: true, ParallelTools: true, MaxToolsPerTurn: 10, StructuredOutput: false,
	},
	"openai/gpt-4.1": {
		MultiTool: true, ParallelTools: true, MaxToolsPerTurn: 2, StructuredOutput: true,
	},
	"openai/gpt-4.1-mini": {
		MultiTool: true, ParallelTools: true, MaxToolsPerTurn: 2, StructuredOutput: true,
	},

	// Anthropic models
	"anthropic/claude-3-opus": {
		MultiTool: true, ParallelTools: true, MaxToolsPerTurn: 10, StructuredOutput: true,
		Quirks: map[Quirk]bool{QuirkStructuredOutputHidden: true},
	},
	"anthropic/claude-3-sonnet": {
		MultiTool: false, ParallelTools: false, MaxToolsPerTurn: 1, StructuredOutput: true,
	},
	"anthropic/claude-3-5-sonnet": {
		MultiTool: true, ParallelTools: true, MaxToolsPerTurn: 10, StructuredOutput: true,
	},
	"anthropic/claude-3-5-sonnet-latest": {
		MultiTool: true, ParallelTools: true, MaxToolsPerTurn: 10, StructuredOutput: true,
		Quirks: map[Quirk]bool{QuirkStructuredOutputHidden: true},
	},
	"anthropic/claude-3-haiku": {
		MultiTool: false, ParallelTools: false, MaxToolsPerTurn: 1, StructuredOutput: false,
	},
	"anthropic/claude-3-5-haiku": {
		MultiTool: true, ParallelTools: true, MaxToolsPerTurn: 10, StructuredOutput: true,
		Quirks: map[Quirk]bool{QuirkStructuredOutputHidden: true},
	},
	"anthropic/claude-3-5-haiku-latest": {
		MultiTool: true, ParallelTools: true, MaxToolsPerTurn: 10, StructuredOutput: true,
		Quirks: map[Quirk]bool{QuirkStructuredOutputHidden: true},
	},
	"anthropic/claude-3.5-sonnet": {
		MultiTool: false, ParallelTools: false, MaxToolsPerTurn: 1, StructuredOutput: true,
		Quirks: map[Quirk]bool{QuirkStructuredOutputHidden: true},
	},
	"anthropic/claude-sonnet-4": {
		MultiTool: true, ParallelTools: true, MaxToolsPerTurn: 10, StructuredOutput: true,
		Quirks: map[Quirk]bool{QuirkStructuredOutputHidden: true},
	},
	"anthropic/claude-4-opus": {
		MultiTool: true, ParallelTools: true, MaxToolsPerTurn: 10, StructuredOutput: true,
		Quirks: map[Quirk]bool{QuirkStructuredOutputHidden: true},
	},
	"anthropic/claude-2.1": {
		MultiTool: true, ParallelTools: true, MaxToolsPerTurn: 5, StructuredOutput: false,
	},
	"anthropic/claude-3.7-sonnet": {
		MultiTool: false, ParallelTools: false, MaxToolsPerTurn: 1, StructuredOutput: true,
		Quirks: map[Quirk]bool{QuirkStructuredOutputHidden: true},
	},

	// Google models
	"google/gemini-pro": {
		MultiTool: false, ParallelTools: false, MaxToolsPerTurn: 1, StructuredOutput: true,
		Quirks: map[Quirk]bool{QuirkNoToolsWithStructuredOutput: true},
	},
	"google/gemini-1.5-pro": {
		MultiTool: false, ParallelTools: false, MaxToolsPerTurn: 1, StructuredOutput: true,
		Quirks: map[Quirk]bool{QuirkNoToolsWithStructuredOutput: true},
	},
	"google/gemini-1.5-flash": {
		MultiTool: false, ParallelTools: false, MaxToolsPerTurn: 1, StructuredOutput: true,
		Quirks: map[Quirk]bool{QuirkNoToolsWithStructuredOutput: true},
	},
	"google/gemini-2.5-flash-preview": {
		MultiTool: true, ParallelTools: true, MaxToolsPerTurn: 10, StructuredOutput: true,
		Quirks: map[Quirk]bool{QuirkNoToolsWithStructuredOutput: true},
	},
	"google/gemini-2.5-flash-preview-05-20:thinking": {
		MultiTool: true, ParallelTools: true, MaxToolsPerTurn: 10, StructuredOutput: true,
		Quirks: map[Quirk]bool{QuirkNoToolsWithStructuredOutput: true},
	},
	"google/gemini-2.5-flash-preview-04-17": {
		MultiTool: true, ParallelTools: true, MaxToolsPerTurn: 2, StructuredOutput: true,
		Quirks: map[Quirk]bool{QuirkNoToolsWithStructuredOutput: true},
	},
	"google/gemini-2.5-flash-preview-05-20": {
		MultiTool: true, ParallelTools: true, MaxToolsPerTurn: 2, StructuredOutput: true,
		Quirks: map[Quirk]bool{QuirkNoToolsWithStructuredOutput: true},
	},
	"google/gemini-2.5-pro-preview": {
		MultiTool: true, ParallelTools: true, MaxToolsPerTurn: 2, StructuredOutput: true,
		Quirks: map[Quirk]bool{QuirkNoToolsWithStructuredOutput: true},
	},
	"google/gemini-flash-1.5": {
		MultiTool: false, ParallelTools: false, MaxToolsPerTurn: 0, StructuredOutput: true,
	},
	"google/gemini-flash-1.5-8b": {
		MultiTool: true, ParallelTools: true, MaxToolsPerTurn: 2, StructuredOutput: true,
		Quirks: map[Quirk]bool{QuirkNoToolsWithStructuredOutput: true},
	},

	// Meta models
	"meta-llama/llama-3-70b-instruct": {
		MultiTool: true, ParallelTools: true, MaxToolsPerTurn: 10, StructuredOutput: false,
	},
	"meta-llama/llama-3.3-70b-instruct": {
		MultiTool: false, ParallelTools: false, MaxToolsPerTurn: 1, StructuredOutput: true,
	},

	// Fireworks models
	"fireworks/mixtral-8x7b-instruct": {
		MultiTool: false, ParallelTools: false, MaxToolsPerTurn: 1, StructuredOutput: true,
	},
	"fireworks/mixtral-8x22b-instruct": {
		MultiTool: false, ParallelTools: false, MaxToolsPerTurn: 1, StructuredOutput: true,
	},

	// Mistral models
	"mistralai/mistral-7b-instruct": {
		MultiTool: true, ParallelTools: true, MaxToolsPerTurn: 2, StructuredOutput: false,
	},
	"mistralai/mistral-nemo": {
		MultiTool: true, ParallelTools: true, MaxToolsPerTurn: 2, StructuredOutput: true,
	},
	"mistralai/mixtral-8x7b-instruct": {
		MultiTool: false, ParallelTools: false, MaxToolsPerTurn: 0, StructuredOutput: true,
	},

	// DeepSeek models
	"deepseek/deepseek-chat-v3-0324": {
		MultiTool: true, ParallelTools: true, MaxToolsPerTurn: 2, StructuredOutput: false,
	},
}

// Table is a capability lookup with exact-match then longest-prefix-match
// fallback, and a mutable overlay so operators can register custom models.
type Table struct {
	mu      sync.RWMutex
	entries map[string]Record
	logger  *slog.Logger
}

// New creates a Table seeded with the built-in model list.
func New(logger *slog.Logger) *Table {
	if logger == nil {
		logger = aiwlog.Get()
	}
	entries := make(map[string]Record, len(builtin))
	for k, v := range builtin {
		if v.Quirks == nil {
			v.Quirks = map[Quirk]bool{}
		}
		entries[k] = v
	}
	return &Table{entries: entries, logger: logger}
}

// Register adds or overrides a model's capability record.
func (t *Table) Register(model string, rec Record) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rec.Quirks == nil {
		rec.Quirks = map[Quirk]bool{}
	}
	t.entries[model] = rec
}

// Get returns the capability record for model: exact match, then longest
// prefix match among registered keys, then DefaultRecord.
func (t *Table) Get(model string) Record {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if rec, ok := t.entries[model]; ok {
		return rec
	}

	bestPrefix := ""
	var best Record
	found := false
	for prefix, rec := range t.entries {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(bestPrefix) {
			bestPrefix = prefix
			best = rec
			found = true
		}
	}
	if found {
		return best
	}

	t.logger.Warn("model not found in capability table, using conservative default",
		"model", model)
	return DefaultRecord
}

// SupportsMultiTool reports whether model can receive multiple tool calls
// in a single assistant turn.
func (t *Table) SupportsMultiTool(model string) bool { return t.Get(model).MultiTool }

// SupportsStructuredOutput reports whether model supports a JSON-Schema
// validated response_format.
func (t *Table) SupportsStructuredOutput(model string) bool { return t.Get(model).StructuredOutput }

// HasQuirk reports whether model carries the named quirk.
func (t *Table) HasQuirk(model string, q Quirk) bool { return t.Get(model).HasQuirk(q) }
