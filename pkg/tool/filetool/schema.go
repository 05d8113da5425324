package filetool

import (
	"encoding/json"

	"github.com/invopop/jsonschema"

	"github.com/aiwhisperer/core/pkg/aiwerrors"
)

// decodeArgs round-trips a tool call's map[string]any arguments into a
// typed struct via JSON, the same wire shape the model supplies them in.
func decodeArgs(args map[string]any, out any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return aiwerrors.Wrap(aiwerrors.KindInvalidArguments, "marshal tool arguments", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return aiwerrors.Wrap(aiwerrors.KindInvalidArguments, "decode tool arguments", err)
	}
	return nil
}

// schemaFor reflects a tool's argument struct into an OpenAI-compatible
// JSON schema map, stripping the top-level $schema/$id/$ref wrapper that
// the reflector adds for top-level definitions.
func schemaFor[T any]() map[string]any {
	reflector := &jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: false,
	}
	var zero T
	raw, err := json.Marshal(reflector.Reflect(&zero))
	if err != nil {
		return nil
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	delete(out, "$schema")
	delete(out, "$id")
	return out
}
