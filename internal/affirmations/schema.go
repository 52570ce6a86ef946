package affirmations

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
)

var outputSchema = generateSchema[Output]()

// generateSchema reflects T into a strict JSON schema accepted by structured outputs.
func generateSchema[T any]() map[string]any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var value T
	schema := reflector.Reflect(value)
	encoded, err := schema.MarshalJSON()
	if err != nil {
		panic(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		panic(err)
	}
	delete(decoded, "$schema")
	delete(decoded, "$id")
	decoded["additionalProperties"] = false
	return decoded
}

// decodeOutput unmarshals model output, tolerating code fences or surrounding prose.
func decodeOutput(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", ErrEmptyAffirmation
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("%w: no JSON object in output", ErrMalformedResponse)
	}
	var output Output
	if err := json.Unmarshal([]byte(text[start:end+1]), &output); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return normalizeAffirmation(output.Affirmation)
}
