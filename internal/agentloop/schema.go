package agentloop

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/corestack/agentcore/internal/llm"
)

// validateJSONSchema checks content against a minimal subset of JSON
// Schema: type, required, and properties, recursively. This is
// intentionally not a general-purpose validator, just enough to drive
// self-correction of a structured final answer.
func validateJSONSchema(content string, schema llm.JSONSchema) []string {
	var data interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &data); err != nil {
		return []string{fmt.Sprintf("response is not valid JSON: %v", err)}
	}
	var errs []string
	checkValue("$", data, schema, &errs)
	return errs
}

func checkValue(path string, v interface{}, schema llm.JSONSchema, errs *[]string) {
	switch schema.Type {
	case "object":
		obj, ok := v.(map[string]interface{})
		if !ok {
			*errs = append(*errs, fmt.Sprintf("%s: expected object", path))
			return
		}
		for _, req := range schema.Required {
			if _, present := obj[req]; !present {
				*errs = append(*errs, fmt.Sprintf("%s: missing required field %q", path, req))
			}
		}
		for name, propSchema := range schema.Properties {
			if val, present := obj[name]; present {
				checkValue(path+"."+name, val, propSchema, errs)
			}
		}
	case "array":
		arr, ok := v.([]interface{})
		if !ok {
			*errs = append(*errs, fmt.Sprintf("%s: expected array", path))
			return
		}
		if schema.Items != nil {
			for i, item := range arr {
				checkValue(fmt.Sprintf("%s[%d]", path, i), item, *schema.Items, errs)
			}
		}
	case "string":
		if _, ok := v.(string); !ok {
			*errs = append(*errs, fmt.Sprintf("%s: expected string", path))
		} else if len(schema.Enum) > 0 {
			s := v.(string)
			found := false
			for _, e := range schema.Enum {
				if e == s {
					found = true
					break
				}
			}
			if !found {
				*errs = append(*errs, fmt.Sprintf("%s: %q is not one of %v", path, s, schema.Enum))
			}
		}
	case "number", "integer":
		if _, ok := v.(float64); !ok {
			*errs = append(*errs, fmt.Sprintf("%s: expected number", path))
		}
	case "boolean":
		if _, ok := v.(bool); !ok {
			*errs = append(*errs, fmt.Sprintf("%s: expected boolean", path))
		}
	}
}

// correctionPrompt builds the internal reminder message the agent
// loop injects when a response fails schema validation, identifiable
// to the compactor so it is stripped preferentially.
func correctionPrompt(errs []string) string {
	var sb strings.Builder
	sb.WriteString("Your previous response did not match the required JSON schema:\n")
	for _, e := range errs {
		sb.WriteString("- ")
		sb.WriteString(e)
		sb.WriteString("\n")
	}
	sb.WriteString("Respond again with corrected JSON only.")
	return sb.String()
}
