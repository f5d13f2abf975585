package synthesis

import (
	"encoding/json"
	"strings"

	"github.com/promptforge/enhancer-api/internal/models"
)

// ExtractJSON locates the JSON object inside a raw provider response. Models
// often wrap the payload in prose ("Sure! Here you go: {...}"), so the
// substring between the first '{' and the last '}' is parsed. Anything that
// still fails to parse is a hard ParseError: it is surfaced to the caller,
// never retried automatically and never defaulted to empty content.
func ExtractJSON(raw string) (json.RawMessage, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end < start {
		return nil, &models.ParseError{Reason: "no JSON object found in response"}
	}

	candidate := []byte(raw[start : end+1])
	if !json.Valid(candidate) {
		return nil, &models.ParseError{Reason: "extracted segment is not valid JSON"}
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(candidate, &probe); err != nil {
		return nil, &models.ParseError{Reason: "extracted segment is not a JSON object"}
	}
	return json.RawMessage(candidate), nil
}
