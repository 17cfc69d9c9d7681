package script

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/nikhilbhutani/slidecast/internal/models"
)

// Model output is untrusted. Every response goes through the same steps and is
// rejected as a whole at the first one that fails:
//
//  1. trim whitespace and strip a ``` or ```json fence, if any
//  2. decode as JSON
//  3. validate the shape against itemSchema / batchSchema
//  4. check the slide numbers against the slides that were sent

const itemSchemaJSON = `{
	"type": "object",
	"required": ["slide_number", "script"],
	"properties": {
		"slide_number": {"type": "integer", "minimum": 1},
		"script": {"type": "string", "pattern": "\\S"}
	}
}`

var (
	itemSchema  = jsonschema.MustCompileString("slidecast://script-item.json", itemSchemaJSON)
	batchSchema = jsonschema.MustCompileString("slidecast://script-batch.json",
		`{"type": "array", "items": `+itemSchemaJSON+`}`)
)

// stripFence returns the payload inside the first markdown code fence, or the
// trimmed input when there is no fence.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	start := strings.Index(s, "```")
	if start < 0 {
		return s
	}
	body := s[start+3:]
	// Drop the info string ("json") on the opening line.
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	} else {
		body = strings.TrimPrefix(body, "json")
	}
	if end := strings.LastIndex(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

func decode(raw string) (any, []byte, error) {
	payload := []byte(stripFence(raw))
	if len(payload) == 0 {
		return nil, nil, fmt.Errorf("%w: empty response", ErrInvalidResponse)
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, nil, fmt.Errorf("%w: not JSON: %v", ErrInvalidResponse, err)
	}
	return v, payload, nil
}

// parseBatch accepts exactly one script per requested slide number.
func parseBatch(raw string, want []int) ([]models.ScriptItem, error) {
	v, payload, err := decode(raw)
	if err != nil {
		return nil, err
	}
	if err := batchSchema.Validate(v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	var items []models.ScriptItem
	if err := json.Unmarshal(payload, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if len(items) != len(want) {
		return nil, fmt.Errorf("%w: got %d scripts for %d slides", ErrInvalidResponse, len(items), len(want))
	}

	seen := make(map[int]bool, len(items))
	for _, it := range items {
		if !slices.Contains(want, it.SlideNumber) {
			return nil, fmt.Errorf("%w: unexpected slide_number %d", ErrInvalidResponse, it.SlideNumber)
		}
		if seen[it.SlideNumber] {
			return nil, fmt.Errorf("%w: duplicate slide_number %d", ErrInvalidResponse, it.SlideNumber)
		}
		seen[it.SlideNumber] = true
	}

	sort.Slice(items, func(i, j int) bool { return items[i].SlideNumber < items[j].SlideNumber })
	return items, nil
}

// parseSingle accepts one object for slide want. A one-element array is
// unwrapped, since models asked for an object sometimes return a list anyway.
func parseSingle(raw string, want int) (models.ScriptItem, error) {
	v, payload, err := decode(raw)
	if err != nil {
		return models.ScriptItem{}, err
	}
	if arr, ok := v.([]any); ok {
		if len(arr) != 1 {
			return models.ScriptItem{}, fmt.Errorf("%w: expected one object, got %d", ErrInvalidResponse, len(arr))
		}
		items, err := parseBatch(raw, []int{want})
		if err != nil {
			return models.ScriptItem{}, err
		}
		return items[0], nil
	}

	if err := itemSchema.Validate(v); err != nil {
		return models.ScriptItem{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	var item models.ScriptItem
	if err := json.Unmarshal(payload, &item); err != nil {
		return models.ScriptItem{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if item.SlideNumber != want {
		return models.ScriptItem{}, fmt.Errorf("%w: expected slide_number %d, got %d", ErrInvalidResponse, want, item.SlideNumber)
	}
	return item, nil
}
