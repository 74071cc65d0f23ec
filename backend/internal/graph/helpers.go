package graph

import (
	"encoding/json"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"prompt-studio/backend/internal/prompt"
)

// ============================================================================
// Helper Functions
// ============================================================================

func getStringFromRecord(record *neo4j.Record, key string) string {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return ""
	}
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}

func getNodeFromRecord(record *neo4j.Record, key string) (neo4j.Node, bool) {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return neo4j.Node{}, false
	}
	node, ok := val.(neo4j.Node)
	return node, ok
}

func getStringFromMap(m map[string]any, key string) string {
	val, ok := m[key]
	if !ok || val == nil {
		return ""
	}
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}

func getFloat64FromMap(m map[string]any, key string) (float64, bool) {
	val, ok := m[key]
	if !ok || val == nil {
		return 0, false
	}
	switch v := val.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func getStringSliceFromMap(m map[string]any, key string) []string {
	val, ok := m[key]
	if !ok || val == nil {
		return []string{}
	}
	switch v := val.(type) {
	case []string:
		return v
	case []any:
		result := make([]string, 0, len(v))
		for _, item := range v {
			if str, ok := item.(string); ok {
				result = append(result, str)
			}
		}
		return result
	}
	return []string{}
}

func getTimeFromMap(m map[string]any, key string) *time.Time {
	val, ok := m[key]
	if !ok || val == nil {
		return nil
	}
	// Neo4j datetime values come as time.Time
	if t, ok := val.(time.Time); ok {
		utc := t.UTC()
		return &utc
	}
	return nil
}

// decodeJSONProp unmarshals a property stored as a JSON string; a missing
// or malformed value leaves out untouched.
func decodeJSONProp(m map[string]any, key string, out any) {
	raw := getStringFromMap(m, key)
	if raw == "" {
		return
	}
	_ = json.Unmarshal([]byte(raw), out)
}

func encodeJSONProp(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// storedMetadata is the metadata kept in the JSON property; timestamps and
// the flow position live in their own properties.
type storedMetadata struct {
	Author      string   `json:"author,omitempty"`
	Description string   `json:"description,omitempty"`
	Category    string   `json:"category,omitempty"`
	Labels      []string `json:"labels,omitempty"`
}

// promptFromProps rebuilds a prompt from a node's properties
func promptFromProps(props map[string]any, parentID string) prompt.Prompt {
	p := prompt.Prompt{
		Name:               getStringFromMap(props, "name"),
		Version:            getStringFromMap(props, "version"),
		Content:            getStringFromMap(props, "content"),
		StaticTags:         getStringSliceFromMap(props, "staticTags"),
		DynamicTags:        []json.RawMessage{},
		Conditions:         []json.RawMessage{},
		SupportedLanguages: getStringSliceFromMap(props, "supportedLanguages"),
	}
	decodeJSONProp(props, "dynamicTags", &p.DynamicTags)
	decodeJSONProp(props, "conditions", &p.Conditions)
	decodeJSONProp(props, "config", &p.Config)

	var meta storedMetadata
	decodeJSONProp(props, "metadata", &meta)
	p.Metadata = prompt.Metadata{
		Author:      meta.Author,
		Description: meta.Description,
		Category:    meta.Category,
		Labels:      meta.Labels,
		CreatedAt:   getTimeFromMap(props, "createdAt"),
		UpdatedAt:   getTimeFromMap(props, "updatedAt"),
	}
	x, okX := getFloat64FromMap(props, "flowX")
	y, okY := getFloat64FromMap(props, "flowY")
	if okX && okY {
		p.Metadata.FlowPosition = &prompt.Position{X: x, Y: y}
	}

	if parentID != "" {
		parent := parentID
		p.ParentID = &parent
	}
	return p
}

// propsFromPrompt flattens the writable fields of p into node properties.
// key, createdAt and updatedAt are set by the queries.
func propsFromPrompt(p prompt.Prompt) (map[string]any, error) {
	dynamicTags, err := encodeJSONProp(nonNilRaw(p.DynamicTags))
	if err != nil {
		return nil, err
	}
	conditions, err := encodeJSONProp(nonNilRaw(p.Conditions))
	if err != nil {
		return nil, err
	}
	cfg, err := encodeJSONProp(p.Config)
	if err != nil {
		return nil, err
	}
	meta, err := encodeJSONProp(storedMetadata{
		Author:      p.Metadata.Author,
		Description: p.Metadata.Description,
		Category:    p.Metadata.Category,
		Labels:      p.Metadata.Labels,
	})
	if err != nil {
		return nil, err
	}

	props := map[string]any{
		"name":               p.Name,
		"version":            p.Version,
		"content":            p.Content,
		"staticTags":         nonNilStrings(p.StaticTags),
		"supportedLanguages": nonNilStrings(p.SupportedLanguages),
		"dynamicTags":        dynamicTags,
		"conditions":         conditions,
		"config":             cfg,
		"metadata":           meta,
		"flowX":              nil,
		"flowY":              nil,
	}
	if pos := p.Metadata.FlowPosition; pos != nil {
		rounded := pos.Rounded()
		props["flowX"] = rounded.X
		props["flowY"] = rounded.Y
	}
	return props, nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilRaw(s []json.RawMessage) []json.RawMessage {
	if s == nil {
		return []json.RawMessage{}
	}
	return s
}
