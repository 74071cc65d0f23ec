package prompt

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"My Prompt!":        "my-prompt!",
		"  Greeting   Bot ": "greeting-bot",
		"already-slugged":   "already-slugged",
		"Tabs\tand\nLines":  "tabs-and-lines",
		"":                  "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), "input %q", in)
	}
}

func TestKey(t *testing.T) {
	assert.Equal(t, "summarizer_1.0", Key("summarizer", "1.0"))
	assert.Equal(t, "snake_case_2", Prompt{Name: "snake_case", Version: "2"}.Key())
}

func TestPosition_Rounded(t *testing.T) {
	assert.Equal(t, Position{X: 151, Y: -3}, Position{X: 150.6, Y: -2.5}.Rounded())
	assert.True(t, Position{}.IsOrigin())
	assert.False(t, Position{Y: 1}.IsOrigin())
}

func TestParentPatch_NilSerializesAsNull(t *testing.T) {
	raw, err := json.Marshal(ParentPatch{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"parentId": null}`, string(raw))

	parent := "root_1.0"
	raw, err = json.Marshal(ParentPatch{ParentID: &parent})
	require.NoError(t, err)
	assert.JSONEq(t, `{"parentId": "root_1.0"}`, string(raw))
}

func TestPositionPatch_Shape(t *testing.T) {
	raw, err := json.Marshal(NewPositionPatch(Position{X: 10.4, Y: 20.5}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"metadata":{"flowPosition":{"x":10,"y":21}}}`, string(raw))
}

func TestPrompt_FlowPosition(t *testing.T) {
	var p Prompt
	require.NoError(t, json.Unmarshal([]byte(`{"name":"a","version":"1","metadata":{"flowPosition":{"x":150,"y":300}}}`), &p))

	pos, ok := p.FlowPosition()
	assert.True(t, ok)
	assert.Equal(t, Position{X: 150, Y: 300}, pos)

	_, ok = Prompt{}.FlowPosition()
	assert.False(t, ok)
}
