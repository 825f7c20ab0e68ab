package story

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntity_UnmarshalForms(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Entity
	}{
		{"full triple", `["Alice","protagonist","blue dress"]`, Entity{"Alice", "protagonist", "blue dress"}},
		{"name and role", `["Bob","villain"]`, Entity{"Bob", "villain", ""}},
		{"name only", `["Cat"]`, Entity{"Cat", "Character", ""}},
		{"empty array", `[]`, Entity{"Unknown", "Character", ""}},
		{"object", `{"name":"Dora","description":"tall"}`, Entity{"Dora", "Character", "tall"}},
		{"bare string", `"Eve"`, Entity{"Eve", "Character", ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Entity
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEntity_MarshalsAsTriple(t *testing.T) {
	data, err := json.Marshal(Entity{"Alice", "protagonist", "blue dress"})
	require.NoError(t, err)
	assert.JSONEq(t, `["Alice","protagonist","blue dress"]`, string(data))
}

func TestSemanticMap_Decode(t *testing.T) {
	raw := `{
		"summary": "A girl falls down a hole.",
		"entities": [["Alice","protagonist","curious"], ["Rabbit","guide"]],
		"keywords": ["wonder"],
		"scenes": ["Alice follows the rabbit.", "The tea party."]
	}`

	var m SemanticMap
	require.NoError(t, json.Unmarshal([]byte(raw), &m))

	assert.Len(t, m.Entities, 2)
	assert.Equal(t, "guide", m.Entities[1].Role)
	assert.Equal(t, []string{"Alice follows the rabbit.", "The tea party."}, m.Scenes)
}

func TestSemanticMap_TopEntities(t *testing.T) {
	m := SemanticMap{Entities: []Entity{{Name: "A"}, {Name: "B"}, {Name: "C"}, {Name: "D"}}}

	assert.Len(t, m.TopEntities(3), 3)
	assert.Equal(t, "A", m.TopEntities(3)[0].Name)
	assert.Len(t, m.TopEntities(10), 4)
	assert.Empty(t, m.TopEntities(0))
}
