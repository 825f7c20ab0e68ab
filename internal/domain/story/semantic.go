package story

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const defaultRole = "Character"

// Entity is a character picked out of a book, ranked by importance.
// On the wire it is a ["name", "role", "description"] triple.
type Entity struct {
	Name        string
	Role        string
	Description string
}

func (e Entity) MarshalJSON() ([]byte, error) {
	return json.Marshal([]string{e.Name, e.Role, e.Description})
}

// UnmarshalJSON accepts the triple form with trailing items optional, an
// object form, or a bare name string.
func (e *Entity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty entity")
	}

	switch data[0] {
	case '[':
		var parts []string
		if err := json.Unmarshal(data, &parts); err != nil {
			return fmt.Errorf("entity array: %w", err)
		}
		*e = Entity{Name: "Unknown", Role: defaultRole}
		if len(parts) > 0 {
			e.Name = parts[0]
		}
		if len(parts) > 1 && parts[1] != "" {
			e.Role = parts[1]
		}
		if len(parts) > 2 {
			e.Description = parts[2]
		}
	case '{':
		var obj struct {
			Name        string `json:"name"`
			Role        string `json:"role"`
			Description string `json:"description"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return fmt.Errorf("entity object: %w", err)
		}
		*e = Entity{Name: obj.Name, Role: obj.Role, Description: obj.Description}
		if e.Role == "" {
			e.Role = defaultRole
		}
	default:
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return fmt.Errorf("entity: %w", err)
		}
		*e = Entity{Name: name, Role: defaultRole}
	}
	return nil
}

// SemanticMap is what the language model extracts from a book: who is in
// it and which moments are worth illustrating.
type SemanticMap struct {
	Title    string   `json:"title,omitempty"`
	Style    string   `json:"style,omitempty"`
	Summary  string   `json:"summary"`
	Entities []Entity `json:"entities"`
	Keywords []string `json:"keywords"`
	Scenes   []string `json:"scenes"`
}

// TopEntities returns at most k entities in rank order.
func (m *SemanticMap) TopEntities(k int) []Entity {
	if k < 0 || k >= len(m.Entities) {
		return m.Entities
	}
	return m.Entities[:k]
}
