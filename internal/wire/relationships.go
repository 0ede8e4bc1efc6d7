package wire

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Relationships decodes leniently: the backend has been seen to store the edge
// list as a JSON array, as a string holding a JSON array, and as a string of
// concatenated objects. Anything unreadable decodes to an empty list rather than
// failing the surrounding body.
type Relationships []Relationship

// UnmarshalJSON never fails; see ParseRelationships
func (r *Relationships) UnmarshalJSON(data []byte) error {
	*r = ParseRelationships(data)
	return nil
}

// MarshalJSON always writes an array, never null
func (r Relationships) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Relationship(r))
}

// ParseRelationships decodes a relationships field. A JSON string is unwrapped
// once and its text decoded the same way as a raw value. Decoding accepts an
// array of objects or a sequence of objects; elements that are not objects or
// lack a characterId are dropped. When nothing usable is found the result is
// an empty, non-nil slice.
func ParseRelationships(data []byte) Relationships {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return Relationships{}
		}
		data = []byte(cleanEmbeddedJSON(text))
	}
	return decodeEdges(data)
}

// cleanEmbeddedJSON strips code fences and surrounding prose around the JSON
// value held in a string
func cleanEmbeddedJSON(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")

	start := strings.IndexAny(text, "[{")
	if start < 0 {
		return ""
	}
	closing := "}"
	if text[start] == '[' {
		closing = "]"
	}
	end := strings.LastIndex(text, closing)
	if end < start {
		return ""
	}
	return strings.TrimSpace(text[start : end+1])
}

func decodeEdges(data []byte) Relationships {
	out := Relationships{}
	if len(data) == 0 {
		return out
	}

	var elems []json.RawMessage
	switch data[0] {
	case '[':
		if err := json.Unmarshal(data, &elems); err != nil {
			return out
		}
	case '{':
		// comma separated objects without the enclosing brackets
		wrapped := append(append([]byte{'['}, data...), ']')
		if err := json.Unmarshal(wrapped, &elems); err == nil {
			break
		}
		elems = nil
		fallthrough
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		for dec.More() {
			var elem json.RawMessage
			if err := dec.Decode(&elem); err != nil {
				break
			}
			elems = append(elems, elem)
		}
	}

	for _, elem := range elems {
		var rel Relationship
		if err := json.Unmarshal(elem, &rel); err != nil {
			continue
		}
		if rel.CharacterID == "" {
			continue
		}
		out = append(out, rel)
	}
	return out
}
