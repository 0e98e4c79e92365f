package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const responseSchemaJSON = `{
  "type": "object",
  "required": ["action"],
  "properties": {
    "action": {"enum": ["attack", "rest", "replicate", "move", "die"]},
    "target": {"enum": ["north", "south", "east", "west", "north_east", "north_west", "south_east", "south_west"]}
  },
  "allOf": [
    {
      "if": {"properties": {"action": {"enum": ["attack", "move"]}}},
      "then": {"required": ["target"]}
    }
  ]
}`

var responseSchema = jsonschema.MustCompileString("response.schema.json", responseSchemaJSON)

// DecodeResponse parses one response line. memory is nil when the agent did not send one,
// in which case the caller keeps the prior memory. Any error wraps ErrProtocol.
func DecodeResponse(line []byte) (act Action, memory json.RawMessage, err error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Rest, nil, fmt.Errorf("%w: empty line", ErrProtocol)
	}
	var doc any
	if err := json.Unmarshal(line, &doc); err != nil {
		return Rest, nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if err := responseSchema.Validate(doc); err != nil {
		return Rest, nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}

	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return Rest, nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	kind, ok := parseActionKind(resp.Action)
	if !ok {
		return Rest, nil, fmt.Errorf("%w: unknown action %q", ErrProtocol, resp.Action)
	}
	act = Action{Kind: kind}
	if kind.NeedsTarget() {
		d, ok := ParseDirection(resp.Target)
		if !ok {
			return Rest, nil, fmt.Errorf("%w: bad target %q", ErrProtocol, resp.Target)
		}
		act.Dir = d
	}
	if len(resp.Memory) > 0 {
		memory = resp.Memory
	}
	return act, memory, nil
}

// EncodeLine marshals v as a single newline-terminated JSON line.
func EncodeLine(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}
