package display

import "encoding/json"

// Frame is the JSON envelope an event travels in on the socket surface.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// MarshalFrame wraps an event in a type-tagged frame.
func MarshalFrame(e Event) ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Type: Kind(e), Payload: payload})
}

// UnmarshalFrame decodes a frame back into its event. Unknown types
// come back as nil with a nil error so forward-compatible clients can
// skip them.
func UnmarshalFrame(data []byte) (Event, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	var e Event
	switch f.Type {
	case "text":
		var v Text
		if err := json.Unmarshal(f.Payload, &v); err != nil {
			return nil, err
		}
		e = v
	case "header":
		var v Header
		if err := json.Unmarshal(f.Payload, &v); err != nil {
			return nil, err
		}
		e = v
	case "error":
		var v ErrorNotice
		if err := json.Unmarshal(f.Payload, &v); err != nil {
			return nil, err
		}
		e = v
	case "menu":
		var v Menu
		if err := json.Unmarshal(f.Payload, &v); err != nil {
			return nil, err
		}
		e = v
	case "dialog":
		var v Dialog
		if err := json.Unmarshal(f.Payload, &v); err != nil {
			return nil, err
		}
		e = v
	}
	return e, nil
}
