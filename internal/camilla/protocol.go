package camilla

import (
	"encoding/json"
	"fmt"
)

// Engine commands used by this control plane. The wire protocol is one
// single-key JSON object per frame: `{"Name": params}` for parameterized
// commands, or the bare string `"Name"` otherwise. Replies mirror the shape:
// `{"Name": {"result": "Ok"|code, "value": v}}`.
const (
	cmdGetState       = "GetState"
	cmdGetVersion     = "GetVersion"
	cmdGetCaptureRate = "GetCaptureRate"
	cmdGetConfigJSON  = "GetConfigJson"
	cmdSetConfig      = "SetConfig"
	cmdReload         = "Reload"
	cmdStop           = "Stop"
)

const resultOk = "Ok"

func encodeCommand(name string, params any) ([]byte, error) {
	if params == nil {
		return json.Marshal(name)
	}
	return json.Marshal(map[string]any{name: params})
}

type replyBody struct {
	Result string          `json:"result"`
	Value  json.RawMessage `json:"value"`
}

// decodeReply extracts the command name and body from an inbound frame. The
// single top-level key is the name; multi-key frames are malformed.
func decodeReply(frame []byte) (string, replyBody, error) {
	var envelope map[string]replyBody
	if err := json.Unmarshal(frame, &envelope); err != nil {
		return "", replyBody{}, fmt.Errorf("decoding reply frame: %w", err)
	}
	if len(envelope) != 1 {
		return "", replyBody{}, fmt.Errorf("reply frame has %d top-level keys, want 1", len(envelope))
	}
	for name, body := range envelope {
		return name, body, nil
	}
	return "", replyBody{}, fmt.Errorf("empty reply frame")
}
