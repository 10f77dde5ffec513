package runner

import (
	"bytes"

	"github.com/goccy/go-json"
)

// Reply is the parsed output of one invocation. Structured reports whether
// stdout was a JSON object; otherwise Text is the raw stdout and Metadata is
// {"content": stdout}.
type Reply struct {
	Text       string
	SessionID  string
	Metadata   json.RawMessage
	Structured bool
}

// ParseReply interprets collaborator stdout. The text comes from the
// "result" field, else "content", else the raw output.
func ParseReply(stdout []byte) *Reply {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(stdout, &fields); err != nil || fields == nil {
		return fallbackReply(stdout)
	}

	reply := &Reply{
		Text:       string(stdout),
		Metadata:   json.RawMessage(append([]byte(nil), bytes.TrimSpace(stdout)...)),
		Structured: true,
	}
	for _, key := range []string{"result", "content"} {
		if raw, ok := fields[key]; ok {
			reply.Text = fieldText(raw)
			break
		}
	}
	if raw, ok := fields["session_id"]; ok {
		var id string
		if json.Unmarshal(raw, &id) == nil {
			reply.SessionID = id
		}
	}
	return reply
}

// fieldText returns a JSON string's value, or the JSON text of anything else.
func fieldText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	if string(raw) == "null" {
		return ""
	}
	return string(raw)
}

func fallbackReply(stdout []byte) *Reply {
	text := string(stdout)
	meta, _ := json.Marshal(map[string]string{"content": text})
	return &Reply{Text: text, Metadata: meta}
}
