package agent

import (
	"bytes"
	"encoding/json"
)

// Snapshot is the normalized result of the message-list endpoint. Servers
// return it in one of two shapes: a flat array of message records (each
// optionally embedding its parts), or a grouped object
// {"messages": [{"info": ..., "parts": [...]}]}. Both decode to the same
// message list.
type Snapshot struct {
	Messages []MessageWithParts
}

// snapshotRecord accepts either an {info, parts} pair or a bare message with
// an inline parts array.
type snapshotRecord struct {
	Info  *Message `json:"info"`
	Parts []Part   `json:"parts"`
}

// UnmarshalJSON implements the dual-shape decode.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	s.Messages = nil

	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	var records []json.RawMessage
	if trimmed[0] == '{' {
		var grouped struct {
			Messages []json.RawMessage `json:"messages"`
		}
		if err := json.Unmarshal(data, &grouped); err != nil {
			return err
		}
		records = grouped.Messages
	} else {
		if err := json.Unmarshal(data, &records); err != nil {
			return err
		}
	}

	for _, raw := range records {
		var rec snapshotRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return err
		}

		if rec.Info != nil && rec.Info.ID != "" {
			s.Messages = append(s.Messages, MessageWithParts{Info: *rec.Info, Parts: rec.Parts})
			continue
		}

		// Flat record: the message fields live at the top level, with an
		// optional inline parts array alongside them.
		var flat struct {
			Message
			Parts []Part `json:"parts"`
		}
		if err := json.Unmarshal(raw, &flat); err != nil {
			return err
		}
		if flat.Message.ID == "" {
			continue
		}
		s.Messages = append(s.Messages, MessageWithParts{Info: flat.Message, Parts: flat.Parts})
	}

	return nil
}
