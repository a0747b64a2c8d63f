package agent_test

import (
	"encoding/json"
	"testing"

	"sessionsync/sdk/agent"
)

func TestSnapshotUnmarshal(t *testing.T) {
	t.Run("grouped shape", func(t *testing.T) {
		data := []byte(`{
			"messages": [
				{
					"info": {"id": "msg_1", "sessionID": "ses_1", "role": "user", "time": {"created": 100}},
					"parts": [{"id": "prt_1", "messageID": "msg_1", "sessionID": "ses_1", "type": "text", "text": "hi"}]
				},
				{
					"info": {"id": "msg_2", "sessionID": "ses_1", "role": "assistant", "time": {"created": 200}}
				}
			]
		}`)

		var s agent.Snapshot
		if err := json.Unmarshal(data, &s); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		if len(s.Messages) != 2 {
			t.Fatalf("expected 2 messages, got %d", len(s.Messages))
		}
		if s.Messages[0].Info.ID != "msg_1" || len(s.Messages[0].Parts) != 1 {
			t.Errorf("first record not preserved: %+v", s.Messages[0])
		}
		if s.Messages[1].Info.Role != "assistant" || len(s.Messages[1].Parts) != 0 {
			t.Errorf("second record not preserved: %+v", s.Messages[1])
		}
	})

	t.Run("flat shape with inline parts", func(t *testing.T) {
		data := []byte(`[
			{
				"id": "msg_1", "sessionID": "ses_1", "role": "user", "time": {"created": 100},
				"parts": [{"id": "prt_1", "messageID": "msg_1", "sessionID": "ses_1", "type": "text", "text": "hi"}]
			},
			{"id": "msg_2", "sessionID": "ses_1", "role": "assistant", "time": {"created": 200}}
		]`)

		var s agent.Snapshot
		if err := json.Unmarshal(data, &s); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		if len(s.Messages) != 2 {
			t.Fatalf("expected 2 messages, got %d", len(s.Messages))
		}
		if s.Messages[0].Info.ID != "msg_1" {
			t.Errorf("message fields not lifted from the top level: %+v", s.Messages[0].Info)
		}
		if len(s.Messages[0].Parts) != 1 || s.Messages[0].Parts[0].Text != "hi" {
			t.Errorf("inline parts lost: %+v", s.Messages[0].Parts)
		}
	})

	t.Run("flat and grouped decode identically", func(t *testing.T) {
		grouped := []byte(`{"messages": [{"info": {"id": "msg_1", "sessionID": "ses_1", "role": "user", "time": {"created": 100}}}]}`)
		flat := []byte(`[{"id": "msg_1", "sessionID": "ses_1", "role": "user", "time": {"created": 100}}]`)

		var a, b agent.Snapshot
		if err := json.Unmarshal(grouped, &a); err != nil {
			t.Fatalf("grouped: %v", err)
		}
		if err := json.Unmarshal(flat, &b); err != nil {
			t.Fatalf("flat: %v", err)
		}
		if len(a.Messages) != 1 || len(b.Messages) != 1 {
			t.Fatalf("expected one message from each shape")
		}
		if a.Messages[0].Info != b.Messages[0].Info {
			t.Errorf("shapes disagree: %+v vs %+v", a.Messages[0].Info, b.Messages[0].Info)
		}
	})

	t.Run("null and empty", func(t *testing.T) {
		for _, data := range []string{`null`, `[]`, `{"messages": []}`, `{}`} {
			var s agent.Snapshot
			if err := json.Unmarshal([]byte(data), &s); err != nil {
				t.Errorf("Unmarshal(%s) error = %v", data, err)
			}
			if len(s.Messages) != 0 {
				t.Errorf("Unmarshal(%s) produced %d messages", data, len(s.Messages))
			}
		}
	})

	t.Run("records without an id are skipped", func(t *testing.T) {
		data := []byte(`[
			{"sessionID": "ses_1", "role": "user"},
			{"id": "msg_1", "sessionID": "ses_1", "role": "user", "time": {"created": 100}}
		]`)

		var s agent.Snapshot
		if err := json.Unmarshal(data, &s); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		if len(s.Messages) != 1 || s.Messages[0].Info.ID != "msg_1" {
			t.Errorf("expected the id-less record to be dropped, got %+v", s.Messages)
		}
	})

	t.Run("unknown part types survive", func(t *testing.T) {
		data := []byte(`{"messages": [{
			"info": {"id": "msg_1", "sessionID": "ses_1", "role": "assistant", "time": {"created": 100}},
			"parts": [{"id": "prt_1", "messageID": "msg_1", "sessionID": "ses_1", "type": "hologram"}]
		}]}`)

		var s agent.Snapshot
		if err := json.Unmarshal(data, &s); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		if len(s.Messages[0].Parts) != 1 || s.Messages[0].Parts[0].Type != "hologram" {
			t.Errorf("unknown part type not retained: %+v", s.Messages[0].Parts)
		}
	})
}
