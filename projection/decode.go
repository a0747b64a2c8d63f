package projection

import (
	"encoding/json"

	"github.com/tidwall/gjson"

	"sessionsync/sdk/agent"
)

// routing is the frame-level metadata used to dispatch an event to either
// the primary projection or a child projection. The confirmed contract is
// just {sessionID, isParent}; anything else on the frame is ignored.
type routing struct {
	sessionID string
	isParent  bool
}

// routingFor peeks at the raw properties without committing to a payload
// decode. Payloads carry the session id either at the top level or inside
// their info/part object, depending on the event family.
func routingFor(props json.RawMessage) routing {
	if len(props) == 0 {
		return routing{}
	}
	r := routing{
		isParent: gjson.GetBytes(props, "isParent").Bool(),
	}
	for _, path := range []string{"sessionID", "info.sessionID", "part.sessionID"} {
		if v := gjson.GetBytes(props, path); v.Exists() {
			r.sessionID = v.String()
			break
		}
	}
	return r
}

// childID returns the child session id an event is routed to, or "" for
// primary-scoped events. Absent metadata, an explicit parent mark, or
// metadata naming the primary session all mean primary.
func (r routing) childID(primaryID string) string {
	if r.isParent || r.sessionID == "" || r.sessionID == primaryID {
		return ""
	}
	return r.sessionID
}

// Decode turns one raw stream envelope into an action. The second return is
// false when the frame should be dropped: unknown event type, malformed
// payload, or a child-routed event with no child-scoped equivalent. Decode
// never fails loudly; one bad frame must not cost the stream.
func Decode(primaryID string, ev *agent.Event) (Action, bool) {
	if ev == nil || ev.Type == "" {
		return nil, false
	}

	child := routingFor(ev.Properties).childID(primaryID)

	switch ev.Type {
	case agent.EventMessageUpdated:
		var p agent.MessageEvent
		if err := json.Unmarshal(ev.Properties, &p); err != nil || p.Info.ID == "" {
			return nil, false
		}
		if child != "" {
			return ChildMessageUpserted{ChildID: child, Info: p.Info}, true
		}
		return MessageUpserted{Info: p.Info}, true

	case agent.EventMessageRemoved:
		var p agent.MessageRemovedEvent
		if err := json.Unmarshal(ev.Properties, &p); err != nil || p.MessageID == "" {
			return nil, false
		}
		if child != "" {
			return ChildMessageRemoved{ChildID: child, MessageID: p.MessageID}, true
		}
		return MessageRemoved{MessageID: p.MessageID}, true

	case agent.EventMessagePartUpdated:
		var p agent.PartEvent
		if err := json.Unmarshal(ev.Properties, &p); err != nil || p.Part.ID == "" || p.Part.MessageID == "" {
			return nil, false
		}
		if child != "" {
			return ChildPartUpserted{ChildID: child, Part: p.Part}, true
		}
		return PartUpserted{Part: p.Part}, true

	case agent.EventMessagePartRemoved:
		var p agent.PartRemovedEvent
		if err := json.Unmarshal(ev.Properties, &p); err != nil || p.MessageID == "" || p.PartID == "" {
			return nil, false
		}
		if child != "" {
			return ChildPartRemoved{ChildID: child, MessageID: p.MessageID, PartID: p.PartID}, true
		}
		return PartRemoved{MessageID: p.MessageID, PartID: p.PartID}, true

	case agent.EventSessionStatus:
		var p agent.StatusEvent
		if err := json.Unmarshal(ev.Properties, &p); err != nil {
			return nil, false
		}
		st := statusFromWire(p.Status)
		if child != "" {
			return ChildStatusChanged{ChildID: child, Status: st}, true
		}
		return StatusChanged{Status: st}, true

	case agent.EventSessionIdle:
		if child != "" {
			return ChildStatusChanged{ChildID: child, Status: Status{Kind: StatusIdle}}, true
		}
		return StatusChanged{Status: Status{Kind: StatusIdle}}, true

	case agent.EventPermissionAsked:
		if child != "" {
			return nil, false
		}
		var p agent.PermissionRequest
		if err := json.Unmarshal(ev.Properties, &p); err != nil || p.ID == "" {
			return nil, false
		}
		return PermissionAsked{Request: p}, true

	case agent.EventPermissionReplied:
		if child != "" {
			return nil, false
		}
		var p agent.PermissionRepliedEvent
		if err := json.Unmarshal(ev.Properties, &p); err != nil || p.PermissionID == "" {
			return nil, false
		}
		return PermissionResolved{ID: p.PermissionID}, true

	case agent.EventQuestionAsked:
		if child != "" {
			return nil, false
		}
		var p agent.QuestionRequest
		if err := json.Unmarshal(ev.Properties, &p); err != nil || p.ID == "" {
			return nil, false
		}
		return QuestionAsked{Request: p}, true

	case agent.EventQuestionReplied:
		if child != "" {
			return nil, false
		}
		var p agent.QuestionRepliedEvent
		if err := json.Unmarshal(ev.Properties, &p); err != nil || p.QuestionID == "" {
			return nil, false
		}
		return QuestionResolved{ID: p.QuestionID}, true

	case agent.EventQuestionRejected:
		if child != "" {
			return nil, false
		}
		var p agent.QuestionRejectedEvent
		if err := json.Unmarshal(ev.Properties, &p); err != nil || p.QuestionID == "" {
			return nil, false
		}
		return QuestionResolved{ID: p.QuestionID}, true

	case agent.EventTodoUpdated:
		if child != "" {
			return nil, false
		}
		var p agent.TodoEvent
		if err := json.Unmarshal(ev.Properties, &p); err != nil {
			return nil, false
		}
		return TodosReplaced{Todos: p.Todos}, true

	case agent.EventSessionError:
		if child != "" {
			return nil, false
		}
		var p agent.SessionErrorEvent
		if err := json.Unmarshal(ev.Properties, &p); err != nil {
			return nil, false
		}
		err := p.Error
		if err == nil {
			err = &agent.MessageError{Name: "UnknownError"}
		}
		return SessionFailed{Err: err}, true

	case agent.EventSessionUpdated:
		if child != "" {
			return nil, false
		}
		var p agent.SessionEvent
		if err := json.Unmarshal(ev.Properties, &p); err != nil || p.Info.ID == "" {
			return nil, false
		}
		return SessionUpdated{Revert: p.Info.Revert}, true
	}

	return nil, false
}
