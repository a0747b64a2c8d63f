package projection

import "sessionsync/sdk/agent"

// Apply folds one action into the state. It is total (every action variant
// is handled, unknown ones are ignored) and idempotent for repeated delivery
// of the same upsert or remove. Apply never performs I/O and never blocks;
// callers are responsible for serializing invocations (the Syncer funnels
// every dispatch through one goroutine).
func Apply(s *State, action Action) {
	switch a := action.(type) {
	case Init:
		for _, mp := range a.Messages {
			s.upsertMessage(mp.Info)
			for _, p := range mp.Parts {
				s.upsertPart(p)
			}
		}

	case MessageUpserted:
		s.upsertMessage(a.Info)

	case MessageRemoved:
		if _, ok := s.Messages[a.MessageID]; ok {
			delete(s.Messages, a.MessageID)
			s.messagesRev++
		}
		if _, ok := s.Parts[a.MessageID]; ok {
			delete(s.Parts, a.MessageID)
			s.partsRev++
		}

	case PartUpserted:
		s.upsertPart(a.Part)

	case PartRemoved:
		if byID, ok := s.Parts[a.MessageID]; ok {
			if _, ok := byID[a.PartID]; ok {
				delete(byID, a.PartID)
				s.partsRev++
			}
		}

	case StatusChanged:
		s.Status = a.Status
		if a.Status.Kind == StatusBusy {
			// A working agent implies a live stream; stale transport errors
			// would otherwise linger in the UI.
			s.StreamError = ""
		}

	case PermissionAsked:
		for i, p := range s.Permissions {
			if p.ID == a.Request.ID {
				s.Permissions[i] = a.Request
				return
			}
		}
		s.Permissions = append(s.Permissions, a.Request)

	case PermissionResolved:
		for i, p := range s.Permissions {
			if p.ID == a.ID {
				s.Permissions = append(s.Permissions[:i], s.Permissions[i+1:]...)
				return
			}
		}

	case QuestionAsked:
		for i, q := range s.Questions {
			if q.ID == a.Request.ID {
				s.Questions[i] = a.Request
				return
			}
		}
		s.Questions = append(s.Questions, a.Request)

	case QuestionResolved:
		for i, q := range s.Questions {
			if q.ID == a.ID {
				s.Questions = append(s.Questions[:i], s.Questions[i+1:]...)
				return
			}
		}

	case TodosReplaced:
		s.Todos = a.Todos

	case SessionUpdated:
		s.Revert = a.Revert

	case SessionFailed:
		s.SessionError = a.Err
		s.Status = Status{Kind: StatusIdle}

	case Connected:
		s.Connected = true
		s.StreamError = ""
		s.Terminal = false

	case Disconnected:
		s.Connected = false
		s.StreamError = a.Reason
		s.Terminal = a.Terminal

	case Cleared:
		// Revision counters survive the reset so caches built against the
		// old maps can never collide with post-clear revisions.
		msgRev, partRev := s.messagesRev, s.partsRev
		*s = *NewState(s.SessionID)
		s.messagesRev = msgRev + 1
		s.partsRev = partRev + 1

	case ChildMessageUpserted:
		c := s.child(a.ChildID)
		c.Messages[a.Info.ID] = a.Info
		c.messagesRev++

	case ChildMessageRemoved:
		c := s.child(a.ChildID)
		if _, ok := c.Messages[a.MessageID]; ok {
			delete(c.Messages, a.MessageID)
			c.messagesRev++
		}
		if _, ok := c.Parts[a.MessageID]; ok {
			delete(c.Parts, a.MessageID)
			c.partsRev++
		}

	case ChildPartUpserted:
		c := s.child(a.ChildID)
		byID, ok := c.Parts[a.Part.MessageID]
		if !ok {
			byID = make(map[string]agent.Part)
			c.Parts[a.Part.MessageID] = byID
		}
		byID[a.Part.ID] = a.Part
		c.partsRev++

	case ChildPartRemoved:
		c := s.child(a.ChildID)
		if byID, ok := c.Parts[a.MessageID]; ok {
			if _, ok := byID[a.PartID]; ok {
				delete(byID, a.PartID)
				c.partsRev++
			}
		}

	case ChildStatusChanged:
		s.child(a.ChildID).Status = a.Status
	}
}

func (s *State) upsertMessage(m agent.Message) {
	if m.ID == "" {
		return
	}
	s.Messages[m.ID] = m
	s.messagesRev++
}

// upsertPart stores a part regardless of whether its owning message has
// arrived yet; parts are never dropped because of arrival order.
func (s *State) upsertPart(p agent.Part) {
	if p.ID == "" || p.MessageID == "" {
		return
	}
	byID, ok := s.Parts[p.MessageID]
	if !ok {
		byID = make(map[string]agent.Part)
		s.Parts[p.MessageID] = byID
	}
	byID[p.ID] = p
	s.partsRev++
}
