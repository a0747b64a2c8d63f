package projection_test

import (
	"testing"

	"sessionsync/projection"
	"sessionsync/sdk/agent"
)

func TestViewSorting(t *testing.T) {
	s := projection.NewState("ses_primary")
	v := projection.NewView(s)

	// Inserted out of order, including a creation-time tie.
	projection.Apply(s, projection.MessageUpserted{Info: msg("msg_c", 300)})
	projection.Apply(s, projection.MessageUpserted{Info: msg("msg_b", 100)})
	projection.Apply(s, projection.MessageUpserted{Info: msg("msg_a", 100)})

	msgs := v.Messages()
	want := []string{"msg_a", "msg_b", "msg_c"}
	if len(msgs) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(msgs))
	}
	for i, id := range want {
		if msgs[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, msgs[i].ID)
		}
	}
}

func TestViewPartSorting(t *testing.T) {
	s := projection.NewState("ses_primary")
	v := projection.NewView(s)

	projection.Apply(s, projection.PartUpserted{Part: part("msg_1", "prt_2", "second")})
	projection.Apply(s, projection.PartUpserted{Part: part("msg_1", "prt_1", "first")})

	parts := v.PartsForMessage("msg_1")
	if len(parts) != 2 || parts[0].ID != "prt_1" || parts[1].ID != "prt_2" {
		t.Fatalf("parts not sorted by id: %v", parts)
	}
}

func TestViewMemoization(t *testing.T) {
	s := projection.NewState("ses_primary")
	v := projection.NewView(s)

	projection.Apply(s, projection.MessageUpserted{Info: msg("msg_1", 1)})
	projection.Apply(s, projection.PartUpserted{Part: part("msg_1", "prt_1", "x")})

	t.Run("unchanged maps return the cached slice", func(t *testing.T) {
		first := v.Messages()
		second := v.Messages()
		if &first[0] != &second[0] {
			t.Errorf("expected memoized message slice to be reused")
		}

		p1 := v.PartsForMessage("msg_1")
		p2 := v.PartsForMessage("msg_1")
		if &p1[0] != &p2[0] {
			t.Errorf("expected memoized part slice to be reused")
		}
	})

	t.Run("unrelated change does not invalidate messages", func(t *testing.T) {
		before := v.Messages()
		projection.Apply(s, projection.StatusChanged{Status: projection.Status{Kind: projection.StatusBusy}})
		projection.Apply(s, projection.TodosReplaced{Todos: []agent.Todo{{ID: "todo_1"}}})
		after := v.Messages()
		if &before[0] != &after[0] {
			t.Errorf("status/todo changes must not rebuild the message slice")
		}
	})

	t.Run("message change rebuilds", func(t *testing.T) {
		before := v.Messages()
		projection.Apply(s, projection.MessageUpserted{Info: msg("msg_2", 2)})
		after := v.Messages()
		if len(after) != 2 {
			t.Fatalf("expected rebuild with 2 messages, got %d", len(after))
		}
		if len(before) != 1 {
			t.Errorf("previously returned slice must be unaffected")
		}
	})

	t.Run("part change rebuilds parts only on next query", func(t *testing.T) {
		projection.Apply(s, projection.PartUpserted{Part: part("msg_1", "prt_2", "y")})
		parts := v.PartsForMessage("msg_1")
		if len(parts) != 2 {
			t.Errorf("expected 2 parts after invalidation, got %d", len(parts))
		}
	})
}

func TestViewUnknownIDs(t *testing.T) {
	s := projection.NewState("ses_primary")
	v := projection.NewView(s)

	if got := v.PartsForMessage("msg_none"); got != nil {
		t.Errorf("expected nil parts for unknown message, got %v", got)
	}
	if got := v.ChildMessages("ses_none"); got != nil {
		t.Errorf("expected nil messages for unknown child, got %v", got)
	}
	if st := v.ChildStatus("ses_none"); st.Kind != projection.StatusIdle {
		t.Errorf("unknown child must report idle, got %v", st.Kind)
	}
}
