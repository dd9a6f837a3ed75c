package types

import "testing"

func TestSubtaskValidate(t *testing.T) {
	tests := []struct {
		name    string
		subtask Subtask
		wantErr bool
	}{
		{
			name:    "valid pending",
			subtask: Subtask{ID: "s1", Status: SubtaskPending, Attempts: 0},
			wantErr: false,
		},
		{
			name:    "missing id",
			subtask: Subtask{Status: SubtaskPending},
			wantErr: true,
		},
		{
			name:    "negative attempts",
			subtask: Subtask{ID: "s1", Status: SubtaskPending, Attempts: -1},
			wantErr: true,
		},
		{
			name:    "invalid status",
			subtask: Subtask{ID: "s1", Status: "bogus"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.subtask.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPlanCompletionStats(t *testing.T) {
	plan := ImplementationPlan{
		TaskName: "demo",
		Subtasks: []Subtask{
			{ID: "a", Status: SubtaskCompleted},
			{ID: "b", Status: SubtaskPending},
			{ID: "c", Status: SubtaskCompleted},
		},
	}

	completed, total := plan.CompletionStats()
	if completed != 2 || total != 3 {
		t.Fatalf("CompletionStats() = (%d, %d), want (2, 3)", completed, total)
	}
}

func TestPlanValidateDuplicateSubtask(t *testing.T) {
	plan := ImplementationPlan{
		TaskName: "demo",
		Subtasks: []Subtask{
			{ID: "a", Status: SubtaskPending},
			{ID: "a", Status: SubtaskPending},
		},
	}
	if err := plan.Validate(); err == nil {
		t.Fatal("expected error for duplicate subtask id, got nil")
	}
}

func TestFindSubtask(t *testing.T) {
	plan := ImplementationPlan{
		Subtasks: []Subtask{{ID: "a"}, {ID: "b"}},
	}
	if got := plan.FindSubtask("b"); got == nil || got.ID != "b" {
		t.Fatalf("FindSubtask(b) = %v, want subtask b", got)
	}
	if got := plan.FindSubtask("missing"); got != nil {
		t.Fatalf("FindSubtask(missing) = %v, want nil", got)
	}
}

func TestAgentTypeReadOnly(t *testing.T) {
	tests := []struct {
		agent    AgentType
		readOnly bool
	}{
		{AgentInitializer, false},
		{AgentCoder, false},
		{AgentReviewer, true},
		{AgentQA, true},
	}
	for _, tt := range tests {
		if got := tt.agent.ReadOnly(); got != tt.readOnly {
			t.Errorf("%s.ReadOnly() = %v, want %v", tt.agent, got, tt.readOnly)
		}
	}
}

func TestMemoryKindSection(t *testing.T) {
	tests := []struct {
		kind MemoryKind
		want string
	}{
		{MemoryPattern, "Patterns"},
		{MemoryDecision, "Decisions"},
		{MemoryFix, "Fixes"},
	}
	for _, tt := range tests {
		if got := tt.kind.Section(); got != tt.want {
			t.Errorf("%s.Section() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}
