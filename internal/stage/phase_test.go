package stage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResearchAnswered(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    bool
	}{
		{"no questions", `{"questions":[]}`, true},
		{"missing questions key", `{}`, true},
		{"all answered", `{"questions":[{"question":"q1","answer":"a1"},{"question":"q2","answer":"a2"}]}`, true},
		{"null answer", `{"questions":[{"question":"q1","answer":null}]}`, false},
		{"empty answer", `{"questions":[{"question":"q1","answer":""}]}`, false},
		{"missing answer", `{"questions":[{"question":"q1"}]}`, false},
		{"mixed", `{"questions":[{"question":"q1","answer":"a"},{"question":"q2","answer":null}]}`, false},
		{"invalid json", `{"questions":`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResearchAnswered([]byte(tt.content)))
		})
	}
}

func TestDefaultPhasesOrder(t *testing.T) {
	phases := DefaultPhases()
	var ids []string
	for _, ph := range phases {
		ids = append(ids, ph.ID)
	}
	assert.Equal(t, []string{"research", "plan", "build", "finalize"}, ids)

	assert.Equal(t, BranchRolePlanning, phases[1].BranchRole)
	assert.Equal(t, BranchRoleImplementation, phases[2].BranchRole)
	assert.Equal(t, KindFinalize, phases[3].Kind)
}
