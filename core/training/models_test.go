package training

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueryFilter_IsEmpty(t *testing.T) {
	tests := []struct {
		name   string
		filter QueryFilter
		want   bool
	}{
		{name: "zero value", want: true},
		{name: "no students", filter: QueryFilter{StudentIDs: []string{}}},
		{name: "student", filter: QueryFilter{StudentIDs: []string{"s1"}}},
		{name: "phase", filter: QueryFilter{PhaseID: "orientation"}},
		{name: "status", filter: QueryFilter{Status: StatusDraft}},
		{name: "form", filter: QueryFilter{FormNumber: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.IsEmpty())
		})
	}
}
