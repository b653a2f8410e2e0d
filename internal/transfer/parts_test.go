package transfer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlanParts(t *testing.T) {
	const mib = 1024 * 1024

	tests := []struct {
		name            string
		size            int64
		uploaded        []Part
		wantPlans       []PartPlan
		wantAlreadyDone int64
	}{
		{
			name: "exact multiple of part size",
			size: 10 * mib,
			wantPlans: []PartPlan{
				{Number: 1, Offset: 0, Size: 5 * mib},
				{Number: 2, Offset: 5 * mib, Size: 5 * mib},
			},
		},
		{
			name: "final part is the remainder",
			size: 12 * mib,
			wantPlans: []PartPlan{
				{Number: 1, Offset: 0, Size: 5 * mib},
				{Number: 2, Offset: 5 * mib, Size: 5 * mib},
				{Number: 3, Offset: 10 * mib, Size: 2 * mib},
			},
		},
		{
			name: "single part at exactly the part size",
			size: 5 * mib,
			wantPlans: []PartPlan{
				{Number: 1, Offset: 0, Size: 5 * mib},
			},
		},
		{
			name: "resume skips uploaded parts",
			size: 17 * mib,
			uploaded: []Part{
				{Number: 1, Size: 5 * mib, ETag: `"a"`},
				{Number: 2, Size: 5 * mib, ETag: `"b"`},
			},
			wantPlans: []PartPlan{
				{Number: 3, Offset: 10 * mib, Size: 5 * mib},
				{Number: 4, Offset: 15 * mib, Size: 2 * mib},
			},
			wantAlreadyDone: 10 * mib,
		},
		{
			name: "resume with a gap in uploaded parts",
			size: 16 * mib,
			uploaded: []Part{
				{Number: 1, Size: 5 * mib, ETag: `"a"`},
				{Number: 3, Size: 5 * mib, ETag: `"c"`},
			},
			wantPlans: []PartPlan{
				{Number: 2, Offset: 5 * mib, Size: 5 * mib},
				{Number: 4, Offset: 15 * mib, Size: 1 * mib},
			},
			wantAlreadyDone: 10 * mib,
		},
		{
			name: "everything already uploaded",
			size: 10 * mib,
			uploaded: []Part{
				{Number: 1, Size: 5 * mib, ETag: `"a"`},
				{Number: 2, Size: 5 * mib, ETag: `"b"`},
			},
			wantPlans:       nil,
			wantAlreadyDone: 10 * mib,
		},
		{
			name:      "zero-size file needs no parts",
			size:      0,
			wantPlans: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plans, done := PlanParts(tt.size, tt.uploaded)
			assert.Equal(t, tt.wantPlans, plans)
			assert.Equal(t, tt.wantAlreadyDone, done)
		})
	}
}

func TestFileProgressMonotonic(t *testing.T) {
	var published []int64
	fp := newFileProgress(100, func(n int64) { published = append(published, n) })

	fp.add(1, 50)
	fp.add(2, 30)
	fp.reset(2) // retry of part 2
	fp.add(2, 10)
	assert.Equal(t, []int64{150, 180}, published, "resetting a part must not regress the published total")

	fp.add(2, 30)
	assert.Equal(t, []int64{150, 180, 210}, published)
}
