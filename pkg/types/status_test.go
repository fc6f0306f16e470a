// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveStatus(t *testing.T) {
	ok := func(s Stage) StageResult { return StageResult{Stage: s, Outcome: OutcomeOK} }
	fail := func(s Stage) StageResult {
		return StageResult{Stage: s, Outcome: OutcomeFailed, Kind: FailureRemote, Message: "boom"}
	}

	tests := []struct {
		name    string
		results []StageResult
		want    PaperStatus
	}{
		{
			name:    "no stages ran",
			results: nil,
			want:    StatusFailedBeforeContent,
		},
		{
			name:    "stopped after tags",
			results: []StageResult{ok(StageAbstract), ok(StageTitle), fail(StageTags)},
			want:    StatusFailedBeforeContent,
		},
		{
			name: "content missing",
			results: []StageResult{
				ok(StageAbstract), ok(StageTitle), ok(StageTags), fail(StageContent),
				{Stage: StageTranslation, Outcome: OutcomeSkipped},
			},
			want: StatusPartial,
		},
		{
			name: "translation failed after content",
			results: []StageResult{
				ok(StageAbstract), ok(StageTitle), ok(StageTags),
				{Stage: StageContent, Outcome: OutcomeCached}, fail(StageTranslation),
			},
			want: StatusPartial,
		},
		{
			name: "everything succeeded",
			results: []StageResult{
				ok(StageAbstract), {Stage: StageTitle, Outcome: OutcomeCached}, ok(StageTags),
				ok(StageContent), ok(StageTranslation), ok(StageFigures),
			},
			want: StatusComplete,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveStatus(tt.results))
		})
	}
}

func TestTagsFlatten(t *testing.T) {
	tags := Tags{
		Domain:  []string{"NLP"},
		Method:  []string{"RLHF", "DPO"},
		Task:    []string{"alignment"},
		Dataset: nil,
	}
	assert.Equal(t, []string{"NLP", "RLHF", "DPO", "alignment"}, tags.Flatten())
	assert.Empty(t, EmptyTags().Flatten())
	assert.NotNil(t, EmptyTags().Dataset)
}

func TestPaperDisplayFallbacks(t *testing.T) {
	p := Paper{Title: "Attention", Abstract: "We study attention."}
	assert.Equal(t, "Attention", p.DisplayTitle())
	assert.Equal(t, "We study attention.", p.DisplayAbstract())

	p.TitleZH = "注意力"
	p.AbstractZH = "我們研究注意力。"
	assert.Equal(t, "注意力", p.DisplayTitle())
	assert.Equal(t, "我們研究注意力。", p.DisplayAbstract())
}
