// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Stage names one step of per-paper processing.
type Stage string

const (
	StageAbstract    Stage = "abstract"
	StageTitle       Stage = "title"
	StageTags        Stage = "tags"
	StageContent     Stage = "content"
	StageTranslation Stage = "translation"
	StageFigures     Stage = "figures"
)

// Outcome is the result tag of a stage.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeCached  Outcome = "cached"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// FailureKind classifies why a stage failed.
type FailureKind string

const (
	FailureNone        FailureKind = ""
	FailureRemote      FailureKind = "remote"
	FailureMalformed   FailureKind = "malformed"
	FailureGeometry    FailureKind = "geometry"
	FailureIO          FailureKind = "io"
	FailureUnavailable FailureKind = "unavailable"
	FailureInternal    FailureKind = "internal"
)

// StageResult records the outcome of one stage for one paper.
type StageResult struct {
	Stage   Stage       `json:"stage" yaml:"stage"`
	Outcome Outcome     `json:"outcome" yaml:"outcome"`
	Kind    FailureKind `json:"kind,omitempty" yaml:"kind,omitempty"`
	Message string      `json:"message,omitempty" yaml:"message,omitempty"`
}

// Succeeded reports whether the stage produced its artifact.
func (r StageResult) Succeeded() bool {
	return r.Outcome == OutcomeOK || r.Outcome == OutcomeCached
}

// PaperStatus summarizes a paper's stage results.
type PaperStatus string

const (
	// StatusComplete means every stage succeeded.
	StatusComplete PaperStatus = "complete"

	// StatusPartial means the content stage ran but at least one stage failed.
	StatusPartial PaperStatus = "partial"

	// StatusFailedBeforeContent means processing stopped before the content stage.
	StatusFailedBeforeContent PaperStatus = "failed-before-content"
)

// DeriveStatus folds stage results into a PaperStatus.
func DeriveStatus(results []StageResult) PaperStatus {
	reachedContent := false
	failed := false
	for _, r := range results {
		if r.Stage == StageContent {
			reachedContent = true
		}
		if r.Outcome == OutcomeFailed {
			failed = true
		}
	}
	switch {
	case !reachedContent:
		return StatusFailedBeforeContent
	case failed:
		return StatusPartial
	default:
		return StatusComplete
	}
}

// PaperReport is one paper's entry in a RunReport.
type PaperReport struct {
	ArxivID string        `json:"arxiv_id" yaml:"arxiv_id"`
	Status  PaperStatus   `json:"status" yaml:"status"`
	Source  SourceKind    `json:"source,omitempty" yaml:"source,omitempty"`
	Stages  []StageResult `json:"stages" yaml:"stages"`
}

// RunReport describes one pipeline run.
type RunReport struct {
	RunID      string        `json:"run_id" yaml:"run_id"`
	Date       string        `json:"date" yaml:"date"`
	StartedAt  time.Time     `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time     `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
	Papers     []PaperReport `json:"papers" yaml:"papers"`
}

// Counts returns the number of papers per status.
func (r RunReport) Counts() map[PaperStatus]int {
	counts := make(map[PaperStatus]int)
	for _, p := range r.Papers {
		counts[p.Status]++
	}
	return counts
}
