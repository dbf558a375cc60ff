// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package engine

import (
	"fmt"

	"github.com/pdiddy/article-engine/internal/worker"
)

// Stage identifies one pipeline stage.
type Stage uint8

const (
	StageResearch Stage = iota
	StageOutline
	StageDraft
	StageDepthExpand
	StageSearchCoordinate
	StageCodeEnrich
	StageIllustrate
	StageReview
	StageAssemble

	stageCount
)

var stageNames = [stageCount]string{
	StageResearch:         worker.StageResearch,
	StageOutline:          worker.StageOutline,
	StageDraft:            worker.StageDraft,
	StageDepthExpand:      worker.StageDepthExpand,
	StageSearchCoordinate: worker.StageSearchCoordinate,
	StageCodeEnrich:       worker.StageCodeEnrich,
	StageIllustrate:       worker.StageIllustrate,
	StageReview:           worker.StageReview,
	StageAssemble:         worker.StageAssemble,
}

// stagePercent is the completion estimate reported once a stage is reached.
var stagePercent = [stageCount]int{
	StageResearch:         10,
	StageOutline:          25,
	StageDraft:            45,
	StageSearchCoordinate: 54,
	StageDepthExpand:      65,
	StageCodeEnrich:       75,
	StageIllustrate:       85,
	StageReview:           92,
	StageAssemble:         98,
}

// percentOf returns the estimate for a stage name, or 0 when unknown.
func percentOf(name string) int {
	for s, n := range stageNames {
		if n == name {
			return stagePercent[s]
		}
	}
	return 0
}

func (s Stage) String() string {
	if s < stageCount {
		return stageNames[s]
	}
	return fmt.Sprintf("stage(%d)", uint8(s))
}

// chapterStage reports whether s runs per chapter.
func (s Stage) chapterStage() bool {
	return s >= StageDraft && s <= StageReview
}

// edges lists the stages each stage may hand control to. Review hands a
// finished chapter to Assemble; Assemble is terminal.
var edges = [stageCount][]Stage{
	StageResearch:         {StageOutline},
	StageOutline:          {StageDraft},
	StageDraft:            {StageDepthExpand, StageCodeEnrich},
	StageDepthExpand:      {StageDepthExpand, StageSearchCoordinate, StageCodeEnrich},
	StageSearchCoordinate: {StageDepthExpand, StageDraft, StageCodeEnrich},
	StageCodeEnrich:       {StageIllustrate},
	StageIllustrate:       {StageReview},
	StageReview:           {StageDraft, StageSearchCoordinate, StageAssemble},
	StageAssemble:         nil,
}

// transition reports an error unless the edge from -> to exists.
func transition(from, to Stage) error {
	for _, s := range edges[from] {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("no transition from %s to %s", from, to)
}

// checkCoverage verifies that every stage has a worker, every stage but
// Assemble has an outgoing edge, and every stage but Research is reachable.
func checkCoverage(workers [stageCount]worker.Worker) error {
	reached := [stageCount]bool{StageResearch: true}
	for s := Stage(0); s < stageCount; s++ {
		if workers[s] == nil {
			return fmt.Errorf("no worker for stage %s", s)
		}
		if workers[s].Name() != s.String() {
			return fmt.Errorf("worker %q registered for stage %s", workers[s].Name(), s)
		}
		if s != StageAssemble && len(edges[s]) == 0 {
			return fmt.Errorf("stage %s has no outgoing transition", s)
		}
		for _, to := range edges[s] {
			reached[to] = true
		}
	}
	for s := Stage(0); s < stageCount; s++ {
		if !reached[s] {
			return fmt.Errorf("stage %s is unreachable", s)
		}
	}
	return nil
}
