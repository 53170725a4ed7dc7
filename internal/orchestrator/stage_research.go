package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"meetflow/internal/extract"
	"meetflow/internal/llm"
	"meetflow/internal/logging"
	"meetflow/internal/progress"
)

const researchTranscriptChars = 1000

type researchStage struct {
	gen    llm.Generator
	logger logging.Logger
}

func (researchStage) Name() string  { return StageResearchEntities }
func (researchStage) Title() string { return "Research & Entity Extraction" }

func (researchStage) Input(st State) string {
	return fmt.Sprintf("Scanning the first %d characters of the transcript", researchTranscriptChars)
}

func (s researchStage) Run(ctx context.Context, st State, rec *Recorder) (State, error) {
	text, err := ask(ctx, s.gen, rec, llm.Request{
		Tag:    StageResearchEntities,
		System: researchSystemPrompt,
		User:   "Meeting transcript:\n" + truncate(st.Transcript, researchTranscriptChars) + "\n\nExtract the key entities:",
		JSON:   true,
	})
	if err != nil {
		return st, err
	}

	research, err := extract.DecodeObject(text, Research{}, func(entities []Entity) Research {
		return Research{Entities: entities}
	})
	if err != nil {
		logging.FromContext(ctx, s.logger).Warn("Research output unparseable: %v", err)
		rec.Add(progress.LogError, "Could not parse research output: %v", err)
	}
	rec.Add(progress.LogOutput, "Found %d entities and %d topics", len(research.Entities), len(research.KeyTopics))

	st.Research = research
	encoded, err := json.Marshal(research)
	if err != nil {
		return st, fmt.Errorf("encode research: %w", err)
	}
	return st.withMessage(StageResearchEntities, "Research: "+string(encoded)), nil
}
