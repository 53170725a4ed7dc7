package orchestrator

import (
	"context"
	"fmt"

	"meetflow/internal/progress"
)

type executeStage struct {
	exec *executor
}

func (executeStage) Name() string  { return StageExecuteActions }
func (executeStage) Title() string { return "Action Executor" }

func (executeStage) Input(st State) string {
	return fmt.Sprintf("Total actions to execute: %d", len(st.Actions))
}

func (s executeStage) Run(ctx context.Context, st State, rec *Recorder) (State, error) {
	results := s.exec.Execute(ctx, st.Actions, st.AutoExecute, rec)
	if st.AutoExecute {
		rec.Add(progress.LogOutput, "Execution complete: %d successful, %d failed",
			Count(results, StatusSuccess), Count(results, StatusError))
	}
	st.Results = results
	return st, nil
}
