package chat

import (
	"errors"
	"fmt"
)

// Stage names a step of the per-question pipeline.
type Stage string

const (
	StageSchema    Stage = "schema"
	StageGenerate  Stage = "generate"
	StagePolicy    Stage = "policy"
	StageExecute   Stage = "execute"
	StageSummarize Stage = "summarize"
)

var (
	ErrEmptyQuestion   = errors.New("question is required")
	ErrSessionNotFound = errors.New("session not found")
	ErrUnknownDataset  = errors.New("unknown dataset")
)

// TurnError aborts a turn. Nothing is appended to the transcript when a turn
// fails.
type TurnError struct {
	Stage Stage
	SQL   string
	Err   error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *TurnError) Unwrap() error {
	return e.Err
}
