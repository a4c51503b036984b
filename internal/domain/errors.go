package domain

import (
	"errors"
	"fmt"
)

// Stage names a pipeline stage for failure attribution.
type Stage string

const (
	StageConfig  Stage = "config"
	StageFetch   Stage = "fetch"
	StageDecode  Stage = "decode"
	StageJoin    Stage = "join"
	StagePersist Stage = "persist"
	StagePublish Stage = "publish"
	StageRender  Stage = "render"
)

var (
	ErrInvalidCode       = errors.New("invalid municipality code")
	ErrInvalidDate       = errors.New("invalid date")
	ErrInvalidCaseCount  = errors.New("invalid case count")
	ErrDuplicateGeometry = errors.New("duplicate geometry for municipality")
	ErrNoGeometry        = errors.New("no geometry for municipality")
	ErrIncompleteGrid    = errors.New("grid is not a complete municipality x date product")
)

// StageError attributes a fatal error to the stage that produced it.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// WrapStage returns err attributed to stage. A nil err stays nil, and an error
// that already carries a stage keeps it.
func WrapStage(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: stage, Err: err}
}

// StageOf returns the stage an error is attributed to, or "" if none.
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
