package wizard

import (
	"fmt"
	"strings"
)

// Stage is a position in the wizard. Stages are strictly ordered and only
// explicit back or cancel operations move to a lower one.
type Stage int

const (
	StageCapture Stage = iota + 1
	StageDescribe
	StageClassify
	StageConfirm
	StageDone
)

var stageNames = map[Stage]string{
	StageCapture:  "capture",
	StageDescribe: "describe",
	StageClassify: "classify",
	StageConfirm:  "confirm",
	StageDone:     "done",
}

func (s Stage) String() string {
	if n, ok := stageNames[s]; ok {
		return n
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// MarshalText encodes the stage by name
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts a stage name
func (s *Stage) UnmarshalText(b []byte) error {
	name := strings.ToLower(string(b))
	for st, n := range stageNames {
		if n == name {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown stage %q", string(b))
}

// Phase refines a stage while an asynchronous step is running
type Phase string

const (
	PhaseIdle       Phase = ""
	PhaseAnalyzing  Phase = "analyzing"
	PhaseReady      Phase = "ready"
	PhaseSubmitting Phase = "submitting"
)
