package sender

import (
	"errors"
	"fmt"
	"syscall"
)

// Stage names the step of the send loop that failed.
type Stage string

const (
	StageQueue Stage = "queue"
	StageSeal  Stage = "seal"
	StageWrite Stage = "write"
)

// code is reported by TerminatedError.Code when the cause carries no errno.
func (s Stage) code() int {
	switch s {
	case StageQueue:
		return -1
	case StageSeal:
		return -2
	default:
		return -3
	}
}

// TerminatedError is handed to the termination handler when the send loop
// stops on its own.
type TerminatedError struct {
	Stage Stage
	Err   error
}

func (e *TerminatedError) Error() string {
	return fmt.Sprintf("input stream terminated during %s: %v", e.Stage, e.Err)
}

func (e *TerminatedError) Unwrap() error {
	return e.Err
}

// Code returns the OS error number behind the failure, or a negative value
// identifying the stage when there is none.
func (e *TerminatedError) Code() int {
	var errno syscall.Errno
	if errors.As(e.Err, &errno) {
		return int(errno)
	}
	return e.Stage.code()
}

// IsTerminated reports whether err is a send loop termination.
func IsTerminated(err error) bool {
	var te *TerminatedError
	return errors.As(err, &te)
}
