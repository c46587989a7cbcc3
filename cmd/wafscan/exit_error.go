package main

import (
	"context"
	"errors"
	"fmt"
)

const (
	exitCodeFailure     = 1
	exitCodeRegressions = 2
	exitCodeCanceled    = 130
)

type exitError struct {
	code   int
	err    error
	silent bool
}

func (e *exitError) Error() string {
	if e == nil {
		return ""
	}
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("exit %d", e.code)
}

func (e *exitError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// commandError maps a command failure onto an exit code, keeping
// cancellation quiet. Errors that already carry an exit code pass through.
func commandError(err error) error {
	if err == nil {
		return nil
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return &exitError{code: exitCodeCanceled, err: err, silent: true}
	}
	return &exitError{code: exitCodeFailure, err: err}
}
