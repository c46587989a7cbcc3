package main

import (
	"sync"

	"github.com/spf13/cobra"
)

// structuredLogAnnotation marks commands whose output is structured logs
// rather than plain text for a person at a terminal.
const structuredLogAnnotation = "wafscan.structured-log"

type commandExecutionContext struct {
	CommandPath       string
	UsesStructuredLog bool
}

var (
	commandExecutionMu  sync.RWMutex
	commandExecutionCtx commandExecutionContext
)

func setCommandExecutionContext(ctx commandExecutionContext) {
	commandExecutionMu.Lock()
	commandExecutionCtx = ctx
	commandExecutionMu.Unlock()
}

func resetCommandExecutionContext() {
	setCommandExecutionContext(commandExecutionContext{})
}

func currentCommandExecutionContext() commandExecutionContext {
	commandExecutionMu.RLock()
	defer commandExecutionMu.RUnlock()
	return commandExecutionCtx
}

func commandUsesStructuredLogging(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[structuredLogAnnotation] == "true" {
			return true
		}
	}
	return false
}

func structuredLogging() map[string]string {
	return map[string]string{structuredLogAnnotation: "true"}
}
