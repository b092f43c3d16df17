/*
Package core provides cancellation of running generation, chat and agent turns.

Every streaming endpoint registers its turn under the execution id it sends to the
client first. POST /api/stop looks the id up and cancels the turn's context; the
turn then stops at its next read and reports itself as stopped rather than failed.
*/
package core

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Execution kinds.
const (
	ExecutionGenerate = "generate"
	ExecutionChat     = "chat"
	ExecutionAgent    = "agent"
)

// ExecutionInfo describes a registered execution.
type ExecutionInfo struct {
	ID      string    `json:"id"`
	Kind    string    `json:"kind"`
	Owner   string    `json:"owner,omitempty"` // conversation or session id
	Started time.Time `json:"started"`
}

type execution struct {
	info   ExecutionInfo
	cancel context.CancelFunc
}

// CancelManager tracks running executions and cancels them on request.
type CancelManager struct {
	executions map[string]execution
	mutex      sync.RWMutex
}

// NewCancelManager creates an empty cancel manager.
func NewCancelManager() *CancelManager {
	return &CancelManager{
		executions: make(map[string]execution),
	}
}

// AddExecution registers cancel under info.ID.
func (cm *CancelManager) AddExecution(info ExecutionInfo, cancel context.CancelFunc) {
	if info.Started.IsZero() {
		info.Started = time.Now()
	}
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	cm.executions[info.ID] = execution{info: info, cancel: cancel}
}

// RemoveExecution forgets a finished execution.
func (cm *CancelManager) RemoveExecution(executionID string) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	delete(cm.executions, executionID)
}

// CancelExecution cancels and forgets the execution. It reports whether the
// execution was running.
func (cm *CancelManager) CancelExecution(executionID string) bool {
	cm.mutex.Lock()
	exec, exists := cm.executions[executionID]
	delete(cm.executions, executionID)
	cm.mutex.Unlock()

	if !exists {
		return false
	}
	exec.cancel()
	return true
}

// GetActiveExecutions lists running executions, oldest first.
func (cm *CancelManager) GetActiveExecutions() []ExecutionInfo {
	cm.mutex.RLock()
	executions := make([]ExecutionInfo, 0, len(cm.executions))
	for _, exec := range cm.executions {
		executions = append(executions, exec.info)
	}
	cm.mutex.RUnlock()

	sort.Slice(executions, func(i, j int) bool {
		if executions[i].Started.Equal(executions[j].Started) {
			return executions[i].ID < executions[j].ID
		}
		return executions[i].Started.Before(executions[j].Started)
	})
	return executions
}
