// Package protocol implements the file contract between the orchestrator
// and agent processes: agents report completion, errors, or blocking
// questions through a status file in their working directory, and humans
// answer questions through a resume file.
package protocol

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// StatusFile is written by the agent exactly once per invocation
	StatusFile = ".workflow-status.json"
	// ResponseFile carries a human answer back to a blocked agent
	ResponseFile = ".workflow-resume.json"
)

// Status kinds an agent may report
const (
	StatusComplete = "complete"
	StatusBlocked  = "blocked"
	StatusError    = "error"
	StatusWorking  = "working"
)

// AgentStatus is the inbound message an agent writes when it finishes,
// fails, or needs human input
type AgentStatus struct {
	Status     string   `json:"status"`
	Message    string   `json:"message,omitempty"`
	Question   string   `json:"question,omitempty"`
	Options    []string `json:"options,omitempty"`
	OutputFile string   `json:"output_file,omitempty"`
}

// Final returns true for statuses that end an invocation. A "working"
// heartbeat keeps the wait loop going.
func (s *AgentStatus) Final() bool {
	switch s.Status {
	case StatusComplete, StatusBlocked, StatusError:
		return true
	}
	return false
}

// Response is the outbound message carrying a human answer
type Response struct {
	Response string `json:"response"`
}

// ReadStatus reads the status file in dir. It returns (nil, nil) when the
// file does not exist yet, and a parse error when it exists but is not
// valid JSON, which callers may treat as an in-progress write.
func ReadStatus(dir string) (*AgentStatus, error) {
	data, err := os.ReadFile(filepath.Join(dir, StatusFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var status AgentStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", StatusFile, err)
	}
	return &status, nil
}

// ArchiveStatus moves a consumed status file out of the way so a later
// invocation in the same directory can never reread it.
func ArchiveStatus(dir string) error {
	src := filepath.Join(dir, StatusFile)
	dst := src + "." + time.Now().UTC().Format("20060102T150405.000000000")
	if err := os.Rename(src, dst); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("archiving status file: %w", err)
	}
	return nil
}

// ClearStatus removes any stale status file before a fresh invocation
func ClearStatus(dir string) error {
	err := os.Remove(filepath.Join(dir, StatusFile))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// WriteResponse writes the resume file for a blocked agent. The write is
// atomic so the agent never reads a partial response.
func WriteResponse(dir, response string) error {
	data, err := json.MarshalIndent(Response{Response: response}, "", "  ")
	if err != nil {
		return err
	}

	path := filepath.Join(dir, ResponseFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing response: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("writing response: %w", err)
	}
	return nil
}

// ReadResponse reads the resume file in dir. It returns (nil, nil) when no
// response has been written.
func ReadResponse(dir string) (*Response, error) {
	data, err := os.ReadFile(filepath.Join(dir, ResponseFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parsing response file: %w", err)
	}
	return &resp, nil
}

// RemoveResponse deletes a consumed response file so a later phase cannot
// mistake it for an answer to its own question
func RemoveResponse(dir string) error {
	err := os.Remove(filepath.Join(dir, ResponseFile))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
