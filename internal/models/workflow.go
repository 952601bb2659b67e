package models

import (
	"errors"
	"fmt"
	"time"
)

// NodeType identifies what kind of work a workflow node performs.
type NodeType string

const (
	// NodeTrigger marks the entry point of a workflow; structural only.
	NodeTrigger NodeType = "trigger"
	// NodeAIProcessing marks a node backed by a model call with local fallbacks.
	NodeAIProcessing NodeType = "ai-processing"
	// NodeDataTransformation marks a node that reshapes or normalizes data.
	NodeDataTransformation NodeType = "data-transformation"
	// NodeValidation marks a node that checks data before it flows on.
	NodeValidation NodeType = "validation"
	// NodeAnalysis marks a node that derives scores or trends.
	NodeAnalysis NodeType = "analysis"
	// NodeOutput marks the exit point of a workflow; structural only.
	NodeOutput NodeType = "output"
)

// IsValidNodeType checks if the given node type is supported.
func IsValidNodeType(t NodeType) bool {
	switch t {
	case NodeTrigger, NodeAIProcessing, NodeDataTransformation, NodeValidation, NodeAnalysis, NodeOutput:
		return true
	default:
		return false
	}
}

// EventPhase is the lifecycle phase a workflow event reports.
type EventPhase string

const (
	// PhaseStarted is emitted exactly once when an invocation begins.
	PhaseStarted EventPhase = "started"
	// PhaseProcessing is emitted once per node, in declaration order.
	PhaseProcessing EventPhase = "processing"
	// PhaseCompleted is emitted exactly once when every node succeeded.
	PhaseCompleted EventPhase = "completed"
	// PhaseError is emitted exactly once when a node failed; the invocation ends there.
	PhaseError EventPhase = "error"
)

// Workflow definition validation errors
var (
	ErrEmptyWorkflowID   = errors.New("workflow id cannot be empty")
	ErrNoWorkflowNodes   = errors.New("workflow must declare at least one node")
	ErrDuplicateNodeID   = errors.New("duplicate node id")
	ErrInvalidNodeType   = errors.New("invalid node type")
	ErrUnknownConnection = errors.New("connection references undeclared node")
)

// WorkflowNode is one typed step of a workflow definition.
type WorkflowNode struct {
	ID   string   `json:"id" yaml:"id"`
	Type NodeType `json:"type" yaml:"type"`
	Name string   `json:"name" yaml:"name"`
}

// NodeConnection is a directed edge between two declared nodes.
type NodeConnection struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
}

// WorkflowDefinition is the static description of a workflow. Definitions are
// loaded once at process start and never mutated afterwards.
type WorkflowDefinition struct {
	ID          string           `json:"id" yaml:"id"`
	Name        string           `json:"name" yaml:"name"`
	Description string           `json:"description,omitempty" yaml:"description,omitempty"`
	Nodes       []WorkflowNode   `json:"nodes" yaml:"nodes"`
	Connections []NodeConnection `json:"connections,omitempty" yaml:"connections,omitempty"`
}

// Validate checks structural integrity of a workflow definition.
func (d *WorkflowDefinition) Validate() error {
	if d.ID == "" {
		return ErrEmptyWorkflowID
	}
	if len(d.Nodes) == 0 {
		return fmt.Errorf("workflow %s: %w", d.ID, ErrNoWorkflowNodes)
	}

	seen := make(map[string]bool, len(d.Nodes))
	for _, n := range d.Nodes {
		if n.ID == "" {
			return fmt.Errorf("workflow %s: node id cannot be empty", d.ID)
		}
		if seen[n.ID] {
			return fmt.Errorf("workflow %s, node %s: %w", d.ID, n.ID, ErrDuplicateNodeID)
		}
		seen[n.ID] = true
		if !IsValidNodeType(n.Type) {
			return fmt.Errorf("workflow %s, node %s (%q): %w", d.ID, n.ID, n.Type, ErrInvalidNodeType)
		}
	}

	for _, c := range d.Connections {
		if !seen[c.From] || !seen[c.To] {
			return fmt.Errorf("workflow %s, connection %s->%s: %w", d.ID, c.From, c.To, ErrUnknownConnection)
		}
	}
	return nil
}

// WorkflowEvent is published on the event bus as an invocation moves through
// its nodes. For one invocation the phase sequence is always: started, one
// processing per node in order, then exactly one of completed or error.
type WorkflowEvent struct {
	WorkflowID   string     `json:"workflow_id"`
	InvocationID string     `json:"invocation_id"`
	NodeID       string     `json:"node_id,omitempty"`
	NodeType     NodeType   `json:"node_type,omitempty"`
	Phase        EventPhase `json:"phase"`
	Message      string     `json:"message,omitempty"`
	Timestamp    time.Time  `json:"timestamp"`
	Payload      any        `json:"payload,omitempty"`
}

// AnalysisResult is the structured output of one health-analysis invocation.
type AnalysisResult struct {
	InvocationID string              `json:"invocation_id"`
	UserID       string              `json:"user_id,omitempty"`
	Metrics      HealthMetricsRecord `json:"metrics"`
	Mood         MoodResult          `json:"mood"`
	StartedAt    time.Time           `json:"started_at"`
	CompletedAt  time.Time           `json:"completed_at"`
}
