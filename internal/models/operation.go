package models

import (
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// OperationType tags an AsyncOperation with the handler that processes it.
const (
	OperationTypeWeeklyReflection = "weekly-reflection-generation"
)

// Trigger provenance recorded in operation metadata.
const (
	TriggerManual    = "manual"
	TriggerScheduled = "scheduled"
)

// OperationStatus represents valid operation lifecycle states.
type OperationStatus string

const (
	OperationQueued     OperationStatus = "queued"
	OperationProcessing OperationStatus = "processing"
	OperationCompleted  OperationStatus = "completed"
	OperationFailed     OperationStatus = "failed"
)

// validTransitions defines the allowed lifecycle transitions.
// Completed and failed are terminal; nothing moves out of them.
var validTransitions = map[OperationStatus]map[OperationStatus]bool{
	OperationQueued: {
		OperationProcessing: true,
		OperationFailed:     true, // handler lookup failure before processing
	},
	OperationProcessing: {
		OperationCompleted: true,
		OperationFailed:    true,
	},
	OperationCompleted: {},
	OperationFailed:    {},
}

// ValidTransition reports whether current -> desired is an allowed move.
func ValidTransition(current, desired OperationStatus) bool {
	allowed, exists := validTransitions[current]
	if !exists || !allowed[desired] {
		log.Printf("⚠️ [STATE] Invalid operation transition: %s → %s (rejected)", current, desired)
		return false
	}
	return true
}

// IsTerminal returns true if the status is a final state.
func (s OperationStatus) IsTerminal() bool {
	return s == OperationCompleted || s == OperationFailed
}

// IsActive returns true for statuses that count against the one-active-
// operation-per-week invariant.
func (s OperationStatus) IsActive() bool {
	return s == OperationQueued || s == OperationProcessing
}

// AsyncOperation is the durable record of one long-running unit of work.
// Operations are created queued, mutated only by the job dispatcher, and
// retained forever for audit and status polling.
type AsyncOperation struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID        string             `bson:"userId" json:"user_id"`
	OperationType string             `bson:"operationType" json:"operation_type"`

	// WeekKey scopes the dedup constraint, e.g. "2026-W35". Part of the
	// partial unique index on (userId, operationType, weekKey).
	WeekKey string `bson:"weekKey" json:"week_key"`

	Status OperationStatus `bson:"status" json:"status"`

	InputData    ReflectionJobInput `bson:"inputData" json:"input_data"`
	ResultData   map[string]any     `bson:"resultData,omitempty" json:"result_data,omitempty"`
	ErrorMessage string             `bson:"errorMessage,omitempty" json:"error_message,omitempty"`

	// Metadata carries trigger provenance and advisory progress snapshots.
	Metadata map[string]any `bson:"metadata,omitempty" json:"metadata,omitempty"`

	CreatedAt time.Time `bson:"createdAt" json:"created_at"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updated_at"`
}

// ReflectionJobInput is the structured payload a weekly reflection handler
// needs to run.
type ReflectionJobInput struct {
	UserID                 string    `bson:"userId" json:"user_id"`
	WeekStart              time.Time `bson:"weekStart" json:"week_start"`
	WeekEnd                time.Time `bson:"weekEnd" json:"week_end"`
	WeekNumber             int       `bson:"weekNumber" json:"week_number"`
	Year                   int       `bson:"year" json:"year"`
	IncludePreviousContext bool      `bson:"includePreviousContext" json:"include_previous_context"`
	IncludeIntegrations    []string  `bson:"includeIntegrations" json:"include_integrations"`
}

// ReflectionJobResult is what the weekly reflection handler returns. Status
// "error" covers domain outcomes (missing profile); infrastructure failures
// are returned as Go errors instead and never end up here.
type ReflectionJobResult struct {
	Status  string `bson:"status" json:"status"` // "draft" or "error"
	Content string `bson:"content,omitempty" json:"content,omitempty"`
	Error   string `bson:"error,omitempty" json:"error,omitempty"`
}

// GenerateReflectionRequest is the POST /api/reflections/generate body.
type GenerateReflectionRequest struct {
	TriggerType            string   `json:"triggerType,omitempty"`
	IncludePreviousContext bool     `json:"includePreviousContext,omitempty"`
	IncludeIntegrations    []string `json:"includeIntegrations,omitempty"`
}

// OperationResponse is the API representation of an operation.
type OperationResponse struct {
	ID            string          `json:"operationId"`
	OperationType string          `json:"operationType"`
	WeekKey       string          `json:"weekKey"`
	Status        OperationStatus `json:"status"`
	Metadata      map[string]any  `json:"metadata,omitempty"`
	ResultData    map[string]any  `json:"resultData,omitempty"`
	ErrorMessage  string          `json:"errorMessage,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// ToResponse converts an AsyncOperation to its API shape.
func (o *AsyncOperation) ToResponse() *OperationResponse {
	return &OperationResponse{
		ID:            o.ID.Hex(),
		OperationType: o.OperationType,
		WeekKey:       o.WeekKey,
		Status:        o.Status,
		Metadata:      o.Metadata,
		ResultData:    o.ResultData,
		ErrorMessage:  o.ErrorMessage,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}
