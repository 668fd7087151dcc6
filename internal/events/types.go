// Package events provides event management functionality.
package events

import (
	"encoding/json"
	"time"
)

// EventType represents different event types
type EventType string

const (
	RunStarted     EventType = "RUN_STARTED"
	RunCompleted   EventType = "RUN_COMPLETED"
	RunFailed      EventType = "RUN_FAILED"
	StageStarted   EventType = "STAGE_STARTED"
	StageCompleted EventType = "STAGE_COMPLETED"
	StageFailed    EventType = "STAGE_FAILED"
	SeriesStaged   EventType = "SERIES_STAGED"
	ErrorOccurred  EventType = "ERROR_OCCURRED"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Module    string                 `json:"module"`
	Data      map[string]interface{} `json:"data"`
}

// EventData is the interface all typed event payloads implement.
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// RunStatusData carries pipeline run lifecycle events
type RunStatusData struct {
	RunID    string  `json:"run_id"`
	Trigger  string  `json:"trigger"`
	Status   string  `json:"status"` // "started", "completed", "failed"
	Error    string  `json:"error,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// EventType returns the event type for RunStatusData
// Note: the actual event type is determined by the Status field
func (d *RunStatusData) EventType() EventType {
	switch d.Status {
	case "completed":
		return RunCompleted
	case "failed":
		return RunFailed
	default:
		return RunStarted
	}
}

// StageStatusData carries per-stage lifecycle events
type StageStatusData struct {
	RunID    string  `json:"run_id"`
	Stage    string  `json:"stage"`
	Status   string  `json:"status"` // "started", "completed", "failed"
	Rows     int     `json:"rows,omitempty"`
	Dropped  int     `json:"dropped,omitempty"`
	Error    string  `json:"error,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// EventType returns the event type for StageStatusData
func (d *StageStatusData) EventType() EventType {
	switch d.Status {
	case "completed":
		return StageCompleted
	case "failed":
		return StageFailed
	default:
		return StageStarted
	}
}

// SeriesStagedData announces one platform's freshly staged series
type SeriesStagedData struct {
	Platform string `json:"platform"`
	Rows     int    `json:"rows"`
	Key      string `json:"key"`
}

// EventType returns the event type for SeriesStagedData
func (d *SeriesStagedData) EventType() EventType {
	return SeriesStaged
}

// ErrorEventData carries error events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}

// GetTypedData attempts to convert the Data map to typed EventData.
// Returns nil when the event type has no typed payload or conversion
// fails.
func (e *Event) GetTypedData() EventData {
	if e.Data == nil {
		return nil
	}

	switch e.Type {
	case RunStarted, RunCompleted, RunFailed:
		var data RunStatusData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	case StageStarted, StageCompleted, StageFailed:
		var data StageStatusData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	case SeriesStaged:
		var data SeriesStagedData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	case ErrorOccurred:
		var data ErrorEventData
		if err := convertMapToStruct(e.Data, &data); err == nil {
			return &data
		}
	}

	return nil
}

// convertMapToStruct converts a map[string]interface{} to a struct
func convertMapToStruct(m map[string]interface{}, v interface{}) error {
	jsonBytes, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(jsonBytes, v)
}

// convertEventDataToMap converts typed EventData to map[string]interface{}
func convertEventDataToMap(data EventData) map[string]interface{} {
	if data == nil {
		return nil
	}

	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return nil
	}

	var result map[string]interface{}
	if err := json.Unmarshal(jsonBytes, &result); err != nil {
		return nil
	}

	return result
}
