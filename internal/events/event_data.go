package events

// EventData is the interface that all event data types must implement
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// RunStartedData contains data for RunStarted events
type RunStartedData struct {
	RunID     string `json:"run_id"`
	Trigger   string `json:"trigger"`
	Scenarios int    `json:"scenarios"`
}

// EventType returns the event type for RunStartedData
func (d *RunStartedData) EventType() EventType {
	return RunStarted
}

// ScenarioCompletedData contains data for ScenarioCompleted events
type ScenarioCompletedData struct {
	RunID        string             `json:"run_id"`
	Scenario     string             `json:"scenario"`
	TargetReturn float64            `json:"target_return"`
	Volatility   float64            `json:"volatility"`
	Weights      map[string]float64 `json:"weights"`
	DurationMs   int64              `json:"duration_ms"`
}

// EventType returns the event type for ScenarioCompletedData
func (d *ScenarioCompletedData) EventType() EventType {
	return ScenarioCompleted
}

// ScenarioFailedData contains data for ScenarioFailed events
type ScenarioFailedData struct {
	RunID    string `json:"run_id"`
	Scenario string `json:"scenario"`
	Error    string `json:"error"`
}

// EventType returns the event type for ScenarioFailedData
func (d *ScenarioFailedData) EventType() EventType {
	return ScenarioFailed
}

// RunCompletedData contains data for RunCompleted events
type RunCompletedData struct {
	RunID      string `json:"run_id"`
	Succeeded  int    `json:"succeeded"`
	Failed     int    `json:"failed"`
	ReportDir  string `json:"report_dir,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// EventType returns the event type for RunCompletedData
func (d *RunCompletedData) EventType() EventType {
	return RunCompleted
}

// RunFailedData contains data for RunFailed events
type RunFailedData struct {
	RunID string `json:"run_id"`
	Error string `json:"error"`
}

// EventType returns the event type for RunFailedData
func (d *RunFailedData) EventType() EventType {
	return RunFailed
}
