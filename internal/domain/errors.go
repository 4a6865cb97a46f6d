package domain

import "fmt"

// InsufficientDataError is returned when fewer than two aligned price periods
// remain after alignment. It is fatal for a whole run.
type InsufficientDataError struct {
	Periods int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient price history: %d aligned periods (need at least 2)", e.Periods)
}

// UnknownAssetWarning records a minimum-allocation constraint that names an
// asset outside the universe. The constraint is skipped and the run continues.
type UnknownAssetWarning struct {
	Scenario string
	Asset    string
}

func (e *UnknownAssetWarning) Error() string {
	if e.Scenario == "" {
		return fmt.Sprintf("constrained asset %q not found, constraint ignored", e.Asset)
	}
	return fmt.Sprintf("scenario %q: constrained asset %q not found, constraint ignored", e.Scenario, e.Asset)
}

// InfeasibleOrNonConvergentError is returned for a scenario whose solver did
// not converge. Only that scenario fails.
type InfeasibleOrNonConvergentError struct {
	Scenario string
	Message  string
}

func (e *InfeasibleOrNonConvergentError) Error() string {
	return fmt.Sprintf("scenario %q: optimization failed: %s", e.Scenario, e.Message)
}

// MalformedScenarioError is returned when a scenario fails validation before
// optimization starts.
type MalformedScenarioError struct {
	Scenario string
	Reason   string
}

func (e *MalformedScenarioError) Error() string {
	return fmt.Sprintf("scenario %q is malformed: %s", e.Scenario, e.Reason)
}
