package models

// Task status values reported by show-task.
const (
	TaskStatusInProgress         = "in progress"
	TaskStatusSucceeded          = "succeeded"
	TaskStatusFailed             = "failed"
	TaskStatusPartiallySucceeded = "partially succeeded"
)

// Details levels accepted by show-* commands.
const (
	DetailsLevelUID      = "uid"
	DetailsLevelStandard = "standard"
	DetailsLevelFull     = "full"
)

// IsTerminalTaskStatus reports whether a task in status has finished.
// Every value other than "in progress" is terminal.
func IsTerminalTaskStatus(status string) bool {
	return status != TaskStatusInProgress
}
