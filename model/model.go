package model

// Status is the overall verdict of one sandbox execution.
type Status int

const (
	StatusSuccess Status = 0
	StatusFailed  Status = 1
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// ExecutionRequest represents the request structure for code execution
type ExecutionRequest struct {
	InputList []string `json:"inputList"`
	Code      string   `json:"code" binding:"required"`
	Language  string   `json:"language"`
}

// JudgeInfo carries the aggregate metrics of a run. Time is in
// milliseconds and memory in bytes.
type JudgeInfo struct {
	Time   int64 `json:"time"`
	Memory int64 `json:"memory"`
}

// ExecutionResponse represents the response structure for executed code
type ExecutionResponse struct {
	OutputList []string  `json:"outputList"`
	JudgeInfo  JudgeInfo `json:"judgeInfo"`
	Message    string    `json:"message,omitempty"`
	Status     Status    `json:"status"`
}

// RawExecutionResult is what a strategy produces for one case.
// ExitCode is -1 when the process never reported one (killed or not started).
type RawExecutionResult struct {
	ExitCode      int
	Stdout        string
	Stderr        string
	ErrorMessage  string
	ElapsedMillis int64
	PeakMemory    int64
	TimedOut      bool
}

// Failed reports whether the case carries error content.
func (r RawExecutionResult) Failed() bool {
	return r.ErrorMessage != ""
}

// ContainerStats is the subset of the docker stats JSON the sandbox reads.
type ContainerStats struct {
	Name        string      `json:"name"`
	ID          string      `json:"id"`
	Read        string      `json:"read"`
	PidsStats   PidsStats   `json:"pids_stats"`
	MemoryStats MemoryStats `json:"memory_stats"`
}

// PidsStats represents process statistics.
type PidsStats struct {
	Current int `json:"current"`
	Limit   int `json:"limit"`
}

// MemoryStats represents memory statistics.
type MemoryStats struct {
	Usage    int64 `json:"usage"`
	MaxUsage int64 `json:"max_usage"`
	Limit    int64 `json:"limit"`
}
