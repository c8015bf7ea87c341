package service

import (
	"fmt"

	"codesandbox/model"
)

// Aggregate reduces per-case results into the caller-facing response.
// Outputs are appended in order until the first case carrying error
// content; that case's error becomes the message and nothing after it is
// reported. Time is the maximum over the appended cases. Memory is the
// maximum over every measured case and stays zero when nothing was measured.
func Aggregate(results []model.RawExecutionResult, expected int) model.ExecutionResponse {
	resp := model.ExecutionResponse{
		OutputList: make([]string, 0, len(results)),
		Status:     model.StatusFailed,
	}

	failed := false
	for _, r := range results {
		if r.PeakMemory > resp.JudgeInfo.Memory {
			resp.JudgeInfo.Memory = r.PeakMemory
		}
		if failed {
			continue
		}
		if r.Failed() {
			failed = true
			resp.Message = r.ErrorMessage
			continue
		}
		resp.OutputList = append(resp.OutputList, r.Stdout)
		if r.ElapsedMillis > resp.JudgeInfo.Time {
			resp.JudgeInfo.Time = r.ElapsedMillis
		}
	}

	switch {
	case failed:
	case len(resp.OutputList) != expected:
		resp.Message = fmt.Sprintf("expected %d results, got %d", expected, len(resp.OutputList))
	default:
		resp.Status = model.StatusSuccess
	}
	return resp
}
