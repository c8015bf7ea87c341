package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"codesandbox/model"
)

func TestAggregate(t *testing.T) {
	ok := func(out string, ms, mem int64) model.RawExecutionResult {
		return model.RawExecutionResult{Stdout: out, ElapsedMillis: ms, PeakMemory: mem}
	}
	bad := func(msg string, ms, mem int64) model.RawExecutionResult {
		return model.RawExecutionResult{ExitCode: 1, ErrorMessage: msg, ElapsedMillis: ms, PeakMemory: mem}
	}

	tests := []struct {
		name     string
		results  []model.RawExecutionResult
		expected int
		want     model.ExecutionResponse
	}{
		{
			name:     "no cases",
			expected: 0,
			want:     model.ExecutionResponse{OutputList: []string{}, Status: model.StatusSuccess},
		},
		{
			name:     "all pass",
			results:  []model.RawExecutionResult{ok("5", 40, 0), ok("7", 55, 0)},
			expected: 2,
			want: model.ExecutionResponse{
				OutputList: []string{"5", "7"},
				JudgeInfo:  model.JudgeInfo{Time: 55},
				Status:     model.StatusSuccess,
			},
		},
		{
			name:     "first failure truncates outputs",
			results:  []model.RawExecutionResult{ok("5", 40, 1024), bad("NumberFormatException", 900, 4096), ok("9", 1200, 2048)},
			expected: 3,
			want: model.ExecutionResponse{
				OutputList: []string{"5"},
				JudgeInfo:  model.JudgeInfo{Time: 40, Memory: 4096},
				Message:    "NumberFormatException",
				Status:     model.StatusFailed,
			},
		},
		{
			name:     "failure on first case",
			results:  []model.RawExecutionResult{bad("time out", 10000, 0)},
			expected: 1,
			want: model.ExecutionResponse{
				OutputList: []string{},
				Message:    "time out",
				Status:     model.StatusFailed,
			},
		},
		{
			name:     "stopped early leaves fewer results",
			results:  []model.RawExecutionResult{ok("1", 5, 0)},
			expected: 2,
			want: model.ExecutionResponse{
				OutputList: []string{"1"},
				JudgeInfo:  model.JudgeInfo{Time: 5},
				Message:    "expected 2 results, got 1",
				Status:     model.StatusFailed,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Aggregate(tt.results, tt.expected))
		})
	}
}
