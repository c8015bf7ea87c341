package natshandler

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"codesandbox/executor"
	"codesandbox/model"
)

type stubSubmitter struct {
	mu   sync.Mutex
	resp model.ExecutionResponse
	err  error
	got  []model.ExecutionRequest
}

func (s *stubSubmitter) Submit(ctx context.Context, req model.ExecutionRequest) (model.ExecutionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, req)
	return s.resp, s.err
}

// blockingSubmitter holds every request until release is closed.
type blockingSubmitter struct {
	entered chan struct{}
	release chan struct{}
}

func (s *blockingSubmitter) Submit(ctx context.Context, req model.ExecutionRequest) (model.ExecutionResponse, error) {
	s.entered <- struct{}{}
	<-s.release
	return model.ExecutionResponse{OutputList: []string{}, Status: model.StatusSuccess}, nil
}

func decode(t *testing.T, data []byte) model.ExecutionResponse {
	t.Helper()
	var resp model.ExecutionResponse
	require.NoError(t, json.Unmarshal(data, &resp))
	return resp
}

func TestProcess(t *testing.T) {
	sub := &stubSubmitter{resp: model.ExecutionResponse{OutputList: []string{"5"}, Status: model.StatusSuccess}}
	h := NewHandler(nil, sub, 0, zaptest.NewLogger(t))

	resp := decode(t, h.Process(context.Background(), []byte(`{"code":"class Main {}","inputList":["2 3"]}`)))
	assert.Equal(t, model.StatusSuccess, resp.Status)
	assert.Equal(t, []string{"5"}, resp.OutputList)
	require.Len(t, sub.got, 1)
	assert.Equal(t, "class Main {}", sub.got[0].Code)
}

func TestProcessFailures(t *testing.T) {
	tests := []struct {
		name string
		data string
		err  error
		want string
	}{
		{name: "malformed json", data: `{"code":`, want: "invalid request"},
		{name: "missing code", data: `{"inputList":["1"]}`, want: "code is required"},
		{name: "queue full", data: `{"code":"x"}`, err: executor.ErrQueueFull, want: "job queue full"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(nil, &stubSubmitter{err: tt.err}, 0, zaptest.NewLogger(t))
			resp := decode(t, h.Process(context.Background(), []byte(tt.data)))
			assert.Equal(t, model.StatusFailed, resp.Status)
			assert.Contains(t, resp.Message, tt.want)
			assert.NotNil(t, resp.OutputList)
		})
	}
}

func TestDispatchRunsMessagesConcurrently(t *testing.T) {
	sub := &blockingSubmitter{entered: make(chan struct{}, 2), release: make(chan struct{})}
	h := NewHandler(nil, sub, time.Minute, zaptest.NewLogger(t))

	data := []byte(`{"code":"class Main {}","inputList":["1"]}`)
	h.dispatch(&nats.Msg{Subject: "sandbox.execute.request", Data: data})
	h.dispatch(&nats.Msg{Subject: "sandbox.execute.request", Data: data})

	for i := 0; i < 2; i++ {
		select {
		case <-sub.entered:
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of 2 messages reached the submitter", i)
		}
	}

	close(sub.release)
	done := make(chan struct{})
	go func() {
		h.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not finish in-flight messages")
	}
}
