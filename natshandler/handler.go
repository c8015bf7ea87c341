package natshandler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"codesandbox/model"
	"codesandbox/routes"
)

// Handler serves execution requests arriving over NATS request/reply.
type Handler struct {
	nc        *nats.Conn
	submitter routes.Submitter
	timeout   time.Duration
	logger    *zap.Logger

	inflight sync.WaitGroup
}

func NewHandler(nc *nats.Conn, submitter routes.Submitter, timeout time.Duration, logger *zap.Logger) *Handler {
	return &Handler{nc: nc, submitter: submitter, timeout: timeout, logger: logger}
}

// Subscribe joins the "sandbox" queue group on subject so replicas share the load.
func (h *Handler) Subscribe(subject string) (*nats.Subscription, error) {
	return h.nc.QueueSubscribe(subject, "sandbox", h.dispatch)
}

// dispatch hands each message to its own goroutine. nats.go delivers an
// async subscription's messages one at a time, so concurrency is bounded by
// the worker pool behind the submitter rather than by the subscription.
func (h *Handler) dispatch(msg *nats.Msg) {
	h.inflight.Add(1)
	go func(m *nats.Msg) {
		defer h.inflight.Done()
		h.handle(m)
	}(msg)
}

func (h *Handler) handle(msg *nats.Msg) {
	ctx := context.Background()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	reply := h.Process(ctx, msg.Data)
	if msg.Reply == "" {
		return
	}
	if err := msg.Respond(reply); err != nil {
		h.logger.Error("failed to respond", zap.String("subject", msg.Subject), zap.Error(err))
	}
}

// Wait blocks until every dispatched message has been answered.
func (h *Handler) Wait() {
	h.inflight.Wait()
}

// Process decodes one request and returns the encoded response. Every
// failure is turned into a FAILED response so the requester always gets a reply.
func (h *Handler) Process(ctx context.Context, data []byte) []byte {
	var req model.ExecutionRequest
	var resp model.ExecutionResponse

	if err := json.Unmarshal(data, &req); err != nil {
		h.logger.Warn("failed to parse execution request", zap.Error(err))
		resp = failed(fmt.Sprintf("invalid request: %v", err))
	} else if req.Code == "" {
		resp = failed("invalid request: code is required")
	} else {
		if req.InputList == nil {
			req.InputList = []string{}
		}
		var err error
		resp, err = h.submitter.Submit(ctx, req)
		if err != nil {
			h.logger.Warn("execution not accepted", zap.Error(err))
			resp = failed(err.Error())
		}
	}

	out, err := json.Marshal(resp)
	if err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
		return []byte(`{"outputList":[],"judgeInfo":{"time":0,"memory":0},"message":"internal error","status":1}`)
	}
	return out
}

func failed(message string) model.ExecutionResponse {
	return model.ExecutionResponse{OutputList: []string{}, Message: message, Status: model.StatusFailed}
}
