package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"codesandbox/executor"
	"codesandbox/model"
	"codesandbox/pkg"
)

type stubSubmitter struct {
	got  []model.ExecutionRequest
	resp model.ExecutionResponse
	err  error
}

func (s *stubSubmitter) Submit(ctx context.Context, req model.ExecutionRequest) (model.ExecutionResponse, error) {
	s.got = append(s.got, req)
	return s.resp, s.err
}

func newRouter(t *testing.T, sub Submitter, opts Options) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	SetupRoutes(router, sub, opts, zaptest.NewLogger(t))
	return router
}

func post(router *gin.Engine, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/exec_code", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "192.0.2.1:1234"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestExecCode(t *testing.T) {
	sub := &stubSubmitter{resp: model.ExecutionResponse{
		OutputList: []string{"5", "7"},
		JudgeInfo:  model.JudgeInfo{Time: 42},
		Status:     model.StatusSuccess,
	}}
	router := newRouter(t, sub, Options{AuthHeader: "auth", AuthSecret: "secretKey"})

	rec := post(router, `{"code":"class Main {}","inputList":["2 3","3 4"],"language":"java"}`, map[string]string{"auth": "secretKey"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp model.ExecutionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"5", "7"}, resp.OutputList)
	assert.Equal(t, model.StatusSuccess, resp.Status)
	assert.Equal(t, int64(42), resp.JudgeInfo.Time)

	require.Len(t, sub.got, 1)
	assert.Equal(t, []string{"2 3", "3 4"}, sub.got[0].InputList)
}

func TestExecCodeRejections(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		headers map[string]string
		err     error
		want    int
	}{
		{name: "missing auth", body: `{"code":"x"}`, want: http.StatusForbidden},
		{name: "wrong auth", body: `{"code":"x"}`, headers: map[string]string{"auth": "nope"}, want: http.StatusForbidden},
		{name: "secret prefix", body: `{"code":"x"}`, headers: map[string]string{"auth": "secret"}, want: http.StatusForbidden},
		{name: "secret with suffix", body: `{"code":"x"}`, headers: map[string]string{"auth": "secretKey2"}, want: http.StatusForbidden},
		{name: "malformed body", body: `{"code":`, headers: map[string]string{"auth": "secretKey"}, want: http.StatusBadRequest},
		{name: "missing code", body: `{"inputList":[]}`, headers: map[string]string{"auth": "secretKey"}, want: http.StatusBadRequest},
		{name: "queue full", body: `{"code":"x"}`, headers: map[string]string{"auth": "secretKey"}, err: executor.ErrQueueFull, want: http.StatusServiceUnavailable},
		{name: "timeout", body: `{"code":"x"}`, headers: map[string]string{"auth": "secretKey"}, err: context.DeadlineExceeded, want: http.StatusGatewayTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := &stubSubmitter{err: tt.err}
			router := newRouter(t, sub, Options{AuthHeader: "auth", AuthSecret: "secretKey"})
			rec := post(router, tt.body, tt.headers)
			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusForbidden || tt.want == http.StatusBadRequest {
				assert.Empty(t, sub.got)
			}
		})
	}
}

func TestExecCodeWithoutSecret(t *testing.T) {
	sub := &stubSubmitter{resp: model.ExecutionResponse{OutputList: []string{}, Status: model.StatusSuccess}}
	router := newRouter(t, sub, Options{AuthHeader: "auth"})

	rec := post(router, `{"code":"x"}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, sub.got, 1)
	assert.NotNil(t, sub.got[0].InputList)
}

func TestExecCodeRateLimited(t *testing.T) {
	sub := &stubSubmitter{resp: model.ExecutionResponse{OutputList: []string{}}}
	router := newRouter(t, sub, Options{Limiter: pkg.NewRateLimiter(1, 1)})

	assert.Equal(t, http.StatusOK, post(router, `{"code":"x"}`, nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, post(router, `{"code":"x"}`, nil).Code)
}

func TestHealthAndMetrics(t *testing.T) {
	router := newRouter(t, &stubSubmitter{}, Options{})

	for _, path := range []string{"/health", "/metrics"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestAuthorized(t *testing.T) {
	h := &ExecutionHandler{opts: Options{AuthHeader: "auth", AuthSecret: "secretKey"}}
	assert.True(t, h.authorized("secretKey"))
	assert.False(t, h.authorized(""))
	assert.False(t, h.authorized("secretKe"))
	assert.False(t, h.authorized("secretKeyy"))

	open := &ExecutionHandler{opts: Options{AuthHeader: "auth"}}
	assert.True(t, open.authorized(""))
}
