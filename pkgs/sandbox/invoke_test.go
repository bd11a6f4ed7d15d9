package sandbox

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallVerify(t *testing.T) {
	var gotReq VerifyRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/verify", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		io.WriteString(w, `{
			"statement_id": "stmt-1",
			"overall_score": 0.9,
			"overall_verdict": "corroborates",
			"reasoning": "well established",
			"evidence": [],
			"response_metadata": {"processing_time_seconds": 0.1, "search_queries_used": 1, "llm_tokens_used": 250}
		}`)
	}))
	defer ts.Close()

	verdict, err := CallVerify(context.Background(), ts.Client(), ts.URL, "Water freezes at 0 degrees Celsius", "stmt-1", 30*time.Second)
	require.NoError(t, err)

	assert.Equal(t, "Water freezes at 0 degrees Celsius", gotReq.Statement)
	assert.Equal(t, "stmt-1", gotReq.StatementID)
	assert.Equal(t, 30, gotReq.TimeoutSeconds)
	assert.Equal(t, VerdictCorroborates, verdict.OverallVerdict)
	assert.Equal(t, 0.9, verdict.OverallScore)
}

func TestCallVerifyUnknownVerdict(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"statement_id": "x", "overall_score": 0.5, "overall_verdict": "uncertain"}`)
	}))
	defer ts.Close()

	_, err := CallVerify(context.Background(), ts.Client(), ts.URL, "s", "x", time.Second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvocation))
	assert.Contains(t, err.Error(), "uncertain")
}

func TestCallVerifyScoreOutOfRange(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"statement_id": "x", "overall_score": 1.5, "overall_verdict": "corroborates"}`)
	}))
	defer ts.Close()

	_, err := CallVerify(context.Background(), ts.Client(), ts.URL, "s", "x", time.Second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvocation))
}

func TestCallVerifyServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, "agent crashed")
	}))
	defer ts.Close()

	_, err := CallVerify(context.Background(), ts.Client(), ts.URL, "s", "x", time.Second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvocation))
	assert.Contains(t, err.Error(), "500")
}

func TestCallVerifyMalformedBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "not json")
	}))
	defer ts.Close()

	_, err := CallVerify(context.Background(), ts.Client(), ts.URL, "s", "x", time.Second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvocation))
}

func TestCallVerifyUnreachableAgent(t *testing.T) {
	_, err := CallVerify(context.Background(), http.DefaultClient, "http://127.0.0.1:1", "s", "x", time.Second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvocation))
}

func TestCheckHealth(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/health", r.URL.Path)
		io.WriteString(w, `{"status": "healthy"}`)
	}))
	defer ts.Close()

	assert.NoError(t, CheckHealth(context.Background(), ts.Client(), ts.URL))
}

func TestCheckHealthNotReady(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	assert.Error(t, CheckHealth(context.Background(), ts.Client(), ts.URL))
}
