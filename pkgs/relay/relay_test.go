package relay

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRelay(t *testing.T, handler http.HandlerFunc) *Relay {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return New(ts.URL, 5*time.Second)
}

func TestAnnounceAccepted(t *testing.T) {
	var gotHeaders http.Header
	var gotBody submissionBody
	r := newTestRelay(t, func(w http.ResponseWriter, req *http.Request) {
		require.Equal(t, "/api/v1/miners/submission", req.URL.Path)
		gotHeaders = req.Header.Clone()
		require.NoError(t, json.NewDecoder(req.Body).Decode(&gotBody))
		io.WriteString(w, `{"submission_id": "sub-42"}`)
	})

	outcome, err := r.Announce(context.Background(), "addr-a", "https://gist.github.com/a/abc", "cafe")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, outcome.Kind)
	assert.Equal(t, "sub-42", outcome.SubmissionID)

	assert.Equal(t, "cafe", gotHeaders.Get("signature"))
	assert.Equal(t, "addr-a", gotHeaders.Get("wallet"))
	assert.Equal(t, "https://gist.github.com/a/abc", gotHeaders.Get("gist_url"))
	assert.Equal(t, "https://gist.github.com/a/abc", gotBody.DecryptedGistURL)
}

func TestAnnounceLogicalRejectionOn200(t *testing.T) {
	r := newTestRelay(t, func(w http.ResponseWriter, req *http.Request) {
		io.WriteString(w, `{"rejection_reason": "stale submission"}`)
	})

	outcome, err := r.Announce(context.Background(), "addr-a", "loc", "sig")
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, outcome.Kind)
	assert.Equal(t, "stale submission", outcome.Reason)
}

func TestAnnounceMissingSubmissionIDIsRejection(t *testing.T) {
	r := newTestRelay(t, func(w http.ResponseWriter, req *http.Request) {
		io.WriteString(w, `{}`)
	})

	outcome, err := r.Announce(context.Background(), "addr-a", "loc", "sig")
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, outcome.Kind)
}

func TestAnnounceRateLimited(t *testing.T) {
	r := newTestRelay(t, func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})

	outcome, err := r.Announce(context.Background(), "addr-a", "loc", "sig")
	require.NoError(t, err, "409 is an expected outcome, not an error")
	assert.Equal(t, OutcomeRateLimited, outcome.Kind)
}

func TestAnnounceServerErrorPropagates(t *testing.T) {
	r := newTestRelay(t, func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, "boom")
	})

	_, err := r.Announce(context.Background(), "addr-a", "loc", "sig")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}
