package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// OutcomeKind tags the acceptance service's answer to an announcement.
type OutcomeKind int

const (
	// OutcomeAccepted means the submission was saved and assigned an id.
	OutcomeAccepted OutcomeKind = iota + 1

	// OutcomeRejected means the service answered successfully but did not
	// save the submission. A 200 response can still be a logical rejection.
	OutcomeRejected

	// OutcomeRateLimited means the service answered 409. Expected, not an
	// error; the caller may retry later on its own schedule.
	OutcomeRateLimited
)

// Outcome is the decoded result of an announcement. The accept/reject
// distinction is made once here, from the response body, and consumed by tag
// everywhere else.
type Outcome struct {
	Kind         OutcomeKind
	SubmissionID string
	Reason       string
}

// Relay forwards authenticated submissions to the acceptance service.
type Relay struct {
	baseURL string
	client  *http.Client
}

func New(baseURL string, timeout time.Duration) *Relay {
	return &Relay{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type submissionBody struct {
	DecryptedGistURL string `json:"decrypted_gist_url"`
}

type submissionResponse struct {
	SubmissionID    string `json:"submission_id"`
	RejectionReason string `json:"rejection_reason"`
}

// Announce forwards the (address, locator, signature) tuple. Transport
// failures and unexpected statuses propagate as errors; everything else maps
// to an Outcome.
func (r *Relay) Announce(ctx context.Context, address, locator, signature string) (Outcome, error) {
	payload, err := json.Marshal(submissionBody{DecryptedGistURL: locator})
	if err != nil {
		return Outcome{}, err
	}

	url := r.baseURL + "/api/v1/miners/submission"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return Outcome{}, err
	}
	req.Header.Set("signature", signature)
	req.Header.Set("wallet", address)
	req.Header.Set("gist_url", locator)
	req.Header.Set("Content-Type", "application/json")

	log.Infof("Sending submission: wallet=%s gist_url=%s", address, locator)
	resp, err := r.client.Do(req)
	if err != nil {
		return Outcome{}, errors.Wrap(err, "announcing submission")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		log.Warnln("Submission was too quick - rate limited")
		return Outcome{Kind: OutcomeRateLimited}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Outcome{}, errors.Errorf("acceptance service returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var decoded submissionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Outcome{}, errors.Wrap(err, "decoding acceptance response")
	}

	if decoded.SubmissionID != "" && decoded.RejectionReason == "" {
		log.Infoln("Submission saved on server with ID: ", decoded.SubmissionID)
		return Outcome{Kind: OutcomeAccepted, SubmissionID: decoded.SubmissionID}, nil
	}

	reason := decoded.RejectionReason
	if reason == "" {
		reason = "submission was not saved on server"
	}
	log.Warnln("Submission rejected: ", reason)
	return Outcome{Kind: OutcomeRejected, Reason: reason}, nil
}
