package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// ErrInvocation marks a failed verification call: timeout, transport error, or
// a malformed response. The evaluation loop counts these as incorrect trials;
// they never abort a cycle.
var ErrInvocation = errors.New("verification invocation failed")

const (
	VerdictCorroborates = "corroborates"
	VerdictRefutes      = "refutes"
	VerdictNeutral      = "neutral"
)

// VerifyRequest is the statement handed to the agent's verification contract.
type VerifyRequest struct {
	Statement      string `json:"statement"`
	StatementID    string `json:"statement_id"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type EvidenceItem struct {
	SourceURL          string  `json:"source_url"`
	ExtractedText      string  `json:"extracted_text"`
	RelevanceScore     float64 `json:"relevance_score"`
	CorroborationScore float64 `json:"corroboration_score"`
	TimestampRetrieved string  `json:"timestamp_retrieved"`
}

type ResponseMetadata struct {
	ProcessingTimeSeconds float64 `json:"processing_time_seconds"`
	SearchQueriesUsed     int     `json:"search_queries_used"`
	LLMTokensUsed         int     `json:"llm_tokens_used"`
}

// Verdict is the agent's structured answer for a single statement.
type Verdict struct {
	StatementID      string           `json:"statement_id"`
	OverallScore     float64          `json:"overall_score"`
	OverallVerdict   string           `json:"overall_verdict"`
	Reasoning        string           `json:"reasoning"`
	Evidence         []EvidenceItem   `json:"evidence"`
	ResponseMetadata ResponseMetadata `json:"response_metadata"`
}

// CallVerify invokes the /verify contract at baseURL with a deadline. Any
// transport error, non-200 status, or out-of-contract response maps to
// ErrInvocation.
func CallVerify(ctx context.Context, client *http.Client, baseURL, statement, statementID string, timeout time.Duration) (*Verdict, error) {
	payload, err := json.Marshal(VerifyRequest{
		Statement:      statement,
		StatementID:    statementID,
		TimeoutSeconds: int(timeout.Seconds()),
	})
	if err != nil {
		return nil, errors.Wrap(ErrInvocation, err.Error())
	}

	// Buffer past the agent's own deadline for network overhead.
	ctx, cancel := context.WithTimeout(ctx, timeout+10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/verify", bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(ErrInvocation, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(ErrInvocation, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, errors.Wrapf(ErrInvocation, "status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var verdict Verdict
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		return nil, errors.Wrapf(ErrInvocation, "malformed response: %v", err)
	}
	if err := verdict.validate(); err != nil {
		return nil, errors.Wrapf(ErrInvocation, "out-of-contract response: %v", err)
	}
	return &verdict, nil
}

func (v *Verdict) validate() error {
	switch v.OverallVerdict {
	case VerdictCorroborates, VerdictRefutes, VerdictNeutral:
	default:
		return errors.Errorf("unknown verdict %q", v.OverallVerdict)
	}
	if v.OverallScore < 0 || v.OverallScore > 1 {
		return errors.Errorf("overall_score %f out of range", v.OverallScore)
	}
	return nil
}

// CheckHealth probes the agent's liveness endpoint.
func CheckHealth(ctx context.Context, client *http.Client, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("health status %d", resp.StatusCode)
	}
	return nil
}
