package helpers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
)

// ReportingService pushes failure notifications to an operations endpoint.
// Reporting is strictly fire-and-forget: any error here is logged and dropped
// so that evaluation is never blocked on the ops channel.
type ReportingService struct {
	url    string
	client *http.Client
}

type ValidatorIssue struct {
	ValidatorAddress string `json:"validatorAddress"`
	IssueType        string `json:"issueType"`
	UID              string `json:"uid"`
	TimeOfReporting  string `json:"timeOfReporting"`
	Extra            string `json:"extra"`
}

func InitializeReportingService(url string, timeout time.Duration) *ReportingService {
	if url == "" {
		return nil
	}
	return &ReportingService{
		url: url + "/reportIssue", client: &http.Client{Timeout: timeout},
	}
}

// SendFailureNotification posts an issue for the given uid. A nil receiver is
// allowed so callers do not need to check whether reporting is configured.
func (s *ReportingService) SendFailureNotification(validatorAddress, issueType string, uid int, extraData string) {
	if s == nil {
		return
	}

	issue := ValidatorIssue{
		ValidatorAddress: validatorAddress,
		IssueType:        issueType,
		UID:              strconv.Itoa(uid),
		TimeOfReporting:  strconv.FormatInt(time.Now().Unix(), 10),
		Extra:            extraData,
	}

	jsonData, err := json.Marshal(issue)
	if err != nil {
		log.Errorln("Unable to marshal notification for uid: ", uid)
		return
	}
	req, err := http.NewRequest("POST", s.url, bytes.NewBuffer(jsonData))
	if err != nil {
		log.Errorln("Error creating request: ", err)
		return
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		log.Errorln("Error sending request: ", err)
		return
	}
	defer resp.Body.Close()

	log.Debugln("Reporting service response status: ", resp.Status)
}
