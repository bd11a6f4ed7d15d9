package watchdog

import (
	"os"
	"time"

	log "github.com/sirupsen/logrus"
)

const HealthFilePath = "/tmp/validator-loop-healthy"

func createHealthFile() {
	file, err := os.Create(HealthFilePath)
	if err != nil {
		log.Errorf("Failed to create health check file: %v", err)
		return
	}
	defer file.Close()

	timestamp := time.Now().UTC().Format(time.RFC3339)
	if _, err := file.WriteString(timestamp); err != nil {
		log.Errorf("Failed to write to health check file: %v", err)
	}
}

func removeHealthFile() {
	if err := os.Remove(HealthFilePath); err != nil && !os.IsNotExist(err) {
		log.Debugf("Failed to remove health check file: %v", err)
	}
}
