package engine

import (
	"os"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestMain(m *testing.M) {
	// Set DEBUG_TESTS=1 to see load logs: DEBUG_TESTS=1 go test ./engine/ -v
	if os.Getenv("DEBUG_TESTS") == "" {
		logrus.SetLevel(logrus.ErrorLevel)
	}
	os.Exit(m.Run())
}
