package trackblocks

import (
	"log"
	"strings"
)

type testLogWriter struct {
	logLines []string
	log      *log.Logger
}

func makeTestLogWriter() *testLogWriter {
	logWriter := testLogWriter{
		logLines: make([]string, 0),
	}
	logger := log.New(&logWriter, "LTM_SERVER : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logWriter.log = logger
	return &logWriter
}

func (t *testLogWriter) Write(p []byte) (n int, err error) {
	t.logLines = append(t.logLines, string(p))
	return len(p), nil
}

func (t *testLogWriter) containsLine(fragment string) bool {
	for _, line := range t.logLines {
		if strings.Contains(line, fragment) {
			return true
		}
	}
	return false
}

func intPtr(i int) *int {
	return &i
}

func float64Ptr(f float64) *float64 {
	return &f
}
