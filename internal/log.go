package internal

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// AuditLog is a mutex-guarded plain-line file log. It carries the album
// audit trail (every resolution and assignment), separate from the main
// progress log.
type AuditLog struct {
	mu sync.Mutex
	f  *os.File
}

func NewAuditLog(path string) (*AuditLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &AuditLog{f: f}, nil
}

func (l *AuditLog) Printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.f, time.Now().UTC().Format(time.RFC3339)+" "+format+"\n", args...)
}

func (l *AuditLog) Close() error {
	return l.f.Close()
}
