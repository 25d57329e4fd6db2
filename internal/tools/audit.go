package tools

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// timeNow is the package clock; tests pin it.
var timeNow = time.Now

// auditEntry is one NDJSON line per external tool run.
type auditEntry struct {
	TS          string   `json:"ts"`
	RunID       string   `json:"runId,omitempty"`
	Tool        string   `json:"tool"`
	Argv        []string `json:"argv"`
	CWD         string   `json:"cwd"`
	Exit        int      `json:"exit"`
	MS          int64    `json:"ms"`
	StdoutBytes int      `json:"stdoutBytes"`
	StderrBytes int      `json:"stderrBytes"`
	EnvKeys     []string `json:"envKeys,omitempty"`
}

func newAuditEntry(runID, tool string, argv []string, cwd string, exit int, start time.Time, stdoutBytes, stderrBytes int, envKeys []string) auditEntry {
	pats := gatherRedactionPatterns(envKeys)
	return auditEntry{
		TS:          timeNow().UTC().Format(time.RFC3339Nano),
		RunID:       runID,
		Tool:        tool,
		Argv:        pats.applyAll(argv),
		CWD:         pats.apply(cwd),
		Exit:        exit,
		MS:          time.Since(start).Milliseconds(),
		StdoutBytes: stdoutBytes,
		StderrBytes: stderrBytes,
		EnvKeys:     append([]string(nil), envKeys...),
	}
}

// appendAuditLog writes an NDJSON line to dir/YYYYMMDD.log. An empty dir
// disables auditing.
func appendAuditLog(dir string, entry any) error {
	if dir == "" {
		return nil
	}
	b, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(dir, timeNow().UTC().Format("20060102")+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if err := f.Close(); err != nil {
			_ = err
		}
	}()
	_, err = f.Write(append(b, '\n'))
	return err
}
