// File: internal/evidence/recorder.go
//
// Package evidence persists the audit trail of a login run: a per-run
// directory holding ordered screenshots, a structured JSONL run log, and a
// manifest tying them together. Evidence is append-only; a failed screenshot
// degrades the record to log-only rather than aborting the run.
package evidence

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Well-known record labels. Challenge detections use ChallengeLabel instead.
const (
	LabelLoginLoaded        = "login_loaded"
	LabelCredentialsEntered = "credentials_entered"
	LabelSuccess            = "success"
	LabelLoginFailed        = "login_failed"
	LabelIndeterminate      = "indeterminate"
	LabelAttemptFailed      = "attempt_failed"
)

// ChallengeLabel derives the record label for a detected challenge kind,
// e.g. "captcha_detected".
func ChallengeLabel(kind string) string {
	return kind + "_detected"
}

// Screenshotter is the capture capability the recorder needs from a page.
type Screenshotter interface {
	Screenshot(ctx context.Context) ([]byte, error)
}

// Record describes one captured evidence point. File is empty when the
// screenshot could not be taken and the record is log-only.
type Record struct {
	Seq       int       `json:"seq"`
	Label     string    `json:"label"`
	Timestamp time.Time `json:"timestamp"`
	File      string    `json:"file,omitempty"`
	URL       string    `json:"url,omitempty"`
	Note      string    `json:"note,omitempty"`
}

// Manifest is the machine-readable summary written at the end of a run.
type Manifest struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Outcome    string    `json:"outcome"`
	Records    []Record  `json:"records"`
}

// Recorder accumulates evidence for a single run. Safe for concurrent use,
// although a session normally owns one exclusively.
type Recorder struct {
	mu      sync.Mutex
	dir     string
	runID   string
	seq     int
	started time.Time
	records []Record
	closed  bool

	logger  *zap.Logger
	runLog  *zap.Logger
	logFile *os.File
}

// NewRecorder creates the per-run evidence directory under outputRoot and
// opens the run log. The directory name combines a sortable timestamp with a
// short unique suffix so concurrent runs never collide.
func NewRecorder(outputRoot string, logger *zap.Logger) (*Recorder, error) {
	now := time.Now()
	runID := uuid.NewString()[:8]
	dir := filepath.Join(outputRoot, fmt.Sprintf("%s_%s", now.Format("20060102T150405"), runID))

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("evidence: failed to create run directory: %w", err)
	}

	logFile, err := os.OpenFile(filepath.Join(dir, "run.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("evidence: failed to open run log: %w", err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(logFile), zapcore.DebugLevel)

	r := &Recorder{
		dir:     dir,
		runID:   runID,
		started: now,
		logger:  logger.Named("evidence"),
		runLog:  zap.New(core).Named("run"),
		logFile: logFile,
	}
	r.runLog.Info("Run started", zap.String("run_id", runID), zap.String("dir", dir))
	return r, nil
}

// Dir returns the per-run evidence directory.
func (r *Recorder) Dir() string {
	return r.dir
}

// Capture takes a screenshot and appends a record for it. A capture failure
// is not fatal: the record is kept without a file and the failure is logged.
func (r *Recorder) Capture(ctx context.Context, shot Screenshotter, label string) Record {
	return r.CaptureWithNote(ctx, shot, label, "", "")
}

// CaptureWithNote is Capture with the page URL and a free-form note attached
// to the record.
func (r *Recorder) CaptureWithNote(ctx context.Context, shot Screenshotter, label, url, note string) Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		r.logger.Warn("Capture after recorder close ignored", zap.String("label", label))
		return Record{}
	}

	r.seq++
	now := time.Now()
	rec := Record{
		Seq:       r.seq,
		Label:     label,
		Timestamp: now,
		URL:       url,
		Note:      note,
	}

	if shot != nil {
		name := fmt.Sprintf("%02d_%s_%s.png", r.seq, label, now.Format("20060102T150405.000"))
		if data, err := shot.Screenshot(ctx); err != nil {
			r.runLog.Warn("Screenshot capture failed, keeping log-only record",
				zap.String("label", label), zap.Error(err))
		} else if err := os.WriteFile(filepath.Join(r.dir, name), data, 0o644); err != nil {
			r.runLog.Warn("Screenshot write failed, keeping log-only record",
				zap.String("label", label), zap.Error(err))
		} else {
			rec.File = name
		}
	}

	r.records = append(r.records, rec)
	r.runLog.Info("Evidence recorded",
		zap.Int("seq", rec.Seq),
		zap.String("label", rec.Label),
		zap.String("file", rec.File),
		zap.String("url", rec.URL),
		zap.String("note", rec.Note),
	)
	return rec
}

// Log exposes the run-scoped structured logger so session steps land in the
// evidence directory alongside the screenshots.
func (r *Recorder) Log() *zap.Logger {
	return r.runLog
}

// Records returns a copy of the records accumulated so far.
func (r *Recorder) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}

// Close finalizes the run: writes manifest.json with the given outcome and
// closes the run log. Subsequent captures are ignored. Idempotent.
func (r *Recorder) Close(outcome string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	manifest := Manifest{
		RunID:      r.runID,
		StartedAt:  r.started,
		FinishedAt: time.Now(),
		Outcome:    outcome,
		Records:    r.records,
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("evidence: failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(r.dir, "manifest.json"), data, 0o644); err != nil {
		return fmt.Errorf("evidence: failed to write manifest: %w", err)
	}

	r.runLog.Info("Run finished", zap.String("outcome", outcome), zap.Int("records", len(r.records)))
	_ = r.runLog.Sync()
	if err := r.logFile.Close(); err != nil {
		r.logger.Warn("Failed to close run log file", zap.Error(err))
	}
	return nil
}
