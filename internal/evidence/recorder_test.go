// File: internal/evidence/recorder_test.go
package evidence

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeShot returns canned bytes or a canned error.
type fakeShot struct {
	data []byte
	err  error
}

func (f *fakeShot) Screenshot(context.Context) ([]byte, error) {
	return f.data, f.err
}

func newTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	r, err := NewRecorder(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	return r
}

func TestRecorderWritesScreenshotAndRecord(t *testing.T) {
	r := newTestRecorder(t)
	shot := &fakeShot{data: []byte("png-bytes")}

	rec := r.CaptureWithNote(context.Background(), shot, LabelLoginLoaded, "https://example.com/login", "")

	assert.Equal(t, 1, rec.Seq)
	assert.Equal(t, LabelLoginLoaded, rec.Label)
	assert.Equal(t, "https://example.com/login", rec.URL)
	require.NotEmpty(t, rec.File)

	data, err := os.ReadFile(filepath.Join(r.Dir(), rec.File))
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data)

	require.NoError(t, r.Close("success"))
}

func TestRecorderDegradesToLogOnlyOnScreenshotFailure(t *testing.T) {
	r := newTestRecorder(t)
	shot := &fakeShot{err: errors.New("target crashed")}

	rec := r.Capture(context.Background(), shot, LabelAttemptFailed)

	assert.Empty(t, rec.File, "failed capture must keep a log-only record")
	assert.Equal(t, LabelAttemptFailed, rec.Label)
	assert.Len(t, r.Records(), 1)

	require.NoError(t, r.Close("failed"))
}

func TestRecorderSequencesRecords(t *testing.T) {
	r := newTestRecorder(t)
	shot := &fakeShot{data: []byte("x")}

	for _, label := range []string{LabelLoginLoaded, LabelCredentialsEntered, LabelSuccess} {
		r.Capture(context.Background(), shot, label)
	}

	recs := r.Records()
	require.Len(t, recs, 3)
	for i, rec := range recs {
		assert.Equal(t, i+1, rec.Seq)
	}
	assert.Equal(t, LabelSuccess, recs[2].Label)
}

func TestRecorderCloseWritesManifest(t *testing.T) {
	r := newTestRecorder(t)
	r.Capture(context.Background(), &fakeShot{data: []byte("x")}, LabelLoginLoaded)

	require.NoError(t, r.Close("challenge_pending"))

	data, err := os.ReadFile(filepath.Join(r.Dir(), "manifest.json"))
	require.NoError(t, err)

	var m Manifest
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "challenge_pending", m.Outcome)
	require.Len(t, m.Records, 1)
	assert.Equal(t, LabelLoginLoaded, m.Records[0].Label)
	assert.False(t, m.FinishedAt.Before(m.StartedAt))

	// Close is idempotent and captures after close are ignored.
	require.NoError(t, r.Close("success"))
	rec := r.Capture(context.Background(), &fakeShot{data: []byte("x")}, LabelSuccess)
	assert.Zero(t, rec.Seq)
	assert.Len(t, r.Records(), 1)
}

func TestChallengeLabel(t *testing.T) {
	assert.Equal(t, "captcha_detected", ChallengeLabel("captcha"))
	assert.Equal(t, "two_factor_detected", ChallengeLabel("two_factor"))
}
