package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/YuminosukeSato/hotelres/internal/config"
)

func TestModelHolderRejectsUnservableBundle(t *testing.T) {
	h := NewModelHolder(filepath.Join(t.TempDir(), "missing.gob"), NewMetrics())
	require.Error(t, h.Load())
	assert.False(t, h.Loaded())

	b := testBundle(t, "run-1")
	b.FeatureNames[0] = "no_of_adults"
	assert.Error(t, h.Set(b))
	assert.Error(t, h.Set(nil))
	assert.False(t, h.Loaded())

	good := testBundle(t, "run-2")
	require.NoError(t, h.Set(good))
	assert.Same(t, good, h.Get())
}

// verifyNoLeaks checks for goroutines left behind once the test and its
// cleanups finish. The opencensus view worker is started at init by the
// storage client and never stops.
func verifyNoLeaks(t *testing.T) {
	t.Helper()
	opts := []goleak.Option{
		goleak.IgnoreCurrent(),
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	}
	t.Cleanup(func() { goleak.VerifyNone(t, opts...) })
}

func waitReady(t *testing.T, w *ModelWatcher) {
	t.Helper()
	select {
	case <-w.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not start")
	}
}

// waitReload waits for a reload attempt whose outcome satisfies ok.
func waitReload(t *testing.T, w *ModelWatcher, ok func(error) bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case err := <-w.reloaded:
			if ok(err) {
				return
			}
		case <-deadline:
			t.Fatal("expected reload did not happen")
		}
	}
}

func TestModelWatcherReloads(t *testing.T) {
	verifyNoLeaks(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "models", "lgbm_model.gob")
	first := testBundle(t, "run-1")
	require.NoError(t, first.Save(path))

	h := NewModelHolder(path, NewMetrics())
	require.NoError(t, h.Load())

	w := NewModelWatcher(h, 20*time.Millisecond)
	w.reloaded = make(chan error, 32)
	ctx, cancel := context.WithCancel(context.Background())
	var serveErr error
	stopped := make(chan struct{})
	go func() {
		serveErr = w.Serve(ctx)
		close(stopped)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})
	waitReady(t, w)

	second := testBundle(t, "run-2")
	require.NoError(t, second.Save(path))
	waitReload(t, w, func(err error) bool { return err == nil && h.Get().RunID == "run-2" })

	// a broken file is rejected and the previous model keeps serving
	require.NoError(t, os.WriteFile(path, []byte("not a bundle"), 0o600))
	waitReload(t, w, func(err error) bool { return err != nil })
	assert.Equal(t, "run-2", h.Get().RunID)

	cancel()
	<-stopped
	assert.ErrorIs(t, serveErr, context.Canceled)
}

func TestModelWatcherMissingDirectory(t *testing.T) {
	verifyNoLeaks(t)

	h := NewModelHolder(filepath.Join(t.TempDir(), "nope", "model.gob"), NewMetrics())
	w := NewModelWatcher(h, 0)
	assert.Error(t, w.Serve(context.Background()))

	select {
	case <-w.Ready():
		t.Fatal("watcher reported ready without a watch")
	default:
	}
}

func TestSupervisorServesAndStops(t *testing.T) {
	verifyNoLeaks(t)

	cfg := config.Default()
	cfg.Paths.ArtifactsDir = t.TempDir()
	cfg.Server.RateLimitPerMinute = 0
	cfg.Server.ShutdownTimeout = 2 * time.Second
	modelPath := cfg.Paths.Resolve(cfg.Paths.ModelOutput)
	require.NoError(t, testBundle(t, "run-1").Save(modelPath))

	s := New(cfg)
	require.True(t, s.Model().Loaded())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	watcher := NewModelWatcher(s.Model(), 20*time.Millisecond)
	sup := NewSupervisor(s, ln, watcher)
	ctx, cancel := context.WithCancel(context.Background())
	var serveErr error
	stopped := make(chan struct{})
	go func() {
		serveErr = sup.Serve(ctx)
		close(stopped)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"model_loaded":true`)

	// a retrained bundle is picked up without a restart
	waitReady(t, watcher)
	require.NoError(t, testBundle(t, "run-2").Save(modelPath))
	require.Eventually(t, func() bool {
		return s.Model().Get().RunID == "run-2"
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case <-stopped:
		assert.ErrorIs(t, serveErr, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not stop")
	}
	client.CloseIdleConnections()
}
