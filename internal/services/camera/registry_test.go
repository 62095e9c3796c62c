package camera

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"attendance-worker-go/internal/config"
	"attendance-worker-go/internal/models"
)

type fakeSource struct {
	cameraID string

	mu     sync.Mutex
	seq    int64
	closed int
}

func (s *fakeSource) Read() (models.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return models.Frame{
		CameraID:  s.cameraID,
		Data:      []byte{1, 2, 3},
		Width:     1,
		Height:    1,
		Seq:       s.seq,
		Timestamp: time.Now(),
	}, nil
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *fakeSource) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeOpener struct {
	mu      sync.Mutex
	opens   int
	sources []*fakeSource
	err     error
}

func (o *fakeOpener) open(cameraID string, cfg *config.Config) (VideoSource, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	o.opens++
	s := &fakeSource{cameraID: cameraID}
	o.sources = append(o.sources, s)
	return s, nil
}

func (o *fakeOpener) openCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens
}

func testConfig() *config.Config {
	return &config.Config{FrameInterval: time.Millisecond}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestAcquireSharesSingleHandle(t *testing.T) {
	opener := &fakeOpener{}
	r := NewRegistry(testConfig(), opener.open)

	h1, err := r.Acquire("cam-1")
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	h2, err := r.Acquire("cam-1")
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}

	if h1 != h2 {
		t.Error("expected both acquires to share one handle")
	}
	if got := opener.openCount(); got != 1 {
		t.Errorf("expected 1 open, got %d", got)
	}
	if got := r.OpenCount(); got != 1 {
		t.Errorf("expected 1 registered handle, got %d", got)
	}

	r.Release(h1)
	r.Release(h2)
}

func TestReleaseKeepsSharedGrabberAlive(t *testing.T) {
	opener := &fakeOpener{}
	r := NewRegistry(testConfig(), opener.open)

	h1, _ := r.Acquire("cam-1")
	h2, _ := r.Acquire("cam-1")

	r.Release(h1)

	waitFor(t, "first frame", func() bool {
		_, ok := h2.LatestFrame()
		return ok
	})
	if got := opener.sources[0].closeCount(); got != 0 {
		t.Errorf("source closed %d times while a reader remains", got)
	}

	r.Release(h2)
}

func TestLastReleaseClosesSourceOnce(t *testing.T) {
	opener := &fakeOpener{}
	r := NewRegistry(testConfig(), opener.open)

	h, _ := r.Acquire("cam-1")
	r.Release(h)

	waitFor(t, "teardown", func() bool { return r.OpenCount() == 0 })
	if got := opener.sources[0].closeCount(); got != 1 {
		t.Errorf("expected source closed exactly once, got %d", got)
	}

	// Extra release of a torn-down handle is a no-op.
	r.Release(h)
	if got := opener.sources[0].closeCount(); got != 1 {
		t.Errorf("release after teardown closed source again: %d", got)
	}
}

func TestReacquireAfterTeardownOpensFresh(t *testing.T) {
	opener := &fakeOpener{}
	r := NewRegistry(testConfig(), opener.open)

	h1, _ := r.Acquire("cam-1")
	r.Release(h1)

	// A racing acquire must wait out the in-flight teardown and open a new
	// source instead of reusing the dead handle.
	h2, err := r.Acquire("cam-1")
	if err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	if h2 == h1 {
		t.Error("reacquire returned the torn-down handle")
	}
	if got := opener.openCount(); got != 2 {
		t.Errorf("expected 2 opens, got %d", got)
	}

	waitFor(t, "fresh frame", func() bool {
		_, ok := h2.LatestFrame()
		return ok
	})

	r.Release(h2)
}

func TestAcquireUnavailableCamera(t *testing.T) {
	opener := &fakeOpener{err: fmt.Errorf("no such device")}
	r := NewRegistry(testConfig(), opener.open)

	h, err := r.Acquire("cam-404")
	if h != nil {
		t.Error("expected nil handle for unavailable camera")
	}
	if !errors.Is(err, ErrCameraUnavailable) {
		t.Errorf("expected ErrCameraUnavailable, got %v", err)
	}
	if got := r.OpenCount(); got != 0 {
		t.Errorf("failed open left %d handles registered", got)
	}
}

func TestGrabberRefreshesLatestFrame(t *testing.T) {
	opener := &fakeOpener{}
	r := NewRegistry(testConfig(), opener.open)

	h, _ := r.Acquire("cam-1")
	defer r.Release(h)

	waitFor(t, "first frame", func() bool {
		_, ok := h.LatestFrame()
		return ok
	})

	first, _ := h.LatestFrame()
	waitFor(t, "newer frame", func() bool {
		f, _ := h.LatestFrame()
		return f.Seq > first.Seq
	})
}
