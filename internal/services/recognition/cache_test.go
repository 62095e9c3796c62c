package recognition

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"attendance-worker-go/internal/config"
	"attendance-worker-go/internal/models"
)

type fakeStore struct {
	mu   sync.Mutex
	sigs []models.SignatureRecord
	err  error

	listCalls int
}

func (s *fakeStore) ListSignatures(ctx context.Context) ([]models.SignatureRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	if s.err != nil {
		return nil, s.err
	}
	return s.sigs, nil
}

func (s *fakeStore) GetOrOpenAttendance(ctx context.Context, personID int64, day, now time.Time) (*models.AttendanceRecord, bool, error) {
	return nil, false, fmt.Errorf("not implemented")
}

func (s *fakeStore) GetOpenAttendance(ctx context.Context, personID int64, day time.Time) (*models.AttendanceRecord, error) {
	return nil, fmt.Errorf("not implemented")
}

func (s *fakeStore) UpdateAttendance(ctx context.Context, rec *models.AttendanceRecord) error {
	return fmt.Errorf("not implemented")
}

func (s *fakeStore) SaveSnapshot(ctx context.Context, attendanceID, personID int64, image []byte) (string, error) {
	return "", fmt.Errorf("not implemented")
}

func sigRecord(personID int64, vec []float32) models.SignatureRecord {
	return models.SignatureRecord{
		PersonID: personID,
		Vector:   vec,
		Person:   models.Person{ID: personID, Username: fmt.Sprintf("user-%d", personID)},
	}
}

func cacheConfig(dim int, refresh time.Duration) *config.Config {
	return &config.Config{SignatureDim: dim, SignatureRefresh: refresh}
}

func TestCacheNormalizesVectors(t *testing.T) {
	st := &fakeStore{sigs: []models.SignatureRecord{
		sigRecord(1, []float32{3, 0, 0}),
	}}
	c := NewSignatureCache(cacheConfig(3, time.Hour), st)

	snap := c.Get(context.Background())
	if len(snap.Vectors) != 1 {
		t.Fatalf("expected 1 vector, got %d", len(snap.Vectors))
	}

	var norm float64
	for _, x := range snap.Vectors[0] {
		norm += float64(x) * float64(x)
	}
	if math.Abs(norm-1) > 1e-6 {
		t.Errorf("vector not unit-normalized, squared norm = %f", norm)
	}
	if snap.People[0].ID != 1 {
		t.Errorf("person misaligned with vector: got id %d", snap.People[0].ID)
	}
}

func TestCacheSkipsBadSignatures(t *testing.T) {
	st := &fakeStore{sigs: []models.SignatureRecord{
		sigRecord(1, []float32{1, 0, 0}),
		sigRecord(2, []float32{1, 0}),    // wrong dimensionality
		sigRecord(3, []float32{0, 0, 0}), // zero norm
		sigRecord(4, []float32{0, 2, 0}),
	}}
	c := NewSignatureCache(cacheConfig(3, time.Hour), st)

	snap := c.Get(context.Background())
	if len(snap.Vectors) != 2 {
		t.Fatalf("expected 2 usable vectors, got %d", len(snap.Vectors))
	}
	if snap.People[0].ID != 1 || snap.People[1].ID != 4 {
		t.Errorf("unexpected people kept: %d, %d", snap.People[0].ID, snap.People[1].ID)
	}
	if len(snap.Vectors) != len(snap.People) {
		t.Error("vectors and people diverged")
	}
}

func TestCacheServesWithinRefreshInterval(t *testing.T) {
	st := &fakeStore{sigs: []models.SignatureRecord{sigRecord(1, []float32{1, 0, 0})}}
	c := NewSignatureCache(cacheConfig(3, time.Hour), st)

	first := c.Get(context.Background())
	second := c.Get(context.Background())
	if first != second {
		t.Error("expected the same snapshot within the refresh interval")
	}

	st.mu.Lock()
	calls := st.listCalls
	st.mu.Unlock()
	if calls != 1 {
		t.Errorf("expected 1 store read, got %d", calls)
	}
}

func TestCacheKeepsStaleSnapshotOnStoreError(t *testing.T) {
	// Zero refresh interval forces a refresh attempt on every Get.
	st := &fakeStore{sigs: []models.SignatureRecord{sigRecord(1, []float32{1, 0, 0})}}
	c := NewSignatureCache(cacheConfig(3, 0), st)

	good := c.Get(context.Background())
	if len(good.Vectors) != 1 {
		t.Fatalf("expected 1 vector in healthy snapshot, got %d", len(good.Vectors))
	}

	st.mu.Lock()
	st.err = fmt.Errorf("connection refused")
	st.mu.Unlock()

	stale := c.Get(context.Background())
	if len(stale.Vectors) != 1 {
		t.Errorf("store failure lost the stale snapshot: %d vectors", len(stale.Vectors))
	}
}

func TestCacheEmptyWhenStoreNeverReachable(t *testing.T) {
	st := &fakeStore{err: fmt.Errorf("connection refused")}
	c := NewSignatureCache(cacheConfig(3, time.Hour), st)

	snap := c.Get(context.Background())
	if snap == nil {
		t.Fatal("expected non-nil snapshot")
	}
	if len(snap.Vectors) != 0 {
		t.Errorf("expected empty snapshot, got %d vectors", len(snap.Vectors))
	}
}

func TestEuclideanDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 0},
		{"orthogonal units", []float32{1, 0, 0}, []float32{0, 1, 0}, math.Sqrt2},
		{"opposite units", []float32{1, 0, 0}, []float32{-1, 0, 0}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := euclidean(tt.a, tt.b); math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("euclidean(%v, %v) = %f, want %f", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
