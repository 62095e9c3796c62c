package recognition

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"attendance-worker-go/internal/config"
	"attendance-worker-go/internal/models"
	"attendance-worker-go/internal/store"
)

// Snapshot is one immutable generation of the signature cache. Vectors[i]
// belongs to People[i]; every vector is unit-normalized.
type Snapshot struct {
	Vectors     [][]float32
	People      []models.Person
	RefreshedAt time.Time
}

// SignatureCache caches the known-face roster. The whole snapshot is
// rebuilt from the store when older than the refresh interval and replaced
// atomically, so readers never observe a mix of two generations.
type SignatureCache struct {
	store        store.Store
	dim          int
	refreshEvery time.Duration

	refreshMu sync.Mutex
	current   atomic.Pointer[Snapshot]
}

// NewSignatureCache creates an empty cache; the first Get populates it.
func NewSignatureCache(cfg *config.Config, st store.Store) *SignatureCache {
	return &SignatureCache{
		store:        st,
		dim:          cfg.SignatureDim,
		refreshEvery: cfg.SignatureRefresh,
	}
}

// Get returns the current snapshot, rebuilding it synchronously when stale.
// If the store is unreachable the stale snapshot is kept and returned —
// availability over freshness.
func (c *SignatureCache) Get(ctx context.Context) *Snapshot {
	if snap := c.current.Load(); snap != nil && time.Since(snap.RefreshedAt) <= c.refreshEvery {
		return snap
	}

	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	// Another caller may have refreshed while we waited for the lock.
	if snap := c.current.Load(); snap != nil && time.Since(snap.RefreshedAt) <= c.refreshEvery {
		return snap
	}

	records, err := c.store.ListSignatures(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Signature refresh failed, keeping stale snapshot")
		if snap := c.current.Load(); snap != nil {
			return snap
		}
		return &Snapshot{}
	}

	snap := c.build(records)
	c.current.Store(snap)

	log.Info().Int("signatures", len(snap.Vectors)).Msg("Signature cache refreshed")
	return snap
}

func (c *SignatureCache) build(records []models.SignatureRecord) *Snapshot {
	snap := &Snapshot{
		Vectors:     make([][]float32, 0, len(records)),
		People:      make([]models.Person, 0, len(records)),
		RefreshedAt: time.Now(),
	}

	for _, rec := range records {
		if len(rec.Vector) != c.dim {
			log.Warn().Int64("person_id", rec.PersonID).Int("dim", len(rec.Vector)).
				Msg("Skipping signature with unexpected dimensionality")
			continue
		}
		vec, ok := normalize(rec.Vector)
		if !ok {
			log.Warn().Int64("person_id", rec.PersonID).Msg("Skipping zero-norm signature")
			continue
		}
		snap.Vectors = append(snap.Vectors, vec)
		snap.People = append(snap.People, rec.Person)
	}

	return snap
}

// normalize returns a fresh unit-length copy of v. The bool is false for a
// zero vector.
func normalize(v []float32) ([]float32, bool) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return nil, false
	}

	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out, true
}

// euclidean returns the L2 distance between two vectors of equal length.
// On unit vectors it is monotonic with cosine distance.
func euclidean(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
