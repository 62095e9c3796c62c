package recognition

import (
	"context"
	"image"
	"time"

	"github.com/rs/zerolog/log"

	"attendance-worker-go/internal/config"
	"attendance-worker-go/internal/models"
)

// SightingSink receives accepted matches without blocking the frame loop.
// Offer reports whether the sighting was queued.
type SightingSink interface {
	Offer(personID int64, faceCrop []byte, at time.Time) bool
}

// Matcher runs the per-frame detection and identification pass: downscale,
// detect, size-gate, nearest-signature match, threshold gating, and the
// fire-and-forget handoff of accepted sightings to the presence tracker.
type Matcher struct {
	cfg      *config.Config
	cache    *SignatureCache
	detector Detector
	ops      ImageOps
	sink     SightingSink
}

// NewMatcher wires a matcher. sink may be nil when presence bookkeeping is
// not wanted (e.g. a preview-only viewer).
func NewMatcher(cfg *config.Config, cache *SignatureCache, detector Detector, ops ImageOps, sink SightingSink) *Matcher {
	return &Matcher{
		cfg:      cfg,
		cache:    cache,
		detector: detector,
		ops:      ops,
		sink:     sink,
	}
}

// ProcessFrame produces one MatchResult per kept detection. Faces that fail
// either acceptance gate come back with a nil PersonID; zero detections
// yield an empty, non-nil slice so the frame is still published.
func (m *Matcher) ProcessFrame(ctx context.Context, frame models.Frame) ([]models.MatchResult, error) {
	if frame.Empty() {
		return []models.MatchResult{}, nil
	}

	// Hold one snapshot for the whole pass so a concurrent refresh cannot
	// change the vector set mid-comparison.
	snap := m.cache.Get(ctx)

	small := frame
	scaleX, scaleY := 1.0, 1.0
	if frame.Width > m.cfg.WorkingWidth {
		var err error
		small, err = m.ops.Downscale(frame, m.cfg.WorkingWidth)
		if err != nil {
			return nil, err
		}
		scaleX = float64(frame.Width) / float64(small.Width)
		scaleY = float64(frame.Height) / float64(small.Height)
	}

	boxes, err := m.detector.Locate(small)
	if err != nil {
		return nil, err
	}

	// Size gate runs in downscaled coordinates, so the threshold shrinks by
	// the same factor. Cheap rejection before descriptors are computed.
	minSide := int(float64(m.cfg.MinFaceSize) / scaleX)
	if minSide < 1 {
		minSide = 1
	}
	kept := boxes[:0]
	for _, box := range boxes {
		if box.Dx() >= minSide && box.Dy() >= minSide {
			kept = append(kept, box)
		}
	}
	if len(kept) == 0 {
		return []models.MatchResult{}, nil
	}

	// With an empty roster there is nothing to match against: every face is
	// reported unidentified and the descriptor pass is skipped entirely.
	var vectors [][]float32
	if len(snap.Vectors) > 0 {
		vectors, err = m.detector.Describe(small, kept)
		if err != nil {
			return nil, err
		}
	}

	results := make([]models.MatchResult, 0, len(kept))
	for i, box := range kept {
		srcBox := scaleRect(box, scaleX, scaleY).Intersect(image.Rect(0, 0, frame.Width, frame.Height))
		result := models.MatchResult{
			BBox: [4]int{srcBox.Min.X, srcBox.Min.Y, srcBox.Max.X, srcBox.Max.Y},
		}

		if vectors != nil {
			m.identify(ctx, frame, srcBox, vectors[i], snap, &result)
		}
		results = append(results, result)
	}

	return results, nil
}

// identify fills result with the nearest-signature match when it clears
// both gates: distance strictly below the acceptance threshold, and derived
// confidence (1 - distance) at or above the floor. The distance gate is
// checked first and is authoritative.
func (m *Matcher) identify(ctx context.Context, frame models.Frame, srcBox image.Rectangle, raw []float32, snap *Snapshot, result *models.MatchResult) {
	probe, ok := normalize(raw)
	if !ok {
		return
	}

	best := -1
	bestDist := 0.0
	for j, sig := range snap.Vectors {
		if len(sig) != len(probe) {
			continue
		}
		d := euclidean(probe, sig)
		if best == -1 || d < bestDist {
			best = j
			bestDist = d
		}
	}
	if best == -1 || bestDist >= m.cfg.DistanceThreshold {
		return
	}
	confidence := 1 - bestDist
	if confidence < m.cfg.ConfidenceFloor {
		return
	}

	person := snap.People[best]
	personID := person.ID
	result.PersonID = &personID
	result.Confidence = confidence
	result.Name = person.DisplayName()
	result.Role = person.DisplayRole()
	result.DisplayID = person.DisplayID()

	if crop, err := m.ops.CropJPEG(frame, srcBox, m.cfg.CropSize, m.cfg.CropQuality); err == nil {
		result.Crop = crop
	} else {
		log.Debug().Err(err).Int64("person_id", personID).Msg("Stream crop failed")
	}

	if m.sink == nil {
		return
	}
	snapshot, err := m.ops.CropJPEG(frame, srcBox, 0, m.cfg.SnapshotQuality)
	if err != nil {
		log.Warn().Err(err).Int64("person_id", personID).Msg("Snapshot crop failed")
		return
	}
	at := frame.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	if !m.sink.Offer(personID, snapshot, at) {
		log.Debug().Int64("person_id", personID).Msg("Dropped sighting - queue full")
	}
}

func scaleRect(r image.Rectangle, scaleX, scaleY float64) image.Rectangle {
	return image.Rect(
		int(float64(r.Min.X)*scaleX),
		int(float64(r.Min.Y)*scaleY),
		int(float64(r.Max.X)*scaleX),
		int(float64(r.Max.Y)*scaleY),
	)
}
