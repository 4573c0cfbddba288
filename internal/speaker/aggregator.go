// Package speaker converts per-word speaker tags from provider results
// into stable speaker segments and cumulative per-speaker timings.
package speaker

import (
	"time"

	"clinical-transcription-service/internal/models"
)

const (
	// mergeGapThreshold is the maximum gap between adjacent segments for a
	// weak-transition merge to apply.
	mergeGapThreshold = 2000 * time.Millisecond
	// weakConfidence is the confidence below which a transition is
	// considered noise when the gap is short.
	weakConfidence = 0.7

	speechConfidence    = 1.0
	nonSpeechConfidence = 0.7
)

// Segment is one speaker turn: who was speaking and from when, with the
// attribution confidence of the result that opened the turn.
type Segment struct {
	Speaker    string    `json:"speaker"`
	Time       time.Time `json:"time"`
	Confidence float64   `json:"confidence"`
}

// State tracks speaker attribution across one session. Not safe for
// concurrent use; the orchestrator serializes access per session.
type State struct {
	LastSpeaker     string
	LastSpeakerTime time.Time
	Segments        []Segment
	Timings         map[string]time.Duration
}

// NewState returns an empty attribution state.
func NewState() *State {
	return &State{Timings: make(map[string]time.Duration)}
}

// Observe attributes one transcript result to a speaker. The majority
// speaker across the result's word tags wins, ties broken by first-seen
// id. Confidence is the mean per-word confidence: actual speech counts
// 1.0, any other token 0.7. A speaker change closes out the previous
// speaker's cumulative duration and opens a new segment at now.
//
// Returns the attributed speaker and confidence. An empty tag list leaves
// the state unchanged and returns the last known speaker.
func (s *State) Observe(words []models.WordTag, now time.Time) (string, float64) {
	if len(words) == 0 {
		return s.LastSpeaker, 0
	}

	counts := make(map[string]int)
	var order []string
	var confSum float64
	for _, w := range words {
		if _, seen := counts[w.Speaker]; !seen {
			order = append(order, w.Speaker)
		}
		counts[w.Speaker]++
		if w.Type == models.WordTypeSpeech {
			confSum += speechConfidence
		} else {
			confSum += nonSpeechConfidence
		}
	}

	majority := order[0]
	for _, sp := range order[1:] {
		if counts[sp] > counts[majority] {
			majority = sp
		}
	}
	confidence := confSum / float64(len(words))

	if majority != s.LastSpeaker {
		if s.LastSpeaker != "" {
			s.Timings[s.LastSpeaker] += now.Sub(s.LastSpeakerTime)
		}
		s.Segments = append(s.Segments, Segment{Speaker: majority, Time: now, Confidence: confidence})
		s.LastSpeaker = majority
		s.LastSpeakerTime = now
	}
	return majority, confidence
}

// CloseOut folds the open speaker turn into the cumulative timings.
// Called when the session stops.
func (s *State) CloseOut(now time.Time) {
	if s.LastSpeaker != "" {
		s.Timings[s.LastSpeaker] += now.Sub(s.LastSpeakerTime)
		s.LastSpeakerTime = now
	}
}

// MergeWeakTransitions removes diarization flicker: a segment is dropped
// in favor of the immediately preceding kept segment when the gap between
// them is under the merge threshold and either segment's confidence is
// below the weak-confidence cutoff. Legitimate fast turn-takes survive
// because both sides are high-confidence.
func MergeWeakTransitions(segments []Segment) []Segment {
	if len(segments) < 2 {
		return segments
	}
	kept := []Segment{segments[0]}
	for _, seg := range segments[1:] {
		prev := kept[len(kept)-1]
		gap := seg.Time.Sub(prev.Time)
		if gap < mergeGapThreshold && (seg.Confidence < weakConfidence || prev.Confidence < weakConfidence) {
			continue
		}
		kept = append(kept, seg)
	}
	return kept
}

// MergeSegments runs the weak-transition merge over the state in place.
func (s *State) MergeSegments() {
	s.Segments = MergeWeakTransitions(s.Segments)
}
