package rooms

import (
	"time"

	"github.com/Homeroom-Remote/homeroom-server/internal/models"
)

type concentrationAcc struct {
	score   float64
	samples int
}

type expressionAcc struct {
	expressions []models.ExpressionVector
	samples     int
}

// TelemetryAggregator accumulates attention and expression samples between
// checkpoints. Samples are accepted for any connection key, queued or not: an
// accumulator is created on first sight, so samples from a key that
// disconnected mid-interval still count toward the next checkpoint. Not safe
// for concurrent use: callers serialize through the room lock.
type TelemetryAggregator struct {
	concentration map[string]*concentrationAcc
	expressions   map[string]*expressionAcc
}

func NewTelemetryAggregator() *TelemetryAggregator {
	return &TelemetryAggregator{
		concentration: make(map[string]*concentrationAcc),
		expressions:   make(map[string]*expressionAcc),
	}
}

// RecordConcentration adds one attention sample for the connection key.
func (t *TelemetryAggregator) RecordConcentration(key string, score float64) {
	if acc, ok := t.concentration[key]; ok {
		acc.score += score
		acc.samples++
		return
	}
	t.concentration[key] = &concentrationAcc{score: score, samples: 1}
}

// RecordExpressions adds one expression sample for the connection key.
func (t *TelemetryAggregator) RecordExpressions(key string, v models.ExpressionVector) {
	if acc, ok := t.expressions[key]; ok {
		acc.expressions = append(acc.expressions, v)
		acc.samples++
		return
	}
	t.expressions[key] = &expressionAcc{expressions: []models.ExpressionVector{v}, samples: 1}
}

// Checkpoint reduces all pending samples into one snapshot and clears both
// accumulator maps, so no sample is ever counted twice. Returns nil when
// there is nothing pending.
//
// The score is normalized by total sample weight, not a per-participant
// average: score = sum of sums / (mSamples * participants).
func (t *TelemetryAggregator) Checkpoint(now time.Time) *models.CheckpointLog {
	var concentration *models.ConcentrationSummary
	var expressions *models.ExpressionSummary

	if len(t.concentration) > 0 {
		nParticipants := len(t.concentration)
		var mSamples float64
		var score float64

		for _, acc := range t.concentration {
			mSamples += float64(acc.samples)
			score += acc.score
		}

		mSamples /= float64(nParticipants)
		score /= mSamples * float64(nParticipants)

		concentration = &models.ConcentrationSummary{
			Participants: nParticipants,
			MSamples:     mSamples,
			Score:        score,
		}
		t.concentration = make(map[string]*concentrationAcc)
	}

	if len(t.expressions) > 0 {
		nParticipants := len(t.expressions)
		var mSamples float64
		var sum models.ExpressionVector

		for _, acc := range t.expressions {
			mSamples += float64(acc.samples)
			for _, v := range acc.expressions {
				sum = sum.Add(v)
			}
		}

		mSamples /= float64(nParticipants)

		expressions = &models.ExpressionSummary{
			Participants: nParticipants,
			MSamples:     mSamples,
			Expressions:  sum.Scale(1 / (mSamples * float64(nParticipants))),
		}
		t.expressions = make(map[string]*expressionAcc)
	}

	if concentration == nil && expressions == nil {
		return nil
	}

	return &models.CheckpointLog{
		Concentration: concentration,
		Expressions:   expressions,
		At:            now,
	}
}
