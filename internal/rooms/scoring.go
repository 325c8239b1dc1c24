package rooms

import (
	"math"
	"math/rand"

	"github.com/Homeroom-Remote/homeroom-server/internal/config"
	"github.com/Homeroom-Remote/homeroom-server/internal/models"
)

// ScoringEngine computes the end-of-meeting engagement score. It is a pure
// reduction over the checkpoint and engagement logs; the random source for
// tip selection is injected so tests can pin it.
type ScoringEngine struct {
	system config.ScoringSystem
	rng    *rand.Rand
}

func NewScoringEngine(system config.ScoringSystem, rng *rand.Rand) *ScoringEngine {
	return &ScoringEngine{system: system, rng: rng}
}

// Calculate scores the meeting in three weighted dimensions: engagement
// (question/chat rates against target rates), concentration (checkpoint
// means) and expressions (weighted component mix mapped from [-1,1] to
// [0,100]). Returns nil for meetings below the minimum scoreable length.
func (e *ScoringEngine) Calculate(
	checkpoints []models.CheckpointLog,
	engagementEvents []models.EngagementEvent,
	durationSeconds float64,
) *models.ScoreResult {
	sys := e.system
	durationMinutes := durationSeconds / 60

	if durationMinutes < sys.MinMeetingMinutes {
		return nil
	}

	var tips []string
	var score float64

	// Engagement: averages per minute normalized against the target rates,
	// each mark capped at 100 before weighting.
	averageQuestionsPerMinute := countEvents(engagementEvents, models.EngagementQuestion) / durationMinutes
	averageChatMessagesPerMinute := countEvents(engagementEvents, models.EngagementChat) / durationMinutes

	questionsMark := averageQuestionsPerMinute / (sys.QuestionRequirements[0] / sys.QuestionRequirements[1]) * 100
	chatMark := averageChatMessagesPerMinute / (sys.ChatRequirements[0] / sys.ChatRequirements[1]) * 100

	score += math.Min(100, questionsMark) * sys.Questions
	score += math.Min(100, chatMark) * sys.Chat

	if questionsMark >= sys.GoodTipThreshold {
		tips = append(tips, e.randomTip(sys.Tips.QuestionsGood))
	} else {
		tips = append(tips, e.randomTip(sys.Tips.QuestionsBad))
	}

	// Concentration: a running fold over the checkpoint log. A checkpoint
	// without a concentration summary (or with a zero score) carries the
	// accumulator forward by adding it to itself, not by adding zero.
	var concentrationAcc float64
	for _, cp := range checkpoints {
		if cp.Concentration != nil && cp.Concentration.Score != 0 {
			concentrationAcc += cp.Concentration.Score
		} else {
			concentrationAcc += concentrationAcc
		}
	}
	var concentrationMark float64
	if len(checkpoints) > 0 {
		concentrationMark = concentrationAcc / float64(len(checkpoints))
	}

	score += math.Min(100, concentrationMark*100) * sys.Concentration

	if concentrationMark >= sys.ConcentrationRequirements {
		tips = append(tips, e.randomTip(sys.Tips.ConcentrationGood))
	} else {
		tips = append(tips, e.randomTip(sys.Tips.ConcentrationBad))
	}

	// Expressions: weighted linear combination of the named components across
	// checkpoints that carry an expression summary. Surprised is weighted by
	// the sign of the accumulator so far, then the total is rounded to two
	// decimals before dividing by the number of contributing checkpoints.
	weights := sys.ExpressionsScoring
	var expressionsAcc float64
	var surprised float64
	var relevantLogs int

	for _, cp := range checkpoints {
		if cp.Expressions == nil {
			continue
		}
		relevantLogs++
		v := cp.Expressions.Expressions
		surprised += v.Surprised
		expressionsAcc += v.Neutral * weights.Neutral
		expressionsAcc += v.Happy * weights.Happy
		expressionsAcc += v.Sad * weights.Sad
		expressionsAcc += v.Disgusted * weights.Disgusted
		expressionsAcc += v.Fearful * weights.Fearful
	}

	if expressionsAcc < 0 {
		expressionsAcc += surprised * weights.SurprisedIfPositive
	} else {
		expressionsAcc += surprised * weights.SurprisedIfNegative
	}

	if relevantLogs > 0 {
		expressionsAcc = round2(expressionsAcc) / float64(relevantLogs)
		score += math.Max(0, math.Min((expressionsAcc+1)*100, 100)*sys.Expressions)
	} else {
		// No expression samples at all: the dimension contributes nothing.
		expressionsAcc = 0
	}

	if relevantLogs > 0 && expressionsAcc >= sys.ExpressionsRequirements {
		tips = append(tips, e.randomTip(sys.Tips.ExpressionsGood))
	} else {
		tips = append(tips, e.randomTip(sys.Tips.ExpressionsBad))
	}

	return &models.ScoreResult{
		Score: round2(score),
		Tips:  tips,
	}
}

func (e *ScoringEngine) randomTip(pool []string) string {
	if len(pool) == 0 {
		return ""
	}
	return pool[e.rng.Intn(len(pool))]
}

func countEvents(events []models.EngagementEvent, tag string) float64 {
	var n float64
	for _, ev := range events {
		if ev.Event == tag {
			n++
		}
	}
	return n
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
