package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all service configuration, loaded from environment variables
// with development defaults.
type Config struct {
	Port      string
	RedisAddr string
	JWTSecret string

	// CheckpointInterval drives the per-room telemetry checkpoint timer.
	CheckpointInterval time.Duration

	// LogThresholdSeconds is the minimum meeting duration before a session
	// log is flushed to the store on disposal.
	LogThresholdSeconds float64

	// ReaperSchedule is the cron spec for the stale-room sweep.
	ReaperSchedule string
	// StaleRoomAge is how long an empty room may linger before the reaper
	// disposes it.
	StaleRoomAge time.Duration

	Scoring ScoringSystem
}

// ScoringSystem configures the end-of-meeting score computation.
type ScoringSystem struct {
	// MinMeetingMinutes gates scoring entirely: shorter meetings get no score.
	MinMeetingMinutes float64

	// GoodTipThreshold is the question mark above which the "good" tip pool
	// is used for the engagement dimension.
	GoodTipThreshold float64

	// Weights of each dimension; they should sum to 1.
	Questions     float64
	Chat          float64
	Concentration float64
	Expressions   float64

	// Target rates as {count, minutes}: e.g. {1, 2} means one question every
	// two minutes earns the full mark.
	QuestionRequirements [2]float64
	ChatRequirements     [2]float64

	// Thresholds for picking good vs bad tips.
	ConcentrationRequirements float64
	ExpressionsRequirements   float64

	ExpressionsScoring ExpressionWeights
	Tips               TipPools
}

// ExpressionWeights are the per-component multipliers of the expression
// dimension. Surprised is weighted by SurprisedIfPositive when the running
// accumulator is negative and by SurprisedIfNegative otherwise.
type ExpressionWeights struct {
	Neutral             float64
	Happy               float64
	Sad                 float64
	Disgusted           float64
	Fearful             float64
	SurprisedIfPositive float64
	SurprisedIfNegative float64
}

// TipPools hold the remediation tips per dimension.
type TipPools struct {
	QuestionsGood     []string
	QuestionsBad      []string
	ConcentrationGood []string
	ConcentrationBad  []string
	ExpressionsGood   []string
	ExpressionsBad    []string
}

// Load reads configuration from the environment.
func Load() *Config {
	return &Config{
		Port:                getEnv("PORT", "8085"),
		RedisAddr:           getEnv("REDIS_ADDR", "localhost:6379"),
		JWTSecret:           getEnv("JWT_SECRET", "your-secret-key"),
		CheckpointInterval:  time.Duration(getEnvInt("CHECKPOINT_INTERVAL_SECONDS", 5)) * time.Second,
		LogThresholdSeconds: getEnvFloat("MEETING_LOG_THRESHOLD_SECONDS", 1000),
		ReaperSchedule:      getEnv("ROOM_REAPER_SCHEDULE", "@every 5m"),
		StaleRoomAge:        time.Duration(getEnvInt("STALE_ROOM_AGE_MINUTES", 60)) * time.Minute,
		Scoring:             DefaultScoringSystem(),
	}
}

// DefaultScoringSystem returns the scoring weights and tip pools used unless
// overridden.
func DefaultScoringSystem() ScoringSystem {
	sys := ScoringSystem{
		MinMeetingMinutes: getEnvFloat("MEETING_SCORE_THRESHOLD_MINUTES", 10),
		GoodTipThreshold:  80,
		Questions:         0.3,
		Chat:              0.1,
		Concentration:     0.3,
		Expressions:       0.3,

		QuestionRequirements: [2]float64{1, 2},
		ChatRequirements:     [2]float64{1, 1},

		ConcentrationRequirements: 0.5,
		ExpressionsRequirements:   0,

		ExpressionsScoring: ExpressionWeights{
			Neutral:             0.25,
			Happy:               1,
			Sad:                 -0.75,
			Disgusted:           -1,
			Fearful:             -0.75,
			SurprisedIfPositive: 0.5,
			SurprisedIfNegative: -0.5,
		},

		Tips: TipPools{
			QuestionsGood: []string{
				"Great level of questions, keep the discussion going.",
				"Participants asked plenty of questions, keep encouraging them.",
			},
			QuestionsBad: []string{
				"Few questions were asked. Try pausing to invite questions.",
				"Consider adding Q&A breaks to raise participation.",
			},
			ConcentrationGood: []string{
				"Concentration stayed high throughout the meeting.",
				"Attention levels were solid, your pacing works well.",
			},
			ConcentrationBad: []string{
				"Concentration dropped during the meeting. Shorter segments may help.",
				"Attention was low. Try interactive material to re-engage the room.",
			},
			ExpressionsGood: []string{
				"The room's mood was positive overall, keep it up.",
				"Participants responded well, the tone of the meeting landed.",
			},
			ExpressionsBad: []string{
				"The room's mood trended negative. Check in with participants more often.",
				"Expressions suggest frustration. Consider slowing the pace.",
			},
		},
	}
	return sys
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
