package service

import (
	"math"
	"strings"

	"github.com/examtrust/examtrust-backend/internal/model"
)

// ScoreAnswers grades stored answers against the exam's answer key and
// returns a 0–100 score: the weight sum of correctly answered questions
// over the total key weight. Responses match after whitespace trimming,
// case-sensitively. Answers to questions outside the key are ignored, as
// are key entries the learner never answered (they simply earn nothing).
func ScoreAnswers(answers []model.Answer, key model.AnswerKey) float64 {
	if len(key) == 0 {
		return 0
	}

	var total, earned float64
	for _, entry := range key {
		total += weightOf(entry)
	}
	if total == 0 {
		return 0
	}

	for _, a := range answers {
		entry, ok := key[a.QuestionID]
		if !ok {
			continue
		}
		if strings.TrimSpace(a.Response) == strings.TrimSpace(entry.Correct) {
			earned += weightOf(entry)
		}
	}

	// Two decimal places keeps leaderboard ties deterministic across runs.
	return math.Round(earned/total*10000) / 100
}

// weightOf defaults unset or non-positive weights to 1.
func weightOf(e model.AnswerKeyEntry) float64 {
	if e.Weight <= 0 {
		return 1
	}
	return e.Weight
}
