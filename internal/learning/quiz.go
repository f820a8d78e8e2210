package learning

import (
	"math"

	"lms/internal/model"
)

// DefaultPassThreshold is the passing percentage when neither the lesson nor configuration sets one.
const DefaultPassThreshold = 70

// Answers maps question id to the selected option index.
type Answers map[string]int

// QuestionResult is the outcome for a single question.
type QuestionResult struct {
	QuestionID string `json:"question_id"`
	Answered   bool   `json:"answered"`
	Correct    bool   `json:"correct"`
	Points     int    `json:"points"`
}

// QuizResult is a graded attempt.
type QuizResult struct {
	Earned    int              `json:"earned"`
	Total     int              `json:"total"`
	Percent   int              `json:"percent"`
	Threshold int              `json:"threshold"`
	Passed    bool             `json:"passed"`
	Questions []QuestionResult `json:"questions"`
}

// PassThreshold returns the lesson's threshold, falling back to the configured one.
func PassThreshold(l model.Lesson, fallback int) int {
	if t := l.Content.PassThreshold; t != nil {
		return *t
	}
	if fallback < 0 || fallback > 100 {
		return DefaultPassThreshold
	}
	return fallback
}

// Grade scores answers against the question bank. The percentage is points
// earned over total points times 100, rounded to the nearest integer.
// Unanswered questions and out-of-range selections earn nothing.
func Grade(questions []model.QuizQuestion, answers Answers, threshold int) QuizResult {
	res := QuizResult{Threshold: threshold, Questions: make([]QuestionResult, 0, len(questions))}
	for _, q := range questions {
		w := q.Weight()
		res.Total += w

		qr := QuestionResult{QuestionID: q.ID}
		selected, ok := answers[q.ID]
		qr.Answered = ok && selected >= 0 && selected < len(q.Options)
		if qr.Answered && selected == q.CorrectOption {
			qr.Correct = true
			qr.Points = w
			res.Earned += w
		}
		res.Questions = append(res.Questions, qr)
	}
	if res.Total > 0 {
		res.Percent = int(math.Round(float64(res.Earned) * 100 / float64(res.Total)))
		res.Passed = res.Percent >= threshold
	}
	return res
}
