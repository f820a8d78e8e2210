package learning

import (
	"errors"
	"math"
	"time"

	"lms/internal/model"
)

var (
	ErrLessonLocked         = errors.New("lesson is locked")
	ErrCompletionNotAllowed = errors.New("lesson type is completed through its own workflow")
)

// Progress maps lesson id to one student's record for a course.
type Progress map[string]model.LessonProgress

// NewProgress indexes stored records by lesson id.
func NewProgress(records []model.LessonProgress) Progress {
	p := make(Progress, len(records))
	for _, r := range records {
		p[r.LessonID] = r
	}
	return p
}

// Get returns the record for a lesson, or an empty record if there is none yet.
func (p Progress) Get(lessonID string) model.LessonProgress {
	if lp, ok := p[lessonID]; ok {
		return lp
	}
	return model.LessonProgress{LessonID: lessonID}
}

// releases reports whether l no longer blocks the lessons after it. A
// submission lesson releases as soon as it is awaiting review.
func (p Progress) releases(l model.Lesson) bool {
	lp := p.Get(l.ID)
	if lp.Completed {
		return true
	}
	if l.Type == model.LessonSubmission {
		return lp.SubmissionState == model.SubmissionPending || lp.SubmissionState == model.SubmissionApproved
	}
	return false
}

// LessonState is the evaluated view of one lesson for one student.
type LessonState struct {
	LessonID        string                `json:"lesson_id"`
	ModuleID        string                `json:"module_id"`
	Title           string                `json:"title"`
	Type            model.LessonType      `json:"type"`
	Completed       bool                  `json:"completed"`
	SubmissionState model.SubmissionState `json:"submission_state,omitempty"`
	Unlocked        bool                  `json:"unlocked"`
}

// States evaluates every lesson in traversal order. A lesson is unlocked only
// when every lesson before it is completed or, for submissions, pending or approved.
func States(c *model.Course, p Progress) []LessonState {
	lessons := Flatten(c)
	out := make([]LessonState, 0, len(lessons))
	unlocked := true
	for _, l := range lessons {
		lp := p.Get(l.ID)
		state := lp.SubmissionState
		if state == model.SubmissionUploading {
			state = model.SubmissionNone
		}
		out = append(out, LessonState{
			LessonID:        l.ID,
			ModuleID:        l.ModuleID,
			Title:           l.Title,
			Type:            l.Type,
			Completed:       lp.Completed,
			SubmissionState: state,
			Unlocked:        unlocked,
		})
		if !p.releases(l) {
			unlocked = false
		}
	}
	return out
}

// State evaluates a single lesson. A non-empty moduleID must match the lesson's module.
func State(c *model.Course, p Progress, moduleID, lessonID string) (LessonState, error) {
	for _, s := range States(c, p) {
		if s.LessonID != lessonID {
			continue
		}
		if moduleID != "" && s.ModuleID != moduleID {
			return LessonState{}, ErrLessonNotFound
		}
		return s, nil
	}
	return LessonState{}, ErrLessonNotFound
}

// RequireUnlocked returns the lesson if the student may interact with it.
func RequireUnlocked(c *model.Course, p Progress, lessonID string) (model.Lesson, error) {
	s, err := State(c, p, "", lessonID)
	if err != nil {
		return model.Lesson{}, err
	}
	if !s.Unlocked {
		return model.Lesson{}, ErrLessonLocked
	}
	l, _ := FindLesson(c, lessonID)
	return l, nil
}

// MarkComplete records a completion event for a video, text or pdf lesson and
// returns the updated record. Quiz and submission lessons are refused.
func MarkComplete(c *model.Course, p Progress, lessonID string, now time.Time) (model.LessonProgress, error) {
	l, err := RequireUnlocked(c, p, lessonID)
	if err != nil {
		return model.LessonProgress{}, err
	}
	if l.Type == model.LessonQuiz || l.Type == model.LessonSubmission {
		return model.LessonProgress{}, ErrCompletionNotAllowed
	}
	lp := complete(p.Get(lessonID), now)
	lp.CourseID = c.ID
	p[lessonID] = lp
	return lp, nil
}

// CompleteQuiz records a passing quiz attempt.
func CompleteQuiz(c *model.Course, p Progress, lessonID string, now time.Time) (model.LessonProgress, error) {
	l, err := RequireUnlocked(c, p, lessonID)
	if err != nil {
		return model.LessonProgress{}, err
	}
	if l.Type != model.LessonQuiz {
		return model.LessonProgress{}, ErrCompletionNotAllowed
	}
	lp := complete(p.Get(lessonID), now)
	lp.CourseID = c.ID
	p[lessonID] = lp
	return lp, nil
}

// WithSubmissionState applies a review state to a submission lesson record.
// Only an approved submission counts as completed.
func WithSubmissionState(lp model.LessonProgress, state model.SubmissionState, now time.Time) model.LessonProgress {
	lp.SubmissionState = state
	lp.UpdatedAt = now
	if state == model.SubmissionApproved {
		return complete(lp, now)
	}
	lp.Completed = false
	lp.CompletedAt = nil
	return lp
}

func complete(lp model.LessonProgress, now time.Time) model.LessonProgress {
	if !lp.Completed || lp.CompletedAt == nil {
		t := now
		lp.CompletedAt = &t
	}
	lp.Completed = true
	lp.UpdatedAt = now
	return lp
}

// Summary aggregates a student's progress through a course.
type Summary struct {
	Completed    int    `json:"completed"`
	Total        int    `json:"total"`
	Percent      int    `json:"percent"`
	NextLessonID string `json:"next_lesson_id,omitempty"`
	Eligible     bool   `json:"certificate_eligible"`
}

// Summarize counts completed lessons and finds the next unlocked lesson to take.
func Summarize(c *model.Course, p Progress) Summary {
	states := States(c, p)
	s := Summary{Total: len(states)}
	for _, st := range states {
		if st.Completed {
			s.Completed++
			continue
		}
		if s.NextLessonID == "" && st.Unlocked {
			s.NextLessonID = st.LessonID
		}
	}
	if s.Total > 0 {
		s.Percent = int(math.Round(float64(s.Completed) * 100 / float64(s.Total)))
	}
	s.Eligible = IsEligible(c, p)
	return s
}
