package learning

import (
	"errors"
	"fmt"
	"strings"

	"lms/internal/model"
)

var (
	ErrInvalidTransition = errors.New("invalid submission transition")
	ErrFeedbackRequired  = errors.New("rejection requires feedback")
)

// Action is an event in the submission review workflow.
type Action string

const (
	ActionUpload  Action = "upload"
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

// Transition applies an action to a submission state.
//
//	none, rejected --upload--> pending
//	pending --approve--> approved
//	pending --reject(feedback)--> rejected
//
// An upload that was never confirmed counts as none. Nothing moves a rejected
// submission back to pending except a new upload.
func Transition(from model.SubmissionState, action Action, feedback string) (model.SubmissionState, error) {
	if from == model.SubmissionUploading {
		from = model.SubmissionNone
	}
	switch action {
	case ActionUpload:
		if from == model.SubmissionNone || from == model.SubmissionRejected {
			return model.SubmissionPending, nil
		}
	case ActionApprove:
		if from == model.SubmissionPending {
			return model.SubmissionApproved, nil
		}
	case ActionReject:
		if from == model.SubmissionPending {
			if strings.TrimSpace(feedback) == "" {
				return from, ErrFeedbackRequired
			}
			return model.SubmissionRejected, nil
		}
	}
	return from, fmt.Errorf("%w: cannot %s a submission in state %q", ErrInvalidTransition, action, displayState(from))
}

func displayState(s model.SubmissionState) string {
	if s == model.SubmissionNone {
		return "none"
	}
	return string(s)
}
