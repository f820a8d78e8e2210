package learning

import "lms/internal/model"

// Missing lists the lessons that still block the certificate: any lesson not
// completed, and any submission lesson not approved.
func Missing(c *model.Course, p Progress) []string {
	var out []string
	for _, l := range Flatten(c) {
		lp := p.Get(l.ID)
		if !lp.Completed {
			out = append(out, l.ID)
			continue
		}
		if l.Type == model.LessonSubmission && lp.SubmissionState != model.SubmissionApproved {
			out = append(out, l.ID)
		}
	}
	return out
}

// IsEligible reports whether every lesson is completed and every submission is
// approved. A course without lessons is never eligible.
func IsEligible(c *model.Course, p Progress) bool {
	return len(Flatten(c)) > 0 && len(Missing(c, p)) == 0
}
