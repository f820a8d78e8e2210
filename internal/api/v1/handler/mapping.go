package handler

import (
	"lms/internal/api/v1/dto"
	"lms/internal/model"
	"lms/internal/service"
)

func toCourseResponse(c *model.Course, coverURL string, withAnswers bool) dto.CourseResponseDTO {
	resp := dto.CourseResponseDTO{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		PriceCents:  c.PriceCents,
		Currency:    c.Currency,
		State:       c.State,
		CoverURL:    coverURL,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
	for _, m := range c.Modules {
		resp.Modules = append(resp.Modules, toModuleResponse(m, withAnswers))
	}
	return resp
}

func toModuleResponse(m model.Module, withAnswers bool) dto.ModuleResponseDTO {
	resp := dto.ModuleResponseDTO{
		ID:         m.ID,
		CourseID:   m.CourseID,
		Name:       m.Name,
		OrderIndex: m.OrderIndex,
		Lessons:    make([]dto.LessonResponseDTO, 0, len(m.Lessons)),
	}
	for _, l := range m.Lessons {
		resp.Lessons = append(resp.Lessons, toLessonResponse(l, withAnswers))
	}
	return resp
}

// toLessonResponse hides quiz answers unless withAnswers is set.
func toLessonResponse(l model.Lesson, withAnswers bool) dto.LessonResponseDTO {
	content := dto.LessonContentDTO{
		MediaURL:      l.Content.MediaURL,
		Body:          l.Content.Body,
		Instructions:  l.Content.Instructions,
		PassThreshold: l.Content.PassThreshold,
	}
	for _, q := range l.Content.Questions {
		qd := dto.QuestionDTO{ID: q.ID, Prompt: q.Prompt, Options: q.Options, Points: q.Weight()}
		if withAnswers {
			correct := q.CorrectOption
			qd.CorrectOption = &correct
		}
		content.Questions = append(content.Questions, qd)
	}
	return dto.LessonResponseDTO{
		ID:         l.ID,
		ModuleID:   l.ModuleID,
		Title:      l.Title,
		Type:       l.Type,
		OrderIndex: l.OrderIndex,
		Content:    content,
	}
}

func toSubmissionResponse(s *model.Submission) dto.SubmissionResponseDTO {
	return dto.SubmissionResponseDTO{
		ID:          s.ID,
		UserID:      s.UserID,
		CourseID:    s.CourseID,
		LessonID:    s.LessonID,
		Filename:    s.Filename,
		ContentType: s.ContentType,
		State:       s.State,
		Feedback:    s.Feedback,
		ReviewedAt:  s.ReviewedAt,
		CreatedAt:   s.CreatedAt,
	}
}

// toCertificateResponse includes the verification code only for the holder.
func toCertificateResponse(c *model.Certificate, withCode bool) dto.CertificateResponseDTO {
	resp := dto.CertificateResponseDTO{
		ID:       c.ID,
		UserID:   c.UserID,
		CourseID: c.CourseID,
		Serial:   c.Serial,
		IssuedAt: c.IssuedAt,
	}
	if withCode {
		resp.VerificationCode = c.VerificationCode
	}
	return resp
}

func toUserResponse(u *model.User) dto.UserResponseDTO {
	return dto.UserResponseDTO{
		UserID:    u.UserID,
		Name:      u.Name,
		Email:     u.Email,
		AvatarURL: u.AvatarURL,
		Role:      u.Role,
		Banned:    u.Banned,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func toEnrollResponse(res *service.EnrollResult) dto.EnrollResponseDTO {
	return dto.EnrollResponseDTO{
		Enrollment:    res.Enrollment,
		TransactionID: res.TransactionID,
		CheckoutURL:   res.CheckoutURL,
	}
}
