package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"lms/internal/learning"
	"lms/internal/model"
	"lms/internal/pubsub"
	"lms/internal/repository"
	"lms/internal/storage"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// sniffBytes is how much of an upload is read to detect its type.
const sniffBytes = 3072

// allowedUploadTypes lists accepted submission formats. Subtypes such as
// docx (a zip) are matched through their detected parents.
var allowedUploadTypes = []string{
	"application/pdf",
	"application/zip",
	"image/png",
	"image/jpeg",
	"image/gif",
	"image/webp",
	"text/plain",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"application/msword",
}

// UploadTicket is returned to the browser so it can PUT the file straight to storage.
type UploadTicket struct {
	Submission *model.Submission `json:"submission"`
	UploadURL  string            `json:"upload_url"`
	ExpiresAt  time.Time         `json:"expires_at"`
}

type SubmissionEvent struct {
	Type         string                `json:"type"`
	SubmissionID string                `json:"submission_id"`
	UserID       string                `json:"user_id"`
	CourseID     string                `json:"course_id"`
	LessonID     string                `json:"lesson_id"`
	State        model.SubmissionState `json:"state"`
	Feedback     string                `json:"feedback,omitempty"`
}

type SubmissionService interface {
	// InitiateUpload reserves a storage path and returns a presigned upload URL.
	InitiateUpload(ctx context.Context, userID, courseID, lessonID, filename string) (*UploadTicket, error)
	// CompleteUpload verifies the stored object and moves the submission to pending review.
	CompleteUpload(ctx context.Context, userID, submissionID string) (*model.Submission, error)
	Review(ctx context.Context, reviewerID, submissionID string, action learning.Action, feedback string) (*model.Submission, error)
	Get(ctx context.Context, userID, submissionID string) (*model.Submission, error)
	DownloadURL(ctx context.Context, userID, submissionID string) (string, error)
	Latest(ctx context.Context, userID, courseID, lessonID string) (*model.Submission, error)
	List(ctx context.Context, f model.SubmissionFilter) ([]model.Submission, int, error)
	// ExpireStaleUploads removes uploads never confirmed before olderThan and returns how many were found.
	ExpireStaleUploads(ctx context.Context, olderThan time.Time, batch int, dryRun bool) (int, error)
}

type submissionService struct {
	repo      repository.SubmissionRepository
	progress  repository.ProgressRepository
	users     repository.UserRepository
	loader    *learnerLoader
	store     storage.ObjectStore
	urlTTL    time.Duration
	publisher pubsub.Publisher
	topic     string
	certs     CertificateScheduler
	now       func() time.Time
	logger    zerolog.Logger
}

// SubmissionDeps groups the collaborators of the submission service.
type SubmissionDeps struct {
	Repo      repository.SubmissionRepository
	Progress  repository.ProgressRepository
	Users     repository.UserRepository
	Courses   CourseService
	Access    EnrollmentService
	Store     storage.ObjectStore
	URLTTL    time.Duration
	Publisher pubsub.Publisher
	Topic     string
	Certs     CertificateScheduler
}

func NewSubmissionService(deps SubmissionDeps, logger zerolog.Logger) SubmissionService {
	ttl := deps.URLTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &submissionService{
		repo:      deps.Repo,
		progress:  deps.Progress,
		users:     deps.Users,
		loader:    &learnerLoader{courses: deps.Courses, progress: deps.Progress, access: deps.Access},
		store:     deps.Store,
		urlTTL:    ttl,
		publisher: deps.Publisher,
		topic:     deps.Topic,
		certs:     deps.Certs,
		now:       time.Now,
		logger:    logger.With().Str("service", "SubmissionService").Logger(),
	}
}

func (s *submissionService) InitiateUpload(ctx context.Context, userID, courseID, lessonID, filename string) (*UploadTicket, error) {
	course, progress, err := s.loader.load(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	lesson, err := learning.RequireUnlocked(course, progress, lessonID)
	if err != nil {
		if errors.Is(err, learning.ErrLessonNotFound) {
			return nil, ErrLessonNotFound
		}
		return nil, err
	}
	if lesson.Type != model.LessonSubmission {
		return nil, ErrNotSubmissionLesson
	}
	if _, err := learning.Transition(progress.Get(lessonID).SubmissionState, learning.ActionUpload, ""); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	name := sanitizeFilename(filename)
	sub := &model.Submission{
		ID:          id,
		UserID:      userID,
		CourseID:    courseID,
		LessonID:    lessonID,
		StoragePath: path.Join("submissions", courseID, userID, id, name),
		Filename:    name,
		State:       model.SubmissionUploading,
	}
	if err := s.repo.Create(ctx, sub); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Str("lesson_id", lessonID).Msg("Failed to create submission")
		return nil, err
	}
	url, err := s.store.PresignPut(ctx, sub.StoragePath, "", s.urlTTL)
	if err != nil {
		s.logger.Error().Err(err).Str("submission_id", id).Msg("Failed to presign upload")
		if delErr := s.repo.Delete(ctx, id); delErr != nil {
			s.logger.Warn().Err(delErr).Str("submission_id", id).Msg("Failed to remove orphaned submission")
		}
		return nil, fmt.Errorf("presign upload: %w", err)
	}
	return &UploadTicket{Submission: sub, UploadURL: url, ExpiresAt: s.now().Add(s.urlTTL)}, nil
}

func (s *submissionService) CompleteUpload(ctx context.Context, userID, submissionID string) (*model.Submission, error) {
	sub, err := s.repo.GetByID(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if sub == nil || sub.UserID != userID {
		return nil, ErrSubmissionNotFound
	}
	if sub.State != model.SubmissionUploading {
		return nil, learning.ErrInvalidTransition
	}

	course, progress, err := s.loader.load(ctx, userID, sub.CourseID)
	if err != nil {
		return nil, err
	}
	next, err := learning.Transition(progress.Get(sub.LessonID).SubmissionState, learning.ActionUpload, "")
	if err != nil {
		return nil, err
	}

	if _, err := s.store.Head(ctx, sub.StoragePath); err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, ErrUploadMissing
		}
		return nil, err
	}
	head, err := s.store.ReadPrefix(ctx, sub.StoragePath, sniffBytes)
	if err != nil {
		return nil, err
	}
	mtype := mimetype.Detect(head)
	if !uploadAllowed(mtype) {
		s.logger.Warn().Str("submission_id", sub.ID).Str("detected", mtype.String()).Msg("Rejected upload type")
		s.discard(ctx, sub)
		return nil, ErrUploadType
	}

	now := s.now()
	sub.ContentType = mtype.String()
	sub.State = next
	sub.Feedback = ""
	sub.ReviewerID = nil
	sub.ReviewedAt = nil
	if err := s.repo.Update(ctx, sub); err != nil {
		s.logger.Error().Err(err).Str("submission_id", sub.ID).Msg("Failed to confirm submission")
		return nil, err
	}
	lp := learning.WithSubmissionState(progress.Get(sub.LessonID), next, now)
	lp.UserID = userID
	lp.CourseID = course.ID
	if err := s.progress.UpsertProgress(ctx, &lp); err != nil {
		return nil, err
	}
	s.publish(ctx, "submission.uploaded", sub)
	return sub, nil
}

func (s *submissionService) discard(ctx context.Context, sub *model.Submission) {
	if err := s.store.Delete(ctx, sub.StoragePath); err != nil {
		s.logger.Warn().Err(err).Str("submission_id", sub.ID).Msg("Failed to delete rejected upload")
	}
	if err := s.repo.Delete(ctx, sub.ID); err != nil {
		s.logger.Warn().Err(err).Str("submission_id", sub.ID).Msg("Failed to delete rejected submission")
	}
}

func uploadAllowed(m *mimetype.MIME) bool {
	for ; m != nil; m = m.Parent() {
		for _, t := range allowedUploadTypes {
			if m.Is(t) {
				return true
			}
		}
	}
	return false
}

func (s *submissionService) Review(ctx context.Context, reviewerID, submissionID string, action learning.Action, feedback string) (*model.Submission, error) {
	sub, err := s.repo.GetByID(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if sub == nil || sub.State == model.SubmissionUploading {
		return nil, ErrSubmissionNotFound
	}
	next, err := learning.Transition(sub.State, action, feedback)
	if err != nil {
		return nil, err
	}

	course, progress, err := s.loader.loadUnchecked(ctx, sub.UserID, sub.CourseID, true)
	if err != nil {
		return nil, err
	}
	now := s.now()
	sub.State = next
	sub.Feedback = strings.TrimSpace(feedback)
	sub.ReviewerID = &reviewerID
	sub.ReviewedAt = &now
	if err := s.repo.Update(ctx, sub); err != nil {
		s.logger.Error().Err(err).Str("submission_id", sub.ID).Msg("Failed to save review")
		return nil, err
	}

	lp := learning.WithSubmissionState(progress.Get(sub.LessonID), next, now)
	lp.UserID = sub.UserID
	lp.CourseID = course.ID
	if err := s.progress.UpsertProgress(ctx, &lp); err != nil {
		return nil, err
	}
	progress[sub.LessonID] = lp

	s.logger.Info().Str("submission_id", sub.ID).Str("reviewer_id", reviewerID).Str("state", string(next)).Msg("Submission reviewed")
	s.publish(ctx, "submission."+string(next), sub)
	if next == model.SubmissionApproved && learning.IsEligible(course, progress) && s.certs != nil {
		if err := s.certs.EnqueueEvaluation(ctx, sub.UserID, sub.CourseID); err != nil {
			s.logger.Error().Err(err).Str("user_id", sub.UserID).Str("course_id", sub.CourseID).Msg("Failed to enqueue certificate evaluation")
		}
	}
	return sub, nil
}

func (s *submissionService) publish(ctx context.Context, kind string, sub *model.Submission) {
	if s.publisher == nil || s.topic == "" {
		return
	}
	ev := SubmissionEvent{
		Type:         kind,
		SubmissionID: sub.ID,
		UserID:       sub.UserID,
		CourseID:     sub.CourseID,
		LessonID:     sub.LessonID,
		State:        sub.State,
		Feedback:     sub.Feedback,
	}
	if _, err := pubsub.PublishJSON(ctx, s.publisher, s.topic, ev); err != nil {
		s.logger.Warn().Err(err).Str("submission_id", sub.ID).Msg("Failed to publish submission event")
	}
}

// Get returns a submission to its owner or to an admin.
func (s *submissionService) Get(ctx context.Context, userID, submissionID string) (*model.Submission, error) {
	sub, err := s.repo.GetByID(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, ErrSubmissionNotFound
	}
	if sub.UserID == userID {
		return sub, nil
	}
	u, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !u.IsAdmin() {
		return nil, ErrSubmissionNotFound
	}
	return sub, nil
}

func (s *submissionService) DownloadURL(ctx context.Context, userID, submissionID string) (string, error) {
	sub, err := s.Get(ctx, userID, submissionID)
	if err != nil {
		return "", err
	}
	if sub.State == model.SubmissionUploading {
		return "", ErrUploadMissing
	}
	return s.store.PresignGet(ctx, sub.StoragePath, s.urlTTL)
}

func (s *submissionService) Latest(ctx context.Context, userID, courseID, lessonID string) (*model.Submission, error) {
	if _, err := s.loader.access.RequireAccess(ctx, userID, courseID); err != nil {
		return nil, err
	}
	sub, err := s.repo.GetLatestForLesson(ctx, userID, lessonID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, ErrSubmissionNotFound
	}
	return sub, nil
}

func (s *submissionService) List(ctx context.Context, f model.SubmissionFilter) ([]model.Submission, int, error) {
	return s.repo.List(ctx, f)
}

func (s *submissionService) ExpireStaleUploads(ctx context.Context, olderThan time.Time, batch int, dryRun bool) (int, error) {
	stale, err := s.repo.ListStaleUploads(ctx, olderThan, batch)
	if err != nil {
		return 0, err
	}
	if dryRun || len(stale) == 0 {
		return len(stale), nil
	}
	keys := make([]string, 0, len(stale))
	for _, sub := range stale {
		keys = append(keys, sub.StoragePath)
	}
	if err := s.store.Delete(ctx, keys...); err != nil {
		return 0, fmt.Errorf("delete stale objects: %w", err)
	}
	for _, sub := range stale {
		if err := s.repo.Delete(ctx, sub.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return 0, err
		}
	}
	return len(stale), nil
}

// sanitizeFilename keeps the base name and replaces characters unsafe in object keys.
func sanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "upload"
	}
	if len(out) > 120 {
		out = out[len(out)-120:]
	}
	return out
}
