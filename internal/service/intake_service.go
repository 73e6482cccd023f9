package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"cardamage/internal/ids"
	"cardamage/internal/media/sniffer"
	"cardamage/internal/media/svg"
	"cardamage/internal/models"
	"cardamage/internal/repository"
	"cardamage/internal/storage"
	"cardamage/internal/webhook"
)

type ObjectUploader interface {
	Put(ctx context.Context, name string, data []byte, contentType string) (storage.Object, error)
	Remove(ctx context.Context, key string) error
}

type AssessmentStore interface {
	Create(ctx context.Context, a models.Assessment) error
	GetByID(ctx context.Context, id string) (models.Assessment, error)
	List(ctx context.Context, limit, offset int) ([]models.Assessment, error)
	Count(ctx context.Context) (int64, error)
}

// File is an uploaded image held in memory.
type File struct {
	Filename    string
	ContentType string
	Data        []byte
}

type IntakeInput struct {
	Before *File
	After  *File
}

type IntakeResult struct {
	Assessment models.Assessment
	Before     storage.Object
	After      storage.Object
}

type SingleUpload struct {
	Filename    string
	Kind        string
	ContentType string
	Data        []byte
}

const cleanupTimeout = 10 * time.Second

type IntakeService struct {
	store          ObjectUploader
	assessments    AssessmentStore
	notifier       webhook.Notifier
	maxUploadBytes int64
	log            zerolog.Logger
}

func NewIntakeService(store ObjectUploader, assessments AssessmentStore, notifier webhook.Notifier, maxUploadBytes int64, log zerolog.Logger) *IntakeService {
	return &IntakeService{
		store:          store,
		assessments:    assessments,
		notifier:       notifier,
		maxUploadBytes: maxUploadBytes,
		log:            log,
	}
}

// Submit stores both photos, records a processing assessment and hands the
// pair to the analysis webhook. Nothing is persisted unless both uploads
// succeed.
func (s *IntakeService) Submit(ctx context.Context, input IntakeInput) (IntakeResult, error) {
	if input.Before == nil || input.After == nil {
		return IntakeResult{}, ErrMissingFile
	}
	// Both parts must declare an image type; sniffing is only a fallback
	// for raw single uploads.
	if !sniffer.IsImageMIME(input.Before.ContentType) || !sniffer.IsImageMIME(input.After.ContentType) {
		return IntakeResult{}, ErrInvalidContentType
	}

	beforeData, beforeType, err := s.prepare(*input.Before)
	if err != nil {
		return IntakeResult{}, err
	}
	afterData, afterType, err := s.prepare(*input.After)
	if err != nil {
		return IntakeResult{}, err
	}

	var before, after storage.Object
	var beforeOK, afterOK bool

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		obj, err := s.store.Put(gctx, "before_"+input.Before.Filename, beforeData, beforeType)
		if err != nil {
			return fmt.Errorf("upload before image: %w", err)
		}
		before, beforeOK = obj, true
		return nil
	})
	g.Go(func() error {
		obj, err := s.store.Put(gctx, "after_"+input.After.Filename, afterData, afterType)
		if err != nil {
			return fmt.Errorf("upload after image: %w", err)
		}
		after, afterOK = obj, true
		return nil
	})
	if err := g.Wait(); err != nil {
		var stored []storage.Object
		if beforeOK {
			stored = append(stored, before)
		}
		if afterOK {
			stored = append(stored, after)
		}
		s.cleanup(ctx, stored...)
		return IntakeResult{}, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	assessment := models.Assessment{
		ID:             ids.New(),
		BeforeImageURL: before.URL,
		AfterImageURL:  after.URL,
		Damages:        []models.Damage{},
		Status:         models.AssessmentStatusProcessing,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.assessments.Create(ctx, assessment); err != nil {
		s.cleanup(ctx, before, after)
		return IntakeResult{}, fmt.Errorf("%w: save assessment: %w", ErrUpstream, err)
	}

	notification := webhook.Notification{
		AssessmentID: assessment.ID,
		BeforeImage:  describe(input.Before, beforeType, before),
		AfterImage:   describe(input.After, afterType, after),
		UploadedAt:   assessment.CreatedAt,
		Status:       webhook.StatusUploaded,
	}
	if err := s.notifier.Notify(ctx, notification); err != nil {
		s.log.Warn().Err(err).Str("assessment_id", assessment.ID).Msg("notify webhook failed")
	}

	s.log.Info().Str("assessment_id", assessment.ID).Msg("assessment submitted")

	return IntakeResult{
		Assessment: assessment,
		Before:     before,
		After:      after,
	}, nil
}

// UploadSingle stores one photo outside of an assessment and notifies the
// webhook about it.
func (s *IntakeService) UploadSingle(ctx context.Context, input SingleUpload) (storage.Object, error) {
	switch input.Kind {
	case "", "before", "after":
	default:
		return storage.Object{}, ErrInvalidKind
	}
	if len(input.Data) == 0 {
		return storage.Object{}, ErrEmptyBody
	}

	data, contentType, err := s.prepare(File{
		Filename:    input.Filename,
		ContentType: input.ContentType,
		Data:        input.Data,
	})
	if err != nil {
		return storage.Object{}, err
	}

	name := input.Filename
	if name == "" {
		name = "upload"
	}
	obj, err := s.store.Put(ctx, name, data, contentType)
	if err != nil {
		return storage.Object{}, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	notification := webhook.Notification{
		ImageURL:   obj.URL,
		Filename:   input.Filename,
		Type:       input.Kind,
		UploadedAt: time.Now().UTC(),
		BlobData:   &obj,
	}
	if err := s.notifier.Notify(ctx, notification); err != nil {
		s.log.Warn().Err(err).Str("object", obj.Pathname).Msg("notify webhook failed")
	}

	return obj, nil
}

// prepare validates one upload and returns the bytes to store together with
// the resolved content type.
func (s *IntakeService) prepare(f File) ([]byte, string, error) {
	if len(f.Data) == 0 {
		return nil, "", ErrEmptyBody
	}
	if s.maxUploadBytes > 0 && int64(len(f.Data)) > s.maxUploadBytes {
		return nil, "", ErrFileTooLarge
	}

	contentType, err := sniffer.ResolveImageMIME(f.ContentType, f.Data)
	if err != nil {
		return nil, "", ErrInvalidContentType
	}

	data := f.Data
	if sniffer.IsSVG(contentType) {
		clean, err := svg.Sanitize(data)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %w", ErrInvalidContentType, err)
		}
		data = clean
	}
	return data, contentType, nil
}

func (s *IntakeService) cleanup(ctx context.Context, objects ...storage.Object) {
	if len(objects) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	for _, obj := range objects {
		if err := s.store.Remove(ctx, obj.Pathname); err != nil {
			s.log.Warn().Err(err).Str("object", obj.Pathname).Msg("remove orphaned object failed")
		}
	}
}

func describe(f *File, contentType string, obj storage.Object) *webhook.Image {
	return &webhook.Image{
		URL:      obj.URL,
		Filename: f.Filename,
		Size:     int64(len(f.Data)),
		Type:     contentType,
		BlobData: &obj,
	}
}

func mapStoreError(err error) error {
	switch {
	case errors.Is(err, repository.ErrAssessmentNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrDuplicateID):
		return ErrDuplicateID
	default:
		return fmt.Errorf("%w: %w", ErrUpstream, err)
	}
}
