package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"cardamage/internal/models"
	"cardamage/internal/report"
	"cardamage/internal/repository"
	"cardamage/internal/storage"
	"cardamage/internal/webhook"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n0000IHDR")

type fakeUploader struct {
	mu      sync.Mutex
	failOn  string
	objects map[string]storage.Object
	removed []string
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{objects: make(map[string]storage.Object)}
}

func (f *fakeUploader) Put(_ context.Context, name string, data []byte, contentType string) (storage.Object, error) {
	if f.failOn != "" && strings.HasPrefix(name, f.failOn) {
		return storage.Object{}, errors.New("storage unavailable")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fmt.Sprintf("2024/01/01/%s-%d", name, len(f.objects))
	obj := storage.Object{
		URL:         "http://store/bucket/" + key,
		Pathname:    key,
		ContentType: contentType,
		Size:        int64(len(data)),
	}
	f.objects[key] = obj
	return obj, nil
}

func (f *fakeUploader) Remove(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	f.removed = append(f.removed, key)
	return nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	err  error
	sent []webhook.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n webhook.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return r.err
}

func (r *recordingNotifier) Wait() {}

type failingStore struct {
	*repository.MemoryAssessmentRepository
}

func (failingStore) Create(context.Context, models.Assessment) error {
	return errors.New("connection refused")
}

func pair() IntakeInput {
	return IntakeInput{
		Before: &File{Filename: "front.png", ContentType: "image/png", Data: pngBytes},
		After:  &File{Filename: "rear.png", ContentType: "image/png", Data: pngBytes},
	}
}

func newIntake(t *testing.T) (*IntakeService, *fakeUploader, *repository.MemoryAssessmentRepository, *recordingNotifier) {
	t.Helper()
	up := newFakeUploader()
	repo := repository.NewMemoryAssessmentRepository()
	notifier := &recordingNotifier{}
	return NewIntakeService(up, repo, notifier, 1<<20, zerolog.Nop()), up, repo, notifier
}

func TestSubmitCreatesProcessingAssessment(t *testing.T) {
	svc, up, repo, notifier := newIntake(t)

	res, err := svc.Submit(context.Background(), pair())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Assessment.Status != models.AssessmentStatusProcessing {
		t.Fatalf("status = %s", res.Assessment.Status)
	}
	if !strings.Contains(res.Before.Pathname, "before_front.png") || !strings.Contains(res.After.Pathname, "after_rear.png") {
		t.Fatalf("object names = %q, %q", res.Before.Pathname, res.After.Pathname)
	}
	if len(up.objects) != 2 {
		t.Fatalf("stored objects = %d", len(up.objects))
	}

	stored, err := repo.GetByID(context.Background(), res.Assessment.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.BeforeImageURL != res.Before.URL || stored.AfterImageURL != res.After.URL {
		t.Fatalf("stored urls = %q, %q", stored.BeforeImageURL, stored.AfterImageURL)
	}

	if len(notifier.sent) != 1 {
		t.Fatalf("notifications = %d", len(notifier.sent))
	}
	n := notifier.sent[0]
	if n.AssessmentID != res.Assessment.ID || n.Status != webhook.StatusUploaded {
		t.Fatalf("notification = %+v", n)
	}
	if n.BeforeImage.Filename != "front.png" || n.BeforeImage.Size != int64(len(pngBytes)) || n.BeforeImage.Type != "image/png" {
		t.Fatalf("before image = %+v", n.BeforeImage)
	}
}

func TestSubmitValidation(t *testing.T) {
	svc, up, repo, _ := newIntake(t)

	cases := []struct {
		name  string
		input IntakeInput
		want  error
	}{
		{name: "missing after", input: IntakeInput{Before: pair().Before}, want: ErrMissingFile},
		{name: "missing both", input: IntakeInput{}, want: ErrMissingFile},
		{
			name: "non image",
			input: IntakeInput{
				Before: pair().Before,
				After:  &File{Filename: "notes.txt", ContentType: "text/plain", Data: []byte("hello")},
			},
			want: ErrInvalidContentType,
		},
		{
			name: "undeclared image bytes",
			input: IntakeInput{
				Before: pair().Before,
				After:  &File{Filename: "rear.png", ContentType: "application/octet-stream", Data: pngBytes},
			},
			want: ErrInvalidContentType,
		},
		{
			name: "missing declared type",
			input: IntakeInput{
				Before: &File{Filename: "front.png", Data: pngBytes},
				After:  pair().After,
			},
			want: ErrInvalidContentType,
		},
		{
			name: "too large",
			input: IntakeInput{
				Before: &File{Filename: "big.png", ContentType: "image/png", Data: make([]byte, 2<<20)},
				After:  pair().After,
			},
			want: ErrFileTooLarge,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Submit(context.Background(), tc.input)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
			if !IsValidation(err) {
				t.Fatalf("%v should be a validation error", err)
			}
		})
	}
	if len(up.objects) != 0 {
		t.Fatal("validation failures must not upload")
	}
	if n, _ := repo.Count(context.Background()); n != 0 {
		t.Fatalf("validation failures persisted %d assessments", n)
	}
}

func TestSubmitUploadFailurePersistsNothing(t *testing.T) {
	svc, up, repo, notifier := newIntake(t)
	up.failOn = "after_"

	_, err := svc.Submit(context.Background(), pair())
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
	if n, _ := repo.Count(context.Background()); n != 0 {
		t.Fatalf("assessments = %d, want 0", n)
	}
	if len(up.objects) != 0 {
		t.Fatalf("orphaned objects left: %v", up.objects)
	}
	if len(notifier.sent) != 0 {
		t.Fatal("no notification expected on failure")
	}
}

func TestSubmitPersistFailureRemovesObjects(t *testing.T) {
	up := newFakeUploader()
	svc := NewIntakeService(up, failingStore{repository.NewMemoryAssessmentRepository()}, &recordingNotifier{}, 1<<20, zerolog.Nop())

	_, err := svc.Submit(context.Background(), pair())
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
	if len(up.removed) != 2 || len(up.objects) != 0 {
		t.Fatalf("removed = %v, left = %v", up.removed, up.objects)
	}
}

func TestSubmitSucceedsWhenWebhookFails(t *testing.T) {
	svc, _, repo, notifier := newIntake(t)
	notifier.err = errors.New("webhook down")

	res, err := svc.Submit(context.Background(), pair())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := repo.GetByID(context.Background(), res.Assessment.ID); err != nil {
		t.Fatalf("record missing after webhook failure: %v", err)
	}
}

func TestSubmitSanitizesSVG(t *testing.T) {
	svc, up, _, _ := newIntake(t)
	input := pair()
	input.Before = &File{Filename: "a.svg", ContentType: "image/svg+xml", Data: []byte(`<svg><script>x()</script></svg>`)}

	res, err := svc.Submit(context.Background(), input)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got := up.objects[res.Before.Pathname].Size; got != int64(len(`<svg></svg>`)) {
		t.Fatalf("stored svg size = %d", got)
	}
}

func TestUploadSingle(t *testing.T) {
	svc, _, _, notifier := newIntake(t)

	obj, err := svc.UploadSingle(context.Background(), SingleUpload{
		Filename:    "door.png",
		Kind:        "before",
		ContentType: "application/octet-stream",
		Data:        pngBytes,
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if obj.ContentType != "image/png" {
		t.Fatalf("content type = %s", obj.ContentType)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("notifications = %d", len(notifier.sent))
	}
	n := notifier.sent[0]
	if n.ImageURL != obj.URL || n.Type != "before" || n.Filename != "door.png" || n.BlobData == nil {
		t.Fatalf("notification = %+v", n)
	}
}

func TestUploadSingleValidation(t *testing.T) {
	svc, _, _, _ := newIntake(t)

	cases := map[string]struct {
		input SingleUpload
		want  error
	}{
		"bad kind":  {input: SingleUpload{Kind: "side", Data: pngBytes}, want: ErrInvalidKind},
		"empty":     {input: SingleUpload{Kind: "after"}, want: ErrEmptyBody},
		"not image": {input: SingleUpload{Data: []byte("plain")}, want: ErrInvalidContentType},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := svc.UploadSingle(context.Background(), tc.input); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func ptr(v float64) *float64 { return &v }

func validCreate() CreateInput {
	return CreateInput{
		Title:          "Parking lot scrape",
		BeforeImageURL: "http://store/before.png",
		AfterImageURL:  "http://store/after.png",
		TotalCost:      ptr(450),
		Damages:        []DamageInput{{Type: "scratch", RepairCost: ptr(450)}},
	}
}

func TestCreateThenGetRoundTrip(t *testing.T) {
	svc := NewAssessmentService(repository.NewMemoryAssessmentRepository())

	created, err := svc.Create(context.Background(), validCreate())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := svc.Get(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.BeforeImageURL != "http://store/before.png" || got.AfterImageURL != "http://store/after.png" {
		t.Fatalf("urls = %q, %q", got.BeforeImageURL, got.AfterImageURL)
	}
	if got.Status != models.AssessmentStatusProcessing {
		t.Fatalf("status = %s", got.Status)
	}
	if len(got.Damages) != 1 || got.Damages[0].Type != "scratch" {
		t.Fatalf("damages = %+v", got.Damages)
	}
}

func TestCreateValidation(t *testing.T) {
	svc := NewAssessmentService(repository.NewMemoryAssessmentRepository())

	mutations := map[string]func(*CreateInput){
		"missing title":        func(in *CreateInput) { in.Title = " " },
		"missing before url":   func(in *CreateInput) { in.BeforeImageURL = "" },
		"missing total":        func(in *CreateInput) { in.TotalCost = nil },
		"negative total":       func(in *CreateInput) { in.TotalCost = ptr(-1) },
		"damage without type":  func(in *CreateInput) { in.Damages[0].Type = "" },
		"damage without cost":  func(in *CreateInput) { in.Damages[0].RepairCost = nil },
		"negative damage cost": func(in *CreateInput) { in.Damages[0].RepairCost = ptr(-5) },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			in := validCreate()
			mutate(&in)
			if _, err := svc.Create(context.Background(), in); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("err = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestCreateDuplicateLeavesOriginal(t *testing.T) {
	svc := NewAssessmentService(repository.NewMemoryAssessmentRepository())

	first := validCreate()
	first.ID = "fixed-id"
	if _, err := svc.Create(context.Background(), first); err != nil {
		t.Fatalf("create: %v", err)
	}

	second := validCreate()
	second.ID = "fixed-id"
	second.Title = "Overwrite attempt"
	if _, err := svc.Create(context.Background(), second); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("err = %v, want ErrDuplicateID", err)
	}

	got, err := svc.Get(context.Background(), "fixed-id")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != first.Title {
		t.Fatalf("title = %q, original was overwritten", got.Title)
	}
}

func TestGetErrors(t *testing.T) {
	svc := NewAssessmentService(repository.NewMemoryAssessmentRepository())
	if _, err := svc.Get(context.Background(), ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty id err = %v", err)
	}
	if _, err := svc.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing err = %v", err)
	}
}

func seed(t *testing.T, repo *repository.MemoryAssessmentRepository, n int) {
	t.Helper()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		err := repo.Create(context.Background(), models.Assessment{
			ID:        fmt.Sprintf("a%02d", i),
			Status:    models.AssessmentStatusProcessing,
			CreatedAt: base.Add(time.Duration(i%4) * time.Minute),
		})
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func TestListPagesCoverAllRecords(t *testing.T) {
	repo := repository.NewMemoryAssessmentRepository()
	seed(t, repo, 23)
	svc := NewAssessmentService(repo)

	seen := make(map[string]bool)
	var prev *models.Assessment
	for page := 1; page <= 3; page++ {
		p, err := svc.List(context.Background(), page, 10)
		if err != nil {
			t.Fatalf("list page %d: %v", page, err)
		}
		if p.Total != 23 || p.TotalPages != 3 {
			t.Fatalf("total = %d pages = %d", p.Total, p.TotalPages)
		}
		if len(p.Assessments) > 10 {
			t.Fatalf("page %d has %d items", page, len(p.Assessments))
		}
		for i := range p.Assessments {
			a := p.Assessments[i]
			if prev != nil && a.CreatedAt.After(prev.CreatedAt) {
				t.Fatalf("not sorted by createdAt desc: %s after %s", a.ID, prev.ID)
			}
			if seen[a.ID] {
				t.Fatalf("%s returned twice", a.ID)
			}
			seen[a.ID] = true
			prev = &a
		}
	}
	if len(seen) != 23 {
		t.Fatalf("pages covered %d records, want 23", len(seen))
	}

	past, err := svc.List(context.Background(), 9, 10)
	if err != nil {
		t.Fatalf("out of range page: %v", err)
	}
	if len(past.Assessments) != 0 {
		t.Fatalf("out of range page returned %d items", len(past.Assessments))
	}
}

func TestListHugePageIsEmpty(t *testing.T) {
	repo := repository.NewMemoryAssessmentRepository()
	seed(t, repo, 5)
	svc := NewAssessmentService(repo)

	for _, page := range []int{math.MaxInt/20 + 2, math.MaxInt} {
		p, err := svc.List(context.Background(), page, 20)
		if err != nil {
			t.Fatalf("List(%d): %v", page, err)
		}
		if len(p.Assessments) != 0 || p.Total != 5 || p.TotalPages != 1 || p.Page != page {
			t.Fatalf("List(%d) = %+v", page, p)
		}
	}
}

func TestListEmptyStore(t *testing.T) {
	svc := NewAssessmentService(repository.NewMemoryAssessmentRepository())
	p, err := svc.List(context.Background(), 1, 20)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if p.Assessments == nil || len(p.Assessments) != 0 || p.TotalPages != 0 {
		t.Fatalf("empty list = %+v", p)
	}
}

func TestListRejectsBadPaging(t *testing.T) {
	svc := NewAssessmentService(repository.NewMemoryAssessmentRepository())
	for _, tc := range [][2]int{{0, 10}, {1, 0}, {1, MaxPageSize + 1}, {-2, 5}} {
		if _, err := svc.List(context.Background(), tc[0], tc[1]); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("List(%d, %d) err = %v", tc[0], tc[1], err)
		}
	}
}

func TestReportExtractsAnalysis(t *testing.T) {
	repo := repository.NewMemoryAssessmentRepository()
	analysis := []byte(`[{"content":[{"type":"text","text":"` + "```json\\n{\\\"recommendations\\\":[\\\"x\\\"]}\\n```" + `"}]}]`)
	now := time.Now().UTC()
	err := repo.Create(context.Background(), models.Assessment{
		ID:             "done",
		Status:         models.AssessmentStatusCompleted,
		AnalysisResult: analysis,
		CreatedAt:      now,
		CompletedAt:    &now,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	view, err := NewAssessmentService(repo).Report(context.Background(), "done")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if view.Result.Kind != report.KindDamageReport {
		t.Fatalf("kind = %s (err=%v)", view.Result.Kind, view.Result.Err)
	}
	if len(view.Result.Report.Recommendations) != 1 {
		t.Fatalf("recommendations = %v", view.Result.Report.Recommendations)
	}
}
