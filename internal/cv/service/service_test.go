package service

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cvbank/cvbank-backend/internal/cv/domain"
	"github.com/cvbank/cvbank-backend/internal/cv/events"
	"github.com/cvbank/cvbank-backend/internal/cv/storage"
	"github.com/cvbank/cvbank-backend/pkg/errors"
	"github.com/cvbank/cvbank-backend/pkg/logger"
	"github.com/cvbank/cvbank-backend/pkg/messaging"
	"github.com/cvbank/cvbank-backend/pkg/testutil"
)

const (
	owner = "65f1a2b3c4d5e6f7a8b9c0d1"
	other = "65f1a2b3c4d5e6f7a8b9c0d2"
)

type fixture struct {
	svc        *CVService
	repo       *memoryRepo
	files      *flakyStore
	dispatcher *recordingDispatcher
	pub        *testutil.MockPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fs, err := storage.NewFilesystem(t.TempDir(), logger.Nop())
	require.NoError(t, err)

	f := &fixture{
		repo:       newMemoryRepo(),
		files:      &flakyStore{FileStore: fs, failWrite: map[string]bool{}},
		dispatcher: &recordingDispatcher{},
		pub:        testutil.NewMockPublisher(),
	}
	f.svc = NewCVService(f.repo, f.files, f.dispatcher, events.New(f.pub, logger.Nop()), logger.Nop())
	return f
}

func pdf(name, content string) FileUpload {
	return FileUpload{Filename: name, ContentType: domain.MediaTypePDF, Content: strings.NewReader(content)}
}

func (f *fixture) locate(t *testing.T, name string) string {
	t.Helper()
	loc, err := f.files.Locate(owner, name)
	require.NoError(t, err)
	return loc
}

func (f *fixture) exists(t *testing.T, loc string) bool {
	t.Helper()
	ok, err := f.files.Exists(context.Background(), loc)
	require.NoError(t, err)
	return ok
}

func (f *fixture) content(t *testing.T, loc string) string {
	t.Helper()
	rc, err := f.files.Open(context.Background(), loc)
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(b)
}

func TestAcceptUpload_CreatesPlaceholders(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.AcceptUpload(context.Background(), owner, []FileUpload{
		pdf("a.pdf", "first"),
		{Filename: "b.docx", ContentType: "application/octet-stream", Content: strings.NewReader("second!")},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.TotalReceived)
	assert.Equal(t, 0, result.DuplicatesSkipped)
	require.Len(t, result.Uploaded, 2)

	for _, u := range result.Uploaded {
		assert.True(t, domain.IsValidID(u.ID))
		assert.Equal(t, domain.Placeholder, u.Position)
		assert.Equal(t, domain.Placeholder, u.Summary)
	}
	assert.Equal(t, int64(5), result.Uploaded[0].FileSizeBytes)
	assert.Equal(t, domain.MediaTypeDOCX, result.Uploaded[1].MimeType)

	assert.Equal(t, "first", f.content(t, f.locate(t, "a.pdf")))

	require.Len(t, f.dispatcher.batches, 1)
	jobs := f.dispatcher.batches[0]
	require.Len(t, jobs, 2)
	assert.Equal(t, result.Uploaded[0].ID, jobs[0].CVID)
	assert.Equal(t, f.locate(t, "a.pdf"), jobs[0].StoragePath)

	f.pub.AssertEventPublished(t, messaging.EventCVUploaded)
}

func TestAcceptUpload_SkipsExistingRecordWithoutOverwriting(t *testing.T) {
	f := newFixture(t)
	loc := f.locate(t, "cv.pdf")
	_, err := f.files.Write(context.Background(), loc, domain.MediaTypePDF, strings.NewReader("original"))
	require.NoError(t, err)
	existing := f.repo.seed(owner, loc, "cv.pdf")
	require.NoError(t, f.repo.Deactivate(context.Background(), owner, existing.ID))

	result, err := f.svc.AcceptUpload(context.Background(), owner, []FileUpload{pdf("cv.pdf", "replacement")})
	require.NoError(t, err)

	assert.Empty(t, result.Uploaded)
	assert.Equal(t, 1, result.DuplicatesSkipped)
	assert.Equal(t, "original", f.content(t, loc))
	assert.Empty(t, f.dispatcher.batches)
	f.pub.AssertNoEventsPublished(t)
}

func TestAcceptUpload_SameNameTwiceInOneRequest(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.AcceptUpload(context.Background(), owner, []FileUpload{pdf("cv.pdf", "one"), pdf("cv.pdf", "two")})
	require.NoError(t, err)

	assert.Len(t, result.Uploaded, 1)
	assert.Equal(t, 1, result.DuplicatesSkipped)
	assert.Equal(t, "one", f.content(t, f.locate(t, "cv.pdf")))
}

func TestAcceptUpload_Unauthenticated(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.AcceptUpload(context.Background(), "", []FileUpload{pdf("a.pdf", "x")})
	assert.True(t, errors.Is(err, errors.ErrUnauthenticated))
}

func TestAcceptUpload_RejectsUnsupportedTypeBeforeWriting(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.AcceptUpload(context.Background(), owner, []FileUpload{
		pdf("a.pdf", "x"),
		{Filename: "notes.txt", ContentType: "text/plain", Content: strings.NewReader("y")},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrBadRequest))
	assert.False(t, f.exists(t, f.locate(t, "a.pdf")))
}

func TestAcceptUpload_RollsBackOnCreateFailure(t *testing.T) {
	f := newFixture(t)
	f.repo.createErr["b.pdf"] = errors.Internal("database unavailable")

	_, err := f.svc.AcceptUpload(context.Background(), owner, []FileUpload{pdf("a.pdf", "x"), pdf("b.pdf", "y")})
	require.Error(t, err)

	assert.False(t, f.exists(t, f.locate(t, "a.pdf")))
	assert.False(t, f.exists(t, f.locate(t, "b.pdf")))
	assert.Empty(t, f.dispatcher.batches)

	list, err := f.svc.List(context.Background(), owner, "")
	require.NoError(t, err)
	assert.Empty(t, list)

	delete(f.repo.createErr, "b.pdf")
	result, err := f.svc.AcceptUpload(context.Background(), owner, []FileUpload{pdf("a.pdf", "x"), pdf("b.pdf", "y")})
	require.NoError(t, err)
	assert.Len(t, result.Uploaded, 2)
	assert.Zero(t, result.DuplicatesSkipped)

	dl, err := f.svc.Download(context.Background(), owner, result.Uploaded[0].ID)
	require.NoError(t, err)
	dl.Body.Close()
}

func TestAcceptUpload_RollsBackOnWriteFailure(t *testing.T) {
	f := newFixture(t)
	f.files.failWrite[f.locate(t, "b.pdf")] = true

	_, err := f.svc.AcceptUpload(context.Background(), owner, []FileUpload{pdf("a.pdf", "x"), pdf("b.pdf", "y")})
	require.Error(t, err)
	assert.Equal(t, errors.CodeStorage, errors.CodeOf(err))
	assert.False(t, f.exists(t, f.locate(t, "a.pdf")))
}

func TestAcceptUpload_ConflictIsDuplicateAndNotRolledBack(t *testing.T) {
	f := newFixture(t)
	f.repo.createErr["a.pdf"] = errors.Conflict("this file has already been uploaded")
	f.repo.createErr["b.pdf"] = errors.Internal("database unavailable")

	_, err := f.svc.AcceptUpload(context.Background(), owner, []FileUpload{pdf("a.pdf", "x"), pdf("b.pdf", "y")})
	require.Error(t, err)

	// a.pdf belongs to the request that won the race
	assert.True(t, f.exists(t, f.locate(t, "a.pdf")))
	assert.False(t, f.exists(t, f.locate(t, "b.pdf")))
}

func TestAcceptUpload_ConflictCountsAsDuplicate(t *testing.T) {
	f := newFixture(t)
	f.repo.createErr["a.pdf"] = errors.Conflict("this file has already been uploaded")

	result, err := f.svc.AcceptUpload(context.Background(), owner, []FileUpload{pdf("a.pdf", "x"), pdf("b.pdf", "y")})
	require.NoError(t, err)
	assert.Len(t, result.Uploaded, 1)
	assert.Equal(t, 1, result.DuplicatesSkipped)
}

func TestAcceptUpload_DispatchFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	f.dispatcher.err = assert.AnError

	_, err := f.svc.AcceptUpload(context.Background(), owner, []FileUpload{pdf("a.pdf", "x"), pdf("b.pdf", "y")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrServiceUnavailable))

	assert.False(t, f.exists(t, f.locate(t, "a.pdf")))
	assert.False(t, f.exists(t, f.locate(t, "b.pdf")))
	list, err := f.svc.List(context.Background(), owner, "")
	require.NoError(t, err)
	assert.Empty(t, list)
	f.pub.AssertNoEventsPublished(t)

	f.dispatcher.err = nil
	result, err := f.svc.AcceptUpload(context.Background(), owner, []FileUpload{pdf("a.pdf", "x"), pdf("b.pdf", "y")})
	require.NoError(t, err)
	assert.Len(t, result.Uploaded, 2)
	f.pub.AssertEventPublished(t, messaging.EventCVUploaded)
}

func TestPositions_FiltersDefaultsAndSorts(t *testing.T) {
	f := newFixture(t)
	for i, p := range []string{"Zoologist", domain.NotSpecified, "", "Analyst", domain.Placeholder} {
		rec := f.repo.seed(owner, "file:///p/"+string(rune('a'+i)), "x.pdf")
		require.NoError(t, f.repo.UpdateEnrichment(context.Background(), rec.ID, p, "s"))
	}

	positions, err := f.svc.Positions(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, []string{"Analyst", "Zoologist"}, positions)
}

func TestGet_ScopedToOwner(t *testing.T) {
	f := newFixture(t)
	rec := f.repo.seed(owner, "file:///x", "x.pdf")

	_, err := f.svc.Get(context.Background(), other, rec.ID)
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	_, err = f.svc.Get(context.Background(), owner, "nope")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestRetire(t *testing.T) {
	f := newFixture(t)
	result, err := f.svc.AcceptUpload(context.Background(), owner, []FileUpload{pdf("a.pdf", "x")})
	require.NoError(t, err)
	id := result.Uploaded[0].ID

	require.NoError(t, f.svc.Retire(context.Background(), owner, id))

	assert.False(t, f.exists(t, f.locate(t, "a.pdf")))
	_, err = f.svc.Get(context.Background(), owner, id)
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	list, err := f.svc.List(context.Background(), owner, "")
	require.NoError(t, err)
	assert.Empty(t, list)
	f.pub.AssertEventPublished(t, messaging.EventCVDeleted)

	assert.True(t, errors.Is(f.svc.Retire(context.Background(), owner, id), errors.ErrNotFound))
}

func TestRetire_FileDeleteFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	rec := f.repo.seed(owner, f.locate(t, "a.pdf"), "a.pdf")
	f.files.failDelete = true

	require.NoError(t, f.svc.Retire(context.Background(), owner, rec.ID))
	assert.Equal(t, []string{rec.ID}, f.repo.deactivated)
}

func TestBulkRetire_MalformedIDRejectsBatch(t *testing.T) {
	f := newFixture(t)
	rec := f.repo.seed(owner, "file:///x", "x.pdf")

	_, err := f.svc.BulkRetire(context.Background(), owner, []string{rec.ID, "123"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
	assert.Empty(t, f.repo.deactivated)

	_, err = f.svc.BulkRetire(context.Background(), owner, nil)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestBulkRetire_CountsDeletedAndNotFound(t *testing.T) {
	f := newFixture(t)
	a := f.repo.seed(owner, "file:///a", "a.pdf")
	b := f.repo.seed(owner, "file:///b", "b.pdf")
	foreign := f.repo.seed(other, "file:///c", "c.pdf")

	result, err := f.svc.BulkRetire(context.Background(), owner, []string{a.ID, b.ID, foreign.ID, domain.NewID()})
	require.NoError(t, err)
	assert.Equal(t, &BulkRetireResult{Deleted: 2, NotFound: 2}, result)
}

func TestDownload(t *testing.T) {
	f := newFixture(t)
	result, err := f.svc.AcceptUpload(context.Background(), owner, []FileUpload{pdf("Jane CV.pdf", "pdf-bytes")})
	require.NoError(t, err)
	id := result.Uploaded[0].ID

	dl, err := f.svc.Download(context.Background(), owner, id)
	require.NoError(t, err)
	defer dl.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(dl.Body)
	require.NoError(t, err)
	assert.Equal(t, "pdf-bytes", buf.String())
	assert.Equal(t, "Jane CV.pdf", dl.Record.OriginalName)
}

func TestDownload_MissingFile(t *testing.T) {
	f := newFixture(t)
	rec := f.repo.seed(owner, f.locate(t, "gone.pdf"), "gone.pdf")

	_, err := f.svc.Download(context.Background(), owner, rec.ID)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}
