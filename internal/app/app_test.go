package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"inkshelf/internal/token"
	"inkshelf/pkg/domain"
	"inkshelf/pkg/mail"
	"inkshelf/pkg/storage"
	"inkshelf/pkg/store"
)

type fakeMedia struct {
	mu       sync.Mutex
	uploads  int
	deleted  []string
	failKind storage.Kind
}

func (f *fakeMedia) Upload(_ context.Context, kind storage.Kind, up storage.Upload) (domain.FileRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failKind != "" && kind == f.failKind {
		return domain.FileRef{}, errors.New("upload rejected")
	}
	f.uploads++
	id := fmt.Sprintf("%s/%d", kind, f.uploads)
	return domain.FileRef{
		URL:        "http://media.test/" + id,
		ExternalID: id,
		Filename:   up.Filename,
		SizeBytes:  up.Size,
	}, nil
}

func (f *fakeMedia) PresignGet(_ context.Context, externalID string, _ time.Duration) (string, error) {
	return "http://media.test/presigned/" + externalID, nil
}

func (f *fakeMedia) Delete(_ context.Context, externalID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, externalID)
	return nil
}

type failMailer struct{ calls int }

func (m *failMailer) SendFeedback(context.Context, domain.Feedback) error {
	m.calls++
	return errors.New("smtp unavailable")
}

type saveWorkFailStore struct {
	*store.MemoryStore
}

func (s *saveWorkFailStore) SaveWork(domain.Work) error {
	return errors.New("database down")
}

func newTestApp(t *testing.T, dataStore store.Store, media storage.MediaStore, mailer mail.Mailer) *App {
	t.Helper()
	if dataStore == nil {
		dataStore = store.NewMemoryStore()
	}
	if media == nil {
		media = &fakeMedia{}
	}
	tokens, err := token.NewManager("test-signing-secret", token.Options{})
	if err != nil {
		t.Fatalf("token manager: %v", err)
	}
	if mailer == nil {
		mailer, err = mail.NewSMTPMailer(mail.SMTPConfig{})
		if err != nil {
			t.Fatalf("mailer: %v", err)
		}
	}
	a, err := New(Config{Store: dataStore, Media: media, Mailer: mailer, Tokens: tokens})
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	return a
}

func registerAdmin(t *testing.T, a *App) domain.Admin {
	t.Helper()
	admin, err := a.Register("libadmin", "admin@example.com", "Passw0rd", "Library Admin")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return admin
}

func pdfUpload(name string) *storage.Upload {
	return &storage.Upload{
		Filename:    name,
		ContentType: "application/pdf",
		Size:        4,
		Reader:      strings.NewReader("fake"),
	}
}

func coverUpload() *storage.Upload {
	return &storage.Upload{
		Filename:    "cover.png",
		ContentType: "image/png",
		Size:        4,
		Reader:      strings.NewReader("fake"),
	}
}

func createWork(t *testing.T, a *App, creator domain.Admin, in WorkInput) domain.Work {
	t.Helper()
	work, err := a.CreateWork(context.Background(), creator, in, coverUpload(), pdfUpload("original.pdf"))
	if err != nil {
		t.Fatalf("CreateWork: %v", err)
	}
	return work
}

func TestRegisterDuplicateRejected(t *testing.T) {
	a := newTestApp(t, nil, nil, nil)
	first := registerAdmin(t, a)
	if first.Role != domain.RoleSuperAdmin {
		t.Fatalf("first account role = %q, want superadmin", first.Role)
	}

	if _, err := a.Register("libadmin", "other@example.com", "Passw0rd", "Other Admin"); KindOf(err) != KindConflict {
		t.Fatalf("duplicate username: kind = %v, want conflict", KindOf(err))
	}
	if _, err := a.Register("otheradmin", "admin@example.com", "Passw0rd", "Other Admin"); KindOf(err) != KindConflict {
		t.Fatalf("duplicate email: kind = %v, want conflict", KindOf(err))
	}

	second, err := a.Register("otheradmin", "other@example.com", "Passw0rd", "Other Admin")
	if err != nil {
		t.Fatalf("second register: %v", err)
	}
	if second.Role != domain.RoleAdmin {
		t.Fatalf("second account role = %q, want admin", second.Role)
	}
}

func TestRegisterValidation(t *testing.T) {
	a := newTestApp(t, nil, nil, nil)
	_, err := a.Register("x", "not-an-email", "short", "1")
	if KindOf(err) != KindValidation {
		t.Fatalf("kind = %v, want validation", KindOf(err))
	}
	fields := FieldsOf(err)
	for _, field := range []string{"username", "email", "password", "name"} {
		if fields[field] == "" {
			t.Fatalf("missing field error for %q: %v", field, fields)
		}
	}
}

func TestLoginWrongPassword(t *testing.T) {
	a := newTestApp(t, nil, nil, nil)
	registerAdmin(t, a)

	_, bearer, err := a.Login("admin@example.com", "WrongPass1")
	if KindOf(err) != KindAuth {
		t.Fatalf("kind = %v, want auth", KindOf(err))
	}
	if bearer != "" {
		t.Fatal("token issued for wrong password")
	}

	admin, bearer, err := a.Login("admin@example.com", "Passw0rd")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if bearer == "" {
		t.Fatal("no token issued")
	}
	if got, ok := a.Authenticate(bearer); !ok || got.ID != admin.ID {
		t.Fatalf("Authenticate: ok=%v id=%q", ok, got.ID)
	}
}

func TestLoginDeactivatedAccount(t *testing.T) {
	memStore := store.NewMemoryStore()
	a := newTestApp(t, memStore, nil, nil)
	admin := registerAdmin(t, a)

	admin.IsActive = false
	if err := memStore.SaveAdmin(admin); err != nil {
		t.Fatalf("SaveAdmin: %v", err)
	}
	if _, _, err := a.Login("admin@example.com", "Passw0rd"); KindOf(err) != KindAuth {
		t.Fatalf("kind = %v, want auth", KindOf(err))
	}
}

func TestCreateWorkNormalizesTags(t *testing.T) {
	a := newTestApp(t, nil, nil, nil)
	admin := registerAdmin(t, a)

	fromCommaString := createWork(t, a, admin, WorkInput{
		Title:       "Dune",
		Description: "Desert planet epic",
		Author:      "Frank Herbert",
		Genre:       "Science Fiction",
		Tags:        []string{" classic, sci-fi ,  epic "},
	})
	fromList := createWork(t, a, admin, WorkInput{
		Title:       "Hyperion",
		Description: "Pilgrim tales",
		Author:      "Dan Simmons",
		Genre:       "Science Fiction",
		Tags:        []string{"classic", " sci-fi", "epic "},
	})

	want := []string{"classic", "sci-fi", "epic"}
	for _, work := range []domain.Work{fromCommaString, fromList} {
		got, err := a.GetWork(work.ID, true)
		if err != nil {
			t.Fatalf("GetWork: %v", err)
		}
		if len(got.Tags) != len(want) {
			t.Fatalf("tags = %v, want %v", got.Tags, want)
		}
		for i := range want {
			if got.Tags[i] != want[i] {
				t.Fatalf("tags = %v, want %v", got.Tags, want)
			}
		}
	}
}

func TestCreateWorkRequiresBothFiles(t *testing.T) {
	a := newTestApp(t, nil, nil, nil)
	admin := registerAdmin(t, a)
	in := WorkInput{Title: "Dune", Description: "d", Author: "a", Genre: "g"}

	_, err := a.CreateWork(context.Background(), admin, in, nil, pdfUpload("x.pdf"))
	if KindOf(err) != KindValidation {
		t.Fatalf("missing cover: kind = %v, want validation", KindOf(err))
	}
	_, err = a.CreateWork(context.Background(), admin, in, coverUpload(), nil)
	if KindOf(err) != KindValidation {
		t.Fatalf("missing pdf: kind = %v, want validation", KindOf(err))
	}
}

func TestCreateWorkCompensatesOnStoreFailure(t *testing.T) {
	media := &fakeMedia{}
	a := newTestApp(t, &saveWorkFailStore{store.NewMemoryStore()}, media, nil)
	admin := domain.Admin{ID: "a1", Role: domain.RoleAdmin, IsActive: true}

	in := WorkInput{Title: "Dune", Description: "d", Author: "a", Genre: "g", Pages: 100}
	if _, err := a.CreateWork(context.Background(), admin, in, coverUpload(), pdfUpload("dune.pdf")); err == nil {
		t.Fatal("expected store failure")
	}
	if len(media.deleted) != 2 {
		t.Fatalf("deleted %d media objects, want 2 (both uploads compensated)", len(media.deleted))
	}
}

func TestCreateWorkCompensatesCoverWhenDocUploadFails(t *testing.T) {
	media := &fakeMedia{failKind: storage.KindDocument}
	a := newTestApp(t, nil, media, nil)
	admin := domain.Admin{ID: "a1", Role: domain.RoleAdmin, IsActive: true}

	in := WorkInput{Title: "Dune", Description: "d", Author: "a", Genre: "g", Pages: 100}
	_, err := a.CreateWork(context.Background(), admin, in, coverUpload(), pdfUpload("dune.pdf"))
	if KindOf(err) != KindUpstream {
		t.Fatalf("kind = %v, want upstream", KindOf(err))
	}
	if len(media.deleted) != 1 {
		t.Fatalf("deleted %d media objects, want 1 (the cover)", len(media.deleted))
	}
}

func TestVisibilityRules(t *testing.T) {
	a := newTestApp(t, nil, nil, nil)
	admin := registerAdmin(t, a)

	isPublic := true
	draft := createWork(t, a, admin, WorkInput{
		Title: "Draft Book", Description: "d", Author: "a", Genre: "g",
		Status: "draft", IsPublic: &isPublic,
	})
	hidden := createWork(t, a, admin, WorkInput{
		Title: "Hidden Book", Description: "d", Author: "a", Genre: "g",
		Status: "published", IsPublic: new(bool),
	})
	visible := createWork(t, a, admin, WorkInput{
		Title: "Visible Book", Description: "d", Author: "a", Genre: "g",
		Status: "published", IsPublic: &isPublic,
	})

	publicList, _, err := a.ListWorks(ListQuery{}, false)
	if err != nil {
		t.Fatalf("ListWorks: %v", err)
	}
	if len(publicList) != 1 || publicList[0].ID != visible.ID {
		t.Fatalf("public list = %v, want only the visible work", publicList)
	}

	adminList, _, err := a.ListWorks(ListQuery{}, true)
	if err != nil {
		t.Fatalf("ListWorks: %v", err)
	}
	if len(adminList) != 3 {
		t.Fatalf("admin list has %d works, want 3", len(adminList))
	}

	for _, id := range []string{draft.ID, hidden.ID} {
		if _, err := a.GetWork(id, false); KindOf(err) != KindNotFound {
			t.Fatalf("public GetWork(%s): kind = %v, want not_found", id, KindOf(err))
		}
		if _, _, err := a.RecordDownload(context.Background(), id, false); KindOf(err) != KindNotFound {
			t.Fatalf("public RecordDownload(%s): kind = %v, want not_found", id, KindOf(err))
		}
		if _, err := a.GetWork(id, true); err != nil {
			t.Fatalf("admin GetWork(%s): %v", id, err)
		}
	}
}

func TestListWorksPagination(t *testing.T) {
	a := newTestApp(t, nil, nil, nil)
	admin := registerAdmin(t, a)
	for i := 0; i < 7; i++ {
		createWork(t, a, admin, WorkInput{
			Title: fmt.Sprintf("Book %d", i), Description: "d", Author: "a", Genre: "g",
			Status: "published",
		})
	}

	works, pagination, err := a.ListWorks(ListQuery{Page: 2, Limit: 3}, false)
	if err != nil {
		t.Fatalf("ListWorks: %v", err)
	}
	if len(works) != 3 {
		t.Fatalf("page 2 has %d items, want 3", len(works))
	}
	if pagination.TotalBooks != 7 || pagination.TotalPages != 3 {
		t.Fatalf("pagination = %+v", pagination)
	}
	if !pagination.HasNextPage || !pagination.HasPrevPage {
		t.Fatalf("pagination flags = %+v", pagination)
	}

	_, pagination, err = a.ListWorks(ListQuery{Page: 3, Limit: 3}, false)
	if err != nil {
		t.Fatalf("ListWorks: %v", err)
	}
	if pagination.HasNextPage {
		t.Fatalf("hasNextPage = true on the last page: %+v", pagination)
	}

	if _, pagination, _ = a.ListWorks(ListQuery{Limit: 1000}, false); pagination.TotalPages != 1 {
		t.Fatalf("limit not clamped to 100: %+v", pagination)
	}
}

func TestRecordDownloadIncrementsCounter(t *testing.T) {
	a := newTestApp(t, nil, nil, nil)
	admin := registerAdmin(t, a)
	work := createWork(t, a, admin, WorkInput{
		Title: "Dune", Description: "d", Author: "a", Genre: "g", Status: "published",
	})

	for i := 0; i < 3; i++ {
		url, filename, err := a.RecordDownload(context.Background(), work.ID, false)
		if err != nil {
			t.Fatalf("RecordDownload: %v", err)
		}
		if url == "" || filename != "original.pdf" {
			t.Fatalf("RecordDownload = %q, %q", url, filename)
		}
	}
	got, err := a.GetWork(work.ID, true)
	if err != nil {
		t.Fatalf("GetWork: %v", err)
	}
	if got.DownloadCount != 3 {
		t.Fatalf("DownloadCount = %d, want 3", got.DownloadCount)
	}
}

func TestDeleteWorkReleasesMedia(t *testing.T) {
	media := &fakeMedia{}
	a := newTestApp(t, nil, media, nil)
	admin := registerAdmin(t, a)
	work := createWork(t, a, admin, WorkInput{
		Title: "Dune", Description: "d", Author: "a", Genre: "g",
	})

	if err := a.DeleteWork(context.Background(), work.ID); err != nil {
		t.Fatalf("DeleteWork: %v", err)
	}
	if _, err := a.GetWork(work.ID, true); KindOf(err) != KindNotFound {
		t.Fatalf("GetWork after delete: kind = %v, want not_found", KindOf(err))
	}
	if len(media.deleted) != 2 {
		t.Fatalf("deleted %d media objects, want 2", len(media.deleted))
	}
	seen := map[string]bool{}
	for _, id := range media.deleted {
		if seen[id] {
			t.Fatalf("media object %q deleted more than once", id)
		}
		seen[id] = true
	}
}

func TestSetStatusInvalidLeavesWorkUnchanged(t *testing.T) {
	a := newTestApp(t, nil, nil, nil)
	admin := registerAdmin(t, a)
	work := createWork(t, a, admin, WorkInput{
		Title: "Dune", Description: "d", Author: "a", Genre: "g", Status: "draft",
	})

	if _, err := a.SetStatus(work.ID, "retired"); KindOf(err) != KindValidation {
		t.Fatalf("kind = %v, want validation", KindOf(err))
	}
	got, err := a.GetWork(work.ID, true)
	if err != nil {
		t.Fatalf("GetWork: %v", err)
	}
	if got.Status != domain.StatusDraft {
		t.Fatalf("status = %q, want draft", got.Status)
	}

	updated, err := a.SetStatus(work.ID, "published")
	if err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if updated.Status != domain.StatusPublished {
		t.Fatalf("status = %q, want published", updated.Status)
	}
}

func TestToggleVisibility(t *testing.T) {
	a := newTestApp(t, nil, nil, nil)
	admin := registerAdmin(t, a)
	work := createWork(t, a, admin, WorkInput{
		Title: "Dune", Description: "d", Author: "a", Genre: "g",
	})
	if !work.IsPublic {
		t.Fatal("new work should default to public")
	}
	toggled, err := a.ToggleVisibility(work.ID)
	if err != nil {
		t.Fatalf("ToggleVisibility: %v", err)
	}
	if toggled.IsPublic {
		t.Fatal("toggle did not flip the flag")
	}
}

func TestUpdateWorkReplacesMedia(t *testing.T) {
	media := &fakeMedia{}
	a := newTestApp(t, nil, media, nil)
	admin := registerAdmin(t, a)
	work := createWork(t, a, admin, WorkInput{
		Title: "Dune", Description: "d", Author: "a", Genre: "g",
	})
	oldCoverID := work.CoverImage.ExternalID

	title := "Dune Messiah"
	updated, err := a.UpdateWork(context.Background(), work.ID, WorkPatch{Title: &title}, coverUpload(), nil)
	if err != nil {
		t.Fatalf("UpdateWork: %v", err)
	}
	if updated.Title != "Dune Messiah" {
		t.Fatalf("title = %q", updated.Title)
	}
	if updated.CoverImage.ExternalID == oldCoverID {
		t.Fatal("cover reference not replaced")
	}
	if updated.Author != "a" || updated.PDFFile.ExternalID != work.PDFFile.ExternalID {
		t.Fatal("omitted fields changed")
	}
	if len(media.deleted) != 1 || media.deleted[0] != oldCoverID {
		t.Fatalf("deleted = %v, want the old cover only", media.deleted)
	}
}

func TestUpdateWorkISBNConflict(t *testing.T) {
	a := newTestApp(t, nil, nil, nil)
	admin := registerAdmin(t, a)
	createWork(t, a, admin, WorkInput{
		Title: "Dune", Description: "d", Author: "a", Genre: "g", ISBN: "9780441172719",
	})
	other := createWork(t, a, admin, WorkInput{
		Title: "Hyperion", Description: "d", Author: "a", Genre: "g",
	})

	isbn := "9780441172719"
	if _, err := a.UpdateWork(context.Background(), other.ID, WorkPatch{ISBN: &isbn}, nil, nil); KindOf(err) != KindConflict {
		t.Fatalf("kind = %v, want conflict", KindOf(err))
	}
}

func TestSubmitFeedbackSurvivesRelayFailure(t *testing.T) {
	memStore := store.NewMemoryStore()
	mailer := &failMailer{}
	a := newTestApp(t, memStore, nil, mailer)

	fb, err := a.SubmitFeedback(context.Background(), "Reader", "reader@example.com", "Great library!")
	if err != nil {
		t.Fatalf("SubmitFeedback: %v", err)
	}
	if fb.ID == "" {
		t.Fatal("feedback not assigned an id")
	}
	if mailer.calls != 1 {
		t.Fatalf("mailer called %d times, want 1", mailer.calls)
	}
	if got := memStore.Feedback(); len(got) != 1 || got[0].ID != fb.ID {
		t.Fatalf("persisted feedback = %v", got)
	}
}

func TestSubmitFeedbackValidation(t *testing.T) {
	a := newTestApp(t, nil, nil, nil)
	_, err := a.SubmitFeedback(context.Background(), "", "bad-email", " ")
	if KindOf(err) != KindValidation {
		t.Fatalf("kind = %v, want validation", KindOf(err))
	}
	fields := FieldsOf(err)
	for _, field := range []string{"name", "email", "message"} {
		if fields[field] == "" {
			t.Fatalf("missing field error for %q: %v", field, fields)
		}
	}
}

func TestChangePassword(t *testing.T) {
	a := newTestApp(t, nil, nil, nil)
	admin := registerAdmin(t, a)

	if err := a.ChangePassword(admin.ID, "WrongPass1", "NewPassw0rd", "NewPassw0rd"); KindOf(err) != KindAuth {
		t.Fatalf("wrong current: kind = %v, want auth", KindOf(err))
	}
	if err := a.ChangePassword(admin.ID, "Passw0rd", "NewPassw0rd", "Different1"); KindOf(err) != KindValidation {
		t.Fatalf("mismatched confirm: kind = %v, want validation", KindOf(err))
	}
	if err := a.ChangePassword(admin.ID, "Passw0rd", "NewPassw0rd", "NewPassw0rd"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, _, err := a.Login("admin@example.com", "Passw0rd"); KindOf(err) != KindAuth {
		t.Fatal("old password still accepted")
	}
	if _, _, err := a.Login("admin@example.com", "NewPassw0rd"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

func TestProfileImageLifecycle(t *testing.T) {
	media := &fakeMedia{}
	memStore := store.NewMemoryStore()
	a := newTestApp(t, memStore, media, nil)
	admin := registerAdmin(t, a)

	upload := storage.Upload{Filename: "me.png", ContentType: "image/png", Size: 4, Reader: strings.NewReader("fake")}
	first, err := a.SetProfileImage(context.Background(), admin, upload)
	if err != nil {
		t.Fatalf("SetProfileImage: %v", err)
	}

	admin, err = a.GetProfile(admin.ID)
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	upload.Reader = strings.NewReader("fake")
	second, err := a.SetProfileImage(context.Background(), admin, upload)
	if err != nil {
		t.Fatalf("SetProfileImage (replace): %v", err)
	}
	if second.ExternalID == first.ExternalID {
		t.Fatal("replacement kept the old reference")
	}
	if len(media.deleted) != 1 || media.deleted[0] != first.ExternalID {
		t.Fatalf("deleted = %v, want the first image", media.deleted)
	}

	admin, _ = a.GetProfile(admin.ID)
	if err := a.RemoveProfileImage(context.Background(), admin); err != nil {
		t.Fatalf("RemoveProfileImage: %v", err)
	}
	admin, _ = a.GetProfile(admin.ID)
	if admin.ProfileImage != nil {
		t.Fatal("profile image still set after removal")
	}
	if err := a.RemoveProfileImage(context.Background(), admin); KindOf(err) != KindNotFound {
		t.Fatalf("second removal: kind = %v, want not_found", KindOf(err))
	}
}
