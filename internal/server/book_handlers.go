package server

import (
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"inkshelf/internal/app"
	"inkshelf/pkg/domain"
	"inkshelf/pkg/storage"
)

var dateLayouts = []string{time.RFC3339, "2006-01-02"}

type formFile struct {
	upload storage.Upload
	file   multipart.File
}

func (f *formFile) close() {
	if f != nil && f.file != nil {
		_ = f.file.Close()
	}
}

func (f *formFile) uploadOrNil() *storage.Upload {
	if f == nil {
		return nil
	}
	return &f.upload
}

// formUpload extracts and validates one file field. An empty requiredMsg
// makes the field optional.
func formUpload(r *http.Request, field string, kind storage.Kind, requiredMsg string) (*formFile, []fieldError) {
	file, header, err := r.FormFile(field)
	if err != nil {
		if requiredMsg == "" {
			return nil, nil
		}
		return nil, []fieldError{{Field: field, Message: requiredMsg}}
	}
	contentType := header.Header.Get("Content-Type")
	if !storage.AllowedContentType(kind, contentType) {
		_ = file.Close()
		message := "Only JPG, JPEG, PNG and WEBP images are allowed"
		if kind == storage.KindDocument {
			message = "Only PDF files are allowed"
		}
		return nil, []fieldError{{Field: field, Message: message}}
	}
	return &formFile{
		upload: storage.Upload{
			Filename:    header.Filename,
			ContentType: contentType,
			Size:        header.Size,
			Reader:      file,
		},
		file: file,
	}, nil
}

func formValue(r *http.Request, key string) (string, bool) {
	values := r.Form[key]
	if r.MultipartForm != nil {
		values = r.MultipartForm.Value[key]
	}
	if len(values) == 0 {
		return "", false
	}
	return values[0], true
}

func formValues(r *http.Request, key string) ([]string, bool) {
	values := r.Form[key]
	if r.MultipartForm != nil {
		values = r.MultipartForm.Value[key]
	}
	return values, len(values) > 0
}

func parseDate(raw string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request, admin *domain.Admin) {
	switch r.Method {
	case http.MethodGet:
		s.handleListBooks(w, r, admin)
	case http.MethodPost:
		if admin == nil {
			writeFail(w, http.StatusUnauthorized, "Authentication required", nil)
			return
		}
		s.handleCreateBook(w, r, *admin)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request, admin *domain.Admin) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	works, pagination, err := s.app.ListWorks(app.ListQuery{
		Search:    q.Get("search"),
		Genre:     q.Get("genre"),
		Status:    q.Get("status"),
		SortBy:    q.Get("sortBy"),
		SortOrder: q.Get("sortOrder"),
		Page:      page,
		Limit:     limit,
	}, admin != nil)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", map[string]any{
		"books":      works,
		"pagination": pagination,
	})
}

func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request, admin domain.Admin) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeFail(w, http.StatusBadRequest, "Invalid form data", nil)
		return
	}

	in, errs := workInputFromForm(r)
	cover, coverErrs := formUpload(r, "coverImage", storage.KindCoverImage, "Cover image is required (field: coverImage)")
	errs = append(errs, coverErrs...)
	doc, docErrs := formUpload(r, "pdfFile", storage.KindDocument, "PDF file is required (field: pdfFile)")
	errs = append(errs, docErrs...)
	defer cover.close()
	defer doc.close()
	if len(errs) > 0 {
		writeFail(w, http.StatusBadRequest, "Validation failed", errs)
		return
	}

	work, err := s.app.CreateWork(r.Context(), admin, in, cover.uploadOrNil(), doc.uploadOrNil())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Book created", map[string]any{"book": work})
}

func workInputFromForm(r *http.Request) (app.WorkInput, []fieldError) {
	var errs []fieldError
	in := app.WorkInput{}
	in.Title, _ = formValue(r, "title")
	in.Description, _ = formValue(r, "description")
	in.Author, _ = formValue(r, "author")
	in.Genre, _ = formValue(r, "genre")
	in.ISBN, _ = formValue(r, "isbn")
	in.Language, _ = formValue(r, "language")
	in.Status, _ = formValue(r, "status")
	in.Tags, _ = formValues(r, "tags")

	if raw, ok := formValue(r, "pages"); ok && raw != "" {
		pages, err := strconv.Atoi(raw)
		if err != nil {
			errs = append(errs, fieldError{Field: "pages", Message: "Pages must be a number"})
		} else {
			in.Pages = pages
		}
	}
	if raw, ok := formValue(r, "price"); ok && raw != "" {
		price, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			errs = append(errs, fieldError{Field: "price", Message: "Price must be a number"})
		} else {
			in.Price = price
		}
	}
	if raw, ok := formValue(r, "isPublic"); ok && raw != "" {
		isPublic, err := strconv.ParseBool(raw)
		if err != nil {
			errs = append(errs, fieldError{Field: "isPublic", Message: "isPublic must be a boolean"})
		} else {
			in.IsPublic = &isPublic
		}
	}
	if raw, ok := formValue(r, "publishedDate"); ok && raw != "" {
		ts, ok := parseDate(raw)
		if !ok {
			errs = append(errs, fieldError{Field: "publishedDate", Message: "publishedDate must be a valid date"})
		} else {
			in.PublishedDate = &ts
		}
	}
	return in, errs
}

func workPatchFromForm(r *http.Request) (app.WorkPatch, []fieldError) {
	var errs []fieldError
	patch := app.WorkPatch{}
	setString := func(key string, dst **string) {
		if raw, ok := formValue(r, key); ok {
			value := raw
			*dst = &value
		}
	}
	setString("title", &patch.Title)
	setString("description", &patch.Description)
	setString("author", &patch.Author)
	setString("genre", &patch.Genre)
	setString("isbn", &patch.ISBN)
	setString("language", &patch.Language)
	setString("status", &patch.Status)
	if values, ok := formValues(r, "tags"); ok {
		patch.Tags = values
	}

	if raw, ok := formValue(r, "pages"); ok && raw != "" {
		pages, err := strconv.Atoi(raw)
		if err != nil {
			errs = append(errs, fieldError{Field: "pages", Message: "Pages must be a number"})
		} else {
			patch.Pages = &pages
		}
	}
	if raw, ok := formValue(r, "price"); ok && raw != "" {
		price, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			errs = append(errs, fieldError{Field: "price", Message: "Price must be a number"})
		} else {
			patch.Price = &price
		}
	}
	if raw, ok := formValue(r, "isPublic"); ok && raw != "" {
		isPublic, err := strconv.ParseBool(raw)
		if err != nil {
			errs = append(errs, fieldError{Field: "isPublic", Message: "isPublic must be a boolean"})
		} else {
			patch.IsPublic = &isPublic
		}
	}
	if raw, ok := formValue(r, "publishedDate"); ok && raw != "" {
		ts, ok := parseDate(raw)
		if !ok {
			errs = append(errs, fieldError{Field: "publishedDate", Message: "publishedDate must be a valid date"})
		} else {
			patch.PublishedDate = &ts
		}
	}
	return patch, errs
}

// /api/books/{id}, /api/books/{id}/download, /api/books/{id}/toggle-visibility,
// /api/books/{id}/status
func (s *Server) handleBookByID(w http.ResponseWriter, r *http.Request, admin *domain.Admin) {
	path := strings.TrimPrefix(r.URL.Path, "/api/books/")
	parts := strings.SplitN(path, "/", 2)
	id := parts[0]
	if id == "" {
		notFound(w)
		return
	}
	if len(parts) == 2 {
		switch parts[1] {
		case "download":
			s.handleDownloadBook(w, r, admin, id)
		case "toggle-visibility":
			s.withAdmin(w, r, admin, func(a domain.Admin) { s.handleToggleVisibility(w, r, id) })
		case "status":
			s.withAdmin(w, r, admin, func(a domain.Admin) { s.handleSetStatus(w, r, id) })
		default:
			notFound(w)
		}
		return
	}

	switch r.Method {
	case http.MethodGet:
		work, err := s.app.GetWork(id, admin != nil)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeSuccess(w, http.StatusOK, "", map[string]any{"book": work})
	case http.MethodPut:
		s.withAdmin(w, r, admin, func(a domain.Admin) { s.handleUpdateBook(w, r, id) })
	case http.MethodDelete:
		s.withAdmin(w, r, admin, func(a domain.Admin) {
			if err := s.app.DeleteWork(r.Context(), id); err != nil {
				writeAppError(w, r, err)
				return
			}
			writeSuccess(w, http.StatusOK, "Book deleted", nil)
		})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) withAdmin(w http.ResponseWriter, r *http.Request, admin *domain.Admin, next func(domain.Admin)) {
	if admin == nil {
		writeFail(w, http.StatusUnauthorized, "Authentication required", nil)
		return
	}
	next(*admin)
}

func (s *Server) handleUpdateBook(w http.ResponseWriter, r *http.Request, id string) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			writeFail(w, http.StatusBadRequest, "Invalid form data", nil)
			return
		}
	} else if err := r.ParseForm(); err != nil {
		writeFail(w, http.StatusBadRequest, "Invalid form data", nil)
		return
	}

	patch, errs := workPatchFromForm(r)
	cover, coverErrs := formUpload(r, "coverImage", storage.KindCoverImage, "")
	errs = append(errs, coverErrs...)
	doc, docErrs := formUpload(r, "pdfFile", storage.KindDocument, "")
	errs = append(errs, docErrs...)
	defer cover.close()
	defer doc.close()
	if len(errs) > 0 {
		writeFail(w, http.StatusBadRequest, "Validation failed", errs)
		return
	}

	work, err := s.app.UpdateWork(r.Context(), id, patch, cover.uploadOrNil(), doc.uploadOrNil())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Book updated", map[string]any{"book": work})
}

func (s *Server) handleDownloadBook(w http.ResponseWriter, r *http.Request, admin *domain.Admin, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	url, filename, err := s.app.RecordDownload(r.Context(), id, admin != nil)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", map[string]any{
		"downloadUrl": url,
		"filename":    filename,
	})
}

func (s *Server) handleToggleVisibility(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w)
		return
	}
	work, err := s.app.ToggleVisibility(id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Visibility updated", map[string]any{"book": work})
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w)
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if !decodeJSON(r, &req) {
		writeFail(w, http.StatusBadRequest, "Invalid JSON body", nil)
		return
	}
	work, err := s.app.SetStatus(id, req.Status)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Status updated", map[string]any{"book": work})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request, _ domain.Admin) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	stats, err := s.app.Stats()
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", stats)
}
