package server

import (
	"encoding/json"
	"io"
	"net/http"

	"inkshelf/pkg/domain"
	"inkshelf/pkg/storage"
)

func decodeJSON(r *http.Request, dst any) bool {
	return json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst) == nil
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}
	if !decodeJSON(r, &req) {
		writeFail(w, http.StatusBadRequest, "Invalid JSON body", nil)
		return
	}
	admin, err := s.app.Register(req.Username, req.Email, req.Password, req.Name)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Registration successful", map[string]any{"admin": admin})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeJSON(r, &req) {
		writeFail(w, http.StatusBadRequest, "Invalid JSON body", nil)
		return
	}
	admin, bearer, err := s.app.Login(req.Email, req.Password)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Login successful", map[string]any{
		"token": bearer,
		"admin": admin,
	})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request, admin domain.Admin) {
	switch r.Method {
	case http.MethodGet:
		writeSuccess(w, http.StatusOK, "", map[string]any{"admin": admin})
	case http.MethodPut:
		var req struct {
			Name     *string `json:"name"`
			Username *string `json:"username"`
		}
		if !decodeJSON(r, &req) {
			writeFail(w, http.StatusBadRequest, "Invalid JSON body", nil)
			return
		}
		updated, err := s.app.UpdateProfile(admin, req.Name, req.Username)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeSuccess(w, http.StatusOK, "Profile updated", map[string]any{"admin": updated})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request, admin domain.Admin) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
		ConfirmPassword string `json:"confirmPassword"`
	}
	if !decodeJSON(r, &req) {
		writeFail(w, http.StatusBadRequest, "Invalid JSON body", nil)
		return
	}
	if err := s.app.ChangePassword(admin.ID, req.CurrentPassword, req.NewPassword, req.ConfirmPassword); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Password changed successfully", nil)
}

func (s *Server) handleUploadProfileImage(w http.ResponseWriter, r *http.Request, admin domain.Admin) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxProfileImageBytes)
	if err := r.ParseMultipartForm(4 << 20); err != nil {
		writeFail(w, http.StatusBadRequest, "Invalid form data", nil)
		return
	}
	upload, errs := formUpload(r, "profileImage", storage.KindProfileImage, "Profile image is required (field: profileImage)")
	if errs != nil {
		writeFail(w, http.StatusBadRequest, "Validation failed", errs)
		return
	}
	defer upload.close()
	ref, err := s.app.SetProfileImage(r.Context(), admin, upload.upload)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Profile image updated", map[string]any{"profileImage": ref})
}

func (s *Server) handleDeleteProfileImage(w http.ResponseWriter, r *http.Request, admin domain.Admin) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	if err := s.app.RemoveProfileImage(r.Context(), admin); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Profile image removed", nil)
}
