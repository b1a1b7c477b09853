package server

import "net/http"

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		Name    string `json:"name"`
		Email   string `json:"email"`
		Message string `json:"message"`
	}
	if !decodeJSON(r, &req) {
		writeFail(w, http.StatusBadRequest, "Invalid JSON body", nil)
		return
	}
	fb, err := s.app.SubmitFeedback(r.Context(), req.Name, req.Email, req.Message)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Thank you for your feedback", map[string]any{"feedback": fb})
}
