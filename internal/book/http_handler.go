package book

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"bookshelf/internal/httpx"

	"github.com/go-chi/chi/v5"
)

type HTTPHandler struct {
	service *Service
	logger  *slog.Logger
}

func NewHTTPHandler(service *Service, logger *slog.Logger) *HTTPHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPHandler{service: service, logger: logger}
}

// Register mounts the book routes. The caller is expected to wrap r with
// httpx.AuthMiddleware.
func (h *HTTPHandler) Register(r chi.Router) {
	r.Get("/books", h.List)
	r.Post("/books", h.Create)
	r.Put("/books/{id}", h.Update)
	r.Delete("/books/{id}", h.Delete)
}

// @Summary List books
// @Description List every book owned by the authenticated user
// @Tags books
// @Produce json
// @Security BearerAuth
// @Success 200 {object} httpx.SuccessResponse
// @Failure 401 {object} httpx.ErrorResponse
// @Router /books [get]
func (h *HTTPHandler) List(w http.ResponseWriter, r *http.Request) {
	books, err := h.service.List(r.Context(), httpx.UserIDFrom(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSONSuccess(w, r, books, map[string]any{"count": len(books)})
}

// @Summary Create book
// @Tags books
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param book body Fields true "Book fields"
// @Success 200 {object} httpx.SuccessResponse
// @Failure 400 {object} httpx.ErrorResponse
// @Failure 401 {object} httpx.ErrorResponse
// @Failure 409 {object} httpx.ErrorResponse
// @Router /books [post]
func (h *HTTPHandler) Create(w http.ResponseWriter, r *http.Request) {
	f, ok := h.decodeFields(w, r)
	if !ok {
		return
	}
	b, err := h.service.Create(r.Context(), httpx.UserIDFrom(r), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSONSuccess(w, r, b, map[string]any{"message": "Book created successfully"})
}

// @Summary Update book
// @Tags books
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Book ID"
// @Param book body Fields true "Book fields"
// @Success 200 {object} httpx.SuccessResponse
// @Failure 400 {object} httpx.ErrorResponse
// @Failure 401 {object} httpx.ErrorResponse
// @Failure 404 {object} httpx.ErrorResponse
// @Failure 409 {object} httpx.ErrorResponse
// @Router /books/{id} [put]
func (h *HTTPHandler) Update(w http.ResponseWriter, r *http.Request) {
	f, ok := h.decodeFields(w, r)
	if !ok {
		return
	}
	b, err := h.service.Update(r.Context(), httpx.UserIDFrom(r), chi.URLParam(r, "id"), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSONSuccess(w, r, b, map[string]any{"message": "Book updated successfully"})
}

// @Summary Delete book
// @Tags books
// @Produce json
// @Security BearerAuth
// @Param id path string true "Book ID"
// @Success 200 {object} httpx.SuccessResponse
// @Failure 401 {object} httpx.ErrorResponse
// @Failure 404 {object} httpx.ErrorResponse
// @Router /books/{id} [delete]
func (h *HTTPHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.Delete(r.Context(), httpx.UserIDFrom(r), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	const msg = "Book deleted successfully"
	httpx.JSONSuccess(w, r, map[string]string{"message": msg, "id": id}, map[string]any{"message": msg})
}

func (h *HTTPHandler) decodeFields(w http.ResponseWriter, r *http.Request) (Fields, bool) {
	var f Fields
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.JSONError(w, r, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body too large", nil)
			return Fields{}, false
		}
		httpx.JSONError(w, r, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body", nil)
		return Fields{}, false
	}
	return f, true
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		httpx.JSONError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid input", verr.Details)
	case errors.Is(err, ErrDuplicateISBN):
		httpx.JSONError(w, r, http.StatusConflict, "DUPLICATE_ISBN", "A book with this ISBN already exists", nil)
	case errors.Is(err, ErrNotFound):
		httpx.JSONError(w, r, http.StatusNotFound, "NOT_FOUND", "Book not found", nil)
	case errors.Is(err, ErrUnauthorized):
		httpx.JSONError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Not authorized", nil)
	default:
		h.logger.ErrorContext(r.Context(), "book request failed",
			"error", err,
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", httpx.RequestIDFrom(r),
			"user_id", httpx.UserIDFrom(r),
		)
		httpx.JSONError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error", nil)
	}
}
