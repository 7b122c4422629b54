package coord

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/Iron-Ham/instamo/internal/errors"
)

// maxNodeSize bounds a node's data.
const maxNodeSize = 1 << 20

// Handler serves a Store over HTTP.
type Handler struct {
	store  *Store
	logger *zap.Logger
}

// NewHandler returns a router exposing store:
//
//	GET    /v1/ruok              liveness, answers "imok"
//	GET    /v1/nodes/{path}      node data
//	PUT    /v1/nodes/{path}      write; "If-None-Match: *" makes it create-only
//	DELETE /v1/nodes/{path}      recursive delete
//	GET    /v1/children/{path}   JSON array of child names
func NewHandler(store *Store, logger *zap.Logger) *mux.Router {
	h := &Handler{store: store, logger: logger}

	router := mux.NewRouter()
	v1 := router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/ruok", h.ruok).Methods(http.MethodGet)
	v1.HandleFunc("/nodes/{path:.*}", h.get).Methods(http.MethodGet)
	v1.HandleFunc("/nodes/{path:.*}", h.put).Methods(http.MethodPut)
	v1.HandleFunc("/nodes/{path:.*}", h.delete).Methods(http.MethodDelete)
	v1.HandleFunc("/children/{path:.*}", h.children).Methods(http.MethodGet)
	return router
}

func (h *Handler) ruok(w http.ResponseWriter, _ *http.Request) {
	_, _ = io.WriteString(w, "imok")
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	data, err := h.store.Get(mux.Vars(r)["path"])
	if err != nil {
		h.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(data)
}

func (h *Handler) put(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxNodeSize+1))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(data) > maxNodeSize {
		http.Error(w, "node data too large", http.StatusRequestEntityTooLarge)
		return
	}

	p := mux.Vars(r)["path"]
	createOnly := r.Header.Get("If-None-Match") == "*"
	if err := h.store.Set(p, data, createOnly); err != nil {
		h.fail(w, err)
		return
	}
	h.logger.Debug("node written", zap.String("path", Clean(p)), zap.Int("bytes", len(data)))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	p := mux.Vars(r)["path"]
	if err := h.store.Delete(p); err != nil {
		h.fail(w, err)
		return
	}
	h.logger.Debug("node deleted", zap.String("path", Clean(p)))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) children(w http.ResponseWriter, r *http.Request) {
	names, err := h.store.Children(mux.Vars(r)["path"])
	if err != nil {
		h.fail(w, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(names)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNoNode):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrNodeExists):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, errors.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error("store operation failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
