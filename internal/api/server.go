// internal/api/server.go
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/gorilla/mux"
	"github.com/ugorji/go/codec"
)

const (
	APIv1Prefix = "/api/v1"
	ContentType = "Content-Type"
	ContentJSON = "application/json"

	requestTimeout  = 5 * time.Second
	shutdownTimeout = 2 * time.Second
)

var jsonHandle = &codec.JsonHandle{}

// Routes builds the REST router over store.
func Routes(store *Store, logger log.Logger) http.Handler {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	h := &handlers{store: store, logger: logger}

	r := mux.NewRouter()
	b := r.PathPrefix(APIv1Prefix).Subrouter()
	b.HandleFunc("/ping", h.ping).Methods(http.MethodGet)
	b.HandleFunc("/meters", h.meters).Methods(http.MethodGet)
	b.HandleFunc("/meters/{id}", h.meter).Methods(http.MethodGet)

	return http.TimeoutHandler(r, requestTimeout, "Request timed out")
}

type handlers struct {
	store  *Store
	logger log.Logger
}

func (h *handlers) ping(w http.ResponseWriter, r *http.Request) {
	w.Header().Set(ContentType, "text/plain")
	_, _ = w.Write([]byte("pong"))
}

func (h *handlers) meters(w http.ResponseWriter, r *http.Request) {
	h.encode(w, http.StatusOK, h.store.List())
}

func (h *handlers) meter(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	v, ok := h.store.Get(id)
	if !ok {
		h.encode(w, http.StatusNotFound, map[string]string{"error": "unknown meter " + id})
		return
	}
	h.encode(w, http.StatusOK, v)
}

func (h *handlers) encode(w http.ResponseWriter, code int, v interface{}) {
	var body []byte
	if err := codec.NewEncoderBytes(&body, jsonHandle).Encode(v); err != nil {
		level.Error(h.logger).Log("msg", "encode response", "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set(ContentType, ContentJSON)
	w.WriteHeader(code)
	_, _ = w.Write(body)
}

// Serve runs the REST server on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, handler http.Handler, logger log.Logger) error {
	srv := &http.Server{Addr: addr, Handler: handler}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	level.Info(logger).Log("msg", "REST listening", "addr", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
