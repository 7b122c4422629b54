package engine

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Iron-Ham/instamo/internal/errors"
)

// RootUser is the only user the roles know.
const RootUser = "root"

const (
	maxBodySize     = 16 << 20
	shutdownTimeout = 5 * time.Second
)

// PasswordDigest is the stored form of a user's password.
func PasswordDigest(instanceID, password string) string {
	sum := sha256.Sum256([]byte(instanceID + ":" + password))
	return hex.EncodeToString(sum[:])
}

// listen binds port on all interfaces. With search, a busy port falls back
// to any free one. It returns the listener and its advertised address.
func listen(port int, search bool, logger *zap.Logger) (net.Listener, string, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil && search {
		logger.Warn("configured port busy, searching", zap.Int("port", port), zap.Error(err))
		ln, err = net.Listen("tcp", ":0")
	}
	if err != nil {
		return nil, "", errors.Wrapf(err, "listen on port %d", port)
	}
	actual := ln.Addr().(*net.TCPAddr).Port
	return ln, "localhost:" + strconv.Itoa(actual), nil
}

// serve runs handler on ln and every background task until ctx is done or
// one of them fails, then shuts the server down.
func serve(ctx context.Context, ln net.Listener, handler http.Handler, logger *zap.Logger, background ...func(context.Context) error) error {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("serving", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "serve")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	for _, task := range background {
		g.Go(func() error {
			return task(gctx)
		})
	}
	return g.Wait()
}

// withMiddleware installs the common request middleware on router.
func withMiddleware(router *mux.Router, logger *zap.Logger) *mux.Router {
	router.Use(recovery(logger), requestID, requestLog(logger))
	return router
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
			r.Header.Set("X-Request-ID", id)
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func requestLog(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", sw.status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", r.Header.Get("X-Request-ID")),
			)
		})
	}
}

func recovery(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					logger.Error("handler panic", zap.Any("panic", v), zap.String("path", r.URL.Path))
					http.Error(w, "internal error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// authenticate accepts the root user's password over basic auth, or the
// stored digest as a bearer token for role-to-role calls.
func authenticate(instanceID, digest string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var presented string
			if user, pw, ok := r.BasicAuth(); ok && user == RootUser {
				presented = PasswordDigest(instanceID, pw)
			} else if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
				presented = token
			}
			if presented == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(digest)) != 1 {
				w.Header().Set("WWW-Authenticate", `Basic realm="instamo"`)
				http.Error(w, "authentication failed", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(errors.Join(errors.ErrInvalidInput, err), "decode request body")
	}
	return nil
}

func health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
