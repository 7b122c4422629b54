package engine

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/Iron-Ham/instamo/internal/engine/coord"
	"github.com/Iron-Ham/instamo/internal/engine/tablet"
	"github.com/Iron-Ham/instamo/internal/errors"
	"github.com/Iron-Ham/instamo/internal/siteconf"
)

var (
	errTableNotFound = errors.New("table does not exist")
	errNotHosted     = errors.New("table is hosted by another server")
)

// WriteResponse is the body returned for an applied mutation batch.
type WriteResponse struct {
	Applied   int   `json:"applied"`
	Timestamp int64 `json:"timestamp"`
}

type hostedTablet struct {
	info coord.TableInfo
	tab  *tablet.Tablet
	// mu keeps log order and apply order the same.
	mu sync.Mutex
}

type tabletServer struct {
	*member
	addr string

	mu      sync.Mutex
	tablets map[string]*hostedTablet

	logMu     sync.Mutex
	log       tablet.Log
	remoteLog bool
}

func runTabletServer(ctx context.Context, env *Env, _ []string) error {
	m, err := join(ctx, env)
	if err != nil {
		return err
	}
	portValue, err := requireKey(m.site, siteconf.KeyTServerPort)
	if err != nil {
		return err
	}
	port, err := strconv.Atoi(portValue)
	if err != nil {
		return errors.Wrapf(errors.ErrInvalidInput, "%s=%q", siteconf.KeyTServerPort, portValue)
	}

	// Every tablet server reads the same configured port, so all but the
	// first search for a free one.
	ln, addr, err := listen(port, true, env.Logger)
	if err != nil {
		return err
	}

	s := &tabletServer{member: m, addr: addr, tablets: make(map[string]*hostedTablet)}
	if _, ok := m.site.Get(siteconf.KeyLoggerDir); ok {
		s.remoteLog = true
	} else {
		dir := env.WALogDir(m.site)
		fileLog, err := tablet.NewFileLog(env.Fs, dir)
		if err != nil {
			_ = ln.Close()
			return err
		}
		s.log = fileLog
		env.Logger.Info("write-ahead log", zap.String("dir", dir))
	}

	deregister, err := m.register(ctx, coord.TabletServersPath(m.instanceID), addr)
	if err != nil {
		_ = ln.Close()
		return err
	}
	return serve(ctx, ln, s.routes(), env.Logger, deregister)
}

func (s *tabletServer) routes() *mux.Router {
	router := withMiddleware(mux.NewRouter(), s.env.Logger)
	router.HandleFunc("/health", health).Methods(http.MethodGet)

	v1 := router.PathPrefix("/v1").Subrouter()
	v1.Use(authenticate(s.instanceID, s.digest))
	v1.HandleFunc("/tables/{table}/mutations", s.write).Methods(http.MethodPost)
	v1.HandleFunc("/tables/{table}/scan", s.scan).Methods(http.MethodGet)
	return router
}

func (s *tabletServer) write(w http.ResponseWriter, r *http.Request) {
	var muts []tablet.Mutation
	if err := decodeJSON(w, r, &muts); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := tablet.Validate(muts); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h, err := s.hosted(r.Context(), mux.Vars(r)["table"])
	if err != nil {
		s.fail(w, err)
		return
	}
	wal, err := s.writeAheadLog(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	ts := h.tab.NextTimestamp()
	if err := wal.Append(tablet.Record{Table: h.info.ID, Timestamp: ts, Mutations: muts}); err != nil {
		s.env.Logger.Error("log append failed", zap.String("table", h.info.Name), zap.Error(err))
		http.Error(w, "write-ahead log unavailable", http.StatusServiceUnavailable)
		return
	}
	h.tab.Apply(ts, muts)
	writeJSON(w, http.StatusOK, WriteResponse{Applied: len(muts), Timestamp: ts})
}

func (s *tabletServer) scan(w http.ResponseWriter, r *http.Request) {
	h, err := s.hosted(r.Context(), mux.Vars(r)["table"])
	if err != nil {
		s.fail(w, err)
		return
	}
	q := r.URL.Query()
	writeJSON(w, http.StatusOK, h.tab.Scan(q.Get("start"), q.Get("end")))
}

// hosted returns the named tablet, replaying its log on first use.
func (s *tabletServer) hosted(ctx context.Context, name string) (*hostedTablet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.tablets[name]; ok {
		return h, nil
	}

	info, err := coord.LookupTable(ctx, s.coord, s.instanceID, name)
	if err != nil {
		if errors.Is(err, coord.ErrNoNode) {
			return nil, errTableNotFound
		}
		return nil, err
	}
	if info.Server != s.addr {
		return nil, errNotHosted
	}

	wal, err := s.writeAheadLog(ctx)
	if err != nil {
		return nil, err
	}
	recs, err := wal.Replay(info.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "replay table %s", name)
	}
	h := &hostedTablet{info: *info, tab: tablet.New()}
	for _, rec := range recs {
		h.tab.Apply(rec.Timestamp, rec.Mutations)
	}
	s.tablets[name] = h
	s.env.Logger.Info("tablet loaded", zap.String("table", name), zap.String("id", info.ID), zap.Int("replayed", len(recs)))
	return h, nil
}

// writeAheadLog returns the local log, or finds the logger service.
func (s *tabletServer) writeAheadLog(ctx context.Context) (tablet.Log, error) {
	s.logMu.Lock()
	defer s.logMu.Unlock()
	if s.log != nil {
		return s.log, nil
	}

	ctx, cancel := context.WithTimeout(ctx, serverWait)
	defer cancel()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		loggers, err := s.coord.Children(ctx, coord.LoggersPath(s.instanceID))
		if err == nil && len(loggers) > 0 {
			s.log = newRemoteLog(loggers[0], s.digest)
			s.env.Logger.Info("using logger service", zap.String("addr", loggers[0]))
			return s.log, nil
		}
		select {
		case <-ctx.Done():
			return nil, errors.Wrap(errors.ErrTimeout, "no logger service registered")
		case <-ticker.C:
		}
	}
}

func (s *tabletServer) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errTableNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, errNotHosted):
		http.Error(w, err.Error(), http.StatusMisdirectedRequest)
	case errors.Is(err, errors.ErrTimeout):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		s.env.Logger.Error("request failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
