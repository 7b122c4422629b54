package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/Iron-Ham/instamo/internal/engine/coord"
	"github.com/Iron-Ham/instamo/internal/errors"
	"github.com/Iron-Ham/instamo/internal/siteconf"
)

var tableNameRegex = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// serverWait bounds how long table creation waits for a tablet server to
// register.
const serverWait = 30 * time.Second

// CreateTableRequest is the body of POST /v1/tables.
type CreateTableRequest struct {
	Name string `json:"name"`
}

type master struct {
	*member
	mu sync.Mutex
}

func runMaster(ctx context.Context, env *Env, _ []string) error {
	m, err := join(ctx, env)
	if err != nil {
		return err
	}
	portValue, err := requireKey(m.site, siteconf.KeyMasterPort)
	if err != nil {
		return err
	}
	port, err := strconv.Atoi(portValue)
	if err != nil {
		return errors.Wrapf(errors.ErrInvalidInput, "%s=%q", siteconf.KeyMasterPort, portValue)
	}

	ln, addr, err := listen(port, false, env.Logger)
	if err != nil {
		return err
	}
	if err := m.coord.Set(ctx, coord.MasterLockPath(m.instanceID), []byte(addr)); err != nil {
		_ = ln.Close()
		return errors.Wrap(err, "acquire master lock")
	}
	env.Logger.Info("master lock acquired", zap.String("addr", addr))

	ms := &master{member: m}
	return serve(ctx, ln, ms.routes(), env.Logger)
}

func (m *master) routes() *mux.Router {
	router := withMiddleware(mux.NewRouter(), m.env.Logger)
	router.HandleFunc("/health", health).Methods(http.MethodGet)

	v1 := router.PathPrefix("/v1").Subrouter()
	v1.Use(authenticate(m.instanceID, m.digest))
	v1.HandleFunc("/tables", m.createTable).Methods(http.MethodPost)
	v1.HandleFunc("/tables", m.listTables).Methods(http.MethodGet)
	v1.HandleFunc("/tables/{table}", m.getTable).Methods(http.MethodGet)
	return router
}

func (m *master) createTable(w http.ResponseWriter, r *http.Request) {
	var req CreateTableRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !tableNameRegex.MatchString(req.Name) {
		http.Error(w, "table names may only contain letters, digits and underscores", http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	ctx := r.Context()

	if _, err := m.coord.Get(ctx, coord.TablePath(m.instanceID, req.Name)); err == nil {
		http.Error(w, "table "+req.Name+" exists", http.StatusConflict)
		return
	}

	servers, err := m.awaitServers(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	tables, err := m.coord.Children(ctx, coord.TablesPath(m.instanceID))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	info := coord.TableInfo{
		Name:   req.Name,
		ID:     strconv.FormatInt(int64(len(tables)+1), 36),
		Server: servers[len(tables)%len(servers)],
	}
	data, _ := json.Marshal(info)
	if err := m.coord.Create(ctx, coord.TablePath(m.instanceID, req.Name), data); err != nil {
		if errors.Is(err, coord.ErrNodeExists) {
			http.Error(w, "table "+req.Name+" exists", http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	m.env.Logger.Info("table created", zap.String("table", info.Name), zap.String("id", info.ID), zap.String("server", info.Server))
	writeJSON(w, http.StatusCreated, info)
}

// awaitServers returns the registered tablet servers, waiting for at least
// one.
func (m *master) awaitServers(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, serverWait)
	defer cancel()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		servers, err := m.coord.Children(ctx, coord.TabletServersPath(m.instanceID))
		if err == nil && len(servers) > 0 {
			return servers, nil
		}
		select {
		case <-ctx.Done():
			return nil, errors.Wrap(errors.ErrTimeout, "no tablet servers registered")
		case <-ticker.C:
		}
	}
}

func (m *master) listTables(w http.ResponseWriter, r *http.Request) {
	tables, err := coord.ListTables(r.Context(), m.coord, m.instanceID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, tables)
}

func (m *master) getTable(w http.ResponseWriter, r *http.Request) {
	info, err := coord.LookupTable(r.Context(), m.coord, m.instanceID, mux.Vars(r)["table"])
	if err != nil {
		if errors.Is(err, coord.ErrNoNode) {
			http.Error(w, "table does not exist", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, info)
}
