package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/Iron-Ham/instamo/internal/engine/coord"
	"github.com/Iron-Ham/instamo/internal/engine/tablet"
	"github.com/Iron-Ham/instamo/internal/errors"
	"github.com/Iron-Ham/instamo/internal/siteconf"
)

// runLogService runs the standalone write-ahead-log service older versions
// use. Tablet servers append records to it and replay from it.
func runLogService(ctx context.Context, env *Env, _ []string) error {
	m, err := join(ctx, env)
	if err != nil {
		return err
	}
	dir, err := requireKey(m.site, siteconf.KeyLoggerDir)
	if err != nil {
		return err
	}
	wal, err := tablet.NewFileLog(env.Fs, dir)
	if err != nil {
		return err
	}

	ln, addr, err := listen(0, false, env.Logger)
	if err != nil {
		return err
	}
	deregister, err := m.register(ctx, coord.LoggersPath(m.instanceID), addr)
	if err != nil {
		_ = ln.Close()
		return err
	}
	env.Logger.Info("logger service ready", zap.String("dir", dir))

	router := withMiddleware(mux.NewRouter(), env.Logger)
	router.HandleFunc("/health", health).Methods(http.MethodGet)
	v1 := router.PathPrefix("/v1").Subrouter()
	v1.Use(authenticate(m.instanceID, m.digest))
	v1.HandleFunc("/log", func(w http.ResponseWriter, r *http.Request) {
		var rec tablet.Record
		if err := decodeJSON(w, r, &rec); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if rec.Table == "" {
			http.Error(w, "record has no table", http.StatusBadRequest)
			return
		}
		if err := wal.Append(rec); err != nil {
			env.Logger.Error("append failed", zap.String("table", rec.Table), zap.Error(err))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodPost)
	v1.HandleFunc("/log/{table}", func(w http.ResponseWriter, r *http.Request) {
		recs, err := wal.Replay(mux.Vars(r)["table"])
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if recs == nil {
			recs = []tablet.Record{}
		}
		writeJSON(w, http.StatusOK, recs)
	}).Methods(http.MethodGet)

	return serve(ctx, ln, router, env.Logger, deregister)
}

// remoteLog is a tablet.Log backed by the logger service.
type remoteLog struct {
	base  string
	token string
	http  *http.Client
}

func newRemoteLog(addr, token string) *remoteLog {
	return &remoteLog{
		base:  "http://" + addr + "/v1/log",
		token: token,
		http:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (l *remoteLog) Append(rec tablet.Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "encode log record")
	}
	_, err = l.do(http.MethodPost, l.base, body)
	return err
}

func (l *remoteLog) Replay(table string) ([]tablet.Record, error) {
	data, err := l.do(http.MethodGet, l.base+"/"+url.PathEscape(table), nil)
	if err != nil {
		return nil, err
	}
	var recs []tablet.Record
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, errors.Wrap(err, "decode log records")
	}
	return recs, nil
}

func (l *remoteLog) do(method, target string, body []byte) ([]byte, error) {
	req, err := http.NewRequest(method, target, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+l.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "logger service")
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("logger service %s %s: %s", method, target, resp.Status)
	}
	return data, nil
}
