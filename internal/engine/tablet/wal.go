package tablet

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/instamo/internal/errors"
)

// Log is a write-ahead log keyed by table id.
type Log interface {
	Append(rec Record) error
	Replay(table string) ([]Record, error)
}

// FileLog keeps one JSON-lines file per table in a directory.
type FileLog struct {
	mu  sync.Mutex
	fs  afero.Fs
	dir string
}

// NewFileLog returns a log writing under dir.
func NewFileLog(fs afero.Fs, dir string) (*FileLog, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create log directory %s", dir)
	}
	return &FileLog{fs: fs, dir: dir}, nil
}

func (l *FileLog) path(table string) string {
	return filepath.Join(l.dir, table+".log")
}

// Append implements Log. The record is synced before Append returns.
func (l *FileLog) Append(rec Record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "encode log record")
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := l.fs.OpenFile(l.path(rec.Table), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrapf(err, "open log for table %s", rec.Table)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "append log for table %s", rec.Table)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "sync log for table %s", rec.Table)
	}
	return f.Close()
}

// Replay implements Log. A table without a log has no records.
func (l *FileLog) Replay(table string) ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := l.fs.Open(l.path(table))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "open log for table %s", table)
	}
	defer f.Close()
	return ReadRecords(f)
}

// ReadRecords decodes JSON-lines records. A torn final line, left by a
// crash mid-append, is ignored.
func ReadRecords(r io.Reader) ([]Record, error) {
	var recs []Record
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 && line[len(line)-1] == '\n' {
			var rec Record
			if jerr := json.Unmarshal(line, &rec); jerr != nil {
				return recs, errors.Wrap(jerr, "decode log record")
			}
			recs = append(recs, rec)
		}
		if err == io.EOF {
			return recs, nil
		}
		if err != nil {
			return recs, errors.Wrap(err, "read log")
		}
	}
}
