package occurrence

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"

	"github.com/nopea/nopea/pkg/domain/errors"
)

const (
	latestFile  = "occurrence.json"
	warmDir     = "occurrences"
	warmFileExt = ".etf"
)

// Writer persists occurrences under a data directory: the most recent
// report as pretty JSON, and every report as a binary term under
// occurrences/{id}.etf.
type Writer struct {
	dir string
}

func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// Persist writes both artifact forms. Directory creation is idempotent.
func (w *Writer) Persist(occ Occurrence) error {
	if err := os.MkdirAll(filepath.Join(w.dir, warmDir), 0o755); err != nil {
		return errors.New(errors.CodeIoError, "occurrence", "creating artifact directory", err)
	}

	pretty, err := json.MarshalIndent(occ, "", "  ")
	if err != nil {
		return errors.New(errors.CodeInternalError, "occurrence", "encoding occurrence json", err)
	}
	if err := os.WriteFile(filepath.Join(w.dir, latestFile), pretty, 0o644); err != nil {
		return errors.New(errors.CodeIoError, "occurrence", "writing occurrence.json", err)
	}

	id, _ := occ["id"].(string)
	if id == "" {
		return errors.Newf(errors.CodeInternalError, "occurrence", "occurrence missing id")
	}
	blob, err := cbor.Marshal(occ)
	if err != nil {
		return errors.New(errors.CodeInternalError, "occurrence", "encoding occurrence binary", err)
	}
	path := filepath.Join(w.dir, warmDir, id+warmFileExt)
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		return errors.New(errors.CodeIoError, "occurrence", "writing occurrence artifact", err)
	}
	return nil
}
