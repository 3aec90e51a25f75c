package ui

import (
	"io"
	"net/http"
	"os"
	"path/filepath"

	apperrors "github.com/bschneidr/srvyr/internal/errors"
)

const maxUploadBytes = 64 << 20

// handleDataUpload replaces the server's survey table with an uploaded file.
// The file is spooled to disk so the reader can dispatch on its extension.
func (s *Server) handleDataUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, apperrors.InvalidInput("malformed multipart body: "+err.Error()))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, apperrors.InvalidInput(`missing "file" form field`))
		return
	}
	defer file.Close()

	ext := filepath.Ext(header.Filename)
	tmp, err := os.CreateTemp("", "survey-*"+ext)
	if err != nil {
		writeError(w, apperrors.Wrap(err, "failed to spool upload"))
		return
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, io.LimitReader(file, maxUploadBytes)); err != nil {
		tmp.Close()
		writeError(w, apperrors.Wrap(err, "failed to spool upload"))
		return
	}
	tmp.Close()

	table, err := s.reader.ReadTable(r.Context(), tmp.Name())
	if err != nil {
		writeError(w, apperrors.InvalidInput(err.Error()))
		return
	}
	s.setTable(table)
	s.log.Info("loaded uploaded table %q: %d columns, %d rows", header.Filename, table.NumCols(), table.NumRows())
	writeJSON(w, http.StatusOK, map[string]any{
		"columns": table.NumCols(),
		"rows":    table.NumRows(),
	})
}
