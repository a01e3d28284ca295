package api

import (
	"fmt"
	"net/http"
	"net/url"
	"path"

	"github.com/dustin/go-humanize"

	"github.com/youssefsiam38/tableadmin"
	"github.com/youssefsiam38/tableadmin/media"
)

// multipartMemory is kept in memory while parsing uploads, the rest spills
// to temporary files.
const multipartMemory = 8 << 20

// MediaPath returns the path under which the admin serves the files of a
// local storage, relative to the admin root.
func MediaPath(table, column string) string {
	return path.Join("/media", url.PathEscape(table), url.PathEscape(column))
}

// handleUpload stores the file of a multipart request with table, column
// and file fields and returns its key.
func (rt *router) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		rt.bodyError(w, r, err)
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	table, column := r.FormValue("table"), r.FormValue("column")
	t, err := rt.admin.Table(table)
	if err == nil {
		err = t.Validate(r.Context(), tableadmin.OpUpload)
	}
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	storage, err := rt.admin.MediaStorage(table, column)
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing_file", "file field is required")
		return
	}
	defer file.Close()

	if limit := rt.admin.Config().MaxUploadSize; header.Size > limit {
		writeError(w, http.StatusRequestEntityTooLarge, "too_large",
			fmt.Sprintf("%s is larger than %s", humanize.IBytes(uint64(header.Size)), humanize.IBytes(uint64(limit))))
		return
	}

	key, err := storage.StoreFile(r.Context(), header.Filename, file)
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	rt.config.Logger.Info("file uploaded", "table", table, "column", column, "key", key,
		"size", humanize.IBytes(uint64(header.Size)))
	writeJSON(w, http.StatusCreated, map[string]string{"file_key": key})
}

type mediaURLRequest struct {
	Table   string `json:"table"`
	Column  string `json:"column"`
	FileKey string `json:"file_key"`
}

func (rt *router) handleMediaURL(w http.ResponseWriter, r *http.Request) {
	var req mediaURLRequest
	if err := decodeBody(r, &req); err != nil {
		rt.bodyError(w, r, err)
		return
	}
	if err := media.ValidateKey(req.FileKey); err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	t, err := rt.admin.Table(req.Table)
	if err == nil {
		err = t.Validate(r.Context(), tableadmin.OpGet)
	}
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	storage, err := rt.admin.MediaStorage(req.Table, req.Column)
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	u, err := storage.GenerateFileURL(r.Context(), req.FileKey, rt.config.BasePath+MediaPath(req.Table, req.Column))
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"file_url": u})
}
