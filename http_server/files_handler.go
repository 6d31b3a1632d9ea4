package http_server

import (
	"net/http"

	"github.com/danthegoodman1/parquetlayout/metastore"
	"github.com/danthegoodman1/parquetlayout/utils"
	"github.com/labstack/echo/v4"
)

type ListFilesResponse struct {
	Location string                `json:"location"`
	Files    []metastore.FileEntry `json:"files"`
}

// ListFilesHandler lists recorded output files. With a catalog configured the
// namespace query param selects them, otherwise dir names an output directory
// under the data root holding a manifest.
func (s *HTTPServer) ListFilesHandler(c *CustomContext) error {
	ctx := c.Request().Context()

	var meta metastore.MetaStore
	if s.pool != nil {
		ns := c.QueryParam("namespace")
		if ns == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "namespace is required")
		}
		meta = metastore.NewCRDBMetaStore(s.pool, ns)
	} else {
		dir := c.QueryParam("dir")
		if dir == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "dir is required")
		}
		dir, err := s.confine(dir)
		if err != nil {
			return c.RequestError(err, "error confining dir")
		}
		fms, err := metastore.NewFileMetaStore(ctx, dir)
		if err != nil {
			return c.RequestError(err, "error loading manifest")
		}
		meta = fms
	}

	files, err := meta.ListFiles(ctx)
	if err != nil {
		return c.RequestError(err, "error listing files")
	}
	return c.JSON(http.StatusOK, ListFilesResponse{
		Location: meta.Location(),
		Files:    utils.ArrayOrEmpty(files),
	})
}
