package api

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/viktsys/pnldash/dashboard"
	"github.com/viktsys/pnldash/ingest"
)

// multipartSlack covers the multipart framing around the file itself.
const multipartSlack = 1 << 20

// Upload ingests one exported fill file from the "file" form field and
// republishes the report over all stored trades.
func (h *Handler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+multipartSlack)

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": h.tooLargeMessage()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file field: " + err.Error()})
		return
	}

	name := filepath.Base(header.Filename)
	switch ext := strings.ToLower(filepath.Ext(name)); {
	case ext == ".xls":
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "legacy .xls workbooks are not supported, save the file as .xlsx or .csv"})
		return
	case !ingest.SupportedExtension(name):
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unsupported file type %q, upload a .csv or .xlsx export", ext)})
		return
	}
	if header.Size > h.maxUpload {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": h.tooLargeMessage()})
		return
	}

	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer file.Close()

	log := h.log.WithFields(logrus.Fields{"file": name, "size": header.Size})

	table, err := ingest.ReadTable(file, name)
	if err != nil {
		log.WithError(err).Warn("Rejected upload")
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	res, err := h.processor.ProcessTable(c.Request.Context(), table)
	switch {
	case errors.Is(err, ingest.ErrEmptyInput), errors.Is(err, ingest.ErrMissingColumns):
		log.WithError(err).Warn("Rejected upload")
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	case err != nil:
		log.WithError(err).Error("Failed to ingest upload")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.service.RecordIngest(res.Ingested())
	log.WithFields(logrus.Fields{"rows": len(res.Trades), "saved": res.Saved, "duplicates": res.Report.DuplicateRows}).Info("Ingested upload")

	resp := gin.H{
		"file":       name,
		"rows":       len(res.Trades),
		"saved":      res.Saved,
		"duplicates": res.Report.DuplicateRows,
		"normalize":  res.Report,
	}

	snap, err := h.service.Recompute(c.Request.Context(), nil)
	switch {
	case errors.Is(err, dashboard.ErrSuperseded):
		resp["status"] = "superseded"
	case err != nil:
		log.WithError(err).Error("Recompute after upload failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	default:
		resp["status"] = "published"
		resp["data_quality"] = snap.Quality.Summary()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) tooLargeMessage() string {
	return fmt.Sprintf("file exceeds the %d MB upload limit", h.maxUpload>>20)
}
