package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	infralogger "github.com/jonesrussell/north-cloud/scrape-analyzer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/database"
	"github.com/jonesrussell/north-cloud/scrape-analyzer/internal/domain"
)

const (
	defaultRecordsLimit = 20
	maxRecordsLimit     = 100
)

// listRecords returns a page of records, newest first
// GET /api/v1/records?limit=&offset=&analyzed=
func (r *Router) listRecords(c *gin.Context) {
	filter, err := parseRecordFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	page, err := r.deps.Records.ListRecords(c.Request.Context(), filter)
	if err != nil {
		infralogger.FromContext(c.Request.Context()).Error("Failed to list records", infralogger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list records"})
		return
	}
	if page.Records == nil {
		page.Records = []domain.Record{}
	}

	c.JSON(http.StatusOK, page)
}

var (
	errInvalidLimit    = errors.New("limit must be between 1 and 100")
	errInvalidOffset   = errors.New("offset must be a non-negative integer")
	errInvalidAnalyzed = errors.New("analyzed must be true or false")
)

func parseRecordFilter(c *gin.Context) (domain.RecordFilter, error) {
	filter := domain.RecordFilter{Limit: defaultRecordsLimit}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxRecordsLimit {
			return filter, errInvalidLimit
		}
		filter.Limit = limit
	}

	if raw := c.Query("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return filter, errInvalidOffset
		}
		filter.Offset = offset
	}

	if raw := c.Query("analyzed"); raw != "" {
		analyzed, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, errInvalidAnalyzed
		}
		filter.Analyzed = &analyzed
	}

	return filter, nil
}

// getRecord returns one record
// GET /api/v1/records/:id
func (r *Router) getRecord(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid record ID format"})
		return
	}

	record, err := r.deps.Records.GetRecord(c.Request.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
		return
	}
	if err != nil {
		infralogger.FromContext(c.Request.Context()).Error("Failed to get record", infralogger.RecordID(id.String()), infralogger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get record"})
		return
	}

	c.JSON(http.StatusOK, record)
}
