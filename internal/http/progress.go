package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	progressdb "github.com/mrlokans/readalong/internal/database/progress"
	"github.com/mrlokans/readalong/internal/entities"
)

// ProgressRequest is the PUT body for a position update.
type ProgressRequest struct {
	Locator   entities.Locator `json:"locator" binding:"required"`
	Timestamp time.Time        `json:"timestamp" binding:"required"`
	Source    string           `json:"source"`
	Location  string           `json:"location"`
}

// ProgressResponse is the wire form of a stored position.
type ProgressResponse struct {
	BookID    string           `json:"book_id"`
	Locator   entities.Locator `json:"locator"`
	Timestamp time.Time        `json:"timestamp"`
	Source    string           `json:"source,omitempty"`
	Location  string           `json:"location,omitempty"`
}

// ConflictResponse carries the winning timestamp on a rejected update.
type ConflictResponse struct {
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// ProgressController handles the position endpoints.
type ProgressController struct {
	store ProgressStore
}

func NewProgressController(store ProgressStore) *ProgressController {
	return &ProgressController{store: store}
}

// GetProgress returns the stored position for a book.
func (p *ProgressController) GetProgress(c *gin.Context) {
	bookID := c.Param("bookID")

	progress, err := p.store.GetProgress(bookID)
	if err != nil {
		respondInternalError(c, err, "get progress")
		return
	}
	if progress == nil {
		respondNotFound(c, "progress for "+bookID)
		return
	}

	c.JSON(http.StatusOK, toResponse(*progress))
}

// PutProgress stores a position update. Updates older than the stored
// position are rejected with 409 and the winning timestamp, so the
// sending device can adopt the newer position instead of retrying.
func (p *ProgressController) PutProgress(c *gin.Context) {
	bookID := c.Param("bookID")

	var req ProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid progress payload: "+err.Error())
		return
	}
	if req.Timestamp.IsZero() {
		respondBadRequest(c, "timestamp is required")
		return
	}

	source := req.Source
	if source == "" {
		source = DeviceName(c)
	}

	stored, err := p.store.Upsert(entities.SavedProgress{
		BookID:    bookID,
		Locator:   req.Locator,
		Timestamp: req.Timestamp.UTC(),
		Source:    source,
		Location:  req.Location,
	})
	if errors.Is(err, progressdb.ErrStaleTimestamp) {
		c.JSON(http.StatusConflict, ConflictResponse{
			Error:     "stored progress is newer",
			Timestamp: stored.Timestamp,
		})
		return
	}
	if err != nil {
		respondInternalError(c, err, "put progress")
		return
	}

	c.Status(http.StatusNoContent)
}

// ListProgress returns every stored position, most recent first.
func (p *ProgressController) ListProgress(c *gin.Context) {
	all, err := p.store.ListProgress()
	if err != nil {
		respondInternalError(c, err, "list progress")
		return
	}

	out := make([]ProgressResponse, 0, len(all))
	for _, progress := range all {
		out = append(out, toResponse(progress))
	}
	c.JSON(http.StatusOK, out)
}

func toResponse(p entities.SavedProgress) ProgressResponse {
	return ProgressResponse{
		BookID:    p.BookID,
		Locator:   p.Locator,
		Timestamp: p.Timestamp,
		Source:    p.Source,
		Location:  p.Location,
	}
}
