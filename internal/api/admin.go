package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/0x0BSoD/medhum/internal/articles"
	"github.com/0x0BSoD/medhum/internal/metrics"
	"github.com/0x0BSoD/medhum/internal/model"
	"github.com/0x0BSoD/medhum/internal/storage"
)

const maxSnapshotSize = 32 << 20

type draftRequest struct {
	URL      string `json:"url" binding:"required"`
	Category string `json:"category"`
}

func (s *Server) newDraft(c *gin.Context) {
	c.JSON(http.StatusOK, articles.NewDraft(s.now()))
}

func (s *Server) saveArticle(c *gin.Context) {
	var a model.Article
	if err := c.ShouldBindJSON(&a); err != nil {
		abortWithError(c, http.StatusBadRequest, "malformed article")
		return
	}
	if strings.TrimSpace(a.ID) == "" {
		a.ID = articles.GenerateID()
	}
	a.ImageURL = articles.NormalizeImageURL(a.ImageURL)

	err := s.store.Save(c.Request.Context(), a)
	s.recordMutation(metrics.OpSave, err)
	if err != nil {
		s.storeError(c, "save", err)
		return
	}

	saved, err := s.store.GetByID(c.Request.Context(), a.ID)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "article was saved but could not be read back")
		return
	}
	c.JSON(http.StatusOK, saved)
}

func (s *Server) deleteArticle(c *gin.Context) {
	err := s.store.Delete(c.Request.Context(), c.Param("id"))
	s.recordMutation(metrics.OpDelete, err)
	if err != nil {
		s.storeError(c, "delete", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) exportSnapshot(c *gin.Context) {
	data, err := s.store.ExportSnapshot(c.Request.Context())
	if err != nil {
		s.log.Error("export failed", zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, "export failed")
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, articles.BackupFilename(s.now())))
	c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(data))
}

func (s *Server) importSnapshot(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxSnapshotSize))
	if err != nil {
		abortWithError(c, http.StatusRequestEntityTooLarge, "snapshot is too large")
		return
	}

	err = s.store.ImportSnapshot(c.Request.Context(), string(body))
	s.recordMutation(metrics.OpImport, err)
	if err != nil {
		s.storeError(c, "import", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"imported": len(s.store.List(c.Request.Context()))})
}

func (s *Server) feedDrafts(c *gin.Context) {
	req, ok := s.bindDraftRequest(c)
	if !ok {
		return
	}

	drafts, err := s.drafter.FromFeed(c.Request.Context(), req.URL, req.Category)
	if err != nil {
		s.log.Warn("feed drafts failed", zap.String("url", req.URL), zap.Error(err))
		abortWithError(c, http.StatusBadGateway, err.Error())
		return
	}
	c.JSON(http.StatusOK, drafts)
}

func (s *Server) pageDraft(c *gin.Context) {
	req, ok := s.bindDraftRequest(c)
	if !ok {
		return
	}

	draft, err := s.drafter.FromPage(c.Request.Context(), req.URL, req.Category)
	if err != nil {
		s.log.Warn("page draft failed", zap.String("url", req.URL), zap.Error(err))
		abortWithError(c, http.StatusBadGateway, err.Error())
		return
	}
	c.JSON(http.StatusOK, draft)
}

func (s *Server) bindDraftRequest(c *gin.Context) (draftRequest, bool) {
	if s.drafter == nil {
		abortWithError(c, http.StatusServiceUnavailable, "draft import is disabled")
		return draftRequest{}, false
	}

	var req draftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "url is required")
		return draftRequest{}, false
	}
	return req, true
}

// storeError maps store failures to responses. Validation errors are the caller's fault; everything
// else is reported to the admin chat.
func (s *Server) storeError(c *gin.Context, op string, err error) {
	var verr *articles.ValidationError
	switch {
	case errors.As(err, &verr):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":  verr.Error(),
			"index":  verr.Index,
			"field":  verr.Field,
			"reason": verr.Reason,
		})
		return
	case errors.Is(err, articles.ErrInvalidArticle), errors.Is(err, articles.ErrInvalidSnapshot):
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, storage.ErrQuotaExceeded):
		s.log.Warn("storage quota exceeded", zap.String("op", op), zap.Error(err))
		abortWithError(c, http.StatusInsufficientStorage, "儲存空間已滿，請刪除部分文章或縮小圖片後再試。")
	default:
		s.log.Error("store write failed", zap.String("op", op), zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, "storage failure")
	}

	if s.reporter != nil {
		s.reporter.Notify(fmt.Sprintf("medhum: %s failed: %v", op, err))
	}
}

func (s *Server) recordMutation(op string, err error) {
	if s.metrics != nil {
		s.metrics.Mutation(op, err)
	}
}
