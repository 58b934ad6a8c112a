package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/0x0BSoD/medhum/internal/articles"
)

// listArticles supports ?category= (exact, "All" for every category) and ?q= (admin search).
func (s *Server) listArticles(c *gin.Context) {
	list := s.store.List(c.Request.Context())
	list = articles.ByCategory(list, c.Query("category"))
	list = articles.Search(list, c.Query("q"))
	c.JSON(http.StatusOK, list)
}

func (s *Server) getArticle(c *gin.Context) {
	a, err := s.store.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, http.StatusNotFound, "article not found")
		return
	}
	c.JSON(http.StatusOK, a)
}

// listCategories returns the filter chips: "All" followed by the categories in use.
func (s *Server) listCategories(c *gin.Context) {
	categories := articles.Categories(s.store.List(c.Request.Context()))
	c.JSON(http.StatusOK, append([]string{articles.AllCategories}, categories...))
}

func (s *Server) highlights(c *gin.Context) {
	c.JSON(http.StatusOK, articles.Highlights(s.store.List(c.Request.Context()), highlightsCount))
}
