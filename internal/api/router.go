// Package api exposes a small HTTP mirror of the CLI's operations:
// read-only show/print/data endpoints plus a POST that runs a rescrape,
// grounded on the teacher's internal/api/router.go gin handler/response
// conventions.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nickheyer/sitemapscraper/internal/scheduler"
	"github.com/nickheyer/sitemapscraper/internal/store"
)

// Router builds the gin engine exposing show/print/data/rescrape as JSON
// endpoints.
func Router(st *store.Store, sch *scheduler.Scheduler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/sitemaps", handleShow(st))
	r.GET("/sitemaps/:id", handlePrint(st))
	r.GET("/sitemaps/:id/data", handleData(st))
	r.POST("/sitemaps/:id/rescrape", handleRescrape(sch))

	return r
}

func handleShow(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ids, err := st.ListSitemaps()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"sitemaps": ids})
	}
}

func handlePrint(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		sm, err := st.GetSitemap(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, sm)
	}
}

func handleData(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		records, err := st.GetRecords(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": records})
	}
}

func handleRescrape(sch *scheduler.Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if err := sch.Rescrape(c.Request.Context(), id); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sitemap": id})
	}
}
