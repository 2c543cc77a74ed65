package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fleetconf/shepherd/pkg/filter"
	"github.com/fleetconf/shepherd/pkg/options"
)

func (s *Server) v3GetOptions(c *gin.Context) {
	opts, err := s.opts.Get()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, opts)
}

func (s *Server) v3PatchOptions(c *gin.Context) {
	var patch options.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := validateOptionsPatch(&patch); err != nil {
		writeError(c, err)
		return
	}
	opts, err := s.opts.Update(&patch)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, opts)
}

func validateOptionsPatch(p *options.Patch) error {
	if p.SessionTTL != nil && *p.SessionTTL != "" {
		if _, err := filter.ParseAge(*p.SessionTTL); err != nil {
			return filter.Invalid("invalid session_ttl %q", *p.SessionTTL)
		}
	}
	for name, v := range map[string]*int{
		"batcher_check_interval": p.BatcherCheckInterval,
		"batch_size":             p.BatchSize,
		"batch_window":           p.BatchWindow,
		"default_page_size":      p.DefaultPageSize,
	} {
		if v != nil && *v < 1 {
			return filter.Invalid("%s must be positive", name)
		}
	}
	return nil
}
