package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fleetconf/shepherd/pkg/registry"
	"github.com/fleetconf/shepherd/pkg/types"
)

func (s *Server) v3ListConfigurations(c *gin.Context) {
	limit, err := parseLimit(c)
	if err != nil {
		writeError(c, err)
		return
	}
	page, next, err := s.registry.ListConfigurations(limit, c.Query("after"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"configurations": page, "next": next})
}

func (s *Server) v3GetConfiguration(c *gin.Context) {
	cfg, err := s.registry.GetConfiguration(c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (s *Server) v3PutConfiguration(c *gin.Context) {
	var cfg types.Configuration
	if err := c.ShouldBindJSON(&cfg); err != nil {
		badRequest(c, err.Error())
		return
	}
	stored, err := s.registry.PutConfiguration(c.Param("name"), &cfg)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stored)
}

func (s *Server) v3DeleteConfiguration(c *gin.Context) {
	if err := s.registry.DeleteConfiguration(c.Param("name")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) v3RestoreConfiguration(c *gin.Context) {
	cfg, err := s.registry.RestoreConfiguration(c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// sourceCreateRequest carries an inline raw credential payload alongside
// the source fields. The raw secret never appears in a response.
type sourceCreateRequest struct {
	Name        string                   `json:"name"`
	Description string                   `json:"description"`
	CloneURL    string                   `json:"clone_url"`
	CACert      string                   `json:"ca_cert"`
	Credentials *types.RawCredentials    `json:"credentials"`
	SecretRef   *types.SourceCredentials `json:"secret_ref"`
}

func (s *Server) v3ListSources(c *gin.Context) {
	limit, err := parseLimit(c)
	if err != nil {
		writeError(c, err)
		return
	}
	page, next, err := s.registry.ListSources(limit, c.Query("after"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sources": page, "next": next})
}

func (s *Server) v3CreateSource(c *gin.Context) {
	var req sourceCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	src := &types.Source{
		Name:        req.Name,
		Description: req.Description,
		CloneURL:    req.CloneURL,
		CACert:      req.CACert,
		Credentials: req.SecretRef,
	}
	stored, err := s.registry.CreateSource(src, req.Credentials)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, stored)
}

func (s *Server) v3GetSource(c *gin.Context) {
	src, err := s.registry.GetSource(c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, src)
}

func (s *Server) v3PatchSource(c *gin.Context) {
	var patch registry.SourcePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, err.Error())
		return
	}
	src, err := s.registry.UpdateSource(c.Param("name"), &patch)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, src)
}

func (s *Server) v3DeleteSource(c *gin.Context) {
	if err := s.registry.DeleteSource(c.Param("name")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) v3RestoreSource(c *gin.Context) {
	src, err := s.registry.RestoreSource(c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, src)
}
