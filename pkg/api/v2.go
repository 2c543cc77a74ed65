package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fleetconf/shepherd/pkg/filter"
	"github.com/fleetconf/shepherd/pkg/sessions"
)

// pageOverflow is the v2 answer to result sets that no longer fit in a
// single response. v2 has no paging; clients that trip this must move to
// v3 cursors or narrow their filter.
func pageOverflow(c *gin.Context) {
	badRequest(c, "the response exceeds the maximum page size; filter the request or use the v3 API")
}

func parseV2ComponentFilter(c *gin.Context) (*filter.ComponentFilter, error) {
	f, err := parseComponentFilter(c)
	if err != nil {
		return nil, err
	}
	if f.Config == "" {
		f.Config = c.Query("configName")
	}
	return f, nil
}

func (s *Server) v2ListComponents(c *gin.Context) {
	f, err := parseV2ComponentFilter(c)
	if err != nil {
		writeError(c, err)
		return
	}
	page, next, err := s.engine.List(f, 0, "")
	if err != nil {
		writeError(c, err)
		return
	}
	if next != "" {
		pageOverflow(c)
		return
	}
	out := make([]*v2Component, 0, len(page))
	for _, comp := range page {
		out = append(out, toV2Component(comp))
	}
	c.JSON(http.StatusOK, out)
}

// v2PatchComponents applies a list of per-component patches. The legacy
// contract is all-or-nothing: if any named component is missing, nothing
// is changed and the whole request fails with 404.
func (s *Server) v2PatchComponents(c *gin.Context) {
	var patches []v2ComponentPatch
	if err := c.ShouldBindJSON(&patches); err != nil {
		badRequest(c, err.Error())
		return
	}
	for _, p := range patches {
		if p.ID == "" {
			badRequest(c, "every patch entry requires an id")
			return
		}
		if _, err := s.engine.Get(p.ID); err != nil {
			writeError(c, err)
			return
		}
	}
	out := make([]*v2Component, 0, len(patches))
	for _, p := range patches {
		updated, err := s.engine.Patch(p.ID, p.toPatch())
		if err != nil {
			writeError(c, err)
			return
		}
		out = append(out, toV2Component(updated))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) v2GetComponent(c *gin.Context) {
	comp, err := s.engine.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toV2Component(comp))
}

func (s *Server) v2PutComponent(c *gin.Context) {
	var body v2Component
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err.Error())
		return
	}
	comp := body.toComponent()
	comp.ID = c.Param("id")
	updated, err := s.engine.Upsert(comp)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toV2Component(updated))
}

func (s *Server) v2PatchComponent(c *gin.Context) {
	var patch v2ComponentPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, err.Error())
		return
	}
	updated, err := s.engine.Patch(c.Param("id"), patch.toPatch())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toV2Component(updated))
}

func (s *Server) v2DeleteComponent(c *gin.Context) {
	if err := s.engine.Delete(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) v2ListConfigurations(c *gin.Context) {
	page, next, err := s.registry.ListConfigurations(0, "")
	if err != nil {
		writeError(c, err)
		return
	}
	if next != "" {
		pageOverflow(c)
		return
	}
	out := make([]*v2Configuration, 0, len(page))
	for _, cfg := range page {
		out = append(out, toV2Configuration(cfg))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) v2GetConfiguration(c *gin.Context) {
	cfg, err := s.registry.GetConfiguration(c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toV2Configuration(cfg))
}

func (s *Server) v2PutConfiguration(c *gin.Context) {
	var body v2Configuration
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err.Error())
		return
	}
	stored, err := s.registry.PutConfiguration(c.Param("name"), body.toConfiguration())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toV2Configuration(stored))
}

func (s *Server) v2DeleteConfiguration(c *gin.Context) {
	if err := s.registry.DeleteConfiguration(c.Param("name")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// parseV2SessionFilter accepts the historical "age" parameter as a
// minimum-age bound alongside the shared filter parameters.
func parseV2SessionFilter(c *gin.Context) (*filter.SessionFilter, error) {
	f, err := parseSessionFilter(c)
	if err != nil {
		return nil, err
	}
	if raw := c.Query("age"); raw != "" {
		age, err := filter.ParseAge(raw)
		if err != nil {
			return nil, err
		}
		f.MinAge = age
	}
	return f, nil
}

func (s *Server) v2ListSessions(c *gin.Context) {
	f, err := parseV2SessionFilter(c)
	if err != nil {
		writeError(c, err)
		return
	}
	page, next, err := s.sessions.List(f, 0, "")
	if err != nil {
		writeError(c, err)
		return
	}
	if next != "" {
		pageOverflow(c)
		return
	}
	out := make([]*v2Session, 0, len(page))
	for _, sess := range page {
		out = append(out, toV2Session(sess))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) v2CreateSession(c *gin.Context) {
	var body v2Session
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err.Error())
		return
	}
	created, err := s.sessions.Create(body.toSession(), sessions.MaxNameLengthV2)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toV2Session(created))
}

func (s *Server) v2GetSession(c *gin.Context) {
	sess, err := s.sessions.Get(c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toV2Session(sess))
}

func (s *Server) v2PatchSession(c *gin.Context) {
	var patch sessions.StatusPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, err.Error())
		return
	}
	sess, err := s.sessions.Patch(c.Param("name"), &patch)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toV2Session(sess))
}

func (s *Server) v2DeleteSession(c *gin.Context) {
	if err := s.sessions.Delete(c.Param("name")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) v2DeleteSessions(c *gin.Context) {
	f, err := parseV2SessionFilter(c)
	if err != nil {
		writeError(c, err)
		return
	}
	if _, err := s.sessions.DeleteMany(f); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) v2GetOptions(c *gin.Context) {
	opts, err := s.opts.Get()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toV2Options(opts))
}

func (s *Server) v2PatchOptions(c *gin.Context) {
	var body v2Options
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err.Error())
		return
	}
	patch := body.toPatch()
	if err := validateOptionsPatch(patch); err != nil {
		writeError(c, err)
		return
	}
	opts, err := s.opts.Update(patch)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toV2Options(opts))
}
