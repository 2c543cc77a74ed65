package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/fleetconf/shepherd/pkg/filter"
	"github.com/fleetconf/shepherd/pkg/types"
)

var validComponentStatus = map[types.ComponentStatus]bool{
	types.StatusPending:    true,
	types.StatusSuccess:    true,
	types.StatusFailed:     true,
	types.StatusIncomplete: true,
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseComponentFilter builds a component filter from list query
// parameters.
func parseComponentFilter(c *gin.Context) (*filter.ComponentFilter, error) {
	f := &filter.ComponentFilter{}
	if ids := c.Query("ids"); ids != "" {
		f.IDs = splitCSV(ids)
	}
	for _, raw := range splitCSV(c.Query("status")) {
		st := types.ComponentStatus(raw)
		if !validComponentStatus[st] {
			return nil, filter.Invalid("invalid status %q", raw)
		}
		f.Status = append(f.Status, st)
	}
	if raw := c.Query("enabled"); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, filter.Invalid("invalid enabled value %q", raw)
		}
		f.Enabled = &enabled
	}
	f.Config = c.Query("config_name")
	tags, err := filter.ParseTags(c.Query("tags"))
	if err != nil {
		return nil, err
	}
	f.Tags = tags
	return f, nil
}

func parseLimit(c *gin.Context) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, filter.Invalid("invalid limit %q", raw)
	}
	return limit, nil
}

func (s *Server) v3ListComponents(c *gin.Context) {
	f, err := parseComponentFilter(c)
	if err != nil {
		writeError(c, err)
		return
	}
	limit, err := parseLimit(c)
	if err != nil {
		writeError(c, err)
		return
	}
	page, next, err := s.engine.List(f, limit, c.Query("after"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"components": page, "next": next})
}

func (s *Server) v3GetComponent(c *gin.Context) {
	comp, err := s.engine.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, comp)
}

func (s *Server) v3PutComponent(c *gin.Context) {
	var comp types.Component
	if err := c.ShouldBindJSON(&comp); err != nil {
		badRequest(c, err.Error())
		return
	}
	comp.ID = c.Param("id")
	updated, err := s.engine.Upsert(&comp)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) v3PatchComponent(c *gin.Context) {
	var patch types.ComponentPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, err.Error())
		return
	}
	updated, err := s.engine.Patch(c.Param("id"), &patch)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// bulkFilters is the filters object accepted by bulk component
// operations. IDs are exclusive with the other criteria.
type bulkFilters struct {
	IDs        string `json:"ids"`
	Status     string `json:"status"`
	Enabled    *bool  `json:"enabled"`
	ConfigName string `json:"config_name"`
	Tags       string `json:"tags"`
}

func (bf *bulkFilters) toFilter() (*filter.ComponentFilter, error) {
	f := &filter.ComponentFilter{Enabled: bf.Enabled, Config: bf.ConfigName}
	for _, raw := range splitCSV(bf.Status) {
		st := types.ComponentStatus(raw)
		if !validComponentStatus[st] {
			return nil, filter.Invalid("invalid status %q", raw)
		}
		f.Status = append(f.Status, st)
	}
	tags, err := filter.ParseTags(bf.Tags)
	if err != nil {
		return nil, err
	}
	f.Tags = tags
	return f, nil
}

func (bf *bulkFilters) hasCriteria() bool {
	return bf.Status != "" || bf.Enabled != nil || bf.ConfigName != "" || bf.Tags != ""
}

type bulkComponentPatch struct {
	Patch   *types.ComponentPatch `json:"patch" validate:"required"`
	Filters *bulkFilters          `json:"filters" validate:"required"`
}

func (s *Server) v3PatchComponents(c *gin.Context) {
	var req bulkComponentPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(c, err)
		return
	}
	var outcome *types.BulkOutcome
	var err error
	if req.Filters.IDs != "" {
		if req.Filters.hasCriteria() {
			badRequest(c, "ids cannot be combined with other filters")
			return
		}
		outcome, err = s.engine.PatchIDs(splitCSV(req.Filters.IDs), req.Patch)
	} else {
		var f *filter.ComponentFilter
		f, err = req.Filters.toFilter()
		if err == nil {
			outcome, err = s.engine.PatchMany(f, req.Patch)
		}
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

func (s *Server) v3DeleteComponent(c *gin.Context) {
	if err := s.engine.Delete(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) v3DeleteComponents(c *gin.Context) {
	f, err := parseComponentFilter(c)
	if err != nil {
		writeError(c, err)
		return
	}
	deleted, err := s.engine.DeleteMany(f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"component_ids": deleted})
}
