package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fleetconf/shepherd/pkg/filter"
	"github.com/fleetconf/shepherd/pkg/sessions"
	"github.com/fleetconf/shepherd/pkg/types"
)

var validSessionStatus = map[types.SessionStatus]bool{
	types.SessionPending:  true,
	types.SessionRunning:  true,
	types.SessionComplete: true,
}

var validSucceeded = map[types.SessionSucceeded]bool{
	types.SucceededNone:    true,
	types.SucceededUnknown: true,
	types.SucceededFalse:   true,
	types.SucceededTrue:    true,
}

// parseSessionFilter builds a session filter from list and bulk-delete
// query parameters.
func parseSessionFilter(c *gin.Context) (*filter.SessionFilter, error) {
	f := &filter.SessionFilter{}
	if raw := c.Query("min_age"); raw != "" {
		age, err := filter.ParseAge(raw)
		if err != nil {
			return nil, err
		}
		f.MinAge = age
	}
	if raw := c.Query("max_age"); raw != "" {
		age, err := filter.ParseAge(raw)
		if err != nil {
			return nil, err
		}
		f.MaxAge = age
	}
	if raw := c.Query("status"); raw != "" {
		st := types.SessionStatus(raw)
		if !validSessionStatus[st] {
			return nil, filter.Invalid("invalid status %q", raw)
		}
		f.Status = st
	}
	if raw := c.Query("succeeded"); raw != "" {
		sv := types.SessionSucceeded(raw)
		if !validSucceeded[sv] {
			return nil, filter.Invalid("invalid succeeded value %q", raw)
		}
		f.Succeeded = sv
	}
	f.NameContains = c.Query("name_contains")
	tags, err := filter.ParseTags(c.Query("tags"))
	if err != nil {
		return nil, err
	}
	f.Tags = tags
	return f, nil
}

func (s *Server) v3ListSessions(c *gin.Context) {
	f, err := parseSessionFilter(c)
	if err != nil {
		writeError(c, err)
		return
	}
	limit, err := parseLimit(c)
	if err != nil {
		writeError(c, err)
		return
	}
	page, next, err := s.sessions.List(f, limit, c.Query("after"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": page, "next": next})
}

func (s *Server) v3CreateSession(c *gin.Context) {
	var sess types.Session
	if err := c.ShouldBindJSON(&sess); err != nil {
		badRequest(c, err.Error())
		return
	}
	created, err := s.sessions.Create(&sess, sessions.MaxNameLengthV3)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) v3GetSession(c *gin.Context) {
	sess, err := s.sessions.Get(c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (s *Server) v3PatchSession(c *gin.Context) {
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
	c.JSON(http.StatusOK, sess)
}

func (s *Server) v3DeleteSession(c *gin.Context) {
	if err := s.sessions.Delete(c.Param("name")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) v3DeleteSessions(c *gin.Context) {
	f, err := parseSessionFilter(c)
	if err != nil {
		writeError(c, err)
		return
	}
	deleted, err := s.sessions.DeleteMany(f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_ids": deleted})
}
