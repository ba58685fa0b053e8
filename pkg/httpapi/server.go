// Package httpapi exposes the Orchestrator over HTTP: submit a graph,
// fetch a persisted snapshot, and tail the Event Bus history. This is a
// supplemented feature beyond the original distillation (spec.md names no
// transport), built the way the teacher wires its REST surface: an Echo
// instance with one service struct per concern.
package httpapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/r3e/taskgraph/pkg/eventbus"
	"github.com/r3e/taskgraph/pkg/orchestrator"
	"github.com/r3e/taskgraph/pkg/persistence"
)

// Service wires the Orchestrator and persistence store into an Echo
// router.
type Service struct {
	Orchestrator *orchestrator.Orchestrator
	Store        persistence.Store
	Bus          *eventbus.Bus
}

// NewService constructs the HTTP surface over an already-wired
// Orchestrator.
func NewService(o *orchestrator.Orchestrator, store persistence.Store, bus *eventbus.Bus) *Service {
	return &Service{Orchestrator: o, Store: store, Bus: bus}
}

// Register mounts every route on e under /v1.
func (s *Service) Register(e *echo.Echo) {
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	g := e.Group("/v1")
	g.POST("/graphs", s.submitGraph)
	g.GET("/graphs/:id", s.getGraph)
	g.GET("/events", s.listEvents)
	g.GET("/health", s.getHealth)
}

func (s *Service) submitGraph(c echo.Context) error {
	var req SubmitGraphRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	g, err := req.toTaskGraph()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sec := req.toSecurityContext()

	result, err := s.Orchestrator.Submit(c.Request().Context(), g, sec)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Service) getGraph(c echo.Context) error {
	id := c.Param("id")
	snap, err := s.Store.GetGraphSnapshot(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if snap == nil {
		return echo.NewHTTPError(http.StatusNotFound, "graph not found")
	}
	return c.JSON(http.StatusOK, snap)
}

func (s *Service) listEvents(c echo.Context) error {
	eventType := c.QueryParam("type")
	limit := 100
	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if s.Bus == nil {
		return c.JSON(http.StatusOK, []eventbus.Event{})
	}
	return c.JSON(http.StatusOK, s.Bus.History(eventType, limit))
}

func (s *Service) getHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, s.Orchestrator.GetHealth())
}
