package main

import (
	"classroom/internal/core"
	"classroom/internal/repository"
	"classroom/internal/viewstate"
	"classroom/pkg/domain"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/fxamacker/cbor/v2"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/zstd"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var upgrader = websocket.Upgrader{}

var encoder, _ = zstd.NewWriter(nil)

// ZstdCompress compresses one websocket frame.
func ZstdCompress(src []byte) []byte {
	return encoder.EncodeAll(src, make([]byte, 0, len(src)))
}

// Frame is one delivered list on the observe websocket.
type Frame[T domain.Record] struct {
	Entity  domain.EntityType `json:"entity" cbor:"entity"`
	Seq     int64             `json:"seq" cbor:"seq"`
	Records []T               `json:"records" cbor:"records"`
}

var validFormats = []string{"json", "cbor"}

// Server exposes the container over HTTP.
type Server struct {
	c      *core.Container
	logger *slog.Logger
}

// NewServer builds the echo router for c.
func NewServer(c *core.Container, logger *slog.Logger) (*Server, *echo.Echo) {
	s := &Server{c: c, logger: logger.With("source", "server")}
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = s.handleError

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/students", list(c.Students.Repository, viewstate.MatchStudent, repository.StudentsByName))
	e.GET("/classes", list(c.Classes.Repository, viewstate.MatchClass, repository.ClassesByName))
	e.GET("/exams", list(c.Exams.Repository, viewstate.MatchExam, repository.ExamsByDate))
	e.GET("/students/observe", observe(s, c.Students.Repository))
	e.GET("/classes/observe", observe(s, c.Classes.Repository))
	e.GET("/exams/observe", observe(s, c.Exams.Repository))
	e.POST("/classes/:id/students/:studentID", s.handleEnroll)
	e.DELETE("/classes/:id/students/:studentID", s.handleUnenroll)
	return s, e
}

func list[T domain.Record](repo *repository.Repository[T], match viewstate.MatchFunc[T], order repository.Order[T]) echo.HandlerFunc {
	return func(c echo.Context) error {
		query := viewstate.NormalizeQuery(c.QueryParam("q"))
		var where repository.Predicate[T]
		if query != "" {
			where = func(rec T) bool { return match(rec, query) }
		}
		records, err := repo.FetchAll(c.Request().Context(), where, order)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, records)
	}
}

func (s *Server) handleEnroll(c echo.Context) error {
	class, err := s.c.Classes.Enroll(c.Request().Context(), c.Param("id"), c.Param("studentID"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, class)
}

func (s *Server) handleUnenroll(c echo.Context) error {
	class, err := s.c.Classes.Unenroll(c.Request().Context(), c.Param("id"), c.Param("studentID"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, class)
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.Path(), "error", err)
	}
	_ = c.JSON(status, map[string]string{"error": err.Error()})
}

func errorStatus(err error) int {
	var he *echo.HTTPError
	var violation domain.RuleViolationError
	switch {
	case errors.As(err, &he):
		return he.Code
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrClassFull), errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.As(err, &violation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func encodeFrame[T domain.Record](frame Frame[T], format string, compress bool) ([]byte, error) {
	var (
		b   []byte
		err error
	)
	switch format {
	case "cbor":
		b, err = cbor.Marshal(frame)
	default:
		b, err = json.Marshal(frame)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame as %s: %w", format, err)
	}
	if compress {
		b = ZstdCompress(b)
	}
	return b, nil
}

// observe streams ObserveAll over a websocket. Query parameters: format
// (json|cbor), compress=true for zstd frames.
func observe[T domain.Record](s *Server, repo *repository.Repository[T]) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithCancel(c.Request().Context())
		defer cancel()

		ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			return err
		}
		defer ws.Close()

		format := "json"
		for _, f := range validFormats {
			if f == c.QueryParam("format") {
				format = f
			}
		}
		compress := c.QueryParam("compress") == "true"
		remote := ws.RemoteAddr().String()
		log := s.logger.With("source", "observe", "entity", repo.Entity(), "remote_addr", remote, "format", format)

		go func() {
			for {
				if _, _, err := ws.ReadMessage(); err != nil {
					log.Debug("websocket reader stopped", "error", err)
					cancel()
					return
				}
			}
		}()

		sub := repo.ObserveAll(ctx)
		defer sub.Close()
		observersConnected.WithLabelValues(string(repo.Entity()), format).Inc()
		defer observersConnected.WithLabelValues(string(repo.Entity()), format).Dec()
		log.Info("observer connected")

		msgType := websocket.TextMessage
		if format == "cbor" || compress {
			msgType = websocket.BinaryMessage
		}
		var seq int64
		for records := range sub.Values() {
			seq++
			msg, err := encodeFrame(Frame[T]{Entity: repo.Entity(), Seq: seq, Records: records}, format, compress)
			if err != nil {
				return err
			}
			if err := ws.WriteMessage(msgType, msg); err != nil {
				log.Error("failed to write message to websocket", "error", err)
				return nil
			}
			framesDelivered.WithLabelValues(string(repo.Entity()), format).Inc()
			bytesDelivered.WithLabelValues(string(repo.Entity()), format).Add(float64(len(msg)))
		}
		log.Info("observer disconnected", "frames", seq)
		return nil
	}
}
