package server

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/adalundhe/sway/core/domain"
	"github.com/adalundhe/sway/core/orchestrator"
)

type enterRequest struct {
	Condition string `json:"condition"`
}

type t0Request struct {
	Value int `json:"value"`
}

type cycleRequest struct {
	Message string `json:"message"`
}

// EnterStudy creates a participant under the condition allocated
// upstream.
func (s *Server) EnterStudy(c *fiber.Ctx) error {
	var req enterRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}

	cond, err := domain.ParseCondition(req.Condition)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	p, err := s.study.Enter(cond)
	if err != nil {
		return s.fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"participant_id": p.ID,
		"condition":      p.Condition,
		"task_order":     p.TaskOrder,
	})
}

// CaptureT0 records the session's initial opinion.
func (s *Server) CaptureT0(c *fiber.Ctx) error {
	key, err := domain.ParseSessionKey(c.Params("key"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	var req t0Request
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	if !domain.ValidOpinion(req.Value) {
		return fiber.NewError(fiber.StatusBadRequest,
			fmt.Sprintf("t0 value must be in [%d,%d]", domain.MinOpinion, domain.MaxOpinion))
	}

	sess, err := s.study.CaptureT0(c.Params("id"), key, req.Value)
	if err != nil {
		return s.fail(c, err)
	}

	return c.JSON(fiber.Map{
		"session_key": sess.Key,
		"topic":       sess.Topic,
		"t0":          sess.T0,
	})
}

// RunCycle executes one conversational cycle.
func (s *Server) RunCycle(c *fiber.Ctx) error {
	key, err := domain.ParseSessionKey(c.Params("key"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	cycle, err := strconv.Atoi(c.Params("cycle"))
	if err != nil || !domain.ValidCycle(cycle) {
		return fiber.NewError(fiber.StatusBadRequest, "cycle must be 1..4")
	}

	var req cycleRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}

	result, err := s.orch.RunCycle(c.Context(), c.Params("id"), key, cycle, req.Message)
	if err != nil {
		return s.fail(c, err)
	}

	return c.JSON(fiber.Map{
		"agent1": result.Agents[0],
		"agent2": result.Agents[1],
		"agent3": result.Agents[2],
		"meta":   result.Meta,
	})
}

// Progress reports the session state and last answered cycle.
func (s *Server) Progress(c *fiber.Ctx) error {
	key, err := domain.ParseSessionKey(c.Params("key"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	sess, last, err := s.study.Progress(c.Params("id"), key)
	if err != nil {
		return s.fail(c, err)
	}

	return c.JSON(fiber.Map{
		"session_key":  sess.Key,
		"topic":        sess.Topic,
		"t0":           sess.T0,
		"last_cycle":   last,
		"completed_at": sess.CompletedAt,
	})
}

// Finish marks the participant finished once every session is complete.
func (s *Server) Finish(c *fiber.Ctx) error {
	done, err := s.study.Finish(c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"finished": done})
}

// fail maps core errors onto HTTP statuses. Generation and persistence
// failures never reach here; cycles always complete with three agent
// messages.
func (s *Server) fail(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, orchestrator.ErrRateLimited):
		return fiber.NewError(fiber.StatusTooManyRequests, err.Error())
	case errors.Is(err, orchestrator.ErrSequence), errors.Is(err, orchestrator.ErrNoT0):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case strings.Contains(err.Error(), "not found"):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}

	s.logger.Error("request failed", "path", c.Path(), "error", err)
	return fiber.NewError(fiber.StatusInternalServerError, err.Error())
}
