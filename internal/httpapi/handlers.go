package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ahrav/go-assess/internal/attachment"
	"github.com/ahrav/go-assess/internal/callback"
	"github.com/ahrav/go-assess/internal/domain"
	"github.com/ahrav/go-assess/internal/submission"
)

type progressRequest struct {
	EvaluationID   string   `json:"evaluation_id"`
	QuestionIndex  *int     `json:"question_index"`
	Answer         string   `json:"answer"`
	ElapsedMinutes *float64 `json:"elapsed_minutes"`
}

type attachmentRequest struct {
	Slot        int    `json:"slot"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	// Content is base64 encoded on the wire.
	Content []byte `json:"content"`
}

type submitRequest struct {
	EvaluationID   string              `json:"evaluation_id"`
	Answers        []string            `json:"answers"`
	ElapsedMinutes *float64            `json:"elapsed_minutes"`
	Customization  string              `json:"customization"`
	Attachments    []attachmentRequest `json:"attachments"`
}

type evaluationResponse struct {
	EvaluationID string                 `json:"evaluation_id"`
	State        domain.EvaluationState `json:"state"`
}

type callbackResponse struct {
	EvaluationID string `json:"evaluation_id"`
	Applied      bool   `json:"applied"`
	Duplicate    bool   `json:"duplicate"`
}

func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return domain.NewValidationError("body", "malformed request body")
	}
	return nil
}

func (s *Server) healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) createEvaluation(c echo.Context) error {
	e, err := s.deps.Submissions.Create(c.Request().Context(), principalFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, evaluationResponse{EvaluationID: e.ID, State: e.State})
}

func (s *Server) submitProgress(c echo.Context) error {
	var req progressRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.QuestionIndex == nil {
		return domain.NewValidationError("question_index", "is required")
	}
	res, err := s.deps.Submissions.SubmitProgress(c.Request().Context(), principalFrom(c), submission.ProgressInput{
		EvaluationID:   req.EvaluationID,
		QuestionIndex:  *req.QuestionIndex,
		Answer:         req.Answer,
		ElapsedMinutes: req.ElapsedMinutes,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) submitEvaluation(c echo.Context) error {
	var req submitRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	in := submission.SubmitInput{
		EvaluationID:   req.EvaluationID,
		Answers:        req.Answers,
		ElapsedMinutes: req.ElapsedMinutes,
		Customization:  req.Customization,
		Attachments:    make([]submission.AttachmentInput, 0, len(req.Attachments)),
	}
	for _, a := range req.Attachments {
		in.Attachments = append(in.Attachments, submission.AttachmentInput{
			Slot: a.Slot,
			Upload: attachment.Upload{
				Filename:    a.Filename,
				ContentType: a.ContentType,
				Content:     a.Content,
			},
		})
	}

	res, err := s.deps.Submissions.Submit(c.Request().Context(), principalFrom(c), in)
	if err != nil {
		return err
	}

	code := http.StatusOK
	if res.Complete && res.Outcome != domain.OutcomeScoredSynchronously {
		code = http.StatusAccepted
	}
	return c.JSON(code, res)
}

func (s *Server) getAnswers(c echo.Context) error {
	answers, err := s.deps.Submissions.Answers(c.Request().Context(), principalFrom(c), c.Param("id"))
	if err != nil {
		return err
	}
	wire := make(map[string]string, len(answers))
	for idx, text := range answers {
		wire[strconv.Itoa(idx)] = text
	}
	return c.JSON(http.StatusOK, map[string]any{"evaluation_id": c.Param("id"), "answers": wire})
}

func (s *Server) getStatus(c echo.Context) error {
	st, err := s.deps.Status.GetStatus(c.Request().Context(), c.Param("id"), principalFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}

func (s *Server) engineCallback(c echo.Context) error {
	ctx := c.Request().Context()
	token, ok := strings.CutPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return fmt.Errorf("%w: missing bearer token", callback.ErrUnauthorized)
	}

	claims, err := s.deps.Verifier.Verify(ctx, strings.TrimSpace(token))
	switch {
	case errors.Is(err, callback.ErrReplayed):
		return c.JSON(http.StatusOK, callbackResponse{EvaluationID: claims.EvaluationID, Duplicate: true})
	case err != nil:
		return err
	}

	changed, err := s.deps.Ingestor.Ingest(ctx, claims.Result())
	switch {
	case errors.Is(err, domain.ErrResultRejected):
		return err
	case errors.Is(err, domain.ErrValidation):
		return fmt.Errorf("%w: %w", domain.ErrResultRejected, err)
	case err != nil:
		// Let the engine retry the same token after a storage failure.
		s.deps.Verifier.Release(ctx, claims)
		return err
	}
	return c.JSON(http.StatusOK, callbackResponse{EvaluationID: claims.EvaluationID, Applied: changed, Duplicate: !changed})
}
