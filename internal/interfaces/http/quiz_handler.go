package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pot-code/progress-sync/internal/infrastructure/validate"
	"github.com/pot-code/progress-sync/internal/quiz"
)

// QuizAttemptHandler persistence of in-progress quiz attempts, so a closed
// tab or app restart resumes where the student left off
type QuizAttemptHandler struct {
	attemptStore *quiz.AttemptStore
	validator    validate.Validator
}

func NewQuizAttemptHandler(AttemptStore *quiz.AttemptStore, Validator validate.Validator) *QuizAttemptHandler {
	handler := &QuizAttemptHandler{AttemptStore, Validator}
	return handler
}

type attemptDTO struct {
	QuizID   string         `json:"quiz_id"`
	Answers  map[string]int `json:"answers" validate:"required"`
	Question int            `json:"question" validate:"min=0"`
}

// HandleGetAttempt the stored attempt, 204 when none is in progress
func (qh *QuizAttemptHandler) HandleGetAttempt(c echo.Context) (err error) {
	attempt, err := qh.attemptStore.Load(c.Request().Context(), c.Param("cid"))
	if err != nil {
		return err
	}
	if attempt == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, attempt)
}

// HandleSaveAttempt overwrite the attempt for the course
func (qh *QuizAttemptHandler) HandleSaveAttempt(c echo.Context) (err error) {
	post := new(attemptDTO)
	if err = c.Bind(post); err != nil {
		return c.JSON(http.StatusUnprocessableEntity,
			NewRESTStandardError(http.StatusUnprocessableEntity, "Failed to bind attempt payload"))
	}
	if err := qh.validator.Struct(post); err != nil {
		return c.JSON(http.StatusBadRequest,
			NewRESTValidationError(http.StatusBadRequest, "Failed to validate fields", err))
	}

	attempt := &quiz.Attempt{
		CourseID: c.Param("cid"),
		QuizID:   post.QuizID,
		Answers:  post.Answers,
		Question: post.Question,
	}
	if err := qh.attemptStore.Save(c.Request().Context(), attempt); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, attempt)
}

// HandleClearAttempt drop the attempt for the course
func (qh *QuizAttemptHandler) HandleClearAttempt(c echo.Context) (err error) {
	if err := qh.attemptStore.Clear(c.Request().Context(), c.Param("cid")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
