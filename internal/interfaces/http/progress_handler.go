package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pot-code/progress-sync/internal/domain"
	"github.com/pot-code/progress-sync/internal/infrastructure/validate"
	"github.com/pot-code/progress-sync/internal/progress"
)

// ProgressHandler progress sync operations exposed to the UI
type ProgressHandler struct {
	progressUseCase domain.ProgressUseCase
	validator       validate.Validator
}

func NewProgressHandler(ProgressUseCase domain.ProgressUseCase, Validator validate.Validator) *ProgressHandler {
	handler := &ProgressHandler{ProgressUseCase, Validator}
	return handler
}

type progressResponse struct {
	Record *domain.ProgressRecord `json:"record"`
	View   *progress.View         `json:"view"`
	Notice string                 `json:"notice,omitempty"`
}

func newProgressResponse(record *domain.ProgressRecord, snapshot *domain.CourseSnapshot) *progressResponse {
	return &progressResponse{
		Record: record,
		View:   progress.NewView(record, snapshot),
	}
}

type lessonDTO struct {
	LessonID string `json:"lesson_id" validate:"required"`
}

type quizResultDTO struct {
	Score *int `json:"score" validate:"required,min=0"`
	Total *int `json:"total" validate:"required,min=1"`
}

// HandleOpenCourse refresh the course snapshot and return the record the UI
// should render, pulling remote progress when the local cache is empty
func (ph *ProgressHandler) HandleOpenCourse(c echo.Context) (err error) {
	studentID, courseID := c.Param("sid"), c.Param("cid")
	record, snapshot, err := ph.progressUseCase.OpenCourse(c.Request().Context(), studentID, courseID)
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusOK, newProgressResponse(record, snapshot))
}

// HandleGetProgress current local truth plus derived view fields
func (ph *ProgressHandler) HandleGetProgress(c echo.Context) (err error) {
	studentID, courseID := c.Param("sid"), c.Param("cid")
	record, snapshot, err := ph.progressUseCase.GetProgress(c.Request().Context(), studentID, courseID)
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusOK, newProgressResponse(record, snapshot))
}

// HandleCompleteLesson optimistic completion, synced in the background
func (ph *ProgressHandler) HandleCompleteLesson(c echo.Context) (err error) {
	studentID, courseID := c.Param("sid"), c.Param("cid")
	post := new(lessonDTO)
	if err = c.Bind(post); err != nil {
		return c.JSON(http.StatusUnprocessableEntity,
			NewRESTStandardError(http.StatusUnprocessableEntity, "Failed to bind lesson payload"))
	}
	if err := ph.validator.Struct(post); err != nil {
		return c.JSON(http.StatusBadRequest,
			NewRESTValidationError(http.StatusBadRequest, "Failed to validate fields", err))
	}

	record, snapshot, err := ph.progressUseCase.CompleteLesson(c.Request().Context(), studentID, courseID, post.LessonID)
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusOK, newProgressResponse(record, snapshot))
}

// HandleMoveToLesson persist the position the student navigated to
func (ph *ProgressHandler) HandleMoveToLesson(c echo.Context) (err error) {
	studentID, courseID := c.Param("sid"), c.Param("cid")
	post := new(lessonDTO)
	if err = c.Bind(post); err != nil {
		return c.JSON(http.StatusUnprocessableEntity,
			NewRESTStandardError(http.StatusUnprocessableEntity, "Failed to bind lesson payload"))
	}
	if err := ph.validator.Struct(post); err != nil {
		return c.JSON(http.StatusBadRequest,
			NewRESTValidationError(http.StatusBadRequest, "Failed to validate fields", err))
	}

	record, snapshot, err := ph.progressUseCase.MoveToLesson(c.Request().Context(), studentID, courseID, post.LessonID)
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusOK, newProgressResponse(record, snapshot))
}

// HandleSubmitQuiz explicit action: the backend call happens inline and its
// failure is reported, while the optimistic local write is kept
func (ph *ProgressHandler) HandleSubmitQuiz(c echo.Context) (err error) {
	studentID, courseID := c.Param("sid"), c.Param("cid")
	post := new(quizResultDTO)
	if err = c.Bind(post); err != nil {
		return c.JSON(http.StatusUnprocessableEntity,
			NewRESTStandardError(http.StatusUnprocessableEntity, "Failed to bind quiz payload"))
	}
	if err := ph.validator.Struct(post); err != nil {
		return c.JSON(http.StatusBadRequest,
			NewRESTValidationError(http.StatusBadRequest, "Failed to validate fields", err))
	}

	record, snapshot, err := ph.progressUseCase.SubmitQuiz(c.Request().Context(), studentID, courseID, *post.Score, *post.Total)
	if err != nil {
		if record != nil {
			// saved locally, remote submission pending
			response := newProgressResponse(record, snapshot)
			response.Notice = err.Error()
			return c.JSON(http.StatusAccepted, response)
		}
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusOK, newProgressResponse(record, snapshot))
}

// HandleRestart clear local progress unconditionally, remote reset is best
// effort and reported as a notice when it fails
func (ph *ProgressHandler) HandleRestart(c echo.Context) (err error) {
	studentID, courseID := c.Param("sid"), c.Param("cid")
	record, snapshot, err := ph.progressUseCase.Restart(c.Request().Context(), studentID, courseID)
	if err != nil {
		if record != nil {
			response := newProgressResponse(record, snapshot)
			response.Notice = "course restarted locally, backend reset pending"
			return c.JSON(http.StatusAccepted, response)
		}
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusOK, newProgressResponse(record, snapshot))
}

// HandleFlush push every unsynced record of the student
func (ph *ProgressHandler) HandleFlush(c echo.Context) (err error) {
	if err := ph.progressUseCase.Flush(c.Request().Context(), c.Param("sid")); err != nil {
		return writeDomainError(c, err)
	}
	return c.NoContent(http.StatusAccepted)
}

// HandleCloseCourse cancel the pending debounce for the pair, eg. when the
// course view unmounts
func (ph *ProgressHandler) HandleCloseCourse(c echo.Context) (err error) {
	ph.progressUseCase.CloseCourse(c.Param("sid"), c.Param("cid"))
	return c.NoContent(http.StatusNoContent)
}

func writeDomainError(c echo.Context, err error) error {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return c.JSON(http.StatusBadRequest, NewRESTStandardError(http.StatusBadRequest, ve.Error()))
	}
	if errors.Is(err, domain.ErrNotFound) {
		return c.NoContent(http.StatusNotFound)
	}
	if domain.IsNetworkError(err) {
		return c.JSON(http.StatusBadGateway, NewRESTStandardError(http.StatusBadGateway, err.Error()))
	}
	return err
}
