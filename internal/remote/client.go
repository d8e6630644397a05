package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pot-code/progress-sync/internal/domain"
	"go.uber.org/zap"
)

// Client stateless HTTP client for the backend progress endpoints. It maps
// transport and 5xx failures to NetworkError, 4xx payload rejections to
// ValidationError and missing records to ErrNotFound. No retries happen here.
type Client struct {
	baseURL  string
	deviceID string
	http     *http.Client
	logger   *zap.Logger
}

var _ domain.SyncClient = &Client{}

// NewClient create a client against baseURL. timeout bounds every call so a
// wedged request cannot hold a sync slot forever.
func NewClient(baseURL, deviceID string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		deviceID: deviceID,
		http:     &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// wire shapes: ids may arrive as plain strings, numbers or objects carrying
// an "_id" field depending on the backend version, hence interface{} fields
// flattened through NormalizeID
type progressPayload struct {
	CompletedLessons []interface{} `json:"completedLessons"`
	CurrentLessonID  interface{}   `json:"currentLessonId"`
	QuizScore        *int          `json:"quizScore,omitempty"`
	TotalScore       *int          `json:"totalScore,omitempty"`
	Status           string        `json:"status,omitempty"`
}

func (p *progressPayload) toRecord(studentID, courseID string) *domain.ProgressRecord {
	record := domain.NewEmptyProgress(studentID, courseID)
	for _, raw := range p.CompletedLessons {
		if id := domain.NormalizeID(raw); id != "" {
			record.CompletedLessonIDs = append(record.CompletedLessonIDs, id)
		}
	}
	record.CurrentLessonID = domain.NormalizeID(p.CurrentLessonID)
	record.QuizScore = p.QuizScore
	record.TotalScore = p.TotalScore
	// older backend versions shout the status in caps
	if strings.EqualFold(p.Status, string(domain.StatusCompleted)) {
		record.Status = domain.StatusCompleted
	}
	return record
}

type coursePayload struct {
	ID      interface{}   `json:"id"`
	Title   string        `json:"title"`
	Lessons []interface{} `json:"lessons"`
	Quiz    interface{}   `json:"quiz,omitempty"`
}

// FetchCourse implement SyncClient
func (c *Client) FetchCourse(ctx context.Context, courseID string) (*domain.CourseSnapshot, error) {
	payload := new(coursePayload)
	path := fmt.Sprintf("/course/%s", url.PathEscape(courseID))
	if err := c.do(ctx, http.MethodGet, path, nil, payload); err != nil {
		return nil, err
	}
	snapshot := &domain.CourseSnapshot{
		CourseID: courseID,
		Title:    payload.Title,
		QuizID:   domain.NormalizeID(payload.Quiz),
	}
	for _, raw := range payload.Lessons {
		if id := domain.NormalizeID(raw); id != "" {
			snapshot.LessonIDs = append(snapshot.LessonIDs, id)
		}
	}
	return snapshot, nil
}

// Fetch implement SyncClient
func (c *Client) Fetch(ctx context.Context, studentID, courseID string) (*domain.ProgressRecord, error) {
	payload := new(progressPayload)
	path := fmt.Sprintf("/student/%s/progress/%s", url.PathEscape(studentID), url.PathEscape(courseID))
	if err := c.do(ctx, http.MethodGet, path, nil, payload); err != nil {
		return nil, err
	}
	return payload.toRecord(studentID, courseID), nil
}

// Update implement SyncClient. The backend merges concurrent clients and
// returns the authoritative record, which the reconciler adopts on
// divergence.
func (c *Client) Update(ctx context.Context, studentID, courseID string, completedLessonIDs []string, currentLessonID string) (*domain.ProgressRecord, error) {
	if completedLessonIDs == nil {
		completedLessonIDs = []string{}
	}
	body := map[string]interface{}{
		"completedLessons": completedLessonIDs,
		"currentLessonId":  currentLessonID,
	}
	payload := new(progressPayload)
	path := fmt.Sprintf("/student/%s/progress/%s", url.PathEscape(studentID), url.PathEscape(courseID))
	if err := c.do(ctx, http.MethodPut, path, body, payload); err != nil {
		return nil, err
	}
	return payload.toRecord(studentID, courseID), nil
}

// Reset implement SyncClient
func (c *Client) Reset(ctx context.Context, studentID, courseID, firstLessonID string) error {
	path := fmt.Sprintf("/student/%s/progress/%s?firstLessonId=%s",
		url.PathEscape(studentID), url.PathEscape(courseID), url.QueryEscape(firstLessonID))
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// SubmitQuizScore implement SyncClient
func (c *Client) SubmitQuizScore(ctx context.Context, studentID, courseID string, score, total int) error {
	body := map[string]interface{}{
		"studentId":  studentID,
		"courseId":   courseID,
		"quizScore":  score,
		"totalScore": total,
	}
	return c.do(ctx, http.MethodPost, "/progress/quizCompleted", body, nil)
}

// LessonCompleted implement SyncClient, fire-and-forget completion event
func (c *Client) LessonCompleted(ctx context.Context, studentID, courseID, lessonID string) error {
	body := map[string]interface{}{
		"studentId": studentID,
		"courseId":  courseID,
		"lessonId":  lessonID,
	}
	return c.do(ctx, http.MethodPost, "/progress/lessonCompleted", body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	op := fmt.Sprintf("%s %s", method, path)
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode body: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.deviceID != "" {
		req.Header.Set("X-Device-ID", c.deviceID)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return &domain.NetworkError{Op: op, Err: err}
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusNotFound:
		return domain.ErrNotFound
	case res.StatusCode == http.StatusBadRequest || res.StatusCode == http.StatusUnprocessableEntity:
		detail := readErrorDetail(res.Body)
		c.logger.Debug("Backend rejected payload",
			zap.String("http.request.method", method),
			zap.String("url.path", path),
			zap.String("error.message", detail))
		return &domain.ValidationError{Op: op, Detail: detail}
	case res.StatusCode >= http.StatusInternalServerError:
		return &domain.NetworkError{Op: op, Err: fmt.Errorf("backend returned %s", res.Status)}
	case res.StatusCode >= http.StatusMultipleChoices:
		return &domain.NetworkError{Op: op, Err: fmt.Errorf("unexpected status %s", res.Status)}
	}

	if out == nil {
		io.Copy(io.Discard, res.Body)
		return nil
	}
	decoder := json.NewDecoder(res.Body)
	decoder.UseNumber()
	if err := decoder.Decode(out); err != nil {
		return &domain.NetworkError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func readErrorDetail(body io.Reader) string {
	var envelope struct {
		Detail string `json:"detail"`
		Title  string `json:"title"`
	}
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil {
		return "no detail"
	}
	if err := json.Unmarshal(data, &envelope); err == nil {
		if envelope.Detail != "" {
			return envelope.Detail
		}
		if envelope.Title != "" {
			return envelope.Title
		}
	}
	detail := strings.TrimSpace(string(data))
	if detail == "" {
		return "no detail"
	}
	return detail
}
