// Package face talks to the external face-recognition service. The matching
// itself happens there; this package only uploads a captured image for a
// student and reads back the verdict.
package face

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrUnavailable is returned when the service cannot be reached or answers
// with a server error. Callers should reject the mark rather than guess.
var ErrUnavailable = errors.New("face recognition service unavailable")

// Verdict is the service's answer for one image.
type Verdict struct {
	Match      bool    `json:"match"`
	Confidence float64 `json:"confidence"`
	Message    string  `json:"message,omitempty"`
}

// Verifier checks a captured image against a student's registered face.
type Verifier interface {
	Verify(ctx context.Context, studentID int64, image []byte) (Verdict, error)
}

type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Verify posts the image as multipart form data to {base}/verify.
func (c *Client) Verify(ctx context.Context, studentID int64, image []byte) (Verdict, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("student_id", strconv.FormatInt(studentID, 10)); err != nil {
		return Verdict{}, fmt.Errorf("write student id: %w", err)
	}
	part, err := w.CreateFormFile("image", "capture.jpg")
	if err != nil {
		return Verdict{}, fmt.Errorf("create image part: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return Verdict{}, fmt.Errorf("write image: %w", err)
	}
	if err := w.Close(); err != nil {
		return Verdict{}, fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/verify", &body)
	if err != nil {
		return Verdict{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("Face service request failed", zap.Int64("student_id", studentID), zap.Error(err))
		return Verdict{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("Face service responded",
		zap.Int64("student_id", studentID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)))

	if resp.StatusCode >= http.StatusInternalServerError {
		return Verdict{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var verdict Verdict
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&verdict); err != nil {
		return Verdict{}, fmt.Errorf("decode verdict: %w", err)
	}
	// 4xx означает, что лицо не распознано (нет лица на фото, не зарегистрирован и т.п.)
	if resp.StatusCode != http.StatusOK {
		verdict.Match = false
	}
	return verdict, nil
}

// Disabled is used when no service URL is configured.
type Disabled struct{}

func (Disabled) Verify(context.Context, int64, []byte) (Verdict, error) {
	return Verdict{}, ErrUnavailable
}
