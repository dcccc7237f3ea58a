package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/storage"
	"github.com/maheshrc27/postflow/internal/transfer"
)

// PlatformAdapter runs one platform's publish protocol for a job.
type PlatformAdapter interface {
	Platform() models.Platform
	PrepareMedia(ctx context.Context, post *models.ScheduledPost) (*models.MediaRef, error)
	Publish(ctx context.Context, token *models.Token, post *models.ScheduledPost, media *models.MediaRef) (*models.PublishResult, error)
}

const maxErrorBody = 4096

// classifyHTTPStatus maps a failed platform response to the error taxonomy.
func classifyHTTPStatus(op string, status int, body []byte) error {
	err := fmt.Errorf("status %d: %s", status, strings.TrimSpace(string(body)))
	switch {
	case status == http.StatusUnauthorized:
		return models.NewAuthError(op, err)
	case status == http.StatusForbidden:
		return models.NewPermissionError(op, err)
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests, status >= 500:
		return models.NewTransientError(op, err)
	default:
		return models.NewValidationError(op, err)
	}
}

// classifyGraphError reads the Graph API error envelope shared by Instagram
// and Facebook before falling back to the status code.
func classifyGraphError(op string, status int, body []byte) error {
	var ge transfer.GraphErrorResponse
	if json.Unmarshal(body, &ge) != nil || ge.Error.Message == "" {
		return classifyHTTPStatus(op, status, body)
	}

	err := fmt.Errorf("status %d: %s (code %d)", status, ge.Error.Message, ge.Error.Code)
	switch {
	case ge.Error.IsTransient:
		return models.NewTransientError(op, err)
	case ge.Error.Code == 190:
		return models.NewAuthError(op, err)
	case ge.Error.Code == 10 || (ge.Error.Code >= 200 && ge.Error.Code < 300):
		return models.NewPermissionError(op, err)
	case ge.Error.Code == 4 || ge.Error.Code == 17 || ge.Error.Code == 32 || ge.Error.Code == 613:
		return models.NewTransientError(op, err)
	}
	return classifyHTTPStatus(op, status, body)
}

type errorClassifier func(op string, status int, body []byte) error

// doJSON sends req and decodes a 2xx JSON body into out. Network failures
// are transient; other failures go through classify.
func doJSON(client *http.Client, req *http.Request, op string, classify errorClassifier, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return models.NewTransientError(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return classify(op, resp.StatusCode, body)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		slog.Info(err.Error())
		return models.NewTransientError(op, fmt.Errorf("error parsing response: %w", err))
	}
	return nil
}

func newJSONRequest(ctx context.Context, method, url string, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("error marshalling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

type formField struct {
	name  string
	value string
}

type formFile struct {
	field    string
	filename string
	data     []byte
}

// newMultipartRequest builds a multipart/form-data request. Fields are
// written in order, followed by the optional file part.
func newMultipartRequest(ctx context.Context, url string, fields []formField, file *formFile) (*http.Request, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, err
		}
	}
	if file != nil {
		part, err := w.CreateFormFile(file.field, file.filename)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(file.data); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req, nil
}

// loadImage fetches and re-checks the stored image of post. It returns nil
// when the post has no image.
func loadImage(ctx context.Context, store storage.BlobStore, post *models.ScheduledPost) (*NormalizedImage, error) {
	if post.ImageKey == "" {
		return nil, nil
	}

	data, err := store.Get(ctx, post.ImageKey)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.NewValidationError("load image", err)
		}
		return nil, models.NewTransientError("load image", err)
	}
	return NormalizeImage(data)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
