// Package client is the Go consumer of the attendance API: token issuance,
// public verification, attendance queries and image submission.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"smartclassroom/server/internal/qr"
)

// APIError is a non-2xx answer from the backend, carrying its snake_case
// error code.
type APIError struct {
	Status int
	Code   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Code)
}

type Client struct {
	baseURL  string
	http     *http.Client
	validate *validator.Validate

	mu     sync.Mutex
	bearer string
}

func New(baseURL string) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: 15 * time.Second},
		validate: validator.New(),
	}
}

// SetBearer installs the access token sent on authenticated calls.
func (c *Client) SetBearer(token string) {
	c.mu.Lock()
	c.bearer = token
	c.mu.Unlock()
}

// GenerateToken issues the QR token for a class period. Period defaults
// to 1; baseURL is the origin the QR link should point at, empty keeps the
// server's configured default.
func (c *Client) GenerateToken(ctx context.Context, classID string, period int, baseURL string) (*qr.TokenInfo, error) {
	if period < 1 {
		period = 1
	}
	body := map[string]interface{}{
		"class_id":      classID,
		"period_number": period,
	}
	if baseURL != "" {
		body["base_url"] = baseURL
	}
	var info qr.TokenInfo
	if err := c.postJSON(ctx, "/qr/generate", body, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// CurrentCode fetches the rotating code in effect for a class.
func (c *Client) CurrentCode(ctx context.Context, classID string) (*qr.CodeInfo, error) {
	var info qr.CodeInfo
	if err := c.getJSON(ctx, "/qr/code/"+classID, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// PeriodsPayload is the periods listing for one class.
type PeriodsPayload struct {
	ClassID   string      `json:"class_id"`
	ClassName string      `json:"class_name"`
	StartTime time.Time   `json:"start_time"`
	EndTime   time.Time   `json:"end_time"`
	Periods   []qr.Period `json:"periods"`
	// nil outside class hours
	CurrentPeriod *qr.Period `json:"current_period"`
}

func (c *Client) ClassPeriods(ctx context.Context, classID string) (*PeriodsPayload, error) {
	var payload PeriodsPayload
	if err := c.getJSON(ctx, "/qr/class/"+classID+"/periods", &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// ValidateToken resolves a scanned token. Transport failures degrade to an
// invalid status rather than an error: the scanning page always gets an
// answer it can render.
func (c *Client) ValidateToken(ctx context.Context, token string) *qr.TokenStatus {
	var status qr.TokenStatus
	if err := c.getJSON(ctx, "/qr/validate/"+token, &status); err != nil {
		log.Printf("client: validate token: %v", err)
		return &qr.TokenStatus{}
	}
	return &status
}

// VerifyCode runs the public check-in. The pre-flight only requires the
// fields to be present; code format is the server's call. An
// already-registered answer is a success, the returned result carries the
// flag.
func (c *Client) VerifyCode(ctx context.Context, req qr.VerifyRequest) (*qr.VerifyResult, error) {
	preflight := struct {
		Token  string `validate:"required"`
		Code   string `validate:"required"`
		Cedula string `validate:"required"`
	}{req.Token, req.Code, req.Cedula}
	if err := c.validate.Struct(preflight); err != nil {
		return nil, err
	}
	var result qr.VerifyResult
	if err := c.postJSON(ctx, "/qr/verify-code", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// AttendancePayload is the per-period attendance roll for one class.
type AttendancePayload struct {
	ClassID string                `json:"class_id"`
	Periods []qr.PeriodAttendance `json:"periods"`
}

func (c *Client) AttendanceByPeriod(ctx context.Context, classID string) (*AttendancePayload, error) {
	var payload AttendancePayload
	if err := c.getJSON(ctx, "/qr/attendance/"+classID+"/by-period", &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// SubmitAttendanceFrame uploads a camera frame for recognition against a
// class roster.
func (c *Client) SubmitAttendanceFrame(ctx context.Context, classID string, image []byte, filename string) (*qr.VerifyResult, error) {
	fields := map[string]string{"class_id": classID}
	var result qr.VerifyResult
	if err := c.postMultipart(ctx, "/attendance/verify", fields, image, filename, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RegisterFace uploads a reference photo for a student in a course.
func (c *Client) RegisterFace(ctx context.Context, studentID, courseID string, image []byte, filename string) error {
	fields := map[string]string{"student_id": studentID, "course_id": courseID}
	return c.postMultipart(ctx, "/attendance/register-face", fields, image, filename, nil)
}

// Wire plumbing

// unwrap peels the {success, message, data} envelope when present. Endpoints
// that answer bare payloads pass through untouched.
func unwrap(body []byte) []byte {
	var env struct {
		Success *bool           `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err == nil && env.Success != nil && len(env.Data) > 0 {
		return env.Data
	}
	return body
}

func (c *Client) do(req *http.Request, out interface{}) error {
	c.mu.Lock()
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	c.mu.Unlock()

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(body, &apiErr)
		if apiErr.Error == "" {
			apiErr.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Code: apiErr.Error}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(unwrap(body), out)
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body, out interface{}) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) postMultipart(ctx context.Context, path string, fields map[string]string, image []byte, filename string, out interface{}) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for key, value := range fields {
		if err := mw.WriteField(key, value); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile("image", filename)
	if err != nil {
		return err
	}
	if _, err := part.Write(image); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req, out)
}
