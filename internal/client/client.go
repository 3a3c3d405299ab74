package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/noah-isme/attendance-archive-api/internal/archive"
	"github.com/noah-isme/attendance-archive-api/internal/models"
	"github.com/noah-isme/attendance-archive-api/pkg/config"
)

const (
	maxJSONBody        = 4 << 20
	maxExportBody      = 1 << 30
	professorsCacheKey = "professors"
	professorsCacheTTL = 5 * time.Minute
	exportDateLayout   = "2006-01-02"
	genericExportError = "export failed"
)

// Client talks to the archive API and implements archive.Backend.
type Client struct {
	baseURL    *url.URL
	token      string
	http       *http.Client
	professors *expirable.LRU[string, []archive.Professor]
	maxExport  int64
	logger     *zap.Logger
}

var _ archive.Backend = (*Client)(nil)

// New builds a client for cfg.BaseURL. A nil httpClient gets one with cfg.Timeout.
func New(cfg config.ClientConfig, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid archive api url %q", cfg.BaseURL)
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 2 * time.Minute
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    base,
		token:      cfg.Token,
		http:       httpClient,
		professors: expirable.NewLRU[string, []archive.Professor](4, nil, professorsCacheTTL),
		maxExport:  maxExportBody,
		logger:     logger,
	}, nil
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *apiError       `json:"error"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// CurrentUser resolves the session behind the configured token.
func (c *Client) CurrentUser(ctx context.Context) (*archive.Session, error) {
	var info models.UserInfo
	if err := c.callJSON(ctx, http.MethodGet, "/auth/me", nil, &info); err != nil {
		return nil, err
	}
	return &archive.Session{User: archive.User{ID: info.ID, FullName: info.FullName, Role: string(info.Role)}}, nil
}

// GetArchiveSummary implements archive.Backend.
func (c *Client) GetArchiveSummary(ctx context.Context) (archive.Summary, error) {
	var payload models.ArchiveSummary
	if err := c.callJSON(ctx, http.MethodGet, "/archive/summary", nil, &payload); err != nil {
		return archive.Summary{}, err
	}
	summary := archive.Summary{
		CurrentMonthLabel: payload.CurrentMonth,
		DaysUntilMonthEnd: payload.DaysUntilMonthEnd,
		Current:           toPeriod(&payload.ArchiveStatus),
		CleanupTarget:     toPeriod(payload.CleanupTarget),
		IsCleanupWindow:   payload.IsCleanupWindow,
		ShowReminder:      payload.ShouldShowReminder,
		FetchedAt:         payload.GeneratedAt,
	}
	if summary.Current.Year == 0 {
		summary.Current.Year, summary.Current.Month = payload.Year, payload.Month
	}
	if payload.CurrentData != nil {
		summary.HasCurrentData = true
		summary.CurrentData = archive.RecordCounts{Attendance: payload.CurrentData.Attendance, Assessments: payload.CurrentData.Assessments}
	}
	return summary, nil
}

// MarkArchiveComplete implements archive.Backend.
func (c *Client) MarkArchiveComplete(ctx context.Context) error {
	var result models.MarkCompleteResult
	return c.callJSON(ctx, http.MethodPost, "/archive/mark-complete", nil, &result)
}

// ExecuteCleanup implements archive.Backend.
func (c *Client) ExecuteCleanup(ctx context.Context, override bool) (archive.CleanupOutcome, error) {
	var result models.CleanupResult
	if err := c.callJSON(ctx, http.MethodPost, "/archive/cleanup", map[string]bool{"override": override}, &result); err != nil {
		return archive.CleanupOutcome{}, err
	}
	return archive.CleanupOutcome{
		Message:        result.Message,
		Period:         toPeriod(&result.Period),
		RecordsDeleted: toCounts(result.RecordsDeleted),
		ImageFailures:  result.ImageFailures,
	}, nil
}

// ClearAllData implements archive.Backend.
func (c *Client) ClearAllData(ctx context.Context, phrase string) (archive.ClearOutcome, error) {
	var result models.ClearAllResult
	if err := c.callJSON(ctx, http.MethodPost, "/archive/clear-all", map[string]string{"confirmationPhrase": phrase}, &result); err != nil {
		return archive.ClearOutcome{}, err
	}
	return archive.ClearOutcome{Deleted: toCounts(result.Deleted), ImageFailures: result.ImageFailures}, nil
}

// ListProfessors implements archive.Backend. Results are cached for a few minutes.
func (c *Client) ListProfessors(ctx context.Context) ([]archive.Professor, error) {
	if cached, ok := c.professors.Get(professorsCacheKey); ok {
		return cached, nil
	}
	var payload []models.Professor
	if err := c.callJSON(ctx, http.MethodGet, "/users/professors", nil, &payload); err != nil {
		return nil, err
	}
	professors := make([]archive.Professor, 0, len(payload))
	for _, p := range payload {
		professors = append(professors, archive.Professor{ID: p.ID, FullName: p.FullName, Subject: p.Subject})
	}
	c.professors.Add(professorsCacheKey, professors)
	return professors, nil
}

// Export implements archive.Backend.
func (c *Client) Export(ctx context.Context, req archive.ExportRequest) (archive.Artifact, error) {
	query := url.Values{}
	var path string
	switch req.Kind {
	case archive.ExportAttendance, archive.ExportAssessments:
		path = "/archive/export/" + string(req.Kind)
		if req.ProfessorID != "" {
			query.Set("professorId", req.ProfessorID)
		}
		if req.Start != nil {
			query.Set("startDate", req.Start.Format(exportDateLayout))
		}
		if req.End != nil {
			query.Set("endDate", req.End.Format(exportDateLayout))
		}
		if req.Kind == archive.ExportAttendance && req.Format != "" {
			query.Set("format", req.Format)
		}
	case archive.ExportMonthly:
		path = "/archive/export/monthly"
		query.Set("year", strconv.Itoa(req.Year))
		query.Set("month", strconv.Itoa(req.Month))
	default:
		return archive.Artifact{}, archive.NewActionError(archive.ValidationError, fmt.Sprintf("unknown export kind %q", req.Kind), nil)
	}

	resp, err := c.do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return archive.Artifact{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxExport+1))
	if err != nil {
		return archive.Artifact{}, transient(err)
	}

	contentType := resp.Header.Get("Content-Type")
	if resp.StatusCode >= http.StatusBadRequest {
		msg, ok := errorMessage(body, true)
		if !ok {
			msg = genericExportError
		}
		return archive.Artifact{}, statusError(resp.StatusCode, msg)
	}
	if int64(len(body)) > c.maxExport {
		c.logger.Warn("export exceeds size limit", zap.Int64("limit_bytes", c.maxExport), zap.String("kind", string(req.Kind)))
		return archive.Artifact{}, archive.NewActionError(archive.ServerLogicError,
			fmt.Sprintf("export is larger than %d bytes, narrow the date range or professor filter", c.maxExport), nil)
	}
	// some deployments send error bodies with the success content type
	if msg, ok := errorMessage(body, false); ok {
		c.logger.Warn("export returned an error body with a success status",
			zap.Int("status", resp.StatusCode), zap.String("content_type", contentType))
		return archive.Artifact{}, archive.NewActionError(archive.ServerLogicError, msg, nil)
	}

	return archive.Artifact{
		Kind:        req.Kind,
		Filename:    filenameFromDisposition(resp.Header.Get("Content-Disposition")),
		ContentType: contentType,
		Payload:     body,
	}, nil
}

func (c *Client) callJSON(ctx context.Context, method, path string, payload, out interface{}) error {
	resp, err := c.do(ctx, method, path, nil, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJSONBody))
	if err != nil {
		return transient(err)
	}

	var env envelope
	decodeErr := json.Unmarshal(body, &env)
	if resp.StatusCode >= http.StatusBadRequest || (decodeErr == nil && env.Error != nil) {
		msg, ok := errorMessage(body, true)
		if !ok {
			msg = http.StatusText(resp.StatusCode)
		}
		status := resp.StatusCode
		if status < http.StatusBadRequest && env.Error != nil && env.Error.Status >= http.StatusBadRequest {
			status = env.Error.Status
		}
		return statusError(status, msg)
	}
	if decodeErr != nil {
		return archive.NewActionError(archive.ServerLogicError, "unexpected response from server", decodeErr)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return archive.NewActionError(archive.ServerLogicError, "unexpected response from server", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload interface{}) (*http.Response, error) {
	endpoint := c.baseURL.JoinPath(path)
	if len(query) > 0 {
		endpoint.RawQuery = query.Encode()
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("archive api request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return nil, transient(err)
	}
	c.logger.Debug("archive api request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)
	return resp, nil
}

// statusError maps an HTTP status to the console error taxonomy.
func statusError(status int, msg string) error {
	kind := archive.ServerLogicError
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		kind = archive.ValidationError
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = archive.AuthorizationError
	}
	return archive.NewActionError(kind, msg, fmt.Errorf("http status %d", status))
}

func transient(err error) error {
	return archive.NewActionError(archive.TransientNetworkError, "request failed, please try again", err)
}

// errorMessage extracts a human message from an error body. It understands the API
// envelope, {"message": "..."} and {"error": "..."}. allowText accepts a short plain-text body.
func errorMessage(body []byte, allowText bool) (string, bool) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return "", false
	}
	if trimmed[0] == '{' {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return "", false
		}
		if raw, ok := fields["error"]; ok {
			var nested apiError
			if err := json.Unmarshal(raw, &nested); err == nil && nested.Message != "" {
				return nested.Message, true
			}
			var text string
			if err := json.Unmarshal(raw, &text); err == nil && text != "" {
				return text, true
			}
		}
		if raw, ok := fields["message"]; ok {
			var text string
			if err := json.Unmarshal(raw, &text); err == nil && text != "" {
				return text, true
			}
		}
		return "", false
	}
	if !allowText || len(trimmed) > 512 || !isPlainText(trimmed) {
		return "", false
	}
	return string(trimmed), true
}

func isPlainText(b []byte) bool {
	if bytes.IndexByte(b, 0) >= 0 {
		return false
	}
	return strings.ToValidUTF8(string(b), "�") == string(b)
}

// filenameFromDisposition prefers filename* over filename; mime.ParseMediaType
// already decodes the RFC 2231 form into "filename".
func filenameFromDisposition(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return params["filename"]
}

func toPeriod(status *models.ArchiveStatus) archive.Period {
	if status == nil {
		return archive.Period{}
	}
	p := archive.Period{Year: status.Year, Month: status.Month, State: archive.ParseState(string(status.State))}
	if p.State == archive.StateUninitialized {
		switch {
		case status.CleanupExecutedAt != nil:
			p.State = archive.StateCleaned
		case status.Completed:
			p.State = archive.StateCompleted
		case status.Year != 0:
			p.State = archive.StateOpen
		}
	}
	if status.CompletedBy != nil {
		p.CompletedBy = *status.CompletedBy
	}
	if status.CompletedAt != nil {
		p.CompletedAt = *status.CompletedAt
	}
	if status.CleanupExecutedAt != nil {
		p.CleanupExecutedAt = *status.CleanupExecutedAt
	}
	return p
}

func toCounts(c models.RecordCounts) archive.RecordCounts {
	return archive.RecordCounts{Attendance: c.Attendance, Assessments: c.Assessments, Archives: c.Archives, Images: c.Images}
}

// IsTransient reports whether err is a network-level failure worth retrying by hand.
func IsTransient(err error) bool {
	var actionErr *archive.ActionError
	return errors.As(err, &actionErr) && actionErr.Kind == archive.TransientNetworkError
}
