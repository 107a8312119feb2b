package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/task-sync-client/internal/model"
)

const maxErrorBody = 64 << 10

// HTTPGateway talks to the task REST API.
type HTTPGateway struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *zap.Logger
}

func NewHTTPGateway(baseURL, token string, client *http.Client, logger *zap.Logger) *HTTPGateway {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPGateway{
		baseURL: baseURL,
		token:   token,
		client:  client,
		logger:  logger,
	}
}

type listResponse struct {
	Data       []model.Task `json:"data"`
	Pagination struct {
		Page  int `json:"page"`
		Pages int `json:"pages"`
		Total int `json:"total"`
	} `json:"pagination"`
}

type taskResponse struct {
	Data model.Task `json:"data"`
}

type errorResponse struct {
	Message string       `json:"message"`
	Errors  []FieldError `json:"errors"`
}

func (g *HTTPGateway) List(ctx context.Context, filter model.TaskFilter) (model.Page, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(filter.Page))
	q.Set("limit", strconv.Itoa(filter.PageSize))
	if filter.Search != "" {
		q.Set("search", filter.Search)
	}
	if filter.Status != "" {
		q.Set("status", string(filter.Status))
	}
	if filter.Priority != "" {
		q.Set("priority", string(filter.Priority))
	}

	var resp listResponse
	if err := g.do(ctx, http.MethodGet, "/tasks?"+q.Encode(), nil, nil, &resp); err != nil {
		return model.Page{}, err
	}

	return model.Page{
		Items:      resp.Data,
		Page:       resp.Pagination.Page,
		TotalPages: resp.Pagination.Pages,
		TotalItems: resp.Pagination.Total,
	}, nil
}

func (g *HTTPGateway) Create(ctx context.Context, draft model.Draft) (model.Task, error) {
	header := http.Header{}
	header.Set("Idempotency-Key", uuid.NewString())

	var resp taskResponse
	if err := g.do(ctx, http.MethodPost, "/tasks", header, draft, &resp); err != nil {
		return model.Task{}, err
	}
	return resp.Data, nil
}

func (g *HTTPGateway) Update(ctx context.Context, id string, patch model.Patch) (model.Task, error) {
	var resp taskResponse
	if err := g.do(ctx, http.MethodPut, "/tasks/"+url.PathEscape(id), nil, patch, &resp); err != nil {
		return model.Task{}, err
	}
	return resp.Data, nil
}

func (g *HTTPGateway) Delete(ctx context.Context, id string) error {
	return g.do(ctx, http.MethodDelete, "/tasks/"+url.PathEscape(id), nil, nil, nil)
}

func (g *HTTPGateway) do(ctx context.Context, method, path string, header http.Header, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := sonic.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	res, err := g.client.Do(req)
	if err != nil {
		g.logger.Warn("gateway request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return &Error{Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return decodeError(res)
	}

	if out == nil || res.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := sonic.ConfigStd.NewDecoder(res.Body).Decode(out); err != nil {
		return &Error{Status: res.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func decodeError(res *http.Response) error {
	gwErr := &Error{Status: res.StatusCode}

	data, err := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
	if err != nil || len(data) == 0 {
		return gwErr
	}

	var body errorResponse
	if err := sonic.Unmarshal(data, &body); err != nil {
		return gwErr
	}
	gwErr.Message = body.Message
	gwErr.Fields = body.Errors
	return gwErr
}
