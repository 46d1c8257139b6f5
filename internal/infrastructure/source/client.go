package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	appsettlement "github.com/erp/reconciler/internal/application/settlement"
	"github.com/erp/reconciler/internal/domain/settlement"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// maxResponseSize caps one page body (10MB)
const maxResponseSize = 10 * 1024 * 1024

var (
	// ErrUpstreamStatus is returned for HTTP 4xx/5xx answers
	ErrUpstreamStatus = errors.New("source: upstream returned an error status")
	// ErrInvalidBaseURL is returned when the base URL is not absolute
	ErrInvalidBaseURL = errors.New("source: base URL must be absolute")
)

// Config holds the upstream ERP API settings
type Config struct {
	BaseURL       string
	AuthToken     string
	ReceiptsPath  string
	WriteOffsPath string
	PaymentsPath  string
	// Timeout bounds a whole HTTP exchange. Page timeouts set by the caller's
	// context apply on top of it.
	Timeout time.Duration
}

// Client talks to the upstream ERP list endpoints
type Client struct {
	baseURL    *url.URL
	authToken  string
	httpClient *http.Client
}

// NewClient creates a new upstream API client
func NewClient(cfg Config) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, cfg.BaseURL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    u,
		authToken:  cfg.AuthToken,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// envelope is the list response of the upstream API. Newer endpoints send
// "pagination", older ones the generic "meta" block; either may be absent.
type envelope[T any] struct {
	Success    bool                      `json:"success"`
	Data       []T                       `json:"data"`
	Pagination *appsettlement.Pagination `json:"pagination"`
	Meta       *struct {
		Total      int `json:"total"`
		Page       int `json:"page"`
		PageSize   int `json:"page_size"`
		TotalPages int `json:"total_pages"`
	} `json:"meta"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (e envelope[T]) page() appsettlement.Page[T] {
	page := appsettlement.Page[T]{Success: e.Success, Items: e.Data}
	switch {
	case e.Pagination != nil:
		page.Pagination = e.Pagination
	case e.Meta != nil:
		page.Pagination = &appsettlement.Pagination{
			Page:  e.Meta.Page,
			Pages: e.Meta.TotalPages,
			Total: e.Meta.Total,
		}
	}
	return page
}

// PageProvider reads one list endpoint page by page
type PageProvider[T any] struct {
	client *Client
	path   string
}

// NewPageProvider creates a provider for the list endpoint at path
func NewPageProvider[T any](client *Client, path string) *PageProvider[T] {
	return &PageProvider[T]{client: client, path: path}
}

// FetchPage implements application settlement.PageProvider
func (p *PageProvider[T]) FetchPage(ctx context.Context, req appsettlement.PageRequest) (appsettlement.Page[T], error) {
	endpoint := p.client.baseURL.JoinPath(p.path)
	endpoint.RawQuery = pageQuery(req).Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return appsettlement.Page[T]{}, fmt.Errorf("source: failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if p.client.authToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.client.authToken)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	resp, err := p.client.httpClient.Do(httpReq)
	if err != nil {
		return appsettlement.Page[T]{}, fmt.Errorf("source: %s: %w", p.path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return appsettlement.Page[T]{}, fmt.Errorf("source: failed to read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return appsettlement.Page[T]{}, fmt.Errorf("%w: %s HTTP %d", ErrUpstreamStatus, p.path, resp.StatusCode)
	}

	var env envelope[T]
	if err := json.Unmarshal(body, &env); err != nil {
		return appsettlement.Page[T]{}, fmt.Errorf("source: %s: invalid response: %w", p.path, err)
	}
	if !env.Success && env.Error != nil {
		return env.page(), fmt.Errorf("source: %s: %s: %s", p.path, env.Error.Code, env.Error.Message)
	}
	return env.page(), nil
}

func pageQuery(req appsettlement.PageRequest) url.Values {
	q := url.Values{}
	q.Set("page", strconv.Itoa(req.Page))
	q.Set("page_size", strconv.Itoa(req.PageSize))
	if req.Filter.From != nil {
		q.Set("from", req.Filter.From.UTC().Format(time.RFC3339))
	}
	if req.Filter.To != nil {
		q.Set("to", req.Filter.To.UTC().Format(time.RFC3339))
	}
	if req.Filter.PartyID != "" {
		q.Set("party_id", req.Filter.PartyID)
	}
	if search := strings.TrimSpace(req.Filter.Search); search != "" {
		q.Set("search", search)
	}
	return q
}

// NewSources wires the three list endpoints of the upstream API
func NewSources(cfg Config) (appsettlement.Sources, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return appsettlement.Sources{}, err
	}
	return appsettlement.Sources{
		Receipts:  NewPageProvider[settlement.Movement](client, cfg.ReceiptsPath),
		WriteOffs: NewPageProvider[settlement.Movement](client, cfg.WriteOffsPath),
		Payments:  NewPageProvider[settlement.Payment](client, cfg.PaymentsPath),
	}, nil
}
