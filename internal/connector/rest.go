package connector

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/milkywaybrain/exchangeloader/internal/config"
	"github.com/pkg/errors"
)

// REST is for making requests to REST API endpoints.
type REST struct {
	HTTPClient *http.Client
}

var rest *REST

// maxErrBody is the number of response body bytes kept in a status error.
const maxErrBody = 512

// StatusError is returned by Do when the server answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

// Error returns the status line of the response.
func (e *StatusError) Error() string {
	if e.Body == "" {
		return "unexpected response status " + e.Status
	}
	return "unexpected response status " + e.Status + " : " + e.Body
}

// NewREST creates a REST client with configured values.
// Zero request timeout leaves the transport without a client side timeout.
func NewREST(cfg *config.REST) *REST {
	t := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.MaxIdleConns > 0 {
		t.MaxIdleConns = cfg.MaxIdleConns
	}
	if cfg.MaxIdleConnsPerHost > 0 {
		t.MaxIdleConnsPerHost = cfg.MaxIdleConnsPerHost
	}
	return &REST{
		HTTPClient: &http.Client{
			Timeout:   time.Duration(cfg.ReqTimeoutSec) * time.Second,
			Transport: t,
		},
	}
}

// InitREST initializes the shared REST client with configured values.
func InitREST(cfg *config.REST) *REST {
	if rest == nil {
		rest = NewREST(cfg)
	}
	return rest
}

// GetREST returns already prepared REST client.
func GetREST() (*REST, error) {
	if rest == nil {
		return nil, errors.New("REST connection is not initialized")
	}
	return rest, nil
}

// Request creates a new request with the given context.
func (r *REST) Request(ctx context.Context, method string, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// Do sends the request. Non-2xx responses are drained, closed and
// returned as *StatusError.
func (r *REST) Do(req *http.Request) (*http.Response, error) {
	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
		resp.Body.Close()
		return nil, errors.WithStack(&StatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
		})
	}
	return resp, nil
}
