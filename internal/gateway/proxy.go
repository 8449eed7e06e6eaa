package gateway

import (
	"context"
	"net/http"

	"github.com/shopflow/shopflow/internal/middleware"
)

// forwardedHeaders are the request headers the gateway passes through to the
// backend. Everything else stops at the edge.
var forwardedHeaders = []string{
	"Content-Type",
	middleware.HeaderUserID,
	middleware.HeaderCorrelationID,
}

type ServiceProxy struct {
	baseURL string
	client  *http.Client
}

func NewServiceProxy(baseURL string, client *http.Client) *ServiceProxy {
	return &ServiceProxy{
		baseURL: baseURL,
		client:  client,
	}
}

func (p *ServiceProxy) ForwardRequest(ctx context.Context, r *http.Request, path string) (*http.Response, error) {
	url := p.baseURL + path
	if r.URL.RawQuery != "" {
		url += "?" + r.URL.RawQuery
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, url, r.Body)
	if err != nil {
		return nil, err
	}

	for _, name := range forwardedHeaders {
		if v := r.Header.Get(name); v != "" {
			req.Header.Set(name, v)
		}
	}

	return p.client.Do(req)
}
