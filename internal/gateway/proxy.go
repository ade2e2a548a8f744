package gateway

import (
	"context"
	"net/http"

	"github.com/beauzead/order-engine/internal/payments"
)

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

// ForwardRequest replays the inbound request against the upstream service.
// The payment signature header must survive the hop byte-for-byte, otherwise
// the upstream's verification over the raw body fails.
func (p *ServiceProxy) ForwardRequest(ctx context.Context, r *http.Request, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, r.Method, p.baseURL+path, r.Body)
	if err != nil {
		return nil, err
	}

	if contentType := r.Header.Get("Content-Type"); contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if signature := r.Header.Get(payments.SignatureHeader); signature != "" {
		req.Header.Set(payments.SignatureHeader, signature)
	}

	return p.client.Do(req)
}
