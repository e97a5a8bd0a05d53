// Package ollama implements the judgment oracle against a locally-hosted
// Ollama server.
package ollama

import (
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
	"golang.org/x/sync/semaphore"
)

// Oracle is an oracle.Client backed by an Ollama server. A weighted
// semaphore bounds concurrent requests since local servers queue poorly.
type Oracle struct {
	judgmentModel string

	reqLock *semaphore.Weighted

	baseURL    *url.URL
	httpClient *http.Client

	client *api.Client
}

// Params configures a new Oracle.
type Params struct {
	JudgmentModel string

	BaseURL string
	APIKey  string

	MaxConcurrentRequests int64
}

type headerTransport struct {
	headers map[string]string
	rt      http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// clone so original request isn't modified
	r := req.Clone(req.Context())
	for k, v := range t.headers {
		if r.Header.Get(k) == "" {
			r.Header.Set(k, v)
		}
	}
	return t.rt.RoundTrip(r)
}

// New creates an Ollama-backed oracle connecting to BaseURL (or the Ollama
// default when empty).
func New(params Params) (*Oracle, error) {
	var (
		u   *url.URL
		err error
	)
	if params.BaseURL != "" {
		u, err = url.Parse(params.BaseURL)
		if err != nil {
			return nil, err
		}
	}

	httpClient := &http.Client{
		Transport: &headerTransport{
			headers: map[string]string{
				"Authorization": "Bearer " + params.APIKey,
			},
			rt: http.DefaultTransport,
		},
	}

	if params.MaxConcurrentRequests <= 0 {
		params.MaxConcurrentRequests = 1
	}

	return &Oracle{
		judgmentModel: params.JudgmentModel,
		reqLock:       semaphore.NewWeighted(params.MaxConcurrentRequests),
		baseURL:       u,
		httpClient:    httpClient,
		client:        api.NewClient(u, httpClient),
	}, nil
}
