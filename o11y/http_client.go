package o11y

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
	Get(string) (*http.Response, error)
}

type wrappedClient struct {
	HTTPClient
	log zerolog.Logger
}

// WrapClient logs every outbound request with its status and duration.
func WrapClient(c HTTPClient, log zerolog.Logger) HTTPClient {
	return &wrappedClient{HTTPClient: c, log: log}
}

func (c *wrappedClient) Do(req *http.Request) (*http.Response, error) {
	started := time.Now()
	res, err := c.HTTPClient.Do(req)

	event := c.log.Debug().
		Str("method", req.Method).
		Str("host", req.URL.Host).
		Str("path", req.URL.Path).
		Dur("duration", time.Since(started))
	if err != nil {
		event.Err(err).Msg("http client: request failed")
		return nil, err
	}
	event.Int("status", res.StatusCode).Msg("http client: request")
	return res, nil
}

func (c *wrappedClient) Get(url string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}
