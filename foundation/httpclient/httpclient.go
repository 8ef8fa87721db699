// Package httpclient provides basic http fetch functions
package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/http"
)

var defaultClient = &http.Client{}

// GetBytes pulls bytes from url using a GET request. Every header in headers
// is applied to the request, which is how feed API keys are presented.
// A response status outside the 2xx range is returned as an error.
func GetBytes(ctx context.Context, log *log.Logger, url string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for name, value := range headers {
		req.Header.Set(name, value)
	}

	resp, err := defaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		innerErr := resp.Body.Close()
		if innerErr != nil {
			log.Printf("error closing http response body. error: %v\n", innerErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("received status %d from %s", resp.StatusCode, url)
	}

	buf := new(bytes.Buffer)
	_, err = buf.ReadFrom(resp.Body)
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
