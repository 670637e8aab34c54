package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"neural-garden/internal/constants"
	"neural-garden/internal/domain"

	"github.com/valyala/fasthttp"
)

func newHTTPClient(timeout time.Duration) *fasthttp.Client {
	return &fasthttp.Client{
		MaxConnsPerHost:     100,
		ReadTimeout:         timeout,
		WriteTimeout:        timeout,
		MaxIdleConnDuration: 1 * time.Minute,
	}
}

type request struct {
	method  string
	url     string
	headers map[string]string
	body    any
}

// doRequest sends a JSON request and decodes a JSON response into T.
// Failures are classified as external service errors; timeouts are retryable.
func doRequest[T any](ctx context.Context, client *fasthttp.Client, service string, r request) (*T, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(r.url)
	req.Header.SetMethod(r.method)
	req.Header.Set("Accept", "application/json")
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
	if r.body != nil {
		payload, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s request: %w", service, err)
		}
		req.Header.SetContentType("application/json")
		req.SetBodyRaw(payload)
	}

	if err := ctx.Err(); err != nil {
		return nil, domain.ExternalService(service+" request cancelled", errors.Is(err, context.DeadlineExceeded), err)
	}

	var err error
	if deadline, ok := ctx.Deadline(); ok {
		err = client.DoDeadline(req, resp, deadline)
	} else {
		err = client.Do(req, resp)
	}
	if err != nil {
		timeout := errors.Is(err, fasthttp.ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
		if timeout {
			return nil, domain.ExternalService(service+" timed out", true, err)
		}
		return nil, domain.ExternalService(service+" unreachable", false, err)
	}

	status := resp.StatusCode()
	if status < 200 || status > 299 {
		retryable := status == fasthttp.StatusTooManyRequests || status == fasthttp.StatusGatewayTimeout
		return nil, domain.ExternalService(
			fmt.Sprintf("%s returned status %d", service, status),
			retryable,
			fmt.Errorf("body: %s", truncate(string(resp.Body()), constants.JudgeMaxBodyPreview)),
		)
	}

	var result T
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, domain.ExternalService(service+" returned malformed JSON", false, err)
	}
	return &result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
