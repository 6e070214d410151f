package distance

import (
	"context"
	"errand-route-service/internal/domain"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type httpStatusError struct {
	Code int
	Body string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("Code %d: %s", e.Code, e.Body)
}

func (o *ORSProvider) newRequest(
	ctx context.Context,
	method string,
	url string,
	body io.Reader,
) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", o.apiKey)
	req.Header.Set("Accept", "application/json, application/geo+json")

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

// do executes req once and classifies any failure as a *domain.ProviderError.
// Retrying is left to the caller's retry policy.
func (o *ORSProvider) do(req *http.Request) (*http.Response, error) {
	resp, err := o.session.Do(req)
	if err != nil {
		return nil, classifyORSError(err)
	}
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, classifyORSError(&httpStatusError{
			Code: resp.StatusCode,
			Body: strings.TrimSpace(string(b)),
		})
	}
	return resp, nil
}

// classifyORSError maps 429 to quota, 5xx and network failures to transient,
// and remaining 4xx responses to permanent.
func classifyORSError(err error) error {
	pe := &domain.ProviderError{Provider: orsName, Kind: domain.ProviderTransient, Err: err}

	var he *httpStatusError
	if errors.As(err, &he) {
		switch {
		case he.Code == http.StatusTooManyRequests:
			pe.Kind = domain.ProviderQuota
		case he.Code >= 500:
			pe.Kind = domain.ProviderTransient
		case he.Code == http.StatusNotFound:
			pe.Kind = domain.ProviderPermanent
			pe.Err = fmt.Errorf("%w: %v", domain.ErrNoRoute, err)
		default:
			pe.Kind = domain.ProviderPermanent
		}
		return pe
	}

	if errors.Is(err, context.Canceled) {
		return err
	}

	// Transport failures and timeouts.
	return pe
}
