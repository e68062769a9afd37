package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"omniture-reporter/internal/logging"
	"omniture-reporter/internal/wsse"
)

// Response is the raw outcome of one API call.
type Response struct {
	StatusCode int
	Status     string
	Body       []byte
}

// Post signs and sends one API call. body must already be JSON. Every call
// carries a freshly generated WSSE token.
func (c *AnalyticsClient) Post(ctx context.Context, method string, body []byte) (Response, error) {
	target, err := c.methodURL(method)
	if err != nil {
		return Response{}, err
	}
	c.logger.Info(fmt.Sprintf("Requesting %s...", method))

	token := c.signer.Sign(c.cfg.Username, c.cfg.Secret)
	c.logger.Debug("created new nonce",
		logging.Field("method", method),
		logging.Field("nonce", token.Nonce),
		logging.Field("created", token.Created),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return Response{}, err
	}
	req.Header.Set(wsse.HeaderName, token.HeaderValue())
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			c.logger.Debug("request canceled", logging.Field("method", method), logging.Field("error", ctx.Err()))
		} else {
			c.logger.Error("request failed", logging.Field("method", method), logging.Field("error", err))
		}
		return Response{}, &TransportError{Method: method, URL: target, Err: err}
	}
	defer resp.Body.Close()
	c.logger.Info(fmt.Sprintf("Server responded with response code %d.", resp.StatusCode))

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return Response{}, &TransportError{Method: method, URL: target, Err: fmt.Errorf("read response body: %w", err)}
	}
	if len(data) > maxResponseBytes {
		return Response{}, &ResponseDecodeError{
			Method:     method,
			StatusCode: resp.StatusCode,
			Body:       data[:maxResponseBytes],
			Err:        fmt.Errorf("response body exceeds %d bytes", maxResponseBytes),
		}
	}
	c.logger.Debug("response received",
		logging.Field("method", method),
		logging.Field("status", resp.Status),
		logging.Field("response", logging.FormatHTTPPayload(data)),
	)
	return Response{StatusCode: resp.StatusCode, Status: resp.Status, Body: data}, nil
}

func (c *AnalyticsClient) methodURL(method string) (string, error) {
	if method == "" {
		return "", fmt.Errorf("api method name is required")
	}
	u, err := url.Parse(c.cfg.Endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	query := u.Query()
	query.Set("method", method)
	u.RawQuery = query.Encode()
	return u.String(), nil
}
