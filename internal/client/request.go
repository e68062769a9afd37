package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"omniture-reporter/internal/logging"
)

var errInvalidJSON = errors.New("invalid JSON")

// Result is the outcome of a one-shot API call. When Decoded is false the
// server answered with a non-JSON body, which is returned verbatim in Raw.
type Result struct {
	StatusCode int
	Raw        []byte
	Value      any
	Decoded    bool
}

func (r Result) String() string {
	return string(r.Raw)
}

// Decode unmarshals a JSON result into v.
func (r Result) Decode(v any) error {
	if !r.Decoded {
		return errors.New("response is not JSON")
	}
	return json.Unmarshal(r.Raw, v)
}

// Request calls method once with params encoded as the JSON request body.
// params may be nil, a map or any struct that encodes to a JSON object.
func (c *AnalyticsClient) Request(ctx context.Context, method string, params any) (Result, error) {
	body, err := encodeParams(method, params)
	if err != nil {
		return Result{}, err
	}
	resp, err := c.Post(ctx, method, body)
	if err != nil {
		return Result{}, err
	}
	return c.decodeResult(method, resp)
}

func (c *AnalyticsClient) decodeResult(method string, resp Response) (Result, error) {
	result := Result{StatusCode: resp.StatusCode, Raw: resp.Body}
	if !json.Valid(resp.Body) {
		if utf8.Valid(resp.Body) {
			return result, nil
		}
		return Result{}, c.decodeFailure(method, resp, errors.New("body is neither JSON nor UTF-8 text"))
	}
	value, err := decodeJSON(resp.Body)
	if err != nil {
		return Result{}, c.decodeFailure(method, resp, err)
	}
	result.Value = value
	result.Decoded = true
	return result, nil
}

func (c *AnalyticsClient) decodeFailure(method string, resp Response, cause error) error {
	c.logger.Error("Error in request response",
		logging.Field("method", method),
		logging.Field("status", resp.StatusCode),
		logging.Field("error", cause),
		logging.Field("response", logging.FormatHTTPPayload(resp.Body)),
	)
	return &ResponseDecodeError{Method: method, StatusCode: resp.StatusCode, Body: resp.Body, Err: cause}
}

func encodeParams(method string, params any) ([]byte, error) {
	if params == nil {
		return []byte("{}"), nil
	}
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode %s params: %w", method, err)
	}
	trimmed := bytes.TrimSpace(body)
	if bytes.Equal(trimmed, []byte("null")) {
		return []byte("{}"), nil
	}
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("encode %s params: must be a JSON object, got %s", method, logging.FormatHTTPPayload(trimmed))
	}
	return body, nil
}

// decodeJSON keeps numbers as json.Number so large ids survive re-encoding.
func decodeJSON(data []byte) (any, error) {
	if !json.Valid(data) {
		return nil, errInvalidJSON
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, err
	}
	return value, nil
}
