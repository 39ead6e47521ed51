package authsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/aussiebroadwan/tabsession/pkg/authevents"
)

// response is a fully read reply.
type response struct {
	status int
	header http.Header
	body   []byte
}

// resolve joins a relative path onto the base URL; absolute URLs pass
// through untouched.
func (c *Client) resolve(path string) string {
	if u, err := url.Parse(path); err == nil && u.IsAbs() {
		return path
	}
	if c.base == nil {
		return c.cfg.BaseURL + path
	}
	ref, err := url.Parse(path)
	if err != nil {
		return c.cfg.BaseURL + path
	}
	if !strings.HasPrefix(ref.Path, "/") {
		ref.Path = "/" + ref.Path
	}
	ref.Path = strings.TrimSuffix(c.base.Path, "/") + ref.Path
	return c.base.ResolveReference(ref).String()
}

// encodeBody serializes a RequestOptions body once so replays reuse it.
func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	default:
		return json.Marshal(b)
	}
}

// send performs one HTTP exchange. token is attached unless empty.
// Transport failures come back as *Error with KindTransport.
func (c *Client) send(
	ctx context.Context,
	path string,
	opts RequestOptions,
	body []byte,
	token string,
) (*response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &Error{Kind: KindTransport, Path: path, Message: "rate limiter", Err: err}
		}
	}

	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path), reader)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Path: path, Message: "failed to create request", Err: err}
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range opts.Headers {
		req.Header.Set(key, value)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.emitAuthError(authevents.ErrorNetwork, 0, path, err.Error())
		return nil, &Error{Kind: KindTransport, Path: path, Message: "failed to send request", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Status: resp.StatusCode, Path: path, Message: "failed to read response body", Err: err}
	}

	return &response{status: resp.StatusCode, header: resp.Header, body: raw}, nil
}

// decodeJSON decodes a successful reply into out. 204 and empty bodies
// leave out untouched.
func decodeJSON(resp *response, path string, out any) error {
	if out == nil || resp.status == http.StatusNoContent || len(bytes.TrimSpace(resp.body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return &Error{
			Kind:    KindDecode,
			Status:  resp.status,
			Path:    path,
			Message: "failed to decode response",
			Err:     err,
		}
	}
	return nil
}

func isSuccess(status int) bool { return status >= 200 && status < 300 }
