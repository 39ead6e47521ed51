package authsdk

import (
	"context"
	"net/http"

	"github.com/aussiebroadwan/tabsession/pkg/authevents"
)

// Do runs one call through the pipeline and decodes a JSON reply into out
// (which may be nil). A 401 for an expired credential triggers at most one
// renewal, after which the call is replayed once with SkipRefresh set.
func (c *Client) Do(ctx context.Context, path string, opts RequestOptions, out any) error {
	body, err := encodeBody(opts.Body)
	if err != nil {
		return &Error{Kind: KindTransport, Path: path, Message: "failed to encode request body", Err: err}
	}
	return c.do(ctx, path, opts, body, out)
}

func (c *Client) do(ctx context.Context, path string, opts RequestOptions, body []byte, out any) error {
	var token string
	if !opts.SkipAuth {
		token = c.store.AccessToken(ctx)
	}

	resp, err := c.send(ctx, path, opts, body, token)
	if err != nil {
		return err
	}

	if isSuccess(resp.status) {
		return decodeJSON(resp, path, out)
	}

	if resp.status != http.StatusUnauthorized || opts.SkipRefresh || opts.SkipAuth {
		return c.failure(resp, path, opts)
	}

	// 401 on a call that may renew. Only an expired credential is renewed;
	// a token that was replaced while this call was in flight is simply
	// retried with the replacement.
	current := c.store.AccessToken(ctx)
	expired := c.store.IsExpired(current)
	if !expired && current == token {
		return c.failure(resp, path, opts)
	}

	if expired {
		if err := c.renew(ctx, token); err != nil {
			return err
		}
	}

	opts.SkipRefresh = true
	return c.do(ctx, path, opts, body, out)
}

// failure classifies an unsuccessful reply and reports it on the bus.
func (c *Client) failure(resp *response, path string, opts RequestOptions) error {
	kind := KindTransport
	if resp.status == http.StatusUnauthorized {
		kind = KindAuth
	}
	e := parseErrorResponse(kind, resp.status, path, resp.body)

	switch {
	case resp.status == http.StatusUnauthorized && opts.SkipAuth:
		c.emitAuthError(authevents.ErrorCredentials, e.Status, e.Path, e.Message)
	case resp.status == http.StatusUnauthorized:
		c.emitAuthError(authevents.ErrorToken, e.Status, e.Path, e.Message)
	case resp.status == http.StatusForbidden:
		c.emitAuthError(authevents.ErrorPermissions, e.Status, e.Path, e.Message)
	case resp.status >= http.StatusInternalServerError:
		c.emitAuthError(authevents.ErrorServer, e.Status, e.Path, e.Message)
	}

	return e
}

func (c *Client) emitAuthError(t authevents.ErrorType, status int, path, msg string) {
	c.bus.Emit(authevents.AuthErrorPayload{
		ErrorMessage: msg,
		ErrorType:    t,
		Status:       status,
		Path:         path,
	})
}

// Get issues a GET and decodes the reply into out.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, path, RequestOptions{Method: http.MethodGet}, out)
}

// Post sends body as JSON.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, path, RequestOptions{Method: http.MethodPost, Body: body}, out)
}

func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, path, RequestOptions{Method: http.MethodPut, Body: body}, out)
}

func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, path, RequestOptions{Method: http.MethodPatch, Body: body}, out)
}

func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.Do(ctx, path, RequestOptions{Method: http.MethodDelete}, out)
}

// Fetch runs Do and returns the decoded reply. A 204 yields the zero T.
func Fetch[T any](ctx context.Context, c *Client, path string, opts RequestOptions) (T, error) {
	var out T
	if err := c.Do(ctx, path, opts, &out); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
