package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	fluxerr "github.com/fluxcd/bluegreen/pkg/errors"
	"github.com/fluxcd/bluegreen/pkg/gate"
	transport "github.com/fluxcd/bluegreen/pkg/http"
	"github.com/fluxcd/bluegreen/pkg/http/httperror"
)

type Token string

func (t Token) Set(req *http.Request) {
	if string(t) != "" {
		req.Header.Set("Authorization", "Bearer "+string(t))
	}
}

// Client talks to the approval API of a release waiting for
// confirmation.
type Client struct {
	client   *http.Client
	token    Token
	router   *mux.Router
	endpoint string
}

func New(c *http.Client, router *mux.Router, endpoint string, t Token) *Client {
	return &Client{
		client:   c,
		token:    t,
		router:   router,
		endpoint: endpoint,
	}
}

func (c *Client) Ping(ctx context.Context) error {
	return c.methodWithResp(ctx, "GET", nil, transport.Ping, nil)
}

func (c *Client) Version(ctx context.Context) (string, error) {
	var v string
	err := c.methodWithResp(ctx, "GET", &v, transport.Version, nil)
	return v, err
}

func (c *Client) Pending(ctx context.Context) (gate.Request, error) {
	var req gate.Request
	err := c.methodWithResp(ctx, "GET", &req, transport.Pending, nil)
	return req, err
}

// Approve approves the pending switch; a buildID of zero approves
// whichever build is waiting.
func (c *Client) Approve(ctx context.Context, buildID int, reason string) (gate.Request, error) {
	var req gate.Request
	err := c.methodWithResp(ctx, "POST", &req, transport.Approve, gate.Decision{BuildID: buildID, Approve: true, Reason: reason})
	return req, err
}

func (c *Client) Reject(ctx context.Context, buildID int, reason string) (gate.Request, error) {
	var req gate.Request
	err := c.methodWithResp(ctx, "POST", &req, transport.Reject, gate.Decision{BuildID: buildID, Reason: reason})
	return req, err
}

// methodWithResp encodes body (if not nil) as JSON, and decodes a
// non-empty response into dest (if not nil).
func (c *Client) methodWithResp(ctx context.Context, method string, dest interface{}, route string, body interface{}, queryParams ...string) error {
	u, err := transport.MakeURL(c.endpoint, c.router, route, queryParams...)
	if err != nil {
		return errors.Wrap(err, "constructing URL")
	}

	var bodyBytes []byte
	if body != nil {
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encoding request body")
		}
	}

	req, err := http.NewRequest(method, u.String(), bytes.NewReader(bodyBytes))
	if err != nil {
		return errors.Wrapf(err, "constructing request %s", u)
	}
	req = req.WithContext(ctx)

	c.token.Set(req)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.executeRequest(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBytes, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "reading response from server")
	}
	if len(respBytes) == 0 || dest == nil {
		return nil
	}
	if err := json.Unmarshal(respBytes, dest); err != nil {
		return errors.Wrap(err, "decoding response from server")
	}
	return nil
}

func (c *Client) executeRequest(req *http.Request) (*http.Response, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "executing HTTP request")
	}
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent, http.StatusAccepted:
		return resp, nil
	}
	defer resp.Body.Close()
	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading response body of error")
	}
	// Our own errors come back as JSON; anything else (e.g., from a
	// proxy in between) is passed on as it is.
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var niceError fluxerr.Error
		if err := json.Unmarshal(body, &niceError); err == nil && niceError.Err != nil {
			return nil, &niceError
		}
	}
	return nil, &httperror.APIError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       string(body),
	}
}
