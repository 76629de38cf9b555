package powerwall

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/heathw/tesla-powerwall/internal/logging"
)

// Gateway endpoints. Every operation other than device type detection maps
// to exactly one of these.
const (
	PathLogin            = "/api/login/Basic"
	PathLogout           = "/api/logout"
	PathSOE              = "/api/system_status/soe"
	PathMetersAggregates = "/api/meters/aggregates"
	PathSiteMaster       = "/api/sitemaster"
	PathSiteMasterRun    = "/api/sitemaster/run"
	PathSiteMasterStop   = "/api/sitemaster/stop"
	PathGridStatus       = "/api/system_status/grid_status"
	PathSiteInfo         = "/api/site_info"
	PathSiteName         = "/api/site_info/site_name"
	PathStatus           = "/api/status"
	PathDeviceType       = "/api/device_type"
	PathPowerwalls       = "/api/powerwalls"
	PathOperation        = "/api/operation"
	PathSolars           = "/api/solars"
	PathConfig           = "/api/config"
)

// authCookieName is the cookie the gateway uses for the session token
const authCookieName = "AuthCookie"

// get issues a GET and returns the decoded body
func (c *Client) get(ctx context.Context, path string) (any, error) {
	return c.call(ctx, http.MethodGet, path, nil)
}

// post issues a POST with a JSON body and returns the decoded body
func (c *Client) post(ctx context.Context, path string, payload any) (any, error) {
	return c.call(ctx, http.MethodPost, path, payload)
}

func (c *Client) call(ctx context.Context, method, path string, payload any) (any, error) {
	resp, err := c.send(ctx, method, path, payload)
	if err != nil {
		return nil, err
	}
	return c.processResponse(path, resp)
}

// send performs one exchange, attaching the session cookies.
// Transport failures become unreachable errors.
func (c *Client) send(ctx context.Context, method, path string, payload any) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	logging.LogRequest(c.logger, method, path, c.IsAuthenticated())

	resp, err := c.transport.Send(ctx, &Request{
		Method:  method,
		Path:    path,
		Body:    payload,
		Cookies: c.cookies,
	})
	if err != nil {
		return nil, newUnreachableError(fmt.Sprintf("%s %s failed", method, path), err, c.host)
	}

	logging.LogResponse(c.logger, method, path, resp.StatusCode, resp.Body)
	return resp, nil
}

// processResponse maps HTTP statuses onto the error taxonomy and decodes the body
func (c *Client) processResponse(path string, resp *Response) (any, error) {
	text := strings.TrimSpace(string(resp.Body))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		var payload struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(resp.Body, &payload)
		return nil, newAccessDeniedError(path, resp.StatusCode, payload.Error, payload.Message)

	case resp.StatusCode == http.StatusBadGateway:
		// Older firmware answers 502 while the gateway backend is down
		return nil, newBadGatewayError(path, c.host)

	case resp.StatusCode == http.StatusNotFound:
		return nil, newAPIError(path, resp.StatusCode, text, fmt.Sprintf("the url %s returned error 404", path))

	case resp.StatusCode >= 400:
		msg := fmt.Sprintf("API returned status code '%d'", resp.StatusCode)
		if text != "" {
			msg = fmt.Sprintf("API returned status code '%d' with response: %s", resp.StatusCode, text)
		}
		return nil, newAPIError(path, resp.StatusCode, text, msg)
	}

	if text == "" {
		return map[string]any{}, nil
	}

	var decoded any
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		apiErr := newAPIError(path, resp.StatusCode, text, "error while decoding json of response")
		apiErr.Err = err
		return nil, apiErr
	}
	if decoded == nil {
		return map[string]any{}, nil
	}

	// Newer firmware answers some failures with 200 and an error member
	if obj, ok := decoded.(map[string]any); ok {
		if e, ok := obj["error"]; ok && e != nil {
			return nil, newAPIError(path, resp.StatusCode, text, fmt.Sprintf("gateway reported an error: %v", e))
		}
	}

	return decoded, nil
}

// asObject checks that a decoded body is a JSON object
func asObject(body any, category string) (map[string]any, error) {
	obj, ok := body.(map[string]any)
	if !ok {
		return nil, newInvalidAttributeError(category, "(response)", "an object", body)
	}
	return obj, nil
}

// asArray checks that a decoded body is a JSON array
func asArray(body any, category string) ([]any, error) {
	arr, ok := body.([]any)
	if !ok {
		return nil, newInvalidAttributeError(category, "(response)", "an array", body)
	}
	return arr, nil
}

// sessionCookies picks the cookies to keep after a successful login.
// Firmware that only returns a token gets an equivalent auth cookie.
func sessionCookies(set []*http.Cookie, token string) []*http.Cookie {
	cookies := make([]*http.Cookie, 0, len(set))
	for _, ck := range set {
		if ck.Value == "" || ck.MaxAge < 0 {
			continue
		}
		cookies = append(cookies, &http.Cookie{Name: ck.Name, Value: ck.Value})
	}
	if len(cookies) == 0 && token != "" {
		cookies = append(cookies, &http.Cookie{Name: authCookieName, Value: token})
	}
	return cookies
}
