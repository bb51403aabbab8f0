package clients

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

type UsersClient struct{ c *Client }

func NewUsersClient(c *Client) *UsersClient { return &UsersClient{c: c} }

// IssueToken posts the login form to the user service. The form is
// re-encoded as application/x-www-form-urlencoded and the response is
// returned untouched.
func (uc *UsersClient) IssueToken(ctx context.Context, form url.Values) (*http.Response, error) {
	h := http.Header{}
	h.Set("Content-Type", "application/x-www-form-urlencoded")
	h.Set("Accept", "application/json")
	return uc.c.Do(ctx, http.MethodPost, "/auth/token", "", strings.NewReader(form.Encode()), h)
}
