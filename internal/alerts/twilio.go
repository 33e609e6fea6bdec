package alerts

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

const twilioTimeout = 15 * time.Second

// Sender delivers one SMS.
type Sender interface {
	Send(ctx context.Context, to, body string) error
}

// Twilio sends SMS through the Programmable Messaging REST API.
type Twilio struct {
	from   string
	client *twilio.RestClient
}

// NewTwilio builds a sender. A non-empty baseURL redirects every API call to
// that host, which is how tests and local gateways stand in for Twilio.
func NewTwilio(accountSID, authToken, from, baseURL string) *Twilio {
	httpClient := &http.Client{Timeout: twilioTimeout}
	if u, err := url.Parse(baseURL); err == nil && u.Host != "" {
		httpClient.Transport = &hostRewrite{target: u, next: http.DefaultTransport}
	}

	c := &twclient.Client{
		Credentials: twclient.NewCredentials(accountSID, authToken),
		HTTPClient:  httpClient,
	}
	c.SetAccountSid(accountSID)

	return &Twilio{
		from: from,
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: accountSID,
			Password: authToken,
			Client:   c,
		}),
	}
}

// SendError carries Twilio's error code and message.
type SendError struct {
	Status  int
	Code    int
	Message string
}

func (e *SendError) Error() string {
	return fmt.Sprintf("twilio: status %d code %d: %s", e.Status, e.Code, e.Message)
}

// Send creates one message. The SDK call takes no context, so ctx only gates
// the start of the request; the client timeout bounds the rest.
func (t *Twilio) Send(ctx context.Context, to, body string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("send sms: %w", err)
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(t.from)
	params.SetBody(body)

	if _, err := t.client.Api.CreateMessage(params); err != nil {
		var restErr *twclient.TwilioRestError
		if errors.As(err, &restErr) {
			return &SendError{Status: restErr.Status, Code: restErr.Code, Message: restErr.Message}
		}
		return fmt.Errorf("send sms: %w", err)
	}
	return nil
}

// hostRewrite sends requests built for api.twilio.com to target instead.
type hostRewrite struct {
	target *url.URL
	next   http.RoundTripper
}

func (h *hostRewrite) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.URL.Scheme = h.target.Scheme
	req.URL.Host = h.target.Host
	req.Host = h.target.Host
	return h.next.RoundTrip(req)
}
