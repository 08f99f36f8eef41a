package payfast

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	DefaultProductionURL = "https://www.payfast.co.za"
	DefaultSandboxURL    = "https://sandbox.payfast.co.za"
	DefaultAPIURL        = "https://api.payfast.co.za"
	APIVersion           = "v1"
)

// DefaultValidHosts are the reverse-DNS names the gateway notifies from.
var DefaultValidHosts = []string{
	"www.payfast.co.za",
	"sandbox.payfast.co.za",
	"w1w.payfast.co.za",
	"w2w.payfast.co.za",
}

// Credentials is one merchant credential set.
type Credentials struct {
	MerchantID  string
	MerchantKey string
	Passphrase  string
}

// Endpoints holds the gateway base URLs.
type Endpoints struct {
	ProductionURL string
	SandboxURL    string
	APIURL        string
}

func DefaultEndpoints() Endpoints {
	return Endpoints{
		ProductionURL: DefaultProductionURL,
		SandboxURL:    DefaultSandboxURL,
		APIURL:        DefaultAPIURL,
	}
}

// Environment is the resolved gateway context for a single logical operation.
// It is passed explicitly to every signing or API-calling function.
type Environment struct {
	Sandbox     bool
	Credentials Credentials
	Endpoints   Endpoints
}

func (e Environment) Name() string {
	if e.Sandbox {
		return "sandbox"
	}
	return "production"
}

func (e Environment) baseURL() string {
	if e.Sandbox {
		return strings.TrimRight(e.Endpoints.SandboxURL, "/")
	}
	return strings.TrimRight(e.Endpoints.ProductionURL, "/")
}

// Host is the gateway host name for this environment.
func (e Environment) Host() string {
	u, err := url.Parse(e.baseURL())
	if err != nil {
		return ""
	}
	return u.Host
}

func (e Environment) ProcessURL() string {
	return e.baseURL() + "/eng/process"
}

func (e Environment) ValidateURL() string {
	return e.baseURL() + "/eng/query/validate"
}

// SubscriptionURL builds the subscription API URL for token and action
// ("fetch" or "cancel"). Sandbox calls carry testing=true.
func (e Environment) SubscriptionURL(token, action string) string {
	u := fmt.Sprintf("%s/subscriptions/%s/%s", strings.TrimRight(e.Endpoints.APIURL, "/"), url.PathEscape(token), action)
	if e.Sandbox {
		u += "?testing=true"
	}
	return u
}
