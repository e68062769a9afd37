package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
)

const DefaultEnvironment = "san_jose"

var Environments = map[string]string{
	"san_jose":      "https://api.omniture.com/admin/1.4/rest/",
	"dallas":        "https://api2.omniture.com/admin/1.4/rest/",
	"london":        "https://api3.omniture.com/admin/1.4/rest/",
	"san_jose_beta": "https://beta-api.omniture.com/admin/1.4/rest/",
	"dallas_beta":   "https://beta-api2.omniture.com/admin/1.4/rest/",
	"sandbox":       "https://api-sbx1.omniture.com/admin/1.4/rest/",
}

func EnvironmentNames() []string {
	names := make([]string, 0, len(Environments))
	for name := range Environments {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ResolveEndpoint picks the API endpoint: a custom URL wins over a named
// environment, and an empty environment means DefaultEnvironment.
func ResolveEndpoint(environment string, custom string) (string, error) {
	if strings.TrimSpace(custom) != "" {
		return normalizeEndpoint(custom)
	}
	name := strings.ToLower(strings.TrimSpace(environment))
	name = strings.ReplaceAll(name, "-", "_")
	if name == "" {
		name = DefaultEnvironment
	}
	endpoint, ok := Environments[name]
	if !ok {
		return "", fmt.Errorf("unknown environment %q (expected one of %s)", environment, strings.Join(EnvironmentNames(), ", "))
	}
	return endpoint, nil
}

func normalizeEndpoint(raw string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", errors.New("expected absolute endpoint URL like https://api.example.com/admin/1.4/rest/")
	}
	if !strings.EqualFold(parsed.Scheme, "http") && !strings.EqualFold(parsed.Scheme, "https") {
		return "", errors.New("endpoint scheme must be http or https")
	}
	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Fragment = ""
	// method is set per request.
	query := parsed.Query()
	query.Del("method")
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
