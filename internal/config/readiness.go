package config

import (
	"fmt"
	"net/url"
	"strings"
)

// RequiredEnv lists the variables a production deployment must define.
var RequiredEnv = []string{
	"NEXT_PUBLIC_SUPABASE_URL",
	"NEXT_PUBLIC_SUPABASE_ANON_KEY",
	"SUPABASE_SERVICE_ROLE_KEY",
	"DATABASE_URL",
	"NEXT_PUBLIC_APP_URL",
	"TWITTER_CLIENT_ID",
	"TWITTER_CLIENT_SECRET",
	"LINKEDIN_CLIENT_ID",
	"LINKEDIN_CLIENT_SECRET",
}

// Problem is one failed readiness check.
type Problem struct {
	Key    string
	Reason string
}

func (p Problem) String() string {
	return fmt.Sprintf("%s: %s", p.Key, p.Reason)
}

// CheckReadiness reports every missing or malformed go-live variable. lookup
// is usually os.LookupEnv.
func CheckReadiness(lookup func(string) (string, bool)) []Problem {
	var problems []Problem
	for _, key := range RequiredEnv {
		value, ok := lookup(key)
		if !ok || strings.TrimSpace(value) == "" {
			problems = append(problems, Problem{Key: key, Reason: "missing"})
		}
	}

	if appURL, ok := lookup("NEXT_PUBLIC_APP_URL"); ok && strings.TrimSpace(appURL) != "" {
		if !hasProtocol(appURL) {
			problems = append(problems, Problem{Key: "NEXT_PUBLIC_APP_URL", Reason: "must include protocol (http:// or https://)"})
		}
	}
	return problems
}

func hasProtocol(raw string) bool {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}
