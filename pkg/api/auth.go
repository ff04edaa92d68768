package api

import (
	"encoding/base64"
	"net/http"

	"github.com/kamilpajak/smarttest/internal/config"
)

// DefaultAPIKeyName is the header used for api_key auth when none is set.
const DefaultAPIKeyName = "X-API-Key"

// AuthHeader returns the request headers for a. It is empty for AuthNone,
// for unknown types and when the credentials a type needs are missing.
func AuthHeader(a config.AuthSettings) http.Header {
	h := http.Header{}
	switch a.Type {
	case config.AuthBearer:
		if a.Token != "" {
			h.Set("Authorization", "Bearer "+a.Token)
		}
	case config.AuthBasic:
		if a.Username != "" && a.Password != "" {
			cred := base64.StdEncoding.EncodeToString([]byte(a.Username + ":" + a.Password))
			h.Set("Authorization", "Basic "+cred)
		}
	case config.AuthAPIKey:
		if a.APIKey != "" {
			name := a.APIKeyName
			if name == "" {
				name = DefaultAPIKeyName
			}
			h.Set(name, a.APIKey)
		}
	}
	return h
}
