package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/AaronLay10/ActionGraph/internal/config"
)

// Role is what an authenticated caller may do.
type Role string

const (
	// RoleAuthor may edit scenes and run them.
	RoleAuthor Role = "author"
	// RoleOperator may read scenes and start or stop runs.
	RoleOperator Role = "operator"
)

const (
	envAuthorUser   = "ACTIONGRAPH_AUTHOR_USER"
	envAuthorPass   = "ACTIONGRAPH_AUTHOR_PASS"
	envOperatorUser = "ACTIONGRAPH_OPERATOR_USER"
	envOperatorPass = "ACTIONGRAPH_OPERATOR_PASS"
)

type credentials struct {
	user string
	pass string
	role Role
}

type authConfig struct {
	accounts []credentials
}

var auth *authConfig

// InitAuth loads credentials from the environment, honouring the *_FILE convention.
// Without author credentials authentication is disabled.
func InitAuth() error {
	secrets, err := config.ResolveSecrets(envAuthorUser, envAuthorPass, envOperatorUser, envOperatorPass)
	if err != nil {
		return err
	}
	auth = &authConfig{}
	if secrets[envAuthorUser] == "" || secrets[envAuthorPass] == "" {
		return nil
	}
	auth.accounts = append(auth.accounts, credentials{secrets[envAuthorUser], secrets[envAuthorPass], RoleAuthor})
	if secrets[envOperatorUser] != "" && secrets[envOperatorPass] != "" {
		auth.accounts = append(auth.accounts, credentials{secrets[envOperatorUser], secrets[envOperatorPass], RoleOperator})
	}
	return nil
}

// IsAuthEnabled returns true if authentication is configured.
func IsAuthEnabled() bool {
	return auth != nil && len(auth.accounts) > 0
}

// authenticate returns the caller's role, or "" for bad credentials.
func authenticate(r *http.Request) Role {
	if !IsAuthEnabled() {
		return RoleAuthor
	}
	user, pass, ok := r.BasicAuth()
	if !ok {
		return ""
	}
	for _, acc := range auth.accounts {
		if secureCompare(user, acc.user) && secureCompare(pass, acc.pass) {
			return acc.role
		}
	}
	return ""
}

// secureCompare performs constant-time string comparison to prevent timing attacks.
func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func requireAuth(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="ActionGraph"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}

// RequireRole wraps a handler and requires one of the specified roles.
func RequireRole(handler http.HandlerFunc, allowedRoles ...Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := authenticate(r)
		if role == "" {
			requireAuth(w)
			return
		}
		for _, allowed := range allowedRoles {
			if role == allowed {
				handler(w, r)
				return
			}
		}
		http.Error(w, "Forbidden", http.StatusForbidden)
	}
}

// RequireAnyRole wraps a handler requiring author OR operator role.
func RequireAnyRole(handler http.HandlerFunc) http.HandlerFunc {
	return RequireRole(handler, RoleAuthor, RoleOperator)
}

// RequireAuthor wraps a handler requiring the author role.
func RequireAuthor(handler http.HandlerFunc) http.HandlerFunc {
	return RequireRole(handler, RoleAuthor)
}
