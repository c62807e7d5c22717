// Package auth resolves the caller of an HTTP request to a user identity.
package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("admin access required")
)

// CookieName is the session cookie set by the browser front-end.
const CookieName = "sb-access-token"

// User is an authenticated caller.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Authenticator turns an access token into a User.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (User, error)
}

// Token extracts the access token from the Authorization header or, failing
// that, the session cookie. Returns "" when neither is present.
func Token(r *http.Request) string {
	const prefix = "Bearer "
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}

// Supabase validates tokens against a Supabase project's auth API.
type Supabase struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
}

func NewSupabase(baseURL, anonKey string) *Supabase {
	return &Supabase{
		baseURL:    strings.TrimRight(baseURL, "/"),
		anonKey:    anonKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Authenticate calls GET /auth/v1/user with the token. Any non-200 answer is
// ErrUnauthenticated; transport failures are returned wrapped.
func (s *Supabase) Authenticate(ctx context.Context, token string) (User, error) {
	if token == "" {
		return User{}, ErrUnauthenticated
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return User{}, fmt.Errorf("creating auth request: %w", err)
	}
	req.Header.Set("apikey", s.anonKey)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return User{}, fmt.Errorf("calling auth provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return User{}, ErrUnauthenticated
	}

	var u User
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return User{}, fmt.Errorf("decoding auth response: %w", err)
	}
	if u.ID == "" {
		return User{}, ErrUnauthenticated
	}
	return u, nil
}

// Static maps fixed tokens to users. It backs local deployments without a
// Supabase project and the CLI's test server.
type Static map[string]User

func (s Static) Authenticate(_ context.Context, token string) (User, error) {
	for t, u := range s {
		if subtle.ConstantTimeCompare([]byte(t), []byte(token)) == 1 {
			return u, nil
		}
	}
	return User{}, ErrUnauthenticated
}

// Admins is an email allow-list, compared case-insensitively.
type Admins map[string]struct{}

// ParseAdmins parses a comma-separated email list.
func ParseAdmins(list string) Admins {
	a := Admins{}
	for _, e := range strings.Split(list, ",") {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			a[e] = struct{}{}
		}
	}
	return a
}

// Check returns ErrForbidden unless u's email is on the list.
func (a Admins) Check(u User) error {
	if u.Email == "" {
		return ErrForbidden
	}
	if _, ok := a[strings.ToLower(u.Email)]; !ok {
		return ErrForbidden
	}
	return nil
}

type ctxKey struct{}

// WithUser returns a copy of ctx carrying u.
func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// FromContext returns the user stored by WithUser.
func FromContext(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(ctxKey{}).(User)
	return u, ok
}
