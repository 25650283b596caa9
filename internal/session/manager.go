package session

import (
	"net/http"
	"time"

	"github.com/alexedwards/scs/goredisstore"
	"github.com/alexedwards/scs/v2"
	"github.com/redis/go-redis/v9"
)

// ManagerOptions configures the browser session. Client nil keeps sessions in process memory.
type ManagerOptions struct {
	Client     *redis.Client
	CookieName string
	Lifetime   time.Duration
	// Secure marks the cookie HTTPS-only. Set whenever the public base URL is https.
	Secure bool
}

// NewManager returns the session manager the AuthSession is persisted in. Sessions have an absolute
// lifetime and the cookie is HttpOnly and SameSite=Lax so magic-link callbacks still carry it.
func NewManager(opts ManagerOptions) *scs.SessionManager {
	sm := scs.New()
	if opts.Client != nil {
		sm.Store = goredisstore.NewWithPrefix(opts.Client, "workforce:session:")
	}
	if opts.Lifetime > 0 {
		sm.Lifetime = opts.Lifetime
	}
	if opts.CookieName != "" {
		sm.Cookie.Name = opts.CookieName
	}
	sm.Cookie.HttpOnly = true
	sm.Cookie.SameSite = http.SameSiteLaxMode
	sm.Cookie.Secure = opts.Secure
	sm.Cookie.Persist = true
	return sm
}
