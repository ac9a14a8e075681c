package httpmiddleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig configures cross-origin request handling.
type CORSConfig struct {
	// AllowOrigins lists origins permitted to call the API. Empty, or a
	// single "*", allows every origin.
	AllowOrigins []string

	// AllowMethods is sent on preflight responses. Empty means
	// "GET, POST, PUT, PATCH, DELETE, OPTIONS".
	AllowMethods []string

	// AllowHeaders is sent on preflight responses. Empty echoes back
	// whatever headers the preflight asked for.
	AllowHeaders []string

	// ExposeHeaders lists response headers scripts may read.
	ExposeHeaders []string

	// AllowCredentials permits cookies and Authorization headers on
	// cross-origin requests. Incompatible with the wildcard origin, so
	// setting it forces exact origin matching.
	AllowCredentials bool

	// MaxAge is the preflight cache lifetime in seconds. Zero omits the
	// header; negative sends "0" to disable caching.
	MaxAge int
}

// cors holds the precomputed header values shared by all requests.
type cors struct {
	wildcard    bool
	origins     map[string]string // lowercased origin -> configured spelling
	methods     string
	headers     string
	expose      string
	credentials bool
	maxAge      string
}

// CORS returns a middleware implementing the CORS protocol: it answers
// preflight OPTIONS requests itself and decorates actual responses with the
// allow headers. Vary is always set so shared caches never serve one
// origin's response to another.
func CORS(cfg CORSConfig) Middleware {
	c := &cors{
		wildcard:    len(cfg.AllowOrigins) == 0,
		origins:     make(map[string]string, len(cfg.AllowOrigins)),
		methods:     strings.Join(cfg.AllowMethods, ", "),
		headers:     strings.Join(cfg.AllowHeaders, ", "),
		expose:      strings.Join(cfg.ExposeHeaders, ", "),
		credentials: cfg.AllowCredentials,
	}
	for _, o := range cfg.AllowOrigins {
		if o == "*" {
			c.wildcard = true
			continue
		}
		c.origins[strings.ToLower(o)] = o
	}
	// Wildcard + credentials is forbidden by the Fetch standard; echo
	// exact origins instead.
	if c.credentials {
		c.wildcard = false
	}
	if c.methods == "" {
		c.methods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	}
	switch {
	case cfg.MaxAge > 0:
		c.maxAge = strconv.Itoa(cfg.MaxAge)
	case cfg.MaxAge < 0:
		c.maxAge = "0"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				// Same-origin request; nothing to do beyond cache safety.
				if !c.wildcard {
					w.Header().Add("Vary", "Origin")
				}
				next.ServeHTTP(w, r)
				return
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				c.preflight(w, r, origin)
				return
			}

			c.actual(w, origin)
			next.ServeHTTP(w, r)
		})
	}
}

// preflight answers an OPTIONS probe without invoking the next handler.
// Disallowed origins still get 204, just without any allow headers.
func (c *cors) preflight(w http.ResponseWriter, r *http.Request, origin string) {
	h := w.Header()
	h.Add("Vary", "Origin")
	h.Add("Vary", "Access-Control-Request-Method")
	h.Add("Vary", "Access-Control-Request-Headers")

	allow := c.allowOrigin(origin)
	if allow == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.Set("Access-Control-Allow-Origin", allow)
	h.Set("Access-Control-Allow-Methods", c.methods)
	if c.headers != "" {
		h.Set("Access-Control-Allow-Headers", c.headers)
	} else if req := r.Header.Get("Access-Control-Request-Headers"); req != "" {
		h.Set("Access-Control-Allow-Headers", req)
	}
	if c.credentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
	if c.maxAge != "" {
		h.Set("Access-Control-Max-Age", c.maxAge)
	}
	w.WriteHeader(http.StatusNoContent)
}

// actual decorates a non-preflight cross-origin response.
func (c *cors) actual(w http.ResponseWriter, origin string) {
	h := w.Header()
	if !c.wildcard {
		h.Add("Vary", "Origin")
	}

	allow := c.allowOrigin(origin)
	if allow == "" {
		return
	}
	h.Set("Access-Control-Allow-Origin", allow)
	if c.credentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
	if c.expose != "" {
		h.Set("Access-Control-Expose-Headers", c.expose)
	}
}

// allowOrigin maps a request origin to the Access-Control-Allow-Origin
// value, or "" when the origin is not permitted. Matching is
// case-insensitive but the configured spelling is echoed back.
func (c *cors) allowOrigin(origin string) string {
	if c.wildcard {
		return "*"
	}
	return c.origins[strings.ToLower(origin)]
}
