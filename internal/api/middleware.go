package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/session"
	"storefront/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	claimsKey  = "auth_claims"
	sessionKey = "session"
)

// Roles carried in access tokens
const (
	RoleCustomer = "customer"
	RoleStaff    = "staff"
)

// Claims is the access token payload. Subject is the customer id.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator validates bearer tokens issued by the account service
type Authenticator struct {
	secret []byte
}

// NewAuthenticator creates an authenticator for HS256 tokens signed with secret
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// GenerateToken signs a token for subject valid for ttl
func (a *Authenticator) GenerateToken(subject, email, role string, ttl time.Duration) (string, error) {
	claims := &Claims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "storefront",
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(a.secret)
}

func (a *Authenticator) parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, apperr.New(apperr.ErrUnauthorized, "Invalid or expired token")
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || claims.Subject == "" {
		return nil, apperr.New(apperr.ErrUnauthorized, "Invalid token claims")
	}
	return claims, nil
}

// Authenticate attaches claims when a bearer token is present. Anonymous requests
// pass through; a malformed or invalid token is rejected.
func (a *Authenticator) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.Next()
			return
		}

		parts := strings.Fields(auth)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			abortWithError(c, apperr.New(apperr.ErrUnauthorized, "Invalid authorization header"))
			return
		}

		claims, err := a.parse(parts[1])
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// RequireCustomer rejects anonymous requests
func RequireCustomer() gin.HandlerFunc {
	return func(c *gin.Context) {
		if getClaims(c) == nil {
			abortWithError(c, apperr.New(apperr.ErrUnauthorized, "Please sign in to continue"))
			return
		}
		c.Next()
	}
}

// RequireStaff rejects requests without the staff role
func RequireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := getClaims(c)
		if claims == nil {
			abortWithError(c, apperr.New(apperr.ErrUnauthorized, "Please sign in to continue"))
			return
		}
		if claims.Role != RoleStaff {
			abortWithError(c, apperr.New(apperr.ErrForbidden, "Staff role required"))
			return
		}
		c.Next()
	}
}

func getClaims(c *gin.Context) *Claims {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*Claims)
	return claims
}

// SessionConfig controls the session cookie
type SessionConfig struct {
	CookieName string
	Secure     bool
	TTL        time.Duration
}

var sessionSaveFailedBody = []byte(`{"error":"Something went wrong, please try again"}`)

// sessionWriter saves the session right before the response header goes out, so
// the cookie can still be issued and a failed save can still become an error.
type sessionWriter struct {
	gin.ResponseWriter
	commit func() error
	done   bool
	failed bool
}

func (w *sessionWriter) flush() {
	if w.done {
		return
	}
	w.done = true
	if err := w.commit(); err != nil && !w.ResponseWriter.Written() {
		w.failed = true
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.ResponseWriter.WriteHeader(http.StatusInternalServerError)
		_, _ = w.ResponseWriter.Write(sessionSaveFailedBody)
	}
}

func (w *sessionWriter) WriteHeaderNow() {
	w.flush()
	if !w.failed {
		w.ResponseWriter.WriteHeaderNow()
	}
}

func (w *sessionWriter) Write(data []byte) (int, error) {
	w.flush()
	if w.failed {
		return len(data), nil
	}
	return w.ResponseWriter.Write(data)
}

func (w *sessionWriter) WriteString(s string) (int, error) {
	w.flush()
	if w.failed {
		return len(s), nil
	}
	return w.ResponseWriter.WriteString(s)
}

// SessionMiddleware loads the visitor session and saves it exactly once per request,
// including when a handler aborts or panics. The cookie is only issued once a new
// session has something to persist; a failed save turns into a 500.
func SessionMiddleware(store *session.Store, cfg SessionConfig) gin.HandlerFunc {
	logger := util.GetLogger()

	return func(c *gin.Context) {
		id, _ := c.Cookie(cfg.CookieName)

		sess, err := store.Load(c.Request.Context(), id)
		if err != nil {
			logger.Error("Failed to load session", zap.String("session_id", id), zap.Error(err))
			abortWithError(c, err)
			return
		}
		c.Set(sessionKey, sess)

		w := &sessionWriter{ResponseWriter: c.Writer}
		w.commit = func() error {
			issue := sess.IsNew() && sess.Dirty()

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := store.Save(ctx, sess); err != nil {
				util.SessionSaveFailuresTotal.Inc()
				logger.Error("Failed to save session", zap.String("session_id", sess.ID()), zap.Error(err))
				return err
			}

			if issue {
				http.SetCookie(w, &http.Cookie{
					Name:     cfg.CookieName,
					Value:    sess.ID(),
					Path:     "/",
					MaxAge:   int(cfg.TTL.Seconds()),
					Secure:   cfg.Secure,
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
				})
			}
			return nil
		}

		c.Writer = w
		defer func() {
			w.flush()
			c.Writer = w.ResponseWriter
		}()

		c.Next()
	}
}

func getSession(c *gin.Context) *session.Session {
	v, ok := c.Get(sessionKey)
	if !ok {
		return session.New()
	}
	return v.(*session.Session)
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
