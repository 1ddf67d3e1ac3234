package httpserver

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/Clark-Hu/comment-ratings/internal/ratings"
)

const (
	userIDHeader     = "X-User-Id"
	voteCookiePrefix = "vote-"
)

// ballotFrom derives the voter from the request. Authentication is upstream
// of this service: a non-empty X-User-Id header marks a signed-in user.
func (s *Server) ballotFrom(r *http.Request) ratings.Ballot {
	ip := clientIP(r)
	actor := ratings.Anonymous(ip)
	if uid := strings.TrimSpace(r.Header.Get(userIDHeader)); uid != "" {
		actor = ratings.Authenticated(uid, ip)
	}
	return ratings.Ballot{Actor: actor, Cookies: s.voteCookies(r)}
}

// clientIP returns the host part of RemoteAddr, which RealIP has already
// rewritten from X-Forwarded-For / X-Real-IP when present.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}

// voteCookies collects the vote cookies of the request. Cookies failing the
// signature check are dropped.
func (s *Server) voteCookies(r *http.Request) map[string]string {
	out := make(map[string]string)
	for _, c := range r.Cookies() {
		if !strings.HasPrefix(c.Name, voteCookiePrefix) || c.Value == "" {
			continue
		}
		value := c.Value
		if s.cookies != nil {
			var decoded string
			if err := s.cookies.Decode(c.Name, c.Value, &decoded); err != nil {
				continue
			}
			value = decoded
		}
		out[c.Name] = value
	}
	return out
}

// writeVoteCookie sets or clears the anonymous vote cookie.
func (s *Server) writeVoteCookie(w http.ResponseWriter, c *ratings.Cookie) {
	if c == nil {
		return
	}
	if c.Clear {
		http.SetCookie(w, &http.Cookie{
			Name:     c.Name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			Expires:  time.Unix(0, 0),
			HttpOnly: true,
		})
		return
	}

	value := c.Value
	if s.cookies != nil {
		encoded, err := s.cookies.Encode(c.Name, c.Value)
		if err != nil {
			s.logger.Printf("encode vote cookie %s: %v", c.Name, err)
			return
		}
		value = encoded
	}
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    value,
		Path:     "/",
		MaxAge:   s.cfg.CookieMaxAgeSecs,
		Expires:  time.Now().Add(time.Duration(s.cfg.CookieMaxAgeSecs) * time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
