package policy

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"net"
	"strings"

	"github.com/aezizhu/tinyweb/internal/datastore"
)

// PasswordSuffix is appended to a hierarchy node to name its protection value.
const PasswordSuffix = "/_Password_"

// AnyUser in a stored credential accepts every username.
const AnyUser = "*"

// DataStore answers named value queries.
type DataStore interface {
	Lookup(name string) (datastore.Value, bool)
}

type Verdict int

const (
	Allow Verdict = iota
	Challenge
	Deny
)

func (v Verdict) String() string {
	switch v {
	case Allow:
		return "allow"
	case Challenge:
		return "challenge"
	default:
		return "deny"
	}
}

type Decision struct {
	Verdict Verdict
	// User is set when a stored credential matched.
	User string
}

type Engine struct {
	store         DataStore
	remoteEnabled bool
}

func New(store DataStore, remoteEnabled bool) *Engine {
	return &Engine{store: store, remoteEnabled: remoteEnabled}
}

// Authorize decides whether a request may proceed. translatedPath is the
// hierarchy path the request is about; logicalPath is the resource path.
func (e *Engine) Authorize(remoteAddr, translatedPath, logicalPath, authorization string) Decision {
	if IsLoopback(remoteAddr) {
		return Decision{Verdict: Allow}
	}
	if !strings.Contains(strings.Trim(logicalPath, "/"), "/") {
		return Decision{Verdict: Allow}
	}

	var creds []string
	user, hash, haveCreds := "", "", false
	if u, pw, ok := ParseBasic(authorization); ok {
		user, hash, haveCreds = u, md5Hex(pw), true
		creds = []string{user + ":" + hash, AnyUser + ":" + hash}
	}

	sawPassword := false
	node := strings.TrimRight(translatedPath, "/")
walk:
	for {
		if e.store != nil {
			if v, ok := e.store.Lookup(node + PasswordSuffix); ok {
				switch {
				case v.IsText:
					sawPassword = true
					if haveCreds && matches(v.Text, creds) {
						return Decision{Verdict: Allow, User: user}
					}
				case v.Number == 0:
					break walk
				default:
					return Decision{Verdict: Deny}
				}
			}
		}
		if node == "" {
			break
		}
		node = parent(node)
	}

	switch {
	case sawPassword:
		return Decision{Verdict: Challenge}
	case !e.remoteEnabled:
		return Decision{Verdict: Deny}
	default:
		return Decision{Verdict: Allow}
	}
}

func parent(node string) string {
	if i := strings.LastIndex(node, "/"); i > 0 {
		return node[:i]
	}
	return ""
}

func matches(stored string, creds []string) bool {
	stored = strings.TrimSpace(stored)
	for _, c := range creds {
		if strings.EqualFold(stored, c) {
			return true
		}
	}
	return false
}

// Credential builds the stored form of a password for user. Pass AnyUser to
// accept every username.
func Credential(user, password string) string {
	return user + ":" + md5Hex(password)
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// ParseBasic decodes an HTTP Basic Authorization header value.
func ParseBasic(header string) (user, password string, ok bool) {
	const prefix = "basic "
	header = strings.TrimSpace(header)
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", "", false
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(header[len(prefix):]))
	if err != nil {
		return "", "", false
	}
	user, password, ok = strings.Cut(string(raw), ":")
	return user, password, ok
}

// IsLoopback accepts "host:port", a bare IP, or the "internal" address used by
// in-process requests.
func IsLoopback(addr string) bool {
	if addr == "internal" {
		return true
	}
	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}
	ip := net.ParseIP(strings.Trim(host, "[]"))
	return ip != nil && ip.IsLoopback()
}
