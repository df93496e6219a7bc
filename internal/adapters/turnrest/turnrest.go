// Package turnrest mints short-lived TURN credentials in the coturn
// "use-auth-secret" format:
//
//	username   = <unix expiry>:<user>
//	credential = base64(hmac-sha1(secret, username))
package turnrest

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

type Credentials struct {
	Username   string
	Credential string
	Expires    time.Time
}

type Generator struct {
	secret []byte
	ttl    time.Duration
	urls   []string
	now    func() time.Time
}

func NewGenerator(secret string, ttl time.Duration, urls []string) (*Generator, error) {
	if secret == "" {
		return nil, errors.New("turn secret is required")
	}
	if ttl <= 0 {
		return nil, errors.New("turn ttl must be positive")
	}
	if len(urls) == 0 {
		return nil, errors.New("turn urls are required")
	}
	return &Generator{secret: []byte(secret), ttl: ttl, urls: urls, now: time.Now}, nil
}

// Generate signs credentials for user; an empty user gets a random one.
func (g *Generator) Generate(user string) (Credentials, error) {
	if user == "" {
		user = uuid.NewString()
	}
	if strings.Contains(user, ":") {
		return Credentials{}, fmt.Errorf("turn user %q must not contain ':'", user)
	}
	expires := g.now().UTC().Add(g.ttl).Truncate(time.Second)
	username := fmt.Sprintf("%d:%s", expires.Unix(), user)
	return Credentials{Username: username, Credential: sign(g.secret, username), Expires: expires}, nil
}

// ICEServer returns the configured TURN urls with fresh credentials.
func (g *Generator) ICEServer(user string) (webrtc.ICEServer, error) {
	creds, err := g.Generate(user)
	if err != nil {
		return webrtc.ICEServer{}, err
	}
	return webrtc.ICEServer{
		URLs:       append([]string(nil), g.urls...),
		Username:   creds.Username,
		Credential: creds.Credential,
	}, nil
}

func sign(secret []byte, username string) string {
	mac := hmac.New(sha1.New, secret)
	_, _ = mac.Write([]byte(username))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
