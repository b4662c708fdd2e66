package ekamcp

import (
	"crypto/subtle"
	"sync"
)

// Authenticator checks inbound bearer tokens on the http transport. An empty
// user set means the transport is open; callers gate on HasUsers first.
type Authenticator struct {
	mu          sync.RWMutex
	tokenToUser map[string]string
}

func NewAuthenticator(users []User) *Authenticator {
	a := &Authenticator{
		tokenToUser: make(map[string]string, len(users)),
	}
	a.Update(users)
	return a
}

// Update replaces the whole user set.
func (a *Authenticator) Update(users []User) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tokenToUser = make(map[string]string, len(users))
	for _, user := range users {
		a.tokenToUser[user.Token] = user.Name
	}
}

func (a *Authenticator) HasUsers() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.tokenToUser) > 0
}

// Authenticate resolves a bearer token to a user name. Tokens are compared in
// constant time so response timing leaks nothing about near-miss values.
func (a *Authenticator) Authenticate(token string) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for candidate, name := range a.tokenToUser {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(token)) == 1 {
			return name, true
		}
	}
	return "", false
}
