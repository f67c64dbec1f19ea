package model

import (
	"sync"

	"github.com/nrevox/growfleet/internal/crypto"
)

// LoginMethod selects how the login token is obtained during the preamble.
type LoginMethod uint8

const (
	// LoginLegacy runs the GET + POST form flow with growID and password.
	LoginLegacy LoginMethod = iota
	// LoginTokenFetcher delegates to an external callback.
	LoginTokenFetcher
	// LoginRefreshToken reuses a long-lived token without any form flow.
	LoginRefreshToken
)

// Credentials is the operator-supplied identity of one agent.
type Credentials struct {
	Method   LoginMethod
	GrowID   string
	Password string
	// Token seeds LoginRefreshToken and receives the fetched token for
	// the other methods.
	Token string
}

// Redirect is the sub-server hop payload delivered by OnSendToServer.
type Redirect struct {
	Address string
	Port    uint32
	Token   int32
	UserID  int32
	DoorID  string
	UUID    string
	AAT     int32
}

// LoginParams collects everything the handshake needs: the spoofed
// fingerprint, the token obtained during the preamble, and the redirect
// fields copied from the last OnSendToServer. One instance per agent,
// mutated from the worker goroutine and read by the control surface.
type LoginParams struct {
	mu sync.Mutex

	creds       Credentials
	fingerprint *crypto.Fingerprint
	redirect    Redirect
	redirecting bool
}

// NewLoginParams spoofs a fresh fingerprint for the given credentials.
func NewLoginParams(creds Credentials) (*LoginParams, error) {
	fp, err := crypto.NewFingerprint()
	if err != nil {
		return nil, err
	}
	return &LoginParams{creds: creds, fingerprint: fp}, nil
}

// Credentials returns the operator-supplied identity.
func (p *LoginParams) Credentials() Credentials {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.creds
}

// SetToken stores the token obtained by the preamble.
func (p *LoginParams) SetToken(token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.creds.Token = token
}

// Fingerprint returns the spoofed device identity.
func (p *LoginParams) Fingerprint() *crypto.Fingerprint {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fingerprint
}

// Respoof replaces the fingerprint, as on a full re-login.
func (p *LoginParams) Respoof() error {
	fp, err := crypto.NewFingerprint()
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fingerprint = fp
	return nil
}

// ApplyRedirect copies the hop fields and arms the redirecting flag, so
// the next ServerHello answers with the full credential set.
func (p *LoginParams) ApplyRedirect(r Redirect) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.redirect = r
	p.redirecting = true
}

// Redirect returns the stored hop fields and whether they are armed.
func (p *LoginParams) Redirect() (Redirect, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.redirect, p.redirecting
}

// ClearRedirect disarms the redirect after the hop completes or fails.
func (p *LoginParams) ClearRedirect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.redirect = Redirect{}
	p.redirecting = false
}
