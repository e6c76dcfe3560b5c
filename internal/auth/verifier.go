// Package auth resolves the tenant and role of a caller from a bearer token.
package auth

import (
	"crypto"
	"crypto/hmac"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"routesolver/internal/config"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpired      = errors.New("token expired")
)

// Auth modes.
const (
	ModeDev  = "dev"  // token is "tenant:role", nothing is verified
	ModeHMAC = "hmac" // HS256 JWT signed with the shared secret
	ModeJWKS = "jwks" // RS256 JWT signed by a key published at the JWKS URL
)

// Principal is the caller a request acts for. Solve records, subscriptions
// and deliveries are scoped to Tenant; admin endpoints need Role "admin".
type Principal struct {
	Tenant string
	Role   string
}

func (p Principal) IsAdmin() bool { return p.Role == "admin" }

// Verifier turns bearer tokens into principals.
type Verifier struct {
	mode        string
	secret      []byte
	keys        *keySet
	tenantClaim string
	roleClaim   string
	now         func() time.Time
}

func NewVerifier(cfg config.Auth) *Verifier {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = ModeDev
	}
	v := &Verifier{
		mode:        mode,
		secret:      []byte(cfg.HMACSecret),
		tenantClaim: cfg.TenantClaim,
		roleClaim:   cfg.RoleClaim,
		now:         time.Now,
	}
	if v.tenantClaim == "" {
		v.tenantClaim = "tenant"
	}
	if v.roleClaim == "" {
		v.roleClaim = "role"
	}
	if mode == ModeJWKS {
		v.keys = newKeySet(cfg.JWKSURL, &http.Client{Timeout: 5 * time.Second}, 10*time.Minute)
	}
	return v
}

// Mode reports the configured auth mode.
func (v *Verifier) Mode() string { return v.mode }

func (v *Verifier) Verify(raw string) (Principal, error) {
	if v.mode == ModeDev {
		tenant, role, ok := strings.Cut(raw, ":")
		if !ok || tenant == "" {
			return Principal{}, fmt.Errorf("%w: dev token must be tenant:role", ErrInvalidToken)
		}
		return Principal{Tenant: tenant, Role: strings.ToLower(role)}, nil
	}
	tok, err := parseToken(raw)
	if err != nil {
		return Principal{}, err
	}
	if err := v.checkSignature(tok); err != nil {
		return Principal{}, err
	}
	return v.principal(tok.claims)
}

func (v *Verifier) checkSignature(tok token) error {
	switch v.mode {
	case ModeHMAC:
		if tok.header.Alg != "HS256" {
			return fmt.Errorf("%w: alg %q in hmac mode", ErrInvalidToken, tok.header.Alg)
		}
		mac := hmac.New(sha256.New, v.secret)
		mac.Write(tok.signed)
		if !hmac.Equal(mac.Sum(nil), tok.sig) {
			return fmt.Errorf("%w: bad signature", ErrInvalidToken)
		}
		return nil
	case ModeJWKS:
		if tok.header.Alg != "RS256" {
			return fmt.Errorf("%w: alg %q in jwks mode", ErrInvalidToken, tok.header.Alg)
		}
		pub, err := v.keys.key(tok.header.Kid)
		if err != nil {
			return err
		}
		sum := sha256.Sum256(tok.signed)
		if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, sum[:], tok.sig); err != nil {
			return fmt.Errorf("%w: bad signature", ErrInvalidToken)
		}
		return nil
	}
	return fmt.Errorf("auth: unsupported mode %q", v.mode)
}

func (v *Verifier) principal(claims map[string]any) (Principal, error) {
	if exp, ok := claims["exp"].(json.Number); ok {
		if sec, err := exp.Int64(); err == nil && v.now().Unix() >= sec {
			return Principal{}, ErrExpired
		}
	}
	tenant, _ := claims[v.tenantClaim].(string)
	if tenant == "" {
		return Principal{}, fmt.Errorf("%w: missing %s claim", ErrInvalidToken, v.tenantClaim)
	}
	role, _ := claims[v.roleClaim].(string)
	if role == "" {
		role = "user"
	}
	return Principal{Tenant: tenant, Role: strings.ToLower(role)}, nil
}

type token struct {
	header struct {
		Alg string `json:"alg"`
		Kid string `json:"kid"`
	}
	claims map[string]any
	signed []byte
	sig    []byte
}

func parseToken(raw string) (token, error) {
	var tok token
	segs := strings.Split(raw, ".")
	if len(segs) != 3 {
		return tok, fmt.Errorf("%w: want 3 segments, got %d", ErrInvalidToken, len(segs))
	}
	var parts [3][]byte
	for i, s := range segs {
		b, err := base64.RawURLEncoding.DecodeString(s)
		if err != nil {
			return tok, fmt.Errorf("%w: segment %d: %v", ErrInvalidToken, i, err)
		}
		parts[i] = b
	}
	if err := json.Unmarshal(parts[0], &tok.header); err != nil {
		return tok, fmt.Errorf("%w: header: %v", ErrInvalidToken, err)
	}
	dec := json.NewDecoder(strings.NewReader(string(parts[1])))
	dec.UseNumber()
	if err := dec.Decode(&tok.claims); err != nil {
		return tok, fmt.Errorf("%w: claims: %v", ErrInvalidToken, err)
	}
	tok.signed = []byte(segs[0] + "." + segs[1])
	tok.sig = parts[2]
	return tok, nil
}

// keySet caches the RSA keys of a JWKS endpoint by kid.
type keySet struct {
	url    string
	client *http.Client
	ttl    time.Duration

	mu      sync.Mutex
	keys    map[string]*rsa.PublicKey
	fetched time.Time
}

func newKeySet(url string, client *http.Client, ttl time.Duration) *keySet {
	return &keySet{url: url, client: client, ttl: ttl}
}

// key returns the key for kid, refetching when the cache is stale or misses.
func (ks *keySet) key(kid string) (*rsa.PublicKey, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	if k, ok := ks.keys[kid]; ok && time.Since(ks.fetched) < ks.ttl {
		return k, nil
	}
	if err := ks.refresh(); err != nil {
		return nil, err
	}
	if k, ok := ks.keys[kid]; ok {
		return k, nil
	}
	return nil, fmt.Errorf("%w: kid %q not in JWKS", ErrInvalidToken, kid)
}

func (ks *keySet) refresh() error {
	if ks.url == "" {
		return errors.New("auth: AUTH_JWKS_URL not set")
	}
	resp, err := ks.client.Get(ks.url)
	if err != nil {
		return fmt.Errorf("auth: fetch jwks: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("auth: fetch jwks: http %d", resp.StatusCode)
	}
	var doc struct {
		Keys []struct {
			Kty string `json:"kty"`
			Kid string `json:"kid"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return fmt.Errorf("auth: decode jwks: %w", err)
	}
	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if !strings.EqualFold(k.Kty, "RSA") {
			continue
		}
		n, err1 := base64.RawURLEncoding.DecodeString(k.N)
		e, err2 := base64.RawURLEncoding.DecodeString(k.E)
		if err1 != nil || err2 != nil {
			continue
		}
		exp := new(big.Int).SetBytes(e)
		if !exp.IsInt64() || exp.Int64() > 1<<31-1 {
			continue
		}
		keys[k.Kid] = &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(exp.Int64())}
	}
	ks.keys = keys
	ks.fetched = time.Now()
	return nil
}
