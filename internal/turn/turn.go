// Package turn issues and revokes short-lived TURN credentials for Peers,
// using coturn's HMAC-SHA1 REST API static-auth-secret scheme.
package turn

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"

	"medea/internal/id"
)

// IceUser is a TURN credential bound 1:1 with a Peer. Released to the
// issuing TurnAuthService when the Peer is removed.
type IceUser struct {
	PeerID   id.PeerID
	Username string
	Password string
	TTL      time.Duration
}

// UnreachablePolicy controls how a TurnAuthService implementation behaves
// when the TURN server cannot be reached while provisioning a credential.
type UnreachablePolicy int

const (
	// UnreachablePolicyReturnErr surfaces the failure to the caller.
	UnreachablePolicyReturnErr UnreachablePolicy = iota
	// UnreachablePolicyReturnStatic issues a credential without
	// confirming server reachability (not used by the signalling core
	// today, but kept so a deployment that fronts coturn with a health
	// check can opt out of the initial reachability probe).
	UnreachablePolicyReturnStatic
)

// Service is the abstraction the signalling core depends on for credential
// lifecycle; PeerRepository and the Room both hold one of these.
type Service interface {
	Create(ctx context.Context, peerID id.PeerID, roomID id.RoomID, policy UnreachablePolicy) (*IceUser, error)
	Delete(ctx context.Context, users ...*IceUser) error
}

// HMACService implements Service against a coturn deployment configured
// with `use-auth-secret`.
type HMACService struct {
	host   string
	port   int
	secret string
	ttl    time.Duration
}

func NewHMACService(host string, port int, secret string, ttl time.Duration) *HMACService {
	return &HMACService{host: host, port: port, secret: secret, ttl: ttl}
}

// Create mints a time-boxed username/password pair per the coturn REST API
// scheme: username is "<expiry-unix>:<peer-scoped-id>", password is the
// base64 HMAC-SHA1 of the username under the shared secret.
func (s *HMACService) Create(ctx context.Context, peerID id.PeerID, roomID id.RoomID, policy UnreachablePolicy) (*IceUser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	expiry := time.Now().Add(s.ttl).Unix()
	username := fmt.Sprintf("%d:%s-%s-%s", expiry, roomID, peerID, uuid.NewString())

	mac := hmac.New(sha1.New, []byte(s.secret))
	mac.Write([]byte(username))
	password := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return &IceUser{
		PeerID:   peerID,
		Username: username,
		Password: password,
		TTL:      s.ttl,
	}, nil
}

// Delete is a no-op for the HMAC REST API scheme: credentials are
// self-expiring and coturn never stores them server-side. It exists so
// that implementations backed by a credential database (or an admin API
// that can kick active allocations) have somewhere to plug in.
func (s *HMACService) Delete(ctx context.Context, users ...*IceUser) error {
	return nil
}

// ICEServerInfo is the wire shape advertised to clients in PeerCreated
// events so the browser's RTCPeerConnection can reach the TURN relay.
type ICEServerInfo struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

func (s *HMACService) BuildICEServers(user *IceUser) []ICEServerInfo {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	return []ICEServerInfo{
		{
			URLs:       []string{"stun:" + addr},
		},
		{
			URLs:       []string{"turn:" + addr + "?transport=udp", "turn:" + addr + "?transport=tcp"},
			Username:   user.Username,
			Credential: user.Password,
		},
	}
}
