package transfer

import (
	"context"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
)

// Session is the time-limited storage credential set scoped to one
// bucket/prefix. It must be renewed before Expiry; operations attempted
// after expiry fail with an auth error that triggers renewal upstream.
type Session struct {
	Bucket          string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Expiry          time.Time
}

// ExpiresWithin reports whether the session expires before now+d.
func (s Session) ExpiresWithin(now time.Time, d time.Duration) bool {
	return !s.Expiry.IsZero() && s.Expiry.Before(now.Add(d))
}

// sessionProvider adapts a Session to the SDK's credentials provider.
// Renewal swaps the whole value under the lock; in-flight transfers
// keep the credentials they already retrieved.
type sessionProvider struct {
	mu   sync.RWMutex
	sess Session
}

func (p *sessionProvider) Retrieve(ctx context.Context) (aws.Credentials, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return aws.Credentials{
		AccessKeyID:     p.sess.AccessKeyID,
		SecretAccessKey: p.sess.SecretAccessKey,
		SessionToken:    p.sess.SessionToken,
		CanExpire:       !p.sess.Expiry.IsZero(),
		Expires:         p.sess.Expiry,
		Source:          "coldstash-upload-session",
	}, nil
}

func (p *sessionProvider) swap(sess Session) {
	p.mu.Lock()
	p.sess = sess
	p.mu.Unlock()
}

func (p *sessionProvider) current() Session {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sess
}
