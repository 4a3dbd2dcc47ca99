package execssh

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gluk-w/miaoagent/internal/logutil"
	"github.com/gluk-w/miaoagent/internal/tunnelmodel"
)

// defaultKeepaliveInterval matches the teacher's sshmanager probe cadence.
const defaultKeepaliveInterval = 30 * time.Second

// Pool keeps one *Session per (host, port, user) alive across back-to-back
// backup runs against the same target, instead of redialing every time.
// A background loop sends a keepalive@openssh.com global request on each
// pooled client and evicts entries that no longer answer.
type Pool struct {
	mu       sync.Mutex
	sessions map[string]*Session

	stop chan struct{}
	done chan struct{}
}

func poolKey(host string, port uint16, username string) string {
	return fmt.Sprintf("%s@%s:%d", username, host, port)
}

// NewPool constructs a Pool and starts its keepalive loop.
func NewPool() *Pool {
	p := &Pool{
		sessions: make(map[string]*Session),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go p.keepaliveLoop()
	return p
}

// Get returns the pooled Session for (host, port, username), dialing a new
// one if none exists yet or the prior one was evicted.
func (p *Pool) Get(ctx context.Context, host string, port uint16, username string, auth tunnelmodel.Auth, connectTimeoutMs uint64) (*Session, error) {
	key := poolKey(host, port, username)

	p.mu.Lock()
	if sess, ok := p.sessions[key]; ok {
		p.mu.Unlock()
		return sess, nil
	}
	p.mu.Unlock()

	sess, err := Connect(ctx, host, port, username, auth, connectTimeoutMs)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	if existing, ok := p.sessions[key]; ok {
		// Lost a race with a concurrent Get for the same target; keep the
		// winner and discard this dial.
		p.mu.Unlock()
		sess.Disconnect()
		return existing, nil
	}
	p.sessions[key] = sess
	p.mu.Unlock()

	return sess, nil
}

// Evict closes and removes the pooled session for (host, port, username), if
// any.
func (p *Pool) Evict(host string, port uint16, username string) {
	key := poolKey(host, port, username)
	p.mu.Lock()
	sess, ok := p.sessions[key]
	delete(p.sessions, key)
	p.mu.Unlock()
	if ok {
		sess.Disconnect()
	}
}

// Close stops the keepalive loop and disconnects every pooled session.
func (p *Pool) Close() {
	close(p.stop)
	<-p.done

	p.mu.Lock()
	defer p.mu.Unlock()
	for key, sess := range p.sessions {
		sess.Disconnect()
		delete(p.sessions, key)
	}
}

func (p *Pool) keepaliveLoop() {
	defer close(p.done)
	ticker := time.NewTicker(defaultKeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.probeAll()
		}
	}
}

// probeAll sends keepalive@openssh.com on every pooled client, evicting ones
// that fail to answer.
func (p *Pool) probeAll() {
	p.mu.Lock()
	keys := make([]string, 0, len(p.sessions))
	for key := range p.sessions {
		keys = append(keys, key)
	}
	p.mu.Unlock()

	for _, key := range keys {
		p.mu.Lock()
		sess, ok := p.sessions[key]
		p.mu.Unlock()
		if !ok {
			continue
		}

		if _, _, err := sess.client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
			log.Printf("[execssh] keepalive failed for %s, evicting: %v", logutil.SanitizeForLog(key), err)
			p.mu.Lock()
			delete(p.sessions, key)
			p.mu.Unlock()
			sess.Disconnect()
		}
	}
}
