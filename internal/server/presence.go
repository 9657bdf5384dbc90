package server

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/npezzotti/duochat/internal/types"
)

// LastSeenStore persists presence transitions outside the process.
type LastSeenStore interface {
	UpdatePresence(ctx context.Context, userId string, online bool, lastSeen time.Time) error
}

type userPresence struct {
	mu       sync.Mutex
	count    int
	lastSeen time.Time
	// seq increases on every online/offline transition
	seq uint64

	// writeMu serializes store writes for the user
	writeMu sync.Mutex
}

// PresenceRegistry counts the live connections of every user. A user is
// online while the count is above zero. Entries are created on first connect
// and kept for the lifetime of the process.
type PresenceRegistry struct {
	log          *log.Logger
	store        LastSeenStore
	writeTimeout time.Duration

	mu    sync.RWMutex
	users map[string]*userPresence
	// conns maps connection id to user id
	conns map[string]string

	online atomic.Int64
	writes sync.WaitGroup
	now    func() time.Time
}

func NewPresenceRegistry(logger *log.Logger, store LastSeenStore, writeTimeout time.Duration) *PresenceRegistry {
	return &PresenceRegistry{
		log:          logger,
		store:        store,
		writeTimeout: writeTimeout,
		users:        make(map[string]*userPresence),
		conns:        make(map[string]string),
		now:          Now,
	}
}

// Register counts connId as a live connection of userId and reports whether
// the user went from offline to online. Registering the same connection twice
// has no effect.
func (pr *PresenceRegistry) Register(connId, userId string) bool {
	pr.mu.Lock()
	if _, ok := pr.conns[connId]; ok {
		pr.mu.Unlock()
		return false
	}
	pr.conns[connId] = userId
	up, ok := pr.users[userId]
	if !ok {
		up = &userPresence{}
		pr.users[userId] = up
	}
	pr.mu.Unlock()

	up.mu.Lock()
	up.count++
	if up.count != 1 {
		up.mu.Unlock()
		return false
	}
	up.lastSeen = pr.now()
	up.seq++
	seq, lastSeen := up.seq, up.lastSeen
	up.mu.Unlock()

	pr.online.Add(1)
	pr.persist(userId, up, seq, true, lastSeen)
	return true
}

// Deregister removes connId and reports the user it belonged to and whether
// that user went offline. Unknown or already removed connections return
// false.
func (pr *PresenceRegistry) Deregister(connId string) (string, bool) {
	pr.mu.Lock()
	userId, ok := pr.conns[connId]
	if !ok {
		pr.mu.Unlock()
		return "", false
	}
	delete(pr.conns, connId)
	up := pr.users[userId]
	pr.mu.Unlock()

	up.mu.Lock()
	up.count--
	if up.count != 0 {
		up.mu.Unlock()
		return userId, false
	}
	up.lastSeen = pr.now()
	up.seq++
	seq, lastSeen := up.seq, up.lastSeen
	up.mu.Unlock()

	pr.online.Add(-1)
	pr.persist(userId, up, seq, false, lastSeen)
	return userId, true
}

// Status returns the presence of userId. Users never seen by this process
// are reported offline with a zero last-seen time.
func (pr *PresenceRegistry) Status(userId string) types.Presence {
	pr.mu.RLock()
	up, ok := pr.users[userId]
	pr.mu.RUnlock()

	p := types.Presence{UserId: userId}
	if !ok {
		return p
	}

	up.mu.Lock()
	defer up.mu.Unlock()
	p.Connections = up.count
	p.Online = up.count > 0
	p.LastSeen = up.lastSeen

	return p
}

// Known reports whether userId has connected since the process started.
func (pr *PresenceRegistry) Known(userId string) bool {
	pr.mu.RLock()
	defer pr.mu.RUnlock()
	_, ok := pr.users[userId]
	return ok
}

func (pr *PresenceRegistry) OnlineCount() int {
	return int(pr.online.Load())
}

// persist writes the transition to the store in the background. A write
// that has been superseded by a newer transition is skipped.
func (pr *PresenceRegistry) persist(userId string, up *userPresence, seq uint64, online bool, lastSeen time.Time) {
	if pr.store == nil {
		return
	}

	pr.writes.Add(1)
	go func() {
		defer pr.writes.Done()

		up.writeMu.Lock()
		defer up.writeMu.Unlock()

		up.mu.Lock()
		latest := up.seq
		up.mu.Unlock()
		if seq != latest {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), pr.writeTimeout)
		defer cancel()

		if err := pr.store.UpdatePresence(ctx, userId, online, lastSeen); err != nil {
			pr.log.Printf("update presence for %q: %v", userId, err)
		}
	}()
}

// Flush waits for pending store writes or until ctx is done.
func (pr *PresenceRegistry) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		pr.writes.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
