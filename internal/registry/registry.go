package registry

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Davidcode-png/QuizBlitz/internal/domain"
)

const (
	// DefaultClaimTTL bounds how long a claim survives without a heartbeat
	// refresh, so a crashed process can never lock a game out permanently.
	DefaultClaimTTL = 2 * time.Minute
	// DefaultHeartbeatInterval is how often each claim pings its socket and
	// refreshes its TTL.
	DefaultHeartbeatInterval = 25 * time.Second

	connectRetries = 3
	opTimeout      = 5 * time.Second
)

// Options tune claim expiry and heartbeat cadence.
type Options struct {
	ClaimTTL          time.Duration
	HeartbeatInterval time.Duration
}

// Registry tracks live host and player sockets for each game. Local maps hold
// the socket handles owned by this process; Redis holds the expiring claim
// records (host:{pin} string, players:{pin} hash) that arbitrate ownership
// across processes.
type Registry struct {
	client    *redis.Client
	claimTTL  time.Duration
	heartbeat time.Duration

	mu      sync.Mutex
	hosts   map[string]Socket
	players map[string]map[string]Socket
	beats   map[string]context.CancelFunc
}

// New pings Redis with bounded retries and fails hard if it stays
// unreachable; the registry cannot arbitrate claims without it.
func New(ctx context.Context, client *redis.Client, opts Options) (*Registry, error) {
	if opts.ClaimTTL <= 0 {
		opts.ClaimTTL = DefaultClaimTTL
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = DefaultHeartbeatInterval
	}

	var err error
	for attempt := 1; attempt <= connectRetries; attempt++ {
		if err = client.Ping(ctx).Err(); err == nil {
			break
		}
		log.Printf("registry: redis ping attempt %d failed: %v", attempt, err)
		if attempt < connectRetries {
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if err != nil {
		return nil, err
	}

	return &Registry{
		client:    client,
		claimTTL:  opts.ClaimTTL,
		heartbeat: opts.HeartbeatInterval,
		hosts:     make(map[string]Socket),
		players:   make(map[string]map[string]Socket),
		beats:     make(map[string]context.CancelFunc),
	}, nil
}

func hostKey(pin string) string    { return "host:" + pin }
func playersKey(pin string) string { return "players:" + pin }

// heartbeat-task keys, one per claim
func hostBeat(pin string) string             { return "host:" + pin }
func playerBeat(pin, nickname string) string { return "player:" + pin + ":" + nickname }

// ClaimHost atomically claims the host seat for a game. The Redis SETNX is
// the cross-process arbiter; a live local socket short-circuits it. A claim
// left behind by our own dead socket is replaced rather than honored.
func (r *Registry) ClaimHost(ctx context.Context, pin string, s Socket) error {
	r.mu.Lock()
	cur, hadLocal := r.hosts[pin]
	r.mu.Unlock()
	if hadLocal && cur.Alive() {
		log.Printf("registry: host already connected for game %s", pin)
		return domain.ErrHostAlreadyConnected
	}

	ok, err := r.client.SetNX(ctx, hostKey(pin), "connected", r.claimTTL).Result()
	switch {
	case err != nil:
		// Store errors fail safe toward allowing the claim; a competing
		// entry would have expired via its TTL anyway.
		log.Printf("registry: host claim check for game %s failed: %v", pin, err)
	case !ok && hadLocal:
		// The unexpired claim belongs to our own dead socket; take it over.
		if err := r.client.Set(ctx, hostKey(pin), "connected", r.claimTTL).Err(); err != nil {
			log.Printf("registry: refreshing stale host claim for game %s failed: %v", pin, err)
		}
	case !ok:
		log.Printf("registry: host already connected for game %s", pin)
		return domain.ErrHostAlreadyConnected
	}

	r.mu.Lock()
	r.hosts[pin] = s
	r.stopBeatLocked(hostBeat(pin))
	r.startBeatLocked(hostBeat(pin), pin, true, "")
	r.mu.Unlock()

	log.Printf("registry: host registered for game %s", pin)
	return nil
}

// ClaimPlayer registers a player socket. Re-registration for a nickname is
// idempotent and supports reconnection: the socket handle is overwritten and
// the heartbeat restarted.
func (r *Registry) ClaimPlayer(ctx context.Context, pin, nickname string, s Socket) {
	r.mu.Lock()
	if r.players[pin] == nil {
		r.players[pin] = make(map[string]Socket)
	}
	r.players[pin][nickname] = s
	r.stopBeatLocked(playerBeat(pin, nickname))
	r.startBeatLocked(playerBeat(pin, nickname), pin, false, nickname)
	r.mu.Unlock()

	if err := r.client.HSet(ctx, playersKey(pin), nickname, "connected").Err(); err != nil {
		log.Printf("registry: storing player claim %s/%s failed: %v", pin, nickname, err)
	}
	if err := r.client.Expire(ctx, playersKey(pin), r.claimTTL).Err(); err != nil {
		log.Printf("registry: refreshing players ttl for game %s failed: %v", pin, err)
	}

	log.Printf("registry: player %s registered for game %s", nickname, pin)
}

// ReleaseHost drops the local host handle and deletes the shared claim.
// Redis deletion is asynchronous and best-effort; the claim TTL is the
// backstop if it fails.
func (r *Registry) ReleaseHost(pin string) {
	r.mu.Lock()
	r.stopBeatLocked(hostBeat(pin))
	delete(r.hosts, pin)
	r.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		if err := r.client.Del(ctx, hostKey(pin)).Err(); err != nil {
			log.Printf("registry: removing host claim for game %s failed: %v", pin, err)
		}
	}()
}

// ReleasePlayer drops a player's local handle and deletes the shared claim.
func (r *Registry) ReleasePlayer(pin, nickname string) {
	r.mu.Lock()
	r.stopBeatLocked(playerBeat(pin, nickname))
	if game, ok := r.players[pin]; ok {
		delete(game, nickname)
		if len(game) == 0 {
			delete(r.players, pin)
		}
	}
	r.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		if err := r.client.HDel(ctx, playersKey(pin), nickname).Err(); err != nil {
			log.Printf("registry: removing player claim %s/%s failed: %v", pin, nickname, err)
		}
	}()
}

// Host resolves the local host socket if it is still live. A dead handle is
// released lazily; broadcasting into dead sockets is what this guards against.
func (r *Registry) Host(pin string) Socket {
	r.mu.Lock()
	s, ok := r.hosts[pin]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	if s.Alive() {
		return s
	}
	r.ReleaseHost(pin)
	return nil
}

// Player resolves a player's local socket with the same lazy-cleanup-on-read
// behavior as Host.
func (r *Registry) Player(pin, nickname string) Socket {
	r.mu.Lock()
	var s Socket
	if game, ok := r.players[pin]; ok {
		s = game[nickname]
	}
	r.mu.Unlock()
	if s == nil {
		return nil
	}
	if s.Alive() {
		return s
	}
	r.ReleasePlayer(pin, nickname)
	return nil
}

// NicknameFor finds which player claim holds the given socket.
func (r *Registry) NicknameFor(pin string, s Socket) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for nickname, held := range r.players[pin] {
		if held == s {
			return nickname, true
		}
	}
	return "", false
}

// livePlayers snapshots the live player sockets for a game, releasing any
// dead handles it finds.
func (r *Registry) livePlayers(pin string) map[string]Socket {
	r.mu.Lock()
	snapshot := make(map[string]Socket, len(r.players[pin]))
	for nickname, s := range r.players[pin] {
		snapshot[nickname] = s
	}
	r.mu.Unlock()

	live := make(map[string]Socket, len(snapshot))
	for nickname, s := range snapshot {
		if s.Alive() {
			live[nickname] = s
		} else {
			r.ReleasePlayer(pin, nickname)
		}
	}
	return live
}

// ToHost sends one frame to the game's host, if connected.
func (r *Registry) ToHost(pin string, msg any) {
	s := r.Host(pin)
	if s == nil {
		log.Printf("registry: no active host connection for game %s", pin)
		return
	}
	if err := s.Send(msg); err != nil {
		log.Printf("registry: send to host of game %s failed: %v", pin, err)
		r.ReleaseHost(pin)
		_ = s.Close()
	}
}

// ToPlayers fans one frame out to every live player, optionally excluding one
// nickname. Dispatch is concurrent per recipient; a failing socket is
// released and never interrupts delivery to the others.
func (r *Registry) ToPlayers(pin string, msg any, exclude string) {
	var wg sync.WaitGroup
	for nickname, s := range r.livePlayers(pin) {
		if exclude != "" && nickname == exclude {
			continue
		}
		wg.Add(1)
		go func(nickname string, s Socket) {
			defer wg.Done()
			if err := s.Send(msg); err != nil {
				log.Printf("registry: send to player %s in game %s failed: %v", nickname, pin, err)
				r.ReleasePlayer(pin, nickname)
				_ = s.Close()
			}
		}(nickname, s)
	}
	wg.Wait()
}

// ToAll sends one frame to the host and every player of a game.
func (r *Registry) ToAll(pin string, msg any) {
	r.ToHost(pin, msg)
	r.ToPlayers(pin, msg, "")
}

// Roster lists every nickname with a claim for a game. It reads the shared
// hash, not local memory, so any process can answer regardless of where the
// sockets live. Store errors degrade to an empty roster.
func (r *Registry) Roster(ctx context.Context, pin string) []string {
	names, err := r.client.HKeys(ctx, playersKey(pin)).Result()
	if err != nil {
		log.Printf("registry: reading roster for game %s failed: %v", pin, err)
		return nil
	}
	return names
}

// HasClaims reports whether any local host or player handle remains for a
// game. The session runtime uses this as its eviction predicate.
func (r *Registry) HasClaims(pin string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, host := r.hosts[pin]
	return host || len(r.players[pin]) > 0
}

// CleanupGame releases every claim for a game at once, used at end of game.
func (r *Registry) CleanupGame(pin string) {
	r.mu.Lock()
	r.stopBeatLocked(hostBeat(pin))
	for nickname := range r.players[pin] {
		r.stopBeatLocked(playerBeat(pin, nickname))
	}
	delete(r.hosts, pin)
	delete(r.players, pin)
	r.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		if err := r.client.Del(ctx, hostKey(pin), playersKey(pin)).Err(); err != nil {
			log.Printf("registry: cleaning up game %s failed: %v", pin, err)
		}
	}()
	log.Printf("registry: cleaned up game %s", pin)
}

func (r *Registry) startBeatLocked(key, pin string, isHost bool, nickname string) {
	ctx, cancel := context.WithCancel(context.Background())
	r.beats[key] = cancel
	go r.beatLoop(ctx, pin, isHost, nickname)
}

func (r *Registry) stopBeatLocked(key string) {
	if cancel, ok := r.beats[key]; ok {
		cancel()
		delete(r.beats, key)
	}
}

// beatLoop pings the claim's socket and refreshes its TTL until cancelled.
// A failed ping is logged and retried on the next tick; the lazy liveness
// checks and the TTL handle actual cleanup.
func (r *Registry) beatLoop(ctx context.Context, pin string, isHost bool, nickname string) {
	ticker := time.NewTicker(r.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.mu.Lock()
			var s Socket
			if isHost {
				s = r.hosts[pin]
			} else {
				s = r.players[pin][nickname]
			}
			r.mu.Unlock()
			if s != nil {
				if err := s.Ping(); err != nil {
					log.Printf("registry: heartbeat ping for game %s failed: %v", pin, err)
				}
			}

			opCtx, cancel := context.WithTimeout(context.Background(), opTimeout)
			var err error
			if isHost {
				err = r.client.Expire(opCtx, hostKey(pin), r.claimTTL).Err()
			} else {
				err = r.client.Expire(opCtx, playersKey(pin), r.claimTTL).Err()
			}
			cancel()
			if err != nil {
				log.Printf("registry: heartbeat ttl refresh for game %s failed: %v", pin, err)
			}
		}
	}
}
