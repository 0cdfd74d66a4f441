package game

import "sync/atomic"

// Tuning constants from spec §3-4.
const (
	SpawnX        float32 = 400
	SpawnY        float32 = 300
	DefaultHealth float32 = 100

	MoveSpeed         float32 = 5
	ProjectileSpawnOffset float32 = 20
	ProjectileSpeed   float32 = 10
	ProjectileLifetime uint32 = 60
	HitRadius         float32 = 20
	HitDamage         float32 = 10
)

// entity is a generational index: Index names a slot in a dense component
// array, Generation is bumped every time the slot is freed so a handle
// retained past a despawn is detectably stale. Nothing outside World ever
// holds an entity handle (spec §3's ownership rule). World itself never
// compares generations: projectiles record their owner by player id, not
// by slot handle.
type entity struct {
	index      uint32
	generation uint32
}

type playerSlot struct {
	alive      bool
	generation uint32
	playerID   uint32
	position   Vec2
	health     float32
	maxHealth  float32
}

type projectileSlot struct {
	alive          bool
	generation     uint32
	id             uint32
	position       Vec2
	velocity       Vec2
	ownerID        uint32
	ticksRemaining uint32
}

// World is the authoritative entity/component store plus the fixed-rate
// tick pipeline. Every method on World must be called from the single
// simulation goroutine; World performs no internal locking (spec §5: the
// simulation has exclusive write access to the world, full stop).
type World struct {
	players  []playerSlot
	freeList []uint32 // indices of despawned player slots, free for reuse

	projectiles     []projectileSlot
	projFreeList    []uint32
	nextProjectile  uint32

	tick uint64
}

// NewWorld returns an empty world ready to run ticks.
func NewWorld() *World {
	return &World{}
}

// Tick is the running tick counter, incremented once per Step call.
func (w *World) Tick() uint64 {
	return w.tick
}

func (w *World) allocPlayer() uint32 {
	if n := len(w.freeList); n > 0 {
		idx := w.freeList[n-1]
		w.freeList = w.freeList[:n-1]
		return idx
	}
	w.players = append(w.players, playerSlot{})
	return uint32(len(w.players) - 1)
}

func (w *World) allocProjectile() uint32 {
	if n := len(w.projFreeList); n > 0 {
		idx := w.projFreeList[n-1]
		w.projFreeList = w.projFreeList[:n-1]
		return idx
	}
	w.projectiles = append(w.projectiles, projectileSlot{})
	return uint32(len(w.projectiles) - 1)
}

// spawnPlayer creates a Player entity for the given connection id at the
// fixed spawn position with full health (spec §3). No-op safeguard against
// double-join is the caller's responsibility via the Command Bus contract;
// World itself always spawns on Join.
func (w *World) spawnPlayer(playerID uint32) entity {
	idx := w.allocPlayer()
	gen := w.players[idx].generation
	w.players[idx] = playerSlot{
		alive:      true,
		generation: gen,
		playerID:   playerID,
		position:   Vec2{X: SpawnX, Y: SpawnY},
		health:     DefaultHealth,
		maxHealth:  DefaultHealth,
	}
	return entity{index: idx, generation: gen}
}

// findPlayer returns the slot index for the given player id, or false if no
// such player exists (already left, or never joined).
func (w *World) findPlayer(playerID uint32) (int, bool) {
	for i := range w.players {
		if w.players[i].alive && w.players[i].playerID == playerID {
			return i, true
		}
	}
	return 0, false
}

// despawnPlayer destroys the player entity with the given id. No-op if none
// exists (spec §4.4: Leave is a no-op if the player is already gone).
func (w *World) despawnPlayer(playerID uint32) {
	idx, ok := w.findPlayer(playerID)
	if !ok {
		return
	}
	w.players[idx].alive = false
	w.players[idx].generation++
	w.freeList = append(w.freeList, uint32(idx))
}

// spawnProjectile creates a projectile cast by caster from position origin
// toward target, per spec §3's spawn rule. Returns false if target equals
// origin (zero direction) and no projectile is spawned.
func (w *World) spawnProjectile(ownerID uint32, origin, target Vec2) bool {
	dir := target.Sub(origin).Normalized()
	if dir.IsZero() {
		return false
	}

	idx := w.allocProjectile()
	gen := w.projectiles[idx].generation
	id := atomic.AddUint32(&w.nextProjectile, 1)
	w.projectiles[idx] = projectileSlot{
		alive:          true,
		generation:     gen,
		id:             id,
		position:       origin.Add(dir.Scale(ProjectileSpawnOffset)),
		velocity:       dir.Scale(ProjectileSpeed),
		ownerID:        ownerID,
		ticksRemaining: ProjectileLifetime,
	}
	return true
}

func (w *World) despawnProjectileAt(idx int) {
	w.projectiles[idx].alive = false
	w.projectiles[idx].generation++
	w.projFreeList = append(w.projFreeList, uint32(idx))
}

// ApplyPackets runs phase 1 of the tick pipeline: draining the Command Bus
// and applying every packet in the order given (spec §4.4 step 1).
func (w *World) ApplyPackets(packets []GamePacket) {
	for _, p := range packets {
		switch p.Kind {
		case PacketJoin:
			w.spawnPlayer(p.ConnID)

		case PacketLeave:
			w.despawnPlayer(p.ConnID)

		case PacketCommand:
			w.applyCommand(p.ConnID, p.Command)
		}
	}
}

func (w *World) applyCommand(playerID uint32, cmd ClientCommand) {
	switch c := cmd.(type) {
	case MoveCommand:
		idx, ok := w.findPlayer(playerID)
		if !ok {
			return
		}
		w.players[idx].position = w.players[idx].position.Add(c.Dir.Scale(MoveSpeed))

	case CastSpellCommand:
		idx, ok := w.findPlayer(playerID)
		if !ok {
			return
		}
		w.spawnProjectile(playerID, w.players[idx].position, c.Target)

	default:
		// Join/Chat and anything else: ignored by the simulation.
	}
}

// AdvanceProjectiles runs phase 2: move every projectile and expire those
// that have run out their fuse (spec §4.4 step 2).
func (w *World) AdvanceProjectiles() {
	for i := range w.projectiles {
		if !w.projectiles[i].alive {
			continue
		}
		w.projectiles[i].position = w.projectiles[i].position.Add(w.projectiles[i].velocity)
		w.projectiles[i].ticksRemaining--
		if w.projectiles[i].ticksRemaining == 0 {
			w.despawnProjectileAt(i)
		}
	}
}

// ResolveCollisions runs phase 3: the nested projectile/player scan, applying
// damage and respawn exactly as spec §4.4 step 3 describes.
func (w *World) ResolveCollisions() {
	for pi := range w.projectiles {
		if !w.projectiles[pi].alive {
			continue
		}
		for qi := range w.players {
			if !w.players[qi].alive {
				continue
			}
			if w.players[qi].playerID == w.projectiles[pi].ownerID {
				continue // spec P3: no self-hit
			}
			if Distance(w.projectiles[pi].position, w.players[qi].position) >= HitRadius {
				continue
			}

			w.players[qi].health -= HitDamage
			w.despawnProjectileAt(pi)
			if w.players[qi].health <= 0 {
				w.players[qi].health = w.players[qi].maxHealth
			}
			break // at most one victim per projectile, and it's gone now
		}
	}
}

// BuildSnapshot runs phase 4's serialization step, returning the current
// world state. The caller (Server) decides whether an Empty snapshot should
// be published.
func (w *World) BuildSnapshot() Snapshot {
	players := make([]PlayerView, 0, len(w.players))
	for i := range w.players {
		if !w.players[i].alive {
			continue
		}
		players = append(players, PlayerView{
			ID:        w.players[i].playerID,
			Position:  w.players[i].position,
			Health:    w.players[i].health,
			MaxHealth: w.players[i].maxHealth,
		})
	}

	projectiles := make([]ProjectileView, 0, len(w.projectiles))
	for i := range w.projectiles {
		if !w.projectiles[i].alive {
			continue
		}
		projectiles = append(projectiles, ProjectileView{
			ID:       w.projectiles[i].id,
			Position: w.projectiles[i].position,
		})
	}

	return Snapshot{Tick: w.tick, Players: players, Projectiles: projectiles}
}

// Step runs the four tick-pipeline phases in order and returns the resulting
// snapshot along with whether it should be published (spec §4.4).
func (w *World) Step(packets []GamePacket) (snap Snapshot, publish bool) {
	w.tick++
	w.ApplyPackets(packets)
	w.AdvanceProjectiles()
	w.ResolveCollisions()
	snap = w.BuildSnapshot()
	return snap, !snap.Empty()
}

// PlayerCount reports how many player entities currently exist. Exposed for
// tests and telemetry only.
func (w *World) PlayerCount() int {
	n := 0
	for i := range w.players {
		if w.players[i].alive {
			n++
		}
	}
	return n
}

// HasPlayer reports whether a player entity with the given id currently
// exists. Exposed for tests only.
func (w *World) HasPlayer(playerID uint32) bool {
	_, ok := w.findPlayer(playerID)
	return ok
}

// PlayerHealth returns the health of the player with the given id and
// whether it exists. Exposed for tests only.
func (w *World) PlayerHealth(playerID uint32) (float32, bool) {
	idx, ok := w.findPlayer(playerID)
	if !ok {
		return 0, false
	}
	return w.players[idx].health, true
}

// PlayerPosition returns the position of the player with the given id and
// whether it exists. Exposed for tests only.
func (w *World) PlayerPosition(playerID uint32) (Vec2, bool) {
	idx, ok := w.findPlayer(playerID)
	if !ok {
		return Vec2{}, false
	}
	return w.players[idx].position, true
}

// ProjectileCount reports how many projectile entities currently exist.
// Exposed for tests only.
func (w *World) ProjectileCount() int {
	n := 0
	for i := range w.projectiles {
		if w.projectiles[i].alive {
			n++
		}
	}
	return n
}
