package game

import "encoding/json"

// PlayerView is one player's slice of a Snapshot.
type PlayerView struct {
	ID        uint32 `json:"id"`
	Position  Vec2   `json:"position"`
	Health    float32 `json:"health"`
	MaxHealth float32 `json:"max_health"`
}

// ProjectileView is one projectile's slice of a Snapshot.
type ProjectileView struct {
	ID       uint32 `json:"id"`
	Position Vec2   `json:"position"`
}

// Snapshot is the only ServerEvent variant the core emits: a complete
// description of the authoritative world after one tick.
type Snapshot struct {
	Tick        uint64           `json:"tick"`
	Players     []PlayerView     `json:"players"`
	Projectiles []ProjectileView `json:"projectiles"`
}

// Empty reports whether the snapshot has nothing to report, in which case
// the tick pipeline skips publication entirely (spec §4.4 step 4).
func (s Snapshot) Empty() bool {
	return len(s.Players) == 0 && len(s.Projectiles) == 0
}

// Encode serializes the snapshot as the {"Snapshot": {...}} tagged-union
// frame the wire protocol expects.
func (s Snapshot) Encode() (string, error) {
	envelope := struct {
		Snapshot Snapshot `json:"Snapshot"`
	}{Snapshot: s}
	data, err := json.Marshal(envelope)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
