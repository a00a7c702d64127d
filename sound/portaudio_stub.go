//go:build !cgo

package sound

import (
	"log/slog"

	c "lautenbacher.net/gogate/config"
)

// NewPlayer returns a Silent player; audio output requires cgo.
func NewPlayer(cfg c.SoundConfig) (Player, error) {
	if cfg.Enabled {
		slog.Warn("Sound is disabled in this build (requires CGO)")
	}
	return Silent{}, nil
}
