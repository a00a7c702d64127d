//go:build cgo

package sound

import (
	"fmt"
	"log/slog"

	"github.com/gordonklaus/portaudio"

	c "lautenbacher.net/gogate/config"
)

// PortAudioPlayer plays effects on the default output device.
type PortAudioPlayer struct {
	mixer  *mixer
	stream *portaudio.Stream
}

// NewPlayer opens the default output device. Sound disabled in cfg
// yields a Silent player.
func NewPlayer(cfg c.SoundConfig) (Player, error) {
	if !cfg.Enabled {
		return Silent{}, nil
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	m := newMixer(cfg.SampleRate, cfg.Volume)
	stream, err := portaudio.OpenDefaultStream(0, 1, cfg.SampleRate, cfg.FramesPerBuffer, m.fill)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to start output stream: %w", err)
	}
	slog.Info("Sound output started", "sampleRate", cfg.SampleRate, "framesPerBuffer", cfg.FramesPerBuffer)
	return &PortAudioPlayer{mixer: m, stream: stream}, nil
}

func (p *PortAudioPlayer) Play(e Effect) {
	slog.Debug("Playing sound effect", "effect", e)
	p.mixer.add(e)
}

func (p *PortAudioPlayer) Close() error {
	var firstErr error
	if err := p.stream.Stop(); err != nil {
		firstErr = err
	}
	if err := p.stream.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := portaudio.Terminate(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
