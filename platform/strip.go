package platform

import (
	c "lautenbacher.net/gogate/config"
	"lautenbacher.net/gogate/lights"
)

// mapToStrip places the channel colours on the strip. LEDs shared by
// several channels take the per component maximum. Without a mapping
// channel i drives LED i.
func mapToStrip(channels []lights.Led, mapping [][]int, stripLen int) []lights.Led {
	if len(mapping) == 0 {
		strip := make([]lights.Led, max(stripLen, len(channels)))
		copy(strip, channels)
		return strip
	}
	strip := make([]lights.Led, stripLen)
	for ch, indices := range mapping {
		if ch >= len(channels) {
			break
		}
		for _, idx := range indices {
			if idx >= 0 && idx < stripLen {
				strip[idx] = strip[idx].Max(channels[ch])
			}
		}
	}
	return strip
}

// ledDriver encodes a strip frame and hands it to exchange.
type ledDriver interface {
	write(leds []lights.Led, exchange func([]byte))
}

type ws2801Driver struct {
	correction []float64
	buffer     []byte
}

func newWs2801Driver(hw c.HardwareConfig) *ws2801Driver {
	return &ws2801Driver{correction: hw.ColorCorrection}
}

func (d *ws2801Driver) write(leds []lights.Led, exchange func([]byte)) {
	display := grow(&d.buffer, 3*len(leds))
	for idx, led := range leds {
		display[3*idx], display[3*idx+1], display[3*idx+2] = led.Bytes(d.correction)
	}
	exchange(display)
}

type apa102Driver struct {
	correction []float64
	brightness byte
	buffer     []byte
}

func newApa102Driver(hw c.HardwareConfig) *apa102Driver {
	return &apa102Driver{
		correction: hw.ColorCorrection,
		brightness: min(hw.APA102Brightness, 31) | 0xE0,
	}
}

func (d *apa102Driver) write(leds []lights.Led, exchange func([]byte)) {
	frameEndLength := (len(leds) / 16) + 1
	display := grow(&d.buffer, 4+4*len(leds)+frameEndLength)

	// frame start: 4 zero bytes
	copy(display[0:4], []byte{0x00, 0x00, 0x00, 0x00})

	offset := 4
	for _, led := range leds {
		red, green, blue := led.Bytes(d.correction)
		// protocol: brightness byte, blue, green, red
		display[offset] = d.brightness
		display[offset+1] = blue
		display[offset+2] = green
		display[offset+3] = red
		offset += 4
	}

	// frame end: at least len(leds)/2 bits of 0xFF
	for i := offset; i < len(display); i++ {
		display[i] = 0xFF
	}
	exchange(display)
}

// grow returns (*buf)[:n], reallocating only when the buffer is too small.
func grow(buf *[]byte, n int) []byte {
	if cap(*buf) < n {
		*buf = make([]byte, n)
	}
	return (*buf)[:n]
}
