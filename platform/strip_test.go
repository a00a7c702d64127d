package platform

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	c "lautenbacher.net/gogate/config"
	"lautenbacher.net/gogate/lights"
)

var (
	red   = lights.Led{Red: 255}
	green = lights.Led{Green: 255}
	blue  = lights.Led{Blue: 255}
)

func TestMapToStrip_IdentityWithoutMapping(t *testing.T) {
	strip := mapToStrip([]lights.Led{red, green}, nil, 4)
	want := []lights.Led{red, green, {}, {}}
	if diff := cmp.Diff(want, strip); diff != "" {
		t.Errorf("strip mismatch (-want +got):\n%s", diff)
	}

	strip = mapToStrip([]lights.Led{red, green, blue}, nil, 0)
	assert.Len(t, strip, 3, "a short strip grows to the channel count")
}

func TestMapToStrip_ChannelsSpanSeveralLeds(t *testing.T) {
	mapping := [][]int{{0, 1}, {1, 2}, {5, -1}}
	strip := mapToStrip([]lights.Led{red, green, blue}, mapping, 4)

	want := []lights.Led{
		red,
		{Red: 255, Green: 255}, // shared LED takes the maximum
		green,
		{},
	}
	if diff := cmp.Diff(want, strip); diff != "" {
		t.Errorf("strip mismatch (-want +got):\n%s", diff)
	}
}

func TestMapToStrip_MoreMappingsThanChannels(t *testing.T) {
	strip := mapToStrip([]lights.Led{red}, [][]int{{0}, {1}}, 2)
	assert.Equal(t, []lights.Led{red, {}}, strip)
}

func TestWS2801Driver_Write(t *testing.T) {
	driver := newWs2801Driver(c.HardwareConfig{ColorCorrection: []float64{1.0, 1.0, 1.0}})

	var sentData []byte
	driver.write([]lights.Led{red, green, blue}, func(data []byte) {
		sentData = append([]byte(nil), data...)
	})

	expected := []byte{255, 0, 0, 0, 255, 0, 0, 0, 255}
	if diff := cmp.Diff(expected, sentData); diff != "" {
		t.Errorf("frame mismatch (-want +got):\n%s", diff)
	}
}

func TestWS2801Driver_ReusesBuffer(t *testing.T) {
	driver := newWs2801Driver(c.HardwareConfig{ColorCorrection: []float64{1, 0.5, 1}})

	var sent [][]byte
	exchange := func(data []byte) { sent = append(sent, append([]byte(nil), data...)) }
	driver.write([]lights.Led{red, green, blue}, exchange)
	driver.write([]lights.Led{green}, exchange)

	assert.Len(t, sent[1], 3, "a shorter frame is cut from the same buffer")
	assert.Equal(t, []byte{0, 128, 0}, sent[1], "colour correction applies per component")
}

func TestAPA102Driver_Write(t *testing.T) {
	driver := newApa102Driver(c.HardwareConfig{
		ColorCorrection:  []float64{1.0, 1.0, 1.0},
		APA102Brightness: 31,
	})

	var sentData []byte
	driver.write([]lights.Led{red, green}, func(data []byte) {
		sentData = append([]byte(nil), data...)
	})

	// 4 bytes start frame, per LED brightness (0xE0 | 31) then blue,
	// green, red, and one byte end frame for up to 15 LEDs
	expected := []byte{
		0x00, 0x00, 0x00, 0x00,
		0xFF, 0, 0, 255,
		0xFF, 0, 255, 0,
		0xFF,
	}
	if diff := cmp.Diff(expected, sentData); diff != "" {
		t.Errorf("frame mismatch (-want +got):\n%s", diff)
	}
}

func TestAPA102Driver_BrightnessAndEndFrame(t *testing.T) {
	driver := newApa102Driver(c.HardwareConfig{
		ColorCorrection:  []float64{1, 1, 1},
		APA102Brightness: 200,
	})

	var sentData []byte
	driver.write(make([]lights.Led, 16), func(data []byte) {
		sentData = append([]byte(nil), data...)
	})

	assert.Len(t, sentData, 4+4*16+2)
	assert.Equal(t, byte(0xFF), sentData[4], "global brightness is capped at 31")
	assert.Equal(t, []byte{0xFF, 0xFF}, sentData[len(sentData)-2:])
}
