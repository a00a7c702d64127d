//go:build !(linux && ble)

package ble

import (
	"errors"

	"lautenbacher.net/gogate/link"
)

var errNoBLE = errors.New("BLE support not built in (needs linux and the ble build tag)")

func NewPeripheral(name string) (link.Peripheral, error) {
	return nil, errNoBLE
}

func NewCentral() (link.Central, error) {
	return nil, errNoBLE
}
