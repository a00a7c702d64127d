package link

import (
	"time"

	"github.com/google/uuid"
)

// EventKind enumerates the asynchronous radio events a role reacts to.
type EventKind int

const (
	// peripheral side
	EventCentralConnect EventKind = iota
	EventCentralDisconnect
	EventWrite
	// central side
	EventScanResult
	EventScanDone
	EventPeripheralConnect
	EventPeripheralDisconnect
	EventServiceResult
	EventServiceDone
	EventCharacteristicResult
	EventCharacteristicDone
	EventDescriptorResult
	EventDescriptorDone
	EventWriteDone
	EventNotify
)

var eventNames = [...]string{
	"CentralConnect", "CentralDisconnect", "Write",
	"ScanResult", "ScanDone", "PeripheralConnect", "PeripheralDisconnect",
	"ServiceResult", "ServiceDone", "CharacteristicResult", "CharacteristicDone",
	"DescriptorResult", "DescriptorDone", "WriteDone", "Notify",
}

func (k EventKind) String() string {
	if k < 0 || int(k) >= len(eventNames) {
		return "Unknown"
	}
	return eventNames[k]
}

// Event is one radio event. Only the fields meaningful for Kind are
// set:
//
//	ScanResult:           Addr, RSSI, Data (advertising data)
//	*Connect/*Disconnect: Conn, Addr
//	Write, Notify:        Conn, Handle, Data
//	ServiceResult:        Conn, Start, End, UUID
//	CharacteristicResult: Conn, Handle (value handle), UUID
//	DescriptorResult:     Conn, Handle, UUID
//	*Done, WriteDone:     Conn, Status (0 is success), Handle for WriteDone
type Event struct {
	Kind   EventKind
	Conn   int
	Addr   string
	RSSI   int
	Data   []byte
	Start  uint16
	End    uint16
	Handle uint16
	UUID   uuid.UUID
	Status int
}

// Handler receives radio events. It runs in the radio's callback
// context and must neither block nor call back into blocking
// operations.
type Handler func(Event)

// ServiceDef describes the single command characteristic a peripheral
// exposes under a service.
type ServiceDef struct {
	Service        uuid.UUID
	Characteristic uuid.UUID
	Initial        []byte
}

// Peripheral is the advertising side of a radio. All methods return
// immediately, results arrive as events.
type Peripheral interface {
	SetHandler(h Handler)
	// RegisterService returns the value handle of the characteristic.
	RegisterService(def ServiceDef) (uint16, error)
	Advertise(adv, scanResponse []byte, interval time.Duration) error
	StopAdvertising() error
	Notify(conn int, handle uint16, data []byte) error
	// Disconnect drops the central on conn.
	Disconnect(conn int) error
	Close() error
}

// Central is the scanning side of a radio. All methods return
// immediately, results arrive as events.
type Central interface {
	SetHandler(h Handler)
	Scan(timeout time.Duration) error
	StopScan() error
	Connect(addr string) error
	Disconnect(conn int) error
	DiscoverServices(conn int) error
	DiscoverCharacteristics(conn int, start, end uint16) error
	DiscoverDescriptors(conn int, start, end uint16) error
	Write(conn int, handle uint16, data []byte) error
	Close() error
}
