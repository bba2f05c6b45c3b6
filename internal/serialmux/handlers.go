package serialmux

import (
	"fmt"
	"log"
	"sync"

	"github.com/banshee-data/presence.report/internal/db"
	"github.com/banshee-data/presence.report/internal/ld2412"
)

// CurrentState holds the latest typed reply details received from the device
// and is intentionally package-level so admin routes or tests can inspect it.
var (
	CurrentState   map[string]any
	currentStateMu sync.Mutex
)

func updateCurrentState(r *ld2412.CommandReply) {
	if r.Detail == nil {
		return
	}
	currentStateMu.Lock()
	defer currentStateMu.Unlock()
	if CurrentState == nil {
		CurrentState = make(map[string]any)
	}
	CurrentState[r.Code.Request().String()] = r.Detail
}

func HandleMeasurement(d *db.DB, sessionID string, m *ld2412.Measurement) error {
	// log to the database and return error if present
	return d.RecordMeasurement(sessionID, m)
}

func HandleCommandReply(d *db.DB, sessionID string, r *ld2412.CommandReply) error {
	log.Printf("Command reply: %s ack=%v", r.Code.Request(), r.AckOK)
	updateCurrentState(r)
	return d.RecordCommand(sessionID, r.Code, db.CommandReply, r.AckOK, r.Payload)
}

func HandleCommandTimeout(d *db.DB, sessionID string, to *ld2412.CommandTimeout) error {
	log.Printf("Command timed out: %s", to.Code)
	return d.RecordCommand(sessionID, to.Code, db.CommandTimeout, false, nil)
}

// HandleEvent records one engine event to the database. Decode errors are
// logged only; the stream recovers from them on its own.
func HandleEvent(d *db.DB, sessionID string, ev ld2412.Event) error {
	switch e := ev.(type) {
	case *ld2412.Measurement:
		if err := HandleMeasurement(d, sessionID, e); err != nil {
			return fmt.Errorf("failed to handle measurement event: %v", err)
		}
	case *ld2412.CommandReply:
		if err := HandleCommandReply(d, sessionID, e); err != nil {
			return fmt.Errorf("failed to handle command reply event: %v", err)
		}
	case *ld2412.CommandTimeout:
		if err := HandleCommandTimeout(d, sessionID, e); err != nil {
			return fmt.Errorf("failed to handle command timeout event: %v", err)
		}
	case *ld2412.DecodeError:
		log.Printf("decode error: %v", e)
	default:
		log.Printf("unknown event type: %T", ev)
	}
	return nil
}
