package db

import (
	"compress/gzip"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/banshee-data/presence.report/internal/ld2412"
)

type DB struct {
	*sql.DB
}

func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			session_id        TEXT PRIMARY KEY,
			port              TEXT,
			baud_rate         BIGINT,
			started_at        TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			ended_at          TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS measurements (
			session_id        TEXT,
			mode              TEXT,
			state             BIGINT,
			moving_distance   BIGINT,
			moving_energy     BIGINT,
			still_distance    BIGINT,
			still_energy      BIGINT,
			detection_distance BIGINT,
			light_value       BIGINT,
			moving_gates      TEXT,
			still_gates       TEXT,
			timestamp         TIMESTAMP,
			FOREIGN KEY(session_id) REFERENCES sessions(session_id)
		);
		CREATE TABLE IF NOT EXISTS command_log (
			session_id        TEXT,
			code              BIGINT,
			direction         TEXT,
			ack_ok            BOOLEAN,
			payload           TEXT,
			timestamp         TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY(session_id) REFERENCES sessions(session_id)
		);
	`)
	if err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

// StartSession records a new device connection and returns its ID.
func (db *DB) StartSession(port string, baudRate int) (string, error) {
	id := uuid.NewString()
	_, err := db.Exec(
		`INSERT INTO sessions (session_id, port, baud_rate) VALUES (?, ?, ?)`,
		id, port, baudRate,
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

// EndSession stamps the session's end time.
func (db *DB) EndSession(sessionID string) error {
	_, err := db.Exec(
		`UPDATE sessions SET ended_at = CURRENT_TIMESTAMP WHERE session_id = ?`,
		sessionID,
	)
	return err
}

func (db *DB) RecordMeasurement(sessionID string, m *ld2412.Measurement) error {
	var movingGates, stillGates []byte
	var err error
	if m.Engineering() {
		if movingGates, err = json.Marshal(m.MovingGateEnergies); err != nil {
			return fmt.Errorf("failed to marshal moving gate energies: %v", err)
		}
		if stillGates, err = json.Marshal(m.StillGateEnergies); err != nil {
			return fmt.Errorf("failed to marshal still gate energies: %v", err)
		}
	}

	mode := "normal"
	if m.Engineering() {
		mode = "engineering"
	}

	_, err = db.Exec(
		`INSERT INTO measurements (
			session_id, mode, state, moving_distance, moving_energy,
			still_distance, still_energy, detection_distance, light_value,
			moving_gates, still_gates, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, mode, int(m.State), m.MovingDistanceCM, m.MovingEnergy,
		m.StillDistanceCM, m.StillEnergy, m.DetectionDistanceCM, m.LightValue,
		string(movingGates), string(stillGates), m.Timestamp,
	)
	return err
}

// CommandDirection values for the command log.
const (
	CommandSent    = "sent"
	CommandReply   = "reply"
	CommandTimeout = "timeout"
)

func (db *DB) RecordCommand(sessionID string, code ld2412.CommandCode, direction string, ackOK bool, payload []byte) error {
	_, err := db.Exec(
		`INSERT INTO command_log (session_id, code, direction, ack_ok, payload)
		 VALUES (?, ?, ?, ?, ?)`,
		sessionID, int(code), direction, ackOK, hex.EncodeToString(payload),
	)
	return err
}

// MeasurementRow is a stored measurement as returned by queries.
type MeasurementRow struct {
	SessionID         string    `json:"session_id"`
	Mode              string    `json:"mode"`
	State             int       `json:"state"`
	MovingDistanceCM  int       `json:"moving_distance_cm"`
	MovingEnergy      int       `json:"moving_energy"`
	StillDistanceCM   int       `json:"still_distance_cm"`
	StillEnergy       int       `json:"still_energy"`
	DetectionDistance int       `json:"detection_distance_cm"`
	LightValue        int       `json:"light_value"`
	Timestamp         time.Time `json:"timestamp"`
}

func (r *MeasurementRow) String() string {
	return fmt.Sprintf(
		"Session: %s, Mode: %s, State: %d, MovingDistance: %d, MovingEnergy: %d, StillDistance: %d, StillEnergy: %d, DetectionDistance: %d",
		r.SessionID,
		r.Mode,
		r.State,
		r.MovingDistanceCM,
		r.MovingEnergy,
		r.StillDistanceCM,
		r.StillEnergy,
		r.DetectionDistance,
	)
}

// RecentMeasurements returns the most recent measurements, newest first.
func (db *DB) RecentMeasurements(limit int) ([]MeasurementRow, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := db.Query(
		`SELECT session_id, mode, state, moving_distance, moving_energy,
			still_distance, still_energy, detection_distance, light_value, timestamp
		 FROM measurements ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var measurements []MeasurementRow
	for rows.Next() {
		var m MeasurementRow
		if err := rows.Scan(
			&m.SessionID,
			&m.Mode,
			&m.State,
			&m.MovingDistanceCM,
			&m.MovingEnergy,
			&m.StillDistanceCM,
			&m.StillEnergy,
			&m.DetectionDistance,
			&m.LightValue,
			&m.Timestamp,
		); err != nil {
			return nil, err
		}
		measurements = append(measurements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return measurements, nil
}

// CommandLogRow is a stored command log entry.
type CommandLogRow struct {
	SessionID string    `json:"session_id"`
	Code      int       `json:"code"`
	Direction string    `json:"direction"`
	AckOK     bool      `json:"ack_ok"`
	Payload   string    `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// RecentCommands returns the most recent command log entries, newest first.
func (db *DB) RecentCommands(limit int) ([]CommandLogRow, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := db.Query(
		`SELECT session_id, code, direction, ack_ok, payload, timestamp
		 FROM command_log ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []CommandLogRow
	for rows.Next() {
		var e CommandLogRow
		if err := rows.Scan(&e.SessionID, &e.Code, &e.Direction, &e.AckOK, &e.Payload, &e.Timestamp); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}

// SessionRow is a stored session as returned by queries.
type SessionRow struct {
	SessionID string     `json:"session_id"`
	Port      string     `json:"port"`
	BaudRate  int        `json:"baud_rate"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Sessions returns recorded sessions, newest first.
func (db *DB) Sessions(limit int) ([]SessionRow, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := db.Query(
		`SELECT session_id, port, baud_rate, started_at, ended_at
		 FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []SessionRow
	for rows.Next() {
		var s SessionRow
		if err := rows.Scan(&s.SessionID, &s.Port, &s.BaudRate, &s.StartedAt, &s.EndedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}

func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	// create a tailSQL instance and point it to our DB
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://presence.db", db.DB, &tailsql.DBOptions{
		Label: "Presence DB",
	})

	// mount the tailSQL server on the debug /tailsql path
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		unixTime := time.Now().Unix()
		backupPath := fmt.Sprintf("backup-%d.db", unixTime)
		if _, err := db.DB.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", backupPath))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Encoding", "gzip")

		// Send the backup file to the client
		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}

		// close the backup file after sending it
		// and remove it from the filesystem
		defer func() {
			backupFile.Close()
			if err := os.Remove(backupPath); err != nil {
				log.Printf("Failed to remove backup file: %v", err)
			}
		}()

		gzipWriter := gzip.NewWriter(w)
		defer gzipWriter.Close()

		// Copy the backup file content to the gzip writer
		if _, err := io.Copy(gzipWriter, backupFile); err != nil {
			http.Error(w, fmt.Sprintf("Failed to write backup file: %v", err), http.StatusInternalServerError)
			return
		}
	}))
}
