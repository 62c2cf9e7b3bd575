// Package audit is an append-only forwarding log: every uplink received
// (forwarded, or dropped on CRC failure) and every downlink acknowledged,
// persisted to SQLite for
// offline inspection. It is explicitly not protocol state — Engine runs
// correctly with no AuditSink wired at all (spec §9: the log is an
// ambient record, never consulted to decide what to forward or ack).
// Grounded on the teacher's internal/storage package: same Open/migrate
// shape, same ON CONFLICT-free append-only inserts.
package audit

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/agsys/lorawan-gateway-forwarder/internal/gwproto"
)

// Log wraps a SQLite database holding the forwarding history for one
// gateway instance.
type Log struct {
	conn *sql.DB
}

// Open opens or creates the database at path, migrating its schema.
func Open(path string) (*Log, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("audit: open database: %w", err)
	}
	l := &Log{conn: conn}
	if err := l.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("audit: migrate database: %w", err)
	}
	return l, nil
}

// Close closes the underlying connection.
func (l *Log) Close() error {
	return l.conn.Close()
}

func (l *Log) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS uplinks (
		id TEXT PRIMARY KEY,
		channel INTEGER NOT NULL,
		crc_ok INTEGER NOT NULL,
		size INTEGER NOT NULL,
		recorded_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_uplinks_recorded ON uplinks(recorded_at);

	CREATE TABLE IF NOT EXISTS downlinks (
		id TEXT PRIMARY KEY,
		channel INTEGER NOT NULL,
		ack_error TEXT NOT NULL,
		recorded_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_downlinks_recorded ON downlinks(recorded_at);

	CREATE TABLE IF NOT EXISTS stat_snapshots (
		id TEXT PRIMARY KEY,
		rxnb INTEGER NOT NULL,
		rxok INTEGER NOT NULL,
		rxfw INTEGER NOT NULL,
		dwnb INTEGER NOT NULL,
		txnb INTEGER NOT NULL,
		ackn INTEGER NOT NULL,
		ackr REAL NOT NULL,
		recorded_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := l.conn.Exec(schema)
	return err
}

// RecordUplink appends one forwarded-or-not uplink entry. It satisfies
// forwarder.AuditSink.
func (l *Log) RecordUplink(channel int, crcOK bool, size int) {
	_, err := l.conn.Exec(
		"INSERT INTO uplinks (id, channel, crc_ok, size) VALUES (?, ?, ?, ?)",
		uuid.NewString(), channel, crcOK, size,
	)
	if err != nil {
		fmt.Printf("audit: insert uplink: %v\n", err)
	}
}

// RecordDownlink appends one TX_ACK outcome. It satisfies
// forwarder.AuditSink.
func (l *Log) RecordDownlink(channel int, errCode gwproto.TxAckError) {
	_, err := l.conn.Exec(
		"INSERT INTO downlinks (id, channel, ack_error) VALUES (?, ?, ?)",
		uuid.NewString(), channel, string(errCode),
	)
	if err != nil {
		fmt.Printf("audit: insert downlink: %v\n", err)
	}
}

// RecordStat appends one periodic counters snapshot.
func (l *Log) RecordStat(snap gwproto.Snapshot) {
	_, err := l.conn.Exec(
		`INSERT INTO stat_snapshots (id, rxnb, rxok, rxfw, dwnb, txnb, ackn, ackr)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), snap.Rxnb, snap.Rxok, snap.Rxfw, snap.Dwnb, snap.Txnb, snap.Ackn, snap.Ackr,
	)
	if err != nil {
		fmt.Printf("audit: insert stat snapshot: %v\n", err)
	}
}

// UplinkRow is one row of RecentUplinks' result.
type UplinkRow struct {
	ID         string
	Channel    int
	CrcOK      bool
	Size       int
	RecordedAt time.Time
}

// RecentUplinks returns the most recent limit uplink entries, newest
// first, for the forwarder-audit CLI's inspection commands.
func (l *Log) RecentUplinks(limit int) ([]UplinkRow, error) {
	rows, err := l.conn.Query(
		"SELECT id, channel, crc_ok, size, recorded_at FROM uplinks ORDER BY recorded_at DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UplinkRow
	for rows.Next() {
		var r UplinkRow
		if err := rows.Scan(&r.ID, &r.Channel, &r.CrcOK, &r.Size, &r.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DownlinkRow is one row of RecentDownlinks' result.
type DownlinkRow struct {
	ID         string
	Channel    int
	AckError   string
	RecordedAt time.Time
}

// RecentDownlinks returns the most recent limit downlink entries, newest
// first.
func (l *Log) RecentDownlinks(limit int) ([]DownlinkRow, error) {
	rows, err := l.conn.Query(
		"SELECT id, channel, ack_error, recorded_at FROM downlinks ORDER BY recorded_at DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DownlinkRow
	for rows.Next() {
		var r DownlinkRow
		if err := rows.Scan(&r.ID, &r.Channel, &r.AckError, &r.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
