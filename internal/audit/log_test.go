package audit

import (
	"path/filepath"
	"testing"

	"github.com/agsys/lorawan-gateway-forwarder/internal/gwproto"
)

func TestRecordAndRecentUplinks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	log, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer log.Close()

	log.RecordUplink(0, true, 12)
	log.RecordUplink(1, false, 0)

	rows, err := log.RecentUplinks(10)
	if err != nil {
		t.Fatalf("RecentUplinks: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
}

func TestRecordDownlinkAndStat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	log, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer log.Close()

	log.RecordDownlink(2, gwproto.ErrTooLate)
	log.RecordStat(gwproto.Snapshot{Rxnb: 5, Rxok: 4, Rxfw: 4, Txnb: 3, Ackn: 2, Ackr: 2.0 / 3.0})

	rows, err := log.RecentDownlinks(10)
	if err != nil {
		t.Fatalf("RecentDownlinks: %v", err)
	}
	if len(rows) != 1 || rows[0].AckError != "TOO_LATE" {
		t.Fatalf("got %+v", rows)
	}
}
