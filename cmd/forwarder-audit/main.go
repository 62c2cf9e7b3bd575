// forwarder-audit is a read-only CLI for inspecting the forwarding log a
// running lora-packet-forwarder writes via internal/audit. Grounded on
// the teacher's cmd/agsys-db/main.go: same cobra subcommand-per-table
// shape, same tabwriter-rendered listing and raw-query escape hatch.
package main

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"
)

var (
	dbPath  string
	limit   int
	rootCmd = &cobra.Command{
		Use:   "forwarder-audit",
		Short: "LoRa packet forwarder audit CLI",
		Long:  "Command-line tool for inspecting the packet forwarder's append-only forwarding log.",
	}

	uplinksCmd = &cobra.Command{
		Use:   "uplinks",
		Short: "Show recent forwarded/dropped uplinks",
		RunE:  showUplinks,
	}

	downlinksCmd = &cobra.Command{
		Use:   "downlinks",
		Short: "Show recent downlink TX_ACK outcomes",
		RunE:  showDownlinks,
	}

	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show recent stat snapshots",
		RunE:  showStats,
	}

	summaryCmd = &cobra.Command{
		Use:   "summary",
		Short: "Show aggregate counts across every table",
		RunE:  showSummary,
	}

	queryCmd = &cobra.Command{
		Use:   "query [sql]",
		Short: "Execute a raw SELECT query",
		Args:  cobra.ExactArgs(1),
		RunE:  executeQuery,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&dbPath, "database", "d", "/var/lib/lora-packet-forwarder/audit.db", "Audit database file path")
	uplinksCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of records to show")
	downlinksCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of records to show")
	statsCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of records to show")

	rootCmd.AddCommand(uplinksCmd)
	rootCmd.AddCommand(downlinksCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(queryCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openDB() (*sql.DB, error) {
	return sql.Open("sqlite3", dbPath+"?mode=ro")
}

func showUplinks(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	rows, err := db.Query(
		"SELECT id, channel, crc_ok, size, recorded_at FROM uplinks ORDER BY recorded_at DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCHAN\tCRC\tSIZE\tTIME")
	fmt.Fprintln(w, "--\t----\t---\t----\t----")
	for rows.Next() {
		var id string
		var channel, size int
		var crcOK bool
		var recordedAt time.Time
		if err := rows.Scan(&id, &channel, &crcOK, &size, &recordedAt); err != nil {
			return err
		}
		crcStr := "FAIL"
		if crcOK {
			crcStr = "OK"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%s\n", id[:8], channel, crcStr, size, recordedAt.Format("01-02 15:04:05"))
	}
	w.Flush()
	return nil
}

func showDownlinks(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	rows, err := db.Query(
		"SELECT id, channel, ack_error, recorded_at FROM downlinks ORDER BY recorded_at DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCHAN\tACK\tTIME")
	fmt.Fprintln(w, "--\t----\t---\t----")
	for rows.Next() {
		var id, ackError string
		var channel int
		var recordedAt time.Time
		if err := rows.Scan(&id, &channel, &ackError, &recordedAt); err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", id[:8], channel, ackError, recordedAt.Format("01-02 15:04:05"))
	}
	w.Flush()
	return nil
}

func showStats(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	rows, err := db.Query(
		"SELECT rxnb, rxok, rxfw, dwnb, txnb, ackn, ackr, recorded_at FROM stat_snapshots ORDER BY recorded_at DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RXNB\tRXOK\tRXFW\tDWNB\tTXNB\tACKN\tACKR\tTIME")
	fmt.Fprintln(w, "----\t----\t----\t----\t----\t----\t----\t----")
	for rows.Next() {
		var rxnb, rxok, rxfw, dwnb, txnb, ackn uint32
		var ackr float64
		var recordedAt time.Time
		if err := rows.Scan(&rxnb, &rxok, &rxfw, &dwnb, &txnb, &ackn, &ackr, &recordedAt); err != nil {
			return err
		}
		fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%d\t%d\t%.1f%%\t%s\n",
			rxnb, rxok, rxfw, dwnb, txnb, ackn, ackr*100, recordedAt.Format("01-02 15:04:05"))
	}
	w.Flush()
	return nil
}

func showSummary(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	fmt.Println("Audit Log Summary")
	fmt.Println("==================")

	var uplinkCount, crcFailCount int
	db.QueryRow("SELECT COUNT(*) FROM uplinks").Scan(&uplinkCount)
	db.QueryRow("SELECT COUNT(*) FROM uplinks WHERE crc_ok = 0").Scan(&crcFailCount)
	fmt.Printf("Uplinks: %d (CRC failures: %d)\n", uplinkCount, crcFailCount)

	var downlinkCount, ackFailCount int
	db.QueryRow("SELECT COUNT(*) FROM downlinks").Scan(&downlinkCount)
	db.QueryRow("SELECT COUNT(*) FROM downlinks WHERE ack_error != 'NONE'").Scan(&ackFailCount)
	fmt.Printf("Downlinks: %d (non-NONE ack: %d)\n", downlinkCount, ackFailCount)

	var statCount int
	db.QueryRow("SELECT COUNT(*) FROM stat_snapshots").Scan(&statCount)
	fmt.Printf("Stat snapshots: %d\n", statCount)

	return nil
}

func executeQuery(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	query := args[0]
	if !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "SELECT") {
		return fmt.Errorf("only SELECT queries are allowed")
	}

	rows, err := db.Query(query)
	if err != nil {
		return err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(cols, "\t"))
	fmt.Fprintln(w, strings.Repeat("-\t", len(cols)))

	values := make([]interface{}, len(cols))
	valuePtrs := make([]interface{}, len(cols))
	for i := range values {
		valuePtrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(valuePtrs...); err != nil {
			return err
		}
		var row []string
		for _, v := range values {
			switch val := v.(type) {
			case nil:
				row = append(row, "NULL")
			case []byte:
				row = append(row, string(val))
			default:
				row = append(row, fmt.Sprintf("%v", val))
			}
		}
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	w.Flush()
	return nil
}
