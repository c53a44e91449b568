// Command inspect prints the persisted relay state as tables.
package main

import (
	"feedback-relay/domain"
	"feedback-relay/repositories"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"slices"
	"strconv"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
)

func main() {
	backend := flag.String("backend", "json", "Snapshot backend: json or badger")
	dataDir := flag.String("data", "feedback_data", "Directory holding feedback_data.json and users.json")
	dbPath := flag.String("db", "feedback_data/badger", "Path to badger DB")
	users := flag.Bool("users", false, "List users instead of messages")
	limit := flag.Int("limit", 0, "Only show the most recent messages (0 shows all)")
	flag.Parse()

	snapshot, err := load(*backend, *dataDir, *dbPath)
	if err != nil {
		log.Fatal("Error while loading snapshot: ", err)
	}

	if *users {
		printUsers(os.Stdout, snapshot)
		return
	}
	printMessages(os.Stdout, snapshot, *limit)
	fmt.Println(color.Gray.Sprintf("%d messages, %d users", len(snapshot.Messages), len(snapshot.Users)))
}

func load(backend, dataDir, dbPath string) (domain.Snapshot, error) {
	logger := logs.GetLoggerFromString("ERROR")
	switch backend {
	case "json":
		repository, err := repositories.NewJSONSnapshotRepository(dataDir, logger)
		if err != nil {
			return domain.Snapshot{}, err
		}
		return repository.Load()
	case "badger":
		db, err := badger.Open(badger.DefaultOptions(dbPath).
			WithReadOnly(true).
			WithLoggingLevel(badger.ERROR))
		if err != nil {
			return domain.Snapshot{}, err
		}
		defer db.Close()
		return repositories.NewBadgerSnapshotRepository(db, logger).Load()
	default:
		return domain.Snapshot{}, fmt.Errorf("unknown backend %q", backend)
	}
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

func printMessages(w io.Writer, snapshot domain.Snapshot, limit int) {
	ledger := domain.NewLedger(snapshot, nil)
	if limit <= 0 {
		limit = len(snapshot.Messages)
	}
	table := newTable(w, []string{"Timestamp", "ID", "Kind", "Author", "Detail", "Read by"})
	for _, entry := range ledger.Recent(limit) {
		message := entry.Message
		kind := color.Cyan.Sprint("TEXT")
		detail := message.Text.Content
		if message.Kind == domain.KindFile {
			kind = color.Magenta.Sprint("FILE")
			detail = message.File.Name
			if message.File.Record == nil {
				detail += color.Red.Sprint(" (no artifact)")
			} else {
				detail += " -> " + message.File.Record.StoredName
			}
		}
		if len(detail) > 60 {
			detail = detail[:57] + "..."
		}
		table.Append([]string{
			domain.FormatTime(message.At),
			message.ID,
			kind,
			message.Author,
			detail,
			fmt.Sprintf("%d/%d", entry.Status.ReadBy, entry.Status.TotalUsers),
		})
	}
	table.Render()
}

func printUsers(w io.Writer, snapshot domain.Snapshot) {
	table := newTable(w, []string{"Username", "First seen", "Last seen", "Avatar"})
	names := lo.Keys(snapshot.Users)
	slices.Sort(names)
	for _, name := range names {
		profile := snapshot.Users[name]
		table.Append([]string{
			color.Green.Sprint(profile.Username),
			domain.FormatTime(profile.FirstSeen),
			domain.FormatTime(profile.LastSeen),
			profile.Avatar,
		})
	}
	table.Render()
	fmt.Fprintln(w, color.Gray.Sprint(strconv.Itoa(len(names))+" users"))
}
