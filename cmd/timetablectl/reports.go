package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"timetable_go/models"
	"timetable_go/services"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

var watchURL string

var conflictsCmd = &cobra.Command{
	Use:     "conflicts",
	Short:   "List conflicts already stored (only forced writes leave them)",
	GroupID: "reports",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.close()

		report, err := e.timetable.PersistedConflicts(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(report)
		}

		PrintSection("Conflicts")
		if len(report.Conflicts) == 0 {
			PrintEmptyState("No conflicts")
		} else {
			printConflicts(report.Conflicts)
		}

		PrintSection("Double bookings")
		if len(report.DoubleBookings) == 0 {
			PrintEmptyState("No teacher is in two classes at once")
			return nil
		}
		rows := make([][]string, 0, len(report.DoubleBookings))
		for _, d := range report.DoubleBookings {
			classes := make([]string, 0, len(d.Classes))
			for _, c := range d.Classes {
				classes = append(classes, services.FormatGradeSection(c.Grade, c.Section))
			}
			rows = append(rows, []string{d.TeacherName, d.Day, fmt.Sprint(d.Period), strings.Join(classes, " ")})
		}
		PrintTable([]string{"Teacher", "Day", "Period", "Classes"}, rows)
		return nil
	},
}

var gapsCmd = &cobra.Command{
	Use:     "gaps",
	Short:   "Show periods no teacher covers, per class",
	GroupID: "reports",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.close()

		gaps, err := e.timetable.CoverageGaps(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(gaps)
		}

		PrintSection("Coverage gaps")
		if len(gaps) == 0 {
			PrintEmptyState("Every configured class is fully covered")
			return nil
		}
		week := len(models.Days) * models.MaxPeriod
		rows := make([][]string, 0, len(gaps))
		for _, g := range gaps {
			rows = append(rows, []string{
				services.FormatGradeSection(g.Grade, g.Section),
				fmt.Sprintf("%d/%d", g.Filled, week),
				fmt.Sprint(len(g.Missing)),
			})
		}
		PrintTable([]string{"Class", "Filled", "Missing"}, rows)
		return nil
	},
}

var loadCmd = &cobra.Command{
	Use:     "load",
	Short:   "Show each teacher's weekly periods by grade",
	GroupID: "reports",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.close()

		loads, err := e.timetable.TeacherLoads(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(loads)
		}

		sort.SliceStable(loads, func(i, j int) bool { return loads[i].Total > loads[j].Total })
		headers := []string{"Teacher", "Subject", "Total"}
		grades := models.Grades()
		for _, g := range grades {
			headers = append(headers, fmt.Sprintf("G%d", g))
		}
		rows := make([][]string, 0, len(loads))
		for _, l := range loads {
			row := []string{l.Name, l.Subject, fmt.Sprint(l.Total)}
			for _, g := range grades {
				row = append(row, fmt.Sprint(l.PerGrade[g]))
			}
			rows = append(rows, row)
		}

		PrintSection("Teacher load")
		if len(rows) == 0 {
			PrintEmptyState("No teachers")
			return nil
		}
		PrintTable(headers, rows)
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:     "watch",
	Short:   "Print timetable updates pushed by a running server",
	GroupID: "ops",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
		conn, resp, err := dialer.DialContext(cmd.Context(), watchURL, http.Header{})
		if err != nil {
			if resp != nil {
				return fmt.Errorf("connect %s: %s", watchURL, resp.Status)
			}
			return fmt.Errorf("connect %s: %w", watchURL, err)
		}
		defer conn.Close()

		stop := make(chan os.Signal, 1)
		stopped := make(chan struct{})
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-stop
			close(stopped)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			conn.Close()
		}()

		if !jsonOutput {
			PrintSuccess("Listening on " + watchURL)
		}
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				select {
				case <-stopped:
					return nil
				default:
				}
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return nil
				}
				return err
			}
			if jsonOutput {
				fmt.Println(string(data))
				continue
			}
			printEvent(data)
		}
	},
}

func printEvent(data []byte) {
	var event struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &event); err != nil {
		PrintWarning("unreadable message: " + string(data))
		return
	}
	_, _ = dimColor.Printf("%s ", time.Now().Format("15:04:05"))
	_, _ = labelColor.Print(event.Type)
	fmt.Printf(" %s\n", event.Data)
}

func init() {
	watchCmd.Flags().StringVar(&watchURL, "url", "ws://localhost:8080/ws", "Server websocket endpoint")
}
