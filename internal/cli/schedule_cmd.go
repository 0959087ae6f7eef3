package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/fairyhunter13/subscription-fleet/internal/config"
)

// scheduleView mirrors httpserver.ScheduleView without importing the
// adapter package from the CLI layer; the admin surface is reached purely
// over HTTP, the same way an operator's own tooling would reach it.
type scheduleView struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	StartedAt time.Time `json:"startedAt"`
}

func newScheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Inspect or cancel continuous worker runs via the admin HTTP surface",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List scheduled worker runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := adminBaseURL()
			if err != nil {
				return err
			}
			resp, err := http.Get(base + "/admin/schedule/")
			if err != nil {
				return fmt.Errorf("op=cli.schedule.list: %w", err)
			}
			defer resp.Body.Close()

			var views []scheduleView
			if err := json.NewDecoder(resp.Body).Decode(&views); err != nil {
				return fmt.Errorf("op=cli.schedule.list: decode response: %w", err)
			}
			for _, v := range views {
				fmt.Printf("%s\t%s\tstarted %s\n", v.ID, v.Label, v.StartedAt.Format(time.RFC3339))
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel one scheduled worker run by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := adminBaseURL()
			if err != nil {
				return err
			}
			resp, err := http.Post(base+"/admin/schedule/cancel?id="+url.QueryEscape(args[0]), "application/json", nil)
			if err != nil {
				return fmt.Errorf("op=cli.schedule.cancel: %w", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("op=cli.schedule.cancel: admin surface returned %s", resp.Status)
			}
			fmt.Printf("cancelled %s\n", args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "cancel-all",
		Short: "Cancel every scheduled worker run",
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := adminBaseURL()
			if err != nil {
				return err
			}
			resp, err := http.Post(base+"/admin/schedule/cancel-all", "application/json", nil)
			if err != nil {
				return fmt.Errorf("op=cli.schedule.cancel-all: %w", err)
			}
			defer resp.Body.Close()
			var body map[string]int
			_ = json.NewDecoder(resp.Body).Decode(&body)
			fmt.Printf("cancelled %d scheduled run(s)\n", body["cancelled"])
			return nil
		},
	})

	return cmd
}

// adminBaseURL resolves the running worker's admin address from the same
// ADMIN_ADDR environment variable `worker run` listens on, so the two
// subcommands stay in sync without a second flag to keep consistent.
func adminBaseURL() (string, error) {
	cfg, err := config.Load()
	if err != nil {
		return "", err
	}
	addr := cfg.AdminAddr
	if len(addr) > 0 && addr[0] == ':' {
		addr = "localhost" + addr
	}
	return "http://" + addr, nil
}
