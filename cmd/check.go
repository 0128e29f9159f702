package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"pomon/pkg/monitor"
	"pomon/pkg/notify"
	"pomon/pkg/portal"
)

// checkCmd runs a single check cycle from the CLI: login, fetch, detect,
// print. No polling loop, no server.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run a single PO check and print any discrepancies",
	RunE: func(cmd *cobra.Command, args []string) error {
		username := viper.GetString("portal.username")
		password := viper.GetString("portal.password")
		if username == "" || password == "" {
			return errors.New("portal credentials not found; set portal.username and portal.password in ~/.pomon.yaml")
		}

		siteTag, _ := cmd.Flags().GetString("site")
		site, err := portal.ParseSite(siteTag)
		if err != nil {
			return err
		}
		startDate, _ := cmd.Flags().GetString("start")
		endDate, _ := cmd.Flags().GetString("end")
		if startDate == "" {
			startDate = time.Now().Format("2006-01") + "-01"
		}
		if endDate == "" {
			endDate = time.Now().Format("2006-01-02")
		}
		headless, _ := cmd.Flags().GetBool("headless")

		driver := portal.NewPlaywrightDriver()
		driver.Headless = headless
		log := stdoutBroadcaster{}
		mon := monitor.New(driver, notify.New(log), log, nil)

		alerts, err := mon.RunOnce(context.Background(), monitor.Params{
			Username:  username,
			Password:  password,
			Site:      site,
			StartDate: startDate,
			EndDate:   endDate,
		})
		if err != nil {
			return err
		}
		if len(alerts) == 0 {
			fmt.Println("No problematic POs found.")
			return nil
		}
		for _, a := range alerts {
			fmt.Println(notify.FormatAlert(a))
		}
		return nil
	},
}

// stdoutBroadcaster routes the operator stream to the terminal when no
// dashboard is attached.
type stdoutBroadcaster struct{}

func (stdoutBroadcaster) Publish(kind, message string) {
	fmt.Printf("[%s] %s\n", kind, message)
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().String("site", "dry", "Site to check: dry or perishable")
	checkCmd.Flags().String("start", "", "Start date (YYYY-MM-DD, default: first of the current month)")
	checkCmd.Flags().String("end", "", "End date (YYYY-MM-DD, default: today)")
	checkCmd.Flags().Bool("headless", true, "Run the browser headless")
}
