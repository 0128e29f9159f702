package cmd

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"pomon/internal/broadcast"
	"pomon/internal/server"
	"pomon/internal/utils"
	"pomon/pkg/monitor"
	"pomon/pkg/notify"
	"pomon/pkg/portal"
	"pomon/pkg/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the control API and dashboard log stream",
	RunE: func(cmd *cobra.Command, args []string) error {
		listenAddr, _ := cmd.Flags().GetString("listen")
		if listenAddr == "" {
			listenAddr = viper.GetString("server.listen")
		}
		dbPath, _ := cmd.Flags().GetString("dbpath")
		headless, _ := cmd.Flags().GetBool("headless")
		skipPreflight, _ := cmd.Flags().GetBool("skip-preflight")

		if !skipPreflight {
			if err := portal.Preflight(15 * time.Second); err != nil {
				utils.Log.Warnf("Portal preflight failed: %v", err)
			}
		}

		var store *storage.DB
		if dbPath != "none" {
			absPath, err := utils.GetAbsDBPath(dbPath)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
				return err
			}
			lock, err := utils.NewDBLock(dbPath)
			if err != nil {
				return err
			}
			if err := lock.Lock(); err != nil {
				return err
			}
			defer lock.Unlock()

			store, err = storage.Open(absPath)
			if err != nil {
				return err
			}
			defer store.Close()
		}

		hub := broadcast.NewHub()
		driver := portal.NewPlaywrightDriver()
		driver.Headless = headless
		mon := monitor.New(driver, notify.New(hub), hub, store)

		srv := server.New(mon, hub, store,
			viper.GetString("server.auth.username"),
			viper.GetString("server.auth.password"))
		return srv.Start(listenAddr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen", "", "HTTP listen address (default from config, :3000)")
	serveCmd.Flags().String("dbpath", "", "Path to the SQLite history DB ('none' disables history)")
	serveCmd.Flags().Bool("headless", true, "Run the browser headless")
	serveCmd.Flags().Bool("skip-preflight", false, "Skip the portal reachability probe on startup")
}
