// Command ghostwatchd runs the SMART-polling daemon, or drives an already
// running instance through its control socket.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ghostwatch/ghostwatchd/internal/controlsock"
	"github.com/ghostwatch/ghostwatchd/internal/daemon"
	"github.com/ghostwatch/ghostwatchd/internal/smartreader"
)

func dialControlSocket(path string) (net.Conn, error) {
	return net.DialTimeout("unix", path, 3*time.Second)
}

// Exit codes the daemon documents to its operators.
const (
	exitOK                = 0
	exitConfigError       = 2
	exitRequiresRoot      = 3
	exitNoSmartctl        = 4
	exitUnexpectedFailure = 1
)

var socketPath string

var rootCmd = &cobra.Command{
	Use:   "ghostwatchd",
	Short: "Ghost Drive Condition SMART monitoring daemon",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the monitoring daemon in the foreground",
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runDaemon())
	},
}

var checkHealthCmd = &cobra.Command{
	Use:   "check-health",
	Short: "Query a running daemon's current device snapshot",
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(sendControlRequest(controlsock.Request{Method: "check_health_once"}))
	},
}

var forceScanCmd = &cobra.Command{
	Use:   "force-scan",
	Short: "Force an immediate scan of every monitored device",
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(sendControlRequest(controlsock.Request{Method: "force_scan"}))
	},
}

func init() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "/run/"+daemon.AppName+"/control.sock", "control socket path")
	rootCmd.AddCommand(runCmd, checkHealthCmd, forceScanCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitUnexpectedFailure)
	}
}

func runDaemon() int {
	if os.Geteuid() != 0 {
		fmt.Fprintln(os.Stderr, "ghostwatchd must run as root to read SMART data and perform emergency unmounts")
		return exitRequiresRoot
	}

	if _, err := smartreader.NewReader(15 * time.Second); err != nil {
		fmt.Fprintln(os.Stderr, "smartctl not found on this system:", err)
		return exitNoSmartctl
	}

	d, err := daemon.New()
	if err != nil {
		log.Error().Err(err).Msg("failed to construct daemon")
		return exitNoSmartctl
	}

	if err := d.Run(context.Background()); err != nil {
		log.Error().Err(err).Msg("daemon exited with error")
		return exitUnexpectedFailure
	}
	return exitOK
}

func sendControlRequest(req controlsock.Request) int {
	conn, err := dialControlSocket(socketPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "could not reach ghostwatchd daemon:", err)
		return exitUnexpectedFailure
	}
	defer conn.Close()

	line, _ := json.Marshal(req)
	if _, err := conn.Write(append(line, '\n')); err != nil {
		fmt.Fprintln(os.Stderr, "failed to send request:", err)
		return exitUnexpectedFailure
	}

	var resp controlsock.Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		fmt.Fprintln(os.Stderr, "failed to read response:", err)
		return exitUnexpectedFailure
	}
	if !resp.Success {
		fmt.Fprintln(os.Stderr, "daemon returned an error:", resp.Error)
		return exitUnexpectedFailure
	}

	for name, rec := range resp.Devices {
		fmt.Printf("%s\tgdc=%s\tscore=%s\tstatus=%s\n", name, rec.GDCState, strconv.Itoa(rec.HealthScore), rec.Decision.Status)
	}
	return exitOK
}
