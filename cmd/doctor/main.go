// doctor audits the directory authorities' consensus documents and notifies
// operators about disagreements.
//
// Installation:
//
//	go build -o doctor ./cmd/doctor
//
// Usage:
//
//	doctor check --config doctor.yaml --data-dir /var/lib/doctor
//	doctor descriptors --config doctor.yaml
//	doctor suppressions -o json
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var version = "dev"

// options are the runtime settings shared by every command. Each flag can
// also be set through a DOCTOR_ environment variable, e.g. DOCTOR_DATA_DIR.
type options struct {
	ConfigPath      string
	DataDir         string
	Store           string
	Timeout         time.Duration
	Budget          time.Duration
	Concurrency     int
	Rate            float64
	Parallelism     int
	DryRun          bool
	CheckORPort     bool
	MetricsTextfile string
	Pushgateway     string
	Debug           bool
	Output          string
}

func loadOptions(v *viper.Viper) options {
	return options{
		ConfigPath:      v.GetString("config"),
		DataDir:         v.GetString("data-dir"),
		Store:           v.GetString("store"),
		Timeout:         v.GetDuration("timeout"),
		Budget:          v.GetDuration("budget"),
		Concurrency:     v.GetInt("concurrency"),
		Rate:            v.GetFloat64("rate"),
		Parallelism:     v.GetInt("parallelism"),
		DryRun:          v.GetBool("dry-run"),
		CheckORPort:     v.GetBool("check-orport"),
		MetricsTextfile: v.GetString("metrics-textfile"),
		Pushgateway:     v.GetString("pushgateway"),
		Debug:           v.GetBool("debug"),
		Output:          v.GetString("output"),
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("DOCTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:   "doctor",
		Short: "Audit directory authority consensus health",
		Long: `doctor downloads the current consensus and vote from every directory
authority, cross-checks them, and notifies operators about problems.

Notifications for the same problem are suppressed for a while after being
sent. Errors are always reported.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "doctor.yaml", "Path to the configuration file")
	flags.String("data-dir", "data", "Directory holding suppression records")
	flags.String("store", "file", "Suppression store backend: file, pebble")
	flags.Duration("timeout", 60*time.Second, "Per-request download timeout")
	flags.Duration("budget", 0, "Overall fetch budget per cycle (0 for none)")
	flags.Int("concurrency", 4, "Concurrent downloads")
	flags.Float64("rate", 0, "Download starts per second (0 for unlimited)")
	flags.Int("parallelism", 1, "Rules evaluated concurrently")
	flags.Bool("dry-run", false, "Log notifications instead of sending them")
	flags.Bool("check-orport", false, "Probe authority ORPorts")
	flags.String("metrics-textfile", "", "Write metrics to this node-exporter textfile")
	flags.String("pushgateway", "", "Push metrics to this Pushgateway URL")
	flags.Bool("debug", false, "Enable debug logging")
	flags.StringP("output", "o", "table", "Output format: table, json, yaml")
	_ = v.BindPFlags(flags)

	rootCmd.AddCommand(checkCmd(v))
	rootCmd.AddCommand(descriptorsCmd(v))
	rootCmd.AddCommand(suppressionsCmd(v))
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
