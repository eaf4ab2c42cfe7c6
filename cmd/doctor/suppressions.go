package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"sigs.k8s.io/yaml"

	"github.com/tordoctor/doctor/internal/suppression"
)

// SuppressionRecord is one stored notification time.
type SuppressionRecord struct {
	Key          string    `json:"key"`
	LastNotified time.Time `json:"lastNotified"`
	Age          string    `json:"age"`
}

// SuppressionsResult is the output of the suppressions command.
type SuppressionsResult struct {
	Records []SuppressionRecord `json:"records"`
	Total   int                 `json:"total"`
}

// now is overridden in tests.
var now = time.Now

func suppressionsCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "suppressions",
		Short: "List stored suppression records",
		Long: `Print every suppression key with the time it was last notified.

Examples:
  doctor suppressions --data-dir /var/lib/doctor
  doctor suppressions --store pebble -o json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := loadOptions(v)
			store, err := openStore(opts, zap.NewNop())
			if err != nil {
				return err
			}
			defer store.Close()
			return outputResult(cmd.OutOrStdout(), listSuppressions(store), opts.Output)
		},
	}
}

func listSuppressions(store suppression.Store) SuppressionsResult {
	var result SuppressionsResult
	current := now()
	for _, key := range store.Keys() {
		ts, ok := store.Get(key)
		if !ok {
			continue
		}
		at := time.Unix(ts, 0).UTC()
		result.Records = append(result.Records, SuppressionRecord{
			Key:          key,
			LastNotified: at,
			Age:          current.Sub(at).Truncate(time.Minute).String(),
		})
	}
	result.Total = len(result.Records)
	return result
}

// outputResult outputs the result in the specified format.
func outputResult(w io.Writer, result SuppressionsResult, format string) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(result)
	case "yaml":
		data, err := yaml.Marshal(result)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	default:
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		defer tw.Flush()
		fmt.Fprintf(tw, "TOTAL\t%d\n\n", result.Total)
		fmt.Fprintln(tw, "KEY\tLAST NOTIFIED\tAGE")
		for _, r := range result.Records {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Key, r.LastNotified.Format(time.RFC3339), r.Age)
		}
		return nil
	}
}
