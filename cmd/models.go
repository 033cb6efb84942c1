package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/samsaffron/llm-gateway/internal/llm"
	"github.com/spf13/cobra"
)

var modelsJSON bool

var modelsCmd = &cobra.Command{
	Use:   "models [MODEL...]",
	Short: "Show how model ids are routed",
	Long: `Show the provider routing table, or resolve specific model ids.

Examples:
  llm-gateway models                               # every provider family
  llm-gateway models gemini-3-flash-preview gpt-4o # resolve ids
  llm-gateway models --json`,
	RunE: runModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.Flags().BoolVar(&modelsJSON, "json", false, "Output as JSON")
}

type modelRow struct {
	Requested   string `json:"requested,omitempty"`
	Provider    string `json:"provider"`
	Model       string `json:"model,omitempty"`
	Credential  string `json:"credential"`
	Configured  bool   `json:"configured"`
	BaseURL     string `json:"baseUrl,omitempty"`
	Passthrough bool   `json:"passthrough"`
}

func runModels(cmd *cobra.Command, args []string) error {
	configured := appConfig.ConfiguredProviders()

	var rows []modelRow
	if len(args) == 0 {
		for _, kind := range llm.Kinds {
			v := llm.VariantFor(kind)
			rows = append(rows, modelRow{
				Provider:    v.Name,
				Model:       v.TargetModel,
				Credential:  v.CredentialEnv,
				Configured:  configured[kind.String()],
				BaseURL:     v.BaseURL,
				Passthrough: v.TargetModel == "",
			})
		}
	} else {
		for _, id := range args {
			route, err := llm.Resolve(id)
			if err != nil {
				return err
			}
			rows = append(rows, modelRow{
				Requested:  id,
				Provider:   route.Name,
				Model:      route.Model,
				Credential: route.CredentialEnv,
				Configured: configured[route.Kind.String()],
				BaseURL:    route.BaseURL,
			})
		}
	}

	if modelsJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}
	return printModels(cmd.OutOrStdout(), rows, len(args) > 0)
}

func printModels(out io.Writer, rows []modelRow, resolved bool) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	if resolved {
		fmt.Fprintln(w, "REQUESTED\tPROVIDER\tUPSTREAM MODEL\tCREDENTIAL")
	} else {
		fmt.Fprintln(w, "PROVIDER\tUPSTREAM MODEL\tCREDENTIAL")
	}
	for _, r := range rows {
		model := r.Model
		if model == "" {
			model = "(requested id)"
		}
		cred := r.Credential
		if !r.Configured {
			cred += " (missing)"
		}
		if resolved {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Requested, r.Provider, model, cred)
		} else {
			fmt.Fprintf(w, "%s\t%s\t%s\n", r.Provider, model, cred)
		}
	}
	if !resolved {
		remaps := llm.VariantFor(llm.KindGemini).Remaps
		keys := make([]string, 0, len(remaps))
		for k := range remaps {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "\t%s -> %s\t\n", k, remaps[k])
		}
	}
	return w.Flush()
}
