package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"ckr/internal/assemble"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Inspect and validate context templates",
}

var templatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered intent templates",
	Run:   runTemplatesList,
}

var templatesValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Validate a YAML template file",
	Long: `Validate parses a templates YAML file and checks every template:
intent label present, at least one step, positive budgets, and only
known pack types.

Example:
  ckr templates validate .ckr/templates.yaml`,
	Args: cobra.ExactArgs(1),
	Run:  runTemplatesValidate,
}

func init() {
	templatesCmd.AddCommand(templatesListCmd)
	templatesCmd.AddCommand(templatesValidateCmd)
	rootCmd.AddCommand(templatesCmd)
}

func runTemplatesList(cmd *cobra.Command, args []string) {
	registry := assemble.NewRegistry()

	intents := registry.Intents()
	sort.Strings(intents)

	if formatFlag == "human" {
		for _, label := range intents {
			tmpl, err := registry.Lookup(label)
			if err != nil {
				continue
			}
			fmt.Printf("%s  budget=%d  steps=%d\n", label, tmpl.TotalBudget, len(tmpl.Steps))
			for _, step := range tmpl.Steps {
				req := "optional"
				if step.Required {
					req = "required"
				}
				fmt.Printf("  %-20s %s  budget=%d  types=%v\n", step.Name, req, step.TokenBudget, step.AllowedTypes)
			}
		}
		return
	}

	out := make([]*assemble.ContextTemplate, 0, len(intents))
	for _, label := range intents {
		if tmpl, err := registry.Lookup(label); err == nil {
			out = append(out, tmpl)
		}
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding templates: %v\n", err)
		os.Exit(1)
	}
}

func runTemplatesValidate(cmd *cobra.Command, args []string) {
	registry := assemble.NewRegistry()
	if err := registry.LoadTemplateFile(args[0]); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%s: ok\n", args[0])
}
