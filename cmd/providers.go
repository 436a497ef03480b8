// File: cmd/providers.go
// Description: The providers command lists every registered decision
// provider with its effective model and credential state, so a missing API
// key is diagnosed here instead of three steps into an agent run.
package cmd

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vantrigo/deskhand/internal/provider"
)

func newProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List decision providers and their configuration state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromCommand(cmd)
			if err != nil {
				return err
			}

			reg := provider.NewRegistry()
			active, _ := reg.Resolve(cfg.Providers().Active)

			aliases := make(map[string][]string)
			for alias, canonical := range reg.Aliases() {
				aliases[canonical] = append(aliases[canonical], alias)
			}
			for _, list := range aliases {
				sort.Strings(list)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tALIASES\tMODEL\tVISION MODEL\tKEY\tREADY")
			for _, name := range reg.Names() {
				defaults, _ := reg.Defaults(name)
				settings := providerSettings(cfg, reg, name)

				ready := "no"
				if reg.Probe(name, settings) {
					ready = "yes"
				}
				display := name
				if name == active {
					display += " *"
				}
				model := firstNonEmpty(settings.Model, defaults.Model)
				vision := firstNonEmpty(settings.VisionModel, defaults.VisionModel)
				if vision == "" {
					vision = model
				}

				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					display,
					strings.Join(aliases[name], ","),
					model,
					vision,
					keySource(settings, defaults),
					ready,
				)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "\n* active provider (providers.active)")
			return nil
		},
	}
}

// keySource describes where the provider's credential comes from.
func keySource(s, d provider.Settings) string {
	switch {
	case s.APIKey != "":
		return "configured"
	case s.APIKeyEnv != "":
		return "$" + s.APIKeyEnv
	case d.APIKeyEnv != "":
		return "$" + d.APIKeyEnv
	default:
		return "-"
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
