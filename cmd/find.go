// File: cmd/find.go
// Description: The find command runs a one-shot template search and reports
// matches as JSON. With --frame it searches a saved image entirely offline;
// otherwise it captures from the live backend.
package cmd

import (
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"

	// Frame files arrive in whatever format the capture tool wrote.
	_ "image/jpeg"
	_ "image/png"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/vantrigo/deskhand/internal/automation"
	"github.com/vantrigo/deskhand/internal/config"
	"github.com/vantrigo/deskhand/internal/locator"
	"github.com/vantrigo/deskhand/internal/observability"
)

var outputJSON = jsoniter.ConfigCompatibleWithStandardLibrary

func newFindCmd() *cobra.Command {
	findCmd := &cobra.Command{
		Use:   "find --template <image>",
		Short: "Locate a template on screen or in a frame file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromCommand(cmd)
			if err != nil {
				return err
			}

			if framePath, _ := cmd.Flags().GetString("frame"); framePath != "" {
				return findInFrame(cmd, cfg, framePath)
			}
			return findLive(cmd, cfg)
		},
	}

	findCmd.Flags().StringP("template", "t", "", "template image to search for")
	findCmd.Flags().StringP("frame", "f", "", "search this frame file instead of a live capture")
	findCmd.Flags().Bool("all", false, "report every match instead of the best one")
	findCmd.Flags().Bool("multiscale", false, "search across the configured scale ladder")
	findCmd.Flags().Float64("threshold", 0, "confidence floor override")
	findCmd.Flags().Int("max-results", 0, "cap on matches reported with --all")
	findCmd.Flags().String("template-dir", "", "directory resolving relative template paths")
	_ = findCmd.MarkFlagRequired("template")
	findCmd.MarkFlagsMutuallyExclusive("all", "multiscale")
	return findCmd
}

// findInFrame searches a frame already on disk. No backend is started.
func findInFrame(cmd *cobra.Command, cfg config.Interface, framePath string) error {
	logger := observability.GetLogger()

	tplPath, _ := cmd.Flags().GetString("template")
	if dir, _ := cmd.Flags().GetString("template-dir"); dir != "" && !filepath.IsAbs(tplPath) {
		tplPath = filepath.Join(dir, tplPath)
	}
	tpl, err := locator.LoadTemplate(tplPath)
	if err != nil {
		return err
	}
	frame, err := loadFrame(framePath)
	if err != nil {
		return err
	}

	loc, err := newLocator(cfg, logger)
	if err != nil {
		return err
	}

	var matchOpts []locator.MatchOption
	if cmd.Flags().Changed("threshold") {
		t, _ := cmd.Flags().GetFloat64("threshold")
		matchOpts = append(matchOpts, locator.WithThreshold(t))
	}
	if cmd.Flags().Changed("max-results") {
		n, _ := cmd.Flags().GetInt("max-results")
		matchOpts = append(matchOpts, locator.WithMaxResults(n))
	}

	if all, _ := cmd.Flags().GetBool("all"); all {
		matches, err := loc.FindAll(frame, tpl, matchOpts...)
		if err != nil {
			return err
		}
		return writeMatches(cmd.OutOrStdout(), matches)
	}

	var m *locator.MatchResult
	if multiscale, _ := cmd.Flags().GetBool("multiscale"); multiscale {
		m, err = loc.FindMultiscale(frame, tpl, matchOpts...)
	} else {
		m, err = loc.Find(frame, tpl, matchOpts...)
	}
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("template %q not found in %s", tplPath, framePath)
	}
	return writeJSON(cmd.OutOrStdout(), m)
}

// findLive captures one frame from the backend and searches it.
func findLive(cmd *cobra.Command, cfg config.Interface) error {
	ctx := cmd.Context()
	logger := observability.GetLogger()

	opts, err := backendOptions(cmd)
	if err != nil {
		return err
	}

	comps, err := initializeComponents(ctx, cfg, opts, logger)
	if err != nil {
		if comps != nil {
			comps.Shutdown()
		}
		return fmt.Errorf("failed to initialize components: %w", err)
	}
	defer comps.Shutdown()

	tplPath, _ := cmd.Flags().GetString("template")

	var findOpts []automation.FindOption
	if cmd.Flags().Changed("threshold") {
		t, _ := cmd.Flags().GetFloat64("threshold")
		findOpts = append(findOpts, automation.WithThreshold(t))
	}
	if cmd.Flags().Changed("max-results") {
		n, _ := cmd.Flags().GetInt("max-results")
		findOpts = append(findOpts, automation.WithMaxResults(n))
	}
	if multiscale, _ := cmd.Flags().GetBool("multiscale"); multiscale {
		findOpts = append(findOpts, automation.WithMultiscale())
	}

	if all, _ := cmd.Flags().GetBool("all"); all {
		matches, err := comps.Handle.FindAll(ctx, tplPath, findOpts...)
		if err != nil {
			return err
		}
		return writeMatches(cmd.OutOrStdout(), matches)
	}

	m, err := comps.Handle.Find(ctx, tplPath, findOpts...)
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("%w: %s", automation.ErrTargetNotFound, tplPath)
	}
	return writeJSON(cmd.OutOrStdout(), m)
}

// loadFrame reads a frame image from disk.
func loadFrame(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open frame %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode frame %s: %w", path, err)
	}
	return img, nil
}

// writeMatches reports a match list. An empty result is an empty JSON
// array, not an error; callers asked for all matches, even zero.
func writeMatches(out io.Writer, matches []locator.MatchResult) error {
	if matches == nil {
		matches = []locator.MatchResult{}
	}
	return writeJSON(out, matches)
}

func writeJSON(out io.Writer, v any) error {
	data, err := outputJSON.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}
