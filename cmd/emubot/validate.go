package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/nerrad567/emubot-core/internal/script"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate PATH...",
		Short: "Validate script documents",
		Long: `Validate script documents without running them. Each PATH may be a
file or a directory; directories are walked for .json, .yaml and .yml files.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := collectScriptFiles(args)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return fmt.Errorf("no script documents found")
			}

			out := cmd.OutOrStdout()
			invalid := 0
			for _, path := range files {
				s, decodeErr := script.DecodeFile(path)
				if decodeErr != nil {
					invalid++
					fmt.Fprintf(out, "%s %s: %v\n", color.RedString("FAIL"), path, decodeErr)
					continue
				}
				fmt.Fprintf(out, "%s   %s (%s, %d steps)\n", color.GreenString("ok"), path, s.Name, len(s.Steps))
			}

			if invalid > 0 {
				return fmt.Errorf("%d of %d documents invalid", invalid, len(files))
			}
			return nil
		},
	}
}

// collectScriptFiles expands directories into their script documents.
// Explicit file arguments are kept regardless of extension.
func collectScriptFiles(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		walkErr := filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			switch strings.ToLower(filepath.Ext(path)) {
			case ".json", ".yaml", ".yml":
				files = append(files, path)
			}
			return nil
		})
		if walkErr != nil {
			return nil, fmt.Errorf("walking %s: %w", p, walkErr)
		}
	}
	sort.Strings(files)
	return files, nil
}
