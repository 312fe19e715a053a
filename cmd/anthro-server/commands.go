package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/clinic/anthropometry/internal/domain/anthropometry"
)

func evaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate one request or a JSON array of requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			strict, _ := cmd.Flags().GetBool("strict")

			cfg, logger, err := loadConfig(os.Stderr)
			if err != nil {
				return err
			}
			svc, err := newService(cfg, logger)
			if err != nil {
				return err
			}

			data, err := readInput(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			return runEvaluate(cmd.Context(), svc, data, strict, cmd.OutOrStdout())
		},
	}
	cmd.Flags().String("file", "-", "JSON input file, - for stdin")
	cmd.Flags().Bool("strict", false, "reject incomplete measurement sets")
	return cmd
}

func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Reconcile the observations of one field",
		RunE: func(cmd *cobra.Command, args []string) error {
			field, _ := cmd.Flags().GetString("field")
			m1, _ := cmd.Flags().GetString("m1")
			m2, _ := cmd.Flags().GetString("m2")
			m3, _ := cmd.Flags().GetString("m3")

			cfg, logger, err := loadConfig(os.Stderr)
			if err != nil {
				return err
			}
			svc, err := newService(cfg, logger)
			if err != nil {
				return err
			}

			m, err := svc.ReconcileField(field, anthropometry.Observations(m1, m2, m3))
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), m)
		},
	}
	cmd.Flags().String("field", "", "catalog field key")
	cmd.Flags().String("m1", "", "first observation")
	cmd.Flags().String("m2", "", "second observation")
	cmd.Flags().String("m3", "", "third observation, used only when the first two disagree")
	cmd.MarkFlagRequired("field")
	return cmd
}

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Print the measurement field catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			category, _ := cmd.Flags().GetString("category")
			format, _ := cmd.Flags().GetString("output")

			cfg, logger, err := loadConfig(os.Stderr)
			if err != nil {
				return err
			}
			svc, err := newService(cfg, logger)
			if err != nil {
				return err
			}
			return printCatalog(cmd.OutOrStdout(), svc.Catalog(), category, format)
		},
	}
	cmd.Flags().String("category", "", "only fields of this category")
	cmd.Flags().StringP("output", "o", "yaml", "output format: yaml or json")
	return cmd
}

func readInput(stdin io.Reader, file string) ([]byte, error) {
	if file == "" || file == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return data, nil
}

// runEvaluate evaluates a single request object, or a batch when the input
// is a JSON array.
func runEvaluate(ctx context.Context, svc *anthropometry.Service, data []byte, strict bool, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty input")
	}

	if data[0] == '[' {
		var reqs []*anthropometry.EvaluationRequest
		if err := json.Unmarshal(data, &reqs); err != nil {
			return fmt.Errorf("decode batch: %w", err)
		}
		for _, r := range reqs {
			if r != nil {
				r.Sex = anthropometry.ParseSex(string(r.Sex))
				r.Strict = r.Strict || strict
			}
		}
		items, err := svc.EvaluateBatch(ctx, reqs)
		if err != nil {
			return err
		}
		return writeJSON(out, items)
	}

	var req anthropometry.EvaluationRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	req.Sex = anthropometry.ParseSex(string(req.Sex))
	req.Strict = req.Strict || strict
	ev, err := svc.Evaluate(ctx, &req)
	if err != nil {
		return err
	}
	return writeJSON(out, ev)
}

func printCatalog(out io.Writer, c *anthropometry.Catalog, category, format string) error {
	cat := anthropometry.Category(category)
	if cat != "" && !cat.Valid() {
		return fmt.Errorf("unknown category %q", category)
	}
	groups := c.GroupsOf(cat)

	switch format {
	case "json":
		return writeJSON(out, map[string]interface{}{"groups": groups})
	case "yaml", "":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(map[string]interface{}{"groups": groups}); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown output format %q", format)
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
