package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/erazemk/zavod/internal/export"
	"github.com/erazemk/zavod/internal/model"
	"github.com/erazemk/zavod/internal/store"
)

func newExportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export data to spreadsheets",
	}

	var code, out, status string
	inventory := &cobra.Command{
		Use:   "inventory",
		Short: "Write an institute's inventory to an XLSX workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var f store.InventoryFilter
			if status != "" {
				st, err := model.ParseInventoryStatus(status)
				if err != nil {
					return err
				}
				f.Status = st
			}

			database, err := openExisting(cmd.Context())
			if err != nil {
				return err
			}
			defer database.Close()

			inst, err := store.GetInstituteByCode(cmd.Context(), database, code)
			if err != nil {
				return err
			}
			if inst == nil {
				return fmt.Errorf("institute %q not found", code)
			}

			items, err := store.ListAllInventory(cmd.Context(), database, inst.ID, f)
			if err != nil {
				return err
			}

			file, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("creating %s: %w", out, err)
			}
			if err := export.InventoryXLSX(file, items); err != nil {
				file.Close()
				return fmt.Errorf("writing workbook: %w", err)
			}
			if err := file.Close(); err != nil {
				return fmt.Errorf("closing %s: %w", out, err)
			}

			slog.Info("inventory exported", "institute", inst.Code, "rows", len(items), "file", out)
			return nil
		},
	}
	inventory.Flags().StringP("db", "d", "", "SQLite database path (overrides database.path)")
	inventory.Flags().StringVar(&code, "institute", "", "institute code (required)")
	inventory.Flags().StringVarP(&out, "out", "o", "inventory.xlsx", "output file")
	inventory.Flags().StringVar(&status, "status", "", "only rows with this status")
	inventory.MarkFlagRequired("institute")

	cmd.AddCommand(inventory)
	return cmd
}
