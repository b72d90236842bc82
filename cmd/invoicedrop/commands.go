package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/InvoiceDrop/internal/batch"
	"github.com/dharsanguruparan/InvoiceDrop/internal/events"
	"github.com/dharsanguruparan/InvoiceDrop/internal/model"
	"github.com/dharsanguruparan/InvoiceDrop/internal/pdfsplit"
)

func newIngestCmd() *cobra.Command {
	var batchID string
	cmd := &cobra.Command{
		Use:   "ingest FILE...",
		Short: "Upload files into a new batch, or into --batch",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var res batch.IngestResult
			if err := newClient().upload(cmd.Context(), "/batches", batchID, args, &res); err != nil {
				return err
			}
			fmt.Printf("batch %s: %d files accepted\n", res.BatchID, len(res.Accepted))
			for _, id := range res.Accepted {
				fmt.Printf("  %s\n", id)
			}
			for _, r := range res.Rejected {
				fmt.Printf("  rejected %s: %s\n", r.Name, r.Reason)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&batchID, "batch", "", "Add the files to an existing batch")
	return cmd
}

func newStatusCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status BATCH_ID",
		Short: "Show a batch and its files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var state model.BatchState
			if err := newClient().call(cmd.Context(), http.MethodGet, "/batches/"+args[0], nil, "", &state); err != nil {
				return err
			}
			if asJSON {
				return printJSON(state)
			}
			printState(&state)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw JSON state")
	return cmd
}

func printState(s *model.BatchState) {
	fmt.Printf("batch %s  %s  %d/%d processed\n", s.Batch.ID, s.Batch.Status, s.Batch.ProcessedFiles, s.Batch.TotalFiles)
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tSUPPLIER\tNOTE")
	for _, f := range s.Files {
		note := strings.Join(f.Warnings, "; ")
		if f.ErrorMessage != nil {
			note = *f.ErrorMessage
		}
		if f.PaymentRequired && f.PaymentAmount == nil {
			note = strings.TrimPrefix(note+"; needs EUR payment amount", "; ")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", f.ID, f.Name, f.Status, f.Supplier, note)
	}
	tw.Flush()
}

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch BATCH_ID",
		Short: "Stream status updates of a batch until it settles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wsURL := "ws" + strings.TrimPrefix(strings.TrimRight(apiURL, "/"), "http") + "/batches/" + args[0] + "/events"
			conn, _, err := websocket.DefaultDialer.DialContext(cmd.Context(), wsURL, nil)
			if err != nil {
				return fmt.Errorf("connect %s: %w", wsURL, err)
			}
			defer conn.Close()
			go func() {
				<-cmd.Context().Done()
				conn.Close()
			}()
			for {
				_, data, err := conn.ReadMessage()
				if err != nil {
					if cmd.Context().Err() != nil {
						return nil
					}
					return err
				}
				var ev events.Event
				if err := json.Unmarshal(data, &ev); err != nil || ev.Payload == nil {
					continue
				}
				printState(ev.Payload)
				switch ev.Payload.Batch.Status {
				case model.BatchCompleted, model.BatchFailed, model.BatchCancelled:
					return nil
				}
			}
		},
	}
}

func newProcessCmd() *cobra.Command {
	var pairs []string
	cmd := &cobra.Command{
		Use:   "process BATCH_ID",
		Short: "Start parsing every uploaded file of a batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			adj, err := parseAdjustments(pairs)
			if err != nil {
				return err
			}
			var res batch.StartResult
			body := map[string]any{"payment_adjustments": adj}
			if err := newClient().postJSON(cmd.Context(), "/batches/"+args[0]+"/process", body, &res); err != nil {
				return err
			}
			fmt.Printf("accepted=%t dispatched=%d\n", res.Accepted, res.Dispatched)
			for _, r := range res.Rejected {
				fmt.Printf("  adjustment for %s rejected: %s\n", r.Name, r.Reason)
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&pairs, "pay", nil, "EUR amount actually paid, as FILE_ID=AMOUNT (repeatable)")
	return cmd
}

func newCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel BATCH_ID",
		Short: "Cancel a batch that has not started processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var state model.BatchState
			if err := newClient().postJSON(cmd.Context(), "/batches/"+args[0]+"/cancel", nil, &state); err != nil {
				return err
			}
			printState(&state)
			return nil
		},
	}
}

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm BATCH_ID FILE_ID",
		Short: "Remove an uploaded or failed file from a batch",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var state model.BatchState
			path := "/batches/" + args[0] + "/files/" + args[1]
			if err := newClient().call(cmd.Context(), http.MethodDelete, path, nil, "", &state); err != nil {
				return err
			}
			printState(&state)
			return nil
		},
	}
}

func newThumbnailsCmd() *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "thumbnails BATCH_ID FILE_ID",
		Short: "Write one preview per page of a PDF file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var pages []pdfsplit.Page
			path := "/batches/" + args[0] + "/files/" + args[1] + "/thumbnails"
			if err := newClient().call(cmd.Context(), http.MethodGet, path, nil, "", &pages); err != nil {
				return err
			}
			if err := os.MkdirAll(outDir, 0o750); err != nil {
				return err
			}
			for _, p := range pages {
				name := filepath.Join(outDir, fmt.Sprintf("%s_page%d.pdf", args[1], p.Number))
				if err := os.WriteFile(name, p.Data, 0o640); err != nil {
					return err
				}
				fmt.Println(name)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "Directory for the page previews")
	return cmd
}

func newSplitCmd() *cobra.Command {
	var ranges []string
	cmd := &cobra.Command{
		Use:   "split BATCH_ID FILE_ID",
		Short: "Split a PDF into one file per page, or per --range",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"mode": batch.SplitPerPage}
			if len(ranges) > 0 {
				body = map[string]any{"mode": batch.SplitCustom, "page_ranges": ranges}
			}
			var res batch.SplitResult
			path := "/batches/" + args[0] + "/files/" + args[1] + "/split"
			if err := newClient().postJSON(cmd.Context(), path, body, &res); err != nil {
				return err
			}
			fmt.Printf("split into %d files\n", res.SplitCount)
			for _, f := range res.Files {
				fmt.Printf("  %s  %s  pages %s\n", f.ID, f.Name, f.PageRange)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&ranges, "range", "r", nil, `Page ranges such as "1", "2-4" (repeatable or comma separated)`)
	return cmd
}

func newMaterializeCmd() *cobra.Command {
	var pairs []string
	cmd := &cobra.Command{
		Use:   "materialize BATCH_ID",
		Short: "Create invoices for every parsed, reviewed or adjusted file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			adj, err := parseAdjustments(pairs)
			if err != nil {
				return err
			}
			var res batch.MaterializeResult
			body := map[string]any{"payment_adjustments": adj}
			if err := newClient().postJSON(cmd.Context(), "/batches/"+args[0]+"/materialize", body, &res); err != nil {
				return err
			}
			fmt.Println(res.Message)
			for _, s := range res.Skipped {
				fmt.Printf("  skipped %s: %s\n", s.Name, s.Reason)
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&pairs, "pay", nil, "EUR amount actually paid, as FILE_ID=AMOUNT (repeatable)")
	return cmd
}

func newLinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "link BATCH_ID FILE_ID",
		Short: "Print a short-lived download link for the original document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var res struct {
				URL       string `json:"url"`
				DirectURL string `json:"direct_url"`
			}
			path := "/batches/" + args[0] + "/files/" + args[1] + "/signed-url"
			if err := newClient().call(cmd.Context(), http.MethodGet, path, nil, "", &res); err != nil {
				return err
			}
			fmt.Println(strings.TrimRight(apiURL, "/") + res.URL)
			if res.DirectURL != "" {
				fmt.Println(res.DirectURL)
			}
			return nil
		},
	}
}
