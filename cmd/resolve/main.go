// Command resolve is an example client: it fetches a node's signed packet
// from a relay and prints the records it carries.
package main

import (
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/pkarrdns/pkarrdns/internal/pkarr"
	"github.com/pkarrdns/pkarrdns/internal/zkey"
	"github.com/spf13/cobra"
)

func main() {
	var relayURL string

	cmd := &cobra.Command{
		Use:   "resolve <z32-key>",
		Short: "Fetch and print a node's published record set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := zkey.Parse(args[0])
			if err != nil {
				return err
			}

			url := fmt.Sprintf("%s/pkarr/%s", relayURL, key)
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, url, nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("relay returned %s", resp.Status)
			}
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}

			signed, err := pkarr.VerifyAndProject(key, body)
			if err != nil {
				return err
			}

			fmt.Printf("key:       %s\n", key)
			fmt.Printf("timestamp: %d\n", signed.TimestampMicros)
			for _, rr := range signed.Message.Answers {
				if rr.Type.String() == "TXT" {
					segments, err := rr.TXTSegments()
					if err == nil {
						fmt.Printf("  %s %s TTL=%d %q\n", rr.Name, rr.Type, rr.TTL, segments)
						continue
					}
				}
				fmt.Printf("  %s %s TTL=%d (%d rdata bytes)\n", rr.Name, rr.Type, rr.TTL, len(rr.RData))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&relayURL, "relay", "http://localhost:8080", "relay base URL")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
