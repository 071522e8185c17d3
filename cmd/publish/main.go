// Command publish is an example client: it derives a node key from
// IROH_SECRET, signs a packet with one TXT record, and PUTs it to a relay.
package main

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/pkarrdns/pkarrdns/internal/dnswire"
	"github.com/pkarrdns/pkarrdns/internal/httpapi"
	"github.com/pkarrdns/pkarrdns/internal/pkarr"
	"github.com/pkarrdns/pkarrdns/internal/zkey"
	"github.com/spf13/cobra"
)

func main() {
	var relayURL, relayHint string

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Sign and publish a node record to a pkarr relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			priv, err := secretFromEnv()
			if err != nil {
				return err
			}
			pub, err := zkey.FromBytes(priv.Public().(ed25519.PublicKey))
			if err != nil {
				return err
			}

			msg := &dnswire.Message{
				Header: dnswire.Header{QR: true, AA: true},
				Answers: []dnswire.Record{
					dnswire.NewTXT(
						dnswire.Join("_iroh_node", dnswire.ParseName(pub.String())),
						30,
						fmt.Sprintf("node=%s relay=%s", pub, relayHint),
					),
				},
			}
			ts := uint64(time.Now().UnixMicro())
			signed, err := pkarr.Encode(priv, pub, ts, msg)
			if err != nil {
				return err
			}

			url := fmt.Sprintf("%s/pkarr/%s", relayURL, pub)
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPut, url, bytes.NewReader(signed.RelayBytes()))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", httpapi.ContentTypePkarr)

			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusNoContent {
				return fmt.Errorf("relay returned %s", resp.Status)
			}
			fmt.Printf("published %s (timestamp %d)\n", pub, ts)
			return nil
		},
	}
	cmd.Flags().StringVar(&relayURL, "relay", "http://localhost:8080", "relay base URL")
	cmd.Flags().StringVar(&relayHint, "relay-hint", "https://relay.example/", "home relay URL to advertise")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// secretFromEnv reads IROH_SECRET as a 32-byte Ed25519 seed, hex or z32.
func secretFromEnv() (ed25519.PrivateKey, error) {
	secret := os.Getenv("IROH_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("IROH_SECRET is not set")
	}
	seed, err := hex.DecodeString(secret)
	if err != nil || len(seed) != ed25519.SeedSize {
		k, zerr := zkey.Parse(secret)
		if zerr != nil {
			return nil, fmt.Errorf("IROH_SECRET is neither %d hex bytes nor z32", ed25519.SeedSize)
		}
		seed = k.Bytes()
	}
	return ed25519.NewKeyFromSeed(seed), nil
}
