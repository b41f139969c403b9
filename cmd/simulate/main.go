package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

// simulate reproduz o fluxo de um lead: clica num botão e depois o Instantly
// manda o webhook de link_clicked (ou o contrário com --webhook-first).
func main() {
	var (
		target       string
		email        string
		choice       string
		account      string
		campaign     string
		emailID      string
		step         int
		webhookFirst bool
		gap          time.Duration
	)

	rootCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Send a click and a link_clicked webhook to a running correlator",
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" {
				return fmt.Errorf("--email is required")
			}
			hc := &http.Client{Timeout: 10 * time.Second}
			ctx := cmd.Context()

			click := func() error {
				q := url.Values{"email": {email}}
				u := fmt.Sprintf("%s/%s?%s", target, choice, q.Encode())
				return send(ctx, hc, http.MethodGet, u, nil)
			}
			webhook := func() error {
				payload := map[string]any{
					"event_type":    "link_clicked",
					"lead_email":    email,
					"email_account": account,
					"campaign_id":   campaign,
				}
				if emailID != "" {
					payload["email_id"] = emailID
				}
				if step > 0 {
					payload["step"] = step
				}
				body, err := json.Marshal(payload)
				if err != nil {
					return err
				}
				return send(ctx, hc, http.MethodPost, target+"/webhook/instantly", body)
			}

			first, second := click, webhook
			if webhookFirst {
				first, second = webhook, click
			}
			if err := first(); err != nil {
				return err
			}
			time.Sleep(gap)
			return second()
		},
	}

	f := rootCmd.Flags()
	f.StringVar(&target, "target", "http://localhost:8080", "correlator base URL")
	f.StringVar(&email, "email", "", "lead email")
	f.StringVar(&choice, "choice", "close", "button path (close, settle, never, time, human)")
	f.StringVar(&account, "account", "", "sending account (email_account)")
	f.StringVar(&campaign, "campaign", "", "campaign id")
	f.StringVar(&emailID, "email-id", "", "embedded email id")
	f.IntVar(&step, "step", 0, "sequence step")
	f.BoolVar(&webhookFirst, "webhook-first", false, "send the webhook before the click")
	f.DurationVar(&gap, "gap", 500*time.Millisecond, "pause between the two requests")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func send(ctx context.Context, hc *http.Client, method, u string, body []byte) error {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, u, err)
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	fmt.Printf("%s %s -> %d %s\n", method, u, resp.StatusCode, bytes.TrimSpace(out))
	return nil
}
