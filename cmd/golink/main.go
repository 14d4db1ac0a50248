// Command golink resolves a product's affiliate redirect and runs the same
// countdown the interstitial page shows. Enter continues, Ctrl-C cancels.
//
//	golink [-api http://localhost:8080] prod_001
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"lookbook/api/gate"
	"lookbook/api/logging"
)

func main() {
	_ = godotenv.Load()
	logging.Init(os.Getenv("LOG_LEVEL"), true)

	apiURL := flag.String("api", envOr("LOOKBOOK_API_URL", "http://localhost:8080"), "API base URL")
	uid := flag.String("uid", "", "user id recorded with the click")
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: golink [-api URL] [-uid ID] <productId>")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := resolve(ctx, &http.Client{Timeout: 10 * time.Second}, *apiURL, flag.Arg(0), *uid)
	if err != nil {
		log.Fatal().Err(err).Msg("could not resolve redirect")
	}
	if !d.Redirecting() {
		fmt.Fprintf(os.Stderr, "%s (%s)\n", d.Message, d.ErrorKind)
		os.Exit(1)
	}

	state := run(ctx, d, os.Stdin, os.Stdout)
	if state != gate.Navigated {
		fmt.Println("Redirect cancelled.")
		os.Exit(130)
	}
	fmt.Println(d.Destination)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// resolve asks the API's redirect gate for a decision. Error decisions are
// returned with a nil error; only transport failures are errors.
func resolve(ctx context.Context, client *http.Client, apiURL, productID, uid string) (gate.Decision, error) {
	endpoint := strings.TrimRight(apiURL, "/") + "/api/go/" + url.PathEscape(productID)
	if uid != "" {
		endpoint += "?" + url.Values{"uid": {uid}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return gate.Decision{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return gate.Decision{}, fmt.Errorf("get %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	var d gate.Decision
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		return gate.Decision{}, fmt.Errorf("decode decision (%s): %w", resp.Status, err)
	}
	if d.State == "" {
		return gate.Decision{}, errors.New("empty decision from " + endpoint)
	}
	return d, nil
}

// run shows the countdown on out and settles it from in (a line continues)
// or ctx (cancelled). It returns the final state.
func run(ctx context.Context, d gate.Decision, in io.Reader, out io.Writer) gate.CountdownState {
	countdown := time.Duration(d.CountdownSeconds) * time.Second
	fmt.Fprintf(out, "Taking you to %s for %q in %s. Press Enter to go now, Ctrl-C to cancel.\n",
		d.Retailer, d.ProductName, countdown)

	cd := gate.NewCountdown(countdown, func(remaining time.Duration) {
		fmt.Fprintf(out, "  %s...\n", remaining)
	})
	cd.Start(ctx)

	go func() {
		if _, err := bufio.NewReader(in).ReadString('\n'); err == nil {
			cd.Continue()
		}
	}()

	return cd.Wait()
}
