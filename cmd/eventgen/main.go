// Command eventgen simulates storefront visitors against a running API.
// Every visitor batches its events through its own tracker buffer, exactly as
// the storefront does, and follows affiliate links through /go/:productId.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"lookbook/api/logging"
	"lookbook/api/models"
)

type options struct {
	APIURL      string
	SiteURL     string
	Users       int
	Concurrency int
	Duration    time.Duration
	Rate        float64
	Seed        uint64
}

func parseFlags() options {
	var o options
	flag.StringVar(&o.APIURL, "api", envOr("LOOKBOOK_API_URL", "http://localhost:8080"), "API base URL")
	flag.StringVar(&o.SiteURL, "site", "https://lookbook.example", "storefront origin used for page URLs")
	flag.IntVar(&o.Users, "users", 20, "number of visitors per round")
	flag.IntVar(&o.Concurrency, "concurrency", 5, "visitors browsing at the same time")
	flag.DurationVar(&o.Duration, "duration", time.Minute, "how long to generate traffic")
	flag.Float64Var(&o.Rate, "rate", 10, "new visitors per second")
	flag.Uint64Var(&o.Seed, "seed", 123, "random seed")
	flag.Parse()

	if o.Users <= 0 || o.Concurrency <= 0 || o.Rate <= 0 {
		log.Fatal().Msg("users, concurrency and rate must be positive")
	}
	return o
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	_ = godotenv.Load()
	logging.Init(envOr("LOG_LEVEL", "info"), true)
	opts := parseFlags()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, opts.Duration)
	defer cancel()

	client := &http.Client{
		Timeout: 10 * time.Second,
		// /go/:productId answers with a 302 to the retailer; it must not be followed.
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}

	root := gofakeit.New(opts.Seed)
	catalog, err := loadCatalog(ctx, client, opts.APIURL)
	if err != nil || len(catalog) == 0 {
		log.Warn().Err(err).Msg("catalog unavailable, using synthetic products")
		catalog = syntheticCatalog(root, 24)
	}
	log.Info().Int("products", len(catalog)).Str("api", opts.APIURL).Msg("generating traffic")

	var (
		pacer    = newPacer(opts.Rate)
		sem      = make(chan struct{}, opts.Concurrency)
		wg       sync.WaitGroup
		visitors int
	)
traffic:
	for round := 0; ctx.Err() == nil; round++ {
		for i := 0; i < opts.Users && ctx.Err() == nil; i++ {
			seed := opts.Seed + uint64(round*opts.Users+i) + 1
			// Wait also fails early when the next slot lies past the deadline.
			if err := pacer.Wait(ctx); err != nil {
				break traffic
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				continue
			}
			wg.Add(1)
			visitors++
			go func() {
				defer wg.Done()
				defer func() { <-sem }()

				v := newVisitor(gofakeit.New(seed), client, opts.APIURL, opts.SiteURL)
				if err := v.browse(ctx, catalog); err != nil {
					log.Debug().Err(err).Str("user", v.userID).Msg("visit ended early")
				}
			}()
		}
	}
	wg.Wait()
	log.Info().Int("visitors", visitors).Msg("done")
}

// newPacer admits perSecond new visitors each second, with up to a second's
// worth at startup.
func newPacer(perSecond float64) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(perSecond), max(1, int(perSecond)))
}

func loadCatalog(ctx context.Context, client *http.Client, apiURL string) ([]models.Product, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(apiURL, "/")+"/products?limit=100", nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list products: %s", resp.Status)
	}
	var products []models.Product
	if err := json.NewDecoder(resp.Body).Decode(&products); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}
	return products, nil
}

func syntheticCatalog(f *gofakeit.Faker, n int) []models.Product {
	out := make([]models.Product, n)
	for i := range out {
		out[i] = models.Product{
			ID:       fmt.Sprintf("prod_%03d", i+1),
			Name:     f.ProductName(),
			Category: f.ProductCategory(),
		}
	}
	return out
}
