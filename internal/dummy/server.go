// Package dummy serves a small stand-in for the booking site so runs can be
// tried locally without hitting a real deployment.
package dummy

import (
	"context"
	"errors"
	"fmt"
	"html"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"time"
)

// Offer is one flight listed by /reserve.php.
type Offer struct {
	Flight  string
	Airline string
	Price   string
}

// DefaultOffers mirrors the public demo site, plus a Singapore Airlines flight.
var DefaultOffers = []Offer{
	{Flight: "43", Airline: "Virgin America", Price: "472.56"},
	{Flight: "234", Airline: "United Airlines", Price: "432.98"},
	{Flight: "9696", Airline: "Aer Lingus", Price: "200.98"},
	{Flight: "12", Airline: "Virgin America", Price: "765.32"},
	{Flight: "4346", Airline: "Lufthansa", Price: "233.98"},
	{Flight: "321", Airline: "Singapore Airlines", Price: "812.40"},
}

const DefaultMarker = "Thank you for your purchase today!"

type Options struct {
	Offers []Offer
	Marker string

	// Latency plus up to Jitter of extra delay is added to every response.
	Latency time.Duration
	Jitter  time.Duration

	// FailureRatio is the share of requests answered with a 500.
	FailureRatio float64
}

func (o Options) withDefaults() Options {
	if o.Offers == nil {
		o.Offers = DefaultOffers
	}
	if o.Marker == "" {
		o.Marker = DefaultMarker
	}
	return o
}

// Handler serves /reserve.php, /purchase.php and /confirmation.php.
func Handler(opts Options) http.Handler {
	opts = opts.withDefaults()
	mux := http.NewServeMux()

	mux.HandleFunc("POST /reserve.php", func(w http.ResponseWriter, r *http.Request) {
		if !delay(w, r, opts) {
			return
		}
		from, to := r.PostFormValue("fromPort"), r.PostFormValue("toPort")
		if from == "" || to == "" {
			http.Error(w, "fromPort and toPort are required", http.StatusBadRequest)
			return
		}

		var b strings.Builder
		fmt.Fprintf(&b, "<html><body><h3>Flights from %s to %s:</h3>\n<table class=\"table\">\n",
			html.EscapeString(from), html.EscapeString(to))
		for _, o := range opts.Offers {
			fmt.Fprintf(&b, `<tr><td><form name="VA%[1]s" method="post" action="purchase.php">
  <input type="submit" class="btn btn-small" value="Choose This Flight">
  <input type="hidden" value="%[1]s" name="flight">
  <input type="hidden" value="%[3]s" name="price">
  <input type="hidden" value="%[2]s" name="airline">
  <input type="hidden" value="%[4]s" name="fromPort">
  <input type="hidden" value="%[5]s" name="toPort">
</form></td><td>%[1]s</td><td>%[2]s</td><td>$%[3]s</td></tr>
`, html.EscapeString(o.Flight), html.EscapeString(o.Airline), html.EscapeString(o.Price),
				html.EscapeString(from), html.EscapeString(to))
		}
		b.WriteString("</table></body></html>\n")
		w.Header().Set("Content-Type", "text/html; charset=UTF-8")
		fmt.Fprint(w, b.String())
	})

	mux.HandleFunc("POST /purchase.php", func(w http.ResponseWriter, r *http.Request) {
		if !delay(w, r, opts) {
			return
		}
		for _, f := range []string{"flight", "price", "airline"} {
			if r.PostFormValue(f) == "" {
				http.Error(w, f+" is required", http.StatusBadRequest)
				return
			}
		}
		w.Header().Set("Content-Type", "text/html; charset=UTF-8")
		fmt.Fprintf(w, `<html><body><h2>Your flight from %s to %s has been reserved.</h2>
<p>Airline: %s</p><p>Flight Number: %s</p><p>Price: %s</p>
<form action="confirmation.php" method="post"><input type="hidden" name="_token" value="">
<input type="submit" class="btn btn-primary" value="Purchase Flight"></form></body></html>
`, html.EscapeString(r.PostFormValue("fromPort")), html.EscapeString(r.PostFormValue("toPort")),
			html.EscapeString(r.PostFormValue("airline")), html.EscapeString(r.PostFormValue("flight")),
			html.EscapeString(r.PostFormValue("price")))
	})

	mux.HandleFunc("POST /confirmation.php", func(w http.ResponseWriter, r *http.Request) {
		if !delay(w, r, opts) {
			return
		}
		if r.PostFormValue("creditCardNumber") == "" {
			http.Error(w, "creditCardNumber is required", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=UTF-8")
		fmt.Fprintf(w, `<html><body><h1>%s</h1>
<table class="table"><tr><td>Id</td><td>%d</td></tr><tr><td>Status</td><td>PendingCapture</td></tr>
<tr><td>Card Number</td><td>xxxxxxxxxxxx%s</td></tr></table></body></html>
`, html.EscapeString(opts.Marker), time.Now().UnixNano(), last4(r.PostFormValue("creditCardNumber")))
	})

	return mux
}

// delay applies the configured latency and failure injection. It reports
// false if the response has already been written.
func delay(w http.ResponseWriter, r *http.Request, opts Options) bool {
	d := opts.Latency
	if opts.Jitter > 0 {
		d += time.Duration(rand.Int63n(int64(opts.Jitter)))
	}
	if d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-r.Context().Done():
			return false
		case <-t.C:
		}
	}
	if opts.FailureRatio > 0 && rand.Float64() < opts.FailureRatio {
		http.Error(w, "500 Internal Server Error", http.StatusInternalServerError)
		return false
	}
	return true
}

func last4(s string) string {
	if len(s) <= 4 {
		return s
	}
	return s[len(s)-4:]
}

type ServerConfig struct {
	Port    int
	Options Options
}

// Start serves the stub site until ctx is done.
func Start(ctx context.Context, cfg ServerConfig) error {
	addr := fmt.Sprintf(":%d", cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("dummy: listen %s: %w", addr, err)
	}

	fmt.Printf("👻 Dummy booking site running on http://localhost%s\n", addr)
	fmt.Println("   Endpoints: POST /reserve.php, /purchase.php, /confirmation.php")

	server := &http.Server{
		Handler:           Handler(cfg.Options),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("dummy: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
