package dummy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"bookload/internal/extract"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func post(t *testing.T, srv *httptest.Server, path string, form url.Values) (int, string) {
	t.Helper()
	resp, err := srv.Client().PostForm(srv.URL+path, form)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(b)
}

func TestReserveListsExtractableOffers(t *testing.T) {
	srv := httptest.NewServer(Handler(Options{}))
	defer srv.Close()

	status, body := post(t, srv, "/reserve.php", url.Values{"fromPort": {"Paris"}, "toPort": {"London"}})
	require.Equal(t, http.StatusOK, status)

	recs := extract.Flights.Extract(body)
	require.Len(t, recs, len(DefaultOffers))
	for i, o := range DefaultOffers {
		assert.Equal(t, o.Flight, recs[i]["flight"])
		assert.Equal(t, o.Airline, recs[i]["airline"])
		assert.Equal(t, o.Price, recs[i]["price"])
		assert.Equal(t, "Paris", recs[i]["fromPort"])
		assert.Equal(t, "London", recs[i]["toPort"])
	}
}

func TestReserveRequiresRoute(t *testing.T) {
	srv := httptest.NewServer(Handler(Options{}))
	defer srv.Close()

	status, _ := post(t, srv, "/reserve.php", url.Values{"fromPort": {"Paris"}})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestPurchaseAndConfirm(t *testing.T) {
	srv := httptest.NewServer(Handler(Options{}))
	defer srv.Close()

	status, _ := post(t, srv, "/purchase.php", url.Values{"flight": {"43"}})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := post(t, srv, "/purchase.php", url.Values{
		"flight": {"43"}, "price": {"472.56"}, "airline": {"Virgin America"},
	})
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "Virgin America")

	status, body = post(t, srv, "/confirmation.php", url.Values{"creditCardNumber": {"4242424242424242"}})
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, DefaultMarker)
	assert.Contains(t, body, "xxxxxxxxxxxx4242")
}

func TestCustomMarkerAndOffers(t *testing.T) {
	srv := httptest.NewServer(Handler(Options{
		Marker: "Sold out",
		Offers: []Offer{},
	}))
	defer srv.Close()

	_, body := post(t, srv, "/reserve.php", url.Values{"fromPort": {"A"}, "toPort": {"B"}})
	assert.Empty(t, extract.Flights.Extract(body))

	_, body = post(t, srv, "/confirmation.php", url.Values{"creditCardNumber": {"1"}})
	assert.Contains(t, body, "Sold out")
	assert.False(t, strings.Contains(body, DefaultMarker))
}

func TestFailureInjection(t *testing.T) {
	srv := httptest.NewServer(Handler(Options{FailureRatio: 1}))
	defer srv.Close()

	status, _ := post(t, srv, "/reserve.php", url.Values{"fromPort": {"A"}, "toPort": {"B"}})
	assert.Equal(t, http.StatusInternalServerError, status)
}

func TestMethodNotAllowed(t *testing.T) {
	srv := httptest.NewServer(Handler(Options{}))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/reserve.php")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
