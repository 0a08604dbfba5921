package external

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCarrierLookupClient_ParsesMobileCarrier(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Write([]byte(`{"data":{"valid":true,"carrier":{"name":"Verizon","type":"mobile"}}}`))
	}))
	defer server.Close()

	client := NewCarrierLookupClient(server.URL, "test-key", time.Second)
	result, err := client.Validate(context.Background(), "+13055550100")

	require.NoError(t, err)
	assert.True(t, result.IsValid)
	assert.True(t, result.IsMobile)
	assert.Equal(t, "Verizon", result.Carrier)
}

func TestCarrierLookupClient_RejectsMalformedNumber(t *testing.T) {
	client := NewCarrierLookupClient("http://unused", "key", time.Second)

	_, err := client.Validate(context.Background(), "abc")

	assert.Error(t, err)
}

func TestDNCRegistryClient_ParsesCanContact(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"CLEAR","can_contact":true}`))
	}))
	defer server.Close()

	client := NewDNCRegistryClient(server.URL, "test-key", time.Second)
	result, err := client.Check(context.Background(), "+13055550100")

	require.NoError(t, err)
	assert.Equal(t, "CLEAR", result.Status)
	assert.True(t, result.CanContact)
}

func TestDemographicsClient_ParsesRecord(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"income":65000,"income_range":"50k-75k","age":34,"address":"123 Main St"}`))
	}))
	defer server.Close()

	client := NewDemographicsClient(server.URL, "test-key", time.Second)
	record, err := client.Lookup(context.Background(), "33101", "Miami", "FL")

	require.NoError(t, err)
	assert.Equal(t, 65000, record.Income)
	assert.Equal(t, 34, record.Age)
}

func TestDemographicsClient_FallsBackToHTMLTableWithoutAPIKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><table class="income-lookup">
			<tr><td class="label">Median Household Income</td><td class="value">$65,000</td></tr>
			<tr><td class="label">Income Range</td><td class="value">50k-75k</td></tr>
		</table></body></html>`))
	}))
	defer server.Close()

	client := NewDemographicsClient("", "", time.Second)
	client.HTMLFallbackURL = server.URL

	record, err := client.Lookup(context.Background(), "33101", "Miami", "FL")

	require.NoError(t, err)
	assert.Equal(t, 65000, record.Income)
	assert.Equal(t, "50k-75k", record.IncomeRange)
}
