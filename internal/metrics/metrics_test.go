package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveGate(t *testing.T) {
	before := testutil.ToFloat64(ItnGates.WithLabelValues("signature", "false"))
	ObserveGate("signature", false)
	assert.Equal(t, before+1, testutil.ToFloat64(ItnGates.WithLabelValues("signature", "false")))
}

func TestHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ItnOutcomes.WithLabelValues("settled").Inc()

	r := gin.New()
	r.GET("/metrics", Handler())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "payments_itn_outcomes_total")
}
