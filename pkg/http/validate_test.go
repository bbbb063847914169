package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

type pageRequest struct {
	Token string `param:"token" json:"token" validate:"required"`
	Limit int    `query:"limit" json:"limit" default:"60" validate:"gte=1,lte=500"`
	Txs   int    `query:"txs" json:"txs" default:"100" validate:"gte=0,lte=1000"`
}

func bindPage(t *testing.T, target string) (*pageRequest, []ValidationError) {
	t.Helper()
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, target, nil), httptest.NewRecorder())
	c.SetParamNames("token")
	c.SetParamValues("mint")
	req := &pageRequest{}
	return req, ReadAndValidateRequest(c, req)
}

func TestReadAndValidateRequestDefaults(t *testing.T) {
	req, verr := bindPage(t, "/x")
	if verr != nil {
		t.Fatalf("errors %+v", verr)
	}
	if req.Token != "mint" || req.Limit != 60 || req.Txs != 100 {
		t.Fatalf("request %+v", req)
	}

	// an explicit zero is kept, not replaced by the default
	req, verr = bindPage(t, "/x?txs=0&limit=5")
	if verr != nil || req.Txs != 0 || req.Limit != 5 {
		t.Fatalf("request %+v errors %+v", req, verr)
	}
}

func TestReadAndValidateRequestErrors(t *testing.T) {
	cases := []struct {
		target string
		code   string
		field  string
	}{
		{"/x?limit=1000", "ERR_LTE", "limit"},
		{"/x?limit=0", "ERR_GTE", "limit"},
		{"/x?txs=-1", "ERR_GTE", "txs"},
		{"/x?limit=lots", "ERR_MALFORMED", "limit"},
	}
	for _, tc := range cases {
		_, verr := bindPage(t, tc.target)
		if len(verr) != 1 || verr[0].Code != tc.code || verr[0].Field != tc.field {
			t.Fatalf("%s: errors %+v", tc.target, verr)
		}
	}
}
