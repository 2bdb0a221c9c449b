package swagger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/smartystreets/goconvey/convey"
)

func get(mux *http.ServeMux, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, path, http.NoBody))
	return rec
}

func TestRegister(t *testing.T) {
	convey.Convey("Given the docs routes on a mux", t, func() {
		mux := http.NewServeMux()
		Register(context.Background(), mux)

		convey.Convey("When the OpenAPI document is fetched", func() {
			rec := get(mux, http.MethodGet, "/openapi.yaml")

			convey.Convey("Then it documents every public route", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(rec.Header().Get("Content-Type"), convey.ShouldEqual, "application/yaml; charset=utf-8")
				for _, path := range []string{"/test:", "/prompts:", "/score:", "/stats:", "/healthz:"} {
					convey.So(rec.Body.String(), convey.ShouldContainSubstring, path)
				}
				convey.So(rec.Body.String(), convey.ShouldContainSubstring, "prosody_method")
			})
		})

		convey.Convey("When the docs page is fetched", func() {
			rec := get(mux, http.MethodGet, "/api-docs")

			convey.Convey("Then ReDoc is loaded from the CDN against the embedded document", func() {
				convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(rec.Header().Get("Content-Type"), convey.ShouldEqual, "text/html; charset=utf-8")
				convey.So(rec.Body.String(), convey.ShouldContainSubstring, "readaloud API Docs")
				convey.So(rec.Body.String(), convey.ShouldContainSubstring, redocCDN)
				convey.So(rec.Body.String(), convey.ShouldContainSubstring, "Redoc.init('/openapi.yaml'")
			})
		})

		convey.Convey("When the document is posted to", func() {
			rec := get(mux, http.MethodPost, "/openapi.yaml")

			convey.So(rec.Code, convey.ShouldEqual, http.StatusMethodNotAllowed)
		})
	})

	convey.Convey("Given a nil mux", t, func() {
		convey.So(func() { Register(context.Background(), nil) }, convey.ShouldPanic)
	})
}

func TestOpenAPIEmbedded(t *testing.T) {
	convey.Convey("The embedded document declares OpenAPI 3", t, func() {
		convey.So(string(OpenAPI), convey.ShouldStartWith, "openapi: 3")
	})
}
