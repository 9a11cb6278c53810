package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	. "github.com/smartystreets/goconvey/convey"
)

func TestIssueAndVerify(t *testing.T) {
	Convey("Given an issuer and a verifier sharing a secret", t, func() {
		iss, err := NewIssuer("s3cret", time.Hour)
		So(err, ShouldBeNil)
		ver, err := NewVerifier("s3cret")
		So(err, ShouldBeNil)

		Convey("Then an issued token verifies to its owner", func() {
			tok, err := iss.Issue("alice")
			So(err, ShouldBeNil)
			owner, err := ver.Verify(tok)
			So(err, ShouldBeNil)
			So(owner, ShouldEqual, "alice")
		})

		Convey("Then a token signed with another secret is rejected", func() {
			other, _ := NewIssuer("other", time.Hour)
			tok, _ := other.Issue("alice")
			_, err := ver.Verify(tok)
			So(errors.Is(err, ErrInvalidToken), ShouldBeTrue)
		})

		Convey("Then an expired token is rejected", func() {
			iss.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
			tok, _ := iss.Issue("alice")
			_, err := ver.Verify(tok)
			So(errors.Is(err, ErrInvalidToken), ShouldBeTrue)
		})

		Convey("Then a token without subject is rejected", func() {
			tok, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{}).SignedString([]byte("s3cret"))
			_, err := ver.Verify(tok)
			So(errors.Is(err, ErrInvalidToken), ShouldBeTrue)
		})

		Convey("Then an empty owner cannot be issued", func() {
			_, err := iss.Issue("")
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Given an empty secret", t, func() {
		_, err := NewVerifier("")
		So(err, ShouldEqual, ErrNoSecret)
		_, err = NewIssuer("", 0)
		So(err, ShouldEqual, ErrNoSecret)
	})
}

func TestMiddleware(t *testing.T) {
	Convey("Given a protected handler", t, func() {
		ver, _ := NewVerifier("s3cret")
		iss, _ := NewIssuer("s3cret", time.Hour)
		var seen string
		h := ver.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = OwnerFrom(r.Context())
			w.WriteHeader(http.StatusNoContent)
		}))

		call := func(header string) *httptest.ResponseRecorder {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/models", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			return rec
		}

		Convey("When the bearer token is valid", func() {
			tok, _ := iss.Issue("bob")
			rec := call("Bearer " + tok)

			Convey("Then the owner reaches the handler", func() {
				So(rec.Code, ShouldEqual, http.StatusNoContent)
				So(seen, ShouldEqual, "bob")
			})
		})

		Convey("When the header is missing or malformed", func() {
			So(call("").Code, ShouldEqual, http.StatusUnauthorized)
			So(call("Basic abc").Code, ShouldEqual, http.StatusUnauthorized)
			So(call("Bearer nope").Code, ShouldEqual, http.StatusUnauthorized)
			So(call("Bearer nope").Header().Get("WWW-Authenticate"), ShouldNotBeEmpty)
			So(seen, ShouldBeEmpty)
		})
	})
}
