package atlassian

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestCanonicalRequest(t *testing.T) {
	query := url.Values{
		"maxResults": {"10"},
		"expand":     {"names", "changelog"},
		"jql":        {"project = ABC & status ~ open*"},
		"jwt":        {"ignored"},
	}
	got := CanonicalRequest("get", "/rest/api/2/search/", query)
	want := "GET&/rest/api/2/search&expand=changelog,names&jql=project%20%3D%20ABC%20%26%20status%20~%20open%2A&maxResults=10"
	if got != want {
		t.Fatalf("canonical request mismatch\n got: %s\nwant: %s", got, want)
	}
	if got := CanonicalRequest("POST", "", nil); got != "POST&/&" {
		t.Fatalf("unexpected empty canonical request %q", got)
	}
	if got := canonicalPath("/a&b/"); got != "/a%26b" {
		t.Fatalf("unexpected canonical path %q", got)
	}
}

func TestSignRequestProducesVerifiableToken(t *testing.T) {
	now := time.Now()
	token, err := SignRequest("sentry.example.com.jira", "s3cret", "GET", "/rest/api/2/issue/ABC-1", nil, now)
	if err != nil {
		t.Fatalf("SignRequest: %v", err)
	}
	claims, err := ParseToken(token, "s3cret")
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.Issuer != "sentry.example.com.jira" {
		t.Fatalf("unexpected issuer %q", claims.Issuer)
	}
	if claims.QSH != QueryStringHash("GET", "/rest/api/2/issue/ABC-1", nil) {
		t.Fatalf("qsh mismatch")
	}
	if _, err := ParseToken(token, "other"); err == nil {
		t.Fatalf("expected verification failure with wrong secret")
	}
	if _, err := SignRequest("key", "", "GET", "/", nil, now); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}

func TestNewValidatesInput(t *testing.T) {
	if _, err := New("", "secret", "key"); err == nil {
		t.Fatalf("expected error for empty base url")
	}
	if _, err := New("ftp://jira.example.com", "secret", "key"); err == nil {
		t.Fatalf("expected error for unsupported scheme")
	}
	if _, err := New("https://jira.example.com", "", "key"); err == nil {
		t.Fatalf("expected error for empty secret")
	}
	if _, err := New("https://jira.example.com", "secret", " "); err == nil {
		t.Fatalf("expected error for empty app key")
	}
}

func TestDoSignsRequestAgainstBasePath(t *testing.T) {
	var gotMethod, gotPath, gotAuth, gotBody, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"10000"}`))
	}))
	defer srv.Close()

	cli, err := New(srv.URL+"/jira/", "s3cret", "app.jira", WithRetryMax(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	query := url.Values{"notifyUsers": {"false"}}
	resp, err := cli.Do(context.Background(), http.MethodPost, "/rest/api/2/issue/ABC-1/comment", query, map[string]string{"body": "hi"})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := resp.Decode(&out); err != nil || out.ID != "10000" {
		t.Fatalf("unexpected decode result %+v err=%v", out, err)
	}
	if gotMethod != http.MethodPost || gotPath != "/jira/rest/api/2/issue/ABC-1/comment" {
		t.Fatalf("unexpected request %s %s", gotMethod, gotPath)
	}
	if gotQuery != "notifyUsers=false" {
		t.Fatalf("unexpected query %q", gotQuery)
	}
	if gotBody != `{"body":"hi"}` {
		t.Fatalf("unexpected body %q", gotBody)
	}
	if !strings.HasPrefix(gotAuth, "JWT ") {
		t.Fatalf("unexpected authorization header %q", gotAuth)
	}
	claims, err := ParseToken(strings.TrimPrefix(gotAuth, "JWT "), "s3cret")
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.QSH != QueryStringHash(http.MethodPost, "/rest/api/2/issue/ABC-1/comment", query) {
		t.Fatalf("qsh does not match request")
	}
}

func TestDoReturnsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"errorMessages": []string{"Issue does not exist or you do not have permission to see it."},
			"errors":        map[string]string{"issue": "missing"},
		})
	}))
	defer srv.Close()

	cli, err := New(srv.URL, "s3cret", "app.jira", WithRetryMax(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = cli.Do(context.Background(), http.MethodGet, "/rest/api/2/issue/NOPE-1", nil, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusNotFound || len(apiErr.Messages) != 2 || apiErr.Messages[1] != "issue: missing" {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
}

func TestDoRetriesServerErrors(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cli, err := New(srv.URL, "s3cret", "app.jira", WithRetryMax(1))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	cli.http.RetryWaitMin = time.Millisecond
	cli.http.RetryWaitMax = time.Millisecond

	resp, err := cli.Do(context.Background(), http.MethodGet, "/rest/api/2/myself", nil, nil)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if attempts != 2 || resp.StatusCode != http.StatusNoContent || resp.Body != nil {
		t.Fatalf("unexpected result attempts=%d resp=%+v", attempts, resp)
	}
}

func TestDoDoesNotRetryPostOnServerError(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	cli, err := New(srv.URL, "s3cret", "app.jira", WithRetryMax(3))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	cli.http.RetryWaitMin = time.Millisecond
	cli.http.RetryWaitMax = time.Millisecond

	_, err = cli.Do(context.Background(), http.MethodPost, "/rest/api/2/issue/ABC-1/comment", nil, map[string]string{"body": "hello"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadGateway {
		t.Fatalf("expected 502 APIError, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected a single POST attempt, got %d", attempts)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func TestDoRetriesConnectionErrorsOnlyForIdempotentMethods(t *testing.T) {
	attempts := map[string]int{}
	transport := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		attempts[req.Method]++
		return nil, errors.New("connection reset by peer")
	})
	cli, err := New("https://example.atlassian.net", "s3cret", "app.jira",
		WithHTTPClient(&http.Client{Transport: transport}),
		WithRetryMax(2),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	cli.http.RetryWaitMin = time.Millisecond
	cli.http.RetryWaitMax = time.Millisecond

	if _, err := cli.Do(context.Background(), http.MethodPost, "/rest/api/2/issue/ABC-1/comment", nil, map[string]string{"body": "hello"}); err == nil {
		t.Fatalf("expected POST to fail")
	}
	if _, err := cli.Do(context.Background(), http.MethodGet, "/rest/api/2/issue/ABC-1", nil, nil); err == nil {
		t.Fatalf("expected GET to fail")
	}
	if attempts[http.MethodPost] != 1 {
		t.Fatalf("expected one POST attempt, got %d", attempts[http.MethodPost])
	}
	if attempts[http.MethodGet] != 3 {
		t.Fatalf("expected three GET attempts, got %d", attempts[http.MethodGet])
	}
}
