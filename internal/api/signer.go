package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	acceptHeader = "application/vnd.coldstash+json"
	apiKeyHeader = "X-Archive-Api-Key"

	authParams = `keyId="hmac-key-1",algorithm="hmac-sha256",headers="(request-line) host accept date"`
)

// canonicalString builds the text that gets signed: request line, host,
// accept and date, LF-separated. The path must include the query string
// and be relative to the host.
func canonicalString(method, path, host string, date time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "(request-line): %s %s\n", strings.ToLower(method), path)
	fmt.Fprintf(&b, "host: %s\n", host)
	fmt.Fprintf(&b, "accept: %s\n", acceptHeader)
	fmt.Fprintf(&b, "date: %s", date.UTC().Format(http.TimeFormat))
	return b.String()
}

// sign computes the base64 HMAC-SHA256 signature of msg.
func sign(secret, msg string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(msg))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// authorizationHeader assembles the Signature authorization value for
// one request.
func authorizationHeader(secret, method, path, host string, date time.Time) string {
	signature := sign(secret, canonicalString(method, path, host, date))
	return fmt.Sprintf(`Signature %s,signature="%s"`, authParams, signature)
}
