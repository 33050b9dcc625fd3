package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const timestampLayout = "2006-01-02T15:04:05Z"

// requestSignature is the set of request components the hosted checkout
// covers with its HMAC. The same values travel as headers.
type requestSignature struct {
	ClientID  string
	RequestID string
	Timestamp string
	Target    string
	Digest    string
}

func bodyDigest(body []byte) string {
	sum := sha256.Sum256(body)
	return base64.StdEncoding.EncodeToString(sum[:])
}

func (rs requestSignature) canonical() string {
	return strings.Join([]string{
		"Client-Id:" + rs.ClientID,
		"Request-Id:" + rs.RequestID,
		"Request-Timestamp:" + rs.Timestamp,
		"Request-Target:" + rs.Target,
		"Digest:" + rs.Digest,
	}, "\n")
}

func (rs requestSignature) sign(secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(rs.canonical()))
	return "HMACSHA256=" + base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// signRequest stamps req with a fresh request id and the signed headers for
// body. It returns the signature.
func signRequest(req *http.Request, creds *Credentials, body []byte, at time.Time) string {
	rs := requestSignature{
		ClientID:  creds.MerchantID,
		RequestID: uuid.NewString(),
		Timestamp: at.UTC().Format(timestampLayout),
		Target:    req.URL.Path,
		Digest:    bodyDigest(body),
	}
	signature := rs.sign(creds.MerchantKey)

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Client-Id", rs.ClientID)
	req.Header.Set("Request-Id", rs.RequestID)
	req.Header.Set("Request-Timestamp", rs.Timestamp)
	req.Header.Set("Digest", rs.Digest)
	req.Header.Set("Signature", signature)
	return signature
}
