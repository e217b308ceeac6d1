package msgxwhatsapp

import (
	"encoding/json"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/Abraxas-365/wabridge/errx"
	"github.com/Abraxas-365/wabridge/msgx"
)

// Graph error codes, grouped by how a sender should react.
// https://developers.facebook.com/docs/whatsapp/cloud-api/support/error-codes
var (
	throttlingCodes  = []int{4, 80007, 130429, 131048, 131056, 133016}
	unreachableCodes = []int{131021, 131026, 131030, 131047, 131051}
	transientCodes   = []int{1, 2, 131000, 131016}
	authCodes        = []int{0, 10, 190}
)

// subcode 2018001 on code 100: "no matching user found"
const unknownUserSubcode = 2018001

type graphErrorResponse struct {
	Error graphError `json:"error"`
}

type graphError struct {
	Message      string `json:"message"`
	Type         string `json:"type"`
	Code         int    `json:"code"`
	ErrorSubcode int    `json:"error_subcode"`
	ErrorData    struct {
		Details string `json:"details"`
	} `json:"error_data"`
	FBTraceID string `json:"fbtrace_id"`
}

func (g graphError) present() bool {
	return g.Message != "" || g.Type != "" || g.Code != 0
}

// classifyAPIError maps a non-2xx Graph response onto the delivery taxonomy
func classifyAPIError(status int, body []byte) *errx.Error {
	var resp graphErrorResponse
	_ = json.Unmarshal(body, &resp)
	g := resp.Error

	code := classifyCode(status, g)
	err := msgx.DeliveryRegistry.New(code).
		WithDetail("provider", whatsappProvider).
		WithDetail("http_status", status)

	if g.present() {
		err.WithDetail("graph_code", g.Code)
		if g.ErrorSubcode != 0 {
			err.WithDetail("graph_subcode", g.ErrorSubcode)
		}
		if g.Message != "" {
			err.WithDetail("graph_message", g.Message)
		}
		if g.ErrorData.Details != "" {
			err.WithDetail("graph_details", g.ErrorData.Details)
		}
		if g.FBTraceID != "" {
			err.WithDetail("fbtrace_id", g.FBTraceID)
		}
	} else if len(body) > 0 {
		err.WithDetail("response_body", truncate(string(body), 512))
	}
	return err
}

func classifyCode(status int, g graphError) errx.Code {
	if g.present() {
		switch {
		case slices.Contains(throttlingCodes, g.Code):
			return msgx.ErrRateLimited
		case slices.Contains(unreachableCodes, g.Code),
			g.Code == 100 && g.ErrorSubcode == unknownUserSubcode:
			return msgx.ErrRecipientUnreachable
		case slices.Contains(transientCodes, g.Code):
			return msgx.ErrTransientNetwork
		case slices.Contains(authCodes, g.Code), g.Code >= 200 && g.Code <= 299:
			if g.Code != 0 || status == http.StatusUnauthorized || status == http.StatusForbidden {
				return msgx.ErrAuth
			}
		}
	}

	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return msgx.ErrAuth
	case status == http.StatusTooManyRequests:
		return msgx.ErrRateLimited
	case status >= 500:
		return msgx.ErrTransientNetwork
	default:
		return msgx.ErrRejected
	}
}

// parseRetryAfter understands both delta-seconds and HTTP-date forms
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
