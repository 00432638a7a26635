package restyutil

import (
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Note is a caller supplied fact about an exchange, like what the response
// meant to the client that made it.
type Note struct {
	Key   string
	Value string
}

// Describer annotates the dump of a response.
type Describer func(res *resty.Response) []Note

// Dump is the record of one request/response exchange.
type Dump struct {
	Method          string
	URL             string
	RequestHeaders  http.Header
	RequestBody     string
	Status          int
	ResponseHeaders http.Header
	ResponseBody    string
	Elapsed         time.Duration
	Notes           []Note
}

func NewDump(res *resty.Response, describe Describer) Dump {
	d := Dump{
		Method:          res.Request.Method,
		URL:             res.Request.URL,
		Status:          res.StatusCode(),
		ResponseHeaders: res.Header(),
		ResponseBody:    res.String(),
		Elapsed:         res.Time(),
	}
	if raw := res.Request.RawRequest; raw != nil {
		d.URL = raw.URL.String()
		d.RequestHeaders = raw.Header
		d.RequestBody = requestBody(raw)
	}
	if describe != nil {
		d.Notes = describe(res)
	}
	return d
}

func requestBody(req *http.Request) string {
	if req.GetBody == nil {
		return ""
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Sprintf("<failed to get body: %s>", err)
	}
	contents, err := io.ReadAll(body)
	if err != nil {
		return fmt.Sprintf("<failed to read body: %s>", err)
	}
	return string(contents)
}

func writeHeaders(out *strings.Builder, headers http.Header) {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		for _, v := range headers[k] {
			fmt.Fprintf(out, "%s: %s\n", k, v)
		}
	}
}

func writeBody(out *strings.Builder, body string) {
	if body == "" {
		out.WriteString("<no body>\n")
		return
	}
	out.WriteString(strings.TrimSuffix(body, "\n"))
	out.WriteString("\n")
}

// String renders the exchange with headers in a stable order, notes first.
func (d Dump) String() string {
	var out strings.Builder

	if len(d.Notes) > 0 {
		out.WriteString("---- NOTES ----\n")
		for _, n := range d.Notes {
			fmt.Fprintf(&out, "%s: %s\n", n.Key, n.Value)
		}
		out.WriteString("\n")
	}

	out.WriteString("---- REQUEST ----\n")
	fmt.Fprintf(&out, "%s %s\n", d.Method, d.URL)
	writeHeaders(&out, d.RequestHeaders)
	out.WriteString("\n")
	writeBody(&out, d.RequestBody)

	out.WriteString("\n---- RESPONSE ----\n")
	fmt.Fprintf(&out, "%d %s (%s)\n", d.Status, http.StatusText(d.Status), d.Elapsed)
	writeHeaders(&out, d.ResponseHeaders)
	out.WriteString("\n")
	writeBody(&out, d.ResponseBody)

	return out.String()
}
