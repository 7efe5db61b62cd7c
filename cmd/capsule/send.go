package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/samvad-hq/capsule/pkg/httpclient"
	"github.com/spf13/cobra"
)

func newSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send METHOD URL",
		Short: "Send a single request and print the decoded response",
		Long: "Send a single request over a fresh session. Methods other than " +
			"GET, POST, PUT and DELETE are sent as GET unless --strict is set.",
		Args: cobra.ExactArgs(2),
		RunE: runSend,
	}

	f := cmd.Flags()
	f.StringArrayP("header", "H", nil, "request header as key=value (repeatable)")
	f.StringArrayP("param", "q", nil, "query parameter as key=value (repeatable)")
	f.String("data", "", "raw request body")
	f.StringArray("form", nil, "form field as key=value (repeatable)")
	f.String("json", "", "JSON request body")
	f.String("proxy", "", "proxy URL")
	f.StringP("user", "u", "", "basic auth credentials as user:password")
	f.Bool("text", false, "print the body as text instead of decoding JSON")
	f.Bool("strict", false, "fail on methods outside GET, POST, PUT and DELETE")
	f.BoolP("verbose", "v", false, "print the response status to stderr")
	return cmd
}

func runSend(cmd *cobra.Command, args []string) error {
	req, err := requestFromFlags(cmd, args[0], args[1])
	if err != nil {
		return err
	}

	strict, _ := cmd.Flags().GetBool("strict")
	verbose, _ := cmd.Flags().GetBool("verbose")

	var opts []httpclient.Option
	if strict {
		opts = append(opts, httpclient.WithStrictMethods())
	}
	d := httpclient.NewDispatcher(opts...)

	if !verbose {
		out, err := d.Send(cmd.Context(), req)
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), out)
	}

	resp, err := d.Do(cmd.Context(), req)
	if err != nil {
		return err
	}
	printStatus(cmd.ErrOrStderr(), resp.StatusCode())
	out, err := httpclient.Decode(resp, req.Text)
	if err != nil {
		return err
	}
	return printResult(cmd.OutOrStdout(), out)
}

func requestFromFlags(cmd *cobra.Command, method, url string) (httpclient.Request, error) {
	f := cmd.Flags()
	req := httpclient.Request{Method: method, URL: url}

	headers, _ := f.GetStringArray("header")
	params, _ := f.GetStringArray("param")
	form, _ := f.GetStringArray("form")
	data, _ := f.GetString("data")
	rawJSON, _ := f.GetString("json")
	user, _ := f.GetString("user")
	req.Proxy, _ = f.GetString("proxy")
	req.Text, _ = f.GetBool("text")

	var err error
	if req.Headers, err = parsePairs(headers); err != nil {
		return req, fmt.Errorf("--header: %w", err)
	}
	if req.Params, err = parsePairs(params); err != nil {
		return req, fmt.Errorf("--param: %w", err)
	}

	switch {
	case data != "" && len(form) > 0:
		return req, fmt.Errorf("--data and --form can not be combined")
	case data != "":
		req.Data = data
	case len(form) > 0:
		fields, err := parsePairs(form)
		if err != nil {
			return req, fmt.Errorf("--form: %w", err)
		}
		req.Data = fields
	}

	if rawJSON != "" {
		var body any
		if err := json.Unmarshal([]byte(rawJSON), &body); err != nil {
			return req, fmt.Errorf("--json: %w", err)
		}
		req.JSON = body
	}

	if user != "" {
		name, pass, ok := strings.Cut(user, ":")
		if !ok {
			return req, fmt.Errorf("--user must be user:password")
		}
		req.Auth = &httpclient.BasicAuth{Username: name, Password: pass}
	}
	return req, nil
}

// parsePairs turns key=value arguments into a map; later keys win.
func parsePairs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", p)
		}
		out[k] = v
	}
	return out, nil
}

func printResult(w io.Writer, out any) error {
	if s, ok := out.(string); ok {
		_, err := io.WriteString(w, s)
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func printStatus(w io.Writer, status int) {
	c := color.New(color.FgGreen, color.Bold)
	switch {
	case status >= 400:
		c = color.New(color.FgRed, color.Bold)
	case status >= 300:
		c = color.New(color.FgYellow, color.Bold)
	}
	c.Fprintf(w, "HTTP %d\n", status)
}
