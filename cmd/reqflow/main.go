package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ambiyansyah-risyal/reqflow"
	"github.com/ambiyansyah-risyal/reqflow/api"
)

var exampleUsage = strings.TrimSpace(`
  REQFLOW_BASE_URL=https://api.example.com reqflow get /users/1
  reqflow get https://example.com/file.bin --type blob
  REQFLOW_BASE_URL=https://api.example.com reqflow captcha
`)

func main() {
	var (
		responseType string
		flat         bool
		token        string
		header       []string
	)

	root := &cobra.Command{
		Use:           "reqflow",
		Short:         "Issue requests through the reqflow pipeline",
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", reqflow.Version, runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&token, "token", os.Getenv("REQFLOW_TOKEN"), "bearer token sent as Authorization")

	get := &cobra.Command{
		Use:   "get <url>",
		Short: "GET a URL and print the payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := reqflow.LoadConfig()
			if err != nil {
				return err
			}

			rc := &reqflow.RequestConfig{
				URL:          args[0],
				ResponseType: reqflow.ResponseType(responseType),
				Header:       make(map[string][]string),
			}
			for _, h := range header {
				k, v, ok := strings.Cut(h, ":")
				if !ok {
					return fmt.Errorf("invalid header %q, want key:value", h)
				}
				rc.Header.Add(strings.TrimSpace(k), strings.TrimSpace(v))
			}

			r := api.NewRequester(cfg, func() string { return token })
			res := r.Request(cmd.Context(), rc)
			if flat {
				return printFlat(cmd.OutOrStdout(), res)
			}
			if res.Err != nil {
				return res.Err
			}
			return printPayload(cmd.OutOrStdout(), res.Data)
		},
	}
	get.Flags().StringVar(&responseType, "type", "json", "response type: json, text, blob, arrayBuffer, stream, document")
	get.Flags().BoolVar(&flat, "flat", false, "print the whole flat result instead of failing")
	get.Flags().StringArrayVarP(&header, "header", "H", nil, "extra request header as key:value")

	captcha := &cobra.Command{
		Use:   "captcha",
		Short: "Fetch an image captcha from the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := reqflow.LoadConfig()
			if err != nil {
				return err
			}
			r := api.NewRequester(cfg, func() string { return token })
			res := api.FetchImgCaptcha(cmd.Context(), r)
			if res.Err != nil {
				return res.Err
			}
			return printPayload(cmd.OutOrStdout(), res.Data)
		},
	}

	root.AddCommand(get, captcha)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func printPayload(w io.Writer, data any) error {
	switch v := data.(type) {
	case string:
		_, err := fmt.Fprintln(w, v)
		return err
	case []byte:
		_, err := w.Write(v)
		return err
	case *reqflow.Blob:
		_, err := w.Write(v.Bytes())
		return err
	case io.ReadCloser:
		defer v.Close()
		_, err := io.Copy(w, v)
		return err
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
}

func printFlat(w io.Writer, res *reqflow.FlatResult) error {
	out := map[string]any{"data": nil, "error": nil, "status": nil}
	if res.Err != nil {
		out["error"] = res.Err.Error()
	} else {
		if rc, ok := res.Data.(io.ReadCloser); ok {
			b, err := io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return err
			}
			out["data"] = string(b)
		} else if blob, ok := res.Data.(*reqflow.Blob); ok {
			out["data"] = fmt.Sprintf("<blob %s, %d bytes>", blob.Type, blob.Size())
		} else {
			out["data"] = res.Data
		}
	}
	if res.Response != nil {
		out["status"] = res.Response.StatusCode
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
