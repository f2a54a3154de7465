// Command trackerctl drives a running tracker through its monitor API.
//
//	trackerctl [-addr http://host:8080] start|stop|status
//	trackerctl config [file.json [note]]
//	trackerctl sessions [limit]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/banshee-data/marker.tracker/internal/config"
	"github.com/banshee-data/marker.tracker/internal/httputil"
)

var errUsage = errors.New("usage: trackerctl start|stop|status|config [file [note]]|sessions [limit]")

func printJSON(out io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

func run(ctx context.Context, client *httputil.APIClient, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	var resp json.RawMessage
	switch cmd, rest := args[0], args[1:]; cmd {
	case "start", "stop":
		if err := client.PostJSON(ctx, "/api/tracking/"+cmd, nil, &resp); err != nil {
			return err
		}
	case "status":
		if err := client.GetJSON(ctx, "/api/status", &resp); err != nil {
			return err
		}
	case "config":
		if len(rest) == 0 {
			if err := client.GetJSON(ctx, "/api/config", &resp); err != nil {
				return err
			}
			break
		}
		cfg, err := config.LoadTrackingConfig(rest[0])
		if err != nil {
			return err
		}
		path := "/api/config"
		if len(rest) > 1 {
			path += "?note=" + url.QueryEscape(rest[1])
		}
		if err := client.PutJSON(ctx, path, cfg, &resp); err != nil {
			return err
		}
	case "sessions":
		path := "/api/sessions"
		if len(rest) > 0 {
			if _, err := strconv.Atoi(rest[0]); err != nil {
				return fmt.Errorf("limit %q: %w", rest[0], err)
			}
			path += "?limit=" + rest[0]
		}
		if err := client.GetJSON(ctx, path, &resp); err != nil {
			return err
		}
	default:
		return errUsage
	}
	return printJSON(out, resp)
}

func main() {
	addr := flag.String("addr", "http://localhost:8080", "Tracker monitor base URL")
	timeout := flag.Duration("timeout", 5*time.Second, "Request timeout")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client := httputil.NewAPIClient(*addr, &http.Client{Timeout: *timeout})
	if err := run(ctx, client, flag.Args(), os.Stdout); err != nil {
		log.Fatal(err)
	}
}
