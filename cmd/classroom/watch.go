package main

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/zstd"
	"github.com/urfave/cli/v2"
)

var decoder, _ = zstd.NewReader(nil)

// watchedFrame is the schema-free view of a Frame used by the watch client.
type watchedFrame struct {
	Entity  string           `json:"entity" cbor:"entity"`
	Seq     int64            `json:"seq" cbor:"seq"`
	Records []map[string]any `json:"records" cbor:"records"`
}

func observeURL(base, entity, format string, compress bool) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("failed to parse url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + entity + "/observe"
	q := url.Values{"format": {format}}
	if compress {
		q.Set("compress", "true")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func decodeFrame(msg []byte, format string, compressed bool) (watchedFrame, error) {
	var frame watchedFrame
	if compressed {
		raw, err := decoder.DecodeAll(msg, nil)
		if err != nil {
			return frame, fmt.Errorf("failed to decompress frame: %w", err)
		}
		msg = raw
	}
	var err error
	if format == "cbor" {
		err = cbor.Unmarshal(msg, &frame)
	} else {
		err = json.Unmarshal(msg, &frame)
	}
	if err != nil {
		return frame, fmt.Errorf("failed to decode %s frame: %w", format, err)
	}
	return frame, nil
}

func printFrame(w io.Writer, frame watchedFrame) {
	fmt.Fprintf(w, "#%d %s: %d records\n", frame.Seq, frame.Entity, len(frame.Records))
	for _, rec := range frame.Records {
		label, _ := rec["name"].(string)
		if label == "" {
			label, _ = rec["title"].(string)
		}
		fmt.Fprintf(w, "  %v  %s\n", rec["id"], label)
	}
}

// Watch connects to a running server and prints each delivered list.
func Watch(cctx *cli.Context) error {
	format := cctx.String("format")
	compress := cctx.Bool("compress")
	target, err := observeURL(cctx.String("url"), cctx.String("entity"), format, compress)
	if err != nil {
		return err
	}
	con, _, err := websocket.DefaultDialer.DialContext(cctx.Context, target, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to websocket: %w", err)
	}
	defer con.Close()

	limit := cctx.Int("frames")
	for n := 0; limit <= 0 || n < limit; n++ {
		_, msg, err := con.ReadMessage()
		if err != nil {
			return fmt.Errorf("failed to read message from websocket: %w", err)
		}
		frame, err := decodeFrame(msg, format, compress)
		if err != nil {
			return err
		}
		printFrame(cctx.App.Writer, frame)
	}
	_ = con.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return nil
}
