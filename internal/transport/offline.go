package transport

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/collider/frost-wallet-node/internal/errs"
)

// offlineFrame is one exported frame: enough metadata to replay it in
// emission order and to route Round 2's (sender,recipient) pairs, without
// requiring the reader to parse the frame's own wireproto envelope first.
type offlineFrame struct {
	Seq       int    `json:"seq"`
	Round     string `json:"round"` // "r1" | "r2" | "signing"
	FromID    string `json:"from_device_id"`
	ToID      string `json:"to_device_id,omitempty"` // empty = broadcast
	Payload   []byte `json:"payload"`
}

// BundleWriter exports frames to a directory, one JSON file per frame,
// named so lexicographic order matches emission order.
type BundleWriter struct {
	dir string
	seq int
}

// NewBundleWriter prepares dir for offline export, creating it if absent.
func NewBundleWriter(dir string) (*BundleWriter, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errs.Wrap(errs.Storage, "transport.NewBundleWriter", err)
	}
	return &BundleWriter{dir: dir}, nil
}

// Write appends one frame to the bundle.
func (w *BundleWriter) Write(round, fromDeviceID, toDeviceID string, payload []byte) error {
	frame := offlineFrame{Seq: w.seq, Round: round, FromID: fromDeviceID, ToID: toDeviceID, Payload: payload}
	data, err := json.MarshalIndent(frame, "", "  ")
	if err != nil {
		return errs.Wrap(errs.CryptoDecode, "transport.BundleWriter.Write", err)
	}
	name := fmt.Sprintf("%06d-%s.json", w.seq, round)
	if err := os.WriteFile(filepath.Join(w.dir, name), data, 0o600); err != nil {
		return errs.Wrap(errs.Storage, "transport.BundleWriter.Write", err)
	}
	w.seq++
	return nil
}

// ReadBundle replays every frame in dir in emission order.
func ReadBundle(dir string) ([]offlineFrame, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errs.Wrap(errs.Storage, "transport.ReadBundle", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names) // zero-padded seq prefix makes lexicographic == emission order

	frames := make([]offlineFrame, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, errs.Wrap(errs.Storage, "transport.ReadBundle", err)
		}
		var frame offlineFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, errs.Wrap(errs.CryptoDecode, "transport.ReadBundle", err)
		}
		frames = append(frames, frame)
	}
	return frames, nil
}
